package embed

import "context"

// Model is a sentence-embedding model. Encode returns one flat buffer of
// len(texts) * Dim() float32 values; the provider slices it per text. Models
// are expensive to construct, so they are built through a Loader exactly when
// first needed.
type Model interface {
	// Encode embeds texts into a single flat output buffer.
	Encode(ctx context.Context, texts []string) ([]float32, error)

	// Dim is the fixed output dimension per text.
	Dim() int

	// Close releases model resources.
	Close() error
}

// Loader constructs a Model. The provider invokes it lazily and memoizes the
// in-flight attempt; a failed load is retried on the next call.
type Loader func(ctx context.Context) (Model, error)
