// Package openai embeds text through the OpenAI embeddings API. It is the
// hosted alternative to the local ONNX model; the provider contract is the
// same either way.
package openai

import (
	"context"
	"fmt"

	"github.com/memctl/memctl/pkg/embed"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Config configures the OpenAI embedding model.
type Config struct {
	APIKey string

	// Model defaults to text-embedding-3-small.
	Model string

	// Dimensions defaults to 384 to match the local model's output.
	Dimensions int
}

// Model calls the OpenAI embeddings endpoint. Satisfies embed.Model.
type Model struct {
	client openai.Client
	model  string
	dim    int
}

// Loader returns an embed.Loader that builds the client on first use.
func Loader(cfg Config) embed.Loader {
	return func(ctx context.Context) (embed.Model, error) {
		return New(cfg)
	}
}

// New creates the API client.
func New(cfg Config) (*Model, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.EmbeddingModelTextEmbedding3Small)
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = 384
	}

	return &Model{
		client: openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:  cfg.Model,
		dim:    cfg.Dimensions,
	}, nil
}

// Dim returns the embedding dimension.
func (m *Model) Dim() int {
	return m.dim
}

// Close is a no-op; the API client holds no resources.
func (m *Model) Close() error {
	return nil
}

// Encode embeds texts in one API call and flattens the vectors into a single
// buffer of len(texts)*Dim values.
func (m *Model) Encode(ctx context.Context, texts []string) ([]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := m.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input:      openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model:      openai.EmbeddingModel(m.model),
		Dimensions: openai.Int(int64(m.dim)),
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings request failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	out := make([]float32, 0, len(texts)*m.dim)
	for _, d := range resp.Data {
		if len(d.Embedding) != m.dim {
			return nil, fmt.Errorf("embedding has dimension %d, want %d", len(d.Embedding), m.dim)
		}
		for _, v := range d.Embedding {
			out = append(out, float32(v))
		}
	}

	return out, nil
}
