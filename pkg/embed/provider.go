package embed

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ErrUnavailable is what callers see for every model failure: load failure,
// inference failure, dimension mismatch. The provider never surfaces the
// underlying error past its boundary; it only logs it.
var ErrUnavailable = errors.New("embedding model unavailable")

// Provider turns text into fixed-length vectors, owning the model's lazy
// load state. Concurrent first callers share one load attempt; a failed load
// is forgotten so a later call can retry.
type Provider struct {
	loader Loader
	logger zerolog.Logger

	group singleflight.Group
	mu    sync.RWMutex
	model Model
}

// NewProvider creates a provider around a model loader. The model itself is
// not loaded until the first Embed call.
func NewProvider(loader Loader, logger zerolog.Logger) *Provider {
	return &Provider{
		loader: loader,
		logger: logger.With().Str("component", "embed").Logger(),
	}
}

// Embed generates an embedding for one text. Returns ErrUnavailable instead
// of failing the caller's larger operation.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	m, err := p.getModel(ctx)
	if err != nil {
		return nil, ErrUnavailable
	}

	out, err := m.Encode(ctx, []string{text})
	if err != nil {
		p.logger.Warn().Err(err).Msg("Embedding inference failed")
		return nil, ErrUnavailable
	}
	if len(out) != m.Dim() {
		p.logger.Warn().
			Int("got", len(out)).
			Int("want", m.Dim()).
			Msg("Embedding output has wrong dimension")
		return nil, ErrUnavailable
	}

	return out, nil
}

// EmbedBatch generates embeddings for several texts at once. The result
// always has one entry per input; an entry is nil when that text could not be
// embedded. The whole call returns ErrUnavailable only when the model cannot
// be loaded at all.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	// Size-1 batches skip the batching machinery
	if len(texts) == 1 {
		vec, err := p.Embed(ctx, texts[0])
		if err != nil {
			return nil, err
		}
		return [][]float32{vec}, nil
	}

	m, err := p.getModel(ctx)
	if err != nil {
		return nil, ErrUnavailable
	}

	flat, err := m.Encode(ctx, texts)
	if err == nil && len(flat) == len(texts)*m.Dim() {
		dim := m.Dim()
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = flat[i*dim : (i+1)*dim]
		}
		return out, nil
	}
	if err != nil {
		p.logger.Warn().Err(err).Int("batch", len(texts)).
			Msg("Batch inference failed, falling back to single-text calls")
	} else {
		p.logger.Warn().Int("got", len(flat)).Int("want", len(texts)*m.Dim()).
			Msg("Batch output has wrong size, falling back to single-text calls")
	}

	// Per-text fallback: one bad text must not lose the batch
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := p.Embed(ctx, text)
		if err != nil {
			continue
		}
		out[i] = vec
	}
	return out, nil
}

// Dim reports the model's output dimension, loading the model if needed.
func (p *Provider) Dim(ctx context.Context) (int, error) {
	m, err := p.getModel(ctx)
	if err != nil {
		return 0, ErrUnavailable
	}
	return m.Dim(), nil
}

// Close releases the loaded model, if any.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.model == nil {
		return nil
	}
	err := p.model.Close()
	p.model = nil
	return err
}

func (p *Provider) getModel(ctx context.Context) (Model, error) {
	p.mu.RLock()
	m := p.model
	p.mu.RUnlock()
	if m != nil {
		return m, nil
	}

	v, err, _ := p.group.Do("load", func() (any, error) {
		// Re-check: a previous flight may have won while we queued
		p.mu.RLock()
		loaded := p.model
		p.mu.RUnlock()
		if loaded != nil {
			return loaded, nil
		}

		model, err := p.loader(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load embedding model: %w", err)
		}

		p.mu.Lock()
		p.model = model
		p.mu.Unlock()

		p.logger.Info().Int("dimension", model.Dim()).Msg("Embedding model loaded")
		return model, nil
	})
	if err != nil {
		p.logger.Warn().Err(err).Msg("Embedding model unavailable")
		return nil, err
	}

	return v.(Model), nil
}
