package embed

import (
	"context"
	"strings"
	"sync"

	"github.com/memctl/memctl/pkg/memory"
	"github.com/rs/zerolog"
)

// EmbeddingWriter is the slice of the primary store the pipeline needs.
type EmbeddingWriter interface {
	UpdateEmbedding(ctx context.Context, id string, embedding []byte) error
}

const defaultQueueSize = 256

// Pipeline is the fire-and-forget write-to-embed handoff: the store's write
// path enqueues and returns immediately, one worker goroutine embeds,
// quantizes and persists. Failures are observable only in logs; a full queue
// drops the job and the backfill sweep picks the memory up later.
type Pipeline struct {
	provider *Provider
	writer   EmbeddingWriter
	logger   zerolog.Logger

	queue chan embedJob
	stop  chan struct{}
	done  sync.WaitGroup
	once  sync.Once
}

type embedJob struct {
	id   string
	text string
}

// NewPipeline creates and starts the pipeline worker.
func NewPipeline(provider *Provider, writer EmbeddingWriter, logger zerolog.Logger) *Pipeline {
	p := &Pipeline{
		provider: provider,
		writer:   writer,
		logger:   logger.With().Str("component", "embed-pipeline").Logger(),
		queue:    make(chan embedJob, defaultQueueSize),
		stop:     make(chan struct{}),
	}

	p.done.Add(1)
	go p.run()

	return p
}

// Enqueue hands a memory off for embedding. Never blocks the caller.
func (p *Pipeline) Enqueue(m *memory.Memory) {
	job := embedJob{id: m.ID, text: EmbeddingText(m)}
	select {
	case p.queue <- job:
	default:
		p.logger.Warn().Str("memory_id", m.ID).Msg("Embedding queue full, dropping job")
	}
}

// OnInsert implements memory.IndexHook.
func (p *Pipeline) OnInsert(ctx context.Context, m *memory.Memory) {
	p.Enqueue(m)
}

// OnUpdate implements memory.IndexHook. The store clears the stale embedding
// on update, so the rewrite always re-enqueues.
func (p *Pipeline) OnUpdate(ctx context.Context, m *memory.Memory) {
	p.Enqueue(m)
}

// OnDelete implements memory.IndexHook. The embedding lives in the deleted
// row, nothing to clean up.
func (p *Pipeline) OnDelete(ctx context.Context, id string) {}

// Close stops the worker after draining queued jobs.
func (p *Pipeline) Close() {
	p.once.Do(func() {
		close(p.stop)
		p.done.Wait()
	})
}

func (p *Pipeline) run() {
	defer p.done.Done()

	for {
		select {
		case job := <-p.queue:
			p.process(job)
		case <-p.stop:
			// Drain whatever is queued, then exit
			for {
				select {
				case job := <-p.queue:
					p.process(job)
				default:
					return
				}
			}
		}
	}
}

func (p *Pipeline) process(job embedJob) {
	ctx := context.Background()

	vec, err := p.provider.Embed(ctx, job.text)
	if err != nil {
		p.logger.Debug().Str("memory_id", job.id).Msg("Embedding unavailable, leaving for backfill")
		return
	}

	blob, err := Serialize(vec)
	if err != nil {
		p.logger.Warn().Err(err).Str("memory_id", job.id).Msg("Failed to serialize embedding")
		return
	}

	if err := p.writer.UpdateEmbedding(ctx, job.id, blob); err != nil {
		p.logger.Warn().Err(err).Str("memory_id", job.id).Msg("Failed to persist embedding")
	}
}

// EmbeddingText is the canonical text a memory is embedded from: key,
// content and tags together, so all three carry semantic weight.
func EmbeddingText(m *memory.Memory) string {
	parts := []string{m.Key, m.Content}
	if len(m.Tags) > 0 {
		parts = append(parts, strings.Join(m.Tags, " "))
	}
	return strings.Join(parts, "\n")
}
