package cli

import (
	"fmt"
	"os"

	"github.com/memctl/memctl/internal/config"
	"github.com/memctl/memctl/internal/logger"
	"github.com/memctl/memctl/pkg/embed"
	"github.com/memctl/memctl/pkg/embed/onnx"
	"github.com/memctl/memctl/pkg/embed/openai"
	"github.com/memctl/memctl/pkg/memory"
	"github.com/memctl/memctl/pkg/search"
)

// app wires the engine's components from configuration for one command run.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	store    *memory.Store
	provider *embed.Provider
	pipeline *embed.Pipeline
	engine   *search.Engine
}

func newApp() (*app, error) {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	lg, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	zl := lg.GetZerolog()

	store, err := memory.NewStore(memory.StoreConfig{
		DBPath: cfg.DBPath,
		Logger: zl,
	})
	if err != nil {
		lg.Close()
		return nil, err
	}

	provider := embed.NewProvider(modelLoader(cfg.Embedding), zl)
	pipeline := embed.NewPipeline(provider, store, zl)
	engine := search.NewEngine(store, provider, zl)

	// Write-path hooks: lexical index synchronously, embedding asynchronously
	engine.Lexical().EnsureIndex()
	store.RegisterHook(engine.Lexical())
	store.RegisterHook(pipeline)

	return &app{
		cfg:      cfg,
		log:      lg,
		store:    store,
		provider: provider,
		pipeline: pipeline,
		engine:   engine,
	}, nil
}

func (a *app) Close() {
	a.pipeline.Close()
	a.provider.Close()
	a.store.Close()
	a.log.Close()
}

func modelLoader(cfg config.EmbeddingConfig) embed.Loader {
	switch cfg.Provider {
	case "openai":
		return openai.Loader(openai.Config{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
	default:
		return onnx.Loader(onnx.Config{
			ModelPath:     cfg.ModelPath,
			TokenizerPath: cfg.TokenizerPath,
			LibraryPath:   cfg.LibraryPath,
			Dimensions:    cfg.Dimensions,
		})
	}
}
