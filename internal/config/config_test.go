package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		DataDir: "/tmp/memctl-test",
		Embedding: EmbeddingConfig{
			Provider:      "onnx",
			Dimensions:    384,
			ModelPath:     "/models/model.onnx",
			TokenizerPath: "/models/tokenizer.json",
		},
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, filepath.Join(cfg.DataDir, "memctl.db"), cfg.DBPath)
	assert.Equal(t, "onnx", cfg.Embedding.Provider)
	assert.Equal(t, 384, cfg.Embedding.Dimensions)
	assert.Equal(t, 10, cfg.Search.DefaultLimit)
	assert.Equal(t, "@every 5m", cfg.Maintenance.Schedule)
	assert.Equal(t, 100, cfg.Maintenance.BatchSize)
	assert.Equal(t, 50, cfg.Maintenance.SubBatchSize)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{DataDir: "/data"}
	cfg.ApplyDefaults()

	assert.Equal(t, filepath.Join("/data", "memctl.db"), cfg.DBPath)
	assert.Equal(t, 384, cfg.Embedding.Dimensions)
	assert.Equal(t, 10, cfg.Search.DefaultLimit)
	assert.Equal(t, "@every 5m", cfg.Maintenance.Schedule)
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	cfg := &Config{
		DataDir:     "/data",
		DBPath:      "/elsewhere/custom.db",
		Search:      SearchConfig{DefaultLimit: 25},
		Maintenance: MaintenanceConfig{Schedule: "@hourly", BatchSize: 7, SubBatchSize: 3},
	}
	cfg.ApplyDefaults()

	assert.Equal(t, "/elsewhere/custom.db", cfg.DBPath)
	assert.Equal(t, 25, cfg.Search.DefaultLimit)
	assert.Equal(t, "@hourly", cfg.Maintenance.Schedule)
	assert.Equal(t, 7, cfg.Maintenance.BatchSize)
	assert.Equal(t, 3, cfg.Maintenance.SubBatchSize)
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "missing data dir", mutate: func(c *Config) { c.DataDir = "" }},
		{name: "missing provider", mutate: func(c *Config) { c.Embedding.Provider = "" }},
		{name: "unknown provider", mutate: func(c *Config) { c.Embedding.Provider = "cohere" }},
		{name: "onnx without model path", mutate: func(c *Config) { c.Embedding.ModelPath = "" }},
		{name: "onnx without tokenizer", mutate: func(c *Config) { c.Embedding.TokenizerPath = "" }},
		{name: "zero dimensions", mutate: func(c *Config) { c.Embedding.Dimensions = 0 }},
		{name: "negative batch size", mutate: func(c *Config) { c.Maintenance.BatchSize = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_OpenAIProvider(t *testing.T) {
	cfg := validConfig()
	cfg.Embedding = EmbeddingConfig{Provider: "openai", Dimensions: 384}
	assert.Error(t, cfg.Validate(), "openai requires an api key")

	cfg.Embedding.APIKey = "sk-test"
	assert.NoError(t, cfg.Validate())
}
