package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the main memctl configuration
type Config struct {
	// Data directory (the database lives here)
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// Database path; defaults to <data_dir>/memctl.db
	DBPath string `json:"db_path" mapstructure:"db_path"`

	// Embedding model configuration
	Embedding EmbeddingConfig `json:"embedding" mapstructure:"embedding"`

	// Search defaults
	Search SearchConfig `json:"search" mapstructure:"search"`

	// Background maintenance
	Maintenance MaintenanceConfig `json:"maintenance" mapstructure:"maintenance"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// EmbeddingConfig selects and configures the embedding model
type EmbeddingConfig struct {
	Provider   string `json:"provider" mapstructure:"provider"` // onnx, openai
	Dimensions int    `json:"dimensions" mapstructure:"dimensions"`

	// Local ONNX model
	ModelPath     string `json:"model_path" mapstructure:"model_path"`
	TokenizerPath string `json:"tokenizer_path" mapstructure:"tokenizer_path"`
	LibraryPath   string `json:"library_path" mapstructure:"library_path"`

	// OpenAI
	APIKey string `json:"api_key" mapstructure:"api_key"`
	Model  string `json:"model" mapstructure:"model"`
}

// SearchConfig holds retrieval defaults
type SearchConfig struct {
	DefaultLimit int `json:"default_limit" mapstructure:"default_limit"`
}

// MaintenanceConfig holds the embedding backfill settings
type MaintenanceConfig struct {
	Schedule     string `json:"schedule" mapstructure:"schedule"` // cron expr or descriptor
	BatchSize    int    `json:"batch_size" mapstructure:"batch_size"`
	SubBatchSize int    `json:"sub_batch_size" mapstructure:"sub_batch_size"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level   string `json:"level" mapstructure:"level"` // debug, info, warn, error
	File    string `json:"file" mapstructure:"file"`
	Console bool   `json:"console" mapstructure:"console"`
	Pretty  bool   `json:"pretty" mapstructure:"pretty"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	cfg := &Config{
		DataDir: filepath.Join(home, ".memctl"),
		Embedding: EmbeddingConfig{
			Provider:   "onnx",
			Dimensions: 384,
		},
		Search: SearchConfig{
			DefaultLimit: 10,
		},
		Maintenance: MaintenanceConfig{
			Schedule:     "@every 5m",
			BatchSize:    100,
			SubBatchSize: 50,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			Pretty:  true,
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills derived fields left empty by the config file
func (c *Config) ApplyDefaults() {
	if c.DBPath == "" && c.DataDir != "" {
		c.DBPath = filepath.Join(c.DataDir, "memctl.db")
	}
	if c.Embedding.Dimensions == 0 {
		c.Embedding.Dimensions = 384
	}
	if c.Search.DefaultLimit == 0 {
		c.Search.DefaultLimit = 10
	}
	if c.Maintenance.Schedule == "" {
		c.Maintenance.Schedule = "@every 5m"
	}
	if c.Maintenance.BatchSize == 0 {
		c.Maintenance.BatchSize = 100
	}
	if c.Maintenance.SubBatchSize == 0 {
		c.Maintenance.SubBatchSize = 50
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	switch c.Embedding.Provider {
	case "onnx":
		if c.Embedding.ModelPath == "" {
			return fmt.Errorf("embedding.model_path is required for the onnx provider")
		}
		if c.Embedding.TokenizerPath == "" {
			return fmt.Errorf("embedding.tokenizer_path is required for the onnx provider")
		}
	case "openai":
		if c.Embedding.APIKey == "" {
			return fmt.Errorf("embedding.api_key is required for the openai provider")
		}
	case "":
		return fmt.Errorf("embedding.provider is required")
	default:
		return fmt.Errorf("unknown embedding provider: %s", c.Embedding.Provider)
	}

	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive")
	}
	if c.Maintenance.BatchSize < 0 || c.Maintenance.SubBatchSize < 0 {
		return fmt.Errorf("maintenance batch sizes must not be negative")
	}

	return nil
}
