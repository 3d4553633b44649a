// Package config loads and validates the storage layer configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/basaltdb/basalt/core"
)

// SSTConfig holds data-file specific configurations.
type SSTConfig struct {
	BlockSizeBytes int    `yaml:"block_size_bytes"`
	Compression    string `yaml:"compression"`
}

// WriteCacheConfig holds the local write-through tier configurations.
type WriteCacheConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Dir           string `yaml:"dir"`
	UploadRetries uint   `yaml:"upload_retries"`
}

// IndexBuildConfig holds inverted-index construction configurations.
type IndexBuildConfig struct {
	Enabled        bool  `yaml:"enabled"`
	MemBudgetBytes int64 `yaml:"mem_budget_bytes"`
	MetaCacheFiles int   `yaml:"meta_cache_files"`
	PublishMetrics bool  `yaml:"publish_metrics"`
}

// Config holds all storage-layer configurations, grouped logically.
type Config struct {
	DataDir    string           `yaml:"data_dir"`
	SST        SSTConfig        `yaml:"sst"`
	WriteCache WriteCacheConfig `yaml:"write_cache"`
	IndexBuild IndexBuildConfig `yaml:"index_build"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		DataDir: "./data",
		SST: SSTConfig{
			BlockSizeBytes: 64 * 1024,
			Compression:    "snappy",
		},
		WriteCache: WriteCacheConfig{
			Enabled:       false,
			UploadRetries: 3,
		},
		IndexBuild: IndexBuildConfig{
			Enabled:        true,
			MemBudgetBytes: 64 * 1024 * 1024,
			MetaCacheFiles: 1024,
		},
	}
}

// Load reads a YAML configuration file, applying defaults for absent
// fields, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.SST.BlockSizeBytes <= 0 {
		return fmt.Errorf("sst.block_size_bytes must be positive, got %d", c.SST.BlockSizeBytes)
	}
	if _, ok := core.ParseCompressionType(c.SST.Compression); !ok {
		return fmt.Errorf("sst.compression %q is not one of none, snappy, lz4, zstd", c.SST.Compression)
	}
	if c.WriteCache.Enabled && c.WriteCache.Dir == "" {
		return fmt.Errorf("write_cache.dir must be set when write_cache.enabled")
	}
	if c.IndexBuild.MemBudgetBytes < 0 {
		return fmt.Errorf("index_build.mem_budget_bytes must not be negative, got %d", c.IndexBuild.MemBudgetBytes)
	}
	return nil
}

// WriteOptions derives the per-write options implied by the configuration.
// Inverted index construction runs on the write-cache path only, so it is
// enabled just when both index_build and write_cache are.
func (c *Config) WriteOptions() *core.WriteOptions {
	compression, _ := core.ParseCompressionType(c.SST.Compression)
	return &core.WriteOptions{
		BlockSizeBytes:         c.SST.BlockSizeBytes,
		Compression:            compression,
		InvertedIndex:          c.IndexBuild.Enabled && c.WriteCache.Enabled,
		IndexMemoryBudgetBytes: c.IndexBuild.MemBudgetBytes,
	}
}
