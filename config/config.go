// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the ragsync configuration.
//
// Values are layered in increasing precedence: built-in defaults, the YAML
// file, a .env file next to it, then RAGSYNC_ prefixed environment variables.
// Source descriptors can only be configured in the YAML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/poiesic/ragsync/ai"
	"github.com/poiesic/ragsync/chunking"
	"github.com/poiesic/ragsync/core"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "RAGSYNC_"

// Config is the root configuration.
type Config struct {
	// DataDir holds the index database.
	DataDir string `yaml:"data_dir" env:"DATA_DIR"`

	// LogLevel is one of debug, info, warn or error.
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`

	AI        ai.Config               `yaml:"ai"`
	Sources   []core.SourceDescriptor `yaml:"sources" env:"-"`
	Sync      SyncConfig              `yaml:"sync" envPrefix:"SYNC_"`
	Retrieval RetrievalConfig         `yaml:"retrieval" envPrefix:"RETRIEVAL_"`
	Answer    AnswerConfig            `yaml:"answer" envPrefix:"ANSWER_"`
	Memory    MemoryConfig            `yaml:"memory" envPrefix:"MEMORY_"`
	Batch     BatchConfig             `yaml:"batch" envPrefix:"BATCH_"`
}

// SyncConfig controls corpus synchronization.
type SyncConfig struct {
	AutoDelete   bool          `yaml:"auto_delete" env:"AUTO_DELETE"`
	Concurrency  int           `yaml:"concurrency" env:"CONCURRENCY"`
	Workers      int           `yaml:"workers" env:"WORKERS"`
	ChunkSize    int           `yaml:"chunk_size" env:"CHUNK_SIZE"`
	ChunkOverlap int           `yaml:"chunk_overlap" env:"CHUNK_OVERLAP"`
	Debounce     time.Duration `yaml:"debounce" env:"DEBOUNCE"`
}

// RetrievalConfig controls hybrid retrieval.
type RetrievalConfig struct {
	TopK              int           `yaml:"top_k" env:"TOP_K"`
	VariantTopK       int           `yaml:"variant_top_k" env:"VARIANT_TOP_K"`
	Rewrite           bool          `yaml:"rewrite" env:"REWRITE"`
	RewriteCount      int           `yaml:"rewrite_count" env:"REWRITE_COUNT"`
	ExpansionTTL      time.Duration `yaml:"expansion_ttl" env:"EXPANSION_TTL"`
	Deduplicate       bool          `yaml:"deduplicate" env:"DEDUPLICATE"`
	Lexical           bool          `yaml:"lexical" env:"LEXICAL"`
	VectorCacheSize   int           `yaml:"vector_cache_size" env:"VECTOR_CACHE_SIZE"`
	DefaultCategories []string      `yaml:"default_categories,omitempty" env:"DEFAULT_CATEGORIES"`
}

// AnswerConfig controls answer generation.
type AnswerConfig struct {
	TopN         int    `yaml:"top_n" env:"TOP_N"`
	Fallback     bool   `yaml:"fallback" env:"FALLBACK"`
	FragmentSize int    `yaml:"fragment_size" env:"FRAGMENT_SIZE"`
	MemoryTurns  int    `yaml:"memory_turns" env:"MEMORY_TURNS"`
	PromptsDir   string `yaml:"prompts_dir" env:"PROMPTS_DIR"`
}

// MemoryConfig controls conversational memory.
type MemoryConfig struct {
	Enabled   bool `yaml:"enabled" env:"ENABLED"`
	Budget    int  `yaml:"budget" env:"BUDGET"`
	MinRounds int  `yaml:"min_rounds" env:"MIN_ROUNDS"`
}

// BatchConfig controls multi-question runs.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" env:"CONCURRENCY"`
}

// Default returns the built-in configuration. It has no sources.
func Default() *Config {
	return &Config{
		DataDir:  defaultDataDir(),
		LogLevel: "info",
		AI:       *ai.DefaultConfig(),
		Sync: SyncConfig{
			Concurrency:  8,
			ChunkSize:    chunking.DefaultChunkSize,
			ChunkOverlap: chunking.DefaultOverlap,
			Debounce:     2 * time.Second,
		},
		Retrieval: RetrievalConfig{
			TopK:            10,
			VariantTopK:     3,
			Rewrite:         true,
			RewriteCount:    3,
			ExpansionTTL:    10 * time.Minute,
			Deduplicate:     true,
			Lexical:         true,
			VectorCacheSize: 512,
		},
		Answer: AnswerConfig{
			TopN:         3,
			Fallback:     true,
			FragmentSize: 16,
			MemoryTurns:  5,
		},
		Memory: MemoryConfig{
			Enabled:   true,
			Budget:    20000,
			MinRounds: 3,
		},
		Batch: BatchConfig{Concurrency: 4},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ragsync"
	}
	return filepath.Join(home, ".local", "share", "ragsync")
}

// Load builds a configuration from the YAML file at path, a .env file in the
// same directory and the process environment, then validates it. A missing
// file yields the defaults; an empty path skips the file.
func Load(path string) (*Config, error) {
	return load(path, env.ToMap(os.Environ()))
}

func load(path string, environ map[string]string) (*Config, error) {
	cfg := Default()
	dir := "."
	if path != "" {
		dir = filepath.Dir(path)
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("%w: reading %s: %w", core.ErrConfiguration, path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("%w: parsing %s: %w", core.ErrConfiguration, path, err)
			}
		}
	}

	// Real environment variables take precedence over .env entries
	dotenv, err := godotenv.Read(filepath.Join(dir, ".env"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: reading .env: %w", core.ErrConfiguration, err)
	}
	merged := make(map[string]string, len(dotenv)+len(environ))
	for k, v := range dotenv {
		merged[k] = v
	}
	for k, v := range environ {
		merged[k] = v
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix, Environment: merged}); err != nil {
		return nil, fmt.Errorf("%w: environment: %w", core.ErrConfiguration, err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// normalize stores empty lists as nil so a saved file reloads unchanged.
func (c *Config) normalize() {
	for i := range c.Sources {
		if len(c.Sources[i].Patterns) == 0 {
			c.Sources[i].Patterns = nil
		}
	}
	if len(c.Retrieval.DefaultCategories) == 0 {
		c.Retrieval.DefaultCategories = nil
	}
}

// Save writes cfg to path as YAML, creating directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks the configuration, collecting every problem found.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{core.ErrConfiguration}, args...)...))
	}

	if err := c.AI.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.DataDir == "" {
		add("data_dir is required")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		add("unknown log level %q", c.LogLevel)
	}
	for i := range c.Sources {
		if err := core.ValidateSourceDescriptor(&c.Sources[i]); err != nil {
			add("sources[%d]: %w", i, err)
		}
	}

	if c.Sync.Concurrency < 1 {
		add("sync.concurrency must be positive")
	}
	if c.Sync.Workers < 0 {
		add("sync.workers cannot be negative")
	}
	if c.Sync.ChunkSize < 1 || c.Sync.ChunkOverlap < 0 || c.Sync.ChunkOverlap >= c.Sync.ChunkSize {
		add("chunk overlap must be smaller than a positive chunk size")
	}
	if c.Sync.Debounce < 0 {
		add("sync.debounce cannot be negative")
	}
	if c.Retrieval.TopK < 1 || c.Retrieval.VariantTopK < 1 {
		add("retrieval top_k and variant_top_k must be positive")
	}
	if c.Retrieval.Rewrite && c.Retrieval.RewriteCount < 1 {
		add("retrieval.rewrite_count must be positive when rewriting is enabled")
	}
	if c.Answer.TopN < 1 || c.Answer.FragmentSize < 1 {
		add("answer top_n and fragment_size must be positive")
	}
	if c.Memory.Budget < 1 || c.Memory.MinRounds < 0 {
		add("memory budget must be positive")
	}
	if c.Batch.Concurrency < 1 {
		add("batch.concurrency must be positive")
	}
	return errors.Join(errs...)
}

// Roots returns the roots of every enabled source.
func (c *Config) Roots() []string {
	var roots []string
	for _, src := range c.Sources {
		if src.Enabled {
			roots = append(roots, src.Root)
		}
	}
	return roots
}
