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

package ai

import (
	"fmt"
	"strings"
	"time"

	"github.com/poiesic/ragsync/core"
)

// Config holds configuration for AI service providers.
type Config struct {
	// EmbeddingHost is the base URL for the embedding service API.
	// Example: "http://localhost:11434/v1" for local OpenAI-compatible server
	EmbeddingHost string `yaml:"embedding_host" env:"EMBEDDING_HOST"`

	// GenerationHost is the base URL for the answer generation service API.
	GenerationHost string `yaml:"generation_host" env:"GENERATION_HOST"`

	// RerankHost is the base URL for the relevance scoring service API.
	// Defaults to GenerationHost when empty.
	RerankHost string `yaml:"rerank_host" env:"RERANK_HOST"`

	// EmbeddingModel is the model identifier to use for text embeddings.
	// Example: "embeddinggemma", "text-embedding-3-small"
	EmbeddingModel string `yaml:"embedding_model" env:"EMBEDDING_MODEL"`

	// GenerationModel is the model identifier used for answers and query rewriting.
	// Example: "qwen2.5:3b", "gpt-4o-mini"
	GenerationModel string `yaml:"generation_model" env:"GENERATION_MODEL"`

	// RerankModel is the model identifier used to score passage relevance.
	// Defaults to GenerationModel when empty.
	RerankModel string `yaml:"rerank_model" env:"RERANK_MODEL"`

	// APIKey is sent as the bearer token. Local servers accept any value.
	APIKey string `yaml:"-" env:"API_KEY"`

	// Streaming selects the streaming generation variant.
	Streaming bool `yaml:"streaming" env:"STREAMING"`

	// RerankEnabled turns the relevance scorer on.
	RerankEnabled bool `yaml:"rerank_enabled" env:"RERANK_ENABLED"`

	// Temperature used for answer generation.
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`

	// Timeouts bounds each external call category. Zero means no timeout.
	Timeouts Timeouts `yaml:"timeouts" envPrefix:"TIMEOUT_"`
}

// Timeouts configures a deadline per category of external call.
type Timeouts struct {
	Embed    time.Duration `yaml:"embed" env:"EMBED"`
	Retrieve time.Duration `yaml:"retrieve" env:"RETRIEVE"`
	Rerank   time.Duration `yaml:"rerank" env:"RERANK"`
	Generate time.Duration `yaml:"generate" env:"GENERATE"`
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithGenerationHost sets the generation service host URL.
func WithGenerationHost(host string) ConfigOption {
	return func(c *Config) {
		c.GenerationHost = host
	}
}

// WithRerankHost sets the relevance scoring service host URL.
func WithRerankHost(host string) ConfigOption {
	return func(c *Config) {
		c.RerankHost = host
	}
}

// WithHost sets every service host to the same URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
		c.GenerationHost = host
		c.RerankHost = host
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithGenerationModel sets the generation model identifier.
func WithGenerationModel(model string) ConfigOption {
	return func(c *Config) {
		c.GenerationModel = model
	}
}

// WithRerankModel sets the relevance scoring model identifier.
func WithRerankModel(model string) ConfigOption {
	return func(c *Config) {
		c.RerankModel = model
	}
}

// WithAPIKey sets the bearer token sent to every service.
func WithAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithStreaming selects the streaming or blocking generation variant.
func WithStreaming(streaming bool) ConfigOption {
	return func(c *Config) {
		c.Streaming = streaming
	}
}

// WithRerank enables or disables the relevance scorer.
func WithRerank(enabled bool) ConfigOption {
	return func(c *Config) {
		c.RerankEnabled = enabled
	}
}

// WithTimeouts sets per-category call timeouts.
func WithTimeouts(timeouts Timeouts) ConfigOption {
	return func(c *Config) {
		c.Timeouts = timeouts
	}
}

// DefaultConfig returns a Config with sensible defaults for local OpenAI-compatible services.
// By default every service uses the same host.
func DefaultConfig() *Config {
	defaultHost := "http://localhost:11434/v1"
	return &Config{
		EmbeddingHost:   defaultHost,
		GenerationHost:  defaultHost,
		EmbeddingModel:  "embeddinggemma",
		GenerationModel: "qwen2.5:3b",
		APIKey:          "none",
		Streaming:       true,
		RerankEnabled:   true,
		Temperature:     0.1,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithHost("http://localhost:11434/v1"),
//	    WithGenerationModel("gpt-4o-mini"),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// It adds the /v1 suffix to hosts if missing, which is required
// by most OpenAI-compatible APIs (Ollama, LocalAI, vLLM, etc).
func (c *Config) Normalize() {
	c.EmbeddingHost = normalizeHost(c.EmbeddingHost)
	c.GenerationHost = normalizeHost(c.GenerationHost)
	c.RerankHost = normalizeHost(c.RerankHost)
	if c.RerankHost == "" {
		c.RerankHost = c.GenerationHost
	}
	if c.RerankModel == "" {
		c.RerankModel = c.GenerationModel
	}
	if c.APIKey == "" {
		c.APIKey = "none"
	}
}

func normalizeHost(host string) string {
	if host == "" || strings.HasSuffix(host, "/v1") {
		return host
	}
	return strings.TrimSuffix(host, "/") + "/v1"
}

// Validate checks that the configuration is valid and complete.
// It normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if c.EmbeddingHost == "" {
		return fmt.Errorf("%w: ai config: EmbeddingHost is required", core.ErrConfiguration)
	}
	if c.GenerationHost == "" {
		return fmt.Errorf("%w: ai config: GenerationHost is required", core.ErrConfiguration)
	}
	if c.EmbeddingModel == "" {
		return fmt.Errorf("%w: ai config: EmbeddingModel is required", core.ErrConfiguration)
	}
	if c.GenerationModel == "" {
		return fmt.Errorf("%w: ai config: GenerationModel is required", core.ErrConfiguration)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: ai config: Temperature must be between 0 and 2", core.ErrConfiguration)
	}
	t := c.Timeouts
	if t.Embed < 0 || t.Retrieve < 0 || t.Rerank < 0 || t.Generate < 0 {
		return fmt.Errorf("%w: ai config: timeouts cannot be negative", core.ErrConfiguration)
	}
	return nil
}
