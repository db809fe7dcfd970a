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

package mock

import "github.com/poiesic/ragsync/ai"

// MockProvider is a test double for ai.Provider.
type MockProvider struct {
	embedder   *MockEmbedder
	generation ai.GenerationClient
	reranker   *MockReranker
}

// NewMockProvider creates a new mock provider with default mock services:
// a streaming generation client and an order-preserving reranker.
//
// Returns ai.Provider interface for consistency with production constructors.
// Use GetMockEmbedder()/GetMockReranker() to access concrete types for test assertions.
func NewMockProvider() ai.Provider {
	return &MockProvider{
		embedder:   NewMockEmbedder(),
		generation: ai.StreamingClient{Streamer: NewMockStreamer("")},
		reranker:   NewMockReranker(),
	}
}

// NewMockProviderWithServices creates a mock provider with custom mock services.
// A nil reranker models a provider with reranking disabled.
func NewMockProviderWithServices(embedder *MockEmbedder, generation ai.GenerationClient, reranker *MockReranker) ai.Provider {
	return &MockProvider{
		embedder:   embedder,
		generation: generation,
		reranker:   reranker,
	}
}

// Embedder returns the mock embedder.
func (p *MockProvider) Embedder() ai.Embedder {
	return p.embedder
}

// Generation returns the configured generation client.
func (p *MockProvider) Generation() ai.GenerationClient {
	return p.generation
}

// Reranker returns the mock reranker, or nil when none was configured.
func (p *MockProvider) Reranker() ai.Reranker {
	if p.reranker == nil {
		return nil
	}
	return p.reranker
}

// Close is a no-op for mock provider.
func (p *MockProvider) Close() error {
	return nil
}

// GetMockEmbedder returns the underlying mock embedder for test assertions.
func (p *MockProvider) GetMockEmbedder() *MockEmbedder {
	return p.embedder
}

// GetMockReranker returns the underlying mock reranker for test assertions.
func (p *MockProvider) GetMockReranker() *MockReranker {
	return p.reranker
}
