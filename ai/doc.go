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

// Package ai provides abstractions for the external AI services used by ragsync.
//
// The package defines the collaborator contracts the rest of the module depends
// on, so that synchronization, retrieval and answering can be tested without a
// model server:
//
//   - Embedder: generates vector embeddings from text
//   - GenerationClient: a BlockingClient or a StreamingClient
//   - Reranker: orders passages by relevance to a query
//   - Provider: aggregates the services for initialization and shutdown
//
// # Generation variants
//
// Whether a generation collaborator can stream is a property of its type, not
// something discovered at call time. Consumers switch on the variant:
//
//	switch c := provider.Generation().(type) {
//	case ai.StreamingClient:
//	    c.Streamer.Stream(ctx, prompt, onFragment)
//	case ai.BlockingClient:
//	    c.Generator.Generate(ctx, prompt)
//	}
//
// # Call policy
//
// Every external call runs under the timeout configured for its category
// (Timeouts) and is retried at most once (RetryOnce). A call that still fails
// carries core.ErrTransientExternal and the caller degrades.
//
// # Implementation Packages
//
//   - ai/openai: production implementation using OpenAI-compatible APIs via langchaingo
//   - ai/mock: test doubles for unit testing without external dependencies
package ai
