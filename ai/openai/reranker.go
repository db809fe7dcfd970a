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

package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/poiesic/ragsync/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Reranker implements ai.Reranker by asking a chat model for a listwise
// relevance ordering of the passages.
type Reranker struct {
	client llms.Model
	logger *slog.Logger
}

// ranking is the wrapper structure for the model's JSON response.
type ranking struct {
	Ranking []int `json:"ranking"`
}

func newReranker(config *ai.Config) (*Reranker, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.RerankHost),
		openai.WithToken(config.APIKey),
		openai.WithModel(config.RerankModel),
	)
	if err != nil {
		return nil, err
	}
	return newRerankerWithModel(client), nil
}

func newRerankerWithModel(client llms.Model) *Reranker {
	return &Reranker{
		client: client,
		logger: slog.Default().With("component", "openai-reranker"),
	}
}

// NewReranker creates a new reranker using the provided configuration.
//
// Returns ai.Reranker interface to enforce abstraction.
func NewReranker(config *ai.Config) (ai.Reranker, error) {
	return newReranker(config)
}

// Rerank returns passage indexes ordered by relevance, at most topN long.
// Indexes the model invents or repeats are dropped.
func (r *Reranker) Rerank(ctx context.Context, query string, passages []string, topN int) ([]int, error) {
	if len(passages) == 0 || topN <= 0 {
		return []int{}, nil
	}

	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(buildRerankSystemPrompt())},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(buildRerankUserPrompt(query, passages, topN))},
		},
	}

	// Try up to 3 times in case of malformed JSON
	var result ranking
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		response, err := r.client.GenerateContent(ctx, content, llms.WithTemperature(0.0), llms.WithJSONMode())
		if err != nil {
			r.logger.Error("failed to generate ranking", "attempt", attempt+1, "err", err)
			return nil, err
		}
		if len(response.Choices) < 1 {
			return nil, ai.ErrEmptyResponse
		}

		responseText := repairJSON(stripCodeFences(response.Choices[0].Content))
		if err := json.Unmarshal([]byte(responseText), &result); err != nil {
			lastErr = err
			r.logger.Warn("error parsing reranker response",
				"attempt", attempt+1,
				"response", responseText,
				"err", err)
			continue
		}
		lastErr = nil
		break
	}
	if lastErr != nil {
		return nil, fmt.Errorf("parse ranking: %w", lastErr)
	}

	order := sanitizeRanking(result.Ranking, len(passages), topN)
	r.logger.Debug("reranked passages", "passages", len(passages), "kept", len(order))
	return order, nil
}

// sanitizeRanking keeps in-range, first-seen indexes up to topN.
func sanitizeRanking(raw []int, n, topN int) []int {
	seen := make(map[int]struct{}, len(raw))
	order := make([]int, 0, min(topN, n))
	for _, idx := range raw {
		if idx < 0 || idx >= n {
			continue
		}
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		order = append(order, idx)
		if len(order) == topN {
			break
		}
	}
	return order
}
