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
	"log/slog"
	"strings"

	"github.com/poiesic/ragsync/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Generator implements both ai.Generator and ai.Streamer on top of an
// OpenAI-compatible chat completion API. Which capability is exposed to the
// rest of the system is decided by Provider from Config.Streaming.
type Generator struct {
	client      llms.Model
	temperature float64
	logger      *slog.Logger
}

func newGenerator(config *ai.Config) (*Generator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.GenerationHost),
		openai.WithToken(config.APIKey),
		openai.WithModel(config.GenerationModel),
	)
	if err != nil {
		return nil, err
	}
	return newGeneratorWithModel(client, config.Temperature), nil
}

func newGeneratorWithModel(client llms.Model, temperature float64) *Generator {
	return &Generator{
		client:      client,
		temperature: temperature,
		logger:      slog.Default().With("component", "openai-generator"),
	}
}

// NewGenerator creates a generation client tagged with the capability the
// configuration selects.
func NewGenerator(config *ai.Config) (ai.GenerationClient, error) {
	g, err := newGenerator(config)
	if err != nil {
		return nil, err
	}
	return g.variant(config.Streaming), nil
}

func (g *Generator) variant(streaming bool) ai.GenerationClient {
	if streaming {
		return ai.StreamingClient{Streamer: g}
	}
	return ai.BlockingClient{Generator: g}
}

func humanMessage(prompt string) []llms.MessageContent {
	return []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(prompt)},
		},
	}
}

// Generate returns the complete response for prompt.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	response, err := g.client.GenerateContent(ctx, humanMessage(prompt), llms.WithTemperature(g.temperature))
	if err != nil {
		g.logger.Error("failed to generate content", "err", err)
		return "", err
	}
	if len(response.Choices) < 1 {
		return "", ai.ErrEmptyResponse
	}
	return response.Choices[0].Content, nil
}

// Stream forwards each fragment to onFragment as the model produces it and
// returns the concatenated response. Servers that ignore the stream flag and
// reply in one piece are handled by forwarding the whole reply as one fragment.
func (g *Generator) Stream(ctx context.Context, prompt string, onFragment func(string) error) (string, error) {
	var sb strings.Builder
	response, err := g.client.GenerateContent(ctx, humanMessage(prompt),
		llms.WithTemperature(g.temperature),
		llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			sb.Write(chunk)
			return onFragment(string(chunk))
		}),
	)
	if err != nil {
		g.logger.Error("failed to stream content", "err", err)
		return "", err
	}
	if sb.Len() > 0 {
		return sb.String(), nil
	}
	if len(response.Choices) < 1 {
		return "", ai.ErrEmptyResponse
	}
	full := response.Choices[0].Content
	if full != "" {
		if err := onFragment(full); err != nil {
			return "", err
		}
	}
	return full, nil
}
