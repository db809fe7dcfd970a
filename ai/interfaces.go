package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator produces a complete response for a prompt in one blocking call.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Streamer produces a response incrementally. onFragment is invoked once per
// fragment in production order; returning an error from it aborts the stream.
// The complete response is returned when the stream ends.
type Streamer interface {
	Stream(ctx context.Context, prompt string, onFragment func(fragment string) error) (string, error)
}

// GenerationClient is a generation collaborator tagged with its capability.
// It is either a BlockingClient or a StreamingClient; callers switch on the
// concrete type instead of probing for methods.
type GenerationClient interface {
	generationClient()
}

// BlockingClient wraps a collaborator that only returns complete responses.
type BlockingClient struct {
	Generator Generator
}

// StreamingClient wraps a collaborator that can stream fragments.
type StreamingClient struct {
	Streamer Streamer
}

func (BlockingClient) generationClient()  {}
func (StreamingClient) generationClient() {}

// Complete runs prompt to completion on either variant and returns the full text.
// It is used where fragments are not needed (query expansion).
func Complete(ctx context.Context, client GenerationClient, prompt string) (string, error) {
	switch c := client.(type) {
	case BlockingClient:
		return c.Generator.Generate(ctx, prompt)
	case StreamingClient:
		return c.Streamer.Stream(ctx, prompt, func(string) error { return nil })
	default:
		return "", ErrUnsupportedClient
	}
}

// Reranker orders candidate passages by relevance to a query.
// Implementations must be thread-safe for concurrent use.
type Reranker interface {
	// Rerank returns indexes into passages, most relevant first, at most topN long.
	Rerank(ctx context.Context, query string, passages []string, topN int) ([]int, error)
}

// Provider aggregates AI services for convenient initialization and lifecycle management.
type Provider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// Generation returns the generation collaborator with its capability tag.
	Generation() GenerationClient

	// Reranker returns the relevance scorer, or nil when reranking is disabled.
	Reranker() Reranker

	// Close releases resources held by the provider and its services.
	Close() error
}
