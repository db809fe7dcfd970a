package retrieval

import "errors"

var (
	// ErrStrategyRequired is returned when a Merger is built without strategies.
	ErrStrategyRequired = errors.New("at least one retrieval strategy required")

	// ErrChunkRepositoryRequired is returned when a chunk repository is not provided.
	ErrChunkRepositoryRequired = errors.New("chunk repository required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrGenerationClientRequired is returned when a generation client is not provided.
	ErrGenerationClientRequired = errors.New("generation client required")

	// ErrPoolRequired is returned when a worker pool is not provided.
	ErrPoolRequired = errors.New("worker pool required")
)
