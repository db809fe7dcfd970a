package answer

import "errors"

var (
	// ErrRetrieverRequired is returned when a retriever is not provided.
	ErrRetrieverRequired = errors.New("retriever required")

	// ErrGenerationClientRequired is returned when a generation client is not provided.
	ErrGenerationClientRequired = errors.New("generation client required")

	// ErrEmptyQuestion is reported when a blank question is asked.
	ErrEmptyQuestion = errors.New("question cannot be empty")
)
