package ai

import "errors"

var (
	// ErrUnsupportedClient is returned when a GenerationClient variant is not recognized.
	ErrUnsupportedClient = errors.New("unsupported generation client")

	// ErrEmptyResponse is returned when a model produced no choices.
	ErrEmptyResponse = errors.New("empty response from model")
)
