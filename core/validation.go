package core

import (
	"fmt"
	"path/filepath"
	"time"
)

// ValidateSourceDescriptor checks that a descriptor can be scanned.
func ValidateSourceDescriptor(src *SourceDescriptor) error {
	if src == nil {
		return fmt.Errorf("%w: descriptor is nil", ErrInvalidSource)
	}
	if src.Root == "" {
		return fmt.Errorf("%w: root is required", ErrInvalidSource)
	}
	if src.Category == "" {
		return fmt.Errorf("%w: category is required for %s", ErrInvalidSource, src.Root)
	}
	for _, pattern := range src.Patterns {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return fmt.Errorf("%w: pattern %q: %w", ErrInvalidSource, pattern, err)
		}
	}
	return nil
}

// ValidateTurn checks that a conversation turn can be stored.
func ValidateTurn(turn *ConversationTurn) error {
	if turn == nil {
		return fmt.Errorf("%w: turn is nil", ErrInvalidTurn)
	}
	if turn.Question == "" {
		return fmt.Errorf("%w: %w", ErrInvalidTurn, ErrEmptyContent)
	}
	if turn.Answer == "" {
		return fmt.Errorf("%w: answer: %w", ErrInvalidTurn, ErrEmptyContent)
	}
	if !IsValidTimestamp(turn.Timestamp) {
		return fmt.Errorf("%w: timestamp cannot be in the future", ErrInvalidTurn)
	}
	return nil
}

// IsValidTimestamp reports whether ts is not in the future.
func IsValidTimestamp(ts time.Time) bool {
	return !ts.After(time.Now())
}
