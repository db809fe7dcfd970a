package core

import (
	"errors"
	"testing"
	"time"
)

func TestValidateSourceDescriptor(t *testing.T) {
	tests := []struct {
		name    string
		src     *SourceDescriptor
		wantErr error
	}{
		{
			name:    "valid descriptor",
			src:     &SourceDescriptor{Root: "data", Category: "docs", Patterns: []string{"*.txt"}, Enabled: true},
			wantErr: nil,
		},
		{
			name:    "valid without patterns",
			src:     &SourceDescriptor{Root: "data", Category: "docs"},
			wantErr: nil,
		},
		{
			name:    "nil descriptor",
			src:     nil,
			wantErr: ErrInvalidSource,
		},
		{
			name:    "missing root",
			src:     &SourceDescriptor{Category: "docs"},
			wantErr: ErrInvalidSource,
		},
		{
			name:    "missing category",
			src:     &SourceDescriptor{Root: "data"},
			wantErr: ErrInvalidSource,
		},
		{
			name:    "malformed pattern",
			src:     &SourceDescriptor{Root: "data", Category: "docs", Patterns: []string{"["}},
			wantErr: ErrInvalidSource,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSourceDescriptor(tt.src)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateTurn(t *testing.T) {
	past := time.Now().Add(-time.Minute)

	tests := []struct {
		name    string
		turn    *ConversationTurn
		wantErr error
	}{
		{
			name:    "valid turn",
			turn:    &ConversationTurn{Question: "q", Answer: "a", Timestamp: past},
			wantErr: nil,
		},
		{
			name:    "nil turn",
			turn:    nil,
			wantErr: ErrInvalidTurn,
		},
		{
			name:    "empty question",
			turn:    &ConversationTurn{Answer: "a", Timestamp: past},
			wantErr: ErrEmptyContent,
		},
		{
			name:    "empty answer",
			turn:    &ConversationTurn{Question: "q", Timestamp: past},
			wantErr: ErrEmptyContent,
		},
		{
			name:    "future timestamp",
			turn:    &ConversationTurn{Question: "q", Answer: "a", Timestamp: time.Now().Add(time.Hour)},
			wantErr: ErrInvalidTurn,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTurn(tt.turn)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}
