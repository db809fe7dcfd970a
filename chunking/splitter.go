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

package chunking

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/ragsync/core"
	"github.com/tmc/langchaingo/textsplitter"
)

const (
	// DefaultChunkSize is the maximum chunk length in runes.
	DefaultChunkSize = 500

	// DefaultOverlap is the number of runes shared by neighboring chunks.
	DefaultOverlap = 150
)

// ErrInvalidChunking is returned for a chunk size or overlap that cannot work.
var ErrInvalidChunking = errors.New("invalid chunking parameters")

// separators are tried in order; CJK sentence punctuation sits between line
// breaks and spaces because CJK text rarely contains spaces.
var separators = []string{"\n\n", "\n", "。", "！", "？", "；", ". ", " ", ""}

const leadingPunctuation = "。！？；."

// Document is the text of one source file ready to be split.
type Document struct {
	Path        string
	Category    string
	Content     string
	Fingerprint core.FileFingerprint
	Metadata    map[string]string
}

// Splitter cuts documents into overlapping chunks.
// It is safe for concurrent use.
type Splitter struct {
	chunkSize int
	overlap   int
	splitter  textsplitter.RecursiveCharacter
}

// NewSplitter creates a splitter producing chunks of at most chunkSize runes
// where consecutive chunks share up to overlap runes.
func NewSplitter(chunkSize, overlap int) (*Splitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidChunking, chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("%w: overlap must be in [0, %d), got %d", ErrInvalidChunking, chunkSize, overlap)
	}

	return &Splitter{
		chunkSize: chunkSize,
		overlap:   overlap,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(overlap),
			textsplitter.WithSeparators(separators),
			textsplitter.WithLenFunc(utf8.RuneCountInString),
			textsplitter.WithKeepSeparator(true),
		),
	}, nil
}

// ChunkSize returns the configured maximum chunk length.
func (s *Splitter) ChunkSize() int { return s.chunkSize }

// Overlap returns the configured overlap.
func (s *Splitter) Overlap() int { return s.overlap }

// Split returns the chunks of doc in document order. Ordinals start at 0 and
// ids are derived from the document path, so re-splitting unchanged content
// yields identical chunks. Whitespace-only pieces are dropped and sentence
// punctuation the splitter left at the start of a piece is trimmed.
func (s *Splitter) Split(doc Document) ([]*core.Chunk, error) {
	pieces, err := s.splitter.SplitText(doc.Content)
	if err != nil {
		return nil, fmt.Errorf("split %s: %w", doc.Path, err)
	}

	chunks := make([]*core.Chunk, 0, len(pieces))
	for _, piece := range pieces {
		// Kept separators are attached to the start of the following piece.
		piece = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(piece), leadingPunctuation))
		if piece == "" {
			continue
		}
		ordinal := len(chunks)
		chunks = append(chunks, &core.Chunk{
			ID:          core.ChunkID(doc.Path, ordinal),
			Content:     piece,
			Source:      doc.Path,
			Category:    doc.Category,
			Ordinal:     ordinal,
			Fingerprint: doc.Fingerprint,
			Metadata:    maps.Clone(doc.Metadata),
		})
	}
	return chunks, nil
}
