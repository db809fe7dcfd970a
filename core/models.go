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

package core

import (
	"encoding/hex"
	"strconv"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// RefusalSentinel is the canonical answer meaning nothing could be derived
// from the available context.
const RefusalSentinel = "Based on the provided material, I cannot answer this question."

// SourceHash returns a short, deterministic hex digest of a source path.
// It is the stable prefix of every chunk id produced from that source.
func SourceHash(sourcePath string) string {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(sourcePath))
	return hex.EncodeToString(h.Sum(nil))
}

// ChunkID builds the id of the chunk at ordinal within sourcePath.
func ChunkID(sourcePath string, ordinal int) string {
	return SourceHash(sourcePath) + "_" + strconv.Itoa(ordinal)
}

// HashContent returns the hex BLAKE2b-256 digest of data.
// Any single-byte change in data yields a different digest.
func HashContent(data []byte) string {
	h, _ := blake2b.New(32, nil)
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SourceDescriptor configures one location the corpus is built from.
type SourceDescriptor struct {
	Root        string   `yaml:"root"`
	Patterns    []string `yaml:"patterns,omitempty"` // Empty matches every file
	Category    string   `yaml:"category"`
	Priority    int      `yaml:"priority"`
	Description string   `yaml:"description,omitempty"`
	Enabled     bool     `yaml:"enabled"`
}

// FileFingerprint identifies the content of a file at a point in time.
type FileFingerprint struct {
	Path    string    `json:"path"`
	ModTime time.Time `json:"mtime"`
	Size    int64     `json:"size"`
	Hash    string    `json:"hash"`
}

// Matches reports whether two fingerprints describe the same content.
// Only the content hash is compared; mtime and size are informational.
func (f FileFingerprint) Matches(other FileFingerprint) bool {
	return f.Hash == other.Hash
}

// Chunk is a contiguous slice of a source document and the unit of indexing.
type Chunk struct {
	ID          string            `json:"id"`
	Content     string            `json:"content"`
	Source      string            `json:"source"`
	Category    string            `json:"category"`
	Ordinal     int               `json:"ordinal"`
	Fingerprint FileFingerprint   `json:"fingerprint"` // Fingerprint of the source when this chunk was produced
	Metadata    map[string]string `json:"metadata,omitempty"`
	Vector      []float32         `json:"vector,omitempty"` // Embedding (populated before insertion)
}

// SourceRecord is the persisted state of one synchronized source file.
type SourceRecord struct {
	Fingerprint FileFingerprint `json:"fingerprint"`
	Category    string          `json:"category"`
	ChunkCount  int             `json:"chunk_count"`
	SyncedAt    time.Time       `json:"synced_at"`
}

// Candidate is a chunk returned by a retrieval strategy.
type Candidate struct {
	ChunkID  string
	Content  string
	Source   string
	Category string
	Ordinal  int
	Score    float32
	Strategy string // Name of the strategy that produced it
}

// CandidateFromChunk converts an indexed chunk into a retrieval candidate.
func CandidateFromChunk(c *Chunk, score float32, strategy string) Candidate {
	return Candidate{
		ChunkID:  c.ID,
		Content:  c.Content,
		Source:   c.Source,
		Category: c.Category,
		Ordinal:  c.Ordinal,
		Score:    score,
		Strategy: strategy,
	}
}

// Grounding records where an answer came from.
type Grounding int

const (
	// Grounded answers are derived from retrieved corpus content.
	Grounded Grounding = iota + 1
	// ModelKnowledge answers fall back to the model's general knowledge.
	ModelKnowledge
	// Refusal means no answer could be produced; the answer is RefusalSentinel.
	Refusal
)

func (g Grounding) String() string {
	switch g {
	case Grounded:
		return "grounded"
	case ModelKnowledge:
		return "model_knowledge"
	case Refusal:
		return "refusal"
	default:
		return "unknown"
	}
}

// ConversationTurn is one completed question and its final answer.
type ConversationTurn struct {
	Question    string    `json:"question"`
	Answer      string    `json:"answer"`
	Timestamp   time.Time `json:"timestamp"`
	Grounding   Grounding `json:"grounding"`
	SourceCount int       `json:"source_count"`
}

// Length is the number of characters the turn occupies in memory.
func (t ConversationTurn) Length() int {
	return len([]rune(t.Question)) + len([]rune(t.Answer))
}

// SyncPlan is the set of changes one synchronization pass will apply.
// A plan is consumed exactly once.
type SyncPlan struct {
	New       []FileFingerprint
	Modified  []FileFingerprint
	Unchanged []string
	Deleted   []string
	Failed    []string // Files that could not be fingerprinted; their records are left untouched

	// Categories maps each new or modified path to the category it is indexed under.
	Categories map[string]string

	consumed bool
}

// Empty reports whether applying the plan would mutate the index.
func (p *SyncPlan) Empty() bool {
	return len(p.New) == 0 && len(p.Modified) == 0 && len(p.Deleted) == 0
}

// Consume marks the plan as applied. It returns false if it was already consumed.
func (p *SyncPlan) Consume() bool {
	if p.consumed {
		return false
	}
	p.consumed = true
	return true
}

// Checkpoint records the outcome of the last completed pass of a named
// process ("sync", "reindex").
type Checkpoint struct {
	Process   string    `json:"process"`
	Files     int       `json:"files"`
	Chunks    int       `json:"chunks"`
	New       int       `json:"new"`
	Modified  int       `json:"modified"`
	Deleted   int       `json:"deleted"`
	Failed    int       `json:"failed"`
	UpdatedAt time.Time `json:"updated_at"`
}
