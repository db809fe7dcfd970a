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

package answer

import (
	"time"

	"github.com/poiesic/ragsync/core"
)

// EventType identifies a step of the answer state machine.
type EventType string

const (
	EventProcessing      EventType = "processing"
	EventGenerationStart EventType = "generation_start"
	EventGenerationChunk EventType = "generation_chunk"
	EventGenerationEnd   EventType = "generation_end"
	EventError           EventType = "error"
	EventComplete        EventType = "complete"
)

// Terminal reports whether no event follows t.
func (t EventType) Terminal() bool {
	return t == EventError || t == EventComplete
}

// SourceRef names a document an answer was grounded on.
type SourceRef struct {
	Source   string `json:"source"`
	Category string `json:"category"`
}

// Event is one step of an answer stream. Which fields are set depends on Type:
// Chunk for GenerationChunk; Answer, Sources and Grounding for GenerationEnd
// and Complete; Message and Err for Error. QuestionIndex and TotalQuestions
// are set for events of a batch; Succeeded and Failed on the batch's final
// Complete.
type Event struct {
	Type      EventType      `json:"type"`
	Message   string         `json:"message,omitempty"`
	Chunk     string         `json:"chunk,omitempty"`
	Answer    string         `json:"answer,omitempty"`
	Sources   []SourceRef    `json:"sources,omitempty"`
	Grounding core.Grounding `json:"grounding,omitempty"`
	Err       error          `json:"-"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`

	QuestionIndex  int `json:"question_index,omitempty"`
	TotalQuestions int `json:"total_questions,omitempty"`
	Succeeded      int `json:"succeeded,omitempty"`
	Failed         int `json:"failed,omitempty"`
}
