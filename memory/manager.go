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

package memory

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/poiesic/ragsync/core"
)

// Defaults.
const (
	DefaultBudget       = 20000
	DefaultMinRounds    = 3
	DefaultContextTurns = 5
)

// Match is a search hit. Position is the index of the turn in the buffer,
// 0 being the oldest.
type Match struct {
	Position int
	Turn     core.ConversationTurn
}

// Stats summarizes the buffer.
type Stats struct {
	Turns        int       `json:"turns"`
	TotalChars   int       `json:"total_chars"`
	Budget       int       `json:"budget"`
	UsagePercent float64   `json:"usage_percent"`
	MinRounds    int       `json:"min_rounds"`
	Oldest       time.Time `json:"oldest,omitempty"`
	Newest       time.Time `json:"newest,omitempty"`
}

// Manager is a bounded, concurrency-safe conversation buffer.
type Manager struct {
	budget    int
	minRounds int
	logger    *slog.Logger

	mu         sync.RWMutex
	turns      []core.ConversationTurn
	totalChars int
}

// Option configures a Manager.
type Option func(*Manager) error

// WithBudget sets the soft character budget.
// Default is DefaultBudget.
func WithBudget(chars int) Option {
	return func(m *Manager) error {
		if chars < 1 {
			return fmt.Errorf("%w: memory budget must be positive, got %d", core.ErrConfiguration, chars)
		}
		m.budget = chars
		return nil
	}
}

// WithMinRounds sets the number of turns never evicted by the budget.
// Default is DefaultMinRounds.
func WithMinRounds(n int) Option {
	return func(m *Manager) error {
		if n < 0 {
			return fmt.Errorf("%w: minimum rounds cannot be negative, got %d", core.ErrConfiguration, n)
		}
		m.minRounds = n
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) error {
		if logger == nil {
			logger = slog.Default()
		}
		m.logger = logger
		return nil
	}
}

// New creates an empty Manager.
func New(opts ...Option) (*Manager, error) {
	m := &Manager{
		budget:    DefaultBudget,
		minRounds: DefaultMinRounds,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	m.logger = m.logger.With("component", "memory")
	return m, nil
}

// Add appends turn and evicts the oldest turns that no longer fit. A zero
// Timestamp is set to the current time.
func (m *Manager) Add(turn core.ConversationTurn) error {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}
	if err := core.ValidateTurn(&turn); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, turn)
	m.totalChars += turn.Length()
	if evicted := m.evict(); evicted > 0 {
		m.logger.Debug("evicted turns over budget", "evicted", evicted, "remaining", len(m.turns), "chars", m.totalChars)
	}
	return nil
}

// evict drops the oldest turns while over budget and above the floor.
// Callers hold the write lock.
func (m *Manager) evict() int {
	n := 0
	for m.totalChars > m.budget && len(m.turns)-n > m.minRounds {
		m.totalChars -= m.turns[n].Length()
		n++
	}
	if n > 0 {
		m.turns = slices.Clone(m.turns[n:])
	}
	return n
}

// Len returns the number of turns held.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.turns)
}

// Context renders the last n turns, oldest first, for prompt injection.
// n <= 0 renders every turn. An empty buffer renders as "".
func (m *Manager) Context(n int) string {
	turns := m.Recent(n)
	var sb strings.Builder
	for i, t := range turns {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("Q: ")
		sb.WriteString(t.Question)
		sb.WriteString("\nA: ")
		sb.WriteString(t.Answer)
	}
	return sb.String()
}

// Recent returns a copy of the last n turns, oldest first. n <= 0 returns all.
func (m *Manager) Recent(n int) []core.ConversationTurn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	start := 0
	if n > 0 && n < len(m.turns) {
		start = len(m.turns) - n
	}
	return slices.Clone(m.turns[start:])
}

// Search returns turns whose question or answer contains keyword, ignoring
// case, oldest first. limit <= 0 returns every match.
func (m *Manager) Search(keyword string, limit int) []Match {
	needle := strings.ToLower(strings.TrimSpace(keyword))
	matches := []Match{}
	if needle == "" {
		return matches
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for i, t := range m.turns {
		if strings.Contains(strings.ToLower(t.Question), needle) ||
			strings.Contains(strings.ToLower(t.Answer), needle) {
			matches = append(matches, Match{Position: i, Turn: t})
			if limit > 0 && len(matches) == limit {
				break
			}
		}
	}
	return matches
}

// Stats returns a summary of the buffer.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Stats{
		Turns:        len(m.turns),
		TotalChars:   m.totalChars,
		Budget:       m.budget,
		UsagePercent: float64(m.totalChars) * 100 / float64(m.budget),
		MinRounds:    m.minRounds,
	}
	if len(m.turns) > 0 {
		s.Oldest = m.turns[0].Timestamp
		s.Newest = m.turns[len(m.turns)-1].Timestamp
	}
	return s
}

// RemoveOldest keeps only the newest keep turns and returns how many were removed.
func (m *Manager) RemoveOldest(keep int) int {
	keep = max(keep, 0)

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := len(m.turns) - keep
	if removed <= 0 {
		return 0
	}
	for _, t := range m.turns[:removed] {
		m.totalChars -= t.Length()
	}
	m.turns = slices.Clone(m.turns[removed:])
	return removed
}

// Clear empties the buffer and returns how many turns were removed.
func (m *Manager) Clear() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.turns)
	m.turns = nil
	m.totalChars = 0
	return n
}

// replace swaps in turns and applies the budget. Callers validate turns.
func (m *Manager) replace(turns []core.ConversationTurn) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = turns
	m.totalChars = 0
	for _, t := range turns {
		m.totalChars += t.Length()
	}
	m.evict()
	return len(m.turns)
}
