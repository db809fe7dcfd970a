package mock

import (
	"context"
	"sync"
	"unicode/utf8"
)

// MockGenerator is a test double for ai.Generator.
type MockGenerator struct {
	// GenerateFunc is called by Generate if set.
	GenerateFunc func(ctx context.Context, prompt string) (string, error)

	mu        sync.Mutex
	responses []string
	prompts   []string
}

// NewMockGenerator creates a generator returning responses in order. After the
// last response it keeps returning the last one.
func NewMockGenerator(responses ...string) *MockGenerator {
	return &MockGenerator{responses: responses}
}

// Generate records prompt and returns the next configured response.
func (m *MockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	call := len(m.prompts) - 1
	fn := m.GenerateFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, prompt)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return pick(m.responses, call), nil
}

// CallCount returns the number of times Generate was called.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// Prompts returns every prompt received, in call order.
func (m *MockGenerator) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// MockStreamer is a test double for ai.Streamer. Each response is emitted as
// fragments of FragmentSize runes.
type MockStreamer struct {
	// StreamFunc is called by Stream if set.
	StreamFunc func(ctx context.Context, prompt string, onFragment func(string) error) (string, error)

	// FragmentSize is the number of runes per fragment. Defaults to 4.
	FragmentSize int

	mu        sync.Mutex
	responses []string
	prompts   []string
}

// NewMockStreamer creates a streamer emitting responses in order. After the
// last response it keeps emitting the last one.
func NewMockStreamer(responses ...string) *MockStreamer {
	return &MockStreamer{responses: responses, FragmentSize: 4}
}

// Stream records prompt and emits the next configured response in fragments.
func (m *MockStreamer) Stream(ctx context.Context, prompt string, onFragment func(string) error) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	call := len(m.prompts) - 1
	fn := m.StreamFunc
	size := m.FragmentSize
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, prompt, onFragment)
	}
	if size <= 0 {
		size = 4
	}

	response := pick(m.responses, call)
	for _, fragment := range Fragments(response, size) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := onFragment(fragment); err != nil {
			return "", err
		}
	}
	return response, nil
}

// CallCount returns the number of times Stream was called.
func (m *MockStreamer) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// Prompts returns every prompt received, in call order.
func (m *MockStreamer) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// Fragments splits s into pieces of at most size runes.
func Fragments(s string, size int) []string {
	var out []string
	for len(s) > 0 {
		end, n := 0, 0
		for end < len(s) && n < size {
			_, w := utf8.DecodeRuneInString(s[end:])
			end += w
			n++
		}
		out = append(out, s[:end])
		s = s[end:]
	}
	return out
}

func pick(responses []string, call int) string {
	if len(responses) == 0 {
		return ""
	}
	if call >= len(responses) {
		return responses[len(responses)-1]
	}
	return responses[call]
}
