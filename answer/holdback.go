package answer

import (
	"strings"
	"unicode/utf8"

	"github.com/poiesic/ragsync/core"
)

var refusalCore = trimRefusalNoise(core.RefusalSentinel)

// trimRefusalNoise strips whitespace, quotes and closing punctuation that
// models add around a verbatim phrase.
func trimRefusalNoise(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"'`“”「」")
	s = strings.TrimRight(s, ".。!！ \t\r\n")
	return strings.TrimSpace(s)
}

// isRefusal reports whether text is the refusal sentinel, ignoring
// surrounding whitespace, quotes and the final period.
func isRefusal(text string) bool {
	return trimRefusalNoise(text) == refusalCore
}

// mayBecomeRefusal reports whether more output could still turn text into
// the refusal sentinel.
func mayBecomeRefusal(text string) bool {
	lead := strings.TrimLeft(strings.TrimSpace(text), "\"'`“「")
	return strings.HasPrefix(core.RefusalSentinel, lead) || isRefusal(text)
}

// holdback forwards streamed fragments, buffering output for as long as it
// could still be the refusal sentinel.
type holdback struct {
	emit    func(string) error
	text    strings.Builder
	pending strings.Builder
	emitted bool
}

func newHoldback(emit func(string) error) *holdback {
	return &holdback{emit: emit}
}

// Write accepts the next fragment.
func (h *holdback) Write(fragment string) error {
	h.text.WriteString(fragment)
	if h.emitted {
		return h.send(fragment)
	}
	h.pending.WriteString(fragment)
	if mayBecomeRefusal(h.text.String()) {
		return nil
	}
	buffered := h.pending.String()
	h.pending.Reset()
	return h.send(buffered)
}

// Finish flushes held output unless the complete text is a refusal.
// It reports whether the text was a refusal or empty.
func (h *holdback) Finish() (refused bool, err error) {
	full := h.text.String()
	if strings.TrimSpace(full) == "" || isRefusal(full) {
		return true, nil
	}
	buffered := h.pending.String()
	h.pending.Reset()
	return false, h.send(buffered)
}

// Reset discards everything written so far. It must not be called after
// output was emitted.
func (h *holdback) Reset() {
	h.text.Reset()
	h.pending.Reset()
}

// Emitted reports whether any output has been forwarded.
func (h *holdback) Emitted() bool { return h.emitted }

// Len returns the number of bytes written.
func (h *holdback) Len() int { return h.text.Len() }

// Text returns everything written.
func (h *holdback) Text() string { return h.text.String() }

func (h *holdback) send(s string) error {
	if s == "" {
		return nil
	}
	h.emitted = true
	return h.emit(s)
}

// windows cuts s into pieces of at most size runes.
func windows(s string, size int) []string {
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
