package corpus

import (
	"fmt"
	"time"
)

// Report summarizes one applied synchronization pass.
type Report struct {
	New           int
	Modified      int
	Deleted       int
	Unchanged     int
	ChunksWritten int
	ChunksRemoved int
	FailedPaths   []string // Files left untouched because they could not be processed
	RebuildErr    error    // Set when a derived index could not be rebuilt
	Duration      time.Duration
}

// Changed reports whether the pass mutated the index.
func (r *Report) Changed() bool {
	return r.New+r.Modified+r.Deleted > 0
}

func (r *Report) String() string {
	return fmt.Sprintf("new=%d modified=%d deleted=%d unchanged=%d failed=%d chunks_written=%d chunks_removed=%d (%s)",
		r.New, r.Modified, r.Deleted, r.Unchanged, len(r.FailedPaths),
		r.ChunksWritten, r.ChunksRemoved, r.Duration.Round(time.Millisecond))
}
