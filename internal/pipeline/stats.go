package pipeline

import (
	"sync"
	"time"
)

// RunStats tracks aggregate counters and byte totals across a batch run.
// Jobs update it concurrently through the record methods.
type RunStats struct {
	mu sync.Mutex

	Discovered int
	SourceBad  int
	Finished   int // Outputs already complete before this run.
	Recovered  int // Broken outputs deleted and requeued.
	Planned    int

	Done             int
	Failed           int
	Frames           int
	TotalInputBytes  int64
	TotalOutputBytes int64
	Elapsed          time.Duration
}

func (s *RunStats) recordDone(frames int, in, out int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Done++
	s.Frames += frames
	s.TotalInputBytes += in
	s.TotalOutputBytes += out
}

func (s *RunStats) recordFailed() {
	s.mu.Lock()
	s.Failed++
	s.mu.Unlock()
}

// SpaceSaved returns the aggregate byte difference between inputs and outputs.
// Positive means outputs are smaller; negative means they grew.
func (s *RunStats) SpaceSaved() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.TotalInputBytes - s.TotalOutputBytes
}
