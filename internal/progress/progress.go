// Package progress reports batch and per-video progress. Reporters are
// injected into the classifier and the compressor so both stay free of any
// particular output format.
package progress

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"
)

// Reporter receives progress updates. total is 0 when unknown.
// Implementations must be safe for concurrent use: jobs report from their
// own goroutines.
type Reporter interface {
	Update(task string, done, total int)
}

// Nop discards every update.
type Nop struct{}

func (Nop) Update(string, int, int) {}

// Multi fans updates out to several reporters.
type Multi []Reporter

func (m Multi) Update(task string, done, total int) {
	for _, r := range m {
		r.Update(task, done, total)
	}
}

// Logger is the minimal logging interface needed by Console.
type Logger interface {
	Info(string, ...interface{})
}

// Console writes one log line per update, with elapsed time and rate
// measured from the first update of each task. Tasks are keyed by their full
// name and logged by base name, so jobs should report under their source
// path and call Done when they finish.
type Console struct {
	Log Logger
	// Unit names what done counts ("frames", "files").
	Unit string

	mu     sync.Mutex
	starts map[string]time.Time
	now    func() time.Time
}

// NewConsole returns a Console logging to log.
func NewConsole(log Logger, unit string) *Console {
	return &Console{Log: log, Unit: unit, starts: make(map[string]time.Time), now: time.Now}
}

func (c *Console) Update(task string, done, total int) {
	c.mu.Lock()
	start, ok := c.starts[task]
	if !ok {
		start = c.now()
		c.starts[task] = start
	}
	elapsed := c.now().Sub(start)
	c.mu.Unlock()

	count := fmt.Sprintf("%d", done)
	if total > 0 {
		count = fmt.Sprintf("%d/%d", done, total)
	}
	c.Log.Info("%s: %s %s (%s)", filepath.Base(task), count, c.Unit, Rate(done, elapsed))
}

// Done forgets the start time of task.
func (c *Console) Done(task string) {
	c.mu.Lock()
	delete(c.starts, task)
	c.mu.Unlock()
}

// Rate formats elapsed time and the per-second rate, e.g. "1m05s, 23.1/s".
func Rate(done int, elapsed time.Duration) string {
	elapsed = elapsed.Round(time.Second)
	if elapsed <= 0 {
		return "0s"
	}
	return fmt.Sprintf("%s, %.1f/s", elapsed, float64(done)/elapsed.Seconds())
}
