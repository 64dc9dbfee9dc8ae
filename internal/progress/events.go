package progress

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// EventLog writes machine-readable JSON lines: one event per progress update
// and per job state change. It implements Reporter.
type EventLog struct {
	log   zerolog.Logger
	close func() error
}

// NewEventLog writes events to w.
func NewEventLog(w io.Writer) *EventLog {
	return &EventLog{
		log:   zerolog.New(w).With().Timestamp().Logger(),
		close: func() error { return nil },
	}
}

// OpenEventLog appends events to the file at path, creating it and its
// parent directory if needed.
func OpenEventLog(path string) (*EventLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	e := NewEventLog(f)
	e.close = f.Close
	return e, nil
}

// Close closes the underlying file, if any.
func (e *EventLog) Close() error { return e.close() }

func (e *EventLog) Update(task string, done, total int) {
	e.log.Info().
		Str("event", "progress").
		Str("task", task).
		Int("done", done).
		Int("total", total).
		Send()
}

// BatchStarted records the classification outcome of a run.
func (e *EventLog) BatchStarted(counts map[string]int) {
	ev := e.log.Info().Str("event", "batch.started")
	for k, v := range counts {
		ev = ev.Int(k, v)
	}
	ev.Send()
}

// JobStarted records the start of one compression job.
func (e *EventLog) JobStarted(id, source, output string) {
	e.log.Info().
		Str("event", "job.started").
		Str("job_id", id).
		Str("source", source).
		Str("output", output).
		Send()
}

// JobFinished records the outcome of one job. err is nil on success.
func (e *EventLog) JobFinished(id, source string, frames int, elapsed time.Duration, err error) {
	ev := e.log.Info()
	if err != nil {
		ev = e.log.Error().Err(err)
	}
	ev.Str("event", "job.finished").
		Str("job_id", id).
		Str("source", source).
		Int("frames", frames).
		Dur("elapsed", elapsed).
		Bool("ok", err == nil).
		Send()
}
