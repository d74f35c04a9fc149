// Package trace records task executions as JSON lines. Recording is
// strictly runner-side: the pipeline stages know nothing about tracing,
// a runner times each task around Exec and appends one event per call.
package trace

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/francoispqt/gojay"
)

// Event is one task execution.
type Event struct {
	Time   time.Time
	Module string
	Task   string
	Status int
	Dur    time.Duration
}

// MarshalJSONObject encodes the event for the JSON-lines stream.
func (e *Event) MarshalJSONObject(enc *gojay.Encoder) {
	enc.StringKey("ts", e.Time.Format(time.RFC3339Nano))
	enc.StringKey("module", e.Module)
	enc.StringKey("task", e.Task)
	enc.IntKey("status", e.Status)
	enc.Int64Key("dur_ns", e.Dur.Nanoseconds())
}

// IsNil reports whether the event is empty.
func (e *Event) IsNil() bool { return e == nil }

// Recorder appends events to a writer, one JSON object per line. It is
// safe for concurrent use by parallel workers.
type Recorder struct {
	mu     sync.Mutex
	w      io.Writer
	c      io.Closer
	events uint64
}

// NewRecorder wraps an open writer.
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{w: w}
}

// NewFileRecorder creates or truncates path and records into it.
func NewFileRecorder(path string) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &Recorder{w: f, c: f}, nil
}

// Record appends one event stamped now.
func (r *Recorder) Record(module, task string, status int, dur time.Duration) error {
	ev := Event{
		Time:   time.Now(),
		Module: module,
		Task:   task,
		Status: status,
		Dur:    dur,
	}
	blob, err := gojay.MarshalJSONObject(&ev)
	if err != nil {
		return err
	}
	blob = append(blob, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.w.Write(blob); err != nil {
		return err
	}
	r.events++
	return nil
}

// Events returns the number of recorded events.
func (r *Recorder) Events() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events
}

// Close flushes the underlying file when the recorder owns one.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.c == nil {
		return nil
	}
	return r.c.Close()
}
