package logger

import (
	"context"
	"sync"
)

// Entry is one record captured by a Recorder.
type Entry struct {
	Level     string
	Component string
	Message   string
	Err       error
	Fields    map[string]interface{}
}

// Recorder is an in-memory Logger used in tests to assert on emitted entries.
type Recorder struct {
	mu        *sync.Mutex
	entries   *[]Entry
	component string
	base      []Field
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{mu: &sync.Mutex{}, entries: &[]Entry{}}
}

func (r *Recorder) Debug(ctx context.Context, msg string, fields ...Field) {
	r.record("debug", msg, nil, fields)
}

func (r *Recorder) Info(ctx context.Context, msg string, fields ...Field) {
	r.record("info", msg, nil, fields)
}

func (r *Recorder) Warn(ctx context.Context, msg string, fields ...Field) {
	r.record("warn", msg, nil, fields)
}

func (r *Recorder) Error(ctx context.Context, msg string, err error, fields ...Field) {
	r.record("error", msg, err, fields)
}

func (r *Recorder) WithFields(fields ...Field) Logger {
	base := append(append([]Field{}, r.base...), fields...)
	return &Recorder{mu: r.mu, entries: r.entries, component: r.component, base: base}
}

func (r *Recorder) WithComponent(component string) Logger {
	return &Recorder{mu: r.mu, entries: r.entries, component: component, base: r.base}
}

func (r *Recorder) record(level, msg string, err error, fields []Field) {
	e := Entry{Level: level, Component: r.component, Message: msg, Err: err, Fields: map[string]interface{}{}}
	for _, f := range r.base {
		e.Fields[f.Key] = f.Value
	}
	for _, f := range fields {
		e.Fields[f.Key] = f.Value
	}
	r.mu.Lock()
	*r.entries = append(*r.entries, e)
	r.mu.Unlock()
}

// Entries returns a snapshot of all captured entries.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), (*r.entries)...)
}

// Messages returns the entries whose message equals msg.
func (r *Recorder) Messages(msg string) []Entry {
	var out []Entry
	for _, e := range r.Entries() {
		if e.Message == msg {
			out = append(out, e)
		}
	}
	return out
}
