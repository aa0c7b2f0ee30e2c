package changelog

import (
	"context"
	"errors"
	"sync"
)

// Sink receives change log entries at the end of each cycle.
type Sink interface {
	Write(ctx context.Context, entries []Entry) error
	Close() error
}

// Discard drops every entry.
var Discard Sink = discard{}

type discard struct{}

func (discard) Write(context.Context, []Entry) error { return nil }
func (discard) Close() error                         { return nil }

// MemorySink keeps entries in memory.
type MemorySink struct {
	mu      sync.Mutex
	entries []Entry
}

func (m *MemorySink) Write(_ context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entries...)
	return nil
}

func (m *MemorySink) Close() error { return nil }

// Entries returns a copy of everything written so far.
func (m *MemorySink) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}

// Reset drops the collected entries.
func (m *MemorySink) Reset() {
	m.mu.Lock()
	m.entries = nil
	m.mu.Unlock()
}

type cycleSink struct {
	Sink
	cycle string
}

// WithCycle stamps every entry written through the returned sink with the
// given cycle id. Closing it does not close s.
func WithCycle(s Sink, cycle string) Sink {
	return cycleSink{Sink: s, cycle: cycle}
}

func (c cycleSink) Write(ctx context.Context, entries []Entry) error {
	for i := range entries {
		entries[i].Cycle = c.cycle
	}
	return c.Sink.Write(ctx, entries)
}

func (c cycleSink) Close() error { return nil }

type tee []Sink

// Tee writes every entry to each of sinks in order. Discard sinks are
// dropped; a single remaining sink is returned as is.
func Tee(sinks ...Sink) Sink {
	var t tee
	for _, s := range sinks {
		if s != nil && s != Discard {
			t = append(t, s)
		}
	}
	switch len(t) {
	case 0:
		return Discard
	case 1:
		return t[0]
	}
	return t
}

func (t tee) Write(ctx context.Context, entries []Entry) error {
	for _, s := range t {
		if err := s.Write(ctx, entries); err != nil {
			return err
		}
	}
	return nil
}

func (t tee) Close() error {
	var errs []error
	for _, s := range t {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
