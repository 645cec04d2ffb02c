package audit

import (
	"errors"
	"sync"
)

// Writer defines the interface for audit log writers.
//
// Write validates the event, sets HashPrev and Hash, persists it and
// returns only once the event is durable. An error means the audited
// operation must fail.
type Writer interface {
	Write(event *Event) error
	Close() error

	// LastHash returns the hash of the last written event, GenesisHash
	// before the first one.
	LastHash() string
}

// NopWriter is a no-op writer that discards all events.
// Used when audit logging is disabled.
type NopWriter struct{}

var _ Writer = NopWriter{}

func (NopWriter) Write(*Event) error { return nil }
func (NopWriter) Close() error       { return nil }
func (NopWriter) LastHash() string   { return GenesisHash }

// MultiWriter writes to multiple audit writers.
// If any writer fails, the write fails.
type MultiWriter struct {
	writers []Writer
}

var _ Writer = (*MultiWriter)(nil)

// NewMultiWriter creates a writer that writes to all provided writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write sends a copy of event to each writer so every chain hashes its own
// HashPrev.
func (m *MultiWriter) Write(event *Event) error {
	for i, w := range m.writers {
		e := *event
		if err := w.Write(&e); err != nil {
			return err
		}
		if i == 0 {
			event.HashPrev, event.Hash = e.HashPrev, e.Hash
		}
	}
	return nil
}

// Close closes every writer and joins their errors.
func (m *MultiWriter) Close() error {
	var errs []error
	for _, w := range m.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LastHash returns the chain head of the first writer.
func (m *MultiWriter) LastHash() string {
	if len(m.writers) > 0 {
		return m.writers[0].LastHash()
	}
	return GenesisHash
}

// MemoryWriter keeps a hash-chained trail in memory. The validation
// pipeline uses it to attach its events to a Report.
type MemoryWriter struct {
	mu     sync.Mutex
	events []Event
	chain  chain
}

var _ Writer = (*MemoryWriter)(nil)

// NewMemoryWriter creates an empty in-memory trail.
func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{chain: newChain(GenesisHash)}
}

func (m *MemoryWriter) Write(event *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.chain.seal(event); err != nil {
		return err
	}
	m.events = append(m.events, *event)
	return nil
}

func (m *MemoryWriter) Close() error { return nil }

func (m *MemoryWriter) LastHash() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chain.last
}

// Events returns a copy of the recorded events.
func (m *MemoryWriter) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}
