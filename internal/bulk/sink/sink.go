// Package sink provides destinations for encoded bulk-import records
package sink

import (
	"context"
	"errors"
	"sync"

	"github.com/systemshift/graphbulk/internal/bulk/encoding"
)

// ErrClosed is returned when writing to a closed sink
var ErrClosed = errors.New("sink closed")

// Sink receives encoded records from an import session. All nodes are written
// and flushed before the first edge arrives.
type Sink interface {
	// WriteNode stores a node record registered under ordinal
	WriteNode(ctx context.Context, ordinal int64, rec encoding.BinaryRecord) error

	// WriteEdge stores an edge record
	WriteEdge(ctx context.Context, rec encoding.BinaryRecord) error

	// Flush makes everything written so far durable
	Flush(ctx context.Context) error

	// Close flushes and releases the sink
	Close(ctx context.Context) error
}

// Record is an encoded record together with its kind
type Record struct {
	Kind    encoding.EntityKind
	Ordinal int64 // nodes only
	Data    encoding.BinaryRecord
}

// MemorySink keeps records in memory
type MemorySink struct {
	mu      sync.Mutex
	records []Record
	flushes int
	closed  bool
}

// NewMemorySink creates an empty in-memory sink
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) WriteNode(ctx context.Context, ordinal int64, rec encoding.BinaryRecord) error {
	return s.append(Record{Kind: encoding.KindNode, Ordinal: ordinal, Data: rec})
}

func (s *MemorySink) WriteEdge(ctx context.Context, rec encoding.BinaryRecord) error {
	return s.append(Record{Kind: encoding.KindEdge, Data: rec})
}

func (s *MemorySink) append(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.records = append(s.records, r)
	return nil
}

func (s *MemorySink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.flushes++
	return nil
}

func (s *MemorySink) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Records returns a copy of everything written
func (s *MemorySink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Flushes returns how many times Flush was called
func (s *MemorySink) Flushes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushes
}
