// Package session runs bulk imports. A Session assigns every node a dense
// ordinal, enforces that all nodes are written and flushed before the first
// edge, and streams encoded records to a sink.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/systemshift/graphbulk/internal/bulk/encoding"
	"github.com/systemshift/graphbulk/internal/bulk/sink"
	"github.com/systemshift/graphbulk/internal/metrics"
)

var (
	// ErrDuplicateNode is returned when a node identifier is registered twice
	ErrDuplicateNode = errors.New("duplicate node identifier")

	// ErrPhaseViolation is returned for a node submitted after edges have started
	ErrPhaseViolation = errors.New("node submitted after edge phase began")

	// ErrSessionClosed is returned for any operation on a closed session
	ErrSessionClosed = errors.New("session closed")
)

// Phase is the stage of an import session
type Phase int

const (
	PhaseNodes Phase = iota
	PhaseEdges
	PhaseClosed
)

// String returns the phase name
func (p Phase) String() string {
	switch p {
	case PhaseNodes:
		return "nodes"
	case PhaseEdges:
		return "edges"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Policy decides what a bad record does to the rest of an import
type Policy int

const (
	// PolicySkip reports the bad record and carries on
	PolicySkip Policy = iota
	// PolicyAbort stops the import at the first bad record
	PolicyAbort
)

// ParsePolicy maps "skip" or "abort" to a Policy
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "skip", "":
		return PolicySkip, nil
	case "abort":
		return PolicyAbort, nil
	default:
		return PolicySkip, fmt.Errorf("unknown failure policy %q", s)
	}
}

// Session is one bulk import. It is safe for concurrent use.
type Session struct {
	id      string
	sink    sink.Sink
	logger  *slog.Logger
	metrics *metrics.Metrics
	workers int
	policy  Policy

	mu       sync.RWMutex
	ordinals map[string]int64
	next     int64
	phase    Phase

	// guarded by mu
	nodesWritten int
	edgesWritten int
	bytesWritten int64
}

// Option configures a Session
type Option func(*Session)

// WithID sets the session identifier instead of a generated uuid
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

// WithLogger sets the session logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithMetrics records session activity on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithWorkers bounds concurrent encoding in Import
func WithWorkers(n int) Option {
	return func(s *Session) { s.workers = n }
}

// WithOrdinalBase sets the first ordinal handed out
func WithOrdinalBase(base int64) Option {
	return func(s *Session) { s.next = base }
}

// WithPolicy sets how Import treats bad records
func WithPolicy(p Policy) Option {
	return func(s *Session) { s.policy = p }
}

// New opens a session writing to out
func New(out sink.Sink, opts ...Option) *Session {
	s := &Session{
		sink:     out,
		workers:  4,
		ordinals: make(map[string]int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.workers <= 0 {
		s.workers = 1
	}
	s.logger = s.logger.With("session", s.id)
	s.metrics.SessionOpened()
	return s
}

// ID returns the session identifier
func (s *Session) ID() string { return s.id }

// Phase returns the current phase
func (s *Session) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// RegisterOrdinal assigns the next ordinal to id. Each id may be registered once.
func (s *Session) RegisterOrdinal(id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registerLocked(id)
}

func (s *Session) registerLocked(id string) (int64, error) {
	switch s.phase {
	case PhaseClosed:
		return 0, ErrSessionClosed
	case PhaseEdges:
		return 0, ErrPhaseViolation
	}
	if _, ok := s.ordinals[id]; ok {
		return 0, fmt.Errorf("%q: %w", id, ErrDuplicateNode)
	}
	n := s.next
	s.ordinals[id] = n
	s.next++
	return n, nil
}

// ResolveOrdinal returns the ordinal id was registered with
func (s *Session) ResolveOrdinal(id string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.ordinals[id]
	if !ok {
		return 0, fmt.Errorf("%q: %w", id, encoding.ErrUnresolvedReference)
	}
	return n, nil
}

// EncodeNode encodes a node and registers its identifier without writing it
func (s *Session) EncodeNode(props *encoding.PropertyMap) (encoding.BinaryRecord, error) {
	n, err := encoding.NewNode(props)
	if err != nil {
		return nil, err
	}
	rec, err := n.BinaryFormat()
	if err != nil {
		return nil, err
	}
	if _, err := s.RegisterOrdinal(n.ID()); err != nil {
		return nil, err
	}
	return rec, nil
}

// EncodeEdge encodes an edge between two registered nodes without writing it
func (s *Session) EncodeEdge(source, target string, props *encoding.PropertyMap) (encoding.BinaryRecord, error) {
	if s.Phase() == PhaseClosed {
		return nil, ErrSessionClosed
	}
	e, err := encoding.NewEdge(source, target, props, s)
	if err != nil {
		return nil, err
	}
	return e.BinaryFormat()
}

// AddNode encodes a node, registers it and writes it to the sink
func (s *Session) AddNode(ctx context.Context, props *encoding.PropertyMap) (int64, error) {
	n, err := encoding.NewNode(props)
	if err != nil {
		s.metrics.Failed(encoding.KindNode.String(), reason(err))
		return 0, err
	}
	rec, err := n.BinaryFormat()
	if err != nil {
		s.metrics.Failed(encoding.KindNode.String(), reason(err))
		return 0, err
	}
	return s.writeNode(ctx, n.ID(), rec)
}

func (s *Session) writeNode(ctx context.Context, id string, rec encoding.BinaryRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ordinal, err := s.registerLocked(id)
	if err != nil {
		s.metrics.Failed(encoding.KindNode.String(), reason(err))
		return 0, err
	}
	if err := s.sink.WriteNode(ctx, ordinal, rec); err != nil {
		// the importer never received the node, so edges must not resolve it
		delete(s.ordinals, id)
		s.next--
		return 0, &writeFailure{fmt.Errorf("writing node %q: %w", id, err)}
	}
	s.nodesWritten++
	s.bytesWritten += int64(len(rec))
	s.metrics.Encoded(encoding.KindNode.String(), len(rec))
	return ordinal, nil
}

// AddEdge encodes an edge and writes it. The first edge flushes all nodes
// and moves the session into the edge phase.
func (s *Session) AddEdge(ctx context.Context, source, target string, props *encoding.PropertyMap) error {
	if err := s.beginEdges(ctx); err != nil {
		return err
	}
	e, err := encoding.NewEdge(source, target, props, s)
	if err != nil {
		s.metrics.Failed(encoding.KindEdge.String(), reason(err))
		return err
	}
	rec, err := e.BinaryFormat()
	if err != nil {
		s.metrics.Failed(encoding.KindEdge.String(), reason(err))
		return err
	}
	return s.writeEdge(ctx, rec)
}

func (s *Session) writeEdge(ctx context.Context, rec encoding.BinaryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseClosed {
		return ErrSessionClosed
	}
	if err := s.sink.WriteEdge(ctx, rec); err != nil {
		return &writeFailure{fmt.Errorf("writing edge: %w", err)}
	}
	s.edgesWritten++
	s.bytesWritten += int64(len(rec))
	s.metrics.Encoded(encoding.KindEdge.String(), len(rec))
	return nil
}

// beginEdges flushes the node phase once
func (s *Session) beginEdges(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.phase {
	case PhaseClosed:
		return ErrSessionClosed
	case PhaseEdges:
		return nil
	}
	if err := s.sink.Flush(ctx); err != nil {
		return fmt.Errorf("flushing nodes: %w", err)
	}
	s.phase = PhaseEdges
	s.logger.Debug("node phase flushed", "nodes", s.nodesWritten)
	return nil
}

// Close flushes and closes the sink. Further operations fail with
// ErrSessionClosed.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseClosed {
		return nil
	}
	s.phase = PhaseClosed
	s.metrics.SessionClosed()

	err := s.sink.Flush(ctx)
	if cerr := s.sink.Close(ctx); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("closing sink: %w", err)
	}

	s.logger.Info("import session closed",
		"nodes", s.nodesWritten,
		"edges", s.edgesWritten,
		"bytes", s.bytesWritten,
	)
	return nil
}

// Stats returns what has been written so far
func (s *Session) Stats() (nodes, edges int, bytes int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodesWritten, s.edgesWritten, s.bytesWritten
}

// writeFailure marks a sink error. Unlike a bad record it always ends an import.
type writeFailure struct{ err error }

func (w *writeFailure) Error() string { return w.err.Error() }
func (w *writeFailure) Unwrap() error { return w.err }

// reason is the metrics label for a record failure
func reason(err error) string {
	switch {
	case errors.Is(err, encoding.ErrMissingIdentifier):
		return "missing_identifier"
	case errors.Is(err, encoding.ErrUnresolvedReference):
		return "unresolved_reference"
	case errors.Is(err, encoding.ErrTypeMismatch):
		return "type_mismatch"
	case errors.Is(err, ErrDuplicateNode):
		return "duplicate_node"
	case errors.Is(err, ErrPhaseViolation):
		return "phase_violation"
	default:
		return "other"
	}
}
