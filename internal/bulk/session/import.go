package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/systemshift/graphbulk/internal/bulk/encoding"
)

// Batch is a set of nodes and edges to import together
type Batch struct {
	Nodes []*encoding.PropertyMap `json:"nodes"`
	Edges []EdgeInput             `json:"edges"`
}

// EdgeInput is an edge before its endpoints are resolved
type EdgeInput struct {
	Source     string                `json:"source"`
	Target     string                `json:"target"`
	Properties *encoding.PropertyMap `json:"properties,omitempty"`
}

// RecordError is a record rejected during an import
type RecordError struct {
	Kind  encoding.EntityKind
	Index int // position within the batch's Nodes or Edges
	Err   error
}

// Error implements the error interface
func (e *RecordError) Error() string {
	return fmt.Sprintf("%s %d: %v", e.Kind, e.Index, e.Err)
}

// Unwrap returns the underlying error
func (e *RecordError) Unwrap() error { return e.Err }

// MarshalJSON renders the error message as a string
func (e *RecordError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind   encoding.EntityKind `json:"kind"`
		Index  int                 `json:"index"`
		Reason string              `json:"reason"`
		Error  string              `json:"error"`
	}{e.Kind, e.Index, reason(e.Err), e.Err.Error()})
}

// Report summarizes one Import call
type Report struct {
	SessionID    string         `json:"session_id"`
	NodesWritten int            `json:"nodes_written"`
	EdgesWritten int            `json:"edges_written"`
	BytesWritten int64          `json:"bytes_written"`
	Errors       []*RecordError `json:"errors"`
}

// Failed returns the number of rejected records
func (r *Report) Failed() int { return len(r.Errors) }

type encoded struct {
	id  string
	rec encoding.BinaryRecord
	err error
}

// Import encodes and writes a batch. Records are encoded concurrently but
// written in batch order; every node is written and the sink flushed before
// the first edge. Bad records are collected in the report. Under PolicyAbort
// the first bad record stops the import and is also returned as the error.
func (s *Session) Import(ctx context.Context, b Batch) (*Report, error) {
	start := time.Now()
	defer s.metrics.ObserveImport(start)

	if s.Phase() == PhaseClosed {
		return nil, ErrSessionClosed
	}

	report := &Report{SessionID: s.id, Errors: []*RecordError{}}
	nodesBefore, edgesBefore, bytesBefore := s.Stats()
	finish := func() {
		nodes, edges, bytes := s.Stats()
		report.NodesWritten = nodes - nodesBefore
		report.EdgesWritten = edges - edgesBefore
		report.BytesWritten = bytes - bytesBefore
	}
	defer finish()

	nodes, err := s.encodeNodes(ctx, b.Nodes)
	if err != nil {
		return report, err
	}
	for i, n := range nodes {
		if n.err == nil {
			_, n.err = s.writeNode(ctx, n.id, n.rec)
		} else {
			s.metrics.Failed(encoding.KindNode.String(), reason(n.err))
		}
		if n.err != nil {
			if wf := asWriteFailure(n.err); wf != nil {
				return report, wf
			}
			if stop := s.reject(report, encoding.KindNode, i, n.err); stop != nil {
				return report, stop
			}
		}
	}

	if len(b.Edges) == 0 {
		return report, nil
	}
	if err := s.beginEdges(ctx); err != nil {
		return report, err
	}

	edges, err := s.encodeEdges(ctx, b.Edges)
	if err != nil {
		return report, err
	}
	for i, e := range edges {
		if e.err == nil {
			e.err = s.writeEdge(ctx, e.rec)
		} else {
			s.metrics.Failed(encoding.KindEdge.String(), reason(e.err))
		}
		if e.err != nil {
			if wf := asWriteFailure(e.err); wf != nil {
				return report, wf
			}
			if stop := s.reject(report, encoding.KindEdge, i, e.err); stop != nil {
				return report, stop
			}
		}
	}

	s.logger.Info("batch imported",
		"nodes", len(b.Nodes),
		"edges", len(b.Edges),
		"failed", report.Failed(),
		"duration", time.Since(start),
	)
	return report, nil
}

// reject records a bad record and returns non-nil when the import must stop
func (s *Session) reject(report *Report, kind encoding.EntityKind, index int, err error) error {
	re := &RecordError{Kind: kind, Index: index, Err: err}
	report.Errors = append(report.Errors, re)
	s.logger.Warn("record rejected", "kind", kind.String(), "index", index, "error", err)
	if s.policy == PolicyAbort {
		return re
	}
	return nil
}

func asWriteFailure(err error) error {
	var wf *writeFailure
	if errors.As(err, &wf) {
		return wf.err
	}
	return nil
}

func (s *Session) encodeNodes(ctx context.Context, in []*encoding.PropertyMap) ([]encoded, error) {
	out := make([]encoded, len(in))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for i, props := range in {
		i, props := i, props
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			n, err := encoding.NewNode(props)
			if err != nil {
				out[i].err = err
				return nil
			}
			out[i].id = n.ID()
			out[i].rec, out[i].err = n.BinaryFormat()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("encoding nodes: %w", err)
	}
	return out, nil
}

func (s *Session) encodeEdges(ctx context.Context, in []EdgeInput) ([]encoded, error) {
	out := make([]encoded, len(in))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for i, input := range in {
		i, input := i, input
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			e, err := encoding.NewEdge(input.Source, input.Target, input.Properties, s)
			if err != nil {
				out[i].err = err
				return nil
			}
			out[i].rec, out[i].err = e.BinaryFormat()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("encoding edges: %w", err)
	}
	return out, nil
}
