package sink

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/systemshift/graphbulk/internal/bulk/encoding"
)

const defaultBatchSize = 500

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Neo4jConfig holds Neo4j connection and schema configuration. Records carry
// no property names, so the names are taken positionally from NodeProperties
// and EdgeProperties; positions past the end are named p<index>.
type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	Database string

	NodeLabel      string
	EdgeType       string
	NodeProperties []string
	EdgeProperties []string
	BatchSize      int
}

// Neo4jSink decodes records and loads them into Neo4j with batched UNWIND
// writes. Nodes carry their session id and ordinal in the _session and
// _ordinal properties. Ordinals are only unique within a session, so edges
// match on both.
type Neo4jSink struct {
	mu       sync.Mutex
	driver   neo4j.DriverWithContext
	cfg      Neo4jConfig
	session  string
	nodeRows []map[string]any
	edgeRows []map[string]any
	closed   bool
}

// NewNeo4j connects to Neo4j for one import session and ensures the
// session ordinal index exists
func NewNeo4j(ctx context.Context, cfg Neo4jConfig, sessionID string) (*Neo4jSink, error) {
	if err := normalizeNeo4jConfig(&cfg); err != nil {
		return nil, err
	}
	if sessionID == "" {
		return nil, fmt.Errorf("neo4j sink requires a session id")
	}

	driver, err := neo4j.NewDriverWithContext(
		cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}

	// Verify connectivity
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("connecting to neo4j: %w", err)
	}

	s := &Neo4jSink{driver: driver, cfg: cfg, session: sessionID}
	if err := s.ensureIndexes(ctx); err != nil {
		driver.Close(ctx)
		return nil, err
	}
	return s, nil
}

func normalizeNeo4jConfig(cfg *Neo4jConfig) error {
	if cfg.NodeLabel == "" {
		cfg.NodeLabel = "Node"
	}
	if cfg.EdgeType == "" {
		cfg.EdgeType = "LINK"
	}
	if cfg.Database == "" {
		cfg.Database = "neo4j"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if !identifierPattern.MatchString(cfg.NodeLabel) {
		return fmt.Errorf("invalid node label %q", cfg.NodeLabel)
	}
	if !identifierPattern.MatchString(cfg.EdgeType) {
		return fmt.Errorf("invalid edge type %q", cfg.EdgeType)
	}
	return nil
}

func (s *Neo4jSink) ensureIndexes(ctx context.Context) error {
	if err := s.run(ctx, indexQuery(s.cfg.NodeLabel), nil); err != nil {
		return fmt.Errorf("creating ordinal index: %w", err)
	}
	return nil
}

func (s *Neo4jSink) WriteNode(ctx context.Context, ordinal int64, rec encoding.BinaryRecord) error {
	row, err := nodeRow(s.cfg.NodeProperties, ordinal, rec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.nodeRows = append(s.nodeRows, row)
	if len(s.nodeRows) >= s.cfg.BatchSize {
		return s.writeNodes(ctx)
	}
	return nil
}

func (s *Neo4jSink) WriteEdge(ctx context.Context, rec encoding.BinaryRecord) error {
	row, err := edgeRow(s.cfg.EdgeProperties, rec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.edgeRows = append(s.edgeRows, row)
	if len(s.edgeRows) >= s.cfg.BatchSize {
		return s.writeEdges(ctx)
	}
	return nil
}

func (s *Neo4jSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.flush(ctx)
}

func (s *Neo4jSink) flush(ctx context.Context) error {
	if err := s.writeNodes(ctx); err != nil {
		return err
	}
	return s.writeEdges(ctx)
}

// Close writes pending batches and closes the driver
func (s *Neo4jSink) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	err := s.flush(ctx)
	if cerr := s.driver.Close(ctx); cerr != nil && err == nil {
		err = fmt.Errorf("closing neo4j driver: %w", cerr)
	}
	return err
}

func (s *Neo4jSink) writeNodes(ctx context.Context) error {
	if len(s.nodeRows) == 0 {
		return nil
	}
	query := nodeQuery(s.cfg.NodeLabel)
	if err := s.run(ctx, query, s.params(s.nodeRows)); err != nil {
		return fmt.Errorf("writing %d nodes: %w", len(s.nodeRows), err)
	}
	s.nodeRows = s.nodeRows[:0]
	return nil
}

func (s *Neo4jSink) writeEdges(ctx context.Context) error {
	if len(s.edgeRows) == 0 {
		return nil
	}
	query := edgeQuery(s.cfg.NodeLabel, s.cfg.EdgeType)
	if err := s.run(ctx, query, s.params(s.edgeRows)); err != nil {
		return fmt.Errorf("writing %d edges: %w", len(s.edgeRows), err)
	}
	s.edgeRows = s.edgeRows[:0]
	return nil
}

func (s *Neo4jSink) params(rows []map[string]any) map[string]any {
	return map[string]any{"session": s.session, "rows": rows}
}

func (s *Neo4jSink) run(ctx context.Context, query string, params map[string]any) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.cfg.Database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	return err
}

func indexQuery(label string) string {
	return fmt.Sprintf(
		"CREATE INDEX bulk_%[1]s_session_ordinal IF NOT EXISTS FOR (n:%[1]s) ON (n._session, n._ordinal)",
		label,
	)
}

func nodeQuery(label string) string {
	return fmt.Sprintf(`
		UNWIND $rows AS row
		CREATE (n:%s)
		SET n = row.props, n._session = $session, n._ordinal = row.ordinal
	`, label)
}

func edgeQuery(label, relType string) string {
	return fmt.Sprintf(`
		UNWIND $rows AS row
		MATCH (source:%[1]s {_session: $session, _ordinal: row.source})
		MATCH (target:%[1]s {_session: $session, _ordinal: row.target})
		CREATE (source)-[r:%[2]s]->(target)
		SET r = row.props
	`, label, relType)
}

// nodeRow decodes a node record into UNWIND parameters
func nodeRow(names []string, ordinal int64, rec encoding.BinaryRecord) (map[string]any, error) {
	values, err := encoding.DecodeNodeRecord(rec)
	if err != nil {
		return nil, fmt.Errorf("decoding node %d: %w", ordinal, err)
	}
	return map[string]any{
		"ordinal": ordinal,
		"props":   propsRow(names, values),
	}, nil
}

// edgeRow decodes an edge record into UNWIND parameters
func edgeRow(names []string, rec encoding.BinaryRecord) (map[string]any, error) {
	source, target, values, err := encoding.DecodeEdgeRecord(rec)
	if err != nil {
		return nil, fmt.Errorf("decoding edge: %w", err)
	}
	return map[string]any{
		"source": source,
		"target": target,
		"props":  propsRow(names, values),
	}, nil
}

func propsRow(names []string, values []encoding.PropertyValue) map[string]any {
	props := make(map[string]any, len(values))
	for i, v := range values {
		name := fmt.Sprintf("p%d", i)
		if i < len(names) {
			name = names[i]
		}
		props[name] = v.Native()
	}
	return props
}
