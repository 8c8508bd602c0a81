package sink

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/systemshift/graphbulk/internal/bulk/encoding"
)

// SQLiteSink stages records in a SQLite database, one row per record, so a
// loader can replay a session later. Writes go into an open transaction that
// Flush commits.
type SQLiteSink struct {
	mu        sync.Mutex
	db        *sql.DB
	tx        *sql.Tx
	sessionID string
	seq       int64
	nodes     int64
	edges     int64
	closed    bool
}

// NewSQLite opens the database at dbPath, creates the schema and registers
// sessionID
func NewSQLite(ctx context.Context, dbPath, sessionID string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	// Verify connectivity
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to sqlite: %w", err)
	}

	for _, pragma := range allPragmas() {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}

	for _, stmt := range allSchemaStatements() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO bulk_sessions (id, format_version, created_at) VALUES (?, ?, ?)`,
		sessionID, FormatVersion, time.Now().Format(time.RFC3339),
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("registering session: %w", err)
	}

	return &SQLiteSink{db: db, sessionID: sessionID}, nil
}

func (s *SQLiteSink) WriteNode(ctx context.Context, ordinal int64, rec encoding.BinaryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.insert(ctx, "node", sql.NullInt64{Int64: ordinal, Valid: true}, rec); err != nil {
		return err
	}
	s.nodes++
	return nil
}

func (s *SQLiteSink) WriteEdge(ctx context.Context, rec encoding.BinaryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.insert(ctx, "edge", sql.NullInt64{}, rec); err != nil {
		return err
	}
	s.edges++
	return nil
}

func (s *SQLiteSink) insert(ctx context.Context, kind string, ordinal sql.NullInt64, rec encoding.BinaryRecord) error {
	if s.closed {
		return ErrClosed
	}
	if s.tx == nil {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning transaction: %w", err)
		}
		s.tx = tx
	}

	_, err := s.tx.ExecContext(ctx,
		`INSERT INTO bulk_records (session_id, seq, kind, ordinal, payload) VALUES (?, ?, ?, ?, ?)`,
		s.sessionID, s.seq, kind, ordinal, []byte(rec),
	)
	if err != nil {
		return fmt.Errorf("inserting %s record: %w", kind, err)
	}
	s.seq++
	return nil
}

func (s *SQLiteSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.commit()
}

func (s *SQLiteSink) commit() error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing records: %w", err)
	}
	return nil
}

// Close commits pending records, stores the final counts and closes the database
func (s *SQLiteSink) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	err := s.commit()
	if err == nil {
		_, err = s.db.ExecContext(ctx,
			`UPDATE bulk_sessions SET closed_at = ?, node_count = ?, edge_count = ? WHERE id = ?`,
			time.Now().Format(time.RFC3339), s.nodes, s.edges, s.sessionID,
		)
		if err != nil {
			err = fmt.Errorf("closing session: %w", err)
		}
	}
	if cerr := s.db.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("closing sqlite database: %w", cerr)
	}
	return err
}

// ReadSQLiteSession returns the staged records of sessionID in write order
func ReadSQLiteSession(ctx context.Context, dbPath, sessionID string) ([]Record, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		`SELECT kind, ordinal, payload FROM bulk_records WHERE session_id = ? ORDER BY seq`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var kind string
		var ordinal sql.NullInt64
		var payload []byte
		if err := rows.Scan(&kind, &ordinal, &payload); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}

		rec := Record{Data: payload}
		switch kind {
		case "node":
			rec.Kind = encoding.KindNode
			rec.Ordinal = ordinal.Int64
		case "edge":
			rec.Kind = encoding.KindEdge
		default:
			return nil, fmt.Errorf("record kind %q: %w", kind, encoding.ErrMalformedRecord)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	return records, nil
}
