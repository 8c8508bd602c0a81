package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Sink types accepted by Open
const (
	TypeMemory = "memory"
	TypeFile   = "file"
	TypeSQLite = "sqlite"
	TypeNeo4j  = "neo4j"
)

// Options selects and configures a sink
type Options struct {
	Type string

	// Path is the output directory for file sinks and the database path for
	// sqlite sinks
	Path string

	Neo4j Neo4jConfig
}

// Open creates the sink described by opts for one import session
func Open(ctx context.Context, opts Options, sessionID string) (Sink, error) {
	switch opts.Type {
	case TypeMemory, "":
		return NewMemorySink(), nil
	case TypeFile:
		if err := os.MkdirAll(opts.Path, 0755); err != nil {
			return nil, fmt.Errorf("creating output directory %s: %w", opts.Path, err)
		}
		return NewFileSink(FilePath(opts.Path, sessionID))
	case TypeSQLite:
		return NewSQLite(ctx, opts.Path, sessionID)
	case TypeNeo4j:
		return NewNeo4j(ctx, opts.Neo4j, sessionID)
	default:
		return nil, fmt.Errorf("unknown sink type %q", opts.Type)
	}
}

// FilePath returns where a file sink in dir stores sessionID
func FilePath(dir, sessionID string) string {
	return filepath.Join(dir, sessionID+".gblk")
}
