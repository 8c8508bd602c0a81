package sink

// SQLite staging schema DDL constants

const schemaSessions = `
CREATE TABLE IF NOT EXISTS bulk_sessions (
    id TEXT PRIMARY KEY,
    format_version INTEGER NOT NULL,
    created_at DATETIME NOT NULL,
    closed_at DATETIME,
    node_count INTEGER NOT NULL DEFAULT 0,
    edge_count INTEGER NOT NULL DEFAULT 0
)`

const schemaRecords = `
CREATE TABLE IF NOT EXISTS bulk_records (
    session_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    kind TEXT NOT NULL,
    ordinal INTEGER,
    payload BLOB NOT NULL,
    PRIMARY KEY (session_id, seq),
    FOREIGN KEY (session_id) REFERENCES bulk_sessions(id) ON DELETE CASCADE
)`

// Index definitions
const indexRecordsKind = `CREATE INDEX IF NOT EXISTS idx_bulk_records_kind ON bulk_records(session_id, kind)`

// SQLite pragmas
const pragmaWAL = `PRAGMA journal_mode=WAL`
const pragmaFK = `PRAGMA foreign_keys=ON`
const pragmaBusyTimeout = `PRAGMA busy_timeout=5000`
const pragmaSynchronous = `PRAGMA synchronous=NORMAL`

// allSchemaStatements returns all schema DDL in order
func allSchemaStatements() []string {
	return []string{
		schemaSessions,
		schemaRecords,
		indexRecordsKind,
	}
}

// allPragmas returns all pragma statements
func allPragmas() []string {
	return []string{
		pragmaWAL,
		pragmaFK,
		pragmaBusyTimeout,
		pragmaSynchronous,
	}
}
