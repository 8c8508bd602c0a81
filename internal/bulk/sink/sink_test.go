package sink

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemshift/graphbulk/internal/bulk/encoding"
	"github.com/systemshift/graphbulk/internal/version"
)

type fixedOrdinals map[string]int64

func (f fixedOrdinals) ResolveOrdinal(id string) (int64, error) {
	n, ok := f[id]
	if !ok {
		return 0, encoding.ErrUnresolvedReference
	}
	return n, nil
}

func encodeNode(t *testing.T, pairs ...string) encoding.BinaryRecord {
	t.Helper()
	n, err := encoding.NewNode(encoding.PropertiesOf(pairs...))
	require.NoError(t, err)
	rec, err := n.BinaryFormat()
	require.NoError(t, err)
	return rec
}

func encodeEdge(t *testing.T, src, dst string, ords fixedOrdinals, pairs ...string) encoding.BinaryRecord {
	t.Helper()
	e, err := encoding.NewEdge(src, dst, encoding.PropertiesOf(pairs...), ords)
	require.NoError(t, err)
	rec, err := e.BinaryFormat()
	require.NoError(t, err)
	return rec
}

func TestMemorySink(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySink()

	require.NoError(t, s.WriteNode(ctx, 0, encoding.BinaryRecord{1}))
	require.NoError(t, s.Flush(ctx))
	require.NoError(t, s.WriteEdge(ctx, encoding.BinaryRecord{2}))
	require.NoError(t, s.Close(ctx))

	records := s.Records()
	require.Len(t, records, 2)
	assert.Equal(t, encoding.KindNode, records[0].Kind)
	assert.Equal(t, encoding.KindEdge, records[1].Kind)
	assert.Equal(t, 1, s.Flushes())

	assert.ErrorIs(t, s.WriteNode(ctx, 1, nil), ErrClosed)
	assert.ErrorIs(t, s.Flush(ctx), ErrClosed)
}

func TestFileSinkRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "graph.gblk")

	ords := fixedOrdinals{"a": 5, "b": 6}
	nodeA := encodeNode(t, "id", "a", "age", "30")
	nodeB := encodeNode(t, "id", "b", "age", "31")
	edge := encodeEdge(t, "a", "b", ords, "since", "2020")

	s, err := NewFileSink(path)
	require.NoError(t, err)
	require.NoError(t, s.WriteNode(ctx, 5, nodeA))
	require.NoError(t, s.WriteNode(ctx, 6, nodeB))
	require.NoError(t, s.Flush(ctx))
	require.NoError(t, s.WriteEdge(ctx, edge))
	require.NoError(t, s.Close(ctx))
	require.NoError(t, s.Close(ctx), "second close is a no-op")

	r, err := OpenFile(path)
	require.NoError(t, err)
	defer r.Close()

	h := r.Header()
	assert.Equal(t, uint32(FormatVersion), h.Version)
	assert.Equal(t, uint32(2), h.NodeCount)
	assert.Equal(t, uint32(1), h.EdgeCount)
	assert.Equal(t, int64(5), h.OrdinalBase)

	var got []Record
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, rec)
	}

	require.Len(t, got, 3)
	assert.Equal(t, Record{Kind: encoding.KindNode, Ordinal: 5, Data: nodeA}, got[0])
	assert.Equal(t, Record{Kind: encoding.KindNode, Ordinal: 6, Data: nodeB}, got[1])
	assert.Equal(t, Record{Kind: encoding.KindEdge, Data: edge}, got[2])
}

func TestFileSinkWriteAfterClose(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileSink(filepath.Join(t.TempDir(), "closed.gblk"))
	require.NoError(t, err)
	require.NoError(t, s.Close(ctx))

	assert.ErrorIs(t, s.WriteNode(ctx, 0, nil), ErrClosed)
	assert.ErrorIs(t, s.WriteEdge(ctx, nil), ErrClosed)
}

func TestOpenFileRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage")
	require.NoError(t, os.WriteFile(path, []byte("not a bulk file at all, no sir"), 0644))

	_, err := OpenFile(path)
	assert.ErrorIs(t, err, encoding.ErrMalformedRecord)
}

func TestFileReaderTruncatedRecord(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "truncated.gblk")

	s, err := NewFileSink(path)
	require.NoError(t, err)
	require.NoError(t, s.WriteNode(ctx, 0, encodeNode(t, "id", "a")))
	require.NoError(t, s.Close(ctx))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)-2], 0644))

	r, err := OpenFile(path)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Next()
	assert.ErrorIs(t, err, encoding.ErrMalformedRecord)
}

func TestBuildInfoReportsFormatVersion(t *testing.T) {
	assert.Contains(t, version.BuildInfo(), "Bulk format: 1")
	assert.Equal(t, 1, FormatVersion)
}

func TestFileReaderOversizedLength(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oversized.gblk")

	var buf bytes.Buffer
	require.NoError(t, writeHeader(&buf, Header{Version: FormatVersion, Created: time.Now(), NodeCount: 1}))
	require.Equal(t, headerSize, buf.Len())
	buf.WriteByte(kindNodeByte)
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(math.MaxUint32)))
	buf.Write([]byte{0, 0, 0, 0})
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))

	r, err := OpenFile(path)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Next()
	assert.ErrorIs(t, err, encoding.ErrMalformedRecord)
	assert.Contains(t, err.Error(), "exceeds file")
}

func TestSQLiteSink(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "staging.db")

	ords := fixedOrdinals{"a": 0, "b": 1}
	nodeA := encodeNode(t, "id", "a")
	nodeB := encodeNode(t, "id", "b")
	edge := encodeEdge(t, "a", "b", ords)

	s, err := NewSQLite(ctx, dbPath, "session-1")
	require.NoError(t, err)
	require.NoError(t, s.WriteNode(ctx, 0, nodeA))
	require.NoError(t, s.WriteNode(ctx, 1, nodeB))
	require.NoError(t, s.Flush(ctx))
	require.NoError(t, s.WriteEdge(ctx, edge))
	require.NoError(t, s.Close(ctx))

	records, err := ReadSQLiteSession(ctx, dbPath, "session-1")
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, Record{Kind: encoding.KindNode, Ordinal: 0, Data: nodeA}, records[0])
	assert.Equal(t, Record{Kind: encoding.KindNode, Ordinal: 1, Data: nodeB}, records[1])
	assert.Equal(t, Record{Kind: encoding.KindEdge, Data: edge}, records[2])

	other, err := ReadSQLiteSession(ctx, dbPath, "session-2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSQLiteSinkDuplicateSession(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "staging.db")

	s, err := NewSQLite(ctx, dbPath, "dup")
	require.NoError(t, err)
	require.NoError(t, s.Close(ctx))

	_, err = NewSQLite(ctx, dbPath, "dup")
	assert.Error(t, err)
}

func TestNeo4jRows(t *testing.T) {
	ords := fixedOrdinals{"a": 3, "b": 4}

	row, err := nodeRow([]string{"id", "age"}, 3, encodeNode(t, "id", "a", "age", "30", "extra", "true"))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"ordinal": int64(3),
		"props":   map[string]any{"id": "a", "age": int64(30), "p2": true},
	}, row)

	row, err = edgeRow([]string{"weight"}, encodeEdge(t, "a", "b", ords, "weight", "0.5"))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"source": int64(3),
		"target": int64(4),
		"props":  map[string]any{"weight": 0.5},
	}, row)

	_, err = nodeRow(nil, 0, encoding.BinaryRecord{1})
	assert.ErrorIs(t, err, encoding.ErrMalformedRecord)
}

func TestNeo4jConfigValidation(t *testing.T) {
	cfg := Neo4jConfig{}
	require.NoError(t, normalizeNeo4jConfig(&cfg))
	assert.Equal(t, "Node", cfg.NodeLabel)
	assert.Equal(t, "LINK", cfg.EdgeType)
	assert.Equal(t, "neo4j", cfg.Database)
	assert.Equal(t, defaultBatchSize, cfg.BatchSize)

	bad := Neo4jConfig{NodeLabel: "Node) DETACH DELETE (m"}
	assert.Error(t, normalizeNeo4jConfig(&bad))

	bad = Neo4jConfig{EdgeType: "LINK]->()"}
	assert.Error(t, normalizeNeo4jConfig(&bad))
}

func TestNeo4jQueries(t *testing.T) {
	q := nodeQuery("Person")
	assert.Contains(t, q, "CREATE (n:Person)")
	assert.Contains(t, q, "n._session = $session")
	assert.Contains(t, q, "n._ordinal = row.ordinal")

	q = edgeQuery("Person", "KNOWS")
	assert.Contains(t, q, "MATCH (source:Person {_session: $session, _ordinal: row.source})")
	assert.Contains(t, q, "MATCH (target:Person {_session: $session, _ordinal: row.target})")
	assert.Contains(t, q, "[r:KNOWS]")

	assert.Equal(t,
		"CREATE INDEX bulk_Person_session_ordinal IF NOT EXISTS FOR (n:Person) ON (n._session, n._ordinal)",
		indexQuery("Person"),
	)
}

func TestNeo4jParamsCarrySession(t *testing.T) {
	s := &Neo4jSink{session: "s1"}
	rows := []map[string]any{{"ordinal": int64(0)}}
	assert.Equal(t, map[string]any{"session": "s1", "rows": rows}, s.params(rows))
}

func TestNeo4jRequiresSession(t *testing.T) {
	_, err := NewNeo4j(context.Background(), Neo4jConfig{URI: "bolt://localhost:7687"}, "")
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(ctx, Options{Type: TypeMemory}, "s1")
	require.NoError(t, err)
	assert.IsType(t, &MemorySink{}, s)

	s, err = Open(ctx, Options{Type: TypeFile, Path: filepath.Join(dir, "out")}, "s2")
	require.NoError(t, err)
	require.NoError(t, s.Close(ctx))
	assert.FileExists(t, FilePath(filepath.Join(dir, "out"), "s2"))

	s, err = Open(ctx, Options{Type: TypeSQLite, Path: filepath.Join(dir, "db.sqlite")}, "s3")
	require.NoError(t, err)
	require.NoError(t, s.Close(ctx))

	_, err = Open(ctx, Options{Type: "tape"}, "s4")
	assert.Error(t, err)
}
