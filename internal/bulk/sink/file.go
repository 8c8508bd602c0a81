package sink

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
	"time"

	"github.com/systemshift/graphbulk/internal/bulk/encoding"
)

// FormatVersion is the bulk file layout version written in every header
const FormatVersion = 1

var magic = [4]byte{'G', 'B', 'L', 'K'}

const (
	kindNodeByte byte = 'N'
	kindEdgeByte byte = 'E'
)

// Header is the fixed prefix of a bulk file
type Header struct {
	Version     uint32    // File format version
	Created     time.Time // Creation timestamp
	NodeCount   uint32    // Number of node records
	EdgeCount   uint32    // Number of edge records
	OrdinalBase int64     // Ordinal of the first node record
}

// FileSink writes records to a bulk file: a header followed by records, each
// a kind byte, a 4-byte little-endian length and the record bytes. The header
// counts are rewritten when the sink is closed.
type FileSink struct {
	mu     sync.Mutex
	file   *os.File
	w      *bufio.Writer
	header Header
	nodes  bool
	closed bool
}

// NewFileSink creates or truncates the file at path
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating bulk file: %w", err)
	}

	s := &FileSink{
		file: f,
		w:    bufio.NewWriter(f),
		header: Header{
			Version: FormatVersion,
			Created: time.Now(),
		},
	}
	if err := writeHeader(s.w, s.header); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func (s *FileSink) WriteNode(ctx context.Context, ordinal int64, rec encoding.BinaryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if !s.nodes {
		s.header.OrdinalBase = ordinal
		s.nodes = true
	}
	if s.header.NodeCount == math.MaxUint32 {
		return fmt.Errorf("bulk file node count overflow")
	}
	if err := s.writeRecord(kindNodeByte, rec); err != nil {
		return err
	}
	s.header.NodeCount++
	return nil
}

func (s *FileSink) WriteEdge(ctx context.Context, rec encoding.BinaryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.header.EdgeCount == math.MaxUint32 {
		return fmt.Errorf("bulk file edge count overflow")
	}
	if err := s.writeRecord(kindEdgeByte, rec); err != nil {
		return err
	}
	s.header.EdgeCount++
	return nil
}

func (s *FileSink) writeRecord(kind byte, rec encoding.BinaryRecord) error {
	if uint64(len(rec)) > math.MaxUint32 {
		return fmt.Errorf("record of %d bytes exceeds length prefix", len(rec))
	}
	if err := s.w.WriteByte(kind); err != nil {
		return fmt.Errorf("writing record kind: %w", err)
	}
	if err := binary.Write(s.w, binary.LittleEndian, uint32(len(rec))); err != nil {
		return fmt.Errorf("writing record length: %w", err)
	}
	if _, err := s.w.Write(rec); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}
	return nil
}

func (s *FileSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("flushing bulk file: %w", err)
	}
	return nil
}

// Close rewrites the header with the final counts and closes the file
func (s *FileSink) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	err := s.finish()
	if cerr := s.file.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("closing bulk file: %w", cerr)
	}
	return err
}

func (s *FileSink) finish() error {
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("flushing bulk file: %w", err)
	}
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seeking to start: %w", err)
	}
	return writeHeader(s.file, s.header)
}

func writeHeader(w io.Writer, h Header) error {
	if _, err := w.Write(magic[:]); err != nil {
		return fmt.Errorf("writing magic: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, h.Version); err != nil {
		return fmt.Errorf("writing version: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, h.Created.Unix()); err != nil {
		return fmt.Errorf("writing created time: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, h.NodeCount); err != nil {
		return fmt.Errorf("writing node count: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, h.EdgeCount); err != nil {
		return fmt.Errorf("writing edge count: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, h.OrdinalBase); err != nil {
		return fmt.Errorf("writing ordinal base: %w", err)
	}
	return nil
}

func readHeader(r io.Reader) (Header, error) {
	var h Header

	var m [4]byte
	if _, err := io.ReadFull(r, m[:]); err != nil {
		return h, fmt.Errorf("reading magic: %w", err)
	}
	if m != magic {
		return h, fmt.Errorf("not a bulk file: %w", encoding.ErrMalformedRecord)
	}

	if err := binary.Read(r, binary.LittleEndian, &h.Version); err != nil {
		return h, fmt.Errorf("reading version: %w", err)
	}
	if h.Version != FormatVersion {
		return h, fmt.Errorf("unsupported version: %d", h.Version)
	}

	var created int64
	if err := binary.Read(r, binary.LittleEndian, &created); err != nil {
		return h, fmt.Errorf("reading created time: %w", err)
	}
	h.Created = time.Unix(created, 0)

	if err := binary.Read(r, binary.LittleEndian, &h.NodeCount); err != nil {
		return h, fmt.Errorf("reading node count: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &h.EdgeCount); err != nil {
		return h, fmt.Errorf("reading edge count: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &h.OrdinalBase); err != nil {
		return h, fmt.Errorf("reading ordinal base: %w", err)
	}
	return h, nil
}

// headerSize is the encoded size of Header: magic, version, created, node
// count, edge count and ordinal base
const headerSize = 4 + 4 + 8 + 4 + 4 + 8

// recordPrefix is the kind byte plus the u32 record length
const recordPrefix = 1 + 4

// FileReader iterates the records of a bulk file
type FileReader struct {
	file      *os.File
	r         *bufio.Reader
	header    Header
	nodes     int64
	remaining int64 // unread bytes after the header
}

// OpenFile opens a bulk file written by FileSink
func OpenFile(path string) (*FileReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening bulk file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat bulk file: %w", err)
	}

	r := bufio.NewReader(f)
	h, err := readHeader(r)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &FileReader{file: f, r: r, header: h, remaining: info.Size() - headerSize}, nil
}

// Header returns the file header
func (fr *FileReader) Header() Header { return fr.header }

// Next returns the next record, or io.EOF after the last one
func (fr *FileReader) Next() (Record, error) {
	kind, err := fr.r.ReadByte()
	if errors.Is(err, io.EOF) {
		return Record{}, io.EOF
	}
	if err != nil {
		return Record{}, fmt.Errorf("reading record kind: %w", err)
	}

	var n uint32
	if err := binary.Read(fr.r, binary.LittleEndian, &n); err != nil {
		return Record{}, fmt.Errorf("reading record length: %w", unexpected(err))
	}
	fr.remaining -= recordPrefix
	if int64(n) > fr.remaining {
		return Record{}, fmt.Errorf("record length %d exceeds file: %w", n, encoding.ErrMalformedRecord)
	}
	fr.remaining -= int64(n)

	data := make([]byte, n)
	if _, err := io.ReadFull(fr.r, data); err != nil {
		return Record{}, fmt.Errorf("reading record: %w", unexpected(err))
	}

	switch kind {
	case kindNodeByte:
		rec := Record{Kind: encoding.KindNode, Ordinal: fr.header.OrdinalBase + fr.nodes, Data: data}
		fr.nodes++
		return rec, nil
	case kindEdgeByte:
		return Record{Kind: encoding.KindEdge, Data: data}, nil
	default:
		return Record{}, fmt.Errorf("record kind 0x%02x: %w", kind, encoding.ErrMalformedRecord)
	}
}

// Close closes the underlying file
func (fr *FileReader) Close() error {
	return fr.file.Close()
}

// unexpected turns a clean EOF inside a record into a malformed-record error
func unexpected(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return encoding.ErrMalformedRecord
	}
	return err
}
