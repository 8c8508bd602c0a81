// Package cli implements the graphbulk command line tool.
package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/systemshift/graphbulk/internal/bulk/encoding"
	"github.com/systemshift/graphbulk/internal/bulk/session"
	"github.com/systemshift/graphbulk/internal/bulk/sink"
	"github.com/systemshift/graphbulk/internal/logger"
	"github.com/systemshift/graphbulk/internal/version"
)

const usage = `Usage: graphbulk <command> [flags]

Commands:
  import   Encode a JSON lines file into a bulk file or sqlite staging db
  dump     Print the records of a bulk file or sqlite staging session

Run 'graphbulk <command> -h' for command flags.
`

// maxLine bounds a single JSON line
const maxLine = 16 << 20

// Run executes the command line args and returns the process exit code
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	var err error
	switch args[0] {
	case "import":
		err = runImport(ctx, args[1:], stdin, stdout, stderr)
	case "dump":
		err = runDump(ctx, args[1:], stdout, stderr)
	case "-version", "--version", "version":
		fmt.Fprintln(stdout, version.BuildInfo())
		return 0
	case "-h", "-help", "--help", "help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func runImport(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.SetOutput(stderr)
	in := fs.String("in", "-", "Input JSON lines file, - for stdin")
	out := fs.String("out", "", "Output bulk file or sqlite database")
	sinkType := fs.String("sink", sink.TypeFile, "Output type: file or sqlite")
	sessionID := fs.String("session", "", "Session id (generated when empty)")
	workers := fs.Int("workers", 4, "Concurrent encoders")
	base := fs.Int64("ordinal-base", 0, "First node ordinal")
	policy := fs.String("policy", "skip", "Bad record policy: skip or abort")
	logLevel := fs.String("log-level", "warn", "Log level")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *out == "" {
		return errors.New("-out is required")
	}
	p, err := session.ParsePolicy(*policy)
	if err != nil {
		return err
	}
	log, err := logger.New(*logLevel, "text", stderr)
	if err != nil {
		return err
	}

	r := stdin
	if *in != "-" {
		f, err := os.Open(*in)
		if err != nil {
			return fmt.Errorf("opening input: %w", err)
		}
		defer f.Close()
		r = f
	}

	batch, err := ReadBatch(r)
	if err != nil {
		return err
	}

	id := *sessionID
	if id == "" {
		id = uuid.NewString()
	}

	var dst sink.Sink
	switch *sinkType {
	case sink.TypeFile:
		dst, err = sink.NewFileSink(*out)
	case sink.TypeSQLite:
		dst, err = sink.NewSQLite(ctx, *out, id)
	default:
		err = fmt.Errorf("unsupported sink %q", *sinkType)
	}
	if err != nil {
		return err
	}

	s := session.New(dst,
		session.WithID(id),
		session.WithLogger(log),
		session.WithWorkers(*workers),
		session.WithOrdinalBase(*base),
		session.WithPolicy(p),
	)
	report, err := s.Import(ctx, batch)
	if cerr := s.Close(ctx); cerr != nil && err == nil {
		err = cerr
	}
	if report != nil {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if eerr := enc.Encode(report); eerr != nil && err == nil {
			err = eerr
		}
	}
	return err
}

// line is one entry of a JSON lines import file
type line struct {
	Node *encoding.PropertyMap `json:"node"`
	Edge *session.EdgeInput    `json:"edge"`
}

// ReadBatch reads JSON lines, each {"node":{...}} or {"edge":{...}}. Every
// node line must come before the first edge line. Blank lines are ignored.
func ReadBatch(r io.Reader) (session.Batch, error) {
	var b session.Batch
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLine)

	for n := 1; sc.Scan(); n++ {
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		var l line
		if err := json.Unmarshal(text, &l); err != nil {
			return b, fmt.Errorf("line %d: %w", n, err)
		}
		switch {
		case l.Node != nil && l.Edge != nil:
			return b, fmt.Errorf("line %d: both node and edge set", n)
		case l.Node != nil:
			if len(b.Edges) > 0 {
				return b, fmt.Errorf("line %d: %w", n, session.ErrPhaseViolation)
			}
			b.Nodes = append(b.Nodes, l.Node)
		case l.Edge != nil:
			b.Edges = append(b.Edges, *l.Edge)
		default:
			return b, fmt.Errorf("line %d: expected a node or edge", n)
		}
	}
	if err := sc.Err(); err != nil {
		return b, fmt.Errorf("reading input: %w", err)
	}
	return b, nil
}

func runDump(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("dump", flag.ContinueOnError)
	fs.SetOutput(stderr)
	in := fs.String("in", "", "Bulk file or sqlite database")
	sinkType := fs.String("sink", sink.TypeFile, "Input type: file or sqlite")
	sessionID := fs.String("session", "", "Session id, required for sqlite")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return errors.New("-in is required")
	}

	w := bufio.NewWriter(stdout)
	defer w.Flush()

	switch *sinkType {
	case sink.TypeFile:
		return dumpFile(w, *in)
	case sink.TypeSQLite:
		if *sessionID == "" {
			return errors.New("-session is required for sqlite")
		}
		records, err := sink.ReadSQLiteSession(ctx, *in, *sessionID)
		if err != nil {
			return err
		}
		for _, rec := range records {
			if err := writeRecord(w, rec); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported sink %q", *sinkType)
	}
}

func dumpFile(w io.Writer, path string) error {
	fr, err := sink.OpenFile(path)
	if err != nil {
		return err
	}
	defer fr.Close()

	h := fr.Header()
	fmt.Fprintf(w, "# version %d created %s nodes %d edges %d base %d\n",
		h.Version, h.Created.UTC().Format(time.RFC3339), h.NodeCount, h.EdgeCount, h.OrdinalBase)

	for {
		rec, err := fr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := writeRecord(w, rec); err != nil {
			return err
		}
	}
}

// writeRecord prints one decoded record per line
func writeRecord(w io.Writer, rec sink.Record) error {
	switch rec.Kind {
	case encoding.KindNode:
		values, err := encoding.DecodeNodeRecord(rec.Data)
		if err != nil {
			return fmt.Errorf("node %d: %w", rec.Ordinal, err)
		}
		_, err = fmt.Fprintf(w, "node %d %s\n", rec.Ordinal, natives(values))
		return err
	default:
		source, target, values, err := encoding.DecodeEdgeRecord(rec.Data)
		if err != nil {
			return fmt.Errorf("edge: %w", err)
		}
		_, err = fmt.Fprintf(w, "edge %d -> %d %s\n", source, target, natives(values))
		return err
	}
}

func natives(values []encoding.PropertyValue) string {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v.Native()
	}
	data, _ := json.Marshal(out)
	return string(data)
}
