package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemshift/graphbulk/internal/bulk/encoding"
	"github.com/systemshift/graphbulk/internal/bulk/session"
	"github.com/systemshift/graphbulk/internal/bulk/sink"
	"github.com/systemshift/graphbulk/internal/metrics"
)

// recordingOpener hands out memory sinks and remembers them
type recordingOpener struct {
	mu    sync.Mutex
	sinks map[string]*sink.MemorySink
	err   error
}

func (o *recordingOpener) open(ctx context.Context, id string) (sink.Sink, error) {
	if o.err != nil {
		return nil, o.err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	s := sink.NewMemorySink()
	o.sinks[id] = s
	return s, nil
}

func setupTestServer(t *testing.T, opts ...session.Option) (*httptest.Server, *recordingOpener, *prometheus.Registry) {
	t.Helper()

	opener := &recordingOpener{sinks: make(map[string]*sink.MemorySink)}
	reg := prometheus.NewRegistry()
	m := metrics.New()
	require.NoError(t, m.Register(reg))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(opener.open, opts, logger, m, reg)

	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts, opener, reg
}

func postJSON(t *testing.T, url, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

const sampleBatch = `{
	"nodes": [
		{"id": "alice", "age": 30},
		{"id": "bob", "active": true}
	],
	"edges": [
		{"source": "alice", "target": "bob", "properties": {"since": "2020"}}
	]
}`

func TestHealthCheck(t *testing.T) {
	ts, _, _ := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestImport(t *testing.T) {
	ts, opener, _ := setupTestServer(t)

	resp, data := postJSON(t, ts.URL+"/api/imports", sampleBatch)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))

	var got struct {
		SessionID    string `json:"session_id"`
		NodesWritten int    `json:"nodes_written"`
		EdgesWritten int    `json:"edges_written"`
		BytesWritten int64  `json:"bytes_written"`
		DryRun       bool   `json:"dry_run"`
		Errors       []any  `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, 2, got.NodesWritten)
	assert.Equal(t, 1, got.EdgesWritten)
	assert.Positive(t, got.BytesWritten)
	assert.False(t, got.DryRun)
	assert.Empty(t, got.Errors)

	out, ok := opener.sinks[got.SessionID]
	require.True(t, ok, "sink opened under the session id")
	records := out.Records()
	require.Len(t, records, 3)
	assert.Equal(t, int64(0), records[0].Ordinal)
	assert.Equal(t, int64(1), records[1].Ordinal)
	assert.Equal(t, encoding.KindEdge, records[2].Kind)

	source, target, values, err := encoding.DecodeEdgeRecord(records[2].Data)
	require.NoError(t, err)
	assert.Equal(t, int64(0), source)
	assert.Equal(t, int64(1), target)
	require.Len(t, values, 1)
	assert.Equal(t, encoding.TypeInteger, values[0].Type())
}

func TestImportDryRun(t *testing.T) {
	ts, opener, _ := setupTestServer(t)

	resp, data := postJSON(t, ts.URL+"/api/imports?dry_run=true", sampleBatch)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, opener.sinks)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, true, got["dry_run"])
	assert.Equal(t, float64(3), got["nodes_written"].(float64)+got["edges_written"].(float64))
}

func TestImportRecordErrors(t *testing.T) {
	body := `{
		"nodes": [{"id": "a"}, {}],
		"edges": [{"source": "a", "target": "ghost"}]
	}`

	t.Run("skip", func(t *testing.T) {
		ts, _, _ := setupTestServer(t)
		resp, data := postJSON(t, ts.URL+"/api/imports", body)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var got struct {
			NodesWritten int `json:"nodes_written"`
			Errors       []struct {
				Kind   string `json:"kind"`
				Index  int    `json:"index"`
				Reason string `json:"reason"`
			} `json:"errors"`
		}
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, 1, got.NodesWritten)
		require.Len(t, got.Errors, 2)
		assert.Equal(t, "missing_identifier", got.Errors[0].Reason)
		assert.Equal(t, 1, got.Errors[0].Index)
		assert.Equal(t, "unresolved_reference", got.Errors[1].Reason)
	})

	t.Run("abort", func(t *testing.T) {
		ts, _, _ := setupTestServer(t, session.WithPolicy(session.PolicyAbort))
		resp, data := postJSON(t, ts.URL+"/api/imports", body)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

		var got map[string]any
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Contains(t, got["error"], "missing")
	})
}

func TestImportBadRequests(t *testing.T) {
	ts, _, _ := setupTestServer(t)

	tests := []struct {
		name string
		path string
		body string
	}{
		{"invalid json", "/api/imports", `{"nodes": [`},
		{"nested property", "/api/imports", `{"nodes": [{"id": "a", "tags": ["x"]}]}`},
		{"bad dry_run", "/api/imports?dry_run=maybe", sampleBatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := postJSON(t, ts.URL+tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestImportBodyTooLarge(t *testing.T) {
	opener := &recordingOpener{sinks: make(map[string]*sink.MemorySink)}
	srv := New(opener.open, nil, slog.New(slog.NewTextHandler(io.Discard, nil)), nil, nil)
	srv.maxBody = 64

	req := httptest.NewRequest(http.MethodPost, "/api/imports", strings.NewReader(sampleBatch))
	w := httptest.NewRecorder()
	srv.Import(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Empty(t, opener.sinks)

	srv.maxBody = maxImportBody
	req = httptest.NewRequest(http.MethodPost, "/api/imports", strings.NewReader(sampleBatch))
	w = httptest.NewRecorder()
	srv.Import(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestImportSinkOpenFailure(t *testing.T) {
	ts, opener, _ := setupTestServer(t)
	opener.err = errors.New("disk full")

	resp, data := postJSON(t, ts.URL+"/api/imports", sampleBatch)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, string(data), "disk full")
}

func TestResolve(t *testing.T) {
	ts, _, _ := setupTestServer(t)

	resp, data := postJSON(t, ts.URL+"/api/resolve",
		`{"values": ["null", "TRUE", "42", "3.14", "9223372036854775808", "hello", "+1"]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got struct {
		Types []string `json:"types"`
	}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, []string{"null", "boolean", "integer", "double", "double", "string", "double"}, got.Types)
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _, _ := setupTestServer(t)
	postJSON(t, ts.URL+"/api/imports", sampleBatch)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, buf.String(), "graphbulk_records_encoded_total")
}
