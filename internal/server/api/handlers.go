// Package api exposes bulk imports over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/systemshift/graphbulk/internal/bulk/encoding"
	"github.com/systemshift/graphbulk/internal/bulk/session"
	"github.com/systemshift/graphbulk/internal/bulk/sink"
	"github.com/systemshift/graphbulk/internal/metrics"
)

// maxImportBody bounds the request body of an import
const maxImportBody = 64 << 20

// SinkOpener creates the sink for a new import session
type SinkOpener func(ctx context.Context, sessionID string) (sink.Sink, error)

// Server holds the HTTP server dependencies
type Server struct {
	open        SinkOpener
	sessionOpts []session.Option
	logger      *slog.Logger
	metrics     *metrics.Metrics
	gatherer    prometheus.Gatherer
	maxBody     int64
}

// New creates a new API server. m and gatherer may be nil.
func New(open SinkOpener, sessionOpts []session.Option, logger *slog.Logger, m *metrics.Metrics, gatherer prometheus.Gatherer) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		open:        open,
		sessionOpts: sessionOpts,
		logger:      logger,
		metrics:     m,
		gatherer:    gatherer,
		maxBody:     maxImportBody,
	}
}

// Routes builds the router
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	r.Get("/health", s.HealthCheck)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/imports", s.Import)
		r.Post("/resolve", s.Resolve)
	})
	return r
}

// HealthCheck handles GET /health
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ImportResponse is the response for an import
type ImportResponse struct {
	*session.Report
	DryRun bool   `json:"dry_run"`
	Error  string `json:"error,omitempty"`
}

// Import handles POST /api/imports
// Supports query param ?dry_run=true to encode without persisting
func (s *Server) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)

	var batch session.Batch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	dryRun := false
	if v := r.URL.Query().Get("dry_run"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "invalid dry_run parameter", http.StatusBadRequest)
			return
		}
		dryRun = b
	}

	ctx := r.Context()
	id := uuid.NewString()

	var out sink.Sink
	if dryRun {
		out = sink.NewMemorySink()
	} else {
		var err error
		if out, err = s.open(ctx, id); err != nil {
			s.logger.Error("opening sink failed", "session", id, "error", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	opts := append([]session.Option{}, s.sessionOpts...)
	opts = append(opts,
		session.WithID(id),
		session.WithLogger(s.logger),
		session.WithMetrics(s.metrics),
	)
	sess := session.New(out, opts...)

	report, err := sess.Import(ctx, batch)
	if cerr := sess.Close(ctx); cerr != nil && err == nil {
		err = cerr
	}
	if report == nil {
		report = &session.Report{SessionID: id, Errors: []*session.RecordError{}}
	}

	resp := ImportResponse{Report: report, DryRun: dryRun}
	status := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		var re *session.RecordError
		if errors.As(err, &re) {
			status = http.StatusUnprocessableEntity
		} else {
			status = http.StatusInternalServerError
			s.logger.Error("import failed", "session", id, "error", err)
		}
	}
	writeJSON(w, status, resp)
}

// ResolveRequest is the request body for type resolution
type ResolveRequest struct {
	Values []string `json:"values"`
}

// ResolveResponse lists the resolved type of each value, in order
type ResolveResponse struct {
	Types []encoding.PropertyType `json:"types"`
}

// Resolve handles POST /api/resolve
func (s *Server) Resolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp := ResolveResponse{Types: make([]encoding.PropertyType, len(req.Values))}
	for i, v := range req.Values {
		resp.Types[i] = encoding.ResolveType(v)
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
