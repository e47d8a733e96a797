// Package api wires the analytics HTTP surface: single-event ingestion,
// paged and per-actor reads, retention deletes, and the statistics
// endpoint.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"userlytics/core/events"
	"userlytics/pkg/metrics"
	"userlytics/pkg/structlog"
)

const (
	defaultPageSize   = 100
	actorEventsLimit  = 1000
	dateOnlyFormat = "2006-01-02"
)

// Server holds the wired event pipeline behind the HTTP handlers.
type Server struct {
	store      events.Store
	ingestor   *events.Ingestor
	pager      *events.Pager
	aggregator *events.Aggregator
	ping       func() error
	log        *structlog.Logger
}

// NewServer wires handlers over an already-connected store. ping is the
// liveness probe for /health; nil means always healthy.
func NewServer(store events.Store, agg *events.Aggregator, ping func() error, log *structlog.Logger) *Server {
	if log == nil {
		log = structlog.NewLogger("api", structlog.LevelInfo, nil)
	}
	return &Server{
		store:      store,
		ingestor:   events.NewIngestor(store),
		pager:      events.NewPager(store),
		aggregator: agg,
		ping:       ping,
		log:        log,
	}
}

// Routes builds the full routing table, each route wrapped with request
// metrics.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /event", s.instrument(s.handleIngest))
	mux.HandleFunc("GET /events", s.instrument(s.handleListEvents))
	mux.HandleFunc("DELETE /events", s.instrument(s.handleDeleteEvents))
	mux.HandleFunc("GET /users/{id}/events", s.instrument(s.handleActorEvents))
	mux.HandleFunc("POST /stats", s.instrument(s.handleStats))
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())
	return mux
}

// IngestRequest is the POST /event body.
type IngestRequest struct {
	UserID    uuid.UUID       `json:"user_id"`
	EventType string          `json:"event_type"`
	Timestamp time.Time       `json:"timestamp"`
	Metadata  events.Metadata `json:"metadata"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == uuid.Nil {
		s.writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if err := s.ingestor.Ingest(r.Context(), req.UserID, req.EventType, req.Timestamp, req.Metadata); err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "page must be a positive integer")
		return
	}
	count, err := queryInt(r, "count", defaultPageSize)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "count must be a positive integer")
		return
	}
	result, err := s.pager.Page(r.Context(), page, count)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDeleteEvents(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("before")
	if raw == "" {
		s.writeError(w, http.StatusBadRequest, "before query parameter is required")
		return
	}
	before, err := parseTimeParam(raw)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "before must be an RFC3339 timestamp")
		return
	}
	deleted, err := s.store.DeleteEventsBefore(r.Context(), before)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.log.Info("purged events", structlog.Fields{"before": before.Format(time.RFC3339), "deleted": deleted})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleActorEvents(w http.ResponseWriter, r *http.Request) {
	actorID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	list, err := s.store.ListActorEvents(r.Context(), actorID, actorEventsLimit)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kindName := q.Get("type")
	if kindName == "" {
		s.writeError(w, http.StatusBadRequest, "type query parameter is required")
		return
	}
	from, err := parseTimeParam(q.Get("from"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "from must be an RFC3339 timestamp")
		return
	}
	to, err := parseTimeParam(q.Get("to"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "to must be an RFC3339 timestamp")
		return
	}
	stats, err := s.aggregator.Stats(r.Context(), kindName, from, to)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	if s.ping != nil {
		if err := s.ping(); err != nil {
			status = "unhealthy"
			code = http.StatusServiceUnavailable
		}
	}
	s.writeJSON(w, code, map[string]string{"status": status})
}

// respondError maps domain errors onto status codes: caller mistakes
// become 400, everything else is a 500 hiding internals from the wire.
func (s *Server) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, events.ErrActorNotFound),
		errors.Is(err, events.ErrEventKindNotFound),
		errors.Is(err, events.ErrInvalidKindName),
		errors.Is(err, events.ErrInvalidPageRequest),
		errors.Is(err, events.ErrInvalidTimeRange):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error("request failed", structlog.Fields{"error": err.Error()})
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encode response", structlog.Fields{"error": err.Error()})
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, map[string]string{"error": msg})
}

// instrument records route latency labeled by the matched pattern and
// status class.
func (s *Server) instrument(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		route := r.Pattern
		if route == "" {
			route = r.URL.Path
		}
		metrics.ObserveRequest(route, strconv.Itoa(rec.status), start)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("not a positive integer")
	}
	return n, nil
}

// parseTimeParam accepts RFC3339 or a bare date.
func parseTimeParam(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse(dateOnlyFormat, raw)
}
