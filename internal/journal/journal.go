// Package journal serves an append-only log of free-text entries backed by
// a store list.
package journal

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/novaos/novaos/internal/server"
	"github.com/novaos/novaos/internal/store"
	"github.com/novaos/novaos/internal/telemetry"
)

// DefaultKey is the list key used when none is configured.
const DefaultKey = "chat_memory"

// maxBodyBytes caps POST /memory request bodies.
const maxBodyBytes = 1 << 20

// Mux is the route registration surface the service mounts on.
type Mux interface {
	Handle(pattern string, h http.Handler)
}

// Service exposes GET and POST /memory over one store list.
type Service struct {
	store   store.Store
	key     string
	metrics *telemetry.Metrics
	logger  *zap.Logger
}

// NewService creates a journal over the list at key. An empty key uses
// [DefaultKey].
func NewService(st store.Store, key string, metrics *telemetry.Metrics, logger *zap.Logger) *Service {
	if key == "" {
		key = DefaultKey
	}
	if metrics == nil {
		metrics = telemetry.NewNop()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:   st,
		key:     key,
		metrics: metrics,
		logger:  logger.With(zap.String("key", key)),
	}
}

// Register mounts GET /memory and POST /memory.
func (s *Service) Register(mux Mux) {
	mux.Handle("GET /memory", http.HandlerFunc(s.handleList))
	mux.Handle("POST /memory", http.HandlerFunc(s.handleAppend))
}

type listResponse struct {
	Memory []string `json:"memory"`
}

type appendRequest struct {
	Message string `json:"message"`
}

type appendResponse struct {
	Status string `json:"status"`
}

// handleList returns entries in insertion order. The optional start and end
// query parameters select a range with list index semantics: 0-based, end
// inclusive, negative counting from the tail. An unreachable store reads as
// an empty journal.
func (s *Service) handleList(w http.ResponseWriter, r *http.Request) {
	start, err := intParam(r, "start", 0)
	if err != nil {
		server.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	end, err := intParam(r, "end", -1)
	if err != nil {
		server.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := s.store.ListRange(r.Context(), s.key, start, end)
	if err != nil {
		s.logger.Warn("journal read failed, serving empty journal", zap.Error(err))
		entries = nil
	}
	if entries == nil {
		entries = []string{}
	}

	server.WriteJSON(w, http.StatusOK, listResponse{Memory: entries})
}

// handleAppend appends the message field as one entry. A missing or empty
// message, or a body that is not a JSON object, is skipped and still
// reported as ok.
//
// Unlike every read path, a failed append is not masked: the caller gets
// 503 with status "unavailable" so a lost entry is never reported as ok.
func (s *Service) handleAppend(w http.ResponseWriter, r *http.Request) {
	var req appendRequest
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			server.WriteError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		if !errors.Is(err, io.EOF) {
			s.logger.Debug("ignoring undecodable append body", zap.Error(err))
		}
		req = appendRequest{}
	}

	if req.Message == "" {
		s.metrics.JournalAppends.WithLabelValues("skipped").Inc()
		server.WriteJSON(w, http.StatusOK, appendResponse{Status: "ok"})
		return
	}

	if err := s.store.ListAppend(r.Context(), s.key, req.Message); err != nil {
		s.metrics.JournalAppends.WithLabelValues("failed").Inc()
		s.logger.Warn("journal append failed", zap.Error(err))
		server.WriteJSON(w, http.StatusServiceUnavailable, appendResponse{Status: "unavailable"})
		return
	}

	s.metrics.JournalAppends.WithLabelValues("appended").Inc()
	server.WriteJSON(w, http.StatusOK, appendResponse{Status: "ok"})
}

func intParam(r *http.Request, name string, def int64) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.New("invalid " + name + " parameter: " + raw)
	}
	return v, nil
}
