package snapshot

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/novaos/novaos/internal/server"
	"github.com/novaos/novaos/internal/store"
)

// timestampLayout matches JavaScript's Date.prototype.toISOString.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Mux is the route registration surface the service mounts on.
type Mux interface {
	Handle(pattern string, h http.Handler)
}

// Service serves counter snapshots and the counter increment operation.
type Service struct {
	reader *Reader
	store  store.Store
	now    func() time.Time
	logger *zap.Logger
}

// NewService creates a snapshot service backed by reader.
func NewService(st store.Store, reader *Reader, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		reader: reader,
		store:  st,
		now:    time.Now,
		logger: logger,
	}
}

// Register mounts GET /metrics and POST /counters/{name}/incr.
func (s *Service) Register(mux Mux) {
	mux.Handle("GET /metrics", http.HandlerFunc(s.handleSnapshot))
	mux.Handle("POST /counters/{name}/incr", http.HandlerFunc(s.handleIncrement))
}

// handleSnapshot always answers 200. Counters that cannot be read report
// their fallback; lastUpdated is the response time.
func (s *Service) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	readings := s.reader.ReadAll(r.Context())

	body := make(map[string]any, len(readings)+1)
	for _, rd := range readings {
		body[rd.Counter.Name] = rd.Value
	}
	body["lastUpdated"] = s.now().UTC().Format(timestampLayout)

	server.WriteJSON(w, http.StatusOK, body)
}

// handleIncrement atomically adds one to a scalar counter. Unlike the
// snapshot it reports store failures, since the caller asked for a write.
func (s *Service) handleIncrement(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	c, ok := s.reader.Lookup(name)
	if !ok || !c.Incrementable() {
		server.WriteError(w, http.StatusNotFound, "unknown counter: "+name)
		return
	}

	n, err := s.store.Incr(r.Context(), c.Key)
	switch {
	case errors.Is(err, store.ErrRejected):
		server.WriteError(w, http.StatusConflict, "counter value is not an integer")
		return
	case err != nil:
		s.logger.Warn("counter increment failed", zap.String("counter", name), zap.Error(err))
		server.WriteError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}

	s.logger.Debug("counter incremented", zap.String("counter", name), zap.Int64("value", n))
	server.WriteJSON(w, http.StatusOK, map[string]any{"counter": name, "value": n})
}
