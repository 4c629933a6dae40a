package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// shutdownTimeout bounds graceful shutdown once the server context is done.
const shutdownTimeout = 5 * time.Second

// Server hosts the HTTP surface of one or more novaos services on a single
// port.
//
// Routes are registered with [Server.Handle] before [Server.Start]. Every
// server answers GET /healthz and GET /readyz in addition to the routes of
// the services mounted on it.
type Server struct {
	name   string
	port   int
	mux    *http.ServeMux
	ready  ReadyFunc
	logger *zap.Logger

	mu   sync.Mutex
	addr net.Addr
	done chan struct{}
}

// ReadyFunc reports whether the server's dependencies can serve traffic.
type ReadyFunc func(ctx context.Context) error

// NewServer creates a new HTTP [Server].
//
// Parameters:
//   - name: service name reported by /healthz
//   - port: TCP port to listen on (0 picks a free port)
//   - ready: readiness check for /readyz (nil means always ready)
//   - logger: logger for request and lifecycle events
//
// The server is not started until [Server.Start] is called.
func NewServer(name string, port int, ready ReadyFunc, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		name:   name,
		port:   port,
		mux:    http.NewServeMux(),
		ready:  ready,
		logger: logger.With(zap.String("server", name)),
		done:   make(chan struct{}),
	}
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /readyz", s.handleReady)
	return s
}

// Handle registers h for pattern. Patterns use [http.ServeMux] syntax,
// including method and wildcard segments.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

// HandleFunc registers fn for pattern.
func (s *Server) HandleFunc(pattern string, fn http.HandlerFunc) {
	s.mux.HandleFunc(pattern, fn)
}

// Name returns the service name the server reports.
func (s *Server) Name() string {
	return s.name
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server will continue running until the context is
// cancelled, at which point it initiates a graceful shutdown with a 5-second
// timeout. [Server.Done] is closed once shutdown completes.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify port availability synchronously
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	httpServer := &http.Server{
		Handler:           withCORS(withLogging(s.mux, s.logger)),
		ReadHeaderTimeout: 5 * time.Second,
		// request contexts derive from ctx so long-lived handlers (SSE,
		// websocket) end when the server shuts down
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()

	s.logger.Info("listening", zap.String("addr", ln.Addr().String()))

	served := make(chan struct{})
	go func() {
		defer close(served)
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", zap.Error(err))
		}
	}()

	// shutdown on context cancellation
	go func() {
		defer close(s.done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", zap.Error(err))
			_ = httpServer.Close()
		}
		<-served
		s.logger.Info("stopped")
	}()

	return nil
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addr == nil {
		return ""
	}
	return s.addr.String()
}

// Port returns the bound TCP port, or 0 before Start.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tcp, ok := s.addr.(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

// Done is closed after a started server has shut down.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "service": s.name})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
				"ok":      false,
				"service": s.name,
				"error":   err.Error(),
			})
			return
		}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "service": s.name})
}
