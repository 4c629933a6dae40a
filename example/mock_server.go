package main

import (
	"encoding/json"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// mockHealth cycles a single service through ok, degraded and down, changing
// every 20-60 seconds.
type mockHealth struct {
	mu           sync.Mutex
	statusIdx    int
	nextChangeAt time.Time
	logger       *zap.Logger
}

var mockStatuses = []string{"ok", "degraded", "down"}

func (m *mockHealth) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// simulate small latency variance
	time.Sleep(time.Duration(50+rand.Intn(150)) * time.Millisecond)

	m.mu.Lock()
	now := time.Now()
	if m.nextChangeAt.IsZero() {
		m.nextChangeAt = now.Add(nextChange())
	}
	if now.After(m.nextChangeAt) {
		from := mockStatuses[m.statusIdx]
		m.statusIdx = (m.statusIdx + 1) % len(mockStatuses)
		m.nextChangeAt = now.Add(nextChange())
		m.logger.Info("status change", zap.String("from", from), zap.String("to", mockStatuses[m.statusIdx]))
	}
	status := mockStatuses[m.statusIdx]
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{"status": status}); err != nil {
		m.logger.Error("failed to write response", zap.Error(err))
	}
}

func nextChange() time.Duration {
	return time.Duration(20+rand.Intn(41)) * time.Second
}

// startMockHealthServer serves the mock at /health on an ephemeral port and
// returns its URL.
func startMockHealthServer(logger *zap.Logger) (string, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}

	mux := http.NewServeMux()
	mux.Handle("GET /health", &mockHealth{logger: logger})

	go func() {
		if err := http.Serve(ln, mux); err != nil {
			logger.Error("mock server error", zap.Error(err))
		}
	}()
	return "http://" + ln.Addr().String() + "/health", nil
}
