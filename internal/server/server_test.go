package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func startServer(t *testing.T, ready ReadyFunc) (*Server, context.CancelFunc) {
	t.Helper()

	srv := NewServer("metrics", 0, ready, zaptest.NewLogger(t))
	srv.HandleFunc("GET /hello", func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"hello": "world"})
	})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, srv.Start(ctx))
	t.Cleanup(func() {
		cancel()
		<-srv.Done()
	})
	return srv, cancel
}

func baseURL(srv *Server) string {
	return fmt.Sprintf("http://127.0.0.1:%d", srv.Port())
}

func get(t *testing.T, srv *Server, path string) (*http.Response, map[string]any) {
	t.Helper()

	resp, err := http.Get(baseURL(srv) + path)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp, body
}

func TestServer_Healthz(t *testing.T) {
	srv, _ := startServer(t, nil)

	resp, body := get(t, srv, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "metrics", body["service"])
}

func TestServer_Readyz(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		srv, _ := startServer(t, func(context.Context) error { return nil })
		resp, body := get(t, srv, "/readyz")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["ok"])
	})

	t.Run("store down", func(t *testing.T) {
		srv, _ := startServer(t, func(context.Context) error { return errors.New("store: unavailable") })
		resp, body := get(t, srv, "/readyz")
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Equal(t, false, body["ok"])
		assert.Equal(t, "store: unavailable", body["error"])
	})
}

func TestServer_MountedRouteAndCORS(t *testing.T) {
	srv, _ := startServer(t, nil)

	resp, body := get(t, srv, "/hello")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "world", body["hello"])
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestServer_Preflight(t *testing.T) {
	srv, _ := startServer(t, nil)

	req, err := http.NewRequest(http.MethodOptions, baseURL(srv)+"/hello", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), http.MethodPost)
}

func TestServer_ShutdownOnCancel(t *testing.T) {
	srv, cancel := startServer(t, nil)
	addr := fmt.Sprintf("127.0.0.1:%d", srv.Port())

	cancel()
	select {
	case <-srv.Done():
	case <-time.After(6 * time.Second):
		t.Fatal("server did not shut down after cancel")
	}

	_, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
	assert.Error(t, err, "listener should be closed after shutdown")
}

func TestServer_LongRequestEndsOnShutdown(t *testing.T) {
	srv := NewServer("relay", 0, nil, zaptest.NewLogger(t))
	exited := make(chan struct{})
	srv.HandleFunc("GET /stream", func(w http.ResponseWriter, r *http.Request) {
		defer close(exited)
		w.WriteHeader(http.StatusOK)
		_ = http.NewResponseController(w).Flush()
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, srv.Start(ctx))

	resp, err := http.Get(baseURL(srv) + "/stream")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	cancel()
	select {
	case <-exited:
	case <-time.After(3 * time.Second):
		t.Fatal("streaming handler did not observe server shutdown")
	}
	<-srv.Done()
}

func TestStart_PortInUse_ReturnsError(t *testing.T) {
	// occupy a port
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	port := ln.Addr().(*net.TCPAddr).Port
	srv := NewServer("memory", port, nil, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = srv.Start(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to bind")
}

func TestStart_InvalidPort_ReturnsError(t *testing.T) {
	srv := NewServer("memory", -1, nil, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	assert.Error(t, srv.Start(ctx))
}

func TestLoggingResponseWriter_PassesThroughFlush(t *testing.T) {
	rec := httptest.NewRecorder()
	lrw := &loggingResponseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	require.NoError(t, http.NewResponseController(lrw).Flush())
	assert.True(t, rec.Flushed)

	_, _, err := lrw.Hijack()
	assert.Error(t, err, "recorder cannot be hijacked")
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusServiceUnavailable, "store unavailable")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"error":"store unavailable"}`, rec.Body.String())
}
