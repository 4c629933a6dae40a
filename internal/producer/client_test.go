package producer

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/http/httptrace"
	"strings"
	"testing"
	"time"
)

// TestClient_ConnectionReuse verifies that sequential checks of one host
// reuse pooled connections.
func TestClient_ConnectionReuse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := NewClient()

	var reusedCount int
	trace := &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			if info.Reused {
				reusedCount++
			}
		},
	}

	const numRequests = 5
	for i := 0; i < numRequests; i++ {
		ctx := httptrace.WithClientTrace(context.Background(), trace)
		if _, err := client.Check(ctx, Target{URL: server.URL}); err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
	}

	if minReuse := numRequests - 2; reusedCount < minReuse {
		t.Errorf("expected at least %d reused connections, got %d out of %d requests",
			minReuse, reusedCount, numRequests)
	}
}

// TestClient_CheckSendsMethodAndHeaders verifies request shaping.
func TestClient_CheckSendsMethodAndHeaders(t *testing.T) {
	var gotMethod, gotHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotHeader = r.Header.Get("X-Api-Key")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	reply, err := NewClient().Check(context.Background(), Target{
		Method:  http.MethodHead,
		URL:     server.URL,
		Headers: map[string]string{"X-Api-Key": "secret"},
	})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if gotMethod != http.MethodHead {
		t.Errorf("method = %q, want HEAD", gotMethod)
	}
	if gotHeader != "secret" {
		t.Errorf("X-Api-Key = %q, want secret", gotHeader)
	}
	if reply.StatusCode != http.StatusAccepted {
		t.Errorf("StatusCode = %d, want %d", reply.StatusCode, http.StatusAccepted)
	}
}

// TestClient_ErrorStatusIsAReply verifies that the client leaves judging a
// status code to the producer.
func TestClient_ErrorStatusIsAReply(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	reply, err := NewClient().Check(context.Background(), Target{URL: server.URL})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if reply.StatusCode != http.StatusBadGateway {
		t.Errorf("StatusCode = %d, want %d", reply.StatusCode, http.StatusBadGateway)
	}
	if !strings.Contains(string(reply.Body), "boom") {
		t.Errorf("Body = %q", reply.Body)
	}
}

func TestClient_BodySizeLimit(t *testing.T) {
	tests := []struct {
		name       string
		size       int
		wantReason FailureReason
	}{
		{name: "exactly at cap", size: maxReplyBody},
		{name: "over cap", size: maxReplyBody + 512, wantReason: ReasonOversized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(strings.Repeat("a", tt.size)))
			}))
			defer server.Close()

			reply, err := NewClient().Check(context.Background(), Target{URL: server.URL})
			reason, _ := FailureOf(err)
			if reason != tt.wantReason {
				t.Errorf("reason = %q, want %q (err %v)", reason, tt.wantReason, err)
			}
			if len(reply.Body) != maxReplyBody {
				t.Errorf("len(Body) = %d, want %d", len(reply.Body), maxReplyBody)
			}
			if reply.StatusCode != http.StatusOK {
				t.Errorf("StatusCode = %d, want 200", reply.StatusCode)
			}
		})
	}
}

// TestClient_Timeout verifies that the caller's deadline bounds the request
// and is reported as a timeout.
func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	reply, err := NewClient().Check(ctx, Target{URL: server.URL})
	if reason, ok := FailureOf(err); !ok || reason != ReasonTimeout {
		t.Fatalf("err = %v, want %q", err, ReasonTimeout)
	}
	if reply.StatusCode != 0 {
		t.Errorf("StatusCode = %d, want 0", reply.StatusCode)
	}
	if reply.Latency < 50*time.Millisecond {
		t.Errorf("Latency = %v, want at least the deadline", reply.Latency)
	}
}

func TestClient_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient().Check(ctx, Target{URL: "http://127.0.0.1:1"})
	if reason, _ := FailureOf(err); reason != ReasonCanceled {
		t.Errorf("err = %v, want %q", err, ReasonCanceled)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("errors.Is(err, context.Canceled) = false for %v", err)
	}
}

func TestClient_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	_, err = NewClient().Check(context.Background(), Target{URL: "http://" + addr})
	if reason, _ := FailureOf(err); reason != ReasonUnreachable {
		t.Errorf("err = %v, want %q", err, ReasonUnreachable)
	}
}

func TestClient_InvalidTarget(t *testing.T) {
	_, err := NewClient().Check(context.Background(), Target{URL: "://nope"})
	if reason, _ := FailureOf(err); reason != ReasonInvalid {
		t.Errorf("err = %v, want %q", err, ReasonInvalid)
	}
}

func TestFailureOf(t *testing.T) {
	wrapped := errors.Join(errors.New("context"), &CheckError{Reason: ReasonTimeout, Err: context.DeadlineExceeded})
	if reason, ok := FailureOf(wrapped); !ok || reason != ReasonTimeout {
		t.Errorf("FailureOf(wrapped) = %q, %v", reason, ok)
	}
	if _, ok := FailureOf(errors.New("plain")); ok {
		t.Error("FailureOf(plain) reported a reason")
	}
	if _, ok := FailureOf(nil); ok {
		t.Error("FailureOf(nil) reported a reason")
	}
}

// TestClient_Close verifies that Close is idempotent and leaves the client
// usable.
func TestClient_Close(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient()
	client.Close()
	client.Close()

	if _, err := client.Check(context.Background(), Target{URL: server.URL}); err != nil {
		t.Errorf("request after Close failed: %v", err)
	}

	var nilClient *Client
	nilClient.Close()
}
