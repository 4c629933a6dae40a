package novaos

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func TestNew_Valid(t *testing.T) {
	p, _ := NewProducer("Echo", func(context.Context, Store) (*Event, error) { return nil, nil })

	n, err := New(WithStoreURL("memory://"), WithProducer(p))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if len(n.Producers()) != 1 {
		t.Errorf("len(Producers()) = %v, want %v", len(n.Producers()), 1)
	}
}

func TestNew_NoStoreURL(t *testing.T) {
	_, err := New()
	if err == nil {
		t.Fatal("New() expected error for missing store URL, got nil")
	}
	if !strings.Contains(err.Error(), "store URL is required") {
		t.Errorf("New() error = %v, want error containing 'store URL is required'", err)
	}
}

func TestNew_DuplicateProducerNames(t *testing.T) {
	fn := func(context.Context, Store) (*Event, error) { return nil, nil }
	p1, _ := NewProducer("Sentinel", fn)
	p2, _ := NewProducer("Other", fn)
	p3, _ := NewProducer("Sentinel", fn, WithInterval(time.Minute))

	_, err := New(WithStoreURL("memory://"), WithProducers(p1, p2, p3))
	if err == nil {
		t.Fatal("New() expected error for duplicate producer names, got nil")
	}
	if !strings.Contains(err.Error(), "duplicate producer name") {
		t.Errorf("New() error = %v, want error containing 'duplicate producer name'", err)
	}
}

func TestNew_ZeroValueProducer(t *testing.T) {
	_, err := New(WithStoreURL("memory://"), WithProducer(Producer{}))
	if err == nil {
		t.Error("New() expected error for a producer not built with NewProducer, got nil")
	}
}

func TestNew_Defaults(t *testing.T) {
	n, err := New(WithStoreURL("memory://"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ports := n.Ports()
	if ports[ServiceRelay] != 4000 || ports[ServiceMetrics] != 5000 || ports[ServiceMemory] != 6000 {
		t.Errorf("Ports() = %v, want relay 4000, metrics 5000, memory 6000", ports)
	}
	if n.RelayChannel() != "novaos:commands" {
		t.Errorf("RelayChannel() = %q, want %q", n.RelayChannel(), "novaos:commands")
	}
	if n.cfg.maxConcurrency != 4 {
		t.Errorf("maxConcurrency = %d, want 4", n.cfg.maxConcurrency)
	}
	if n.cfg.queueKey != "novaos:queue" || n.cfg.journalKey != "chat_memory" {
		t.Errorf("keys = %q, %q, want novaos:queue, chat_memory", n.cfg.queueKey, n.cfg.journalKey)
	}
	if n.cfg.opTimeout != 2*time.Second {
		t.Errorf("opTimeout = %v, want 2s", n.cfg.opTimeout)
	}
	if n.cfg.registry == nil {
		t.Error("registry should default to a fresh registry")
	}
}

func TestNew_StatusesBeforeStart(t *testing.T) {
	p, _ := NewProducer("Echo", func(context.Context, Store) (*Event, error) { return nil, nil }, WithInterval(time.Minute))
	n, err := New(WithStoreURL("memory://"), WithProducer(p))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	statuses := n.Statuses()
	if len(statuses) != 1 {
		t.Fatalf("len(Statuses()) = %d, want 1", len(statuses))
	}
	if statuses[0].Name != "Echo" || statuses[0].Interval != "1m0s" || statuses[0].Runs != 0 {
		t.Errorf("Statuses()[0] = %+v, want an empty record for Echo", statuses[0])
	}
}

func TestOptions_Validation(t *testing.T) {
	tests := []struct {
		name    string
		opt     Option
		wantErr bool
	}{
		{"store url", WithStoreURL("redis://localhost:6379"), false},
		{"empty store url", WithStoreURL(""), true},
		{"op timeout", WithOpTimeout(time.Second), false},
		{"zero op timeout", WithOpTimeout(0), true},
		{"backoff", WithReconnectBackoff(100*time.Millisecond, 3*time.Second), false},
		{"zero backoff", WithReconnectBackoff(0, time.Second), true},
		{"backoff base above ceiling", WithReconnectBackoff(5*time.Second, time.Second), true},
		{"relay port", WithRelayPort(4000), false},
		{"ephemeral port", WithRelayPort(0), false},
		{"negative port", WithMetricsPort(-1), true},
		{"port too high", WithMemoryPort(65536), true},
		{"relay channel", WithRelayChannel("ops"), false},
		{"empty relay channel", WithRelayChannel(""), true},
		{"empty queue key", WithQueueKey(""), true},
		{"empty journal key", WithJournalKey(""), true},
		{"client queue", WithClientQueueSize(8), false},
		{"zero client queue", WithClientQueueSize(0), true},
		{"concurrency", WithMaxConcurrency(2), false},
		{"zero concurrency", WithMaxConcurrency(0), true},
		{"logger", WithLogger(zap.NewNop()), false},
		{"nil logger", WithLogger(nil), true},
		{"registry", WithRegistry(prometheus.NewRegistry()), false},
		{"nil registry", WithRegistry(nil), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(WithStoreURL("memory://"), tt.opt)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestProducer_Options(t *testing.T) {
	fn := func(context.Context, Store) (*Event, error) { return nil, nil }

	p, err := NewProducer("Echo", fn)
	if err != nil {
		t.Fatalf("NewProducer() error = %v", err)
	}
	if p.Interval() != time.Hour || p.Timeout() != 30*time.Second {
		t.Errorf("defaults = %v, %v, want 1h, 30s", p.Interval(), p.Timeout())
	}

	p, err = NewProducer("Echo", fn, WithInterval(24*time.Hour), WithTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("NewProducer() error = %v", err)
	}
	if p.Name() != "Echo" || p.Interval() != 24*time.Hour || p.Timeout() != 5*time.Second {
		t.Errorf("producer = %s %v %v", p.Name(), p.Interval(), p.Timeout())
	}

	for name, build := range map[string]func() (Producer, error){
		"empty name":     func() (Producer, error) { return NewProducer("", fn) },
		"nil func":       func() (Producer, error) { return NewProducer("x", nil) },
		"short interval": func() (Producer, error) { return NewProducer("x", fn, WithInterval(500*time.Millisecond)) },
		"zero timeout":   func() (Producer, error) { return NewProducer("x", fn, WithTimeout(0)) },
	} {
		if _, err := build(); err == nil {
			t.Errorf("%s: NewProducer() expected error, got nil", name)
		}
	}
}

func TestProducer_WithName(t *testing.T) {
	launch, err := TimeSentinel(Deadline{At: time.Now().Add(48 * time.Hour)}, WithName("Launch"))
	if err != nil {
		t.Fatalf("TimeSentinel() error = %v", err)
	}
	renewal, err := TimeSentinel(Deadline{At: time.Now().Add(96 * time.Hour)}, WithName("Renewal"))
	if err != nil {
		t.Fatalf("TimeSentinel() error = %v", err)
	}

	if launch.Name() != "Launch" || renewal.Name() != "Renewal" {
		t.Errorf("names = %q, %q", launch.Name(), renewal.Name())
	}

	if _, err := New(WithStoreURL("memory://"), WithProducers(launch, renewal)); err != nil {
		t.Errorf("New() with renamed sentinels error = %v", err)
	}

	if _, err := TrendFetcher(WithName("")); err == nil {
		t.Error("TrendFetcher(WithName(\"\")) expected error, got nil")
	}
}
