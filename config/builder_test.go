package config

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/novaos/novaos"
)

func TestBuildProducers_BuiltinDefaults(t *testing.T) {
	cfg := &Config{
		Producers: []ProducerConfig{
			{Type: TypeTrendFetcher},
			{Type: TypeTimeSentinel, Deadline: "2025-08-04"},
		},
	}

	producers, err := BuildProducers(cfg)
	if err != nil {
		t.Fatalf("BuildProducers() error = %v", err)
	}
	if len(producers) != 2 {
		t.Fatalf("len(producers) = %d, want 2", len(producers))
	}

	if producers[0].Name() != "TrendFetcher" {
		t.Errorf("producers[0].Name() = %q, want TrendFetcher", producers[0].Name())
	}
	if producers[0].Interval() != 2*time.Hour {
		t.Errorf("producers[0].Interval() = %v, want 2h", producers[0].Interval())
	}
	if producers[1].Name() != "TimeSentinel" {
		t.Errorf("producers[1].Name() = %q, want TimeSentinel", producers[1].Name())
	}
	if producers[1].Interval() != 24*time.Hour {
		t.Errorf("producers[1].Interval() = %v, want 24h", producers[1].Interval())
	}
}

func TestBuildProducers_Overrides(t *testing.T) {
	cfg := &Config{
		Producers: []ProducerConfig{
			{
				Type:     TypeTrendFetcher,
				Name:     "Streams",
				Interval: Duration(10 * time.Minute),
				Timeout:  Duration(3 * time.Second),
			},
			{
				Type:     TypeHTTPCheck,
				Name:     "API",
				URL:      "https://api.example.com/health",
				Method:   "HEAD",
				Interval: Duration(time.Minute),
				Timeout:  Duration(5 * time.Second),
				Headers:  map[string]string{"Authorization": "Bearer token"},
				Extractor: ExtractorConfig{
					Type: "json",
					Path: "checks.redis",
				},
				EveryRun: true,
			},
		},
	}

	producers, err := BuildProducers(cfg)
	if err != nil {
		t.Fatalf("BuildProducers() error = %v", err)
	}

	trend := producers[0]
	if trend.Name() != "Streams" {
		t.Errorf("Name() = %q, want Streams", trend.Name())
	}
	if trend.Interval() != 10*time.Minute {
		t.Errorf("Interval() = %v, want 10m", trend.Interval())
	}
	if trend.Timeout() != 3*time.Second {
		t.Errorf("Timeout() = %v, want 3s", trend.Timeout())
	}

	check := producers[1]
	if check.Name() != "API" {
		t.Errorf("Name() = %q, want API", check.Name())
	}
	if check.Interval() != time.Minute {
		t.Errorf("Interval() = %v, want 1m", check.Interval())
	}
	if check.Timeout() != 5*time.Second {
		t.Errorf("Timeout() = %v, want 5s", check.Timeout())
	}
}

func TestBuildProducers_ErrorNamesProducer(t *testing.T) {
	cfg := &Config{
		Producers: []ProducerConfig{
			{Type: TypeTrendFetcher},
			{Type: TypeHTTPCheck, Name: "Broken", URL: "not a url"},
		},
	}

	_, err := BuildProducers(cfg)
	if err == nil {
		t.Fatal("BuildProducers() expected error, got nil")
	}
	if !strings.Contains(err.Error(), "producers[1] (Broken)") {
		t.Errorf("error = %q, want it to name producers[1] (Broken)", err.Error())
	}
}

func TestBuildProducers_EmptyConfig(t *testing.T) {
	producers, err := BuildProducers(&Config{})
	if err != nil {
		t.Fatalf("BuildProducers() error = %v", err)
	}
	if len(producers) != 0 {
		t.Errorf("len(producers) = %d, want 0", len(producers))
	}
}

func TestBuildOptions(t *testing.T) {
	cfg, err := Parse([]byte(`
store:
  url: memory://
  op_timeout: 1s
  reconnect_base: 100ms
  reconnect_max: 5s
ports:
  relay: 7000
  metrics: 7000
  memory: 7001
channels:
  relay: ops:events
client_queue_size: 16
producers:
  - type: trend_fetcher
  - type: time_sentinel
    deadline: 2025-08-04
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	opts, err := BuildOptions(cfg, nil)
	if err != nil {
		t.Fatalf("BuildOptions() error = %v", err)
	}

	n, err := novaos.New(opts...)
	if err != nil {
		t.Fatalf("novaos.New() error = %v", err)
	}

	wantPorts := map[string]int{
		novaos.ServiceRelay:   7000,
		novaos.ServiceMetrics: 7000,
		novaos.ServiceMemory:  7001,
	}
	if got := n.Ports(); !reflect.DeepEqual(got, wantPorts) {
		t.Errorf("Ports() = %v, want %v", got, wantPorts)
	}
	if n.RelayChannel() != "ops:events" {
		t.Errorf("RelayChannel() = %q, want ops:events", n.RelayChannel())
	}

	var names []string
	for _, p := range n.Producers() {
		names = append(names, p.Name())
	}
	if want := []string{"TrendFetcher", "TimeSentinel"}; !reflect.DeepEqual(names, want) {
		t.Errorf("producer names = %v, want %v", names, want)
	}
}

func TestBuildExtractor(t *testing.T) {
	tests := []struct {
		name       string
		extractor  ExtractorConfig
		body       string
		statusCode int
		wantNil    bool
		want       novaos.Health
	}{
		{name: "empty uses default", extractor: ExtractorConfig{}, wantNil: true},
		{name: "explicit default", extractor: ExtractorConfig{Type: "default"}, wantNil: true},
		{
			name:       "json finds ok",
			extractor:  ExtractorConfig{Type: "json", Path: "status"},
			body:       `{"status": "ok"}`,
			statusCode: 200,
			want:       novaos.HealthUp,
		},
		{
			name:       "json nested degraded",
			extractor:  ExtractorConfig{Type: "json", Path: "checks.redis"},
			body:       `{"checks": {"redis": "degraded"}}`,
			statusCode: 200,
			want:       novaos.HealthDegraded,
		},
		{
			name:       "contains matches",
			extractor:  ExtractorConfig{Type: "contains", Text: "healthy"},
			body:       "service is HEALTHY",
			statusCode: 200,
			want:       novaos.HealthUp,
		},
		{
			name:       "contains no match",
			extractor:  ExtractorConfig{Type: "contains", Text: "healthy"},
			body:       "service is down",
			statusCode: 200,
			want:       novaos.HealthDown,
		},
		{
			name:       "http 404",
			extractor:  ExtractorConfig{Type: "http"},
			statusCode: 404,
			want:       novaos.HealthDegraded,
		},
		{
			name:       "http 500",
			extractor:  ExtractorConfig{Type: "http"},
			statusCode: 500,
			want:       novaos.HealthDown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			extract := buildExtractor(tt.extractor)
			if tt.wantNil {
				if extract != nil {
					t.Error("buildExtractor() = non-nil, want nil")
				}
				return
			}
			if extract == nil {
				t.Fatal("buildExtractor() = nil, want non-nil")
			}
			if got := extract([]byte(tt.body), tt.statusCode); got != tt.want {
				t.Errorf("extractor() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMapToKeyValuePairs_Sorted(t *testing.T) {
	got := mapToKeyValuePairs(map[string]string{"b": "2", "a": "1", "c": "3"})
	want := []string{"a", "1", "b", "2", "c", "3"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("mapToKeyValuePairs() = %v, want %v", got, want)
	}
}
