package novaos

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novaos/novaos/internal/store"
)

// brokenStore fails every counter operation.
type brokenStore struct {
	Store
}

func (brokenStore) Incr(context.Context, string) (int64, error) {
	return 0, store.ErrUnavailable
}

func TestTrendFetcher(t *testing.T) {
	p, err := TrendFetcher()
	require.NoError(t, err)
	assert.Equal(t, "TrendFetcher", p.Name())
	assert.Equal(t, 2*time.Hour, p.Interval())

	ms := store.NewMemoryStore()
	for i, want := range []string{"Stream incremented to 1", "Stream incremented to 2"} {
		ev, err := p.run(context.Background(), ms)
		require.NoError(t, err, "run %d", i)
		require.NotNil(t, ev)
		assert.Equal(t, want, ev.Text)
	}

	v, ok, err := ms.Get(context.Background(), StreamsActiveKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2", v)
}

func TestTrendFetcher_StoreFailure(t *testing.T) {
	p, err := TrendFetcher(WithInterval(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, time.Minute, p.Interval())

	_, err = p.run(context.Background(), brokenStore{})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrUnavailable)
}

func TestTimeSentinel(t *testing.T) {
	deadline := time.Date(2025, 8, 4, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		now      time.Time
		wantText string
	}{
		{"far away stays quiet", deadline.Add(-25 * 24 * time.Hour), ""},
		{"exactly at threshold stays quiet", deadline.Add(-20 * 24 * time.Hour), ""},
		{"partial day rounds up", deadline.Add(-(5*24 + 12) * time.Hour), "6 days to $25k/mo goal - Accelerate streams!"},
		{"whole days", deadline.Add(-19 * 24 * time.Hour), "19 days to $25k/mo goal - Accelerate streams!"},
		{"past deadline counts as zero", deadline.Add(72 * time.Hour), "0 days to $25k/mo goal - Accelerate streams!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := tt.now
			p, err := TimeSentinel(Deadline{At: deadline, Clock: func() time.Time { return now }})
			require.NoError(t, err)

			ev, err := p.run(context.Background(), nil)
			require.NoError(t, err)
			if tt.wantText == "" {
				assert.Nil(t, ev)
				return
			}
			require.NotNil(t, ev)
			assert.Equal(t, tt.wantText, ev.Text)
		})
	}
}

func TestTimeSentinel_Config(t *testing.T) {
	_, err := TimeSentinel(Deadline{})
	assert.Error(t, err, "deadline is required")

	_, err = TimeSentinel(Deadline{At: time.Now(), ThresholdDays: -1})
	assert.Error(t, err)

	deadline := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	p, err := TimeSentinel(Deadline{
		At:            deadline,
		Goal:          "launch",
		ThresholdDays: 3,
		Clock:         func() time.Time { return deadline.Add(-48 * time.Hour) },
	})
	require.NoError(t, err)
	assert.Equal(t, "TimeSentinel", p.Name())
	assert.Equal(t, 24*time.Hour, p.Interval())

	ev, err := p.run(context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, "2 days to launch - Accelerate streams!", ev.Text)
}

func TestDaysUntil(t *testing.T) {
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, daysUntil(now, now))
	assert.Equal(t, 1, daysUntil(now, now.Add(time.Minute)))
	assert.Equal(t, 1, daysUntil(now, now.Add(24*time.Hour)))
	assert.Equal(t, 2, daysUntil(now, now.Add(24*time.Hour+time.Nanosecond)))
	assert.Equal(t, 0, daysUntil(now, now.Add(-time.Hour)))
}

func TestHTTPCheck_AnnouncesChanges(t *testing.T) {
	var failing atomic.Bool
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer ts.Close()

	p, err := HTTPCheck("API", ts.URL)
	require.NoError(t, err)
	ctx := context.Background()

	ev, err := p.run(ctx, nil)
	require.NoError(t, err)
	require.NotNil(t, ev, "first result is always announced")
	assert.True(t, strings.HasPrefix(ev.Text, "API is up (200, "), ev.Text)

	ev, err = p.run(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, ev, "unchanged health is not announced")

	failing.Store(true)
	ev, err = p.run(ctx, nil)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.True(t, strings.HasPrefix(ev.Text, "API is down (500, "), ev.Text)
}

func TestHTTPCheck_AnnounceEveryRun(t *testing.T) {
	var gotHeader atomic.Value
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader.Store(r.Header.Get("Authorization"))
		_, _ = w.Write([]byte("all systems GO"))
	}))
	defer ts.Close()

	p, err := HTTPCheck("Site", ts.URL,
		AnnounceEveryRun(),
		WithMethod(http.MethodPost),
		WithHeaders("Authorization", "Bearer token"),
		WithExtractor(BodyContainsHealth("systems go")),
		WithSchedule(WithInterval(time.Minute), WithTimeout(time.Second)),
	)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, p.Interval())
	assert.Equal(t, time.Second, p.Timeout())

	for i := 0; i < 2; i++ {
		ev, err := p.run(context.Background(), nil)
		require.NoError(t, err)
		require.NotNil(t, ev, "run %d", i)
		assert.Contains(t, ev.Text, "Site is up")
	}
	assert.Equal(t, "Bearer token", gotHeader.Load())
}

func TestHTTPCheck_UnreachableIsDown(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	p, err := HTTPCheck("Gone", url)
	require.NoError(t, err)

	ev, err := p.run(context.Background(), nil)
	require.NoError(t, err, "an unreachable target is a result, not a failed run")
	require.NotNil(t, ev)
	assert.Equal(t, "Gone is down (unreachable)", ev.Text)
}

func TestHTTPCheck_TimeoutIsDown(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(release)

	p, err := HTTPCheck("Slow", ts.URL)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	ev, err := p.run(ctx, nil)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.True(t, strings.HasPrefix(ev.Text, "Slow is down (timeout after "), ev.Text)
}

func TestHTTPCheck_OversizedIsDegraded(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", 2<<20)))
	}))
	defer ts.Close()

	p, err := HTTPCheck("Chatty", ts.URL)
	require.NoError(t, err)

	ev, err := p.run(context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, "Chatty is degraded (200, response too large)", ev.Text)
}

func TestHTTPCheck_CanceledRunFails(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer ts.Close()

	p, err := HTTPCheck("API", ts.URL)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ev, err := p.run(ctx, nil)
	assert.Nil(t, ev, "a cancelled run announces nothing")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHTTPCheck_Validation(t *testing.T) {
	tests := []struct {
		name string
		url  string
		opts []CheckOption
	}{
		{"no scheme", "example.com/health", nil},
		{"bad scheme", "ftp://example.com", nil},
		{"bad method", "http://example.com", []CheckOption{WithMethod(http.MethodDelete)}},
		{"odd headers", "http://example.com", []CheckOption{WithHeaders("X-Key")}},
		{"nil extractor", "http://example.com", []CheckOption{WithExtractor(nil)}},
		{"bad schedule", "http://example.com", []CheckOption{WithSchedule(WithInterval(0))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := HTTPCheck("x", tt.url, tt.opts...)
			assert.Error(t, err)
		})
	}

	_, err := HTTPCheck("", "http://example.com")
	assert.Error(t, err, "name is required")
}
