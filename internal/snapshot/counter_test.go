package snapshot

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/novaos/novaos/internal/store"
	"github.com/novaos/novaos/internal/telemetry"
)

func TestDefaultCounters(t *testing.T) {
	counters := DefaultCounters("")
	require.Len(t, counters, 4)

	assert.Equal(t, QueueDepth, counters[0].Name)
	assert.Equal(t, DefaultQueueKey, counters[0].Key)
	assert.False(t, counters[0].Incrementable())

	custom := DefaultCounters("jobs")
	assert.Equal(t, "jobs", custom[0].Key)

	fallbacks := map[string]int64{}
	for _, c := range counters {
		fallbacks[c.Name] = c.Fallback
	}
	assert.Equal(t, map[string]int64{QueueDepth: 0, StreamsActive: 1, Revenue: 25000, Users: 100}, fallbacks)
}

func TestReader_TypedReadings(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, ms.Set(ctx, StreamsActiveKey, "7"))
	require.NoError(t, ms.Set(ctx, UsersKey, "many"))

	m := telemetry.NewNop()
	r := NewReader(ms, DefaultCounters(""), m, zaptest.NewLogger(t))
	readings := r.ReadAll(ctx)
	require.Len(t, readings, 4)

	byName := map[string]Reading{}
	for _, rd := range readings {
		byName[rd.Counter.Name] = rd
	}

	assert.Equal(t, SourceStore, byName[QueueDepth].Source)
	assert.Equal(t, SourceStore, byName[StreamsActive].Source)
	assert.Equal(t, int64(7), byName[StreamsActive].Value)

	assert.Equal(t, SourceFallbackAbsent, byName[Revenue].Source)
	assert.NoError(t, byName[Revenue].Err)

	// unparsable values fall back like absent keys but keep the parse error
	assert.Equal(t, SourceFallbackAbsent, byName[Users].Source)
	assert.Equal(t, int64(100), byName[Users].Value)
	assert.Error(t, byName[Users].Err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SnapshotFallbacks.WithLabelValues(Users, "absent")))
}

func TestReader_UnavailableStore(t *testing.T) {
	r := NewReader(downStore{}, DefaultCounters(""), nil, nil)

	for _, rd := range r.ReadAll(context.Background()) {
		assert.True(t, rd.FellBack())
		assert.Equal(t, SourceFallbackUnavailable, rd.Source)
		assert.ErrorIs(t, rd.Err, store.ErrUnavailable)
		assert.Equal(t, rd.Counter.Fallback, rd.Value)
	}
}

func TestSource_String(t *testing.T) {
	assert.Equal(t, "store", SourceStore.String())
	assert.Equal(t, "absent", SourceFallbackAbsent.String())
	assert.Equal(t, "unavailable", SourceFallbackUnavailable.String())
	assert.Equal(t, "unknown", Source(9).String())
}
