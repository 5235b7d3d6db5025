package perf_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudtext/docsync/internal/perf"
)

func fakeClock(start time.Time, steps ...time.Duration) func() time.Time {
	i := -1
	cur := start

	return func() time.Time {
		if i >= 0 && i < len(steps) {
			cur = cur.Add(steps[i])
		}

		i++

		return cur
	}
}

func TestStartStopRecordsDuration(t *testing.T) {
	m := perf.New(fakeClock(time.Unix(0, 0), 50*time.Millisecond))

	id := m.StartTiming("push", "")
	m.StopTiming(id, "push", nil, true)

	stats := m.GetStats("push", 0)
	require.Equal(t, 1, stats.Count)
	assert.Equal(t, 50*time.Millisecond, stats.Avg)
	assert.Equal(t, 50*time.Millisecond, stats.Min)
	assert.Equal(t, 50*time.Millisecond, stats.Max)
}

func TestStopTimingIgnoresUnknownID(t *testing.T) {
	m := perf.New(nil)

	m.StopTiming("missing", "push", nil, true)

	stats := m.GetStats("push", 0)
	assert.Equal(t, 0, stats.Count)
}

func TestGetStatsComputesP95(t *testing.T) {
	m := perf.New(nil)

	for i := 0; i < 20; i++ {
		id := m.StartTiming("pull", "")
		m.StopTiming(id, "pull", nil, true)
	}

	stats := m.GetStats("pull", 0)
	assert.Equal(t, 20, stats.Count)
	assert.GreaterOrEqual(t, stats.P95, stats.Avg-time.Second) // sanity: non-negative, bounded
}

func TestGetStatsFiltersByType(t *testing.T) {
	m := perf.New(nil)

	id1 := m.StartTiming("push", "")
	m.StopTiming(id1, "push", nil, true)

	id2 := m.StartTiming("pull", "")
	m.StopTiming(id2, "pull", nil, true)

	assert.Equal(t, 1, m.GetStats("push", 0).Count)
	assert.Equal(t, 1, m.GetStats("pull", 0).Count)
	assert.Equal(t, 0, m.GetStats("other", 0).Count)
}

func TestRingBufferBoundedAtMaxSamples(t *testing.T) {
	m := perf.New(nil)

	for i := 0; i < perf.MaxSamples+50; i++ {
		id := m.StartTiming("op", "")
		m.StopTiming(id, "op", nil, true)
	}

	stats := m.GetStats("op", 0)
	assert.Equal(t, perf.MaxSamples, stats.Count)
}

func TestTimeWrapsFnAndRecordsFailure(t *testing.T) {
	m := perf.New(nil)

	err := m.Time(context.Background(), "call", func(ctx context.Context) error {
		return errors.New("boom")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, m.GetStats("call", 0).Count)
}
