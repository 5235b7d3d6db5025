// Package perf tracks operation timings in a bounded ring buffer and
// summarizes them into count/avg/min/max/p95 windows, the way a lightweight
// in-process performance monitor does for a CLI or agent that has no
// metrics backend to scrape it.
package perf

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"
)

// MaxSamples bounds the ring buffer of retained timing samples.
const MaxSamples = 1000

// Sample is one completed timing observation.
type Sample struct {
	Type      string
	ID        string
	Duration  time.Duration
	Success   bool
	Metadata  map[string]any
	StoppedAt time.Time
}

// Stats summarizes a window of samples of one type.
type Stats struct {
	Count int
	Avg   time.Duration
	Min   time.Duration
	Max   time.Duration
	P95   time.Duration
	Total time.Duration
}

type inFlight struct {
	typ     string
	started time.Time
}

// Monitor is a bounded ring buffer of timing samples with start/stop
// bookkeeping for in-flight operations.
type Monitor struct {
	mu      sync.Mutex
	samples []Sample
	next    int
	full    bool
	active  map[string]inFlight
	now     func() time.Time
	seq     int
}

// New builds an empty Monitor. A nil now defaults to time.Now.
func New(now func() time.Time) *Monitor {
	if now == nil {
		now = time.Now
	}

	return &Monitor{
		samples: make([]Sample, MaxSamples),
		active:  make(map[string]inFlight),
		now:     now,
	}
}

// StartTiming begins tracking an operation of typ, returning the id used
// to stop it. If id is empty, one is generated.
func (m *Monitor) StartTiming(typ, id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id == "" {
		m.seq++
		id = typ + "-" + strconv.Itoa(m.seq)
	}

	m.active[id] = inFlight{typ: typ, started: m.now()}

	return id
}

// StopTiming ends tracking for id and records the resulting sample. If id
// was never started, StopTiming is a no-op.
func (m *Monitor) StopTiming(id, typ string, metadata map[string]any, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start, ok := m.active[id]
	if !ok {
		return
	}

	delete(m.active, id)

	now := m.now()
	m.record(Sample{
		Type: typ, ID: id, Duration: now.Sub(start.started),
		Success: success, Metadata: metadata, StoppedAt: now,
	})
}

func (m *Monitor) record(s Sample) {
	m.samples[m.next] = s
	m.next = (m.next + 1) % MaxSamples

	if m.next == 0 {
		m.full = true
	}
}

func (m *Monitor) snapshot() []Sample {
	if !m.full {
		out := make([]Sample, m.next)
		copy(out, m.samples[:m.next])

		return out
	}

	out := make([]Sample, MaxSamples)
	copy(out, m.samples[m.next:])
	copy(out[MaxSamples-m.next:], m.samples[:m.next])

	return out
}

// GetStats summarizes samples of typ whose StoppedAt falls within the
// last periodMs milliseconds. periodMs <= 0 means no time bound.
func (m *Monitor) GetStats(typ string, periodMs int64) Stats {
	m.mu.Lock()
	all := m.snapshot()
	now := m.now()
	m.mu.Unlock()

	var durations []time.Duration

	var total time.Duration

	for _, s := range all {
		if s.Type != typ {
			continue
		}

		if periodMs > 0 && now.Sub(s.StoppedAt) > time.Duration(periodMs)*time.Millisecond {
			continue
		}

		durations = append(durations, s.Duration)
		total += s.Duration
	}

	if len(durations) == 0 {
		return Stats{}
	}

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	return Stats{
		Count: len(durations),
		Avg:   total / time.Duration(len(durations)),
		Min:   durations[0],
		Max:   durations[len(durations)-1],
		P95:   percentile95(durations),
		Total: total,
	}
}

func percentile95(sorted []time.Duration) time.Duration {
	if len(sorted) == 1 {
		return sorted[0]
	}

	idx := int(float64(len(sorted))*0.95 + 0.5)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}

	return sorted[idx]
}

// Time wraps fn with start/stop timing, recording success based on
// whether fn returns a nil error.
func (m *Monitor) Time(ctx context.Context, typ string, fn func(ctx context.Context) error) error {
	id := m.StartTiming(typ, "")
	err := fn(ctx)
	m.StopTiming(id, typ, nil, err == nil)

	return err
}
