// Package perf tracks execution-time statistics of the periodic tasks
// (tick loops, heartbeat, relay scans) and logs deadline misses. Statistics
// are computed over a sliding window of recent samples.
package perf

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/minefleet/minefleet/core/logger"
)

const windowSize = 100

// Stats is a snapshot of the measurements for one task.
type Stats struct {
	Name           string
	Period         time.Duration
	Count          int
	Min            time.Duration
	Max            time.Duration
	Mean           time.Duration
	StdDev         time.Duration
	P99            time.Duration
	DeadlineMisses int
	WorstOverrun   time.Duration
}

// Monitor collects per-task execution samples. Safe for concurrent use.
type Monitor struct {
	mu    sync.Mutex
	tasks map[string]*taskStats
	log   logger.Logger
}

type taskStats struct {
	period  time.Duration
	count   int
	min     time.Duration
	max     time.Duration
	window  []float64 // seconds, newest last
	misses  int
	overrun time.Duration
}

// New creates a Monitor. A nil log disables warning output.
func New(log logger.Logger) *Monitor {
	if log == nil {
		log = logger.Nop{}
	}
	return &Monitor{tasks: make(map[string]*taskStats), log: log}
}

// Register declares a task and its expected period. Observing an
// unregistered task auto-registers it with no deadline.
func (m *Monitor) Register(name string, period time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[name]; !ok {
		m.tasks[name] = &taskStats{period: period}
	}
}

// Observe records one execution duration for the task.
func (m *Monitor) Observe(name string, d time.Duration) {
	m.mu.Lock()
	t, ok := m.tasks[name]
	if !ok {
		t = &taskStats{}
		m.tasks[name] = t
	}
	t.count++
	if t.count == 1 || d < t.min {
		t.min = d
	}
	if d > t.max {
		t.max = d
	}
	t.window = append(t.window, d.Seconds())
	if len(t.window) > windowSize {
		t.window = t.window[1:]
	}
	var miss bool
	var overrun time.Duration
	if t.period > 0 && d > t.period {
		t.misses++
		overrun = d - t.period
		if overrun > t.overrun {
			t.overrun = overrun
		}
		miss = true
	}
	m.mu.Unlock()

	if miss {
		m.log.Warnf("task %s overran its period by %v (took %v)", name, overrun, d)
	}
}

// Stats returns a snapshot for the task, or ok=false if it is unknown.
func (m *Monitor) Stats(name string) (Stats, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[name]
	if !ok {
		return Stats{}, false
	}
	s := Stats{
		Name:           name,
		Period:         t.period,
		Count:          t.count,
		Min:            t.min,
		Max:            t.max,
		DeadlineMisses: t.misses,
		WorstOverrun:   t.overrun,
	}
	if len(t.window) > 0 {
		mean := stat.Mean(t.window, nil)
		s.Mean = secondsToDuration(mean)
		if len(t.window) >= 2 {
			s.StdDev = secondsToDuration(stat.StdDev(t.window, nil))
		}
		sorted := append([]float64(nil), t.window...)
		sort.Float64s(sorted)
		s.P99 = secondsToDuration(stat.Quantile(0.99, stat.Empirical, sorted, nil))
	}
	return s, true
}

// All returns a snapshot of every known task, sorted by name.
func (m *Monitor) All() []Stats {
	m.mu.Lock()
	names := make([]string, 0, len(m.tasks))
	for n := range m.tasks {
		names = append(names, n)
	}
	m.mu.Unlock()
	sort.Strings(names)
	out := make([]Stats, 0, len(names))
	for _, n := range names {
		if s, ok := m.Stats(n); ok {
			out = append(out, s)
		}
	}
	return out
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
