package simulation

import (
	"sort"
	"sync"
	"time"
)

// recentWindow bounds the ring of step durations used for the percentile.
const recentWindow = 256

// TickMetricsSnapshot summarises observed director step durations.
type TickMetricsSnapshot struct {
	Samples  int
	Overruns int
	Budget   time.Duration
	Average  time.Duration
	P95      time.Duration
	Max      time.Duration
	Last     time.Duration
}

// AverageFPS is the step rate the controller could sustain at the average cost.
func (s TickMetricsSnapshot) AverageFPS() float64 {
	if s.Average <= 0 {
		return 0
	}
	return float64(time.Second) / float64(s.Average)
}

// OverrunRatio is the fraction of steps that took longer than the budget.
func (s TickMetricsSnapshot) OverrunRatio() float64 {
	if s.Samples == 0 {
		return 0
	}
	return float64(s.Overruns) / float64(s.Samples)
}

// TickMonitor collects controller step timings. Steps slower than the budget
// count as overruns because the loop then has to catch up with back to back
// ticks. A nil monitor ignores observations.
type TickMonitor struct {
	mu       sync.Mutex
	budget   time.Duration
	samples  int
	overruns int
	total    time.Duration
	max      time.Duration
	recent   [recentWindow]time.Duration
}

// NewTickMonitor returns a monitor with no budget. The loop assigns its step
// interval as the budget unless SetBudget was called first.
func NewTickMonitor() *TickMonitor {
	return &TickMonitor{}
}

// SetBudget changes the duration above which a step counts as an overrun.
func (m *TickMonitor) SetBudget(budget time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.budget = budget
	m.mu.Unlock()
}

func (m *TickMonitor) adoptBudget(budget time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	if m.budget <= 0 {
		m.budget = budget
	}
	m.mu.Unlock()
}

// Observe records how long one controller step took.
func (m *TickMonitor) Observe(duration time.Duration) {
	if m == nil || duration <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recent[m.samples%recentWindow] = duration
	m.samples++
	m.total += duration
	if duration > m.max {
		m.max = duration
	}
	if m.budget > 0 && duration > m.budget {
		m.overruns++
	}
}

// Snapshot copies the aggregates and computes the p95 over the recent window.
func (m *TickMonitor) Snapshot() TickMetricsSnapshot {
	if m == nil {
		return TickMetricsSnapshot{}
	}
	m.mu.Lock()
	snap := TickMetricsSnapshot{
		Samples:  m.samples,
		Overruns: m.overruns,
		Budget:   m.budget,
		Max:      m.max,
	}
	window := m.samples
	if window > recentWindow {
		window = recentWindow
	}
	recent := make([]time.Duration, window)
	copy(recent, m.recent[:window])
	if m.samples > 0 {
		snap.Average = m.total / time.Duration(m.samples)
		snap.Last = m.recent[(m.samples-1)%recentWindow]
	}
	m.mu.Unlock()

	if len(recent) > 0 {
		sort.Slice(recent, func(i, j int) bool { return recent[i] < recent[j] })
		snap.P95 = recent[(len(recent)*95+99)/100-1]
	}
	return snap
}

// Reset clears every sample but keeps the budget.
func (m *TickMonitor) Reset() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.samples = 0
	m.overruns = 0
	m.total = 0
	m.max = 0
	m.recent = [recentWindow]time.Duration{}
	m.mu.Unlock()
}
