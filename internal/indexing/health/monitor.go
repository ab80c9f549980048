package health

import (
	"sync"
	"time"
)

const (
	// DegradedAfter is the consecutive failure count that degrades health.
	DegradedAfter = 1
	// CriticalAfter is the consecutive failure count that makes health critical.
	CriticalAfter = 5
	// StaleIntervals is how many sync intervals may pass without a successful
	// or skipped pass before health is critical.
	StaleIntervals = 10
)

// Monitor tracks pass outcomes reported by the pipeline.
type Monitor struct {
	interval time.Duration
	started  time.Time
	now      func() time.Time

	mu      sync.RWMutex
	network string
	passes  PassHealth
}

// NewMonitor creates a monitor for a pipeline running every interval.
func NewMonitor(interval time.Duration) *Monitor {
	return &Monitor{
		interval: interval,
		started:  time.Now(),
		now:      time.Now,
	}
}

// SetNetwork records the network name shown in reports.
func (m *Monitor) SetNetwork(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.network = name
}

// RecordSuccess marks a completed pass.
func (m *Monitor) RecordSuccess(passID string, peakHeight int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.passes.LastPassID = passID
	m.passes.LastSuccess = &now
	m.passes.ConsecutiveFailures = 0
	m.passes.TotalPasses++
	m.passes.Standby = false
	if peakHeight > m.passes.PeakHeight {
		m.passes.PeakHeight = peakHeight
	}
}

// RecordFailure marks an abandoned pass.
func (m *Monitor) RecordFailure(passID, category string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.passes.LastPassID = passID
	m.passes.LastFailure = &now
	m.passes.ConsecutiveFailures++
	m.passes.TotalPasses++
	m.passes.LastErrorCategory = category
	if err != nil {
		m.passes.LastError = err.Error()
	}
}

// RecordSkipped marks a pass skipped because another replica holds the
// writer lock. A standby that reaches the lock store counts as live.
func (m *Monitor) RecordSkipped(passID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.passes.LastPassID = passID
	m.passes.LastSkipped = &now
	m.passes.ConsecutiveFailures = 0
	m.passes.TotalPasses++
	m.passes.Standby = true
}

// Report evaluates the current status.
func (m *Monitor) Report() HealthReport {
	m.mu.RLock()
	defer m.mu.RUnlock()

	passes := m.passes
	passes.Status = m.evaluate()
	return HealthReport{
		SystemStatus: passes.Status,
		Network:      m.network,
		Passes:       passes,
	}
}

func (m *Monitor) evaluate() SystemStatus {
	if m.passes.ConsecutiveFailures >= CriticalAfter {
		return StatusCritical
	}

	lastOK := m.started
	if m.passes.LastSuccess != nil {
		lastOK = *m.passes.LastSuccess
	}
	if m.passes.LastSkipped != nil && m.passes.LastSkipped.After(lastOK) {
		lastOK = *m.passes.LastSkipped
	}
	if m.interval > 0 && m.now().Sub(lastOK) > StaleIntervals*m.interval {
		return StatusCritical
	}

	if m.passes.ConsecutiveFailures >= DegradedAfter {
		return StatusDegraded
	}
	return StatusHealthy
}
