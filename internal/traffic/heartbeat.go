package traffic

import "time"

// HeartbeatMonitor turns per-source last-event timestamps into a binary
// live signal per source plus an aggregate receiving flag. It is owned
// by the provider's event loop and is not safe for concurrent use.
type HeartbeatMonitor struct {
	timeout  time.Duration
	lastSeen map[string]time.Time
	live     map[string]bool
}

func NewHeartbeatMonitor(timeout time.Duration) *HeartbeatMonitor {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HeartbeatMonitor{
		timeout:  timeout,
		lastSeen: make(map[string]time.Time),
		live:     make(map[string]bool),
	}
}

// Observe records evidence that a source is alive. It returns true if
// the source transitioned dead->live.
func (m *HeartbeatMonitor) Observe(sourceID string, nowUTC time.Time) bool {
	if m == nil || sourceID == "" {
		return false
	}
	m.lastSeen[sourceID] = nowUTC
	if m.live[sourceID] {
		return false
	}
	m.live[sourceID] = true
	return true
}

// Evaluate re-checks every tracked source against the timeout and
// returns the IDs of sources that transitioned live->dead. Evaluation is
// tick-driven so liveness loss is detected even when a source stops
// emitting entirely.
func (m *HeartbeatMonitor) Evaluate(nowUTC time.Time) []string {
	if m == nil {
		return nil
	}
	var dead []string
	cutoff := nowUTC.Add(-m.timeout)
	for id, seen := range m.lastSeen {
		if !m.live[id] {
			continue
		}
		if seen.Before(cutoff) {
			m.live[id] = false
			dead = append(dead, id)
		}
	}
	return dead
}

// Live reports whether a source is currently considered alive.
func (m *HeartbeatMonitor) Live(sourceID string) bool {
	if m == nil {
		return false
	}
	return m.live[sourceID]
}

// Receiving is the aggregate flag: true iff at least one source is live.
func (m *HeartbeatMonitor) Receiving() bool {
	if m == nil {
		return false
	}
	for _, l := range m.live {
		if l {
			return true
		}
	}
	return false
}

// Forget drops all state for a removed source.
func (m *HeartbeatMonitor) Forget(sourceID string) {
	if m == nil {
		return
	}
	delete(m.lastSeen, sourceID)
	delete(m.live, sourceID)
}
