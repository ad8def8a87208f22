package traffic

import (
	"testing"
	"time"
)

func TestHeartbeatMonitor_ObserveMakesLive(t *testing.T) {
	m := NewHeartbeatMonitor(5 * time.Second)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	if m.Receiving() {
		t.Fatalf("receiving before any observation")
	}
	if !m.Observe("a", now) {
		t.Fatalf("first observation did not report dead->live")
	}
	if m.Observe("a", now.Add(time.Second)) {
		t.Fatalf("repeat observation reported a transition")
	}
	if !m.Live("a") || !m.Receiving() {
		t.Fatalf("live=%v receiving=%v want true/true", m.Live("a"), m.Receiving())
	}
}

func TestHeartbeatMonitor_SilenceKills(t *testing.T) {
	m := NewHeartbeatMonitor(5 * time.Second)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	m.Observe("a", now)
	if dead := m.Evaluate(now.Add(4 * time.Second)); len(dead) != 0 {
		t.Fatalf("dead=%v before timeout", dead)
	}
	dead := m.Evaluate(now.Add(6 * time.Second))
	if len(dead) != 1 || dead[0] != "a" {
		t.Fatalf("dead=%v want [a]", dead)
	}
	if m.Live("a") || m.Receiving() {
		t.Fatalf("live=%v receiving=%v want false/false", m.Live("a"), m.Receiving())
	}
	// Transition reported once only.
	if dead := m.Evaluate(now.Add(7 * time.Second)); len(dead) != 0 {
		t.Fatalf("dead=%v reported twice", dead)
	}
}

func TestHeartbeatMonitor_ReceivingIsOrOverSources(t *testing.T) {
	m := NewHeartbeatMonitor(5 * time.Second)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	m.Observe("a", now)
	m.Observe("b", now.Add(4*time.Second))

	dead := m.Evaluate(now.Add(6 * time.Second))
	if len(dead) != 1 || dead[0] != "a" {
		t.Fatalf("dead=%v want [a]", dead)
	}
	if !m.Receiving() {
		t.Fatalf("receiving=false with one live source")
	}
}

func TestHeartbeatMonitor_Forget(t *testing.T) {
	m := NewHeartbeatMonitor(5 * time.Second)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	m.Observe("a", now)
	m.Forget("a")
	if m.Live("a") || m.Receiving() {
		t.Fatalf("forgotten source still live")
	}
}
