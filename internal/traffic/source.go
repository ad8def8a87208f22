package traffic

import (
	"context"
	"time"
)

// ConnState describes the connection lifecycle of one source.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateFailed       ConnState = "failed"
)

// Event is one message from a source into the provider's event loop.
// Exactly one of Factor, Warning, Heartbeat or State is set.
type Event struct {
	SourceID string

	Factor    *Factor
	Warning   *Warning
	Heartbeat bool
	State     ConnState

	TimeUTC time.Time
}

// EmitFunc delivers an event to the provider. Implementations must honor
// ctx so a cancelled source never blocks on delivery.
type EmitFunc func(ctx context.Context, ev Event)

// Source is one independent traffic data feed (network receiver,
// simulator, replay). Implementations manage their own connection
// lifecycle and emit events at their own pace.
//
// Connect is idempotent: calling it while Connecting or Connected is a
// no-op. Disconnect cancels any in-flight connection attempt, releases
// all resources and guarantees that no events are emitted after it
// returns.
type Source interface {
	ID() string
	Priority() int
	Connect(ctx context.Context, emit EmitFunc) error
	Disconnect()
	State() ConnState
	Snapshot(nowUTC time.Time) SourceSnapshot
}

// SourceSnapshot is a point-in-time view of one source for status output.
type SourceSnapshot struct {
	ID          string `json:"id"`
	Addr        string `json:"addr,omitempty"`
	State       string `json:"state"`
	Priority    int    `json:"priority"`
	LastError   string `json:"last_error,omitempty"`
	LastSeenUTC string `json:"last_seen_utc,omitempty"`
	Reports     uint64 `json:"reports"`
}
