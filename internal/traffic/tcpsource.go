package traffic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"
)

type TCPSourceConfig struct {
	ID   string
	Addr string

	// Priority breaks arbitration ties between sources. Higher wins.
	Priority int

	// DialTimeout is used for the initial TCP connect.
	DialTimeout  time.Duration
	MaxLineBytes int
}

// TCPSource reads newline-delimited JSON of already-normalized traffic
// reports from a receiver on the local network. It performs no wire
// protocol decoding; the receiver side is expected to emit normalized
// messages (see parseWireLine for the accepted shapes).
//
// One Connect runs one connection attempt. Reconnection policy lives in
// the provider, not here.
type TCPSource struct {
	cfg TCPSourceConfig

	mu       sync.Mutex
	state    ConnState
	lastErr  string
	lastSeen time.Time
	reports  uint64
	closed   bool

	cancel context.CancelFunc
	done   chan struct{}
}

func NewTCPSource(cfg TCPSourceConfig) (*TCPSource, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("tcp source id is required")
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("tcp source addr is required")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 2 * time.Second
	}
	if cfg.MaxLineBytes <= 0 {
		cfg.MaxLineBytes = 64 * 1024
	}
	return &TCPSource{cfg: cfg, state: StateDisconnected}, nil
}

func (s *TCPSource) ID() string    { return s.cfg.ID }
func (s *TCPSource) Priority() int { return s.cfg.Priority }

func (s *TCPSource) State() ConnState {
	if s == nil {
		return StateDisconnected
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect starts one connection attempt. A no-op while already
// Connecting or Connected.
func (s *TCPSource) Connect(ctx context.Context, emit EmitFunc) error {
	if s == nil {
		return fmt.Errorf("tcp source is nil")
	}
	if emit == nil {
		return fmt.Errorf("tcp source emit is nil")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("tcp source is closed")
	}
	if s.state == StateConnecting || s.state == StateConnected {
		s.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.state = StateConnecting
	s.lastErr = ""
	s.mu.Unlock()

	go func() {
		defer close(done)
		emit(runCtx, Event{SourceID: s.cfg.ID, State: StateConnecting, TimeUTC: time.Now().UTC()})
		s.runOnce(runCtx, emit)
	}()
	return nil
}

// Disconnect cancels any in-flight attempt or open connection and waits
// for the reader goroutine to finish. No events are emitted after it
// returns.
func (s *TCPSource) Disconnect() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	s.mu.Lock()
	s.state = StateDisconnected
	s.mu.Unlock()
}

func (s *TCPSource) Snapshot(nowUTC time.Time) SourceSnapshot {
	if s == nil {
		return SourceSnapshot{}
	}
	s.mu.Lock()
	state := s.state
	lastErr := s.lastErr
	lastSeen := s.lastSeen
	reports := s.reports
	s.mu.Unlock()

	out := SourceSnapshot{
		ID:        s.cfg.ID,
		Addr:      s.cfg.Addr,
		State:     string(state),
		Priority:  s.cfg.Priority,
		LastError: lastErr,
		Reports:   reports,
	}
	if !lastSeen.IsZero() {
		out.LastSeenUTC = lastSeen.UTC().Format(time.RFC3339Nano)
	}
	return out
}

func (s *TCPSource) runOnce(ctx context.Context, emit EmitFunc) {
	dialer := &net.Dialer{Timeout: s.cfg.DialTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		if ctx.Err() != nil {
			s.setState(StateDisconnected, "")
			return
		}
		s.setState(StateFailed, err.Error())
		emit(ctx, Event{SourceID: s.cfg.ID, State: StateFailed, TimeUTC: time.Now().UTC()})
		return
	}

	// Unblock the reader when the source is cancelled mid-read.
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	s.setState(StateConnected, "")
	emit(ctx, Event{SourceID: s.cfg.ID, State: StateConnected, TimeUTC: time.Now().UTC()})

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if ctx.Err() != nil {
				s.setState(StateDisconnected, "")
				return
			}
			s.setState(StateDisconnected, err.Error())
			emit(ctx, Event{SourceID: s.cfg.ID, State: StateDisconnected, TimeUTC: time.Now().UTC()})
			return
		}

		if len(line) > s.cfg.MaxLineBytes {
			// Drop oversized lines to avoid memory issues.
			s.setState(StateConnected, fmt.Sprintf("line too large (%d bytes)", len(line)))
			continue
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		now := time.Now().UTC()
		ev, ok := parseWireLine(s.cfg.ID, line, now)
		if !ok {
			// Malformed report: dropped silently.
			continue
		}

		s.mu.Lock()
		s.lastSeen = now
		s.reports++
		s.mu.Unlock()

		emit(ctx, ev)
	}
}

func (s *TCPSource) setState(state ConnState, lastErr string) {
	s.mu.Lock()
	s.state = state
	if lastErr != "" {
		s.lastErr = lastErr
	} else if state == StateConnected || state == StateConnecting {
		// Clear stale errors on healthy states so status output doesn't
		// look broken after a transient failure.
		s.lastErr = ""
	}
	s.mu.Unlock()
}

// wireMessage is the normalized NDJSON shape emitted by receivers.
type wireMessage struct {
	Type       string   `json:"type"`
	ID         string   `json:"id,omitempty"`
	Lat        *float64 `json:"lat,omitempty"`
	Lon        *float64 `json:"lon,omitempty"`
	AltFt      *int     `json:"alt_ft,omitempty"`
	DistNm     *float64 `json:"dist_nm,omitempty"`
	BearingDeg *float64 `json:"bearing_deg,omitempty"`
	VDistFt    *int     `json:"vdist_ft,omitempty"`
	Class      string   `json:"class,omitempty"`
	Level      *int     `json:"level,omitempty"`
	Valid      *bool    `json:"valid,omitempty"`
}

// parseWireLine maps one normalized NDJSON line onto an event. Accepted
// types: "traffic" (positioned), "traffic_np" (no position), "warning",
// "heartbeat". Anything else, or a structurally broken message, returns
// false and is dropped.
func parseWireLine(sourceID string, line []byte, nowUTC time.Time) (Event, bool) {
	var m wireMessage
	if err := json.Unmarshal(line, &m); err != nil {
		return Event{}, false
	}

	valid := true
	if m.Valid != nil {
		valid = *m.Valid
	}

	switch m.Type {
	case "heartbeat":
		return Event{SourceID: sourceID, Heartbeat: true, TimeUTC: nowUTC}, true

	case "warning":
		if m.Level == nil {
			return Event{}, false
		}
		lvl := AlarmLevel(*m.Level)
		if !lvl.Valid() {
			return Event{}, false
		}
		w := Warning{SourceID: sourceID, ObjectID: m.ID, Level: lvl, TimestampUTC: nowUTC}
		return Event{SourceID: sourceID, Warning: &w, TimeUTC: nowUTC}, true

	case "traffic":
		if m.Lat == nil || m.Lon == nil {
			return Event{}, false
		}
		f := Factor{
			SourceID:     sourceID,
			ObjectID:     m.ID,
			HasPosition:  true,
			LatDeg:       *m.Lat,
			LonDeg:       *m.Lon,
			Class:        classOf(m.Class),
			TimestampUTC: nowUTC,
			Valid:        valid,
		}
		if m.AltFt != nil {
			f.AltValid = true
			f.AltFeet = *m.AltFt
		}
		fillEstimate(&f, m)
		return Event{SourceID: sourceID, Factor: &f, TimeUTC: nowUTC}, true

	case "traffic_np":
		f := Factor{
			SourceID:     sourceID,
			ObjectID:     m.ID,
			Class:        classOf(m.Class),
			TimestampUTC: nowUTC,
			Valid:        valid,
		}
		fillEstimate(&f, m)
		return Event{SourceID: sourceID, Factor: &f, TimeUTC: nowUTC}, true
	}

	return Event{}, false
}

func fillEstimate(f *Factor, m wireMessage) {
	if m.DistNm != nil {
		f.DistanceValid = true
		f.DistanceNm = *m.DistNm
	}
	if m.BearingDeg != nil {
		f.BearingValid = true
		f.BearingDeg = *m.BearingDeg
	}
	if m.VDistFt != nil {
		f.VerticalFeet = *m.VDistFt
	}
}

func classOf(s string) Class {
	switch Class(s) {
	case ClassAircraft, ClassVehicle, ClassObstacle:
		return Class(s)
	}
	return ClassUnknown
}
