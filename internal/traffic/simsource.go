package traffic

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"
)

type SimSourceConfig struct {
	ID       string
	Priority int

	// Orbit mode: Count targets circling the configured center.
	Count        int
	CenterLatDeg float64
	CenterLonDeg float64
	RadiusNm     float64
	AltFeet      int
	Period       time.Duration
	Interval     time.Duration

	// Script mode: when non-empty, scripted events are played back
	// relative to connect time instead of the orbit generator.
	Script []ScriptedEvent
	Loop   bool
}

// ScriptedEvent is one replayed event at an offset from connect time.
type ScriptedEvent struct {
	At        time.Duration
	Factor    *Factor
	Warning   *Warning
	Heartbeat bool
}

// SimSource is a synthetic traffic feed used for replay and testing. It
// implements the same Source surface as TCPSource but never touches the
// network: connecting always succeeds.
type SimSource struct {
	cfg SimSourceConfig

	mu       sync.Mutex
	state    ConnState
	lastSeen time.Time
	reports  uint64

	cancel context.CancelFunc
	done   chan struct{}
}

func NewSimSource(cfg SimSourceConfig) (*SimSource, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("sim source id is required")
	}
	if cfg.Count <= 0 {
		cfg.Count = 3
	}
	if cfg.RadiusNm <= 0 {
		cfg.RadiusNm = 2.0
	}
	if cfg.Period <= 0 {
		cfg.Period = 90 * time.Second
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 1 * time.Second
	}
	if cfg.AltFeet == 0 {
		cfg.AltFeet = 4500
	}
	return &SimSource{cfg: cfg, state: StateDisconnected}, nil
}

func (s *SimSource) ID() string    { return s.cfg.ID }
func (s *SimSource) Priority() int { return s.cfg.Priority }

func (s *SimSource) State() ConnState {
	if s == nil {
		return StateDisconnected
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *SimSource) Connect(ctx context.Context, emit EmitFunc) error {
	if s == nil {
		return fmt.Errorf("sim source is nil")
	}
	if emit == nil {
		return fmt.Errorf("sim source emit is nil")
	}

	s.mu.Lock()
	if s.state == StateConnecting || s.state == StateConnected {
		s.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.state = StateConnected
	s.mu.Unlock()

	go func() {
		defer close(done)
		emit(runCtx, Event{SourceID: s.cfg.ID, State: StateConnected, TimeUTC: time.Now().UTC()})
		if len(s.cfg.Script) > 0 {
			s.runScript(runCtx, emit)
		} else {
			s.runOrbit(runCtx, emit)
		}
	}()
	return nil
}

func (s *SimSource) Disconnect() {
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

func (s *SimSource) Snapshot(nowUTC time.Time) SourceSnapshot {
	if s == nil {
		return SourceSnapshot{}
	}
	s.mu.Lock()
	state := s.state
	lastSeen := s.lastSeen
	reports := s.reports
	s.mu.Unlock()

	out := SourceSnapshot{
		ID:       s.cfg.ID,
		State:    string(state),
		Priority: s.cfg.Priority,
		Reports:  reports,
	}
	if !lastSeen.IsZero() {
		out.LastSeenUTC = lastSeen.UTC().Format(time.RFC3339Nano)
	}
	return out
}

func (s *SimSource) runOrbit(ctx context.Context, emit EmitFunc) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			nowUTC := now.UTC()
			s.send(ctx, emit, Event{SourceID: s.cfg.ID, Heartbeat: true, TimeUTC: nowUTC})
			for _, f := range s.targets(nowUTC) {
				f := f
				s.send(ctx, emit, Event{SourceID: s.cfg.ID, Factor: &f, TimeUTC: nowUTC})
			}
		}
	}
}

// targets returns Count factors orbiting the configured center.
func (s *SimSource) targets(nowUTC time.Time) []Factor {
	radiusDeg := s.cfg.RadiusNm / 60.0
	phase := float64(nowUTC.UnixNano()%s.cfg.Period.Nanoseconds()) / float64(s.cfg.Period.Nanoseconds())
	baseTheta := 2 * math.Pi * phase

	out := make([]Factor, 0, s.cfg.Count)
	for i := 0; i < s.cfg.Count; i++ {
		theta := baseTheta + 2*math.Pi*(float64(i)/float64(s.cfg.Count))

		// Stagger altitude a little between targets.
		alt := s.cfg.AltFeet + (i-s.cfg.Count/2)*300

		out = append(out, Factor{
			SourceID:      s.cfg.ID,
			ObjectID:      fmt.Sprintf("SIM%02d", i),
			HasPosition:   true,
			LatDeg:        s.cfg.CenterLatDeg + radiusDeg*math.Cos(theta),
			LonDeg:        s.cfg.CenterLonDeg + radiusDeg*math.Sin(theta)/math.Cos(s.cfg.CenterLatDeg*math.Pi/180.0),
			AltValid:      true,
			AltFeet:       alt,
			DistanceValid: true,
			DistanceNm:    s.cfg.RadiusNm,
			BearingValid:  true,
			BearingDeg:    math.Mod(theta*180/math.Pi+360, 360),
			Class:         ClassAircraft,
			TimestampUTC:  nowUTC,
			Valid:         true,
		})
	}
	return out
}

func (s *SimSource) runScript(ctx context.Context, emit EmitFunc) {
	for {
		start := time.Now()
		for _, se := range s.cfg.Script {
			wait := se.At - time.Since(start)
			if wait > 0 && !sleepCtx(ctx, wait) {
				return
			}
			if ctx.Err() != nil {
				return
			}
			nowUTC := time.Now().UTC()
			ev := Event{SourceID: s.cfg.ID, Heartbeat: se.Heartbeat, TimeUTC: nowUTC}
			if se.Factor != nil {
				f := *se.Factor
				ev.Factor = &f
			}
			if se.Warning != nil {
				w := *se.Warning
				ev.Warning = &w
			}
			s.send(ctx, emit, ev)
		}
		if !s.cfg.Loop {
			// Script exhausted: stay connected but idle, so heartbeat
			// decay behaves exactly like a live source going quiet.
			<-ctx.Done()
			return
		}
	}
}

func (s *SimSource) send(ctx context.Context, emit EmitFunc, ev Event) {
	if ctx.Err() != nil {
		return
	}
	s.mu.Lock()
	s.lastSeen = ev.TimeUTC
	s.reports++
	s.mu.Unlock()
	emit(ctx, ev)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
