package traffic

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

type ProviderConfig struct {
	// HeartbeatTimeout is how long a source may stay silent before it is
	// considered dead and its reports leave arbitration.
	HeartbeatTimeout time.Duration
	// WarningExpiry is the silence window after which a published warning
	// is cleared.
	WarningExpiry time.Duration
	// CheckInterval is the liveness evaluation tick.
	CheckInterval time.Duration

	// ReconnectDelay is the base delay before retrying a dropped source.
	// It doubles per consecutive failure up to ReconnectDelayMax and
	// resets on a successful connect.
	ReconnectDelay    time.Duration
	ReconnectDelayMax time.Duration
}

// StateSnapshot is the externally published aggregate state.
type StateSnapshot struct {
	BestPositioned     *Factor `json:"best_positioned,omitempty"`
	BestUnpositioned   *Factor `json:"best_unpositioned,omitempty"`
	Warning            Warning `json:"warning"`
	ReceivingHeartbeat bool    `json:"receiving_heartbeat"`
}

// Snapshot is the full status view, including per-source detail.
type Snapshot struct {
	StateSnapshot
	Sources []SourceSnapshot `json:"sources"`
}

type cmdKind int

const (
	cmdConnect cmdKind = iota
	cmdDisconnect
	cmdReconnectFire
)

type command struct {
	kind     cmdKind
	sourceID string
	reply    chan struct{}
}

// Provider aggregates all configured traffic sources. It funnels every
// source event through a single loop goroutine, so arbitration and the
// expiry supervisors never observe a half-updated source set. Published
// state is readable synchronously and observable via Subscribe.
type Provider struct {
	cfg ProviderConfig

	started atomic.Bool
	closed  atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}

	events chan Event
	cmds   chan command

	// mu guards everything read from outside the loop: the source set,
	// the published state and the subscriber list.
	mu      sync.RWMutex
	sources []Source
	byID    map[string]Source

	pubPositioned     Factor
	pubPositionedOK   bool
	pubUnpositioned   Factor
	pubUnpositionedOK bool
	pubWarning        Warning
	pubReceiving      bool

	subs    map[int]chan StateSnapshot
	nextSub int

	// Loop-owned state. Only the run goroutine touches these.
	hb               *HeartbeatMonitor
	positioned       map[string]Factor
	unpositioned     map[string]Factor
	warnings         map[string]Warning
	userDisconnected bool
	backoff          map[string]time.Duration
	reconnects       map[string]*time.Timer
	warnTimer        *time.Timer
}

func NewProvider(cfg ProviderConfig) *Provider {
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = 5 * time.Second
	}
	if cfg.WarningExpiry <= 0 {
		cfg.WarningExpiry = 3 * time.Second
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 1 * time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 2 * time.Second
	}
	if cfg.ReconnectDelayMax <= 0 {
		cfg.ReconnectDelayMax = 30 * time.Second
	}

	return &Provider{
		cfg:          cfg,
		done:         make(chan struct{}),
		events:       make(chan Event, 256),
		cmds:         make(chan command, 16),
		byID:         make(map[string]Source),
		pubWarning:   NoWarning(),
		subs:         make(map[int]chan StateSnapshot),
		hb:           NewHeartbeatMonitor(cfg.HeartbeatTimeout),
		positioned:   make(map[string]Factor),
		unpositioned: make(map[string]Factor),
		warnings:     make(map[string]Warning),
		backoff:      make(map[string]time.Duration),
		reconnects:   make(map[string]*time.Timer),
	}
}

// AddSource registers a source. Sources are never removed on connection
// loss; a dropped connection is a state transition, not a destruction.
// A source added while running stays disconnected until the next
// ConnectToTrafficReceiver call.
func (p *Provider) AddSource(src Source) error {
	if p == nil || src == nil {
		return fmt.Errorf("source is nil")
	}
	if p.closed.Load() {
		return fmt.Errorf("provider is closed")
	}
	id := src.ID()
	if id == "" {
		return fmt.Errorf("source id is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.byID[id]; ok {
		return fmt.Errorf("duplicate source id %q", id)
	}
	p.sources = append(p.sources, src)
	p.byID[id] = src
	return nil
}

func (p *Provider) Start(ctx context.Context) error {
	if p == nil {
		return fmt.Errorf("provider is nil")
	}
	if p.closed.Load() {
		return fmt.Errorf("provider is closed")
	}
	if p.started.Swap(true) {
		return fmt.Errorf("provider already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.warnTimer = time.NewTimer(p.cfg.WarningExpiry)
	if !p.warnTimer.Stop() {
		<-p.warnTimer.C
	}

	go p.run(runCtx)
	return nil
}

func (p *Provider) Close() {
	if p == nil {
		return
	}
	if p.closed.Swap(true) {
		return
	}
	if !p.started.Load() {
		close(p.done)
		return
	}
	p.cancel()
	<-p.done
}

func (p *Provider) run(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.cfg.CheckInterval)
	defer ticker.Stop()
	defer p.warnTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			p.teardown()
			return
		case ev := <-p.events:
			p.handleEvent(ev)
		case cmd := <-p.cmds:
			p.handleCommand(ctx, cmd)
			if cmd.reply != nil {
				close(cmd.reply)
			}
		case now := <-ticker.C:
			p.handleTick(now.UTC())
		case <-p.warnTimer.C:
			p.handleWarningExpiry()
		}
	}
}

func (p *Provider) teardown() {
	for id, t := range p.reconnects {
		t.Stop()
		delete(p.reconnects, id)
	}
	for _, src := range p.sourceList() {
		src.Disconnect()
	}
}

// dispatch is the EmitFunc handed to every source. It never blocks a
// cancelled source and never delivers after the loop has exited.
func (p *Provider) dispatch(ctx context.Context, ev Event) {
	select {
	case p.events <- ev:
	case <-ctx.Done():
	case <-p.done:
	}
}

//
// Control surface
//

// ConnectToTrafficReceiver attempts to connect every configured source,
// in parallel. Sources already connecting or connected are untouched.
func (p *Provider) ConnectToTrafficReceiver() {
	p.roundTrip(command{kind: cmdConnect})
}

// DisconnectFromTrafficReceiver disconnects every source and cancels all
// pending reconnection attempts. This is a user override: no reconnects
// are scheduled until the next ConnectToTrafficReceiver call.
func (p *Provider) DisconnectFromTrafficReceiver() {
	p.roundTrip(command{kind: cmdDisconnect})
}

// roundTrip waits for the loop to process the command, so callers can
// inspect state immediately afterwards.
func (p *Provider) roundTrip(cmd command) {
	if p == nil || !p.started.Load() {
		return
	}
	cmd.reply = make(chan struct{})
	select {
	case p.cmds <- cmd:
	case <-p.done:
		return
	}
	select {
	case <-cmd.reply:
	case <-p.done:
	}
}

func (p *Provider) handleCommand(ctx context.Context, cmd command) {
	switch cmd.kind {
	case cmdConnect:
		p.userDisconnected = false
		for _, src := range p.sourceList() {
			if err := src.Connect(ctx, p.dispatch); err != nil {
				log.Printf("traffic source %s connect: %v", src.ID(), err)
			}
		}
	case cmdDisconnect:
		p.userDisconnected = true
		for id, t := range p.reconnects {
			t.Stop()
			delete(p.reconnects, id)
		}
		for id := range p.backoff {
			delete(p.backoff, id)
		}
		for _, src := range p.sourceList() {
			src.Disconnect()
		}
	case cmdReconnectFire:
		delete(p.reconnects, cmd.sourceID)
		if p.userDisconnected {
			return
		}
		src := p.sourceByID(cmd.sourceID)
		if src == nil {
			return
		}
		if st := src.State(); st != StateDisconnected && st != StateFailed {
			return
		}
		if err := src.Connect(ctx, p.dispatch); err != nil {
			log.Printf("traffic source %s reconnect: %v", cmd.sourceID, err)
		}
	}
}

//
// Event handling (loop goroutine only)
//

func (p *Provider) handleEvent(ev Event) {
	now := ev.TimeUTC
	if now.IsZero() {
		now = time.Now().UTC()
	}

	switch {
	case ev.State != "":
		p.handleStateChange(ev.SourceID, ev.State)
		return

	case ev.Factor != nil:
		f := *ev.Factor
		f.SourceID = ev.SourceID
		if !plausibleFactor(f) {
			// Malformed report: drop silently, keep the prior one.
			return
		}
		if f.TimestampUTC.IsZero() {
			f.TimestampUTC = now
		}
		p.hb.Observe(ev.SourceID, now)
		if f.HasPosition {
			p.positioned[ev.SourceID] = f
		} else {
			p.unpositioned[ev.SourceID] = f
		}
		p.publish()

	case ev.Warning != nil:
		w := *ev.Warning
		w.SourceID = ev.SourceID
		if !w.Level.Valid() {
			return
		}
		if w.TimestampUTC.IsZero() {
			w.TimestampUTC = now
		}
		p.hb.Observe(ev.SourceID, now)
		if w.Level == AlarmNone {
			// The source says the prior alert is resolved. Clear right
			// away instead of waiting for the expiry timer.
			p.warnings = make(map[string]Warning)
			p.stopWarningTimer()
			p.publish()
			return
		}
		p.warnings[ev.SourceID] = w
		p.publish()
		// Only a refresh of the currently published warning restarts the
		// expiry window; a lower-ranked warning from another source must
		// not extend the winner's life.
		if cur := p.CurrentWarning(); warningEqual(cur, w) {
			p.resetWarningTimer()
		}

	case ev.Heartbeat:
		p.hb.Observe(ev.SourceID, now)
		p.publish()
	}
}

func (p *Provider) handleStateChange(sourceID string, st ConnState) {
	switch st {
	case StateConnected:
		p.backoff[sourceID] = 0
	case StateFailed, StateDisconnected:
		if !p.userDisconnected {
			p.scheduleReconnect(sourceID)
		}
	}
}

func (p *Provider) scheduleReconnect(sourceID string) {
	if _, pending := p.reconnects[sourceID]; pending {
		return
	}
	d := p.backoff[sourceID]
	if d <= 0 {
		d = p.cfg.ReconnectDelay
	} else {
		d *= 2
		if d > p.cfg.ReconnectDelayMax {
			d = p.cfg.ReconnectDelayMax
		}
	}
	p.backoff[sourceID] = d

	id := sourceID
	p.reconnects[sourceID] = time.AfterFunc(d, func() {
		select {
		case p.cmds <- command{kind: cmdReconnectFire, sourceID: id}:
		case <-p.done:
		}
	})
}

func (p *Provider) handleTick(nowUTC time.Time) {
	for _, id := range p.hb.Evaluate(nowUTC) {
		delete(p.positioned, id)
		delete(p.unpositioned, id)
	}
	p.publish()
}

// handleWarningExpiry clears an un-refreshed warning. An un-refreshed
// source report is presumed stale, independent of source liveness.
func (p *Provider) handleWarningExpiry() {
	p.warnings = make(map[string]Warning)
	p.publish()
}

func (p *Provider) resetWarningTimer() {
	p.stopWarningTimer()
	p.warnTimer.Reset(p.cfg.WarningExpiry)
}

func (p *Provider) stopWarningTimer() {
	if !p.warnTimer.Stop() {
		select {
		case <-p.warnTimer.C:
		default:
		}
	}
}

//
// Arbitration + publication
//

func (p *Provider) publish() {
	var posC, unposC []Candidate
	for id, f := range p.positioned {
		if p.hb.Live(id) {
			posC = append(posC, Candidate{Factor: f, Priority: p.priorityOf(id)})
		}
	}
	for id, f := range p.unpositioned {
		if p.hb.Live(id) {
			unposC = append(unposC, Candidate{Factor: f, Priority: p.priorityOf(id)})
		}
	}
	ws := make([]Warning, 0, len(p.warnings))
	for _, w := range p.warnings {
		ws = append(ws, w)
	}

	bp, bpOK := BestFactor(posC)
	bu, buOK := BestFactor(unposC)
	w, wOK := BestWarning(ws)
	if !wOK {
		w = NoWarning()
	}
	receiving := p.hb.Receiving()

	p.mu.Lock()
	changed := false
	if bpOK != p.pubPositionedOK || (bpOK && !factorEqual(bp, p.pubPositioned)) {
		changed = true
	}
	p.pubPositioned, p.pubPositionedOK = bp, bpOK
	if buOK != p.pubUnpositionedOK || (buOK && !factorEqual(bu, p.pubUnpositioned)) {
		changed = true
	}
	p.pubUnpositioned, p.pubUnpositionedOK = bu, buOK
	if !warningEqual(w, p.pubWarning) {
		changed = true
	}
	p.pubWarning = w
	if receiving != p.pubReceiving {
		changed = true
	}
	p.pubReceiving = receiving

	var snap StateSnapshot
	var targets []chan StateSnapshot
	if changed {
		snap = p.stateSnapshotLocked()
		targets = make([]chan StateSnapshot, 0, len(p.subs))
		for _, ch := range p.subs {
			targets = append(targets, ch)
		}
	}
	p.mu.Unlock()

	for _, ch := range targets {
		select {
		case ch <- snap:
		default:
			// Slow consumer: drop the oldest pending update, then try once.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// factorEqual compares factors for publication purposes, ignoring the
// timestamp so a source re-reporting identical traffic does not cause a
// notification storm.
func factorEqual(a, b Factor) bool {
	a.TimestampUTC = time.Time{}
	b.TimestampUTC = time.Time{}
	return a == b
}

func warningEqual(a, b Warning) bool {
	a.TimestampUTC = time.Time{}
	b.TimestampUTC = time.Time{}
	return a == b
}

// plausibleFactor rejects malformed reports. Invalid-flagged factors are
// allowed through: they represent "nothing to say" and are stored but
// never selected.
func plausibleFactor(f Factor) bool {
	if f.Valid && f.ObjectID == "" {
		return false
	}
	if f.HasPosition {
		if math.IsNaN(f.LatDeg) || math.IsNaN(f.LonDeg) {
			return false
		}
		if f.LatDeg < -90 || f.LatDeg > 90 || f.LonDeg < -180 || f.LonDeg > 180 {
			return false
		}
	}
	if f.DistanceValid && (math.IsNaN(f.DistanceNm) || f.DistanceNm < 0) {
		return false
	}
	return true
}

//
// Published state accessors
//

func (p *Provider) BestPositionedFactor() (Factor, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pubPositioned, p.pubPositionedOK
}

func (p *Provider) BestUnpositionedFactor() (Factor, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pubUnpositioned, p.pubUnpositionedOK
}

func (p *Provider) CurrentWarning() Warning {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pubWarning
}

func (p *Provider) ReceivingHeartbeat() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pubReceiving
}

// Subscribe registers for aggregate state change notifications. A
// notification is delivered only when a published value actually
// changed. The returned cancel func must be called when done; the
// channel is never closed.
func (p *Provider) Subscribe() (<-chan StateSnapshot, func()) {
	ch := make(chan StateSnapshot, 16)
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = ch
	p.mu.Unlock()

	cancel := func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
	return ch, cancel
}

func (p *Provider) stateSnapshotLocked() StateSnapshot {
	snap := StateSnapshot{
		Warning:            p.pubWarning,
		ReceivingHeartbeat: p.pubReceiving,
	}
	if p.pubPositionedOK {
		f := p.pubPositioned
		snap.BestPositioned = &f
	}
	if p.pubUnpositionedOK {
		f := p.pubUnpositioned
		snap.BestUnpositioned = &f
	}
	return snap
}

// Snapshot returns the full status view for the web API.
func (p *Provider) Snapshot(nowUTC time.Time) Snapshot {
	if p == nil {
		return Snapshot{StateSnapshot: StateSnapshot{Warning: NoWarning()}}
	}
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}

	p.mu.RLock()
	out := Snapshot{StateSnapshot: p.stateSnapshotLocked()}
	srcs := make([]Source, len(p.sources))
	copy(srcs, p.sources)
	p.mu.RUnlock()

	out.Sources = make([]SourceSnapshot, 0, len(srcs))
	for _, src := range srcs {
		out.Sources = append(out.Sources, src.Snapshot(nowUTC))
	}
	return out
}

func (p *Provider) sourceList() []Source {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Source, len(p.sources))
	copy(out, p.sources)
	return out
}

func (p *Provider) sourceByID(id string) Source {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.byID[id]
}

func (p *Provider) priorityOf(id string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if src, ok := p.byID[id]; ok {
		return src.Priority()
	}
	return 0
}
