// Package weather keeps decoded METARs for nearby stations and drops
// them once they are too old to trust.
package weather

import (
	"sort"
	"sync"
	"time"
)

// FlightCategory is the ceiling/visibility bucket of an observation.
type FlightCategory string

const (
	CategoryUnknown FlightCategory = ""
	CategoryVFR     FlightCategory = "VFR"
	CategoryMVFR    FlightCategory = "MVFR"
	CategoryIFR     FlightCategory = "IFR"
	CategoryLIFR    FlightCategory = "LIFR"
)

// METAR is one decoded observation. QNHhPa is zero when the report
// carried no pressure or an implausible one.
type METAR struct {
	StationID      string         `json:"station_id"`
	RawText        string         `json:"raw_text"`
	QNHhPa         float64        `json:"qnh_hpa,omitempty"`
	FlightCategory FlightCategory `json:"flight_category,omitempty"`
	ObservationUTC time.Time      `json:"observation_utc"`
	LatDeg         float64        `json:"lat_deg,omitempty"`
	LonDeg         float64        `json:"lon_deg,omitempty"`
}

// QNH values outside this band are treated as decode garbage.
const (
	qnhMinHPa = 800
	qnhMaxHPa = 1200
)

func (m *METAR) sanitize() {
	if m.QNHhPa < qnhMinHPa || m.QNHhPa > qnhMaxHPa {
		m.QNHhPa = 0
	}
}

// Decoder turns a raw METAR line into a structured observation.
type Decoder interface {
	Decode(raw string) (METAR, error)
}

// DecoderFunc adapts a plain function to the Decoder interface.
type DecoderFunc func(raw string) (METAR, error)

func (f DecoderFunc) Decode(raw string) (METAR, error) { return f(raw) }

// Store holds the freshest METAR per station. Each record self-destructs
// once its observation is older than the configured expiry. Safe for
// concurrent use.
type Store struct {
	mu       sync.Mutex
	expiry   time.Duration
	closed   bool
	entries  map[string]*storeEntry
	onExpire func(stationID string)
}

type storeEntry struct {
	m     METAR
	timer *time.Timer
}

// NewStore creates a store whose records expire the given duration after
// their observation time. onExpire, if non-nil, is called once per
// expired record (not for records replaced by Put or removed by Close).
func NewStore(expiry time.Duration, onExpire func(stationID string)) *Store {
	return &Store{
		expiry:   expiry,
		entries:  make(map[string]*storeEntry),
		onExpire: onExpire,
	}
}

// Put stores m, replacing any previous record for the same station. A
// record whose observation is already past expiry is dropped and false
// is returned.
func (s *Store) Put(m METAR) bool {
	m.sanitize()
	if m.StationID == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}

	deadline := m.ObservationUTC.Add(s.expiry)
	remaining := time.Until(deadline)
	if remaining <= 0 {
		// Stale on arrival. If an older record exists it stays until
		// its own timer fires.
		return false
	}

	if old, ok := s.entries[m.StationID]; ok {
		old.timer.Stop()
	}
	id := m.StationID
	s.entries[id] = &storeEntry{
		m:     m,
		timer: time.AfterFunc(remaining, func() { s.expire(id) }),
	}
	return true
}

func (s *Store) expire(stationID string) {
	s.mu.Lock()
	_, ok := s.entries[stationID]
	if ok {
		delete(s.entries, stationID)
	}
	notify := s.onExpire
	s.mu.Unlock()

	if ok && notify != nil {
		notify(stationID)
	}
}

// Get returns the current record for a station, false if none is held.
func (s *Store) Get(stationID string) (METAR, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[stationID]
	if !ok {
		return METAR{}, false
	}
	return e.m, true
}

// Stations returns the station IDs currently held, sorted.
func (s *Store) Stations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.entries))
	for id := range s.entries {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Close stops all expiry timers and empties the store. No onExpire
// callbacks run for the removed records.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, e := range s.entries {
		e.timer.Stop()
		delete(s.entries, id)
	}
}
