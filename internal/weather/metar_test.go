package weather

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestStore_PutGet(t *testing.T) {
	s := NewStore(time.Hour, nil)
	defer s.Close()

	ok := s.Put(METAR{
		StationID:      "EDDM",
		RawText:        "EDDM 311020Z 26008KT 9999 FEW040 22/12 Q1018",
		QNHhPa:         1018,
		FlightCategory: CategoryVFR,
		ObservationUTC: time.Now().UTC(),
	})
	if !ok {
		t.Fatalf("fresh record rejected")
	}

	m, ok := s.Get("EDDM")
	if !ok {
		t.Fatalf("record not found")
	}
	if m.QNHhPa != 1018 || m.FlightCategory != CategoryVFR {
		t.Fatalf("record=%+v", m)
	}
	if _, ok := s.Get("EDMA"); ok {
		t.Fatalf("unknown station found")
	}
}

func TestStore_QNHClamped(t *testing.T) {
	s := NewStore(time.Hour, nil)
	defer s.Close()

	s.Put(METAR{StationID: "EDDM", QNHhPa: 10180, ObservationUTC: time.Now().UTC()})
	m, _ := s.Get("EDDM")
	if m.QNHhPa != 0 {
		t.Fatalf("qnh=%v want 0 for implausible value", m.QNHhPa)
	}

	s.Put(METAR{StationID: "EDMA", QNHhPa: 980, ObservationUTC: time.Now().UTC()})
	m, _ = s.Get("EDMA")
	if m.QNHhPa != 980 {
		t.Fatalf("qnh=%v want 980", m.QNHhPa)
	}
}

func TestStore_StaleOnArrivalDropped(t *testing.T) {
	s := NewStore(95*time.Minute, nil)
	defer s.Close()

	ok := s.Put(METAR{
		StationID:      "EDDM",
		ObservationUTC: time.Now().UTC().Add(-2 * time.Hour),
	})
	if ok {
		t.Fatalf("stale record accepted")
	}
	if _, found := s.Get("EDDM"); found {
		t.Fatalf("stale record stored")
	}
}

func TestStore_ExpiryFiresOnce(t *testing.T) {
	var fired atomic.Int32
	s := NewStore(60*time.Millisecond, func(string) { fired.Add(1) })
	defer s.Close()

	s.Put(METAR{StationID: "EDDM", ObservationUTC: time.Now().UTC()})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := s.Get("EDDM"); !ok {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, ok := s.Get("EDDM"); ok {
		t.Fatalf("record did not expire")
	}

	time.Sleep(150 * time.Millisecond)
	if n := fired.Load(); n != 1 {
		t.Fatalf("expiry callbacks=%d want 1", n)
	}
}

func TestStore_ReplaceCancelsOldTimer(t *testing.T) {
	var fired atomic.Int32
	s := NewStore(80*time.Millisecond, func(string) { fired.Add(1) })
	defer s.Close()

	s.Put(METAR{StationID: "EDDM", ObservationUTC: time.Now().UTC()})
	time.Sleep(30 * time.Millisecond)
	s.Put(METAR{StationID: "EDDM", QNHhPa: 1020, ObservationUTC: time.Now().UTC()})

	// The replacement restarts the clock; past the first deadline the
	// record must still be present.
	time.Sleep(60 * time.Millisecond)
	m, ok := s.Get("EDDM")
	if !ok || m.QNHhPa != 1020 {
		t.Fatalf("replacement record gone or wrong: %+v ok=%v", m, ok)
	}

	time.Sleep(200 * time.Millisecond)
	if n := fired.Load(); n != 1 {
		t.Fatalf("expiry callbacks=%d want 1", n)
	}
}

func TestStore_Stations(t *testing.T) {
	s := NewStore(time.Hour, nil)
	defer s.Close()

	now := time.Now().UTC()
	s.Put(METAR{StationID: "EDTY", ObservationUTC: now})
	s.Put(METAR{StationID: "EDDM", ObservationUTC: now})
	s.Put(METAR{StationID: "EDMA", ObservationUTC: now})

	got := s.Stations()
	want := []string{"EDDM", "EDMA", "EDTY"}
	if len(got) != len(want) {
		t.Fatalf("stations=%v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("stations=%v want %v", got, want)
		}
	}
}

func TestStore_CloseStopsTimers(t *testing.T) {
	var fired atomic.Int32
	s := NewStore(50*time.Millisecond, func(string) { fired.Add(1) })
	s.Put(METAR{StationID: "EDDM", ObservationUTC: time.Now().UTC()})
	s.Close()

	if s.Put(METAR{StationID: "EDMA", ObservationUTC: time.Now().UTC()}) {
		t.Fatalf("put accepted after close")
	}
	time.Sleep(120 * time.Millisecond)
	if n := fired.Load(); n != 0 {
		t.Fatalf("expiry callbacks=%d after close, want 0", n)
	}
}

func TestDecoderFunc(t *testing.T) {
	d := DecoderFunc(func(raw string) (METAR, error) {
		return METAR{StationID: "EDDM", RawText: raw}, nil
	})
	m, err := d.Decode("EDDM 311020Z ...")
	if err != nil || m.StationID != "EDDM" {
		t.Fatalf("m=%+v err=%v", m, err)
	}
}
