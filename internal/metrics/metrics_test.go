package metrics

import (
	"testing"
	"time"
)

func TestNew_StartTimeSet(t *testing.T) {
	before := time.Now()
	m := New()
	after := time.Now()

	if m.startTime.Before(before) || m.startTime.After(after) {
		t.Errorf("startTime %v not in expected range [%v, %v]", m.startTime, before, after)
	}
}

func TestZeroValue_SnapshotSafe(t *testing.T) {
	var m Metrics
	s := m.Snapshot()
	if s.Observations.Total != 0 {
		t.Errorf("expected 0 total observations, got %d", s.Observations.Total)
	}
}

func TestObservationCounters(t *testing.T) {
	m := New()
	m.ObservationsTotal.Add(10)
	m.ObservationsConnect.Add(7)
	m.ObservationsNick.Add(3)

	s := m.Snapshot()
	if s.Observations.Total != 10 {
		t.Errorf("Total: got %d, want 10", s.Observations.Total)
	}
	if s.Observations.Connect != 7 {
		t.Errorf("Connect: got %d, want 7", s.Observations.Connect)
	}
	if s.Observations.Nick != 3 {
		t.Errorf("Nick: got %d, want 3", s.Observations.Nick)
	}
}

func TestDispatchCount_RoutesByAction(t *testing.T) {
	m := New()
	m.DispatchCount("WARN")
	m.DispatchCount("KILL")
	m.DispatchCount("KILL")
	m.DispatchCount("LETHAL")
	m.DispatchCount("RESV")
	m.DispatchCount("EXCLUDE")
	m.DispatchCount("BOGUS")

	s := m.Snapshot()
	if s.Dispatch.Warn != 1 {
		t.Errorf("Warn: got %d, want 1", s.Dispatch.Warn)
	}
	if s.Dispatch.Kill != 2 {
		t.Errorf("Kill: got %d, want 2", s.Dispatch.Kill)
	}
	if s.Dispatch.Lethal != 1 {
		t.Errorf("Lethal: got %d, want 1", s.Dispatch.Lethal)
	}
	if s.Dispatch.Resv != 1 {
		t.Errorf("Resv: got %d, want 1", s.Dispatch.Resv)
	}
	if s.Dispatch.Exclude != 1 {
		t.Errorf("Exclude: got %d, want 1", s.Dispatch.Exclude)
	}
}

func TestStoreCounters(t *testing.T) {
	m := New()
	m.StoreWrites.Add(5)
	m.StoreErrors.Add(1)

	s := m.Snapshot()
	if s.Store.Writes != 5 {
		t.Errorf("Writes: got %d, want 5", s.Store.Writes)
	}
	if s.Store.Errors != 1 {
		t.Errorf("Errors: got %d, want 1", s.Store.Errors)
	}
}

func TestExpiryCounters(t *testing.T) {
	m := New()
	m.ExpiryDowngrades.Add(2)
	m.ExpiryDisables.Add(4)

	s := m.Snapshot()
	if s.Expiry.Downgrades != 2 {
		t.Errorf("Downgrades: got %d, want 2", s.Expiry.Downgrades)
	}
	if s.Expiry.Disables != 4 {
		t.Errorf("Disables: got %d, want 4", s.Expiry.Disables)
	}
}

func TestRecordMatchLatency_SingleSample(t *testing.T) {
	m := New()
	m.RecordMatchLatency(100 * time.Millisecond)

	s := m.Snapshot()
	if s.MatchLatencyMs.Count != 1 {
		t.Errorf("Count: got %d, want 1", s.MatchLatencyMs.Count)
	}
	if s.MatchLatencyMs.MinMs < 90 || s.MatchLatencyMs.MinMs > 110 {
		t.Errorf("MinMs: got %f, want ~100", s.MatchLatencyMs.MinMs)
	}
}

func TestRecordMatchLatency_MinMaxMean(t *testing.T) {
	m := New()
	m.RecordMatchLatency(50 * time.Millisecond)
	m.RecordMatchLatency(150 * time.Millisecond)
	m.RecordMatchLatency(100 * time.Millisecond)

	s := m.Snapshot()
	ls := s.MatchLatencyMs
	if ls.Count != 3 {
		t.Errorf("Count: got %d, want 3", ls.Count)
	}
	if ls.MinMs > 60 {
		t.Errorf("MinMs too high: %f", ls.MinMs)
	}
	if ls.MaxMs < 140 {
		t.Errorf("MaxMs too low: %f", ls.MaxMs)
	}
	if ls.MeanMs < 90 || ls.MeanMs > 110 {
		t.Errorf("MeanMs: got %f, want ~100", ls.MeanMs)
	}
}

func TestSnapshotLatency_EmptyIsZeroValue(t *testing.T) {
	m := New()
	s := m.Snapshot()
	if s.MatchLatencyMs.Count != 0 {
		t.Errorf("empty match latency count should be 0")
	}
}

func TestSnapshot_UptimePositive(t *testing.T) {
	m := New()
	time.Sleep(5 * time.Millisecond)
	s := m.Snapshot()
	if s.UptimeSecs <= 0 {
		t.Errorf("UptimeSecs should be positive, got %f", s.UptimeSecs)
	}
}

func TestRound2(t *testing.T) {
	cases := []struct {
		input float64
		want  float64
	}{
		{1.236, 1.24},
		{1.234, 1.23},
		{100.0, 100.0},
		{0.0, 0.0},
	}
	for _, c := range cases {
		got := round2(c.input)
		if got != c.want {
			t.Errorf("round2(%f) = %f, want %f", c.input, got, c.want)
		}
	}
}

func TestLatencyStats_Record(t *testing.T) {
	var s latencyStats
	s.record(10)
	s.record(20)
	s.record(15)

	snap := s.snapshot()
	if snap.Count != 3 {
		t.Errorf("Count: got %d, want 3", snap.Count)
	}
	if snap.MinMs != 10 {
		t.Errorf("MinMs: got %f, want 10", snap.MinMs)
	}
	if snap.MaxMs != 20 {
		t.Errorf("MaxMs: got %f, want 20", snap.MaxMs)
	}
	if snap.MeanMs != 15 {
		t.Errorf("MeanMs: got %f, want 15", snap.MeanMs)
	}
}

func TestLatencyStats_Empty(t *testing.T) {
	var s latencyStats
	snap := s.snapshot()
	if snap.Count != 0 || snap.MinMs != 0 || snap.MaxMs != 0 || snap.MeanMs != 0 {
		t.Errorf("empty stats snapshot should be zero, got %+v", snap)
	}
}
