package sched

import (
	"testing"
	"time"

	"hexelev.dev/internal/sim/hex"
	"hexelev.dev/internal/sim/tile"
	"hexelev.dev/internal/sim/tuning"
)

func TestBatchTable(t *testing.T) {
	cases := []struct {
		h      Health
		trend  Trend
		device tuning.DeviceClass
		want   BatchSizes
	}{
		{HealthExcellent, TrendStable, tuning.DeviceDesktop, BatchSizes{3, 2, 1}},
		{HealthGood, TrendStable, tuning.DeviceDesktop, BatchSizes{2, 1, 0}},
		{HealthModerate, TrendStable, tuning.DeviceDesktop, BatchSizes{1, 1, 0}},
		{HealthPoor, TrendStable, tuning.DeviceDesktop, BatchSizes{1, 0, 0}},
		{HealthCritical, TrendStable, tuning.DeviceDesktop, BatchSizes{0, 0, 0}},
		{HealthUnknown, TrendStable, tuning.DeviceDesktop, BatchSizes{0, 0, 0}},
		{HealthExcellent, TrendDegrading, tuning.DeviceDesktop, BatchSizes{2, 1, 0}},
		{HealthPoor, TrendDegrading, tuning.DeviceDesktop, BatchSizes{1, 0, 0}},
		{HealthExcellent, TrendStable, tuning.DeviceConstrained, BatchSizes{2, 1, 1}},
		{HealthGood, TrendDegrading, tuning.DeviceConstrained, BatchSizes{1, 0, 0}},
	}
	for _, c := range cases {
		if got := batchTable(c.h, c.trend, c.device); got != c.want {
			t.Errorf("batchTable(%s,%s,%s) = %v, want %v", c.h, c.trend, c.device, got, c.want)
		}
	}
	// Pure: same inputs, same outputs.
	for i := 0; i < 3; i++ {
		if batchTable(HealthGood, TrendStable, tuning.DeviceDesktop) != (BatchSizes{2, 1, 0}) {
			t.Fatalf("batchTable is not stable")
		}
	}
}

func entry(q, r, dist int, class tile.Class) Entry {
	return Entry{Coord: hex.Coord{Q: q, R: r}, Class: class, Dist: dist}
}

func TestEnqueueDedupeAndDrop(t *testing.T) {
	tn := tuning.Defaults()
	tn.Scheduler.InteractiveQueueMax = 2
	s := New(tn)

	if !s.Enqueue(entry(0, 0, 0, tile.ClassInteractive)) {
		t.Fatalf("first enqueue rejected")
	}
	if s.Enqueue(entry(0, 0, 0, tile.ClassInteractive)) {
		t.Fatalf("duplicate coord admitted")
	}
	if !s.Enqueue(entry(1, 0, 1, tile.ClassInteractive)) {
		t.Fatalf("second enqueue rejected")
	}
	if s.Enqueue(entry(2, 0, 2, tile.ClassInteractive)) {
		t.Fatalf("enqueue above limit admitted")
	}
	if s.Status().Dropped != 1 {
		t.Fatalf("dropped = %d, want 1", s.Status().Dropped)
	}

	s.Remove(hex.Coord{Q: 1, R: 0})
	if s.Queued(hex.Coord{Q: 1, R: 0}) {
		t.Fatalf("removed coord still queued")
	}
	if !s.Enqueue(entry(2, 0, 2, tile.ClassInteractive)) {
		t.Fatalf("enqueue after remove rejected")
	}
}

func TestTickOrdersCenterOut(t *testing.T) {
	s := New(tuning.Defaults())
	s.UpdateHealth(HealthExcellent, 60, TrendStable)

	s.Enqueue(entry(3, 0, 3, tile.ClassInteractive))
	s.Enqueue(entry(1, 0, 1, tile.ClassInteractive))
	s.Enqueue(entry(2, 0, 2, tile.ClassInteractive))

	now := time.Now()
	out := s.Tick(now)
	if len(out) != 3 {
		t.Fatalf("released %d, want 3", len(out))
	}
	for i := 1; i < len(out); i++ {
		if out[i].Dist < out[i-1].Dist {
			t.Fatalf("release order not center-out: %v", out)
		}
	}
	// Min inter-tick interval gates the next release.
	s.Enqueue(entry(5, 0, 5, tile.ClassInteractive))
	if got := s.Tick(now.Add(100 * time.Millisecond)); got != nil {
		t.Fatalf("tick inside min interval released %v", got)
	}
	if got := s.Tick(now.Add(600 * time.Millisecond)); len(got) != 1 {
		t.Fatalf("tick after min interval released %v", got)
	}
}

func TestStarvationGuard(t *testing.T) {
	tn := tuning.Defaults()
	tn.Scheduler.InteractiveSlack = 1
	tn.Scheduler.NearEmpty = 0
	s := New(tn)
	s.UpdateHealth(HealthExcellent, 60, TrendStable)

	for i := 0; i < 4; i++ {
		s.Enqueue(entry(i, 0, i, tile.ClassInteractive))
	}
	s.Enqueue(entry(0, 5, 5, tile.ClassVisual))
	s.Enqueue(entry(0, 9, 9, tile.ClassFarfield))

	out := s.Tick(time.Now())
	for _, e := range out {
		if e.Class != tile.ClassInteractive {
			t.Fatalf("non-interactive %v released with a deep interactive backlog", e)
		}
	}
}

func TestCriticalPausesAndAutoResumes(t *testing.T) {
	s := New(tuning.Defaults())
	var transitions []bool
	s.OnStatusChange = func(st Status) { transitions = append(transitions, st.Paused) }

	s.UpdateHealth(HealthExcellent, 60, TrendStable)
	if s.Paused() {
		t.Fatalf("paused while excellent")
	}

	s.UpdateHealth(HealthCritical, 10, TrendDegrading)
	if !s.Paused() {
		t.Fatalf("critical health did not pause")
	}
	s.Enqueue(entry(0, 0, 0, tile.ClassInteractive))
	if got := s.Tick(time.Now()); got != nil {
		t.Fatalf("paused scheduler released %v", got)
	}

	// Poor is not enough to resume.
	s.UpdateHealth(HealthPoor, 22, TrendImproving)
	if !s.Paused() {
		t.Fatalf("resumed on poor health")
	}
	s.UpdateHealth(HealthGood, 50, TrendImproving)
	if s.Paused() {
		t.Fatalf("did not resume on good health")
	}

	want := []bool{true, false}
	if len(transitions) != 2 || transitions[0] != want[0] || transitions[1] != want[1] {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	st := s.Status()
	if st.Pauses != 1 || st.Resumes != 1 {
		t.Fatalf("pause/resume counters = %d/%d", st.Pauses, st.Resumes)
	}
}

func TestForcePauseHolds(t *testing.T) {
	s := New(tuning.Defaults())
	s.ForcePause("operator")
	s.UpdateHealth(HealthExcellent, 60, TrendStable)
	if !s.Paused() {
		t.Fatalf("forced pause released by health update")
	}
	if got := s.Status().PauseReason; got != "operator" {
		t.Fatalf("pause reason = %q", got)
	}
	s.ForceResume()
	if s.Paused() {
		t.Fatalf("force resume did not release")
	}
}

func TestMonitorTrend(t *testing.T) {
	m := NewMonitor()
	for i := 0; i < 4; i++ {
		m.Observe(60)
	}
	var trend Trend
	for _, fps := range []float64{40, 38, 36, 34} {
		_, _, trend = m.Observe(fps)
	}
	if trend != TrendDegrading {
		t.Fatalf("trend = %s, want degrading", trend)
	}
	for i := 0; i < 8; i++ {
		_, _, trend = m.Observe(60)
	}
	if trend == TrendDegrading {
		t.Fatalf("trend still degrading after recovery")
	}
}
