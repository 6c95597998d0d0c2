package sched

import (
	"sort"
	"time"

	"hexelev.dev/internal/sim/hex"
	"hexelev.dev/internal/sim/tile"
	"hexelev.dev/internal/sim/tuning"
)

// Entry is one queued population request. Tiles appear at most once
// across all three queues.
type Entry struct {
	Coord      hex.Coord
	Class      tile.Class
	Dist       int
	EnqueuedAt time.Time
}

// Status is an observability snapshot; it feeds the status stream and the
// JSONL log.
type Status struct {
	Health      string     `json:"health"`
	Rate        float64    `json:"rate"`
	Trend       string     `json:"trend"`
	Paused      bool       `json:"paused"`
	PauseReason string     `json:"pause_reason,omitempty"`
	Sizes       BatchSizes `json:"sizes"`
	Depths      [3]int     `json:"depths"` // interactive, visual, farfield
	Limits      [3]int     `json:"limits"`
	Released    uint64     `json:"released"`
	Dropped     uint64     `json:"dropped"`
	Pauses      uint64     `json:"pauses"`
	Resumes     uint64     `json:"resumes"`
}

type Scheduler struct {
	device tuning.DeviceClass
	cfg    tuning.Scheduler

	queues [3][]Entry
	limits [3]int
	queued map[hex.Coord]struct{}

	health Health
	rate   float64
	trend  Trend
	sizes  BatchSizes

	paused      bool
	pauseReason string
	forced      bool

	minTick  time.Duration
	lastTick time.Time

	released uint64
	dropped  uint64
	pauses   uint64
	resumes  uint64

	// OnBatchSizeChange fires when the admitted sizes change; OnStatusChange
	// on pause/resume transitions. Both run on the caller's goroutine.
	OnBatchSizeChange func(sizes, prev BatchSizes, health Health, rate float64)
	OnStatusChange    func(Status)
}

func New(t tuning.Tuning) *Scheduler {
	return &Scheduler{
		device: t.Device,
		cfg:    t.Scheduler,
		limits: [3]int{
			t.Scheduler.InteractiveQueueMax,
			t.Scheduler.VisualQueueMax,
			t.Scheduler.FarfieldQueueMax,
		},
		queued:  map[hex.Coord]struct{}{},
		health:  HealthUnknown,
		minTick: time.Duration(t.SchedulerMinTickMs()) * time.Millisecond,
	}
}

func classIdx(c tile.Class) int {
	switch c {
	case tile.ClassInteractive:
		return 0
	case tile.ClassVisual:
		return 1
	default:
		return 2
	}
}

// Enqueue admits a request unless the tile is already queued or its class
// queue is full. Queue-full is lossy by design: dropped and counted, not
// an error.
func (s *Scheduler) Enqueue(e Entry) bool {
	if _, dup := s.queued[e.Coord]; dup {
		return false
	}
	i := classIdx(e.Class)
	if s.limits[i] > 0 && len(s.queues[i]) >= s.limits[i] {
		s.dropped++
		return false
	}
	s.queues[i] = append(s.queues[i], e)
	s.queued[e.Coord] = struct{}{}
	s.sortQueue(i)
	return true
}

// Remove drops a pending entry, e.g. when its tile is evicted.
func (s *Scheduler) Remove(c hex.Coord) {
	if _, ok := s.queued[c]; !ok {
		return
	}
	delete(s.queued, c)
	for i := range s.queues {
		q := s.queues[i]
		for j := range q {
			if q[j].Coord == c {
				s.queues[i] = append(q[:j], q[j+1:]...)
				return
			}
		}
	}
}

func (s *Scheduler) Queued(c hex.Coord) bool {
	_, ok := s.queued[c]
	return ok
}

func (s *Scheduler) sortQueue(i int) {
	q := s.queues[i]
	sort.SliceStable(q, func(a, b int) bool { return q[a].Dist < q[b].Dist })
}

// UpdateHealth feeds the live performance signal. Critical health pauses
// the scheduler; it resumes on its own once health is neither critical
// nor poor (unless a manual pause is in force).
func (s *Scheduler) UpdateHealth(h Health, rate float64, trend Trend) {
	s.health = h
	s.rate = rate
	s.trend = trend

	prev := s.sizes
	s.sizes = batchTable(h, trend, s.device)
	if s.sizes != prev && s.OnBatchSizeChange != nil {
		s.OnBatchSizeChange(s.sizes, prev, h, rate)
	}

	if !s.forced {
		switch {
		case h == HealthCritical && !s.paused:
			s.setPaused(true, "health critical")
		case s.paused && h != HealthCritical && h != HealthPoor:
			s.setPaused(false, "")
		}
	}
}

// ForcePause is the manual override; it holds until ForceResume.
func (s *Scheduler) ForcePause(reason string) {
	s.forced = true
	if !s.paused {
		s.setPaused(true, reason)
	} else {
		s.pauseReason = reason
	}
}

func (s *Scheduler) ForceResume() {
	s.forced = false
	if s.paused {
		s.setPaused(false, "")
	}
}

func (s *Scheduler) setPaused(p bool, reason string) {
	s.paused = p
	s.pauseReason = reason
	if p {
		s.pauses++
	} else {
		s.resumes++
	}
	if s.OnStatusChange != nil {
		s.OnStatusChange(s.Status())
	}
}

func (s *Scheduler) Paused() bool { return s.paused }

// Tick releases up to the admitted batch for each class, interactive
// first. Visual work is only admitted when the interactive backlog is
// below the slack threshold, farfield only when both finer backlogs are
// near-empty — farfield can never starve interactive.
func (s *Scheduler) Tick(now time.Time) []Entry {
	if s.paused {
		return nil
	}
	if !s.lastTick.IsZero() && now.Sub(s.lastTick) < s.minTick {
		return nil
	}
	s.lastTick = now

	var out []Entry
	out = s.pop(0, s.sizes.Interactive, out)
	if len(s.queues[0]) < s.cfg.InteractiveSlack {
		out = s.pop(1, s.sizes.Visual, out)
	}
	if len(s.queues[0]) <= s.cfg.NearEmpty && len(s.queues[1]) <= s.cfg.NearEmpty {
		out = s.pop(2, s.sizes.Farfield, out)
	}
	s.released += uint64(len(out))
	return out
}

func (s *Scheduler) pop(i, n int, out []Entry) []Entry {
	for ; n > 0 && len(s.queues[i]) > 0; n-- {
		e := s.queues[i][0]
		s.queues[i] = s.queues[i][1:]
		delete(s.queued, e.Coord)
		out = append(out, e)
	}
	return out
}

func (s *Scheduler) Sizes() BatchSizes { return s.sizes }

func (s *Scheduler) Status() Status {
	return Status{
		Health:      s.health.String(),
		Rate:        s.rate,
		Trend:       s.trend.String(),
		Paused:      s.paused,
		PauseReason: s.pauseReason,
		Sizes:       s.sizes,
		Depths:      [3]int{len(s.queues[0]), len(s.queues[1]), len(s.queues[2])},
		Limits:      s.limits,
		Released:    s.released,
		Dropped:     s.dropped,
		Pauses:      s.pauses,
		Resumes:     s.resumes,
	}
}
