// Package stream owns the terrain working set: the tiles map, the
// adaptive scheduler, the rate governor, the fetch pipeline, relaxation
// and stitching. All state mutation happens on the tick goroutine;
// inputs arrive over channels and fetch completions are serialized
// through the results channel.
package stream

import (
	"context"
	"log"
	"sort"
	"time"

	plog "hexelev.dev/internal/persistence/log"
	"hexelev.dev/internal/persistence/tilecache"
	"hexelev.dev/internal/protocol"
	"hexelev.dev/internal/sim/governor"
	"hexelev.dev/internal/sim/hex"
	"hexelev.dev/internal/sim/relax"
	"hexelev.dev/internal/sim/sched"
	"hexelev.dev/internal/sim/stitch"
	"hexelev.dev/internal/sim/tile"
	"hexelev.dev/internal/sim/tuning"
	"hexelev.dev/internal/transport/elev"
)

const tickInterval = 100 * time.Millisecond

// Config carries the streamer's initial world binding.
type Config struct {
	Origin    protocol.Origin
	Dataset   string
	QueryMode protocol.QueryMode
}

// Status is the full observability snapshot.
type Status struct {
	Scheduler    sched.Status `json:"scheduler"`
	Metrics      Metrics      `json:"metrics"`
	Tiles        int          `json:"tiles"`
	InFlight     int          `json:"in_flight"`
	Outbox       int          `json:"outbox"`
	DegradeLevel int          `json:"degrade_level"`
	Observer     hex.Coord    `json:"observer"`
	Dataset      string       `json:"dataset"`
	QueryMode    string       `json:"query_mode"`

	AvgDurationMs float64 `json:"avg_duration_ms"`
	P95DurationMs float64 `json:"p95_duration_ms"`
	LastError     string  `json:"last_error,omitempty"`
	LastErrorTs   int64   `json:"last_error_ts,omitempty"`
}

type Streamer struct {
	cfg tuning.Tuning
	log *log.Logger

	origin    protocol.Origin
	dataset   string
	queryMode protocol.QueryMode

	tiles map[hex.Coord]*tile.Tile
	order []hex.Coord
	dirty map[hex.Coord]struct{}

	observer  hex.Coord
	predicted hex.Coord
	posX, posZ float64
	velX, velZ float64
	movedAt    time.Time

	sched     *sched.Scheduler
	monitor   *sched.Monitor
	gov       *governor.Governor
	relaxer   *relax.Runner
	stitchCfg stitch.Config

	client   *elev.Client
	cache    *tilecache.Cache
	fetchLog *plog.FetchLogger

	outbox           []batchRequest
	inFlight         int
	consecutiveFails int

	// Sliding window of upstream call durations for the status snapshot.
	durations [128]int64
	durCount  int
	durNext   int
	lastErr   string
	lastErrAt time.Time

	results chan fetchResult
	health  chan float64
	moves   chan [2]float64
	cmds    chan func()

	runCtx context.Context

	metrics Metrics

	// Clock is injectable for deterministic tests.
	Clock func() time.Time

	// Callbacks run on the tick goroutine.
	OnBatchSizeChange func(sizes, prev sched.BatchSizes, health sched.Health, rate float64)
	OnStatusChange    func(Status)
	OnHeightsApplied  func(c hex.Coord, vertex, n int)
	OnRedraw          func(c hex.Coord)
}

func New(t tuning.Tuning, cfg Config, client *elev.Client, cache *tilecache.Cache, fetchLog *plog.FetchLogger, logger *log.Logger) *Streamer {
	now := time.Now()
	s := &Streamer{
		cfg:       t,
		log:       logger,
		origin:    cfg.Origin,
		dataset:   cfg.Dataset,
		queryMode: cfg.QueryMode,
		tiles:     map[hex.Coord]*tile.Tile{},
		dirty:     map[hex.Coord]struct{}{},
		sched:     sched.New(t),
		monitor:   sched.NewMonitor(),
		gov: governor.New(t.Rate.RequestsPerSec, t.Rate.RequestBurst,
			t.Rate.BytesPerSec, t.Rate.ByteBurst, now),
		relaxer: relax.NewRunner(
			time.Duration(t.Budgets.RelaxMs)*time.Millisecond, t.Budgets.SmoothIters),
		stitchCfg: stitch.Config{
			RimRatio:     t.Stitch.RimRatio,
			FeatherRatio: t.Stitch.FeatherRatio,
			LowBlend:     t.Stitch.LowBlend,
		},
		client:   client,
		cache:    cache,
		fetchLog: fetchLog,
		results:  make(chan fetchResult, 64),
		health:   make(chan float64, 64),
		moves:    make(chan [2]float64, 64),
		cmds:     make(chan func(), 16),
		runCtx:   context.Background(),
		Clock:    time.Now,
	}
	if s.queryMode == "" {
		s.queryMode = protocol.QueryLatLng
	}
	if s.dataset == "" {
		s.dataset = "mapzen"
	}
	s.sched.OnBatchSizeChange = func(sizes, prev sched.BatchSizes, h sched.Health, rate float64) {
		s.log.Printf("batch sizes %v -> %v (health=%s rate=%.1f)", prev, sizes, h, rate)
		if s.OnBatchSizeChange != nil {
			s.OnBatchSizeChange(sizes, prev, h, rate)
		}
	}
	s.sched.OnStatusChange = func(st sched.Status) {
		if st.Paused {
			s.log.Printf("scheduler paused: %s", st.PauseReason)
		} else {
			s.log.Printf("scheduler resumed")
		}
		if s.OnStatusChange != nil {
			s.OnStatusChange(s.Status())
		}
	}
	return s
}

// Run drives the tick loop until the context ends. Fetch completions are
// handled as they arrive; everything else happens on the tick cadence.
func (s *Streamer) Run(ctx context.Context) {
	s.runCtx = ctx
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-s.results:
			s.handleResult(r)
		case <-ticker.C:
			s.StepOnce(s.Clock())
		}
	}
}

// StepOnce executes one full tick at the given instant.
func (s *Streamer) StepOnce(now time.Time) {
	s.drainInputs(now)
	s.lifecycle(now)
	s.dispatch(s.sched.Tick(now))
	s.idleBackfill()
	s.pumpOutbox(now)
	s.relaxer.Tick(s.order, func(c hex.Coord) *tile.Tile {
		t := s.tiles[c]
		if t == nil || t.Populating {
			return nil
		}
		return t
	})
	s.stitchPass()
}

func (s *Streamer) drainInputs(now time.Time) {
	for {
		select {
		case f := <-s.cmds:
			f()
		case fps := <-s.health:
			h, rate, trend := s.monitor.Observe(fps)
			s.sched.UpdateHealth(h, rate, trend)
		case m := <-s.moves:
			s.applyMove(now, m[0], m[1])
		case r := <-s.results:
			s.handleResult(r)
		default:
			return
		}
	}
}

func (s *Streamer) applyMove(now time.Time, x, z float64) {
	if !s.movedAt.IsZero() {
		dt := now.Sub(s.movedAt).Seconds()
		if dt > 0.01 {
			s.velX = (x - s.posX) / dt
			s.velZ = (z - s.posZ) / dt
		}
	}
	s.posX, s.posZ = x, z
	s.movedAt = now

	size := s.cfg.Rings.TileRadius
	prev := s.observer
	s.observer = hex.FromWorld(x, z, size)
	lead := s.cfg.Rings.PredictLeadS
	s.predicted = hex.FromWorld(x+s.velX*lead, z+s.velZ*lead, size)
	if s.observer != prev {
		s.rebuildOrder()
	}
}

// ReportFrameRate feeds a render performance sample; safe from any
// goroutine, lossy under pressure.
func (s *Streamer) ReportFrameRate(fps float64) {
	select {
	case s.health <- fps:
	default:
	}
}

// MoveObserver reports the observer's world position.
func (s *Streamer) MoveObserver(x, z float64) {
	select {
	case s.moves <- [2]float64{x, z}:
	default:
	}
}

// SetOrigin rebinds the world anchor. Every tile is origin-relative, so
// the working set is discarded and rebuilt.
func (s *Streamer) SetOrigin(o protocol.Origin) {
	s.enqueueCmd(func() {
		s.origin = o
		s.resetTiles()
	})
}

// SetDataset switches the elevation dataset; cached tiles for other
// datasets stay on disk but stop matching.
func (s *Streamer) SetDataset(name string) {
	s.enqueueCmd(func() {
		s.dataset = name
		s.resetTiles()
	})
}

// SetQueryMode switches the wire encoding for future fetches.
func (s *Streamer) SetQueryMode(m protocol.QueryMode) {
	s.enqueueCmd(func() { s.queryMode = m })
}

// ForcePause is the manual scheduler override.
func (s *Streamer) ForcePause(reason string) {
	s.enqueueCmd(func() { s.sched.ForcePause(reason) })
}

func (s *Streamer) ForceResume() {
	s.enqueueCmd(func() { s.sched.ForceResume() })
}

func (s *Streamer) enqueueCmd(f func()) {
	select {
	case s.cmds <- f:
	default:
		s.log.Printf("command queue full, dropping")
	}
}

func (s *Streamer) resetTiles() {
	for c := range s.tiles {
		s.evict(c)
	}
	s.outbox = nil
	s.rebuildOrder()
}

// HeightAt returns the interpolated terrain height at a world position,
// preferring the finest surface covering it.
func (s *Streamer) HeightAt(x, z float64) (float64, bool) {
	c := hex.FromWorld(x, z, s.cfg.Rings.TileRadius)
	cands := make([]*tile.Tile, 0, 8)
	if t := s.TileAt(c); t != nil {
		cands = append(cands, t)
	}
	for _, n := range c.Neighbors() {
		if t := s.TileAt(n); t != nil {
			cands = append(cands, t)
		}
	}
	var (
		bestH  float64
		bestCl tile.Class
		found  bool
	)
	for _, t := range cands {
		if found && t.Class >= bestCl {
			continue
		}
		if h, ok := t.SampleHeight(x, z); ok {
			bestH, bestCl, found = h, t.Class, true
		}
	}
	return bestH, found
}

func (s *Streamer) markDirty(c hex.Coord) { s.dirty[c] = struct{}{} }

func (s *Streamer) signalRedraw(t *tile.Tile) {
	if s.OnRedraw != nil {
		s.OnRedraw(t.Coord)
	}
}

// stitchPass reconciles seams of every tile touched this tick.
func (s *Streamer) stitchPass() {
	for c := range s.dirty {
		t := s.tiles[c]
		if t == nil {
			continue
		}
		stitch.Tile(t, s, s.stitchCfg)
		stitch.Corners(t, s)
	}
	clear(s.dirty)
}

func (s *Streamer) Status() Status {
	st := Status{
		Scheduler:    s.sched.Status(),
		Metrics:      s.metrics,
		Tiles:        len(s.tiles),
		InFlight:     s.inFlight,
		Outbox:       len(s.outbox),
		DegradeLevel: s.gov.DegradeLevel(),
		Observer:     s.observer,
		Dataset:      s.dataset,
		QueryMode:    string(s.queryMode),
		LastError:    s.lastErr,
	}
	if !s.lastErrAt.IsZero() {
		st.LastErrorTs = s.lastErrAt.UnixMilli()
	}
	if s.durCount > 0 {
		window := make([]int64, s.durCount)
		copy(window, s.durations[:s.durCount])
		sort.Slice(window, func(i, j int) bool { return window[i] < window[j] })
		var sum int64
		for _, d := range window {
			sum += d
		}
		st.AvgDurationMs = float64(sum) / float64(len(window))
		st.P95DurationMs = float64(window[(len(window)*95)/100])
	}
	return st
}
