package stream

import (
	"time"

	"hexelev.dev/internal/persistence/tilecache"
	"hexelev.dev/internal/protocol"
	"hexelev.dev/internal/sim/hex"
	"hexelev.dev/internal/sim/relax"
	"hexelev.dev/internal/sim/sched"
	"hexelev.dev/internal/sim/tile"
	"hexelev.dev/internal/transport/elev"
)

// sampleRef ties one requested sample back to its vertex.
type sampleRef struct {
	coord hex.Coord
	phase tile.Phase
	index int
	key   string
}

// batchRequest is one size-bounded upstream call. A coalesced farfield
// batch may carry refs from several tiles; locs/hashes hold the
// deduplicated samples actually sent.
type batchRequest struct {
	id        string
	mode      protocol.QueryMode
	precision int
	locs      []protocol.LatLng
	hashes    []string
	refs      []sampleRef
	tiles     map[hex.Coord]tile.Phase
	bytes     int
}

type fetchResult struct {
	batch batchRequest
	resp  protocol.ResponseMsg
	err   error
}

// maybeQueue enqueues the tile's next phase unless it is populating,
// complete, or already queued. One entry per tile across all queues.
func (s *Streamer) maybeQueue(t *tile.Tile) {
	if t.Populating || t.NextPhase() == 0 || s.sched.Queued(t.Coord) {
		return
	}
	s.sched.Enqueue(sched.Entry{
		Coord:      t.Coord,
		Class:      t.Class,
		Dist:       hex.Dist(s.observer, t.Coord),
		EnqueuedAt: s.Clock(),
	})
}

// dispatch turns the scheduler's released entries into outbox batches.
// Farfield siblings sharing a precision are coalesced into one call.
func (s *Streamer) dispatch(entries []sched.Entry) {
	var farfield []*tile.Tile
	for _, e := range entries {
		t := s.tiles[e.Coord]
		if t == nil || t.Populating {
			continue
		}
		p := t.NextPhase()
		if p == 0 {
			continue
		}
		if t.Class == tile.ClassFarfield && s.cfg.Fetch.CoalesceFarfield {
			farfield = append(farfield, t)
			continue
		}
		refs := s.buildSamples(t, p)
		if len(refs) == 0 {
			// Every vertex of the phase is already known; nothing to fetch.
			s.completePhase(t, p)
			continue
		}
		s.enqueueBatches(refs, s.precisionFor(t))
		t.Populating = true
	}
	if len(farfield) > 0 {
		s.dispatchCoalesced(farfield)
	}
}

// precisionFor derives the geohash precision from the tile's spacing.
func (s *Streamer) precisionFor(t *tile.Tile) int {
	return protocol.GeohashPrecision(t.Spacing)
}

func (s *Streamer) dispatchCoalesced(tiles []*tile.Tile) {
	byPrec := map[int][]sampleRef{}
	for _, t := range tiles {
		p := t.NextPhase()
		if p == 0 {
			continue
		}
		refs := s.buildSamples(t, p)
		if len(refs) == 0 {
			s.completePhase(t, p)
			continue
		}
		byPrec[s.precisionFor(t)] = append(byPrec[s.precisionFor(t)], refs...)
		t.Populating = true
	}
	for prec, refs := range byPrec {
		s.enqueueBatches(refs, prec)
	}
}

// buildSamples lists the still-unknown vertices a phase must fetch.
func (s *Streamer) buildSamples(t *tile.Tile, p tile.Phase) []sampleRef {
	idx := t.PhaseIndices(p)
	refs := make([]sampleRef, 0, len(idx))
	for _, i := range idx {
		if t.Ready(i) {
			continue
		}
		x, z := t.VertexWorld(i)
		ll := s.origin.ToLatLng(x, z)
		refs = append(refs, sampleRef{
			coord: t.Coord,
			phase: p,
			index: i,
			key:   protocol.SampleKey(s.queryMode, ll, s.precisionFor(t)),
		})
	}
	return refs
}

// enqueueBatches packs refs into batches bounded by the item and byte
// caps, deduplicating identical sample keys.
func (s *Streamer) enqueueBatches(refs []sampleRef, precision int) {
	if len(refs) == 0 {
		return
	}
	b := s.newBatch(precision)
	seen := map[string]protocol.LatLng{}
	flush := func() {
		if len(b.refs) == 0 {
			return
		}
		b.id = elev.NewRequestID()
		s.outbox = append(s.outbox, b)
		b = s.newBatch(precision)
		seen = map[string]protocol.LatLng{}
	}
	for _, r := range refs {
		if _, dup := seen[r.key]; dup {
			b.refs = append(b.refs, r)
			b.tiles[r.coord] = r.phase
			s.metrics.Coalesced++
			continue
		}
		cost := 22
		if s.queryMode == protocol.QueryGeohash {
			cost = precision + 3
		}
		if len(b.locs)+len(b.hashes) >= s.cfg.Fetch.BatchItemCap || b.bytes+cost > s.cfg.Fetch.BatchByteCap {
			flush()
		}
		ll, _ := decodeKey(s.queryMode, r.key)
		seen[r.key] = ll
		if s.queryMode == protocol.QueryGeohash {
			b.hashes = append(b.hashes, r.key)
		} else {
			b.locs = append(b.locs, ll)
		}
		b.bytes += cost
		b.refs = append(b.refs, r)
		b.tiles[r.coord] = r.phase
	}
	flush()
}

func (s *Streamer) newBatch(precision int) batchRequest {
	return batchRequest{
		mode:      s.queryMode,
		precision: precision,
		tiles:     map[hex.Coord]tile.Phase{},
		bytes:     64,
	}
}

func decodeKey(mode protocol.QueryMode, key string) (protocol.LatLng, error) {
	if mode == protocol.QueryGeohash {
		lat, lng, err := protocol.DecodeGeohash(key)
		return protocol.LatLng{Lat: lat, Lng: lng}, err
	}
	locs, err := protocol.ParseLocations(key)
	if err != nil || len(locs) == 0 {
		return protocol.LatLng{}, err
	}
	return locs[0], nil
}

// pumpOutbox submits queued batches while the governor and the in-flight
// cap allow. A denied acquire leaves the batch queued for the next tick.
func (s *Streamer) pumpOutbox(now time.Time) {
	for len(s.outbox) > 0 && s.inFlight < s.cfg.Fetch.MaxInFlight {
		b := s.outbox[0]
		if !s.gov.TryAcquire(now, b.bytes) {
			s.metrics.GovernorDenied++
			return
		}
		s.outbox = s.outbox[1:]
		s.inFlight++
		if uint64(s.inFlight) > s.metrics.MaxInFlight {
			s.metrics.MaxInFlight = uint64(s.inFlight)
		}
		s.metrics.Requests++
		s.metrics.BytesSent += uint64(b.bytes)
		go s.send(b)
	}
}

func (s *Streamer) send(b batchRequest) {
	req := elev.Request{
		ID:        b.id,
		Dataset:   s.dataset,
		Mode:      b.mode,
		Locations: b.locs,
		Geohashes: b.hashes,
		Precision: b.precision,
	}
	resp, err := s.client.Query(s.runCtx, req)
	select {
	case s.results <- fetchResult{batch: b, resp: resp, err: err}:
	case <-s.runCtx.Done():
	}
}

// handleResult applies one response on the tick goroutine: every matched
// write lands first, then a single redraw per affected tile.
func (s *Streamer) handleResult(r fetchResult) {
	s.inFlight--
	s.recordDuration(r.resp.DurationMs)

	if s.fetchLog != nil {
		_ = s.fetchLog.Write(map[string]any{
			"id":          r.batch.id,
			"status":      r.resp.Status,
			"duration_ms": r.resp.DurationMs,
			"samples":     len(r.batch.refs),
			"tiles":       len(r.batch.tiles),
			"error":       errString(r.err),
		})
	}

	if r.err != nil {
		s.metrics.Failures++
		s.lastErr = r.err.Error()
		s.lastErrAt = s.Clock()
		if r.resp.Code == protocol.ErrTimeout {
			s.metrics.Timeouts++
		}
		s.consecutiveFails++
		if s.consecutiveFails >= 3 {
			s.gov.Degrade()
			s.consecutiveFails = 0
			s.log.Printf("upstream degraded to level %d", s.gov.DegradeLevel())
		}
		for c, p := range r.batch.tiles {
			if t := s.tiles[c]; t != nil {
				t.Populating = false
				s.retryPhase(t, p)
			}
		}
		return
	}

	s.metrics.Responses++
	s.consecutiveFails = 0
	if s.gov.DegradeLevel() > 0 {
		s.gov.Recover()
	}

	heights := make(map[string]float64, len(r.resp.Results))
	for _, res := range r.resp.Results {
		switch {
		case res.Geohash != "":
			heights[res.Geohash] = res.Elevation
		case res.Location != nil:
			heights[protocol.SampleKey(protocol.QueryLatLng, *res.Location, 0)] = res.Elevation
		}
	}

	applied := map[hex.Coord]int{}
	reps := map[hex.Coord]int{}
	missing := map[hex.Coord]int{}
	for _, ref := range r.batch.refs {
		t := s.tiles[ref.coord]
		if t == nil { // evicted mid-flight: discard
			continue
		}
		h, ok := heights[ref.key]
		if !ok {
			missing[ref.coord]++
			s.metrics.SamplesMissing++
			continue
		}
		if t.MarkReady(ref.index, h) {
			if _, seen := reps[ref.coord]; !seen {
				reps[ref.coord] = ref.index
			}
			applied[ref.coord]++
		}
		s.metrics.SamplesFetched++
	}

	for c, p := range r.batch.tiles {
		t := s.tiles[c]
		if t == nil {
			continue
		}
		t.Populating = false
		if missing[c] == 0 {
			s.completePhase(t, p)
		} else {
			s.retryPhase(t, p)
		}
	}

	for c, n := range applied {
		t := s.tiles[c]
		if t == nil || n == 0 {
			continue
		}
		s.markDirty(c)
		if s.OnHeightsApplied != nil {
			s.OnHeightsApplied(c, reps[c], n)
		}
		s.signalRedraw(t)
	}
}

func (s *Streamer) recordDuration(ms int64) {
	s.durations[s.durNext] = ms
	s.durNext = (s.durNext + 1) % len(s.durations)
	if s.durCount < len(s.durations) {
		s.durCount++
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (s *Streamer) completePhase(t *tile.Tile, p tile.Phase) {
	t.CompletePhase(p)
	relax.AnchorFill(t)
	s.markDirty(t.Coord)
	if t.TerminalDone() {
		s.saveToCache(t)
		return
	}
	s.maybeQueue(t)
}

// retryPhase re-queues a phase until the cap, then abandons it. An
// abandoned farfield phase gets one fallback: dense sampling, or half
// resolution if sampling was already dense.
func (s *Streamer) retryPhase(t *tile.Tile, p tile.Phase) {
	if t.Retry(p) <= s.cfg.Fetch.RetryCap {
		s.metrics.Retries++
		s.maybeQueue(t)
		return
	}
	s.metrics.Abandoned++
	s.log.Printf("tile %v phase %s abandoned after %d retries", t.Coord, p, s.cfg.Fetch.RetryCap)

	if t.Class == tile.ClassFarfield && !t.FallbackUsed {
		s.metrics.Fallbacks++
		sp := spec{class: tile.ClassFarfield, scale: t.Scale, mode: tile.SampleAll}
		if t.Mode == tile.SampleAll {
			sp.scale *= max(2, s.cfg.Rings.FarfieldScaleStep)
		}
		s.ensureTile(t.Coord, sp)
		if nt := s.tiles[t.Coord]; nt != nil {
			nt.FallbackUsed = true
		}
		return
	}

	// Partial tile: relaxation covers the gap.
	t.CompletePhase(p)
	relax.AnchorFill(t)
	s.markDirty(t.Coord)
	if !t.TerminalDone() {
		s.maybeQueue(t)
	}
}

// idleBackfill keeps the upstream link warm when the scheduler is
// quiet: with nothing queued or in flight, the nearest incomplete tile
// is dispatched directly (still governor-gated).
func (s *Streamer) idleBackfill() {
	if s.inFlight > 0 || len(s.outbox) > 0 {
		return
	}
	st := s.sched.Status()
	if st.Depths[0]+st.Depths[1]+st.Depths[2] > 0 || st.Paused {
		return
	}
	for _, c := range s.order {
		t := s.tiles[c]
		if t == nil || t.Populating {
			continue
		}
		p := t.NextPhase()
		if p == 0 {
			continue
		}
		refs := s.buildSamples(t, p)
		if len(refs) == 0 {
			s.completePhase(t, p)
			continue
		}
		s.enqueueBatches(refs, s.precisionFor(t))
		t.Populating = true
		return
	}
}

func (s *Streamer) cacheKey(t *tile.Tile) tilecache.Key {
	return tilecache.Key{
		CacheVersion: s.cfg.Cache.Version,
		OriginKey:    s.origin.Key(),
		Class:        t.Class.String(),
		Spacing:      t.Spacing,
		Radius:       t.Radius,
		Dataset:      s.dataset,
		QueryMode:    string(s.queryMode),
		SampleMode:   t.Mode.String(),
		Q:            t.Coord.Q,
		R:            t.Coord.R,
	}
}

func (s *Streamer) loadFromCache(t *tile.Tile) bool {
	if s.cache == nil {
		return false
	}
	p, ok, err := s.cache.Load(s.cacheKey(t), t.VertexCount())
	if err != nil {
		s.log.Printf("tile cache load %v: %v", t.Coord, err)
		return false
	}
	if !ok {
		s.metrics.CacheMisses++
		return false
	}
	s.metrics.CacheHits++
	for i, h := range p.Heights {
		t.MarkReady(i, h)
	}
	t.CompletePhase(tile.PhaseFull)
	return true
}

func (s *Streamer) saveToCache(t *tile.Tile) {
	if s.cache == nil {
		return
	}
	heights := make([]float64, len(t.Heights))
	copy(heights, t.Heights)
	s.cache.Save(s.cacheKey(t), tilecache.Payload{
		Type:    t.Class.String(),
		Spacing: t.Spacing,
		Radius:  t.Radius,
		Q:       t.Coord.Q,
		R:       t.Coord.R,
		Heights: heights,
	})
}
