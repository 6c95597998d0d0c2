// Package streamtest is a black-box harness for driving a streamer
// against a scripted elevation upstream. Tests step the tick loop
// directly with a scripted clock, so every scenario is deterministic;
// the only real concurrency is the fetch goroutines, which the harness
// settles before asserting.
package streamtest

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"hexelev.dev/internal/protocol"
	"hexelev.dev/internal/sim/stream"
	"hexelev.dev/internal/sim/tuning"
	"hexelev.dev/internal/transport/elev"
)

// Upstream is a scripted stand-in for the elevation service. By default
// it answers every sample from HeightFn; Empty and Fail flip it into
// missing-data and hard-failure modes.
type Upstream struct {
	mu       sync.Mutex
	heightFn func(lat, lng float64) float64
	empty    bool
	fail     bool
	requests int
	samples  int

	srv *httptest.Server
}

func NewUpstream() *Upstream {
	u := &Upstream{
		heightFn: func(lat, lng float64) float64 { return 25 },
	}
	u.srv = httptest.NewServer(http.HandlerFunc(u.handle))
	return u
}

func (u *Upstream) URL() string { return u.srv.URL }
func (u *Upstream) Close()      { u.srv.Close() }

func (u *Upstream) SetHeightFn(f func(lat, lng float64) float64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.heightFn = f
}

func (u *Upstream) SetEmpty(v bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.empty = v
}

func (u *Upstream) SetFail(v bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.fail = v
}

func (u *Upstream) Requests() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.requests
}

func (u *Upstream) Samples() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.samples
}

func (u *Upstream) handle(rw http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	u.requests++
	fail, empty, f := u.fail, u.empty, u.heightFn
	u.mu.Unlock()

	if fail {
		http.Error(rw, "upstream unavailable", http.StatusBadGateway)
		return
	}

	var locs []protocol.LatLng
	var hashes []string
	if r.Method == http.MethodPost {
		var msg protocol.QueryMsg
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			http.Error(rw, err.Error(), http.StatusBadRequest)
			return
		}
		locs, hashes = msg.Locations, msg.Geohashes
	} else {
		var err error
		locs, err = protocol.ParseLocations(r.URL.Query().Get("locations"))
		if err != nil {
			http.Error(rw, err.Error(), http.StatusBadRequest)
			return
		}
	}

	results := []protocol.Result{}
	if !empty {
		for i := range locs {
			ll := locs[i]
			results = append(results, protocol.Result{Location: &ll, Elevation: f(ll.Lat, ll.Lng)})
		}
		for _, gh := range hashes {
			lat, lng, err := protocol.DecodeGeohash(gh)
			if err != nil {
				continue
			}
			results = append(results, protocol.Result{Geohash: gh, Elevation: f(lat, lng)})
		}
	}
	u.mu.Lock()
	u.samples += len(results)
	u.mu.Unlock()
	_ = json.NewEncoder(rw).Encode(map[string]any{"results": results})
}

// Harness couples a streamer to a scripted upstream and clock.
type Harness struct {
	T        *testing.T
	Upstream *Upstream
	S        *stream.Streamer

	Origin protocol.Origin

	now time.Time
}

// stepInterval clears the scheduler's minimum tick so every Step can
// release work.
const stepInterval = 700 * time.Millisecond

func New(t *testing.T, tune tuning.Tuning) *Harness {
	t.Helper()

	up := NewUpstream()
	t.Cleanup(up.Close)

	origin := protocol.Origin{Lat: 47.6, Lng: -122.33}
	client := elev.NewClient(up.URL(), 2*time.Second)
	s := stream.New(tune, stream.Config{
		Origin:    origin,
		Dataset:   "mapzen",
		QueryMode: protocol.QueryLatLng,
	}, client, nil, nil, log.New(io.Discard, "", 0))

	h := &Harness{T: t, Upstream: up, S: s, Origin: origin, now: time.Now()}
	s.Clock = func() time.Time { return h.now }
	return h
}

// Step advances the scripted clock past the scheduler interval and runs
// one full tick.
func (h *Harness) Step() {
	h.T.Helper()
	h.now = h.now.Add(stepInterval)
	h.S.StepOnce(h.now)
}

// Settle steps repeatedly, draining in-flight fetches after each tick,
// until the given number of ticks has run.
func (h *Harness) Settle(steps int) {
	h.T.Helper()
	for i := 0; i < steps; i++ {
		h.Step()
		h.drain()
	}
}

// drain waits out the fetch goroutines started this tick and applies
// their results. The clock does not advance, so no new work is released.
func (h *Harness) drain() {
	h.T.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for h.S.Status().InFlight > 0 {
		if time.Now().After(deadline) {
			h.T.Fatalf("in-flight fetches did not settle")
		}
		time.Sleep(2 * time.Millisecond)
		h.S.StepOnce(h.now)
	}
}
