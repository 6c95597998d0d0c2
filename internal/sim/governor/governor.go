// Package governor is the only mechanism allowed to block network
// submission: a dual token bucket covering request count and payload
// bytes, refilled continuously on wall time.
package governor

import "time"

type Governor struct {
	reqCap  float64
	byteCap float64

	reqRate  float64 // tokens per second
	byteRate float64

	reqTokens  float64
	byteTokens float64
	last       time.Time

	// Degradation halves capacity under sustained upstream failure.
	degradeLevel int
	maxDegrade   int
}

func New(requestsPerSec, requestBurst, bytesPerSec, byteBurst float64, now time.Time) *Governor {
	return &Governor{
		reqCap:     requestBurst,
		byteCap:    byteBurst,
		reqRate:    requestsPerSec,
		byteRate:   bytesPerSec,
		reqTokens:  requestBurst,
		byteTokens: byteBurst,
		last:       now,
		maxDegrade: 3,
	}
}

func (g *Governor) refill(now time.Time) {
	dt := now.Sub(g.last).Seconds()
	if dt < 0 {
		dt = 0
	}
	g.last = now

	reqCap, byteCap := g.effectiveCaps()
	g.reqTokens = min(reqCap, g.reqTokens+g.effectiveRate(g.reqRate)*dt)
	g.byteTokens = min(byteCap, g.byteTokens+g.effectiveRate(g.byteRate)*dt)
}

func (g *Governor) effectiveCaps() (float64, float64) {
	f := g.degradeFactor()
	return g.reqCap * f, g.byteCap * f
}

func (g *Governor) effectiveRate(r float64) float64 {
	return r * g.degradeFactor()
}

func (g *Governor) degradeFactor() float64 {
	f := 1.0
	for i := 0; i < g.degradeLevel; i++ {
		f /= 2
	}
	return f
}

// TryAcquire debits one request token and the estimated payload bytes, or
// neither. Callers poll again after WaitEstimate on failure.
func (g *Governor) TryAcquire(now time.Time, bytes int) bool {
	g.refill(now)
	if g.reqTokens < 1 || g.byteTokens < float64(bytes) {
		return false
	}
	g.reqTokens -= 1
	g.byteTokens -= float64(bytes)
	return true
}

// WaitEstimate suggests how long to wait before retrying an acquire of
// the given size. A low-frequency poll is fine; precision is not needed.
func (g *Governor) WaitEstimate(bytes int) time.Duration {
	wait := 50 * time.Millisecond
	if g.reqTokens < 1 && g.effectiveRate(g.reqRate) > 0 {
		d := time.Duration((1 - g.reqTokens) / g.effectiveRate(g.reqRate) * float64(time.Second))
		if d > wait {
			wait = d
		}
	}
	if need := float64(bytes) - g.byteTokens; need > 0 && g.effectiveRate(g.byteRate) > 0 {
		d := time.Duration(need / g.effectiveRate(g.byteRate) * float64(time.Second))
		if d > wait {
			wait = d
		}
	}
	return wait
}

// Degrade shrinks both pools after sustained upstream failure.
func (g *Governor) Degrade() {
	if g.degradeLevel < g.maxDegrade {
		g.degradeLevel++
	}
	reqCap, byteCap := g.effectiveCaps()
	g.reqTokens = min(g.reqTokens, reqCap)
	g.byteTokens = min(g.byteTokens, byteCap)
}

// Recover restores one degradation step.
func (g *Governor) Recover() {
	if g.degradeLevel > 0 {
		g.degradeLevel--
	}
}

func (g *Governor) DegradeLevel() int { return g.degradeLevel }

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
