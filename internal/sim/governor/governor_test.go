package governor

import (
	"testing"
	"time"
)

func TestAcquireDebitsBothPools(t *testing.T) {
	now := time.Now()
	g := New(2, 2, 100, 100, now)

	if !g.TryAcquire(now, 40) {
		t.Fatalf("first acquire denied")
	}
	if !g.TryAcquire(now, 40) {
		t.Fatalf("second acquire denied")
	}
	// Request tokens exhausted.
	if g.TryAcquire(now, 1) {
		t.Fatalf("acquire granted with no request tokens")
	}
}

func TestByteDenialLeavesRequestTokens(t *testing.T) {
	now := time.Now()
	g := New(10, 10, 100, 100, now)

	if g.TryAcquire(now, 500) {
		t.Fatalf("oversized acquire granted")
	}
	// The failed acquire must not have debited the request pool.
	for i := 0; i < 10; i++ {
		if !g.TryAcquire(now, 1) {
			t.Fatalf("acquire %d denied after failed oversized acquire", i)
		}
	}
}

func TestContinuousRefill(t *testing.T) {
	now := time.Now()
	g := New(2, 2, 1000, 1000, now)
	g.TryAcquire(now, 1)
	g.TryAcquire(now, 1)
	if g.TryAcquire(now, 1) {
		t.Fatalf("pool should be empty")
	}
	if g.TryAcquire(now.Add(200*time.Millisecond), 1) {
		t.Fatalf("refilled too fast")
	}
	if !g.TryAcquire(now.Add(600*time.Millisecond), 1) {
		t.Fatalf("not refilled after 600ms at 2 rps")
	}
}

func TestWaitEstimateGrowsWithDeficit(t *testing.T) {
	now := time.Now()
	g := New(1, 1, 10, 10, now)
	g.TryAcquire(now, 10)

	small := g.WaitEstimate(1)
	large := g.WaitEstimate(100)
	if small < 50*time.Millisecond {
		t.Fatalf("wait estimate below poll floor: %v", small)
	}
	if large <= small {
		t.Fatalf("larger deficit should wait longer: %v <= %v", large, small)
	}
}

func TestDegradeHalvesCapacity(t *testing.T) {
	now := time.Now()
	g := New(4, 4, 1000, 1000, now)

	g.Degrade()
	if g.DegradeLevel() != 1 {
		t.Fatalf("degrade level = %d", g.DegradeLevel())
	}
	// Effective cap is 2: two acquires succeed, the third fails.
	n := 0
	for i := 0; i < 4; i++ {
		if g.TryAcquire(now, 1) {
			n++
		}
	}
	if n != 2 {
		t.Fatalf("acquired %d at degrade level 1, want 2", n)
	}

	for i := 0; i < 10; i++ {
		g.Degrade()
	}
	if g.DegradeLevel() != 3 {
		t.Fatalf("degrade level uncapped: %d", g.DegradeLevel())
	}
	g.Recover()
	g.Recover()
	g.Recover()
	if g.DegradeLevel() != 0 {
		t.Fatalf("recover did not restore: %d", g.DegradeLevel())
	}
	g.Recover()
	if g.DegradeLevel() != 0 {
		t.Fatalf("recover went negative")
	}
}
