package hex

import (
	"math"
	"testing"
)

func TestRingAndDiscSizes(t *testing.T) {
	c := Coord{Q: 3, R: -1}
	for k := 1; k <= 5; k++ {
		if got := len(Ring(c, k)); got != 6*k {
			t.Fatalf("ring %d: got %d coords, want %d", k, got, 6*k)
		}
		want := 1 + 3*k*(k+1)
		if got := len(Disc(c, k)); got != want {
			t.Fatalf("disc %d: got %d coords, want %d", k, got, want)
		}
	}
	if got := Ring(c, 0); len(got) != 1 || got[0] != c {
		t.Fatalf("ring 0: got %v", got)
	}
}

func TestRingStartsAtDirectionFourCorner(t *testing.T) {
	c := Coord{Q: 2, R: 2}
	r := Ring(c, 3)
	want := c
	for i := 0; i < 3; i++ {
		want = want.Add(Directions[4])
	}
	if r[0] != want {
		t.Fatalf("ring start %v, want %v", r[0], want)
	}
}

func TestDist(t *testing.T) {
	cases := []struct {
		a, b Coord
		want int
	}{
		{Coord{}, Coord{}, 0},
		{Coord{}, Coord{Q: 1, R: 0}, 1},
		{Coord{}, Coord{Q: 1, R: -1}, 1},
		{Coord{}, Coord{Q: 2, R: -1}, 2},
		{Coord{Q: -2, R: 1}, Coord{Q: 3, R: -1}, 5},
	}
	for _, c := range cases {
		if got := Dist(c.a, c.b); got != c.want {
			t.Fatalf("dist(%v,%v) = %d, want %d", c.a, c.b, got, c.want)
		}
		if got := Dist(c.b, c.a); got != c.want {
			t.Fatalf("dist not symmetric for %v,%v", c.a, c.b)
		}
	}
	for _, n := range (Coord{}).Neighbors() {
		if Dist(Coord{}, n) != 1 {
			t.Fatalf("neighbor %v not at distance 1", n)
		}
	}
}

func TestCenterFromWorldRoundtrip(t *testing.T) {
	const size = 64.0
	for q := -6; q <= 6; q++ {
		for r := -6; r <= 6; r++ {
			c := Coord{Q: q, R: r}
			x, z := Center(c, size)
			if got := FromWorld(x, z, size); got != c {
				t.Fatalf("roundtrip %v: got %v (x=%f z=%f)", c, got, x, z)
			}
			// A point nudged off-center still maps to the same tile.
			if got := FromWorld(x+size*0.3, z-size*0.2, size); got != c {
				t.Fatalf("nudged %v: got %v", c, got)
			}
		}
	}
}

func TestLatticeOffsetSpacing(t *testing.T) {
	const spacing = 8.0
	for _, c := range Disc(Coord{}, 3) {
		cx, cz := LatticeOffset(c, spacing)
		for _, n := range c.Neighbors() {
			nx, nz := LatticeOffset(n, spacing)
			d := math.Hypot(nx-cx, nz-cz)
			if math.Abs(d-spacing) > 1e-9 {
				t.Fatalf("neighbors %v,%v are %f apart, want %f", c, n, d, spacing)
			}
		}
	}
}

func TestSortByDist(t *testing.T) {
	coords := Disc(Coord{Q: 1, R: 1}, 4)
	SortByDist(Coord{Q: 1, R: 1}, coords)
	prev := -1
	for _, c := range coords {
		d := Dist(Coord{Q: 1, R: 1}, c)
		if d < prev {
			t.Fatalf("order not ascending at %v", c)
		}
		prev = d
	}
}
