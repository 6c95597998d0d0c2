package tilecache

import (
	"path/filepath"
	"testing"
)

func testKey() Key {
	return Key{
		CacheVersion: 1,
		OriginKey:    "47.60000,-122.33000",
		Class:        "interactive",
		Spacing:      8,
		Radius:       64,
		Dataset:      "mapzen",
		QueryMode:    "latlng",
		SampleMode:   "all",
		Q:            2,
		R:            -1,
	}
}

func openTemp(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "tiles", "cache.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestSaveLoadRoundtrip(t *testing.T) {
	c := openTemp(t)
	key := testKey()
	heights := []float64{0, -12.25, 3.5, 1e6, -0.000001, 42}
	payload := Payload{Type: key.Class, Spacing: key.Spacing, Radius: key.Radius, Q: key.Q, R: key.R, Heights: heights}

	if err := c.SaveSync(key, payload); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := c.Load(key, len(heights))
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if len(got.Heights) != len(heights) {
		t.Fatalf("got %d heights, want %d", len(got.Heights), len(heights))
	}
	for i := range heights {
		if got.Heights[i] != heights[i] {
			t.Fatalf("height %d = %v, want %v", i, got.Heights[i], heights[i])
		}
	}
	if got.Q != key.Q || got.R != key.R || got.Spacing != key.Spacing {
		t.Fatalf("payload columns mismatch: %+v", got)
	}
}

func TestLoadMissIsNotAnError(t *testing.T) {
	c := openTemp(t)
	_, ok, err := c.Load(testKey(), 7)
	if err != nil {
		t.Fatalf("miss returned error: %v", err)
	}
	if ok {
		t.Fatalf("miss reported as hit")
	}
}

func TestVertexCountMismatchIsMiss(t *testing.T) {
	c := openTemp(t)
	key := testKey()
	if err := c.SaveSync(key, Payload{Spacing: key.Spacing, Radius: key.Radius, Heights: []float64{1, 2, 3}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	_, ok, err := c.Load(key, 7)
	if err != nil || ok {
		t.Fatalf("mismatched vertex count: ok=%v err=%v, want miss", ok, err)
	}
}

func TestKeyFieldsPartitionRows(t *testing.T) {
	c := openTemp(t)
	key := testKey()
	if err := c.SaveSync(key, Payload{Spacing: key.Spacing, Radius: key.Radius, Heights: []float64{1}}); err != nil {
		t.Fatalf("save: %v", err)
	}

	other := key
	other.Dataset = "aster30m"
	if _, ok, _ := c.Load(other, 1); ok {
		t.Fatalf("row leaked across dataset")
	}
	other = key
	other.CacheVersion = 2
	if _, ok, _ := c.Load(other, 1); ok {
		t.Fatalf("row leaked across cache version")
	}
	other = key
	other.OriginKey = "0.00000,0.00000"
	if _, ok, _ := c.Load(other, 1); ok {
		t.Fatalf("row leaked across origin")
	}
	if _, ok, _ := c.Load(key, 1); !ok {
		t.Fatalf("original row gone")
	}
}

func TestReplaceOverwrites(t *testing.T) {
	c := openTemp(t)
	key := testKey()
	_ = c.SaveSync(key, Payload{Spacing: key.Spacing, Radius: key.Radius, Heights: []float64{1, 2}})
	_ = c.SaveSync(key, Payload{Spacing: key.Spacing, Radius: key.Radius, Heights: []float64{9, 8}})

	got, ok, err := c.Load(key, 2)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if got.Heights[0] != 9 || got.Heights[1] != 8 {
		t.Fatalf("stale heights after overwrite: %v", got.Heights)
	}
}
