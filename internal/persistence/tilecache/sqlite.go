// Package tilecache persists fully-populated tiles so a restart near the
// same origin skips the network. A stale or incompatible row is a cache
// miss, never an error.
package tilecache

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"
)

// Key identifies one cached tile. Every field participates: a change in
// origin, spacing, radius, dataset or sampling invalidates the row.
type Key struct {
	CacheVersion int
	OriginKey    string
	Class        string
	Spacing      float64
	Radius       float64
	Dataset      string
	QueryMode    string
	SampleMode   string
	Q, R         int
}

// Payload is the stored tile surface.
type Payload struct {
	Type    string
	Spacing float64
	Radius  float64
	Q, R    int
	Heights []float64
}

type Cache struct {
	db *sql.DB

	enc *zstd.Encoder
	dec *zstd.Decoder

	ch     chan saveReq
	wg     sync.WaitGroup
	once   sync.Once
	closed atomic.Bool
}

type saveReq struct {
	key     Key
	payload Payload
}

func Open(path string) (*Cache, error) {
	if path == "" {
		return nil, fmt.Errorf("empty cache path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	c := &Cache{
		db:  db,
		enc: enc,
		dec: dec,
		ch:  make(chan saveReq, 1024),
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.loop()
	}()
	return c, nil
}

func initPragmas(db *sql.DB) error {
	// WAL suits the append-style save path; the cache is rebuildable, so
	// NORMAL durability is plenty.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS tiles (
			cache_version INTEGER NOT NULL,
			origin_key TEXT NOT NULL,
			class TEXT NOT NULL,
			spacing REAL NOT NULL,
			radius REAL NOT NULL,
			dataset TEXT NOT NULL,
			query_mode TEXT NOT NULL,
			sample_mode TEXT NOT NULL,
			q INTEGER NOT NULL,
			r INTEGER NOT NULL,
			vertex_count INTEGER NOT NULL,
			heights BLOB NOT NULL,
			saved_at TEXT NOT NULL,
			PRIMARY KEY (cache_version, origin_key, class, spacing, radius,
				dataset, query_mode, sample_mode, q, r)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tiles_origin ON tiles(origin_key, class);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cache) Close() error {
	var err error
	c.once.Do(func() {
		c.closed.Store(true)
		close(c.ch)
		c.wg.Wait()
		c.enc.Close()
		c.dec.Close()
		err = c.db.Close()
	})
	return err
}

// Save queues a tile for persistence. Saves are asynchronous and lossy
// under pressure; the cache is an accelerator, not a source of truth.
func (c *Cache) Save(key Key, payload Payload) {
	if c == nil || c.closed.Load() {
		return
	}
	select {
	case c.ch <- saveReq{key: key, payload: payload}:
	default:
	}
}

// SaveSync writes a tile immediately. Tests and shutdown paths use it.
func (c *Cache) SaveSync(key Key, payload Payload) error {
	return c.write(saveReq{key: key, payload: payload})
}

// Load fetches a cached tile. Any mismatch with the expected geometry
// (spacing, radius, class, vertex count) is reported as a miss.
func (c *Cache) Load(key Key, wantVertices int) (Payload, bool, error) {
	var (
		p     Payload
		count int
		blob  []byte
	)
	row := c.db.QueryRow(
		`SELECT spacing, radius, q, r, vertex_count, heights FROM tiles
		 WHERE cache_version=? AND origin_key=? AND class=? AND spacing=? AND radius=?
		   AND dataset=? AND query_mode=? AND sample_mode=? AND q=? AND r=?`,
		key.CacheVersion, key.OriginKey, key.Class, key.Spacing, key.Radius,
		key.Dataset, key.QueryMode, key.SampleMode, key.Q, key.R,
	)
	if err := row.Scan(&p.Spacing, &p.Radius, &p.Q, &p.R, &count, &blob); err != nil {
		if err == sql.ErrNoRows {
			return Payload{}, false, nil
		}
		return Payload{}, false, err
	}
	p.Type = key.Class

	if count != wantVertices || p.Spacing != key.Spacing || p.Radius != key.Radius {
		return Payload{}, false, nil
	}
	heights, err := c.decodeHeights(blob, count)
	if err != nil {
		// Corrupt blob: treat as a miss.
		return Payload{}, false, nil
	}
	p.Heights = heights
	return p, true, nil
}

func (c *Cache) loop() {
	for r := range c.ch {
		_ = c.write(r)
	}
}

func (c *Cache) write(r saveReq) error {
	blob := c.encodeHeights(r.payload.Heights)
	_, err := c.db.Exec(
		`INSERT OR REPLACE INTO tiles(cache_version, origin_key, class, spacing, radius,
			dataset, query_mode, sample_mode, q, r, vertex_count, heights, saved_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.key.CacheVersion, r.key.OriginKey, r.key.Class, r.key.Spacing, r.key.Radius,
		r.key.Dataset, r.key.QueryMode, r.key.SampleMode, r.key.Q, r.key.R,
		len(r.payload.Heights), blob, time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (c *Cache) encodeHeights(heights []float64) []byte {
	raw := make([]byte, 8*len(heights))
	for i, h := range heights {
		binary.LittleEndian.PutUint64(raw[i*8:], math.Float64bits(h))
	}
	return c.enc.EncodeAll(raw, nil)
}

func (c *Cache) decodeHeights(blob []byte, count int) ([]float64, error) {
	raw, err := c.dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, err
	}
	if len(raw) != 8*count {
		return nil, fmt.Errorf("height blob length %d, want %d", len(raw), 8*count)
	}
	out := make([]float64, count)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
	}
	return out, nil
}
