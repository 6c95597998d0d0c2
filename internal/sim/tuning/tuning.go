package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DeviceClass selects the tuned profile for batch tables, tick intervals
// and fetch concurrency. Constrained devices get smaller everything.
type DeviceClass string

const (
	DeviceDesktop     DeviceClass = "desktop"
	DeviceConstrained DeviceClass = "constrained"
)

type Tuning struct {
	Device DeviceClass `yaml:"device"`

	Rings     Rings     `yaml:"rings"`
	Budgets   Budgets   `yaml:"budgets"`
	Scheduler Scheduler `yaml:"scheduler"`
	Fetch     Fetch     `yaml:"fetch"`
	Rate      Rate      `yaml:"rate"`
	Stitch    Stitch    `yaml:"stitch"`
	Cache     Cache     `yaml:"cache"`
}

type Rings struct {
	InteractiveRadius int     `yaml:"interactive_radius"`
	VisualRadius      int     `yaml:"visual_radius"`
	FarfieldRadius    int     `yaml:"farfield_radius"`
	HysteresisMargin  int     `yaml:"hysteresis_margin"`
	TileRadius        float64 `yaml:"tile_radius"`         // meters, center to corner
	VertexSpacing     float64 `yaml:"vertex_spacing"`      // meters, interactive lattice
	FarfieldStride    int     `yaml:"farfield_stride"`     // coordinate stride per tier
	FarfieldScaleStep int     `yaml:"farfield_scale_step"` // scale multiplier growth per tier
	PredictLeadS      float64 `yaml:"predict_lead_s"`      // observer velocity lookahead
}

type Budgets struct {
	LifecycleMs int `yaml:"lifecycle_ms"`
	RelaxMs     int `yaml:"relax_ms"`
	SmoothIters int `yaml:"smooth_iters"`
}

type Scheduler struct {
	InteractiveQueueMax  int `yaml:"interactive_queue_max"`
	VisualQueueMax       int `yaml:"visual_queue_max"`
	FarfieldQueueMax     int `yaml:"farfield_queue_max"`
	MinTickMsDesktop     int `yaml:"min_tick_ms_desktop"`
	MinTickMsConstrained int `yaml:"min_tick_ms_constrained"`
	InteractiveSlack     int `yaml:"interactive_slack"`
	NearEmpty            int `yaml:"near_empty"`
}

type Fetch struct {
	BatchItemCap     int  `yaml:"batch_item_cap"`
	BatchByteCap     int  `yaml:"batch_byte_cap"`
	MaxInFlight      int  `yaml:"max_in_flight"`
	RetryCap         int  `yaml:"retry_cap"`
	TimeoutMs        int  `yaml:"timeout_ms"`
	CoalesceFarfield bool `yaml:"coalesce_farfield"`
}

type Rate struct {
	RequestsPerSec float64 `yaml:"requests_per_sec"`
	RequestBurst   float64 `yaml:"request_burst"`
	BytesPerSec    float64 `yaml:"bytes_per_sec"`
	ByteBurst      float64 `yaml:"byte_burst"`
}

type Stitch struct {
	RimRatio     float64 `yaml:"rim_ratio"`     // beyond this fraction of radius a vertex is rim
	FeatherRatio float64 `yaml:"feather_ratio"` // width of the feather band as a fraction of radius
	LowBlend     float64 `yaml:"low_blend"`     // corner blend weight against a coarse neighbor
}

type Cache struct {
	Version int    `yaml:"version"`
	Path    string `yaml:"path"`
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t.withFallbacks(), nil
}

// Defaults carries the tuned constants for a desktop profile.
func Defaults() Tuning {
	return Tuning{
		Device: DeviceDesktop,
		Rings: Rings{
			InteractiveRadius: 2,
			VisualRadius:      5,
			FarfieldRadius:    13,
			HysteresisMargin:  1,
			TileRadius:        64,
			VertexSpacing:     8,
			FarfieldStride:    2,
			FarfieldScaleStep: 2,
			PredictLeadS:      1.5,
		},
		Budgets: Budgets{
			LifecycleMs: 4,
			RelaxMs:     3,
			SmoothIters: 2,
		},
		Scheduler: Scheduler{
			InteractiveQueueMax:  48,
			VisualQueueMax:       96,
			FarfieldQueueMax:     160,
			MinTickMsDesktop:     500,
			MinTickMsConstrained: 1000,
			InteractiveSlack:     4,
			NearEmpty:            2,
		},
		Fetch: Fetch{
			BatchItemCap:     64,
			BatchByteCap:     6 * 1024,
			MaxInFlight:      6,
			RetryCap:         3,
			TimeoutMs:        10000,
			CoalesceFarfield: true,
		},
		Rate: Rate{
			RequestsPerSec: 20,
			RequestBurst:   40,
			BytesPerSec:    256 * 1024,
			ByteBurst:      512 * 1024,
		},
		Stitch: Stitch{
			RimRatio:     0.92,
			FeatherRatio: 0.18,
			LowBlend:     0.5,
		},
		Cache: Cache{
			Version: 1,
			Path:    "./data/tilecache.db",
		},
	}
}

// Constrained returns the reduced profile used when the device flag says so.
func Constrained() Tuning {
	t := Defaults()
	t.Device = DeviceConstrained
	t.Rings.InteractiveRadius = 1
	t.Rings.VisualRadius = 3
	t.Rings.FarfieldRadius = 8
	t.Scheduler.InteractiveQueueMax = 24
	t.Scheduler.VisualQueueMax = 48
	t.Scheduler.FarfieldQueueMax = 80
	t.Fetch.BatchItemCap = 32
	t.Fetch.MaxInFlight = 3
	return t
}

func (t Tuning) withFallbacks() Tuning {
	d := Defaults()
	if t.Device == "" {
		t.Device = d.Device
	}
	if t.Rings.TileRadius <= 0 {
		t.Rings.TileRadius = d.Rings.TileRadius
	}
	if t.Rings.VertexSpacing <= 0 {
		t.Rings.VertexSpacing = d.Rings.VertexSpacing
	}
	if t.Fetch.RetryCap <= 0 {
		t.Fetch.RetryCap = d.Fetch.RetryCap
	}
	if t.Fetch.BatchItemCap <= 0 {
		t.Fetch.BatchItemCap = d.Fetch.BatchItemCap
	}
	if t.Fetch.BatchByteCap <= 0 {
		t.Fetch.BatchByteCap = d.Fetch.BatchByteCap
	}
	if t.Fetch.MaxInFlight <= 0 {
		t.Fetch.MaxInFlight = d.Fetch.MaxInFlight
	}
	if t.Rate.RequestsPerSec <= 0 {
		t.Rate = d.Rate
	}
	if t.Cache.Version <= 0 {
		t.Cache.Version = d.Cache.Version
	}
	return t
}

// SchedulerMinTickMs resolves the per-device scheduling interval.
func (t Tuning) SchedulerMinTickMs() int {
	if t.Device == DeviceConstrained {
		if t.Scheduler.MinTickMsConstrained > 0 {
			return t.Scheduler.MinTickMsConstrained
		}
		return 1000
	}
	if t.Scheduler.MinTickMsDesktop > 0 {
		return t.Scheduler.MinTickMsDesktop
	}
	return 500
}
