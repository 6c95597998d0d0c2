// Package sched admits population work in batches sized by live render
// performance: three class queues, a batch-size table keyed by health and
// device class, and a pause valve for critical frame rates.
package sched

// Health buckets the observed frame rate.
type Health uint8

const (
	HealthUnknown Health = iota
	HealthExcellent
	HealthGood
	HealthModerate
	HealthPoor
	HealthCritical
)

func (h Health) String() string {
	switch h {
	case HealthExcellent:
		return "excellent"
	case HealthGood:
		return "good"
	case HealthModerate:
		return "moderate"
	case HealthPoor:
		return "poor"
	case HealthCritical:
		return "critical"
	}
	return "unknown"
}

// Trend is the direction the frame rate is moving.
type Trend uint8

const (
	TrendStable Trend = iota
	TrendImproving
	TrendDegrading
)

func (t Trend) String() string {
	switch t {
	case TrendImproving:
		return "improving"
	case TrendDegrading:
		return "degrading"
	}
	return "stable"
}

// HealthFromRate buckets a frames-per-second reading.
func HealthFromRate(fps float64) Health {
	switch {
	case fps <= 0:
		return HealthUnknown
	case fps >= 55:
		return HealthExcellent
	case fps >= 45:
		return HealthGood
	case fps >= 30:
		return HealthModerate
	case fps >= 20:
		return HealthPoor
	default:
		return HealthCritical
	}
}

// Monitor smooths raw frame-rate samples into (Health, Trend).
type Monitor struct {
	window []float64
	cap    int
}

func NewMonitor() *Monitor {
	return &Monitor{cap: 8}
}

// Observe records one fps sample and returns the derived signal.
func (m *Monitor) Observe(fps float64) (Health, float64, Trend) {
	m.window = append(m.window, fps)
	if len(m.window) > m.cap {
		m.window = m.window[1:]
	}
	avg := 0.0
	for _, v := range m.window {
		avg += v
	}
	avg /= float64(len(m.window))

	trend := TrendStable
	if n := len(m.window); n >= 4 {
		half := n / 2
		older, newer := 0.0, 0.0
		for _, v := range m.window[:half] {
			older += v
		}
		for _, v := range m.window[half:] {
			newer += v
		}
		older /= float64(half)
		newer /= float64(n - half)
		switch {
		case newer < older*0.9:
			trend = TrendDegrading
		case newer > older*1.1:
			trend = TrendImproving
		}
	}
	return HealthFromRate(avg), avg, trend
}
