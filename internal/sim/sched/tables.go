package sched

import "hexelev.dev/internal/sim/tuning"

// BatchSizes is the number of entries admitted per scheduling tick, per
// detail class.
type BatchSizes struct {
	Interactive int `json:"interactive"`
	Visual      int `json:"visual"`
	Farfield    int `json:"farfield"`
}

// batchTable is a pure function of (health, trend, device class):
// identical inputs always yield identical outputs.
func batchTable(h Health, trend Trend, device tuning.DeviceClass) BatchSizes {
	var s BatchSizes
	if device == tuning.DeviceConstrained {
		switch h {
		case HealthExcellent:
			s = BatchSizes{2, 1, 1}
		case HealthGood:
			s = BatchSizes{1, 1, 0}
		case HealthModerate:
			s = BatchSizes{1, 0, 0}
		case HealthPoor:
			s = BatchSizes{1, 0, 0}
		default: // critical, unknown
			s = BatchSizes{0, 0, 0}
		}
	} else {
		switch h {
		case HealthExcellent:
			s = BatchSizes{3, 2, 1}
		case HealthGood:
			s = BatchSizes{2, 1, 0}
		case HealthModerate:
			s = BatchSizes{1, 1, 0}
		case HealthPoor:
			s = BatchSizes{1, 0, 0}
		default:
			s = BatchSizes{0, 0, 0}
		}
	}
	if trend == TrendDegrading {
		// Back off, but never starve interactive entirely unless the table
		// already says zero.
		if s.Interactive > 1 {
			s.Interactive--
		}
		if s.Visual > 0 {
			s.Visual--
		}
		if s.Farfield > 0 {
			s.Farfield--
		}
	}
	return s
}
