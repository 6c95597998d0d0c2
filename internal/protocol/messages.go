package protocol

// LatLng is one sample location in dataset coordinates.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// QueryMsg asks the elevation service for a batch of samples. Exactly one
// of Locations or Geohashes is set, per the query mode.
type QueryMsg struct {
	ID        string   `json:"id"`
	Type      string   `json:"type"` // elev.query
	Dataset   string   `json:"dataset"`
	Locations []LatLng `json:"locations,omitempty"`
	Geohashes []string `json:"geohashes,omitempty"`
	Precision int      `json:"precision,omitempty"`
}

// Result is one elevation sample in a response. Geohash is set when the
// query used geohash encoding, Location otherwise.
type Result struct {
	Location  *LatLng `json:"location,omitempty"`
	Geohash   string  `json:"geohash,omitempty"`
	Elevation float64 `json:"elevation"`
}

// ResponseMsg is the reply to a QueryMsg.
type ResponseMsg struct {
	ID         string   `json:"id"`
	Type       string   `json:"type"` // http.response
	Status     int      `json:"status"`
	Results    []Result `json:"results,omitempty"`
	Error      string   `json:"error,omitempty"`
	Code       string   `json:"code,omitempty"`
	DurationMs int64    `json:"duration_ms"`
}

// HealthMsg reports a client's measured frame rate.
type HealthMsg struct {
	ID   string  `json:"id"`
	Type string  `json:"type"` // health
	Rate float64 `json:"rate"`
}

// HealthRespMsg acknowledges a health report with the resulting grade.
type HealthRespMsg struct {
	ID     string `json:"id"`
	Type   string `json:"type"` // health.response
	Health string `json:"health"`
	Trend  string `json:"trend"`
}

// QueryMode selects how vertex positions are encoded on the wire.
type QueryMode string

const (
	QueryLatLng  QueryMode = "latlng"
	QueryGeohash QueryMode = "geohash"
)
