package stream

// Metrics counts pipeline and lifecycle activity. All updates happen on
// the tick goroutine; Snapshot copies are safe to hand out.
type Metrics struct {
	Requests       uint64 `json:"requests"`
	Responses      uint64 `json:"responses"`
	Failures       uint64 `json:"failures"`
	Timeouts       uint64 `json:"timeouts"`
	Retries        uint64 `json:"retries"`
	Abandoned      uint64 `json:"abandoned"`
	Fallbacks      uint64 `json:"fallbacks"`
	SamplesFetched uint64 `json:"samples_fetched"`
	SamplesMissing uint64 `json:"samples_missing"`
	BytesSent      uint64 `json:"bytes_sent"`
	Coalesced      uint64 `json:"coalesced"`

	CacheHits   uint64 `json:"cache_hits"`
	CacheMisses uint64 `json:"cache_misses"`

	TilesCreated uint64 `json:"tiles_created"`
	TilesEvicted uint64 `json:"tiles_evicted"`
	Promotions   uint64 `json:"promotions"`
	Demotions    uint64 `json:"demotions"`

	GovernorDenied uint64 `json:"governor_denied"`
	MaxInFlight    uint64 `json:"max_in_flight"`
}
