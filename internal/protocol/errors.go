package protocol

const (
	// Wire/transport validation.
	ErrBadRequest = "E_BAD_REQUEST"

	// Upstream elevation service.
	ErrUpstream    = "E_UPSTREAM"
	ErrTimeout     = "E_TIMEOUT"
	ErrRateLimit   = "E_RATE_LIMIT"
	ErrPartial     = "E_PARTIAL_RESPONSE"
	ErrCacheStale  = "E_CACHE_STALE"
	ErrTileEvicted = "E_TILE_EVICTED"
	ErrInternal    = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrBadRequest:  {},
	ErrUpstream:    {},
	ErrTimeout:     {},
	ErrRateLimit:   {},
	ErrPartial:     {},
	ErrCacheStale:  {},
	ErrTileEvicted: {},
	ErrInternal:    {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
