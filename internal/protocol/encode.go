package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// EncodeLocations renders samples in the upstream query form:
// "lat,lng|lat,lng|...".
func EncodeLocations(locs []LatLng) string {
	var b strings.Builder
	for i, l := range locs {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(strconv.FormatFloat(l.Lat, 'f', 6, 64))
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(l.Lng, 'f', 6, 64))
	}
	return b.String()
}

// ParseLocations is the inverse of EncodeLocations.
func ParseLocations(s string) ([]LatLng, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, "|")
	out := make([]LatLng, 0, len(parts))
	for _, p := range parts {
		lat, lng, ok := strings.Cut(p, ",")
		if !ok {
			return nil, fmt.Errorf("bad location %q", p)
		}
		la, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
		if err != nil {
			return nil, err
		}
		ln, err := strconv.ParseFloat(strings.TrimSpace(lng), 64)
		if err != nil {
			return nil, err
		}
		out = append(out, LatLng{Lat: la, Lng: ln})
	}
	return out, nil
}

// SampleKey is the canonical match/dedupe key for one sample. In geohash
// mode the hash itself is the key, so siblings sharing a precision dedupe
// naturally.
func SampleKey(mode QueryMode, l LatLng, precision int) string {
	if mode == QueryGeohash {
		return EncodeGeohash(l.Lat, l.Lng, precision)
	}
	return strconv.FormatFloat(l.Lat, 'f', 6, 64) + "," + strconv.FormatFloat(l.Lng, 'f', 6, 64)
}

const geohashBase32 = "0123456789bcdefghjkmnpqrstuvwxyz"

// EncodeGeohash produces a standard base32 geohash of the given length.
func EncodeGeohash(lat, lng float64, precision int) string {
	if precision <= 0 {
		precision = 9
	}
	latMin, latMax := -90.0, 90.0
	lngMin, lngMax := -180.0, 180.0
	var b strings.Builder
	bit := 0
	ch := 0
	even := true
	for b.Len() < precision {
		if even {
			mid := (lngMin + lngMax) / 2
			if lng >= mid {
				ch = ch<<1 | 1
				lngMin = mid
			} else {
				ch <<= 1
				lngMax = mid
			}
		} else {
			mid := (latMin + latMax) / 2
			if lat >= mid {
				ch = ch<<1 | 1
				latMin = mid
			} else {
				ch <<= 1
				latMax = mid
			}
		}
		even = !even
		bit++
		if bit == 5 {
			b.WriteByte(geohashBase32[ch])
			bit = 0
			ch = 0
		}
	}
	return b.String()
}

// DecodeGeohash returns the cell-center latitude/longitude.
func DecodeGeohash(h string) (lat, lng float64, err error) {
	latMin, latMax := -90.0, 90.0
	lngMin, lngMax := -180.0, 180.0
	even := true
	for _, c := range h {
		idx := strings.IndexRune(geohashBase32, c)
		if idx < 0 {
			return 0, 0, fmt.Errorf("bad geohash rune %q", c)
		}
		for mask := 16; mask > 0; mask >>= 1 {
			if even {
				mid := (lngMin + lngMax) / 2
				if idx&mask != 0 {
					lngMin = mid
				} else {
					lngMax = mid
				}
			} else {
				mid := (latMin + latMax) / 2
				if idx&mask != 0 {
					latMin = mid
				} else {
					latMax = mid
				}
			}
			even = !even
		}
	}
	return (latMin + latMax) / 2, (lngMin + lngMax) / 2, nil
}

// GeohashPrecision derives the hash length from vertex spacing in meters:
// coarser tiles get shorter hashes, which is what lets farfield siblings
// share sample keys.
func GeohashPrecision(spacingMeters float64) int {
	switch {
	case spacingMeters >= 2500:
		return 5
	case spacingMeters >= 600:
		return 6
	case spacingMeters >= 80:
		return 7
	case spacingMeters >= 20:
		return 8
	default:
		return 9
	}
}
