package protocol

import "math"

// metersPerDegree is the approximate length of one degree of latitude.
// Good enough here: pixel-perfect geodesy is out of scope.
const metersPerDegree = 111320.0

// Origin anchors the local world plane to dataset coordinates.
type Origin struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Key is the origin's identity in the tile cache, quantized so nearby
// restarts hit the same cached tiles.
func (o Origin) Key() string {
	return SampleKey(QueryLatLng, LatLng{Lat: round5(o.Lat), Lng: round5(o.Lng)}, 0)
}

func round5(v float64) float64 {
	return math.Round(v*1e5) / 1e5
}

// ToLatLng maps a local world offset in meters (x east, z north) to
// dataset coordinates.
func (o Origin) ToLatLng(x, z float64) LatLng {
	lat := o.Lat + z/metersPerDegree
	lng := o.Lng + x/(metersPerDegree*math.Cos(o.Lat*math.Pi/180))
	return LatLng{Lat: lat, Lng: lng}
}

// FromLatLng is the inverse of ToLatLng.
func (o Origin) FromLatLng(l LatLng) (x, z float64) {
	z = (l.Lat - o.Lat) * metersPerDegree
	x = (l.Lng - o.Lng) * metersPerDegree * math.Cos(o.Lat*math.Pi/180)
	return x, z
}
