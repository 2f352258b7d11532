package tiles

import (
	"math"
)

const (
	// MaxLevel is the deepest zoom level the imagery provider serves.
	MaxLevel = 23
	// Web Mercator constants
	Equator    = 40075016.685578 // Earth's equator in meters
	EpsgNumber = 3857
)

// Coordinate identifies a tile in the standard slippy-map scheme (EPSG:3857).
type Coordinate struct {
	X int `json:"x"` // column, from the antimeridian eastward
	Y int `json:"y"` // row, from the north
	Z int `json:"z"` // zoom level
}

// Resolve converts a WGS84 point and zoom level to the tile containing it.
// No clamping is performed: callers at the poles or with extreme zoom levels
// get the raw projected indices back.
func Resolve(lat, lng float64, zoom int) Coordinate {
	n := math.Exp2(float64(zoom))
	latRad := lat * math.Pi / 180.0

	x := int(math.Floor(n * (lng + 180.0) / 360.0))
	y := int(math.Floor(n * (1.0 - math.Asinh(math.Tan(latRad))/math.Pi) / 2.0))

	return Coordinate{X: x, Y: y, Z: zoom}
}

// WebMercator represents coordinates in Web Mercator projection
type WebMercator struct {
	X float64 // meters east
	Y float64 // meters north
}

// Center returns the tile center in Web Mercator, used for metadata point
// queries against the provider.
func (c Coordinate) Center() WebMercator {
	n := float64(int(1) << c.Z)
	x := ((float64(c.X)+0.5)/n - 0.5) * Equator
	y := (0.5 - (float64(c.Y)+0.5)/n) * Equator
	return WebMercator{X: x, Y: y}
}
