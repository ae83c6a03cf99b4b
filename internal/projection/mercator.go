// Package projection converts between WGS84 coordinates, spherical Mercator
// meters, pixel pyramid coordinates and slippy tile indices.
package projection

import (
	"errors"
	"fmt"
	"math"

	"github.com/MeKo-Tech/tilemap/internal/types"
)

const (
	// EarthRadius is the spherical Mercator radius in meters.
	EarthRadius = 6378137.0
	// TileSize is the edge length of a tile in pixels.
	TileSize = 256
	// OriginShift is half the world circumference in meters.
	OriginShift = math.Pi * EarthRadius
	// MaxLatitude is the default Mercator latitude limit in degrees.
	MaxLatitude = 85.0511
	// MaxZoom is the deepest supported zoom level. Tile indices at this zoom
	// still fit in 32 bits.
	MaxZoom = 30
)

// initialResolution is the meters per pixel at zoom 0.
const initialResolution = 2 * OriginShift / TileSize

// ErrInvalidCoordinate is returned for latitudes the projection cannot represent.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// CoordinateError carries the rejected coordinate.
type CoordinateError struct {
	Lat, Lon float64
	Reason   string
}

func (e *CoordinateError) Error() string {
	return fmt.Sprintf("invalid coordinate (%v, %v): %s", e.Lat, e.Lon, e.Reason)
}

func (e *CoordinateError) Unwrap() error { return ErrInvalidCoordinate }

// ErrInvalidZoom is returned for zoom levels outside [0, MaxZoom].
var ErrInvalidZoom = errors.New("invalid zoom level")

// ValidZoom reports whether zoom is inside [0, MaxZoom].
func ValidZoom(zoom int) bool {
	return zoom >= 0 && zoom <= MaxZoom
}

// ProjectedPoint is a position in spherical Mercator meters (EPSG:3857).
type ProjectedPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// GeoToMeters projects a WGS84 coordinate to spherical Mercator meters.
// Only |lat| >= 90 and NaN input are rejected.
func GeoToMeters(lat, lon float64) (ProjectedPoint, error) {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return ProjectedPoint{}, &CoordinateError{Lat: lat, Lon: lon, Reason: "not a number"}
	}
	if math.Abs(lat) >= 90 {
		return ProjectedPoint{}, &CoordinateError{Lat: lat, Lon: lon, Reason: "latitude at or beyond the poles"}
	}

	x := lon * OriginShift / 180.0
	y := math.Log(math.Tan((90+lat)*math.Pi/360.0)) / (math.Pi / 180.0)
	y = y * OriginShift / 180.0

	return ProjectedPoint{X: x, Y: y}, nil
}

// MetersToGeo is the inverse of GeoToMeters.
func MetersToGeo(p ProjectedPoint) types.GeoCoordinate {
	lon := (p.X / OriginShift) * 180.0
	lat := (p.Y / OriginShift) * 180.0
	lat = 180 / math.Pi * (2*math.Atan(math.Exp(lat*math.Pi/180.0)) - math.Pi/2.0)

	return types.GeoCoordinate{Lat: lat, Lon: lon}
}

// Resolution returns meters per pixel at the given zoom.
func Resolution(zoom int) float64 {
	return initialResolution / math.Pow(2, float64(zoom))
}

// MetersToPixels converts projected meters to pyramid pixel coordinates
// (origin bottom-left) at the given zoom.
func MetersToPixels(p ProjectedPoint, zoom int) (px, py float64) {
	res := Resolution(zoom)
	return (p.X + OriginShift) / res, (p.Y + OriginShift) / res
}

// PixelsToMeters converts pyramid pixel coordinates back to projected meters.
func PixelsToMeters(px, py float64, zoom int) ProjectedPoint {
	res := Resolution(zoom)
	return ProjectedPoint{X: px*res - OriginShift, Y: py*res - OriginShift}
}

// PixelsToTile returns the TMS tile (origin bottom-left) containing a pixel.
func PixelsToTile(px, py float64) (tx, ty int) {
	tx = int(math.Ceil(px/float64(TileSize))) - 1
	ty = int(math.Ceil(py/float64(TileSize))) - 1
	return tx, ty
}

// TileForCoordinate returns the unwrapped slippy tile index (origin top-left)
// containing the coordinate. Latitudes beyond the Mercator limit and zooms
// outside [0, MaxZoom] are rejected.
func TileForCoordinate(lat, lon float64, zoom int) (x, y int, err error) {
	if !ValidZoom(zoom) {
		return 0, 0, fmt.Errorf("%w: %d", ErrInvalidZoom, zoom)
	}
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return 0, 0, &CoordinateError{Lat: lat, Lon: lon, Reason: "not a number"}
	}
	if math.Abs(lat) > MaxLatitude {
		return 0, 0, &CoordinateError{Lat: lat, Lon: lon, Reason: "outside the Mercator latitude limit"}
	}

	fx, fy := FractionalTile(lat, lon, zoom)
	return int(math.Floor(fx)), int(math.Floor(fy)), nil
}

// FractionalTile returns the continuous tile position of a coordinate. The
// integer part is the tile index, the fraction the position inside the tile.
func FractionalTile(lat, lon float64, zoom int) (x, y float64) {
	n := math.Exp2(float64(zoom))
	latRad := lat * math.Pi / 180.0

	x = (lon + 180.0) / 360.0 * n
	y = (1.0 - math.Log(math.Tan(latRad)+1.0/math.Cos(latRad))/math.Pi) / 2.0 * n
	return x, y
}

// TileBounds returns the projected-meter rectangle of the slippy tile (z, x, y).
// A zoom outside [0, MaxZoom] yields empty bounds.
func TileBounds(zoom, x, y int) Bounds {
	if !ValidZoom(zoom) {
		return Bounds{}
	}
	// slippy rows count from the top, the pixel pyramid from the bottom
	ty := (1 << zoom) - 1 - y

	minPt := PixelsToMeters(float64(x*TileSize), float64(ty*TileSize), zoom)
	maxPt := PixelsToMeters(float64((x+1)*TileSize), float64((ty+1)*TileSize), zoom)

	return Bounds{Min: minPt, Max: maxPt}
}
