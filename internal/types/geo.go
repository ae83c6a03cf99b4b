package types

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// GeoCoordinate is a WGS84 position in degrees.
type GeoCoordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// NewGeoCoordinate creates a GeoCoordinate from latitude and longitude.
func NewGeoCoordinate(lat, lon float64) GeoCoordinate {
	return GeoCoordinate{Lat: lat, Lon: lon}
}

// Point returns the coordinate as an orb.Point (lon, lat order).
func (c GeoCoordinate) Point() orb.Point {
	return orb.Point{c.Lon, c.Lat}
}

// FromPoint converts an orb.Point (lon, lat) to a GeoCoordinate.
func FromPoint(p orb.Point) GeoCoordinate {
	return GeoCoordinate{Lat: p.Lat(), Lon: p.Lon()}
}

// IsValid reports whether the coordinate lies within [-90,90] x [-180,180].
func (c GeoCoordinate) IsValid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// String returns a human-readable representation of the coordinate
func (c GeoCoordinate) String() string {
	return fmt.Sprintf("(%.6f,%.6f)", c.Lat, c.Lon)
}

// BoundingBox represents a geographic bounding box in WGS84 (EPSG:4326)
type BoundingBox struct {
	MinLon float64 `json:"min_lon"` // Western edge (degrees)
	MinLat float64 `json:"min_lat"` // Southern edge (degrees)
	MaxLon float64 `json:"max_lon"` // Eastern edge (degrees)
	MaxLat float64 `json:"max_lat"` // Northern edge (degrees)
}

// WorldBounds covers the whole globe.
var WorldBounds = BoundingBox{MinLon: -180, MinLat: -90, MaxLon: 180, MaxLat: 90}

// NewBoundingBox builds a box from [minLon, minLat, maxLon, maxLat].
func NewBoundingBox(b [4]float64) BoundingBox {
	return BoundingBox{MinLon: b[0], MinLat: b[1], MaxLon: b[2], MaxLat: b[3]}
}

// FromBound converts an orb.Bound to a BoundingBox.
func FromBound(b orb.Bound) BoundingBox {
	return BoundingBox{MinLon: b.Min.Lon(), MinLat: b.Min.Lat(), MaxLon: b.Max.Lon(), MaxLat: b.Max.Lat()}
}

// Bound returns the box as an orb.Bound.
func (b BoundingBox) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{b.MinLon, b.MinLat}, Max: orb.Point{b.MaxLon, b.MaxLat}}
}

// Array returns [minLon, minLat, maxLon, maxLat].
func (b BoundingBox) Array() [4]float64 {
	return [4]float64{b.MinLon, b.MinLat, b.MaxLon, b.MaxLat}
}

// SouthWest returns the south-west corner.
func (b BoundingBox) SouthWest() GeoCoordinate {
	return GeoCoordinate{Lat: b.MinLat, Lon: b.MinLon}
}

// NorthEast returns the north-east corner.
func (b BoundingBox) NorthEast() GeoCoordinate {
	return GeoCoordinate{Lat: b.MaxLat, Lon: b.MaxLon}
}

// IsEmpty reports whether the box has no area in latitude (south above north).
func (b BoundingBox) IsEmpty() bool {
	return b.MinLat > b.MaxLat
}

// ClampLatitude clamps the southern and northern edges to [-limit, limit].
func (b BoundingBox) ClampLatitude(limit float64) BoundingBox {
	b.MinLat = math.Max(-limit, math.Min(limit, b.MinLat))
	b.MaxLat = math.Max(-limit, math.Min(limit, b.MaxLat))
	return b
}

// ExpandByFraction grows the box on each side by fraction of its width and height.
func (b BoundingBox) ExpandByFraction(fraction float64) BoundingBox {
	if fraction <= 0 {
		return b
	}
	dLon := b.Width() * fraction
	dLat := b.Height() * fraction
	return BoundingBox{
		MinLon: b.MinLon - dLon,
		MinLat: b.MinLat - dLat,
		MaxLon: b.MaxLon + dLon,
		MaxLat: b.MaxLat + dLat,
	}
}

// String returns a human-readable representation of the bounding box
func (b BoundingBox) String() string {
	return fmt.Sprintf("bbox(%.6f,%.6f,%.6f,%.6f)", b.MinLat, b.MinLon, b.MaxLat, b.MaxLon)
}

// Center returns the center point of the bounding box
func (b BoundingBox) Center() (lat, lon float64) {
	return (b.MinLat + b.MaxLat) / 2, (b.MinLon + b.MaxLon) / 2
}

// Width returns the width of the bounding box in degrees
func (b BoundingBox) Width() float64 {
	return b.MaxLon - b.MinLon
}

// Height returns the height of the bounding box in degrees
func (b BoundingBox) Height() float64 {
	return b.MaxLat - b.MinLat
}
