package projection

import (
	"github.com/paulmach/orb"

	"github.com/MeKo-Tech/tilemap/internal/types"
)

// Bounds is an axis-aligned rectangle in projected meters.
type Bounds struct {
	Min ProjectedPoint `json:"min"`
	Max ProjectedPoint `json:"max"`
}

// Width returns the east-west extent in meters.
func (b Bounds) Width() float64 { return b.Max.X - b.Min.X }

// Height returns the north-south extent in meters.
func (b Bounds) Height() float64 { return b.Max.Y - b.Min.Y }

// Center returns the midpoint of the rectangle.
func (b Bounds) Center() ProjectedPoint {
	return ProjectedPoint{X: (b.Min.X + b.Max.X) / 2, Y: (b.Min.Y + b.Max.Y) / 2}
}

// Contains reports whether p lies inside or on the edge of b.
func (b Bounds) Contains(p ProjectedPoint) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X && p.Y >= b.Min.Y && p.Y <= b.Max.Y
}

// ContainsBounds reports whether o lies completely inside b.
func (b Bounds) ContainsBounds(o Bounds) bool {
	return b.Contains(o.Min) && b.Contains(o.Max)
}

// Intersects reports whether the two rectangles overlap. Touching edges count.
func (b Bounds) Intersects(o Bounds) bool {
	return b.Min.X <= o.Max.X && o.Min.X <= b.Max.X &&
		b.Min.Y <= o.Max.Y && o.Min.Y <= b.Max.Y
}

// Extend returns the smallest rectangle containing both b and o.
func (b Bounds) Extend(o Bounds) Bounds {
	return Bounds{
		Min: ProjectedPoint{X: min(b.Min.X, o.Min.X), Y: min(b.Min.Y, o.Min.Y)},
		Max: ProjectedPoint{X: max(b.Max.X, o.Max.X), Y: max(b.Max.Y, o.Max.Y)},
	}
}

// Geo returns the rectangle as a WGS84 orb.Bound.
func (b Bounds) Geo() orb.Bound {
	sw := MetersToGeo(b.Min)
	ne := MetersToGeo(b.Max)
	return orb.Bound{Min: orb.Point{sw.Lon, sw.Lat}, Max: orb.Point{ne.Lon, ne.Lat}}
}

// BoundsFromGeo projects a geographic bounding box. The box must already lie
// inside the Mercator latitude limit.
func BoundsFromGeo(bbox types.BoundingBox) (Bounds, error) {
	minPt, err := GeoToMeters(bbox.MinLat, bbox.MinLon)
	if err != nil {
		return Bounds{}, err
	}
	maxPt, err := GeoToMeters(bbox.MaxLat, bbox.MaxLon)
	if err != nil {
		return Bounds{}, err
	}
	return Bounds{Min: minPt, Max: maxPt}, nil
}
