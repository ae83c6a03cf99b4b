package tile

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/maptile/tilecover"

	"github.com/MeKo-Tech/tilemap/internal/projection"
	"github.com/MeKo-Tech/tilemap/internal/types"
)

// Set is a set of canonical tiles compared by value.
type Set map[CanonicalID]struct{}

// NewSet creates a set holding ids.
func NewSet(ids ...CanonicalID) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add inserts id.
func (s Set) Add(id CanonicalID) { s[id] = struct{}{} }

// Has reports whether id is in the set.
func (s Set) Has(id CanonicalID) bool {
	_, ok := s[id]
	return ok
}

// Len returns the number of tiles.
func (s Set) Len() int { return len(s) }

// Slice returns the tiles ordered by zoom, then x, then y.
func (s Set) Slice() []CanonicalID {
	out := make([]CanonicalID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	slices.SortFunc(out, func(a, b CanonicalID) int {
		if c := cmp.Compare(a.Z, b.Z); c != 0 {
			return c
		}
		if c := cmp.Compare(a.X, b.X); c != 0 {
			return c
		}
		return cmp.Compare(a.Y, b.Y)
	})
	return out
}

// Cover returns the canonical tiles covering bbox at zoom. Latitudes are
// clamped to ±limit first; boxes that are empty or lie entirely beyond the
// limit yield an empty set. A limit outside (0, MaxLatitude] falls back to
// projection.MaxLatitude.
//
// Boxes crossing the anti-meridian (MinLon > MaxLon) are not unwrapped and
// produce an empty x range. A zoom outside [0, MaxZoom] yields an empty set.
func Cover(bbox types.BoundingBox, zoom int, limit float64) Set {
	result := make(Set)

	xMin, xMax, yMin, yMax, ok := coverRect(bbox, zoom, limit)
	if !ok {
		return result
	}

	for x := xMin; x <= xMax; x++ {
		for y := yMin; y <= yMax; y++ {
			result.Add(ID{Z: zoom, X: x, Y: y}.Canonical())
		}
	}
	return result
}

// coverRect returns the unwrapped tile rectangle spanned by the south-west
// and north-east corners of bbox.
func coverRect(bbox types.BoundingBox, zoom int, limit float64) (xMin, xMax, yMin, yMax int, ok bool) {
	if !ValidZoom(zoom) {
		return 0, 0, 0, 0, false
	}
	if limit <= 0 || limit > projection.MaxLatitude {
		limit = projection.MaxLatitude
	}
	if bbox.IsEmpty() || bbox.MinLat > limit || bbox.MaxLat < -limit {
		return 0, 0, 0, 0, false
	}

	clamped := bbox.ClampLatitude(limit)
	if clamped.IsEmpty() {
		return 0, 0, 0, 0, false
	}

	sw := cornerTile(clamped.MinLat, clamped.MinLon, zoom)
	ne := cornerTile(clamped.MaxLat, clamped.MaxLon, zoom)

	// y grows southward
	return sw.X, ne.X, ne.Y, sw.Y, true
}

func cornerTile(lat, lon float64, zoom int) ID {
	fx, fy := projection.FractionalTile(lat, lon, zoom)
	return ID{Z: zoom, X: int(math.Floor(fx)), Y: int(math.Floor(fy))}
}

// CoverRange returns the tiles covering bbox for every zoom in
// [zoomMin, zoomMax], ordered by zoom. Zooms outside [0, MaxZoom] contribute
// nothing.
func CoverRange(bbox types.BoundingBox, zoomMin, zoomMax int, limit float64) []CanonicalID {
	zoomMin, zoomMax = clampZoomRange(zoomMin, zoomMax)
	tiles := make([]CanonicalID, 0, Count(bbox, zoomMin, zoomMax, limit))
	for z := zoomMin; z <= zoomMax; z++ {
		tiles = append(tiles, Cover(bbox, z, limit).Slice()...)
	}
	return tiles
}

// Count returns the number of tiles CoverRange would produce without
// allocating them.
func Count(bbox types.BoundingBox, zoomMin, zoomMax int, limit float64) int {
	zoomMin, zoomMax = clampZoomRange(zoomMin, zoomMax)
	count := 0
	for z := zoomMin; z <= zoomMax; z++ {
		xMin, xMax, yMin, yMax, ok := coverRect(bbox, z, limit)
		if !ok || xMax < xMin {
			continue
		}
		// wrapped columns collapse onto at most 2^z distinct ones
		cols := min(xMax-xMin+1, 1<<z)
		count += cols * (yMax - yMin + 1)
	}
	return count
}

func clampZoomRange(zoomMin, zoomMax int) (int, int) {
	return max(zoomMin, 0), min(zoomMax, MaxZoom)
}

// ValidateZoomRange checks that [zoomMin, zoomMax] is a non-empty range
// inside [0, MaxZoom].
func ValidateZoomRange(zoomMin, zoomMax int) error {
	if !ValidZoom(zoomMin) || !ValidZoom(zoomMax) {
		return fmt.Errorf("%w: range %d..%d must lie within 0..%d", ErrInvalidZoom, zoomMin, zoomMax, MaxZoom)
	}
	if zoomMin > zoomMax {
		return fmt.Errorf("zoom-min (%d) must be <= zoom-max (%d)", zoomMin, zoomMax)
	}
	return nil
}

// CoverGeometry returns the canonical tiles touched by a geometry (polygon,
// line, point or collection) at zoom.
func CoverGeometry(geom orb.Geometry, zoom int) (Set, error) {
	if !ValidZoom(zoom) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidZoom, zoom)
	}
	tiles, err := tilecover.Geometry(geom, maptile.Zoom(zoom))
	if err != nil {
		return nil, fmt.Errorf("failed to cover geometry: %w", err)
	}

	result := make(Set, len(tiles))
	for t := range tiles {
		result.Add(FromTile(t))
	}
	return result, nil
}
