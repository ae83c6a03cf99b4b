// Package tile identifies slippy map tiles and computes tile covers.
package tile

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"

	"github.com/MeKo-Tech/tilemap/internal/projection"
)

// MaxZoom is the deepest zoom level a tile id may carry.
const MaxZoom = projection.MaxZoom

// ErrInvalidZoom is returned for zoom levels outside [0, MaxZoom].
var ErrInvalidZoom = projection.ErrInvalidZoom

// ValidZoom reports whether z is inside [0, MaxZoom].
func ValidZoom(z int) bool { return projection.ValidZoom(z) }

// ID is an unwrapped tile coordinate (z/x/y). X may be negative or exceed
// 2^z when panning past the edges of the world.
type ID struct {
	Z int `json:"z"`
	X int `json:"x"`
	Y int `json:"y"`
}

// CanonicalID is a tile coordinate normalized into [0, 2^z) on both axes.
type CanonicalID struct {
	Z int `json:"z"`
	X int `json:"x"`
	Y int `json:"y"`
}

// New creates an unwrapped ID from zoom, x, y values.
func New(z, x, y int) ID {
	return ID{Z: z, X: x, Y: y}
}

// At returns the unwrapped tile containing (lat, lon) at zoom. Zooms outside
// [0, MaxZoom] return ErrInvalidZoom.
func At(lat, lon float64, zoom int) (ID, error) {
	x, y, err := projection.TileForCoordinate(lat, lon, zoom)
	if err != nil {
		return ID{}, err
	}
	return ID{Z: zoom, X: x, Y: y}, nil
}

// Canonical wraps x around the globe and clamps y into the valid row range.
// An id with a zoom outside [0, MaxZoom] is returned unchanged and is not
// Valid.
func (id ID) Canonical() CanonicalID {
	if !ValidZoom(id.Z) {
		return CanonicalID{Z: id.Z, X: id.X, Y: id.Y}
	}
	dim := 1 << id.Z

	y := id.Y
	if y < 0 {
		y = 0
	} else if y > dim-1 {
		y = dim - 1
	}

	return CanonicalID{Z: id.Z, X: id.X - id.Wrap()*dim, Y: y}
}

// Wrap returns how many times x wraps around the globe (0 for canonical x
// and for zooms outside [0, MaxZoom]).
func (id ID) Wrap() int {
	if !ValidZoom(id.Z) {
		return 0
	}
	dim := 1 << id.Z

	// integer division truncates toward zero, the adjustment makes it floor
	ax := id.X
	if ax < 0 {
		ax = ax - dim + 1
	}
	return ax / dim
}

// North returns the tile above. Neighbors never wrap.
func (id ID) North() ID { return ID{Z: id.Z, X: id.X, Y: id.Y - 1} }

// South returns the tile below.
func (id ID) South() ID { return ID{Z: id.Z, X: id.X, Y: id.Y + 1} }

// East returns the tile to the right.
func (id ID) East() ID { return ID{Z: id.Z, X: id.X + 1, Y: id.Y} }

// West returns the tile to the left.
func (id ID) West() ID { return ID{Z: id.Z, X: id.X - 1, Y: id.Y} }

// NorthEast returns the tile above and to the right.
func (id ID) NorthEast() ID { return ID{Z: id.Z, X: id.X + 1, Y: id.Y - 1} }

// NorthWest returns the tile above and to the left.
func (id ID) NorthWest() ID { return ID{Z: id.Z, X: id.X - 1, Y: id.Y - 1} }

// SouthEast returns the tile below and to the right.
func (id ID) SouthEast() ID { return ID{Z: id.Z, X: id.X + 1, Y: id.Y + 1} }

// SouthWest returns the tile below and to the left.
func (id ID) SouthWest() ID { return ID{Z: id.Z, X: id.X - 1, Y: id.Y + 1} }

// Neighbors returns the eight surrounding tiles clockwise from north.
func (id ID) Neighbors() [8]ID {
	return [8]ID{
		id.North(), id.NorthEast(), id.East(), id.SouthEast(),
		id.South(), id.SouthWest(), id.West(), id.NorthWest(),
	}
}

// Bounds returns the projected-meter rectangle of the tile. Unwrapped tiles
// lie outside the [-OriginShift, OriginShift] x range.
func (id ID) Bounds() projection.Bounds {
	return projection.TileBounds(id.Z, id.X, id.Y)
}

// String returns the tile coordinate as a string in format "z{zoom}_x{x}_y{y}"
func (id ID) String() string {
	return fmt.Sprintf("z%d_x%d_y%d", id.Z, id.X, id.Y)
}

// Canonical is the identity on canonical ids.
func (c CanonicalID) Canonical() CanonicalID { return c }

// Unwrapped returns the id as an ID with wrap 0.
func (c CanonicalID) Unwrapped() ID {
	return ID{Z: c.Z, X: c.X, Y: c.Y}
}

// String returns the tile coordinate as a string in format "z{zoom}_x{x}_y{y}"
func (c CanonicalID) String() string {
	return c.Unwrapped().String()
}

// Path returns the file name for this tile
func (c CanonicalID) Path(extension string) string {
	return fmt.Sprintf("%s.%s", c.String(), extension)
}

// Tile returns the maptile.Tile for this coordinate
func (c CanonicalID) Tile() maptile.Tile {
	return maptile.New(uint32(c.X), uint32(c.Y), maptile.Zoom(c.Z))
}

// Bounds returns the projected-meter rectangle of the tile.
func (c CanonicalID) Bounds() projection.Bounds {
	return projection.TileBounds(c.Z, c.X, c.Y)
}

// GeoBound returns the geographic bounding box of the tile in WGS84.
func (c CanonicalID) GeoBound() orb.Bound {
	return c.Tile().Bound()
}

// Center returns the center point of the tile in WGS84 (lon, lat)
func (c CanonicalID) Center() orb.Point {
	return c.GeoBound().Center()
}

// Valid reports whether the zoom is inside [0, MaxZoom] and x and y are
// inside its grid.
func (c CanonicalID) Valid() bool {
	if !ValidZoom(c.Z) {
		return false
	}
	dim := 1 << c.Z
	return c.X >= 0 && c.X < dim && c.Y >= 0 && c.Y < dim
}

// Parent returns the tile one zoom level up containing c. The root is its
// own parent.
func (c CanonicalID) Parent() CanonicalID {
	if c.Z == 0 {
		return c
	}
	return CanonicalID{Z: c.Z - 1, X: c.X >> 1, Y: c.Y >> 1}
}

// Children returns the four tiles one zoom level down that make up c,
// ordered top-left, top-right, bottom-left, bottom-right.
func (c CanonicalID) Children() [4]CanonicalID {
	z, x, y := c.Z+1, c.X<<1, c.Y<<1
	return [4]CanonicalID{
		{Z: z, X: x, Y: y},
		{Z: z, X: x + 1, Y: y},
		{Z: z, X: x, Y: y + 1},
		{Z: z, X: x + 1, Y: y + 1},
	}
}

// FromTile converts a maptile.Tile to a CanonicalID.
func FromTile(t maptile.Tile) CanonicalID {
	return CanonicalID{Z: int(t.Z), X: int(t.X), Y: int(t.Y)}
}

// ParseCoords parses a tile string like "z13_x4297_y2754" into a CanonicalID.
// A trailing extension is ignored.
func ParseCoords(s string) (CanonicalID, error) {
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}

	var c CanonicalID
	n, err := fmt.Sscanf(s, "z%d_x%d_y%d", &c.Z, &c.X, &c.Y)
	if err != nil || n != 3 {
		return c, fmt.Errorf("invalid tile coordinate format: %s", s)
	}
	if fmt.Sprintf("z%d_x%d_y%d", c.Z, c.X, c.Y) != s || !c.Valid() {
		return c, fmt.Errorf("invalid tile coordinate format: %s", s)
	}
	return c, nil
}
