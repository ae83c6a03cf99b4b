package rastercache

import (
	"errors"
	"fmt"
	"strings"
)

// MapType selects the imagery flavor a tile set is rendered from.
type MapType string

const (
	Roadmap   MapType = "roadmap"
	Satellite MapType = "satellite"
	Hybrid    MapType = "hybrid"
	Terrain   MapType = "terrain"
)

// MapTypes lists every known map type.
var MapTypes = []MapType{Roadmap, Satellite, Hybrid, Terrain}

// ErrUnknownMapType is returned when a map type name is not recognized.
var ErrUnknownMapType = errors.New("unknown map type")

// ParseMapType parses a map type name, case-insensitively.
func ParseMapType(s string) (MapType, error) {
	mt := MapType(strings.ToLower(strings.TrimSpace(s)))
	if !mt.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownMapType, s)
	}
	return mt, nil
}

// Valid reports whether mt is one of the known map types.
func (mt MapType) Valid() bool {
	switch mt {
	case Roadmap, Satellite, Hybrid, Terrain:
		return true
	}
	return false
}

func (mt MapType) String() string { return string(mt) }

// ResolveFolder returns the folder holding images of map type mt below root.
// It only concatenates strings and never touches the filesystem.
func ResolveFolder(root string, mt MapType) string {
	if root == "" {
		return string(mt)
	}
	return strings.TrimSuffix(root, "/") + "/" + string(mt)
}
