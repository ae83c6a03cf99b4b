// Package mbtiles reads and writes MBTiles archives of cached map tiles.
package mbtiles

import (
	"errors"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/tilemap/internal/types"
)

// ErrTileNotFound is returned when an archive holds no tile at a coordinate.
var ErrTileNotFound = errors.New("tile not found")

// Metadata contains MBTiles metadata fields.
type Metadata struct {
	Name        string // Human-readable tileset identifier
	Format      string // Tile data type (png, jpg, webp)
	Attribution string
	Description string
	Type        string // "baselayer" or "overlay"
	Version     string
	Bounds      types.BoundingBox
	Center      [3]float64 // lon, lat, zoom
	MinZoom     int
	MaxZoom     int
}

// ToMap converts Metadata to the name/value rows of the metadata table.
// Zoom levels are always written, zero included.
func (m Metadata) ToMap() map[string]string {
	result := map[string]string{
		"minzoom": strconv.Itoa(m.MinZoom),
		"maxzoom": strconv.Itoa(m.MaxZoom),
	}

	set := func(key, value string) {
		if value != "" {
			result[key] = value
		}
	}
	set("name", m.Name)
	set("format", m.Format)
	set("attribution", m.Attribution)
	set("description", m.Description)
	set("type", m.Type)
	set("version", m.Version)

	if m.Bounds != (types.BoundingBox{}) {
		result["bounds"] = joinFloats(m.Bounds.Array()[:])
	}
	if m.Center != [3]float64{} {
		result["center"] = joinFloats(m.Center[:2]) + "," + strconv.Itoa(int(m.Center[2]))
	}
	return result
}

// FromMap parses metadata rows. Unparseable numeric fields are left zero.
func FromMap(rows map[string]string) Metadata {
	m := Metadata{
		Name:        rows["name"],
		Format:      rows["format"],
		Attribution: rows["attribution"],
		Description: rows["description"],
		Type:        rows["type"],
		Version:     rows["version"],
	}
	m.MinZoom, _ = strconv.Atoi(rows["minzoom"])
	m.MaxZoom, _ = strconv.Atoi(rows["maxzoom"])

	if b, ok := splitFloats(rows["bounds"], 4); ok {
		m.Bounds = types.NewBoundingBox([4]float64{b[0], b[1], b[2], b[3]})
	}
	if c, ok := splitFloats(rows["center"], 3); ok {
		m.Center = [3]float64{c[0], c[1], c[2]}
	}
	return m
}

func joinFloats(fs []float64) string {
	parts := make([]string, len(fs))
	for i, f := range fs {
		parts[i] = strconv.FormatFloat(f, 'f', 6, 64)
	}
	return strings.Join(parts, ",")
}

func splitFloats(s string, n int) ([]float64, bool) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, false
	}
	out := make([]float64, n)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, false
		}
		out[i] = f
	}
	return out, true
}
