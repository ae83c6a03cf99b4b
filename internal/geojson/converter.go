package geojson

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb/geojson"

	"github.com/MeKo-Tech/tilemap/internal/tile"
)

// FromTiles converts tile ids to a FeatureCollection with one polygon per tile.
// Each feature carries its z/x/y, name and TMS row as properties.
func FromTiles(ids []tile.CanonicalID) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for _, id := range ids {
		if !id.Valid() {
			continue
		}

		f := geojson.NewFeature(id.GeoBound().ToPolygon())
		f.ID = id.String()
		f.Properties["z"] = id.Z
		f.Properties["x"] = id.X
		f.Properties["y"] = id.Y
		f.Properties["tms_y"] = (1 << id.Z) - 1 - id.Y
		f.Properties["name"] = id.String()

		fc.Append(f)
	}

	return fc
}

// Bytes renders the tile ids as indented GeoJSON.
func Bytes(ids []tile.CanonicalID) ([]byte, error) {
	data, err := json.MarshalIndent(FromTiles(ids), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GeoJSON: %w", err)
	}
	return data, nil
}
