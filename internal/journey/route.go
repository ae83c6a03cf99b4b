package journey

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/twpayne/go-polyline"

	"github.com/MeKo-Tech/tilemap/internal/projection"
	"github.com/MeKo-Tech/tilemap/internal/types"
)

// Route is the decoded form of a route payload.
type Route struct {
	Polyline        string  `json:"polyline"`
	DistanceMeters  float64 `json:"distance_m,omitempty"`
	DurationSeconds float64 `json:"duration_s,omitempty"`
	Summary         string  `json:"summary,omitempty"`
}

// NewRoute builds a route from a path of coordinates.
func NewRoute(path []types.GeoCoordinate, distance, duration float64) Route {
	coords := make([][]float64, len(path))
	for i, c := range path {
		coords[i] = []float64{c.Lat, c.Lon}
	}
	return Route{
		Polyline:        string(polyline.EncodeCoords(coords)),
		DistanceMeters:  distance,
		DurationSeconds: duration,
	}
}

// DecodeRoute parses a route payload.
func DecodeRoute(payload []byte) (Route, error) {
	var r Route
	if err := json.Unmarshal(payload, &r); err != nil {
		return Route{}, fmt.Errorf("failed to decode route payload: %w", err)
	}
	if _, err := r.Path(); err != nil {
		return Route{}, err
	}
	return r, nil
}

// Encode serializes the route to a payload.
func (r Route) Encode() ([]byte, error) {
	return json.Marshal(r)
}

// Path decodes the polyline into coordinates.
func (r Route) Path() ([]types.GeoCoordinate, error) {
	coords, rest, err := polyline.DecodeCoords([]byte(r.Polyline))
	if err != nil {
		return nil, fmt.Errorf("failed to decode route polyline: %w", err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("failed to decode route polyline: %d trailing bytes", len(rest))
	}

	path := make([]types.GeoCoordinate, len(coords))
	for i, c := range coords {
		path[i] = types.GeoCoordinate{Lat: c[0], Lon: c[1]}
	}
	return path, nil
}

// Local converts the route into offsets around the projector's origin.
func (r Route) Local(p *projection.LocalProjector) ([]projection.LocalOffset, error) {
	path, err := r.Path()
	if err != nil {
		return nil, err
	}

	out := make([]projection.LocalOffset, len(path))
	for i, c := range path {
		out[i] = p.GeoToLocal(c.Lat, c.Lon)
	}
	return out, nil
}

// LineString returns the route geometry.
func (r Route) LineString() (orb.LineString, error) {
	path, err := r.Path()
	if err != nil {
		return nil, err
	}

	ls := make(orb.LineString, len(path))
	for i, c := range path {
		ls[i] = c.Point()
	}
	return ls, nil
}

// Bound returns the geographic bounding box of the route.
func (r Route) Bound() (types.BoundingBox, error) {
	ls, err := r.LineString()
	if err != nil {
		return types.BoundingBox{}, err
	}
	return types.FromBound(ls.Bound()), nil
}

// GeoJSON returns the route as a GeoJSON feature tagged with key.
func (r Route) GeoJSON(key Key) ([]byte, error) {
	ls, err := r.LineString()
	if err != nil {
		return nil, err
	}

	f := geojson.NewFeature(ls)
	f.Properties["destination_id"] = key.DestinationID
	f.Properties["travel_mode"] = string(key.Mode)
	if r.DistanceMeters > 0 {
		f.Properties["distance_m"] = r.DistanceMeters
	}
	if r.DurationSeconds > 0 {
		f.Properties["duration_s"] = r.DurationSeconds
	}
	if r.Summary != "" {
		f.Properties["summary"] = r.Summary
	}

	data, err := f.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal route feature: %w", err)
	}
	return data, nil
}
