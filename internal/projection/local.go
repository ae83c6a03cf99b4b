package projection

import (
	"math"

	"github.com/MeKo-Tech/tilemap/internal/types"
)

// LocalOffset is a planar offset in meters from a local origin.
// X grows east, Z grows north.
type LocalOffset struct {
	X float64 `json:"x"`
	Z float64 `json:"z"`
}

// Vector returns the offset as an (x, y, z) triple with y = 0.
func (o LocalOffset) Vector() [3]float64 {
	return [3]float64{o.X, 0, o.Z}
}

// MetersPerDegree returns meters per degree of latitude and longitude at
// the given latitude.
func MetersPerDegree(lat float64) (latMeters, lonMeters float64) {
	phi := lat * math.Pi / 180.0

	latMeters = 111132.92 -
		559.82*math.Cos(2*phi) +
		1.175*math.Cos(4*phi) -
		0.0023*math.Cos(6*phi)
	lonMeters = 111412.84*math.Cos(phi) -
		93.5*math.Cos(3*phi) +
		0.118*math.Cos(5*phi)

	return latMeters, lonMeters
}

// LocalProjector maps coordinates around an origin onto a flat plane.
// The zero value is anchored at (0, 0).
type LocalProjector struct {
	origin    types.GeoCoordinate
	latMeters float64
	lonMeters float64
	derived   bool
}

// NewLocalProjector returns a projector anchored at origin.
func NewLocalProjector(origin types.GeoCoordinate) *LocalProjector {
	p := &LocalProjector{}
	p.SetOrigin(origin)
	return p
}

// Origin returns the current origin.
func (p *LocalProjector) Origin() types.GeoCoordinate {
	return p.origin
}

// SetOrigin moves the origin. Meters per degree are re-derived whenever the
// origin latitude changes.
func (p *LocalProjector) SetOrigin(origin types.GeoCoordinate) {
	if !p.derived || origin.Lat != p.origin.Lat {
		p.latMeters, p.lonMeters = MetersPerDegree(origin.Lat)
		p.derived = true
	}
	p.origin = origin
}

// Scale returns the meters per degree currently in use.
func (p *LocalProjector) Scale() (latMeters, lonMeters float64) {
	p.ensure()
	return p.latMeters, p.lonMeters
}

func (p *LocalProjector) ensure() {
	if !p.derived {
		p.SetOrigin(p.origin)
	}
}

// GeoToLocal returns the offset of (lat, lon) from the origin.
func (p *LocalProjector) GeoToLocal(lat, lon float64) LocalOffset {
	p.ensure()
	return LocalOffset{
		X: (lon - p.origin.Lon) * p.lonMeters,
		Z: (lat - p.origin.Lat) * p.latMeters,
	}
}

// LocalToGeo is the inverse of GeoToLocal.
func (p *LocalProjector) LocalToGeo(off LocalOffset) types.GeoCoordinate {
	p.ensure()
	return types.GeoCoordinate{
		Lat: p.origin.Lat + off.Z/p.latMeters,
		Lon: p.origin.Lon + off.X/p.lonMeters,
	}
}

// GeoToLocal converts (lat, lon) to an offset from origin.
func GeoToLocal(origin types.GeoCoordinate, lat, lon float64) LocalOffset {
	return NewLocalProjector(origin).GeoToLocal(lat, lon)
}

// LocalToGeo converts an offset from origin back to a coordinate.
func LocalToGeo(origin types.GeoCoordinate, off LocalOffset) types.GeoCoordinate {
	return NewLocalProjector(origin).LocalToGeo(off)
}
