package projection

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MeKo-Tech/tilemap/internal/types"
)

var london = types.GeoCoordinate{Lat: 51.5074, Lon: -0.1278}

func TestMetersPerDegree(t *testing.T) {
	tests := []struct {
		name     string
		lat      float64
		latM     float64
		lonM     float64
	}{
		{"equator", 0, 110574.272700, 111319.458000},
		{"london", 51.5074, 111257.935730, 69429.243575},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			latM, lonM := MetersPerDegree(tt.lat)
			assert.InDelta(t, tt.latM, latM, 1e-5)
			assert.InDelta(t, tt.lonM, lonM, 1e-5)
		})
	}
}

func TestGeoToLocalAtOrigin(t *testing.T) {
	off := GeoToLocal(london, london.Lat, london.Lon)
	if off != (LocalOffset{}) {
		t.Errorf("GeoToLocal(origin) = %+v, want zero offset", off)
	}
	if off.Vector() != [3]float64{0, 0, 0} {
		t.Errorf("Vector() = %v, want (0,0,0)", off.Vector())
	}
}

func TestGeoToLocalUsesOriginLatitude(t *testing.T) {
	// Paris relative to London
	off := GeoToLocal(london, 48.8566, 2.3522)
	assert.InDelta(t, 172184.524066, off.X, 1e-4)
	assert.InDelta(t, -294922.536032, off.Z, 1e-4)
}

func TestLocalRoundTrip(t *testing.T) {
	p := NewLocalProjector(london)
	for _, c := range []types.GeoCoordinate{
		{Lat: 51.6, Lon: -0.2},
		{Lat: 48.8566, Lon: 2.3522},
		{Lat: 40.7128, Lon: -74.0060},
	} {
		got := p.LocalToGeo(p.GeoToLocal(c.Lat, c.Lon))
		if math.Abs(got.Lat-c.Lat) > 1e-9 || math.Abs(got.Lon-c.Lon) > 1e-9 {
			t.Errorf("round trip %v -> %v", c, got)
		}
	}

	back := LocalToGeo(london, LocalOffset{X: 1000, Z: -500})
	off := GeoToLocal(london, back.Lat, back.Lon)
	assert.InDelta(t, 1000, off.X, 1e-6)
	assert.InDelta(t, -500, off.Z, 1e-6)
}

func TestSetOriginRederivesScale(t *testing.T) {
	p := NewLocalProjector(types.GeoCoordinate{})
	latM, lonM := p.Scale()
	assert.InDelta(t, 110574.272700, latM, 1e-5)
	assert.InDelta(t, 111319.458000, lonM, 1e-5)

	p.SetOrigin(london)
	latM, lonM = p.Scale()
	assert.InDelta(t, 111257.935730, latM, 1e-5)
	assert.InDelta(t, 69429.243575, lonM, 1e-5)

	// longitude-only move keeps the scale
	p.SetOrigin(types.GeoCoordinate{Lat: london.Lat, Lon: 10})
	latM2, lonM2 := p.Scale()
	assert.Equal(t, latM, latM2)
	assert.Equal(t, lonM, lonM2)
	assert.Equal(t, LocalOffset{}, p.GeoToLocal(london.Lat, 10))
}

func TestZeroValueProjector(t *testing.T) {
	var p LocalProjector
	off := p.GeoToLocal(1, 1)
	assert.InDelta(t, 111319.458000, off.X, 1)
	assert.InDelta(t, 110574.272700, off.Z, 1)
}
