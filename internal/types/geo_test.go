package types

import (
	"testing"

	"github.com/paulmach/orb"
)

func TestBoundingBoxExpandByFraction(t *testing.T) {
	b := BoundingBox{MinLon: 10, MinLat: 20, MaxLon: 30, MaxLat: 40}

	expanded := b.ExpandByFraction(0.1)
	// width=20, height=20 => delta=2 on each side
	if expanded.MinLon != 8 || expanded.MaxLon != 32 || expanded.MinLat != 18 || expanded.MaxLat != 42 {
		t.Fatalf("unexpected expanded bbox: %+v", expanded)
	}

	unchanged := b.ExpandByFraction(0)
	if unchanged != b {
		t.Fatalf("expected unchanged bbox, got %+v", unchanged)
	}
}

func TestBoundingBoxClampLatitude(t *testing.T) {
	clamped := WorldBounds.ClampLatitude(85.0511)
	if clamped.MinLat != -85.0511 || clamped.MaxLat != 85.0511 {
		t.Fatalf("unexpected clamped bbox: %+v", clamped)
	}
	if clamped.MinLon != -180 || clamped.MaxLon != 180 {
		t.Fatalf("longitude must not be clamped: %+v", clamped)
	}
}

func TestBoundingBoxIsEmpty(t *testing.T) {
	tests := []struct {
		name string
		box  BoundingBox
		want bool
	}{
		{"normal", BoundingBox{MinLon: 0, MinLat: 10, MaxLon: 1, MaxLat: 11}, false},
		{"degenerate line", BoundingBox{MinLon: 0, MinLat: 10, MaxLon: 1, MaxLat: 10}, false},
		{"south above north", BoundingBox{MinLon: 0, MinLat: 12, MaxLon: 1, MaxLat: 11}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.box.IsEmpty(); got != tt.want {
				t.Errorf("IsEmpty() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBoundingBoxOrbRoundTrip(t *testing.T) {
	b := BoundingBox{MinLon: 9.7, MinLat: 52.3, MaxLon: 9.9, MaxLat: 52.4}
	if got := FromBound(b.Bound()); got != b {
		t.Fatalf("FromBound(Bound()) = %+v, want %+v", got, b)
	}

	c := NewGeoCoordinate(51.5074, -0.1278)
	if got := FromPoint(c.Point()); got != c {
		t.Fatalf("FromPoint(Point()) = %+v, want %+v", got, c)
	}
	if c.Point() != (orb.Point{-0.1278, 51.5074}) {
		t.Fatalf("Point() must be lon,lat ordered: %v", c.Point())
	}
}

func TestGeoCoordinateIsValid(t *testing.T) {
	if !NewGeoCoordinate(90, 180).IsValid() {
		t.Error("poles and anti-meridian are valid coordinates")
	}
	if NewGeoCoordinate(90.1, 0).IsValid() {
		t.Error("latitude above 90 must be invalid")
	}
	if NewGeoCoordinate(0, -180.5).IsValid() {
		t.Error("longitude below -180 must be invalid")
	}
}
