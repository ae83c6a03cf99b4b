package tile

import (
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/tilemap/internal/projection"
	"github.com/MeKo-Tech/tilemap/internal/types"
)

func orbPoint(lon, lat float64) orb.Point { return orb.Point{lon, lat} }

var hanover = types.BoundingBox{MinLon: 9.6, MinLat: 52.3, MaxLon: 9.9, MaxLat: 52.45}

func TestCoverWorld(t *testing.T) {
	tests := []struct {
		zoom int
		want int
	}{
		{0, 1},
		{1, 4},
		{2, 16},
	}

	for _, tt := range tests {
		set := Cover(types.WorldBounds, tt.zoom, projection.MaxLatitude)
		if set.Len() != tt.want {
			t.Errorf("Cover(world, %d) = %d tiles, want %d", tt.zoom, set.Len(), tt.want)
		}
	}

	set := Cover(types.WorldBounds, 0, projection.MaxLatitude)
	assert.True(t, set.Has(CanonicalID{}))
}

func TestCoverRejects(t *testing.T) {
	tests := []struct {
		name string
		bbox types.BoundingBox
	}{
		{"south above north", types.BoundingBox{MinLon: 0, MinLat: 10, MaxLon: 1, MaxLat: 5}},
		{"north of the limit", types.BoundingBox{MinLon: 0, MinLat: 86, MaxLon: 1, MaxLat: 89}},
		{"south of the limit", types.BoundingBox{MinLon: 0, MinLat: -89, MaxLon: 1, MaxLat: -86}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Cover(tt.bbox, 5, projection.MaxLatitude); got.Len() != 0 {
				t.Errorf("Cover() = %v, want empty", got.Slice())
			}
		})
	}
}

func TestCoverOutOfRangeZoom(t *testing.T) {
	for _, z := range []int{-1, -30, MaxZoom + 1, 64} {
		assert.Equal(t, 0, Cover(hanover, z, projection.MaxLatitude).Len(), "zoom %d", z)
		assert.Equal(t, 0, Count(hanover, z, z, projection.MaxLatitude), "zoom %d", z)
		assert.Empty(t, CoverRange(hanover, z, z, projection.MaxLatitude), "zoom %d", z)

		_, err := CoverGeometry(orbPoint(9.73, 52.37), z)
		assert.ErrorIs(t, err, ErrInvalidZoom, "zoom %d", z)
	}

	// a range reaching past either end keeps only its valid zooms
	assert.Equal(t, Count(hanover, 0, 2, projection.MaxLatitude), Count(hanover, -5, 2, projection.MaxLatitude))
	assert.Len(t, CoverRange(hanover, -5, 2, projection.MaxLatitude), Count(hanover, 0, 2, projection.MaxLatitude))
}

func TestValidateZoomRange(t *testing.T) {
	tests := []struct {
		name     string
		min, max int
		wantErr  bool
		invalid  bool
	}{
		{name: "single", min: 10, max: 10},
		{name: "full", min: 0, max: MaxZoom},
		{name: "negative min", min: -1, max: 3, wantErr: true, invalid: true},
		{name: "max past limit", min: 3, max: MaxZoom + 1, wantErr: true, invalid: true},
		{name: "inverted", min: 5, max: 4, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateZoomRange(tt.min, tt.max)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.invalid, errors.Is(err, ErrInvalidZoom))
		})
	}
}

func TestCoverAntiMeridianNotUnwrapped(t *testing.T) {
	crossing := types.BoundingBox{MinLon: 170, MinLat: -10, MaxLon: -170, MaxLat: 10}
	assert.Equal(t, 0, Cover(crossing, 4, projection.MaxLatitude).Len())
}

func TestCoverHanover(t *testing.T) {
	tests := []struct {
		zoom int
		want int
	}{
		{10, 2},
		{12, 16},
		{13, 48},
	}

	for _, tt := range tests {
		set := Cover(hanover, tt.zoom, projection.MaxLatitude)
		assert.Equal(t, tt.want, set.Len(), "zoom %d", tt.zoom)
	}

	slice := Cover(hanover, 12, projection.MaxLatitude).Slice()
	assert.Equal(t, CanonicalID{Z: 12, X: 2157, Y: 1344}, slice[0])
	assert.Equal(t, CanonicalID{Z: 12, X: 2160, Y: 1347}, slice[len(slice)-1])
}

func TestCoverContainment(t *testing.T) {
	boxes := []types.BoundingBox{
		hanover,
		{MinLon: -74.1, MinLat: 40.6, MaxLon: -73.9, MaxLat: 40.8},
		{MinLon: 151.1, MinLat: -34.0, MaxLon: 151.3, MaxLat: -33.8},
		{MinLon: -10, MinLat: -80, MaxLon: 10, MaxLat: 80},
	}

	for _, bbox := range boxes {
		want, err := projection.BoundsFromGeo(bbox)
		require.NoError(t, err)

		for zoom := 0; zoom <= 10; zoom++ {
			set := Cover(bbox, zoom, projection.MaxLatitude)
			require.NotZero(t, set.Len())

			var union projection.Bounds
			for i, id := range set.Slice() {
				b := id.Bounds()
				if !b.Intersects(want) {
					t.Fatalf("zoom %d: tile %s does not intersect %v", zoom, id, bbox)
				}
				if i == 0 {
					union = b
				} else {
					union = union.Extend(b)
				}
			}
			if !union.ContainsBounds(want) {
				t.Fatalf("zoom %d: union %+v does not contain %+v", zoom, union, want)
			}
		}
	}
}

func TestCoverClampsToLimit(t *testing.T) {
	polar := types.BoundingBox{MinLon: -1, MinLat: 80, MaxLon: 1, MaxLat: 89.9}
	set := Cover(polar, 3, projection.MaxLatitude)
	require.NotZero(t, set.Len())
	for id := range set {
		assert.Equal(t, 0, id.Y)
	}
}

func TestCountMatchesCoverRange(t *testing.T) {
	tests := []struct {
		name     string
		bbox     types.BoundingBox
		min, max int
	}{
		{"hanover", hanover, 8, 13},
		{"world", types.WorldBounds, 0, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tiles := CoverRange(tt.bbox, tt.min, tt.max, projection.MaxLatitude)
			assert.Equal(t, Count(tt.bbox, tt.min, tt.max, projection.MaxLatitude), len(tiles))

			for i := 1; i < len(tiles); i++ {
				assert.LessOrEqual(t, tiles[i-1].Z, tiles[i].Z)
			}
		})
	}
}

func TestCoverGeometry(t *testing.T) {
	poly := orb.Polygon{orb.Ring{
		{9.6, 52.3}, {9.9, 52.3}, {9.9, 52.45}, {9.6, 52.45}, {9.6, 52.3},
	}}

	set, err := CoverGeometry(poly, 12)
	require.NoError(t, err)
	assert.Equal(t, Cover(hanover, 12, projection.MaxLatitude), set)

	point, err := CoverGeometry(orb.Point{9.73, 52.37}, 13)
	require.NoError(t, err)
	assert.True(t, point.Has(CanonicalID{Z: 13, X: 4317, Y: 2692}))
	assert.Equal(t, 1, point.Len())
}

func TestSet(t *testing.T) {
	s := NewSet(CanonicalID{Z: 1, X: 1, Y: 0}, CanonicalID{Z: 1, X: 0, Y: 1})
	s.Add(CanonicalID{Z: 1, X: 1, Y: 0})

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []CanonicalID{{Z: 1, X: 0, Y: 1}, {Z: 1, X: 1, Y: 0}}, s.Slice())
}
