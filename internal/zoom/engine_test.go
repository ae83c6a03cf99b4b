package zoom

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/tilemap/internal/rastercache"
	"github.com/MeKo-Tech/tilemap/internal/tile"
)

func newCache(t *testing.T) *rastercache.Cache {
	t.Helper()

	c := rastercache.New(rastercache.Roadmap, 0)
	for _, z := range []float64{10, 11, 12, 14} {
		c.Upsert("city", z, rastercache.ResourceRef("city_"+strconv.Itoa(int(z))+".png"))
	}
	c.Upsert("harbour", 10, "harbour_10.png")
	c.Upsert("harbour", 12, "harbour_12.png")
	return c
}

func TestEngineFirstCallActivatesBaseLevel(t *testing.T) {
	e := NewEngine(newCache(t), Config{MinZoom: 0, MaxZoom: 20, BaseZoom: 10})

	_, active := e.State()
	assert.False(t, active)

	res, err := e.SetZoom(10.3)
	require.NoError(t, err)
	assert.False(t, res.Regenerated)
	assert.Equal(t, 10.0, res.CachedZoom)
	assert.Equal(t, 1.0, res.Scale)
	assert.Equal(t, map[string]rastercache.ResourceRef{
		"city":    "city_10.png",
		"harbour": "harbour_10.png",
	}, res.TileRefs)

	st, active := e.State()
	assert.True(t, active)
	assert.Equal(t, State{CachedZoom: 10, Scale: 1}, st)
}

func TestEngineScalesElementsOnSwap(t *testing.T) {
	e := NewEngine(newCache(t), Config{MinZoom: 0, MaxZoom: 20, BaseZoom: 10})
	marker := NewElement("marker")
	route := NewElement("route")
	e.Add(marker, route)

	res, err := e.SetZoom(12)
	require.NoError(t, err)
	assert.True(t, res.Regenerated)
	assert.Equal(t, 2, res.Steps)
	assert.Equal(t, 0.25, res.Scale)
	assert.Equal(t, 0.25, marker.Scale())
	assert.Equal(t, 0.25, route.Scale())
	assert.Equal(t, rastercache.ResourceRef("harbour_12.png"), res.TileRefs["harbour"])

	// harbour has no level 11 and drops out of the refs
	res, err = e.SetZoom(11)
	require.NoError(t, err)
	assert.Equal(t, 0.5, res.Scale)
	assert.Equal(t, map[string]rastercache.ResourceRef{"city": "city_11.png"}, res.TileRefs)

	assert.Equal(t, 2, marker.Applied())
	assert.Equal(t, marker.Scale(), route.Scale())
}

func TestEngineIgnoresFetchedTiles(t *testing.T) {
	c := rastercache.New(rastercache.Roadmap, 0)
	c.Upsert("harbour", 10, "harbour_10.png")
	c.Upsert("harbour", 12, "harbour_12.png")
	c.PutSlippy(tile.CanonicalID{Z: 11, X: 1, Y: 1}, "roadmap/11/1/1.png")
	c.PutSlippy(tile.CanonicalID{Z: 13, X: 4, Y: 2}, "roadmap/13/4/2.png")

	e := NewEngine(c, Config{MinZoom: 0, MaxZoom: 20, BaseZoom: 10})
	_, err := e.SetZoom(10)
	require.NoError(t, err)

	res, err := e.SetZoom(13)
	require.NoError(t, err)
	assert.Equal(t, 12.0, res.CachedZoom)
	assert.Equal(t, 0.25, res.Scale)
	assert.Equal(t, map[string]rastercache.ResourceRef{"harbour": "harbour_12.png"}, res.TileRefs)

	// a fetched tile at 11 is no level; the tie between 10 and 12 goes low
	res, err = e.SetZoom(11)
	require.NoError(t, err)
	assert.True(t, res.Regenerated)
	assert.Equal(t, 10.0, res.CachedZoom)
	assert.Equal(t, 1.0, res.Scale)
}

func TestEngineNoSwapWithinLevel(t *testing.T) {
	e := NewEngine(newCache(t), Config{MinZoom: 0, MaxZoom: 20, BaseZoom: 10})
	el := NewElement("marker")
	e.Add(el)

	for _, z := range []float64{10, 10.2, 10.45, 9.6} {
		res, err := e.SetZoom(z)
		require.NoError(t, err)
		assert.False(t, res.Regenerated, "zoom %v", z)
	}
	assert.Equal(t, 0, el.Applied())
}

func TestEngineClampsRequestedZoom(t *testing.T) {
	e := NewEngine(newCache(t), Config{MinZoom: 10, MaxZoom: 12, BaseZoom: 10})

	res, err := e.SetZoom(18)
	require.NoError(t, err)
	assert.Equal(t, 12.0, res.Requested)
	assert.Equal(t, 12.0, res.CachedZoom)

	res, err = e.SetZoom(-3)
	require.NoError(t, err)
	assert.Equal(t, 10.0, res.Requested)
	assert.Equal(t, 1.0, res.Scale)
}

func TestEngineNoCachedLevels(t *testing.T) {
	e := NewEngine(rastercache.New(rastercache.Roadmap, 0), Config{MaxZoom: 20})
	_, err := e.SetZoom(10)
	assert.ErrorIs(t, err, ErrNoCachedLevels)
	assert.Equal(t, Stable, e.Phase())
}

// reentrant calls SetZoom from inside the regenerate pass.
type reentrant struct {
	engine *Engine
	err    error
	phase  Phase
	count  int
}

func (r *reentrant) SetScale(float64) {
	r.count++
	r.phase = r.engine.Phase()
	_, r.err = r.engine.SetZoom(14)
}

func TestEngineRejectsReentrantCalls(t *testing.T) {
	e := NewEngine(newCache(t), Config{MinZoom: 0, MaxZoom: 20, BaseZoom: 10})
	r := &reentrant{engine: e}
	other := NewElement("other")
	e.Add(r, other)

	res, err := e.SetZoom(11)
	require.NoError(t, err)

	assert.Equal(t, Regenerating, r.phase)
	assert.ErrorIs(t, r.err, ErrRegenerating)
	assert.Equal(t, 1, r.count)
	assert.Equal(t, 0.5, other.Scale(), "the rejected call applies nothing")
	assert.Equal(t, 11.0, res.CachedZoom)

	st, _ := e.State()
	assert.Equal(t, 11.0, st.CachedZoom)
	assert.Equal(t, Stable, e.Phase())
}

func TestEngineResetAndRemove(t *testing.T) {
	e := NewEngine(newCache(t), Config{MinZoom: 0, MaxZoom: 20, BaseZoom: 10})
	el := NewElement("marker")
	e.Add(el)

	_, err := e.SetZoom(12)
	require.NoError(t, err)

	e.Reset()
	_, active := e.State()
	assert.False(t, active)

	assert.True(t, e.Remove(el))
	assert.False(t, e.Remove(el))

	res, err := e.SetZoom(14)
	require.NoError(t, err)
	assert.Equal(t, 0.0625, res.Scale)
	assert.Equal(t, 0.25, el.Scale(), "removed elements are not rescaled")
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "stable", Stable.String())
	assert.Equal(t, "regenerating", Regenerating.String())
}
