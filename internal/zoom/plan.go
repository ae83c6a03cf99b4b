// Package zoom derives cached zoom levels and marker scale factors from a
// continuous zoom value.
package zoom

import (
	"errors"
	"math"

	"github.com/MeKo-Tech/tilemap/internal/rastercache"
)

// DefaultTolerance is the distance under which two zoom levels are equal.
const DefaultTolerance = rastercache.DefaultTolerance

// ErrNoCachedLevels is returned when no tile set has any cached zoom level.
var ErrNoCachedLevels = errors.New("no cached zoom levels")

// LevelSource exposes the cached zoom levels of a map's tile sets.
type LevelSource interface {
	Zooms() []float64
	Names() []string
	Lookup(name string, zoom float64) (rastercache.ResourceRef, bool)
}

// Nearest returns the level closest to requested. Ties resolve to the lower
// level. It reports false when levels is empty.
func Nearest(levels []float64, requested float64) (float64, bool) {
	if len(levels) == 0 {
		return 0, false
	}

	best := levels[0]
	bestDist := math.Abs(best - requested)
	for _, l := range levels[1:] {
		d := math.Abs(l - requested)
		if d < bestDist || (d == bestDist && l < best) {
			best, bestDist = l, d
		}
	}
	return best, true
}

// Dependency returns the whole number of steps between two cached zoom
// levels and the factor a dependent scale is multiplied by: halved per step
// when zooming in (next > prev), doubled per step when zooming out.
func Dependency(prev, next float64) (steps int, factor float64) {
	steps = int(math.Abs(next - prev))
	switch {
	case next > prev:
		factor = math.Ldexp(1, -steps)
	case next < prev:
		factor = math.Ldexp(1, steps)
	default:
		factor = 1
	}
	return steps, factor
}

// NeedsSwap reports whether the nearest level differs from the active one by
// more than tolerance.
func NeedsSwap(active, nearest, tolerance float64) bool {
	return math.Abs(active-nearest) > tolerance
}

// State is the zoom state of one map: the active cached level and the scale
// currently applied to dependent elements.
type State struct {
	CachedZoom float64 `json:"cached_zoom"`
	Scale      float64 `json:"scale"`
}

// Decision is the outcome of planning a zoom change.
type Decision struct {
	Swap       bool    `json:"swap"`
	CachedZoom float64 `json:"cached_zoom"`
	Steps      int     `json:"steps"`
	Factor     float64 `json:"factor"`
	Scale      float64 `json:"scale"`
}

// Plan decides how a map in state current reacts to requested. Without a
// swap the state is returned unchanged.
func Plan(levels []float64, current State, requested, tolerance float64) (Decision, error) {
	nearest, ok := Nearest(levels, requested)
	if !ok {
		return Decision{}, ErrNoCachedLevels
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	if !NeedsSwap(current.CachedZoom, nearest, tolerance) {
		return Decision{CachedZoom: current.CachedZoom, Factor: 1, Scale: current.Scale}, nil
	}

	steps, factor := Dependency(current.CachedZoom, nearest)
	return Decision{
		Swap:       true,
		CachedZoom: nearest,
		Steps:      steps,
		Factor:     factor,
		Scale:      current.Scale * factor,
	}, nil
}
