package zoom

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/MeKo-Tech/tilemap/internal/rastercache"
)

// ErrRegenerating is returned when SetZoom is called while a previous call
// is still applying its scale.
var ErrRegenerating = errors.New("zoom engine is regenerating")

// Phase is the engine state.
type Phase int32

const (
	Stable Phase = iota
	Regenerating
)

func (p Phase) String() string {
	switch p {
	case Stable:
		return "stable"
	case Regenerating:
		return "regenerating"
	}
	return fmt.Sprintf("phase(%d)", int32(p))
}

// Scalable is a visual element whose size follows the zoom-dependent scale.
type Scalable interface {
	SetScale(scale float64)
}

// Config bounds the engine.
type Config struct {
	MinZoom      float64
	MaxZoom      float64
	BaseZoom     float64
	Tolerance    float64
	InitialScale float64
	Logger       *slog.Logger
}

// Result is the outcome of one SetZoom call.
type Result struct {
	Requested   float64                            `json:"requested"`
	CachedZoom  float64                            `json:"cached_zoom"`
	Scale       float64                            `json:"scale"`
	Steps       int                                `json:"steps"`
	Regenerated bool                               `json:"regenerated"`
	TileRefs    map[string]rastercache.ResourceRef `json:"tile_refs"`
}

// Engine tracks the active cached zoom of one map and rescales its
// registered elements when the active level changes.
type Engine struct {
	levels LevelSource
	cfg    Config
	logger *slog.Logger

	phase atomic.Int32

	mu       sync.RWMutex
	state    State
	active   bool
	elements []Scalable
}

// NewEngine creates an engine reading cached levels from levels.
func NewEngine(levels LevelSource, cfg Config) *Engine {
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = DefaultTolerance
	}
	if cfg.InitialScale <= 0 {
		cfg.InitialScale = 1
	}
	if cfg.MaxZoom < cfg.MinZoom {
		cfg.MinZoom, cfg.MaxZoom = cfg.MaxZoom, cfg.MinZoom
	}
	return &Engine{
		levels: levels,
		cfg:    cfg,
		logger: cfg.Logger,
		state:  State{Scale: cfg.InitialScale},
	}
}

func (e *Engine) log() *slog.Logger {
	if e.logger != nil {
		return e.logger
	}
	return slog.Default()
}

// Phase returns the current engine state.
func (e *Engine) Phase() Phase {
	return Phase(e.phase.Load())
}

// State returns the active cached zoom and scale. The second result is false
// until a cached level has been activated.
func (e *Engine) State() (State, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state, e.active
}

// Add registers elements that follow the scale.
func (e *Engine) Add(elements ...Scalable) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.elements = append(e.elements, elements...)
}

// Remove unregisters an element. It reports whether it was registered.
func (e *Engine) Remove(el Scalable) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, x := range e.elements {
		if x == el {
			e.elements = append(e.elements[:i], e.elements[i+1:]...)
			return true
		}
	}
	return false
}

// Reset forgets the active level and restores the initial scale. The next
// SetZoom activates the level nearest to the base zoom again.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = State{Scale: e.cfg.InitialScale}
	e.active = false
}

// Clamp limits zoom to the configured range.
func (e *Engine) Clamp(zoom float64) float64 {
	return math.Max(e.cfg.MinZoom, math.Min(e.cfg.MaxZoom, zoom))
}

// SetZoom moves the map to the requested zoom. When the nearest cached level
// differs from the active one, the new scale is applied to every registered
// element in a single pass before the call returns. Calls arriving during
// that pass fail with ErrRegenerating and change nothing.
func (e *Engine) SetZoom(requested float64) (Result, error) {
	if !e.phase.CompareAndSwap(int32(Stable), int32(Regenerating)) {
		return Result{}, ErrRegenerating
	}
	defer e.phase.Store(int32(Stable))

	if math.IsNaN(requested) {
		return Result{}, fmt.Errorf("invalid zoom: %v", requested)
	}
	requested = e.Clamp(requested)

	levels := e.levels.Zooms()

	e.mu.RLock()
	current, active := e.state, e.active
	elements := append([]Scalable(nil), e.elements...)
	e.mu.RUnlock()

	if !active {
		base, ok := Nearest(levels, e.Clamp(e.cfg.BaseZoom))
		if !ok {
			return Result{}, ErrNoCachedLevels
		}
		current.CachedZoom = base
	}

	d, err := Plan(levels, current, requested, e.cfg.Tolerance)
	if err != nil {
		return Result{}, err
	}

	if d.Swap {
		for _, el := range elements {
			el.SetScale(d.Scale)
		}
		e.log().Debug("Regenerated zoom level",
			"requested", requested,
			"from", current.CachedZoom,
			"to", d.CachedZoom,
			"steps", d.Steps,
			"scale", d.Scale,
			"elements", len(elements))
	}

	e.mu.Lock()
	e.state = State{CachedZoom: d.CachedZoom, Scale: d.Scale}
	e.active = true
	e.mu.Unlock()

	return Result{
		Requested:   requested,
		CachedZoom:  d.CachedZoom,
		Scale:       d.Scale,
		Steps:       d.Steps,
		Regenerated: d.Swap,
		TileRefs:    e.refs(d.CachedZoom),
	}, nil
}

// refs collects the image of every tile set at zoom. Sets without that level
// are left out.
func (e *Engine) refs(zoom float64) map[string]rastercache.ResourceRef {
	names := e.levels.Names()
	refs := make(map[string]rastercache.ResourceRef, len(names))
	for _, name := range names {
		if ref, ok := e.levels.Lookup(name, zoom); ok {
			refs[name] = ref
		}
	}
	return refs
}

// Element is a named Scalable that records the scale it was given.
type Element struct {
	Name string

	mu      sync.Mutex
	scale   float64
	applied int
}

// NewElement creates an element at scale 1.
func NewElement(name string) *Element {
	return &Element{Name: name, scale: 1}
}

// SetScale implements Scalable.
func (el *Element) SetScale(scale float64) {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.scale = scale
	el.applied++
}

// Scale returns the last applied scale.
func (el *Element) Scale() float64 {
	el.mu.Lock()
	defer el.mu.Unlock()
	return el.scale
}

// Applied returns how many times a scale was applied.
func (el *Element) Applied() int {
	el.mu.Lock()
	defer el.mu.Unlock()
	return el.applied
}
