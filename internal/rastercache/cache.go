// Package rastercache maps tile-set entries and zoom levels to image
// references.
package rastercache

import (
	"math"
	"slices"
	"sort"
	"sync"

	"github.com/MeKo-Tech/tilemap/internal/tile"
)

// DefaultTolerance is the zoom distance under which two zoom levels are equal.
const DefaultTolerance = 0.1

// ResourceRef points at a stored tile image (a path or resource key).
type ResourceRef string

// CachedZoomLevel binds a zoom step to an image reference.
type CachedZoomLevel struct {
	Zoom float64     `json:"zoom"`
	Ref  ResourceRef `json:"ref"`
}

// TileSet is one named entry (a MapPNG) with its source rectangle and the
// zoom levels generated for it, ordered by zoom.
type TileSet struct {
	Name    string            `json:"name"`
	MapType MapType           `json:"map_type"`
	Source  [4]float64        `json:"source"`
	Levels  []CachedZoomLevel `json:"levels"`
}

// Level returns the level matching zoom within tolerance.
func (s TileSet) Level(zoom, tolerance float64) (CachedZoomLevel, bool) {
	i := s.index(zoom, tolerance)
	if i < 0 {
		return CachedZoomLevel{}, false
	}
	return s.Levels[i], true
}

func (s TileSet) index(zoom, tolerance float64) int {
	best, bestDist := -1, math.Inf(1)
	for i, l := range s.Levels {
		d := math.Abs(l.Zoom - zoom)
		if d <= tolerance && d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func (s TileSet) clone() TileSet {
	s.Levels = slices.Clone(s.Levels)
	return s
}

// Cache holds the tile sets and fetched slippy tiles of one map. Only tile
// sets take part in zoom selection. It is safe for concurrent use.
type Cache struct {
	mu          sync.RWMutex
	sets        map[string]*TileSet
	slippy      map[tile.CanonicalID]ResourceRef
	tolerance   float64
	defaultType MapType
}

// New creates an empty cache. Entries created implicitly by Upsert get
// mapType. A non-positive tolerance selects DefaultTolerance.
func New(mapType MapType, tolerance float64) *Cache {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Cache{
		sets:        make(map[string]*TileSet),
		slippy:      make(map[tile.CanonicalID]ResourceRef),
		tolerance:   tolerance,
		defaultType: mapType,
	}
}

// Tolerance returns the zoom tolerance in use.
func (c *Cache) Tolerance() float64 { return c.tolerance }

// MapType returns the map type assigned to implicitly created entries.
func (c *Cache) MapType() MapType { return c.defaultType }

// Define creates or updates the entry name with its map type and source
// rectangle. Existing levels are kept.
func (c *Cache) Define(name string, mapType MapType, source [4]float64) error {
	if !mapType.Valid() {
		return ErrUnknownMapType
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	set, ok := c.sets[name]
	if !ok {
		set = &TileSet{Name: name}
		c.sets[name] = set
	}
	set.MapType = mapType
	set.Source = source
	return nil
}

// Lookup returns the image reference of entry name at zoom. A missing entry
// or zoom level is reported as false, never as an error.
func (c *Cache) Lookup(name string, zoom float64) (ResourceRef, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	set, ok := c.sets[name]
	if !ok {
		return "", false
	}
	l, ok := set.Level(zoom, c.tolerance)
	if !ok {
		return "", false
	}
	return l.Ref, true
}

// Upsert stores ref for (name, zoom). An existing level within tolerance is
// overwritten in place; otherwise a new level is inserted in zoom order.
// It reports whether a new level was created.
func (c *Cache) Upsert(name string, zoom float64, ref ResourceRef) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	set, ok := c.sets[name]
	if !ok {
		set = &TileSet{Name: name, MapType: c.defaultType}
		c.sets[name] = set
	}

	if i := set.index(zoom, c.tolerance); i >= 0 {
		set.Levels[i].Ref = ref
		return false
	}

	i := sort.Search(len(set.Levels), func(i int) bool { return set.Levels[i].Zoom > zoom })
	set.Levels = slices.Insert(set.Levels, i, CachedZoomLevel{Zoom: zoom, Ref: ref})
	return true
}

// Remove deletes entry name. It reports whether the entry existed.
func (c *Cache) Remove(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.sets[name]
	delete(c.sets, name)
	return ok
}

// Get returns a copy of entry name.
func (c *Cache) Get(name string) (TileSet, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	set, ok := c.sets[name]
	if !ok {
		return TileSet{}, false
	}
	return set.clone(), true
}

// Names returns the entry names in sorted order.
func (c *Cache) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.sets))
	for name := range c.sets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Zooms returns the distinct cached zoom levels across all entries, sorted.
// Levels closer than the tolerance are reported once.
func (c *Cache) Zooms() []float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var all []float64
	for _, set := range c.sets {
		for _, l := range set.Levels {
			all = append(all, l.Zoom)
		}
	}
	sort.Float64s(all)

	zooms := make([]float64, 0, len(all))
	for _, z := range all {
		if n := len(zooms); n > 0 && z-zooms[n-1] <= c.tolerance {
			continue
		}
		zooms = append(zooms, z)
	}
	return zooms
}

// Len returns the number of tile sets.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sets)
}

// Sets returns copies of all entries sorted by name.
func (c *Cache) Sets() []TileSet {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]TileSet, 0, len(c.sets))
	for _, set := range c.sets {
		out = append(out, set.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Restore replaces the cache content with sets.
func (c *Cache) Restore(sets []TileSet) {
	next := make(map[string]*TileSet, len(sets))
	for _, s := range sets {
		s = s.clone()
		sort.SliceStable(s.Levels, func(i, j int) bool { return s.Levels[i].Zoom < s.Levels[j].Zoom })
		next[s.Name] = &s
	}

	c.mu.Lock()
	c.sets = next
	c.mu.Unlock()
}

// Clear removes all tile sets and fetched tiles.
func (c *Cache) Clear() {
	c.Restore(nil)
	c.RestoreSlippy(nil)
}
