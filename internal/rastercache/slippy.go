package rastercache

import (
	"sort"

	"github.com/MeKo-Tech/tilemap/internal/tile"
)

// SlippyTile is a fetched tile image addressed by its canonical tile id.
// Slippy tiles are kept apart from tile sets and never count as cached zoom
// levels.
type SlippyTile struct {
	ID  tile.CanonicalID `json:"id"`
	Ref ResourceRef      `json:"ref"`
}

// LookupSlippy returns the image of a fetched tile.
func (c *Cache) LookupSlippy(id tile.CanonicalID) (ResourceRef, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ref, ok := c.slippy[id]
	return ref, ok
}

// PutSlippy records ref for id, overwriting an earlier image. It reports
// whether the tile was new.
func (c *Cache) PutSlippy(id tile.CanonicalID, ref ResourceRef) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, existed := c.slippy[id]
	c.slippy[id] = ref
	return !existed
}

// SlippyLen returns the number of fetched tiles.
func (c *Cache) SlippyLen() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.slippy)
}

// Slippy returns the fetched tiles ordered by z, x and y.
func (c *Cache) Slippy() []SlippyTile {
	c.mu.RLock()
	out := make([]SlippyTile, 0, len(c.slippy))
	for id, ref := range c.slippy {
		out = append(out, SlippyTile{ID: id, Ref: ref})
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].ID, out[j].ID
		if a.Z != b.Z {
			return a.Z < b.Z
		}
		if a.X != b.X {
			return a.X < b.X
		}
		return a.Y < b.Y
	})
	return out
}

// RestoreSlippy replaces the fetched tiles. Invalid ids are dropped.
func (c *Cache) RestoreSlippy(tiles []SlippyTile) {
	next := make(map[tile.CanonicalID]ResourceRef, len(tiles))
	for _, t := range tiles {
		if t.ID.Valid() {
			next[t.ID] = t.Ref
		}
	}

	c.mu.Lock()
	c.slippy = next
	c.mu.Unlock()
}
