// Package journey caches travel routes per destination and travel mode.
package journey

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// TravelMode is the way a route is travelled.
type TravelMode string

const (
	Driving   TravelMode = "driving"
	Walking   TravelMode = "walking"
	Bicycling TravelMode = "bicycling"
	Transit   TravelMode = "transit"
)

// TravelModes lists every known travel mode.
var TravelModes = []TravelMode{Driving, Walking, Bicycling, Transit}

// ErrUnknownTravelMode is returned when a travel mode name is not recognized.
var ErrUnknownTravelMode = errors.New("unknown travel mode")

// ParseTravelMode parses a travel mode name, case-insensitively.
func ParseTravelMode(s string) (TravelMode, error) {
	m := TravelMode(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case Driving, Walking, Bicycling, Transit:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTravelMode, s)
}

// Key identifies a journey by destination and travel mode.
type Key struct {
	DestinationID string     `json:"destination_id"`
	Mode          TravelMode `json:"travel_mode"`
}

func (k Key) String() string {
	return k.DestinationID + "/" + string(k.Mode)
}

// ScreenPoint is a 2D position on screen.
type ScreenPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Extents is the screen extent of a journey and the zoom it was captured at.
type Extents struct {
	Point ScreenPoint `json:"point"`
	Zoom  int         `json:"zoom"`
}

// Entry is one cached journey.
type Entry struct {
	Key     Key      `json:"key"`
	Payload []byte   `json:"payload"`
	Extents *Extents `json:"extents,omitempty"`
}

func (e Entry) clone() Entry {
	e.Payload = append([]byte(nil), e.Payload...)
	if e.Extents != nil {
		ext := *e.Extents
		e.Extents = &ext
	}
	return e
}

// Cache holds the journeys of one map. It is safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[Key]*Entry
}

// NewCache creates an empty journey cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[Key]*Entry)}
}

// GetRoute returns the cached route payload for (dest, mode).
func (c *Cache) GetRoute(dest string, mode TravelMode) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[Key{DestinationID: dest, Mode: mode}]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), e.Payload...), true
}

// PutRoute stores the route payload for (dest, mode). An existing entry only
// has its payload replaced; its extents stay untouched.
func (c *Cache) PutRoute(dest string, mode TravelMode, payload []byte) {
	k := Key{DestinationID: dest, Mode: mode}
	p := append([]byte(nil), payload...)

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[k]; ok {
		e.Payload = p
		return
	}
	c.entries[k] = &Entry{Key: k, Payload: p}
}

// GetExtents returns the captured extents for (dest, mode). Entries whose
// extents were never captured report false.
func (c *Cache) GetExtents(dest string, mode TravelMode) (Extents, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[Key{DestinationID: dest, Mode: mode}]
	if !ok || e.Extents == nil {
		return Extents{}, false
	}
	return *e.Extents, true
}

// PutExtents records the extents of an existing journey. Without a cached
// route the call does nothing and reports false.
func (c *Cache) PutExtents(dest string, mode TravelMode, point ScreenPoint, zoom int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[Key{DestinationID: dest, Mode: mode}]
	if !ok {
		return false
	}
	e.Extents = &Extents{Point: point, Zoom: zoom}
	return true
}

// Remove deletes the journey for (dest, mode).
func (c *Cache) Remove(dest string, mode TravelMode) bool {
	k := Key{DestinationID: dest, Mode: mode}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.entries[k]
	delete(c.entries, k)
	return ok
}

// Len returns the number of journeys.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Entries returns copies of all journeys sorted by destination then mode.
func (c *Cache) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.DestinationID != out[j].Key.DestinationID {
			return out[i].Key.DestinationID < out[j].Key.DestinationID
		}
		return out[i].Key.Mode < out[j].Key.Mode
	})
	return out
}

// Restore replaces the cache content with entries. Later duplicates win.
func (c *Cache) Restore(entries []Entry) {
	next := make(map[Key]*Entry, len(entries))
	for _, e := range entries {
		e = e.clone()
		next[e.Key] = &e
	}

	c.mu.Lock()
	c.entries = next
	c.mu.Unlock()
}
