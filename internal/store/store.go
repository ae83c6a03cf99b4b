// Package store persists the caches of named maps.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MeKo-Tech/tilemap/internal/journey"
	"github.com/MeKo-Tech/tilemap/internal/rastercache"
)

// ErrNotFound is returned by Load when nothing was saved for a map.
var ErrNotFound = errors.New("map not found")

// ErrInvalidName is returned for map names that cannot be stored.
var ErrInvalidName = errors.New("invalid map name")

// Snapshot is the persisted state of one named map.
type Snapshot struct {
	Map      string                   `json:"map"`
	MapType  rastercache.MapType      `json:"map_type,omitempty"`
	TileSets []rastercache.TileSet    `json:"tile_sets"`
	Tiles    []rastercache.SlippyTile `json:"tiles,omitempty"`
	Journeys []journey.Entry          `json:"journeys"`
	SavedAt  time.Time                `json:"saved_at"`
}

// Persister loads and saves map snapshots.
type Persister interface {
	Load(ctx context.Context, name string) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
	Close() error
}

// ValidateName rejects names that are empty or could escape a directory.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\:`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Config selects and configures a persister.
type Config struct {
	Driver string      `mapstructure:"driver"`
	Path   string      `mapstructure:"path"`
	Redis  RedisConfig `mapstructure:"redis"`
}

// Drivers lists the accepted driver names.
var Drivers = []string{"sqlite", "file", "redis", "memory"}

// Open creates the persister named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Persister, error) {
	var (
		p   Persister
		err error
	)
	switch cfg.Driver {
	case "sqlite", "":
		p, err = nilable(OpenSQLite(ctx, cfg.Path))
	case "file":
		p, err = nilable(NewFileStore(cfg.Path))
	case "redis":
		p, err = nilable(NewRedisStore(ctx, cfg.Redis))
	case "memory":
		p = NewMemoryStore()
	default:
		err = fmt.Errorf("unknown store driver %q (want one of %s)", cfg.Driver, strings.Join(Drivers, ", "))
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// nilable keeps a failed constructor from yielding a non-nil interface
// holding a nil pointer.
func nilable[T Persister](p T, err error) (Persister, error) {
	if err != nil {
		return nil, err
	}
	return p, nil
}

// MemoryStore keeps snapshots in memory.
type MemoryStore struct {
	mu    sync.RWMutex
	snaps map[string]Snapshot
}

var _ Persister = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: make(map[string]Snapshot)}
}

func (s *MemoryStore) Load(_ context.Context, name string) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snaps[name]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return snap, nil
}

func (s *MemoryStore) Save(_ context.Context, snap Snapshot) error {
	if err := ValidateName(snap.Map); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[snap.Map] = snap
	return nil
}

func (s *MemoryStore) Close() error { return nil }
