package geomap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/MeKo-Tech/tilemap/internal/metrics"
	"github.com/MeKo-Tech/tilemap/internal/store"
)

// ErrRegistryClosed is returned by Open after Close.
var ErrRegistryClosed = errors.New("registry is closed")

// Registry holds the open maps of a process. It is created at startup and
// handed to the components that need cross-map lookup.
type Registry struct {
	cfg       Config
	persister store.Persister
	opts      []Option
	logger    *slog.Logger

	mu     sync.RWMutex
	maps   map[string]*Map
	closed bool
}

// NewRegistry creates a registry whose maps share cfg and persister. opts
// are applied to every map it opens.
func NewRegistry(cfg Config, persister store.Persister, logger *slog.Logger, opts ...Option) *Registry {
	if persister == nil {
		persister = store.NewMemoryStore()
	}
	return &Registry{
		cfg:       cfg,
		persister: persister,
		opts:      opts,
		logger:    logger,
		maps:      make(map[string]*Map),
	}
}

func (r *Registry) log() *slog.Logger {
	if r.logger != nil {
		return r.logger
	}
	return slog.Default()
}

// Open returns the map called name, loading it on first use. A map that was
// never saved is created empty.
func (r *Registry) Open(ctx context.Context, name string) (*Map, error) {
	return r.open(ctx, name, Open)
}

// OpenExisting returns the map called name only when it is already open or
// was saved before. Other names return ErrUnknownMap and leave the registry
// unchanged.
func (r *Registry) OpenExisting(ctx context.Context, name string) (*Map, error) {
	return r.open(ctx, name, OpenSaved)
}

type openFunc func(ctx context.Context, name string, cfg Config, opts ...Option) (*Map, error)

func (r *Registry) open(ctx context.Context, name string, openMap openFunc) (*Map, error) {
	r.mu.RLock()
	m, ok := r.maps[name]
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, ErrRegistryClosed
	}
	if ok {
		return m, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}
	if m, ok := r.maps[name]; ok {
		return m, nil
	}

	opts := append([]Option{WithPersister(r.persister), WithLogger(r.logger)}, r.opts...)
	m, err := openMap(ctx, name, r.cfg, opts...)
	if err != nil {
		return nil, err
	}
	r.maps[name] = m
	metrics.LoadedMaps.Set(float64(len(r.maps)))
	r.log().Debug("Opened map", "map", name)
	return m, nil
}

// Get returns an already opened map.
func (r *Registry) Get(name string) (*Map, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.maps[name]
	return m, ok
}

// Names lists the opened maps in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.maps))
	for name := range r.maps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SaveAll saves every opened map and joins the failures.
func (r *Registry) SaveAll(ctx context.Context) error {
	var errs []error
	for _, name := range r.Names() {
		if m, ok := r.Get(name); ok {
			if err := m.Save(ctx); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Close saves every map, forgets them and closes the persister.
func (r *Registry) Close(ctx context.Context) error {
	saveErr := r.SaveAll(ctx)

	r.mu.Lock()
	r.closed = true
	r.maps = make(map[string]*Map)
	r.mu.Unlock()
	metrics.LoadedMaps.Set(0)

	if err := r.persister.Close(); err != nil {
		return errors.Join(saveErr, fmt.Errorf("failed to close store: %w", err))
	}
	return saveErr
}
