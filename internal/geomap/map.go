// Package geomap ties the caches, zoom engine and projector of one named map
// together and keeps them in sync with a persister.
package geomap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/tilemap/internal/datasource"
	"github.com/MeKo-Tech/tilemap/internal/imagestore"
	"github.com/MeKo-Tech/tilemap/internal/journey"
	"github.com/MeKo-Tech/tilemap/internal/metrics"
	"github.com/MeKo-Tech/tilemap/internal/projection"
	"github.com/MeKo-Tech/tilemap/internal/rastercache"
	"github.com/MeKo-Tech/tilemap/internal/store"
	"github.com/MeKo-Tech/tilemap/internal/tile"
	"github.com/MeKo-Tech/tilemap/internal/types"
	"github.com/MeKo-Tech/tilemap/internal/worker"
	"github.com/MeKo-Tech/tilemap/internal/zoom"
)

var (
	// ErrNoRouteSource is returned by Route on a cache miss without a source.
	ErrNoRouteSource = errors.New("route not cached and no route source given")
	// ErrNoFetcher is returned by Prefetch when the map has no tile fetcher.
	ErrNoFetcher = errors.New("map has no tile fetcher")
	// ErrMapTypeMismatch is returned for tasks of another map type.
	ErrMapTypeMismatch = errors.New("map type mismatch")
	// ErrUnknownMap is returned by OpenSaved for maps that were never saved.
	ErrUnknownMap = errors.New("unknown map")
)

// RouteSource fetches a route payload from a routing service.
type RouteSource interface {
	Route(ctx context.Context, dest string, mode journey.TravelMode) ([]byte, error)
}

// Config holds the per-map settings.
type Config struct {
	MapType  rastercache.MapType
	Origin   types.GeoCoordinate
	MinZoom  float64
	MaxZoom  float64
	BaseZoom float64
	// Tolerance is the zoom distance under which two levels are equal.
	Tolerance float64
	// LatitudeLimit bounds tile covers (defaults to projection.MaxLatitude).
	LatitudeLimit float64
	// ImageFormat is the file extension of fetched tiles (default "png").
	ImageFormat string
}

// DefaultConfig returns the default map settings.
func DefaultConfig() Config {
	return Config{
		MapType:       rastercache.Roadmap,
		MinZoom:       0,
		MaxZoom:       20,
		BaseZoom:      10,
		Tolerance:     rastercache.DefaultTolerance,
		LatitudeLimit: projection.MaxLatitude,
		ImageFormat:   "png",
	}
}

// Option configures a Map.
type Option func(*Map)

// WithPersister sets where the map is loaded from and saved to.
func WithPersister(p store.Persister) Option {
	return func(m *Map) { m.persister = p }
}

// WithImages sets the store receiving fetched tile images.
func WithImages(s imagestore.Store) Option {
	return func(m *Map) { m.images = s }
}

// WithFetcher enables Prefetch.
func WithFetcher(f datasource.Fetcher) Option {
	return func(m *Map) { m.fetcher = f }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Map) { m.logger = l }
}

// Map is one named map instance. It exclusively owns its raster cache and
// journey cache; every mutation goes through it.
type Map struct {
	name      string
	cfg       Config
	tiles     *rastercache.Cache
	journeys  *journey.Cache
	engine    *zoom.Engine
	projector *projection.LocalProjector
	persister store.Persister
	images    imagestore.Store
	fetcher   datasource.Fetcher
	logger    *slog.Logger
}

var _ worker.Prefetcher = (*Map)(nil)

// New creates an empty map. Without options it persists and stores images
// in memory.
func New(name string, cfg Config, opts ...Option) *Map {
	if !cfg.MapType.Valid() {
		cfg.MapType = rastercache.Roadmap
	}
	if cfg.LatitudeLimit <= 0 || cfg.LatitudeLimit > projection.MaxLatitude {
		cfg.LatitudeLimit = projection.MaxLatitude
	}
	if cfg.ImageFormat == "" {
		cfg.ImageFormat = "png"
	}

	m := &Map{
		name:      name,
		cfg:       cfg,
		tiles:     rastercache.New(cfg.MapType, cfg.Tolerance),
		journeys:  journey.NewCache(),
		projector: projection.NewLocalProjector(cfg.Origin),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.persister == nil {
		m.persister = store.NewMemoryStore()
	}
	if m.images == nil {
		m.images = imagestore.NewMemoryStore()
	}

	m.engine = zoom.NewEngine(m.tiles, zoom.Config{
		MinZoom:   cfg.MinZoom,
		MaxZoom:   cfg.MaxZoom,
		BaseZoom:  cfg.BaseZoom,
		Tolerance: m.tiles.Tolerance(),
		Logger:    m.log().With("map", name),
	})
	return m
}

// Open creates a map and loads its saved state. A map that was never saved
// opens empty.
func Open(ctx context.Context, name string, cfg Config, opts ...Option) (*Map, error) {
	if err := store.ValidateName(name); err != nil {
		return nil, err
	}
	m := New(name, cfg, opts...)
	if err := m.Reload(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// OpenSaved is Open for maps that must already exist in the persister. A map
// that was never saved returns ErrUnknownMap.
func OpenSaved(ctx context.Context, name string, cfg Config, opts ...Option) (*Map, error) {
	if err := store.ValidateName(name); err != nil {
		return nil, err
	}
	m := New(name, cfg, opts...)
	if err := m.load(ctx, true); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Map) log() *slog.Logger {
	if m.logger != nil {
		return m.logger
	}
	return slog.Default()
}

// Name returns the map name.
func (m *Map) Name() string { return m.name }

// Config returns the map settings.
func (m *Map) Config() Config { return m.cfg }

// MapType returns the imagery flavor of the map.
func (m *Map) MapType() rastercache.MapType { return m.cfg.MapType }

// Tiles returns the raster cache for read access.
func (m *Map) Tiles() *rastercache.Cache { return m.tiles }

// Journeys returns the journey cache for read access.
func (m *Map) Journeys() *journey.Cache { return m.journeys }

// Engine returns the zoom engine.
func (m *Map) Engine() *zoom.Engine { return m.engine }

// Projector returns the local projector anchored at the map origin.
func (m *Map) Projector() *projection.LocalProjector { return m.projector }

// Images returns the image store.
func (m *Map) Images() imagestore.Store { return m.images }

// AddScalable registers elements whose scale follows the zoom.
func (m *Map) AddScalable(elements ...zoom.Scalable) {
	m.engine.Add(elements...)
}

// SetZoom moves the map to the requested zoom.
func (m *Map) SetZoom(requested float64) (zoom.Result, error) {
	res, err := m.engine.SetZoom(requested)
	switch {
	case errors.Is(err, zoom.ErrRegenerating):
		metrics.ZoomChanges.WithLabelValues(m.name, "rejected").Inc()
	case err != nil:
		metrics.ZoomChanges.WithLabelValues(m.name, "error").Inc()
	case res.Regenerated:
		metrics.ZoomChanges.WithLabelValues(m.name, "regenerated").Inc()
	default:
		metrics.ZoomChanges.WithLabelValues(m.name, "stable").Inc()
	}
	return res, err
}

// Cover returns the tiles covering bbox at zoom within the map's latitude limit.
func (m *Map) Cover(bbox types.BoundingBox, z int) tile.Set {
	return tile.Cover(bbox, z, m.cfg.LatitudeLimit)
}

// LookupTile returns the image of tile-set entry name at zoom.
func (m *Map) LookupTile(name string, z float64) (rastercache.ResourceRef, bool) {
	ref, ok := m.tiles.Lookup(name, z)
	metrics.TileLookups.WithLabelValues(m.name, metrics.Result(ok)).Inc()
	return ref, ok
}

// LookupSlippy returns the cached image of a fetched slippy tile.
func (m *Map) LookupSlippy(id tile.CanonicalID) (rastercache.ResourceRef, bool) {
	ref, ok := m.tiles.LookupSlippy(id)
	metrics.TileLookups.WithLabelValues(m.name, metrics.Result(ok)).Inc()
	return ref, ok
}

// UpsertTile records ref for (name, zoom). It reports whether a new level
// was created.
func (m *Map) UpsertTile(name string, z float64, ref rastercache.ResourceRef) bool {
	metrics.TileUpserts.WithLabelValues(m.name).Inc()
	return m.tiles.Upsert(name, z, ref)
}

// StoreTile writes a fetched image and records it among the slippy tiles of
// the raster cache. Slippy tiles never become cached zoom levels.
func (m *Map) StoreTile(id tile.CanonicalID, data []byte) (rastercache.ResourceRef, error) {
	if !id.Valid() {
		return "", fmt.Errorf("invalid tile %s", id)
	}
	ref := imagestore.TileRef(m.cfg.MapType, id, m.cfg.ImageFormat)
	if err := m.images.Put(ref, data); err != nil {
		return "", fmt.Errorf("failed to store tile %s: %w", id, err)
	}
	metrics.TileUpserts.WithLabelValues(m.name).Inc()
	m.tiles.PutSlippy(id, ref)
	return ref, nil
}

// OnTileFetched receives the completion of an asynchronous fetch. Failed
// fetches leave the cache untouched.
func (m *Map) OnTileFetched(id tile.CanonicalID, data []byte, err error) {
	if err != nil {
		m.log().Warn("Tile fetch failed", "map", m.name, "tile", id.String(), "error", err)
		return
	}
	if _, err := m.StoreTile(id, data); err != nil {
		m.log().Error("Failed to store fetched tile", "map", m.name, "tile", id.String(), "error", err)
	}
}

// Prefetch implements worker.Prefetcher. Tiles already cached with an
// existing image are skipped unless the task is forced.
func (m *Map) Prefetch(ctx context.Context, task worker.Task) (rastercache.ResourceRef, bool, error) {
	if task.MapType != "" && task.MapType != m.cfg.MapType {
		return "", false, fmt.Errorf("%w: map %s holds %s tiles, task wants %s", ErrMapTypeMismatch, m.name, m.cfg.MapType, task.MapType)
	}
	if !task.Force {
		if ref, ok := m.tiles.LookupSlippy(task.Tile); ok && m.images.Exists(ref) {
			return ref, true, nil
		}
	}
	if m.fetcher == nil {
		return "", false, ErrNoFetcher
	}

	data, err := m.fetcher.Fetch(ctx, m.cfg.MapType, task.Tile)
	if err != nil {
		return "", false, err
	}
	ref, err := m.StoreTile(task.Tile, data)
	return ref, false, err
}

// PrefetchTasks lists the tasks covering bbox over a zoom range.
func (m *Map) PrefetchTasks(bbox types.BoundingBox, zoomMin, zoomMax int, force bool) []worker.Task {
	return worker.Tasks(m.cfg.MapType, tile.CoverRange(bbox, zoomMin, zoomMax, m.cfg.LatitudeLimit), force)
}

// Route returns the cached route to dest, fetching and caching it from src
// on a miss.
func (m *Map) Route(ctx context.Context, dest string, mode journey.TravelMode, src RouteSource) ([]byte, error) {
	if payload, ok := m.journeys.GetRoute(dest, mode); ok {
		metrics.JourneyLookups.WithLabelValues(m.name, "hit").Inc()
		return payload, nil
	}
	metrics.JourneyLookups.WithLabelValues(m.name, "miss").Inc()

	if src == nil {
		return nil, ErrNoRouteSource
	}
	payload, err := src.Route(ctx, dest, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch route to %s (%s): %w", dest, mode, err)
	}
	m.journeys.PutRoute(dest, mode, payload)
	m.log().Debug("Cached route", "map", m.name, "dest", dest, "mode", mode, "bytes", len(payload))
	return payload, nil
}

// RouteLocal returns the route to dest as offsets around the map origin.
func (m *Map) RouteLocal(ctx context.Context, dest string, mode journey.TravelMode, src RouteSource) ([]projection.LocalOffset, error) {
	payload, err := m.Route(ctx, dest, mode, src)
	if err != nil {
		return nil, err
	}
	route, err := journey.DecodeRoute(payload)
	if err != nil {
		return nil, err
	}
	return route.Local(m.projector)
}

// CaptureExtents stores the screen extents of an existing journey. It
// reports false, changing nothing, when the journey is not cached.
func (m *Map) CaptureExtents(dest string, mode journey.TravelMode, point journey.ScreenPoint, zoomLevel int) bool {
	ok := m.journeys.PutExtents(dest, mode, point, zoomLevel)
	if !ok {
		m.log().Debug("Ignored extents for uncached journey", "map", m.name, "dest", dest, "mode", mode)
	}
	return ok
}

// Snapshot captures the current cache content.
func (m *Map) Snapshot() store.Snapshot {
	return store.Snapshot{
		Map:      m.name,
		MapType:  m.cfg.MapType,
		TileSets: m.tiles.Sets(),
		Tiles:    m.tiles.Slippy(),
		Journeys: m.journeys.Entries(),
		SavedAt:  time.Now().UTC(),
	}
}

// Save persists the caches. A failure is returned and leaves memory as is.
func (m *Map) Save(ctx context.Context) error {
	snap := m.Snapshot()
	err := m.persister.Save(ctx, snap)
	metrics.StoreOperations.WithLabelValues("save", metrics.Status(err)).Inc()
	if err != nil {
		return fmt.Errorf("failed to save map %s: %w", m.name, err)
	}
	m.log().Info("Saved map", "map", m.name, "tile_sets", len(snap.TileSets), "tiles", len(snap.Tiles), "journeys", len(snap.Journeys))
	return nil
}

// Reload replaces the caches with the persisted state and resets the zoom
// engine. A map that was never saved reloads empty. On any other failure the
// caches are left empty and the error is returned.
func (m *Map) Reload(ctx context.Context) error {
	return m.load(ctx, false)
}

func (m *Map) load(ctx context.Context, requireSaved bool) error {
	snap, err := m.persister.Load(ctx, m.name)
	if errors.Is(err, store.ErrNotFound) && requireSaved {
		m.reset(store.Snapshot{})
		return fmt.Errorf("%w: %s", ErrUnknownMap, m.name)
	}
	if errors.Is(err, store.ErrNotFound) {
		metrics.StoreOperations.WithLabelValues("load", "ok").Inc()
		m.reset(store.Snapshot{})
		return nil
	}
	metrics.StoreOperations.WithLabelValues("load", metrics.Status(err)).Inc()
	if err != nil {
		m.reset(store.Snapshot{})
		return fmt.Errorf("failed to load map %s: %w", m.name, err)
	}

	if snap.MapType != "" && snap.MapType != m.cfg.MapType {
		m.log().Warn("Saved map type differs from configuration", "map", m.name, "saved", snap.MapType, "configured", m.cfg.MapType)
	}
	m.reset(snap)
	m.log().Info("Loaded map", "map", m.name, "tile_sets", len(snap.TileSets), "tiles", len(snap.Tiles), "journeys", len(snap.Journeys))
	return nil
}

func (m *Map) reset(snap store.Snapshot) {
	m.tiles.Restore(snap.TileSets)
	m.tiles.RestoreSlippy(snap.Tiles)
	m.journeys.Restore(snap.Journeys)
	m.engine.Reset()
}
