package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MeKo-Tech/tilemap/internal/datasource"
	"github.com/MeKo-Tech/tilemap/internal/geomap"
	"github.com/MeKo-Tech/tilemap/internal/rastercache"
	"github.com/MeKo-Tech/tilemap/internal/store"
	"github.com/MeKo-Tech/tilemap/internal/tile"
)

type OnDemandTilesConfig struct {
	CacheControl string
	// FetchMissing fetches tiles absent from the raster cache through the
	// fetch queue and caches them before serving.
	FetchMissing bool
	FetchTimeout time.Duration
}

// OnDemandTiles serves slippy tiles of the registry's maps from their raster
// caches, optionally fetching missing tiles upstream.
type OnDemandTiles struct {
	maps       *geomap.Registry
	fetchQueue *datasource.FetchQueue
	cfg        OnDemandTilesConfig
	logger     *slog.Logger
	locks      sync.Map

	totalServed   atomic.Int64
	totalFetched  atomic.Int64
	totalFailed   atomic.Int64
	activeFetches atomic.Int32
	currentTiles  sync.Map // tile key -> start time
}

// TileStatus represents the current status of the tile server.
type TileStatus struct {
	Fetch *datasource.FetchQueueStatus `json:"fetch,omitempty"`
	Serve ServeStatus                  `json:"serve"`
	Maps  []string                     `json:"maps"`
}

// ServeStatus counts served and fetched tiles.
type ServeStatus struct {
	TotalServed   int64    `json:"total_served"`
	TotalFetched  int64    `json:"total_fetched"`
	TotalFailed   int64    `json:"total_failed"`
	ActiveFetches int      `json:"active_fetches"`
	CurrentTiles  []string `json:"current_tiles"`
}

// NewOnDemandTiles creates the tile handler. fetchQueue may be nil, in which
// case missing tiles are always 404.
func NewOnDemandTiles(maps *geomap.Registry, fetchQueue *datasource.FetchQueue, cfg OnDemandTilesConfig, logger *slog.Logger) *OnDemandTiles {
	if cfg.CacheControl == "" {
		cfg.CacheControl = "no-store"
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = time.Minute
	}
	return &OnDemandTiles{
		maps:       maps,
		fetchQueue: fetchQueue,
		cfg:        cfg,
		logger:     logger,
	}
}

// Status returns the current status of the tile server.
func (t *OnDemandTiles) Status() TileStatus {
	current := []string{}
	t.currentTiles.Range(func(key, _ any) bool {
		current = append(current, key.(string))
		return true
	})
	sort.Strings(current)

	status := TileStatus{
		Serve: ServeStatus{
			TotalServed:   t.totalServed.Load(),
			TotalFetched:  t.totalFetched.Load(),
			TotalFailed:   t.totalFailed.Load(),
			ActiveFetches: int(t.activeFetches.Load()),
			CurrentTiles:  current,
		},
		Maps: t.maps.Names(),
	}
	if t.fetchQueue != nil {
		fetchStatus := t.fetchQueue.Status()
		status.Fetch = &fetchStatus
	}
	return status
}

// StatusHandler returns an HTTP handler for the status endpoint (JSON).
func (t *OnDemandTiles) StatusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, t.Status())
	})
}

// Handler serves GET /tiles/{map}/{maptype}/{tile}. Maps that are neither
// loaded nor saved are 404.
func (t *OnDemandTiles) Handler() http.Handler {
	return http.HandlerFunc(t.serveTile)
}

func (t *OnDemandTiles) serveTile(w http.ResponseWriter, r *http.Request) {
	mapType, err := rastercache.ParseMapType(r.PathValue("maptype"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	id, ok := parseTileName(r.PathValue("tile"))
	if !ok {
		http.NotFound(w, r)
		return
	}

	m, err := t.maps.OpenExisting(r.Context(), r.PathValue("map"))
	if err != nil {
		if errors.Is(err, store.ErrInvalidName) || errors.Is(err, geomap.ErrUnknownMap) {
			http.NotFound(w, r)
			return
		}
		t.log().Error("failed to open map", "map", r.PathValue("map"), "error", err)
		http.Error(w, "failed to open map", http.StatusInternalServerError)
		return
	}
	if m.MapType() != mapType {
		http.Error(w, fmt.Sprintf("map %s holds %s tiles", m.Name(), m.MapType()), http.StatusNotFound)
		return
	}

	w.Header().Set("Cache-Control", t.cfg.CacheControl)

	if data, ok := t.cached(m, id); ok {
		t.write(w, data)
		return
	}
	if !t.cfg.FetchMissing || t.fetchQueue == nil {
		http.Error(w, fmt.Sprintf("tile not found: %s", id), http.StatusNotFound)
		return
	}

	key := m.Name() + "/" + id.String()
	mu := t.getLock(key)
	mu.Lock()
	defer mu.Unlock()

	if data, ok := t.cached(m, id); ok {
		t.write(w, data)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), t.cfg.FetchTimeout)
	defer cancel()

	start := time.Now()
	t.activeFetches.Add(1)
	t.currentTiles.Store(key, start)
	data, err := t.fetchQueue.SubmitAndWait(ctx, mapType, id)
	t.activeFetches.Add(-1)
	t.currentTiles.Delete(key)

	if err != nil {
		t.totalFailed.Add(1)
		t.log().Error("failed to fetch tile", "map", m.Name(), "tile", id.String(), "error", err)
		http.Error(w, fmt.Sprintf("failed to fetch tile %s: %v", id, err), http.StatusBadGateway)
		return
	}
	if _, err := m.StoreTile(id, data); err != nil {
		t.log().Error("failed to store tile", "map", m.Name(), "tile", id.String(), "error", err)
	}
	t.totalFetched.Add(1)
	t.log().Info("tile fetched on-demand", "map", m.Name(), "tile", id.String(), "ms", time.Since(start).Milliseconds())

	t.write(w, data)
}

// cached returns the image of id when the raster cache knows it and the
// image store still holds it.
func (t *OnDemandTiles) cached(m *geomap.Map, id tile.CanonicalID) ([]byte, bool) {
	ref, ok := m.LookupSlippy(id)
	if !ok {
		return nil, false
	}
	data, err := m.Images().Get(ref)
	if err != nil {
		t.log().Warn("cached tile image unavailable", "map", m.Name(), "ref", string(ref), "error", err)
		return nil, false
	}
	return data, true
}

func (t *OnDemandTiles) write(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", http.DetectContentType(data))
	if _, err := w.Write(data); err != nil {
		t.log().Error("failed to write response", "error", err)
		return
	}
	t.totalServed.Add(1)
}

func (t *OnDemandTiles) getLock(key string) *sync.Mutex {
	if v, ok := t.locks.Load(key); ok {
		return v.(*sync.Mutex)
	}
	mu := &sync.Mutex{}
	actual, _ := t.locks.LoadOrStore(key, mu)
	return actual.(*sync.Mutex)
}

func (t *OnDemandTiles) log() *slog.Logger {
	if t.logger != nil {
		return t.logger
	}
	return slog.Default()
}

// parseTileName parses a tile file name like z13_x4317_y2692.png.
func parseTileName(name string) (tile.CanonicalID, bool) {
	if !strings.HasSuffix(name, ".png") {
		return tile.CanonicalID{}, false
	}
	id, err := tile.ParseCoords(strings.TrimSuffix(name, ".png"))
	if err != nil {
		return tile.CanonicalID{}, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("failed to encode response", "error", err)
	}
}
