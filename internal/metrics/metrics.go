// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TileLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tilemap_tile_lookups_total",
		Help: "Tile raster cache lookups by result (hit, miss)",
	}, []string{"map", "result"})

	TileUpserts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tilemap_tile_upserts_total",
		Help: "Tile raster cache writes",
	}, []string{"map"})

	TileFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tilemap_tile_fetches_total",
		Help: "Upstream tile fetches by outcome (ok, error, cancelled)",
	}, []string{"outcome"})

	TileFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tilemap_tile_fetch_duration_seconds",
		Help:    "Duration of upstream tile fetches in seconds",
		Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	})

	ZoomChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tilemap_zoom_changes_total",
		Help: "Zoom requests by outcome (stable, regenerated, rejected, error)",
	}, []string{"map", "outcome"})

	JourneyLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tilemap_journey_lookups_total",
		Help: "Journey cache lookups by result (hit, miss)",
	}, []string{"map", "result"})

	RouteFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tilemap_route_fetch_duration_seconds",
		Help:    "Duration of upstream route fetches in seconds",
		Buckets: prometheus.DefBuckets,
	})

	StoreOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tilemap_store_operations_total",
		Help: "Persistence operations by kind (load, save) and status (ok, error)",
	}, []string{"op", "status"})

	LoadedMaps = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tilemap_loaded_maps",
		Help: "Number of maps held by the registry",
	})
)

// Result maps a cache lookup outcome to its label value.
func Result(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}

// Status maps an error to its label value.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
