package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/viper"

	"github.com/MeKo-Tech/tilemap/internal/config"
	"github.com/MeKo-Tech/tilemap/internal/datasource"
	"github.com/MeKo-Tech/tilemap/internal/geomap"
	"github.com/MeKo-Tech/tilemap/internal/imagestore"
	"github.com/MeKo-Tech/tilemap/internal/store"
)

// app wires the configured store, image folder and tile source into a map
// registry for one command run.
type app struct {
	cfg      *config.Config
	images   *imagestore.FolderStore
	source   *datasource.TileSource
	registry *geomap.Registry
}

func newApp(ctx context.Context) (*app, error) {
	if logger == nil {
		initLogging()
	}

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	persister, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Driver, err)
	}

	images := imagestore.NewFolderStore(cfg.Map.ImageDir)
	source := datasource.NewTileSource(cfg.TileSource(logger))
	registry := geomap.NewRegistry(cfg.MapSettings(), persister, logger,
		geomap.WithImages(images),
		geomap.WithFetcher(source),
	)

	logger.Debug("Opened store", "driver", cfg.Store.Driver, "path", cfg.Store.Path, "images", cfg.Map.ImageDir)
	return &app{cfg: cfg, images: images, source: source, registry: registry}, nil
}

// openMap opens the map selected with --map.
func (a *app) openMap(ctx context.Context) (*geomap.Map, error) {
	return a.registry.Open(ctx, a.cfg.Map.Name)
}

// routes returns the configured route source, or nil when fetch.route_url
// is unset.
func (a *app) routes() geomap.RouteSource {
	if a.cfg.Fetch.RouteURL == "" {
		return nil
	}
	return datasource.NewHTTPRouteSource(a.cfg.Fetch.RouteURL, a.cfg.Origin(), a.cfg.Fetch.Timeout, logger)
}

// close saves every opened map and closes the store.
func (a *app) close(ctx context.Context) error {
	return a.registry.Close(ctx)
}

// closeInto closes the app and joins a save or close failure into *err. It
// is meant to be deferred by commands with a named error result.
func (a *app) closeInto(err *error) {
	*err = errors.Join(*err, a.close(context.Background()))
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Info("Received interrupt signal, cancelling...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// parseBBox parses a bounding box string "minLon,minLat,maxLon,maxLat" into [4]float64.
func parseBBox(s string) ([4]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return [4]float64{}, fmt.Errorf("expected 4 comma-separated values, got %d", len(parts))
	}

	var bbox [4]float64
	for i, part := range parts {
		val, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return [4]float64{}, fmt.Errorf("invalid number at position %d: %w", i, err)
		}
		bbox[i] = val
	}

	if bbox[0] >= bbox[2] {
		return [4]float64{}, fmt.Errorf("minLon (%.4f) must be < maxLon (%.4f)", bbox[0], bbox[2])
	}
	if bbox[1] >= bbox[3] {
		return [4]float64{}, fmt.Errorf("minLat (%.4f) must be < maxLat (%.4f)", bbox[1], bbox[3])
	}

	return bbox, nil
}
