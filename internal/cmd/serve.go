package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/tilemap/internal/datasource"
	"github.com/MeKo-Tech/tilemap/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve cached tiles, zoom and journey lookups over HTTP",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", ":8080", "Listen address (host:port)")
	serveCmd.Flags().Bool("on-demand", false, "Fetch tiles missing from the cache from the tile source")
	serveCmd.Flags().String("mbtiles", "", "Also serve this MBTiles archive under /mbtiles/")
	serveCmd.Flags().String("cache-control", "no-store", "Cache-Control header for served tiles")
	serveCmd.Flags().Duration("fetch-timeout", time.Minute, "Timeout per on-demand tile fetch")
	serveCmd.Flags().Duration("save-interval", 5*time.Minute, "Interval between periodic saves of open maps (0 disables)")

	mustBind := func(key string, name string) {
		if err := viper.BindPFlag(key, serveCmd.Flags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("failed to bind flag: %v", err))
		}
	}

	mustBind("serve.addr", "addr")
	mustBind("serve.on_demand", "on-demand")
	mustBind("serve.mbtiles", "mbtiles")
	mustBind("serve.cache_control", "cache-control")
	mustBind("serve.fetch_timeout", "fetch-timeout")
	mustBind("serve.save_interval", "save-interval")
}

func runServe(cmd *cobra.Command, args []string) (err error) {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.closeInto(&err)

	cfg := a.cfg.Serve
	// Open the configured map up front so a broken store fails at startup.
	if _, err := a.openMap(ctx); err != nil {
		return err
	}

	var fetchQueue *datasource.FetchQueue
	if cfg.OnDemand {
		fetchQueue = datasource.NewFetchQueue(a.source, a.cfg.FetchQueue(logger))
		fetchQueue.Start()
		defer fetchQueue.Stop()
	}

	tiles := server.NewOnDemandTiles(a.registry, fetchQueue, server.OnDemandTilesConfig{
		CacheControl: cfg.CacheControl,
		FetchMissing: cfg.OnDemand,
		FetchTimeout: cfg.FetchTimeout,
	}, logger)

	var mb *server.MBTilesHandler
	if cfg.MBTiles != "" {
		mb, err = server.NewMBTilesHandler(server.MBTilesConfig{MBTilesPath: cfg.MBTiles}, logger)
		if err != nil {
			return err
		}
		defer mb.Close()
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Routes(tiles, server.NewAPI(a.registry, a.routes(), logger), mb),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}

	if cfg.SaveInterval > 0 {
		go saveLoop(ctx, a, cfg.SaveInterval)
	}

	logger.Info("tile server listening",
		"addr", cfg.Addr,
		"map", a.cfg.Map.Name,
		"images_dir", a.cfg.Map.ImageDir,
		"on_demand", cfg.OnDemand,
		"mbtiles", cfg.MBTiles,
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	logger.Info("shutting down tile server")
	return srv.Shutdown(shutdownCtx)
}

func saveLoop(ctx context.Context, a *app, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.registry.SaveAll(ctx); err != nil {
				logger.Error("periodic save failed", "error", err)
			}
		}
	}
}
