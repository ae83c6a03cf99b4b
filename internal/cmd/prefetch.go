package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/tilemap/internal/tile"
	"github.com/MeKo-Tech/tilemap/internal/types"
	"github.com/MeKo-Tech/tilemap/internal/worker"
)

var prefetchCmd = &cobra.Command{
	Use:   "prefetch",
	Short: "Fetch and cache the tiles covering a bounding box",
	Long: `Fetch the tiles covering a bounding box over a zoom range from the
configured tile source, store their images and record them in the map's raster
cache. Tiles that are already cached are skipped unless --force is given.`,
	RunE: runPrefetch,
}

func init() {
	rootCmd.AddCommand(prefetchCmd)

	prefetchCmd.Flags().String("bbox", "", "Bounding box: minLon,minLat,maxLon,maxLat (e.g., \"9.7,52.3,9.9,52.4\")")
	prefetchCmd.Flags().Int("zoom-min", 10, "Minimum zoom level")
	prefetchCmd.Flags().Int("zoom-max", 12, "Maximum zoom level")
	prefetchCmd.Flags().IntP("workers", "w", 0, "Number of parallel workers (default: number of CPUs)")
	prefetchCmd.Flags().Bool("progress", true, "Show progress bar while fetching")
	prefetchCmd.Flags().Bool("force", false, "Fetch tiles even if they are cached")
	prefetchCmd.Flags().Bool("allow-failures", false, "Succeed even if some tiles fail to fetch")

	bindFlags := []struct {
		key  string
		flag string
	}{
		{"prefetch.bbox", "bbox"},
		{"prefetch.zoom_min", "zoom-min"},
		{"prefetch.zoom_max", "zoom-max"},
		{"prefetch.workers", "workers"},
		{"prefetch.progress", "progress"},
		{"prefetch.force", "force"},
		{"prefetch.allow_failures", "allow-failures"},
	}

	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, prefetchCmd.Flags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

func runPrefetch(cmd *cobra.Command, args []string) (err error) {
	bboxStr := viper.GetString("prefetch.bbox")
	zoomMin := viper.GetInt("prefetch.zoom_min")
	zoomMax := viper.GetInt("prefetch.zoom_max")
	workers := viper.GetInt("prefetch.workers")
	showProgress := viper.GetBool("prefetch.progress")
	force := viper.GetBool("prefetch.force")
	allowFailures := viper.GetBool("prefetch.allow_failures")

	if bboxStr == "" {
		return fmt.Errorf("--bbox is required")
	}
	bbox, err := parseBBox(bboxStr)
	if err != nil {
		return fmt.Errorf("invalid bbox: %w", err)
	}
	if err := tile.ValidateZoomRange(zoomMin, zoomMax); err != nil {
		return err
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.closeInto(&err)

	m, err := a.openMap(ctx)
	if err != nil {
		return err
	}

	tasks := m.PrefetchTasks(types.NewBoundingBox(bbox), zoomMin, zoomMax, force)
	logger.Info("Starting prefetch",
		"map", m.Name(),
		"map_type", m.MapType(),
		"bbox", bboxStr,
		"zoom_min", zoomMin,
		"zoom_max", zoomMax,
		"tiles", len(tasks),
		"workers", workers,
	)

	progress := worker.NewProgress(len(tasks), showProgress)
	pool := worker.New(worker.Config{
		Workers:    workers,
		Prefetcher: m,
		OnProgress: progress.Callback(),
	})

	results := pool.Run(ctx, tasks)
	progress.Done()

	var failedCount int
	for _, r := range results {
		if r.Err != nil {
			failedCount++
			logger.Error("Tile fetch failed", "tile", r.Task.Tile.String(), "error", r.Err)
		}
	}

	logger.Info(progress.Summary())

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("prefetch interrupted: %w", err)
	}
	if failedCount > 0 {
		if !allowFailures {
			return fmt.Errorf("%d tiles failed to fetch", failedCount)
		}
		logger.Warn("Some tiles failed to fetch, but continuing due to --allow-failures flag", "failed_count", failedCount)
	}
	return nil
}
