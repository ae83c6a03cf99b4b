package mbtiles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MeKo-Tech/tilemap/internal/imagestore"
	"github.com/MeKo-Tech/tilemap/internal/rastercache"
)

// ExportStats summarizes an export.
type ExportStats struct {
	Written int
	Missing int
	Skipped int
}

// Export writes the fetched slippy tiles into a new archive at path. Tiles
// with ids outside their zoom grid are skipped.
func Export(ctx context.Context, path string, meta Metadata, tiles []rastercache.SlippyTile, images imagestore.Store, logger *slog.Logger) (ExportStats, error) {
	if logger == nil {
		logger = slog.Default()
	}

	w, err := Create(path, meta)
	if err != nil {
		return ExportStats{}, err
	}

	var stats ExportStats
	for _, t := range tiles {
		if err := ctx.Err(); err != nil {
			w.Close()
			return stats, err
		}

		id := t.ID
		if !id.Valid() {
			stats.Skipped++
			continue
		}

		data, err := images.Get(t.Ref)
		if errors.Is(err, imagestore.ErrNotFound) {
			logger.Warn("Cached tile image missing", "tile", id.String(), "ref", t.Ref)
			stats.Missing++
			continue
		}
		if err != nil {
			w.Close()
			return stats, fmt.Errorf("failed to read tile %s: %w", id, err)
		}

		if err := w.Put(id, data); err != nil {
			w.Close()
			return stats, err
		}
		stats.Written++
	}

	if err := w.Close(); err != nil {
		return stats, err
	}

	logger.Info("Exported MBTiles", "path", path, "tiles", stats.Written, "missing", stats.Missing, "skipped", stats.Skipped)
	return stats, nil
}
