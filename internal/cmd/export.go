package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/tilemap/internal/mbtiles"
	"github.com/MeKo-Tech/tilemap/internal/types"
)

var exportCmd = &cobra.Command{
	Use:     "export",
	Aliases: []string{"convert"},
	Short:   "Export a map's cached tiles to MBTiles",
	Long: `Write every fetched slippy tile of a map into an MBTiles archive. Zoom
range, bounds and center are derived from the exported tiles unless --bounds
is given.`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringP("output", "o", "", "Output MBTiles file path (required)")
	exportCmd.Flags().String("name", "", "Tileset name (defaults to the map name)")
	exportCmd.Flags().String("description", "Cached map tiles", "Tileset description")
	exportCmd.Flags().String("attribution", "© OpenStreetMap contributors", "Attribution text")
	exportCmd.Flags().String("bounds", "", "Bounding box: minLon,minLat,maxLon,maxLat (optional)")

	bindFlags := []struct {
		key  string
		flag string
	}{
		{"export.output", "output"},
		{"export.name", "name"},
		{"export.description", "description"},
		{"export.attribution", "attribution"},
		{"export.bounds", "bounds"},
	}

	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, exportCmd.Flags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

func runExport(cmd *cobra.Command, args []string) (err error) {
	outputFile := viper.GetString("export.output")
	name := viper.GetString("export.name")
	boundsStr := viper.GetString("export.bounds")

	if outputFile == "" {
		return fmt.Errorf("--output is required")
	}

	var bounds types.BoundingBox
	if boundsStr != "" {
		parsed, err := parseBBox(boundsStr)
		if err != nil {
			return fmt.Errorf("invalid bounds: %w", err)
		}
		bounds = types.NewBoundingBox(parsed)
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
	if name == "" {
		name = m.Name()
	}

	meta := mbtiles.Metadata{
		Name:        name,
		Format:      m.Config().ImageFormat,
		Attribution: viper.GetString("export.attribution"),
		Description: viper.GetString("export.description"),
		Type:        "baselayer",
		Version:     "1.0",
		Bounds:      bounds,
	}

	tiles := m.Tiles().Slippy()
	logger.Info("Exporting map to MBTiles", "map", m.Name(), "output", outputFile, "tiles", len(tiles))

	stats, err := mbtiles.Export(ctx, outputFile, meta, tiles, m.Images(), logger)
	if err != nil {
		return fmt.Errorf("failed to export %s: %w", m.Name(), err)
	}
	if stats.Written == 0 {
		return fmt.Errorf("no cached tiles to export in map %s", m.Name())
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d tiles to %s (%d missing images, %d invalid tiles skipped)\n",
		stats.Written, outputFile, stats.Missing, stats.Skipped)
	return nil
}
