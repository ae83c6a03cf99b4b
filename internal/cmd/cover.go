package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/tilemap/internal/geojson"
	"github.com/MeKo-Tech/tilemap/internal/projection"
	"github.com/MeKo-Tech/tilemap/internal/tile"
	"github.com/MeKo-Tech/tilemap/internal/types"
)

var coverCmd = &cobra.Command{
	Use:   "cover",
	Short: "List the tiles covering a bounding box",
	Long: `List the canonical tiles covering a bounding box over a zoom range.
Latitudes are clamped to the Mercator limit. Boxes crossing the anti-meridian
are not split.`,
	RunE: runCover,
}

func init() {
	rootCmd.AddCommand(coverCmd)

	coverCmd.Flags().String("bbox", "", "Bounding box: minLon,minLat,maxLon,maxLat (e.g., \"9.7,52.3,9.9,52.4\")")
	coverCmd.Flags().Int("zoom-min", 10, "Minimum zoom level")
	coverCmd.Flags().Int("zoom-max", 10, "Maximum zoom level")
	coverCmd.Flags().Bool("count", false, "Only print the number of tiles")
	coverCmd.Flags().String("ext", "", "Print tiles as z/x/y paths with this extension instead of names")
	coverCmd.Flags().Bool("geojson", false, "Print the tiles as a GeoJSON FeatureCollection of tile polygons")

	bindFlags := []struct {
		key  string
		flag string
	}{
		{"cover.bbox", "bbox"},
		{"cover.zoom_min", "zoom-min"},
		{"cover.zoom_max", "zoom-max"},
		{"cover.count", "count"},
		{"cover.ext", "ext"},
		{"cover.geojson", "geojson"},
	}

	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, coverCmd.Flags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

func runCover(cmd *cobra.Command, args []string) error {
	bboxStr := viper.GetString("cover.bbox")
	zoomMin := viper.GetInt("cover.zoom_min")
	zoomMax := viper.GetInt("cover.zoom_max")
	ext := viper.GetString("cover.ext")

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

	limit := viper.GetFloat64("engine.mercator_latitude_limit")
	if limit <= 0 {
		limit = projection.MaxLatitude
	}
	box := types.NewBoundingBox(bbox)

	out := cmd.OutOrStdout()
	if viper.GetBool("cover.count") {
		fmt.Fprintln(out, tile.Count(box, zoomMin, zoomMax, limit))
		return nil
	}

	ids := tile.CoverRange(box, zoomMin, zoomMax, limit)
	if viper.GetBool("cover.geojson") {
		data, err := geojson.Bytes(ids)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	for _, id := range ids {
		if ext != "" {
			fmt.Fprintln(out, id.Path(ext))
			continue
		}
		fmt.Fprintln(out, id.String())
	}
	return nil
}
