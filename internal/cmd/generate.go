package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/tilemap/internal/tileset"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate the cached zoom levels of a map image",
	Long: `Generate one image per zoom level from a source map image. The source is
taken as the --zoom-max level and halved per zoom step below it. The images
are written to the image folder and recorded in the map's raster cache under
--name.`,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringP("image", "i", "", "Source image (png, jpeg, webp, bmp)")
	generateCmd.Flags().String("name", "", "Tile set name (defaults to the map name)")
	generateCmd.Flags().String("source", "", "Geographic rectangle of the image: minLon,minLat,maxLon,maxLat")
	generateCmd.Flags().Float64("zoom-min", 10, "Lowest zoom level to generate")
	generateCmd.Flags().Float64("zoom-max", 14, "Zoom level of the source image")
	generateCmd.Flags().Float64("step", 1, "Zoom step between generated levels")

	bindFlags := []struct {
		key  string
		flag string
	}{
		{"generate.image", "image"},
		{"generate.name", "name"},
		{"generate.source", "source"},
		{"generate.zoom_min", "zoom-min"},
		{"generate.zoom_max", "zoom-max"},
		{"generate.step", "step"},
	}

	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, generateCmd.Flags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

func runGenerate(cmd *cobra.Command, args []string) (err error) {
	imagePath := viper.GetString("generate.image")
	name := viper.GetString("generate.name")
	sourceStr := viper.GetString("generate.source")

	if imagePath == "" {
		return fmt.Errorf("--image is required")
	}
	var source [4]float64
	if sourceStr != "" {
		parsed, err := parseBBox(sourceStr)
		if err != nil {
			return fmt.Errorf("invalid source: %w", err)
		}
		source = parsed
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

	img, err := tileset.Load(imagePath)
	if err != nil {
		return err
	}

	opts := tileset.Options{
		Name:    name,
		MapType: m.MapType(),
		Source:  source,
		MinZoom: viper.GetFloat64("generate.zoom_min"),
		MaxZoom: viper.GetFloat64("generate.zoom_max"),
		Step:    viper.GetFloat64("generate.step"),
		Logger:  logger,
	}
	logger.Info("Generating tile set",
		"map", m.Name(),
		"name", name,
		"image", imagePath,
		"size", fmt.Sprintf("%dx%d", img.Bounds().Dx(), img.Bounds().Dy()),
		"zoom_min", opts.MinZoom,
		"zoom_max", opts.MaxZoom,
	)

	set, err := tileset.Generate(ctx, img, opts, a.images)
	if err != nil {
		return fmt.Errorf("failed to generate tile set: %w", err)
	}

	if err := m.Tiles().Define(set.Name, set.MapType, set.Source); err != nil {
		return err
	}
	for _, level := range set.Levels {
		m.UpsertTile(set.Name, level.Zoom, level.Ref)
	}

	logger.Info("Tile set generated", "name", set.Name, "levels", len(set.Levels), "images", a.images.Root())
	return nil
}
