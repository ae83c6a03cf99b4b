// Package tileset builds the zoom levels of a tile-set entry from one source
// image.
package tileset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"log/slog"
	"math"
	"os"

	"github.com/disintegration/gift"
	_ "golang.org/x/image/bmp"  // Register BMP decoder
	_ "golang.org/x/image/webp" // Register WebP decoder

	"github.com/MeKo-Tech/tilemap/internal/imagestore"
	"github.com/MeKo-Tech/tilemap/internal/rastercache"
)

// Options describe the entry to generate.
type Options struct {
	Name    string
	MapType rastercache.MapType
	// Source is the geographic rectangle of the image: minLon, minLat, maxLon, maxLat.
	Source [4]float64
	// The source image is taken as the MaxZoom level; each lower zoom halves it.
	MinZoom float64
	MaxZoom float64
	// Step between generated levels (default 1).
	Step   float64
	Logger *slog.Logger
}

func (o Options) validate() error {
	if o.Name == "" {
		return errors.New("tile set name is required")
	}
	if !o.MapType.Valid() {
		return rastercache.ErrUnknownMapType
	}
	if o.MinZoom > o.MaxZoom {
		return fmt.Errorf("min zoom %g is above max zoom %g", o.MinZoom, o.MaxZoom)
	}
	if o.Step < 0 {
		return fmt.Errorf("step must be positive, got %g", o.Step)
	}
	return nil
}

// Load decodes a PNG, JPEG, WebP or BMP source image from path.
func Load(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open source image %s: %w", path, err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode source image %s: %w", path, err)
	}
	return img, nil
}

// Zooms lists the levels Generate produces, from MaxZoom downwards, returned
// in ascending order.
func (o Options) Zooms() []float64 {
	step := o.Step
	if step == 0 {
		step = 1
	}
	var zooms []float64
	for z := o.MaxZoom; z >= o.MinZoom-1e-9; z -= step {
		zooms = append([]float64{z}, zooms...)
	}
	return zooms
}

// Generate scales src to every level of opts, stores each level as PNG in
// images and returns the resulting tile set.
func Generate(ctx context.Context, src image.Image, opts Options, images imagestore.Store) (rastercache.TileSet, error) {
	if err := opts.validate(); err != nil {
		return rastercache.TileSet{}, err
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	set := rastercache.TileSet{
		Name:    opts.Name,
		MapType: opts.MapType,
		Source:  opts.Source,
	}

	for _, zoom := range opts.Zooms() {
		if err := ctx.Err(); err != nil {
			return rastercache.TileSet{}, err
		}

		scaled := Scale(src, math.Exp2(zoom-opts.MaxZoom))

		var buf bytes.Buffer
		if err := png.Encode(&buf, scaled); err != nil {
			return rastercache.TileSet{}, fmt.Errorf("failed to encode level %g: %w", zoom, err)
		}

		ref := imagestore.LevelRef(opts.MapType, opts.Name, zoom, "png")
		if err := images.Put(ref, buf.Bytes()); err != nil {
			return rastercache.TileSet{}, fmt.Errorf("failed to store level %g: %w", zoom, err)
		}

		b := scaled.Bounds()
		log.Debug("Generated zoom level", "name", opts.Name, "zoom", zoom, "width", b.Dx(), "height", b.Dy(), "ref", ref)
		set.Levels = append(set.Levels, rastercache.CachedZoomLevel{Zoom: zoom, Ref: ref})
	}

	log.Info("Generated tile set", "name", opts.Name, "map_type", opts.MapType, "levels", len(set.Levels))
	return set, nil
}

// Scale resizes img by factor with Lanczos resampling. The result is never
// smaller than 1x1. A factor of 1 returns img unchanged.
func Scale(img image.Image, factor float64) image.Image {
	if factor == 1 {
		return img
	}
	b := img.Bounds()
	w := max(1, int(math.Round(float64(b.Dx())*factor)))
	h := max(1, int(math.Round(float64(b.Dy())*factor)))

	g := gift.New(gift.Resize(w, h, gift.LanczosResampling))
	dst := image.NewNRGBA(g.Bounds(b))
	g.Draw(dst, img)
	return dst
}
