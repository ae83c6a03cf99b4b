// Package datasource fetches tile images and routes from upstream services.
package datasource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/webp" // register WebP decoder

	"github.com/MeKo-Tech/tilemap/internal/metrics"
	"github.com/MeKo-Tech/tilemap/internal/rastercache"
	"github.com/MeKo-Tech/tilemap/internal/tile"
)

var (
	// ErrNoTemplate is returned when no URL template is configured for a map type.
	ErrNoTemplate = errors.New("no tile URL template for map type")
	// ErrInvalidImage is returned when an upstream body is not a decodable image.
	ErrInvalidImage = errors.New("invalid tile image")
)

// DefaultUserAgent identifies tile requests upstream.
const DefaultUserAgent = "tilemap/1.0 (+https://github.com/MeKo-Tech/tilemap)"

// TileSourceConfig configures a TileSource.
type TileSourceConfig struct {
	// Templates maps a map type to a URL template with {z}, {x}, {y} and
	// {-y} (TMS row) placeholders.
	Templates  map[rastercache.MapType]string
	UserAgent  string
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
	Logger     *slog.Logger
}

// TileSource fetches tile images over HTTP.
type TileSource struct {
	client *http.Client
	cfg    TileSourceConfig
}

// NewTileSource creates a fetcher. Retries counts extra attempts after the
// first. Zero timeout and delay select 30s and 500ms; the delay doubles per
// attempt.
func NewTileSource(cfg TileSourceConfig) *TileSource {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}

	return &TileSource{
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		cfg: cfg,
	}
}

func (s *TileSource) log() *slog.Logger {
	if s.cfg.Logger != nil {
		return s.cfg.Logger
	}
	return slog.Default()
}

// URL expands the template of mapType for id.
func (s *TileSource) URL(mapType rastercache.MapType, id tile.CanonicalID) (string, error) {
	tmpl, ok := s.cfg.Templates[mapType]
	if !ok || tmpl == "" {
		return "", fmt.Errorf("%w: %s", ErrNoTemplate, mapType)
	}
	return ExpandTemplate(tmpl, id), nil
}

// ExpandTemplate substitutes tile placeholders in tmpl.
func ExpandTemplate(tmpl string, id tile.CanonicalID) string {
	url := strings.ReplaceAll(tmpl, "{z}", strconv.Itoa(id.Z))
	url = strings.ReplaceAll(url, "{x}", strconv.Itoa(id.X))
	url = strings.ReplaceAll(url, "{y}", strconv.Itoa(id.Y))
	url = strings.ReplaceAll(url, "{-y}", strconv.Itoa((1<<id.Z)-1-id.Y))
	return url
}

// Fetch downloads and validates the image of id, retrying transient failures
// with exponential backoff. It returns early when ctx is done.
func (s *TileSource) Fetch(ctx context.Context, mapType rastercache.MapType, id tile.CanonicalID) ([]byte, error) {
	url, err := s.URL(mapType, id)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() { metrics.TileFetchDuration.Observe(time.Since(start).Seconds()) }()

	var lastErr error
	delay := s.cfg.RetryDelay
	for attempt := 0; attempt <= s.cfg.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
				delay *= 2
			}
		}

		data, err := s.fetchOnce(ctx, url)
		if err == nil {
			if _, err = ValidateImage(data); err == nil {
				return data, nil
			}
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		s.log().Debug("Tile fetch attempt failed", "tile", id.String(), "attempt", attempt+1, "error", err)
	}

	return nil, fmt.Errorf("failed to fetch tile %s after %d attempts: %w", id, s.cfg.Retries+1, lastErr)
}

func (s *TileSource) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)
	req.Header.Set("Accept", "image/webp,image/png,image/*,*/*;q=0.8")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tile server returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidImage)
	}
	return data, nil
}

// ValidateImage checks that data decodes as a PNG, JPEG, WebP or BMP image
// and returns the format name.
func ValidateImage(data []byte) (string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return "", fmt.Errorf("%w: zero-sized %s", ErrInvalidImage, format)
	}
	return format, nil
}
