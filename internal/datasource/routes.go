package datasource

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/tilemap/internal/journey"
	"github.com/MeKo-Tech/tilemap/internal/metrics"
	"github.com/MeKo-Tech/tilemap/internal/types"
)

// HTTPRouteSource fetches route payloads from a routing service.
type HTTPRouteSource struct {
	client    *http.Client
	template  string
	origin    types.GeoCoordinate
	userAgent string
	logger    *slog.Logger
}

// NewHTTPRouteSource creates a route fetcher. template may contain {dest},
// {mode} and {origin} ("lat,lon") placeholders. The response body must be a
// route payload as produced by journey.Route.Encode.
func NewHTTPRouteSource(template string, origin types.GeoCoordinate, timeout time.Duration, logger *slog.Logger) *HTTPRouteSource {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPRouteSource{
		client:    &http.Client{Timeout: timeout},
		template:  template,
		origin:    origin,
		userAgent: DefaultUserAgent,
		logger:    logger,
	}
}

func (s *HTTPRouteSource) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

// URL expands the template for a destination and mode.
func (s *HTTPRouteSource) URL(dest string, mode journey.TravelMode) string {
	origin := strconv.FormatFloat(s.origin.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(s.origin.Lon, 'f', -1, 64)
	u := strings.ReplaceAll(s.template, "{dest}", url.PathEscape(dest))
	u = strings.ReplaceAll(u, "{mode}", string(mode))
	u = strings.ReplaceAll(u, "{origin}", origin)
	return u
}

// Route fetches the route payload to dest.
func (s *HTTPRouteSource) Route(ctx context.Context, dest string, mode journey.TravelMode) ([]byte, error) {
	start := time.Now()
	defer func() { metrics.RouteFetchDuration.Observe(time.Since(start).Seconds()) }()

	u := s.URL(dest, mode)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch route: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("route service returned status %d", resp.StatusCode)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read route response: %w", err)
	}
	if _, err := journey.DecodeRoute(payload); err != nil {
		return nil, err
	}

	s.log().Debug("Fetched route", "dest", dest, "mode", mode, "bytes", len(payload), "duration_ms", time.Since(start).Milliseconds())
	return payload, nil
}
