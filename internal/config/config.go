// Package config loads the tilemap configuration from file, environment and
// flags.
package config

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/MeKo-Tech/tilemap/internal/datasource"
	"github.com/MeKo-Tech/tilemap/internal/geomap"
	"github.com/MeKo-Tech/tilemap/internal/projection"
	"github.com/MeKo-Tech/tilemap/internal/rastercache"
	"github.com/MeKo-Tech/tilemap/internal/store"
	"github.com/MeKo-Tech/tilemap/internal/types"
)

// EnvPrefix prefixes environment overrides: TILEMAP_ENGINE_MAX_ZOOM -> engine.max_zoom.
const EnvPrefix = "TILEMAP"

// Config holds all application configuration.
type Config struct {
	Engine EngineConfig `mapstructure:"engine"`
	Map    MapConfig    `mapstructure:"map"`
	Store  store.Config `mapstructure:"store"`
	Fetch  FetchConfig  `mapstructure:"fetch"`
	Serve  ServeConfig  `mapstructure:"serve"`
	Log    LogConfig    `mapstructure:"log"`
}

// EngineConfig bounds the zoom engine and tile covers.
type EngineConfig struct {
	MinZoom               int     `mapstructure:"min_zoom"`
	MaxZoom               int     `mapstructure:"max_zoom"`
	BaseZoom              int     `mapstructure:"base_zoom"`
	ZoomTolerance         float64 `mapstructure:"zoom_tolerance"`
	MercatorLatitudeLimit float64 `mapstructure:"mercator_latitude_limit"`
}

// MapConfig describes the default map.
type MapConfig struct {
	Name        string  `mapstructure:"name"`
	Type        string  `mapstructure:"type"`
	OriginLat   float64 `mapstructure:"origin_lat"`
	OriginLon   float64 `mapstructure:"origin_lon"`
	ImageDir    string  `mapstructure:"image_dir"`
	ImageFormat string  `mapstructure:"image_format"`
}

// FetchConfig configures upstream tile and route fetching.
type FetchConfig struct {
	// Templates maps a map type name to a tile URL template.
	Templates  map[string]string `mapstructure:"templates"`
	RouteURL   string            `mapstructure:"route_url"`
	UserAgent  string            `mapstructure:"user_agent"`
	Timeout    time.Duration     `mapstructure:"timeout"`
	Retries    int               `mapstructure:"retries"`
	RetryDelay time.Duration     `mapstructure:"retry_delay"`
	Workers    int               `mapstructure:"workers"`
	QueueSize  int               `mapstructure:"queue_size"`
}

// ServeConfig configures the HTTP server.
type ServeConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	OnDemand     bool          `mapstructure:"on_demand"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	CacheControl string        `mapstructure:"cache_control"`
	SaveInterval time.Duration `mapstructure:"save_interval"`
	MBTiles      string        `mapstructure:"mbtiles"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("engine.min_zoom", 0)
	v.SetDefault("engine.max_zoom", 20)
	v.SetDefault("engine.base_zoom", 10)
	v.SetDefault("engine.zoom_tolerance", rastercache.DefaultTolerance)
	v.SetDefault("engine.mercator_latitude_limit", projection.MaxLatitude)

	v.SetDefault("map.name", "default")
	v.SetDefault("map.type", string(rastercache.Roadmap))
	v.SetDefault("map.origin_lat", 0.0)
	v.SetDefault("map.origin_lon", 0.0)
	v.SetDefault("map.image_dir", "./tiles")
	v.SetDefault("map.image_format", "png")

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "./tilemap.db")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.db", 0)

	v.SetDefault("fetch.templates", map[string]string{
		string(rastercache.Roadmap): "https://tile.openstreetmap.org/{z}/{x}/{y}.png",
	})
	v.SetDefault("fetch.user_agent", datasource.DefaultUserAgent)
	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.retries", 2)
	v.SetDefault("fetch.retry_delay", 500*time.Millisecond)
	v.SetDefault("fetch.workers", 4)
	v.SetDefault("fetch.queue_size", 100)

	v.SetDefault("serve.addr", ":8080")
	v.SetDefault("serve.read_timeout", 10*time.Second)
	v.SetDefault("serve.write_timeout", 30*time.Second)
	v.SetDefault("serve.on_demand", false)
	v.SetDefault("serve.fetch_timeout", time.Minute)
	v.SetDefault("serve.cache_control", "no-store")
	v.SetDefault("serve.save_interval", 5*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load unmarshals and validates the configuration held by v. Defaults are
// registered first; explicitly set values win.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration is consistent.
func (c *Config) Validate() error {
	var errs []string

	e := c.Engine
	if e.MinZoom < 0 {
		errs = append(errs, fmt.Sprintf("engine.min_zoom must not be negative, got %d", e.MinZoom))
	}
	if e.MinZoom > e.MaxZoom {
		errs = append(errs, fmt.Sprintf("engine.min_zoom (%d) must not exceed engine.max_zoom (%d)", e.MinZoom, e.MaxZoom))
	}
	if e.BaseZoom < e.MinZoom || e.BaseZoom > e.MaxZoom {
		errs = append(errs, fmt.Sprintf("engine.base_zoom (%d) must lie in [%d, %d]", e.BaseZoom, e.MinZoom, e.MaxZoom))
	}
	if e.ZoomTolerance <= 0 {
		errs = append(errs, "engine.zoom_tolerance must be positive")
	}
	if e.MercatorLatitudeLimit <= 0 || e.MercatorLatitudeLimit > projection.MaxLatitude {
		errs = append(errs, fmt.Sprintf("engine.mercator_latitude_limit must be in (0, %g]", projection.MaxLatitude))
	}

	if err := store.ValidateName(c.Map.Name); err != nil {
		errs = append(errs, fmt.Sprintf("map.name: %v", err))
	}
	if _, err := rastercache.ParseMapType(c.Map.Type); err != nil {
		errs = append(errs, fmt.Sprintf("map.type: %v", err))
	}
	if !types.NewGeoCoordinate(c.Map.OriginLat, c.Map.OriginLon).IsValid() {
		errs = append(errs, fmt.Sprintf("map origin (%g, %g) is not a valid coordinate", c.Map.OriginLat, c.Map.OriginLon))
	}
	for name := range c.Fetch.Templates {
		if _, err := rastercache.ParseMapType(name); err != nil {
			errs = append(errs, fmt.Sprintf("fetch.templates: %v", err))
		}
	}

	if !slices.Contains(store.Drivers, c.Store.Driver) {
		errs = append(errs, fmt.Sprintf("store.driver must be one of %s, got %q", strings.Join(store.Drivers, ", "), c.Store.Driver))
	}
	if (c.Store.Driver == "sqlite" || c.Store.Driver == "file") && c.Store.Path == "" {
		errs = append(errs, "store.path is required for the "+c.Store.Driver+" driver")
	}
	if c.Store.Driver == "redis" && c.Store.Redis.Addr == "" {
		errs = append(errs, "store.redis.addr is required for the redis driver")
	}

	if c.Fetch.Workers <= 0 {
		errs = append(errs, "fetch.workers must be positive")
	}
	if c.Fetch.Retries < 0 {
		errs = append(errs, "fetch.retries must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// MapType returns the parsed map type. Call after Validate.
func (c *Config) MapType() rastercache.MapType {
	mt, _ := rastercache.ParseMapType(c.Map.Type)
	return mt
}

// Origin returns the map origin.
func (c *Config) Origin() types.GeoCoordinate {
	return types.NewGeoCoordinate(c.Map.OriginLat, c.Map.OriginLon)
}

// MapSettings converts the engine and map sections to per-map settings.
func (c *Config) MapSettings() geomap.Config {
	return geomap.Config{
		MapType:       c.MapType(),
		Origin:        c.Origin(),
		MinZoom:       float64(c.Engine.MinZoom),
		MaxZoom:       float64(c.Engine.MaxZoom),
		BaseZoom:      float64(c.Engine.BaseZoom),
		Tolerance:     c.Engine.ZoomTolerance,
		LatitudeLimit: c.Engine.MercatorLatitudeLimit,
		ImageFormat:   c.Map.ImageFormat,
	}
}

// TileSource converts the fetch section to tile fetcher settings. Unknown
// map type names are skipped.
func (c *Config) TileSource(logger *slog.Logger) datasource.TileSourceConfig {
	templates := make(map[rastercache.MapType]string, len(c.Fetch.Templates))
	for name, tmpl := range c.Fetch.Templates {
		if mt, err := rastercache.ParseMapType(name); err == nil {
			templates[mt] = tmpl
		}
	}
	return datasource.TileSourceConfig{
		Templates:  templates,
		UserAgent:  c.Fetch.UserAgent,
		Timeout:    c.Fetch.Timeout,
		Retries:    c.Fetch.Retries,
		RetryDelay: c.Fetch.RetryDelay,
		Logger:     logger,
	}
}

// FetchQueue converts the fetch section to queue settings.
func (c *Config) FetchQueue(logger *slog.Logger) datasource.FetchQueueConfig {
	return datasource.FetchQueueConfig{
		Workers:   c.Fetch.Workers,
		QueueSize: c.Fetch.QueueSize,
		Logger:    logger,
	}
}
