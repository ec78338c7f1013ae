// Package config handles configuration loading and shared defaults.
package config

import (
	"os"
	"time"

	"github.com/woozymasta/diarymap/internal/geo"
	"github.com/woozymasta/diarymap/internal/validation"

	"gopkg.in/yaml.v3"
)

// Defaults for the viewport controller.
const (
	DefaultZoomThreshold = 13
	DefaultThrottle      = 300 * time.Millisecond
	DefaultDebounce      = 500 * time.Millisecond
	DefaultRouteLimit    = 10
)

// Config represents the root configuration file structure.
type Config struct {
	Backend  Backend  `yaml:"backend" json:"backend"`
	Viewport Viewport `yaml:"viewport" json:"viewport"`
	Icons    Icons    `yaml:"icons" json:"icons"`
	Location Location `yaml:"location" json:"location"`
	Areas    []Area   `yaml:"areas,omitempty" json:"areas,omitempty" validate:"dive"`
}

// Area is a named viewport the loader pre-fetches.
type Area struct {
	Name   string     `yaml:"name" json:"name" validate:"required"`
	Bounds geo.Bounds `yaml:"bounds" json:"bounds"`
	Zoom   int        `yaml:"zoom" json:"zoom" validate:"gte=0,lte=22"`
}

// Backend describes the diary REST API.
type Backend struct {
	BaseURL         string        `yaml:"base_url" json:"base_url" validate:"required,url"`
	Timeout         time.Duration `yaml:"timeout,omitempty" json:"timeout"`
	MaxIdleConns    int           `yaml:"max_idle_conns,omitempty" json:"max_idle_conns"`
	BreakerFailures uint32        `yaml:"breaker_failures,omitempty" json:"breaker_failures"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout,omitempty" json:"breaker_timeout"`
}

// Viewport holds the settle/fetch tuning of the map controller.
type Viewport struct {
	// clustered queries at or below this zoom, individual markers above
	ZoomThreshold int           `yaml:"zoom_threshold,omitempty" json:"zoom_threshold" validate:"gte=0,lte=22"`
	Throttle      time.Duration `yaml:"throttle,omitempty" json:"throttle" validate:"gte=0"`
	Debounce      time.Duration `yaml:"debounce,omitempty" json:"debounce" validate:"gte=0"`
	RouteLimit    int           `yaml:"route_limit,omitempty" json:"route_limit" validate:"gte=1"`
}

// Icons configures marker icon synthesis.
type Icons struct {
	PinWidth        int           `yaml:"pin_width,omitempty" json:"pin_width" validate:"gte=16,lte=256"`
	ClusterMedium   int           `yaml:"cluster_medium,omitempty" json:"cluster_medium" validate:"gte=1"`
	ClusterLarge    int           `yaml:"cluster_large,omitempty" json:"cluster_large" validate:"gtfield=ClusterMedium"`
	MaxSourceBytes  int64         `yaml:"max_source_bytes,omitempty" json:"max_source_bytes" validate:"gte=1024"`
	MaxSourcePixels int64         `yaml:"max_source_pixels,omitempty" json:"max_source_pixels" validate:"gte=256"`
	RenderTimeout   time.Duration `yaml:"render_timeout,omitempty" json:"render_timeout" validate:"gte=0"`
	Concurrency     int           `yaml:"concurrency,omitempty" json:"concurrency" validate:"gte=1,lte=64"`
	Quality         int           `yaml:"quality,omitempty" json:"quality" validate:"gte=1,lte=100"`
}

// Location is the static stand-in for the browser geolocation capability.
type Location struct {
	Current  *geo.LatLng   `yaml:"current,omitempty" json:"current,omitempty"`
	Disabled bool          `yaml:"disabled,omitempty" json:"disabled"`
	Timeout  time.Duration `yaml:"timeout,omitempty" json:"timeout"`
}

// Load reads, normalizes and validates the YAML configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return Parse(data)
}

// Parse decodes YAML configuration from memory.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the configuration, including values overridden after Load.
func (c *Config) Validate() error {
	return validation.Struct(c)
}

// Normalize fills zero values with defaults.
func (c *Config) Normalize() {
	if c.Backend.Timeout <= 0 {
		c.Backend.Timeout = 15 * time.Second
	}
	if c.Backend.MaxIdleConns <= 0 {
		c.Backend.MaxIdleConns = 100
	}
	if c.Backend.BreakerFailures == 0 {
		c.Backend.BreakerFailures = 5
	}
	if c.Backend.BreakerTimeout <= 0 {
		c.Backend.BreakerTimeout = 30 * time.Second
	}

	if c.Viewport.ZoomThreshold <= 0 {
		c.Viewport.ZoomThreshold = DefaultZoomThreshold
	}
	if c.Viewport.Throttle <= 0 {
		c.Viewport.Throttle = DefaultThrottle
	}
	if c.Viewport.Debounce <= 0 {
		c.Viewport.Debounce = DefaultDebounce
	}
	if c.Viewport.RouteLimit <= 0 {
		c.Viewport.RouteLimit = DefaultRouteLimit
	}

	if c.Icons.PinWidth <= 0 {
		c.Icons.PinWidth = 48
	}
	if c.Icons.ClusterMedium <= 0 {
		c.Icons.ClusterMedium = 10
	}
	if c.Icons.ClusterLarge <= 0 {
		c.Icons.ClusterLarge = 50
	}
	if c.Icons.MaxSourceBytes <= 0 {
		c.Icons.MaxSourceBytes = 8 << 20
	}
	if c.Icons.MaxSourcePixels <= 0 {
		c.Icons.MaxSourcePixels = 16 << 20
	}
	if c.Icons.RenderTimeout <= 0 {
		c.Icons.RenderTimeout = 15 * time.Second
	}
	if c.Icons.Concurrency <= 0 {
		c.Icons.Concurrency = 8
	}
	if c.Icons.Quality <= 0 {
		c.Icons.Quality = 85
	}

	if c.Location.Timeout <= 0 {
		c.Location.Timeout = 5 * time.Second
	}
}
