package server

import (
	"github.com/woozymasta/diarymap/internal/config"
	"github.com/woozymasta/diarymap/internal/icon"
	"github.com/woozymasta/diarymap/internal/metrics"
	"github.com/woozymasta/diarymap/internal/viewport"

	"github.com/rs/zerolog/log"
)

// ServerContext holds dependencies for request handlers.
type ServerContext struct {
	Config     *config.Config
	Controller *viewport.Controller
	Metrics    *metrics.Metrics
	Thresholds icon.Thresholds
}

// NewServerContext wires the controller and metrics into the handlers.
func NewServerContext(cfg *config.Config, ctl *viewport.Controller, m *metrics.Metrics) *ServerContext {
	th := icon.Thresholds{
		Medium: cfg.Icons.ClusterMedium,
		Large:  cfg.Icons.ClusterLarge,
	}

	log.Info().
		Str("backend", cfg.Backend.BaseURL).
		Int("zoom_threshold", cfg.Viewport.ZoomThreshold).
		Dur("throttle", cfg.Viewport.Throttle).
		Dur("debounce", cfg.Viewport.Debounce).
		Msg("Server context initialized")

	return &ServerContext{
		Config:     cfg,
		Controller: ctl,
		Metrics:    m,
		Thresholds: th,
	}
}
