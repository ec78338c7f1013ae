// Package processor pre-fetches configured map areas into GeoJSON files.
package processor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/woozymasta/diarymap/internal/api"
	"github.com/woozymasta/diarymap/internal/config"
	"github.com/woozymasta/diarymap/internal/geo"
	"github.com/woozymasta/diarymap/internal/icon"
	"github.com/woozymasta/diarymap/internal/viewport"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// Options controls a prefetch run.
type Options struct {
	Thresholds    icon.Thresholds
	OutDir        string
	ZoomThreshold int
	Concurrency   int
	Force         bool
}

// Result summarizes one processed area.
type Result struct {
	Path    string
	Mode    viewport.Mode
	Markers int
	Icons   int
	Skipped bool
}

// ProcessArea fetches the markers of one area with the query its zoom level
// selects, warms diary icons through icons and writes
// <OutDir>/<area>/markers.geojson.
func ProcessArea(ctx context.Context, f viewport.Fetcher, icons viewport.IconResolver, area config.Area, opts Options) (Result, error) {
	destDir := filepath.Join(opts.OutDir, area.Name)
	destFile := filepath.Join(destDir, "markers.geojson")
	mode := viewport.ModeFor(area.Zoom, opts.ZoomThreshold)
	res := Result{Path: destFile, Mode: mode}

	if _, err := os.Stat(destFile); err == nil && !opts.Force {
		log.Debug().Str("area", area.Name).Msg("Markers file exists, skipping")
		res.Skipped = true
		return res, nil
	}

	if err := area.Bounds.Validate(); err != nil {
		return res, fmt.Errorf("area %s: %w", area.Name, err)
	}

	log.Info().
		Str("area", area.Name).
		Str("mode", string(mode)).
		Int("zoom", area.Zoom).
		Msg("Fetching area markers")

	q := api.ViewportQuery{Bounds: area.Bounds, Zoom: area.Zoom}
	markers, err := viewport.BuildMarkers(ctx, f, q, mode, opts.Thresholds)
	if err != nil {
		return res, fmt.Errorf("area %s: %w", area.Name, err)
	}
	res.Markers = len(markers)

	if icons != nil {
		res.Icons = viewport.ResolveIcons(ctx, icons, markers, opts.Concurrency)
	}

	if err := saveGeoJSON(destDir, destFile, viewport.FeatureCollection(markers)); err != nil {
		return res, err
	}
	return res, nil
}

// saveGeoJSON marshals the feature collection and writes it to disk.
func saveGeoJSON(dir, path string, fc geo.GeoJSONFeatureCollection) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			log.Error().Err(closeErr).Str("path", path).Msg("Failed to close file")
		}
	}()

	return json.NewEncoder(f).Encode(fc)
}

// SelectAreas returns the configured areas named in limit, in limit order.
// Unknown names are logged and skipped. An empty limit selects every area.
func SelectAreas(areas []config.Area, limit []string) []config.Area {
	if len(limit) == 0 {
		return areas
	}

	available := make(map[string]config.Area, len(areas))
	for _, a := range areas {
		available[a.Name] = a
	}

	seen := make(map[string]bool)
	out := make([]config.Area, 0, len(limit))
	for _, name := range limit {
		if seen[name] {
			continue
		}
		seen[name] = true

		if a, ok := available[name]; ok {
			out = append(out, a)
		} else {
			log.Error().
				Str("name", name).
				Msg("Area specified in --limit not found in configuration")
		}
	}
	return out
}
