// Package server exposes the viewport controller over HTTP.
package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/woozymasta/diarymap/internal/geo"
	"github.com/woozymasta/diarymap/internal/icon"
	"github.com/woozymasta/diarymap/internal/route"
	"github.com/woozymasta/diarymap/internal/validation"
	"github.com/woozymasta/diarymap/internal/viewport"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

const (
	etagCap     = 64
	maxBodySize = 1 << 16
)

type viewportRequest struct {
	North float64 `json:"north" validate:"gte=-90,lte=90"`
	South float64 `json:"south" validate:"gte=-90,lte=90"`
	East  float64 `json:"east" validate:"gte=-180,lte=180"`
	West  float64 `json:"west" validate:"gte=-180,lte=180"`
	Zoom  int     `json:"zoom" validate:"gte=0,lte=22"`
}

type viewportResponse struct {
	Accepted   bool   `json:"accepted"`
	Generation uint64 `json:"generation"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Routes registers all handlers on a new mux.
func (s *ServerContext) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/viewport", s.HandleViewport)
	mux.HandleFunc("GET /api/markers", s.HandleMarkers)
	mux.HandleFunc("GET /api/route", s.HandleRoute)
	mux.HandleFunc("GET /api/region", s.HandleRegion)
	mux.HandleFunc("GET /api/state", s.HandleState)
	mux.HandleFunc("GET /api/icons/cluster", s.HandleClusterIcon)
	mux.Handle("GET /metrics", s.Metrics.Handler())
	return mux
}

// HandleViewport accepts a viewport settle event from the map widget.
func (s *ServerContext) HandleViewport(w http.ResponseWriter, r *http.Request) {
	var req viewportRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json: " + err.Error()})
		return
	}
	if err := validation.Struct(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	bounds := geo.Bounds{North: req.North, South: req.South, East: req.East, West: req.West}
	accepted, err := s.Controller.OnViewportSettled(bounds, req.Zoom)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, viewportResponse{
		Accepted:   accepted,
		Generation: s.Controller.Snapshot().Generation,
	})
}

// HandleMarkers serves the current markers as GeoJSON.
func (s *ServerContext) HandleMarkers(w http.ResponseWriter, r *http.Request) {
	snap := s.Controller.Snapshot()
	etag := markersETag(snap)

	// check If-None-Match (client sent ETag)
	if match := r.Header.Get("If-None-Match"); match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Content-Type", "application/geo+json")
	_ = json.NewEncoder(w).Encode(viewport.FeatureCollection(s.Controller.Markers()))
}

// HandleRoute serves the route preview as a LineString plus numbered stops.
func (s *ServerContext) HandleRoute(w http.ResponseWriter, r *http.Request) {
	stops, origin, ok := s.Controller.RoutePreview()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	fc := geo.NewFeatureCollection()
	fc.Features = append(fc.Features, geo.LineFeature(route.Path(origin, stops), map[string]interface{}{
		"kind": "route",
	}))
	for i, stop := range stops {
		fc.Features = append(fc.Features, geo.PointFeature(stop.Marker.Position(), map[string]interface{}{
			"id":              stop.Marker.ID,
			"order":           i + 1,
			"distance_meters": stop.DistanceMeters,
		}))
	}

	w.Header().Set("Content-Type", "application/geo+json")
	_ = json.NewEncoder(w).Encode(fc)
}

// HandleRegion reverse-geocodes the viewport center.
func (s *ServerContext) HandleRegion(w http.ResponseWriter, r *http.Request) {
	region, err := s.Controller.Region(r.Context())
	if errors.Is(err, viewport.ErrNoViewport) {
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Reverse geocoding failed")
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "reverse geocoding failed"})
		return
	}

	writeJSON(w, http.StatusOK, region)
}

// HandleState serves a snapshot of the controller.
func (s *ServerContext) HandleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Controller.Snapshot())
}

// HandleClusterIcon serves the SVG cluster marker for ?count=N.
func (s *ServerContext) HandleClusterIcon(w http.ResponseWriter, r *http.Request) {
	count, err := strconv.Atoi(r.URL.Query().Get("count"))
	if err != nil || count < 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "count must be a non-negative integer"})
		return
	}

	rendered := icon.RenderCluster(count, s.Thresholds)
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	_, _ = w.Write([]byte(rendered.SVG))
}

// markersETag changes whenever a new marker set is applied.
func markersETag(snap viewport.Snapshot) string {
	buf := make([]byte, 0, etagCap)
	buf = append(buf, '"')
	buf = strconv.AppendInt(buf, int64(snap.Markers), 16)
	buf = append(buf, '-')
	buf = strconv.AppendInt(buf, snap.LastUpdated.UnixNano(), 16)
	buf = append(buf, '"')
	return string(buf)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Ignoring error as we cannot handle client disconnects
	_ = json.NewEncoder(w).Encode(v)
}
