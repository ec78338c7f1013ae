package api

import (
	"errors"
	"fmt"

	"github.com/woozymasta/diarymap/internal/geo"
	"github.com/woozymasta/diarymap/internal/validation"

	"github.com/goccy/go-json"
)

// Envelope kinds returned by the backend.
const (
	KindClusters = "clusters"
	KindDiaries  = "diaries"
	KindRegion   = "region"
)

// ErrUnexpectedKind is returned when an envelope carries a different kind than requested.
var ErrUnexpectedKind = errors.New("unexpected response kind")

// envelope is the tagged wrapper around every backend payload.
type envelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// ViewportQuery selects markers inside a rectangle at a zoom level.
type ViewportQuery struct {
	Bounds geo.Bounds
	Zoom   int
}

// Cluster is an administrative area aggregate shown at low zoom.
type Cluster struct {
	AreaID     int64   `json:"areaId" validate:"gte=0"`
	Lat        float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lon        float64 `json:"lon" validate:"gte=-180,lte=180"`
	DiaryCount int     `json:"diaryCount" validate:"gte=0"`
}

// DiarySummary is a single geotagged diary entry shown at high zoom.
type DiarySummary struct {
	Title        string  `json:"title"`
	ThumbnailURL string  `json:"thumbnailUrl" validate:"omitempty,url"`
	DiaryID      int64   `json:"diaryId" validate:"gt=0"`
	Lat          float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng          float64 `json:"lng" validate:"gte=-180,lte=180"`
}

// Region is the administrative breakdown returned by reverse geocoding.
type Region struct {
	Country  string `json:"country"`
	Province string `json:"province"`
	City     string `json:"city"`
	District string `json:"district"`
}

// decodeEnvelope checks the envelope kind and unmarshals its data into out.
func decodeEnvelope(body []byte, kind string, out interface{}) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	if env.Kind != kind {
		return fmt.Errorf("%w: want %q, got %q", ErrUnexpectedKind, kind, env.Kind)
	}
	if len(env.Data) == 0 {
		return fmt.Errorf("decode %s: empty data", kind)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s: %w", kind, err)
	}
	return nil
}

// validateAll validates every element and reports the first failing index.
func validateAll[T any](items []T) error {
	for i := range items {
		if err := validation.Struct(&items[i]); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
	}
	return nil
}
