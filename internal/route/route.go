// Package route orders diary pins into a nearest-first preview path.
package route

import (
	"sort"

	"github.com/woozymasta/diarymap/internal/geo"
)

// DefaultLimit is the maximum number of stops in a preview.
const DefaultLimit = 10

// Point is anything that can be placed on the preview path.
type Point interface {
	MarkerID() string
	Position() geo.LatLng
	IsCluster() bool
}

// Stop is one entry of a route preview.
type Stop[T Point] struct {
	Marker         T       `json:"marker"`
	DistanceMeters float64 `json:"distance_meters"`
}

// Preview drops cluster markers, sorts the rest by great-circle distance from
// origin and keeps the first limit entries. Equal distances are ordered by id.
// The input slice is not modified.
func Preview[T Point](markers []T, origin geo.LatLng, limit int) []Stop[T] {
	if limit <= 0 {
		limit = DefaultLimit
	}

	stops := make([]Stop[T], 0, len(markers))
	for _, m := range markers {
		if m.IsCluster() {
			continue
		}
		stops = append(stops, Stop[T]{
			Marker:         m,
			DistanceMeters: geo.HaversineDistance(origin, m.Position()),
		})
	}

	sort.SliceStable(stops, func(i, j int) bool {
		if stops[i].DistanceMeters != stops[j].DistanceMeters {
			return stops[i].DistanceMeters < stops[j].DistanceMeters
		}
		return stops[i].Marker.MarkerID() < stops[j].Marker.MarkerID()
	})

	if len(stops) > limit {
		stops = stops[:limit]
	}
	return stops
}

// Path returns the polyline origin → stop 1 → stop 2 → ... for rendering.
func Path[T Point](origin geo.LatLng, stops []Stop[T]) []geo.LatLng {
	path := make([]geo.LatLng, 0, len(stops)+1)
	path = append(path, origin)
	for _, s := range stops {
		path = append(path, s.Marker.Position())
	}
	return path
}
