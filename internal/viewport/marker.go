package viewport

import (
	"context"
	"strconv"
	"sync"

	"github.com/woozymasta/diarymap/internal/api"
	"github.com/woozymasta/diarymap/internal/geo"
	"github.com/woozymasta/diarymap/internal/icon"
)

// Marker is a rendered map pin: a single diary or an area cluster.
type Marker struct {
	Icon         *icon.Icon `json:"icon,omitempty"`
	ClusterCount *int       `json:"cluster_count,omitempty"`
	ID           string     `json:"id"`
	IconSource   string     `json:"icon_source,omitempty"`
	Title        string     `json:"title,omitempty"`
	Lat          float64    `json:"lat"`
	Lng          float64    `json:"lng"`
}

// MarkerID returns the marker id.
func (m Marker) MarkerID() string {
	return m.ID
}

// Position returns the marker coordinate.
func (m Marker) Position() geo.LatLng {
	return geo.LatLng{Lat: m.Lat, Lng: m.Lng}
}

// IsCluster reports whether the marker aggregates several diaries.
func (m Marker) IsCluster() bool {
	return m.ClusterCount != nil
}

func clusterMarker(c api.Cluster, th icon.Thresholds) Marker {
	count := c.DiaryCount
	rendered := icon.RenderCluster(count, th)
	return Marker{
		ID:           "area-" + strconv.FormatInt(c.AreaID, 10),
		Lat:          c.Lat,
		Lng:          c.Lon,
		ClusterCount: &count,
		Icon: &icon.Icon{
			DataURI: rendered.DataURI,
			Width:   rendered.Style.Diameter,
			Height:  rendered.Style.Diameter,
		},
	}
}

func diaryMarker(d api.DiarySummary) Marker {
	return Marker{
		ID:         "diary-" + strconv.FormatInt(d.DiaryID, 10),
		Lat:        d.Lat,
		Lng:        d.Lng,
		IconSource: d.ThumbnailURL,
		Title:      d.Title,
	}
}

// DefaultIconConcurrency is the number of diary pins resolved in parallel.
const DefaultIconConcurrency = 8

// ResolveIcons fills in diary marker icons in place with a fixed worker pool
// and returns how many received a rendered, non-placeholder icon. Cluster
// markers keep their SVG icon.
func ResolveIcons(ctx context.Context, icons IconResolver, markers []Marker, concurrency int) int {
	if concurrency <= 0 {
		concurrency = DefaultIconConcurrency
	}

	jobs := make(chan int, len(markers))
	for i, m := range markers {
		if !m.IsCluster() {
			jobs <- i
		}
	}
	close(jobs)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		rendered int
	)
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				ic := icons.Resolve(ctx, markers[idx].IconSource)
				markers[idx].Icon = ic
				if ic != nil && !ic.Placeholder {
					mu.Lock()
					rendered++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	return rendered
}

// FeatureCollection renders markers as GeoJSON points.
func FeatureCollection(markers []Marker) geo.GeoJSONFeatureCollection {
	fc := geo.NewFeatureCollection()
	for _, m := range markers {
		props := map[string]interface{}{
			"id": m.ID,
		}
		if m.Title != "" {
			props["title"] = m.Title
		}
		if m.ClusterCount != nil {
			props["cluster_count"] = *m.ClusterCount
		}
		if m.IconSource != "" {
			props["icon_source"] = m.IconSource
		}
		if m.Icon != nil {
			props["icon"] = m.Icon.DataURI
		}
		fc.Features = append(fc.Features, geo.PointFeature(m.Position(), props))
	}
	return fc
}
