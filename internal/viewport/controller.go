// Package viewport keeps map markers in sync with the visible region of a map widget.
//
// A settle event passes a throttle, then schedules a debounced fetch. Every
// scheduled fetch carries a generation number and only the newest generation
// may replace the marker set, so a slow early response can never overwrite a
// later one.
package viewport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/woozymasta/diarymap/internal/api"
	"github.com/woozymasta/diarymap/internal/config"
	"github.com/woozymasta/diarymap/internal/geo"
	"github.com/woozymasta/diarymap/internal/geolocate"
	"github.com/woozymasta/diarymap/internal/icon"
	"github.com/woozymasta/diarymap/internal/metrics"
	"github.com/woozymasta/diarymap/internal/route"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Mode selects which backend query serves a viewport.
type Mode string

// Fetch modes.
const (
	ModeClustered  Mode = "clustered"
	ModeIndividual Mode = "individual"
)

// ModeFor returns clustered at or below threshold and individual above it.
func ModeFor(zoom, threshold int) Mode {
	if zoom <= threshold {
		return ModeClustered
	}
	return ModeIndividual
}

// State is the per-cycle controller state.
type State string

// Controller states. Throttled events are rejected without leaving Idle.
const (
	StateIdle     State = "idle"
	StateFetching State = "fetching"
)

// ErrNoViewport is returned by operations that need a settled viewport.
var ErrNoViewport = errors.New("no viewport has settled yet")

// Fetcher is the subset of the backend client used by the controller.
type Fetcher interface {
	Clusters(ctx context.Context, q api.ViewportQuery) ([]api.Cluster, error)
	Diaries(ctx context.Context, q api.ViewportQuery) ([]api.DiarySummary, error)
	ReverseGeocode(ctx context.Context, p geo.LatLng) (api.Region, error)
}

// IconResolver renders the pin icon for a diary thumbnail URL.
type IconResolver interface {
	Resolve(ctx context.Context, url string) *icon.Icon
}

type previewFunc func(markers []Marker, origin geo.LatLng, limit int) []route.Stop[Marker]

// Options configures a Controller. Zero durations and limits take the config defaults.
type Options struct {
	Fetcher           Fetcher
	Icons             IconResolver
	Locator           geolocate.Locator
	Clock             Clock
	Metrics           *metrics.Metrics
	ClusterThresholds icon.Thresholds
	ZoomThreshold     int
	IconConcurrency   int
	Throttle          time.Duration
	Debounce          time.Duration
	RouteLimit        int
}

// OptionsFromConfig maps the viewport and icon sections onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ZoomThreshold:   cfg.Viewport.ZoomThreshold,
		Throttle:        cfg.Viewport.Throttle,
		Debounce:        cfg.Viewport.Debounce,
		RouteLimit:      cfg.Viewport.RouteLimit,
		IconConcurrency: cfg.Icons.Concurrency,
		ClusterThresholds: icon.Thresholds{
			Medium: cfg.Icons.ClusterMedium,
			Large:  cfg.Icons.ClusterLarge,
		},
	}
}

// Snapshot is a read-only view of the controller.
type Snapshot struct {
	LastUpdated time.Time  `json:"last_updated,omitempty"`
	Center      geo.LatLng `json:"center"`
	State       State      `json:"state"`
	Mode        Mode       `json:"mode"`
	LastError   string     `json:"last_error,omitempty"`
	Bounds      geo.Bounds `json:"bounds"`
	Generation  uint64     `json:"generation"`
	Zoom        int        `json:"zoom"`
	Markers     int        `json:"markers"`
	HasViewport bool       `json:"has_viewport"`
	HasLocation bool       `json:"has_location"`
}

// Controller synchronizes markers with the map viewport. It lives as long as
// the hosting view; Close releases its timer and in-flight request.
type Controller struct {
	fetcher  Fetcher
	icons    IconResolver
	locator  geolocate.Locator
	clock    Clock
	metrics  *metrics.Metrics
	limiter  *rate.Limiter
	preview  previewFunc
	ctx      context.Context
	cancel   context.CancelFunc
	inflight context.CancelFunc
	pending  Timer
	location *geo.LatLng

	opts Options

	mu          sync.Mutex
	lastUpdated time.Time
	lastErr     error
	state       State
	mode        Mode
	bounds      geo.Bounds
	center      geo.LatLng
	markers     []Marker
	route       []route.Stop[Marker]
	generation  uint64
	zoom        int
	hasViewport bool
	mounted     bool
	closed      bool
}

// New creates a Controller in the Idle state.
func New(opts Options) *Controller {
	if opts.ZoomThreshold <= 0 {
		opts.ZoomThreshold = config.DefaultZoomThreshold
	}
	if opts.Throttle < 0 {
		opts.Throttle = config.DefaultThrottle
	}
	if opts.Debounce < 0 {
		opts.Debounce = config.DefaultDebounce
	}
	if opts.RouteLimit <= 0 {
		opts.RouteLimit = route.DefaultLimit
	}
	if opts.IconConcurrency <= 0 {
		opts.IconConcurrency = DefaultIconConcurrency
	}
	if opts.ClusterThresholds == (icon.Thresholds{}) {
		opts.ClusterThresholds = icon.DefaultThresholds
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.Locator == nil {
		opts.Locator = geolocate.Static{}
	}

	// a zero window disables throttling
	limit := rate.Inf
	if opts.Throttle > 0 {
		limit = rate.Every(opts.Throttle)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Controller{
		fetcher: opts.Fetcher,
		icons:   opts.Icons,
		locator: opts.Locator,
		clock:   opts.Clock,
		metrics: opts.Metrics,
		limiter: rate.NewLimiter(limit, 1),
		preview: route.Preview[Marker],
		ctx:     ctx,
		cancel:  cancel,
		opts:    opts,
		state:   StateIdle,
		mode:    ModeClustered,
	}
}

// Mount asks the locator for the current position once. A failure only
// disables the route preview and is never retried.
func (c *Controller) Mount(ctx context.Context) {
	c.mu.Lock()
	if c.mounted || c.closed {
		c.mu.Unlock()
		return
	}
	c.mounted = true
	c.mu.Unlock()

	pos, err := c.locator.Locate(ctx)
	if err != nil {
		log.Warn().
			Err(err).
			Msg("Current location unavailable, route preview disabled")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.location = &pos
	if len(c.markers) > 0 {
		c.route = c.preview(c.markers, pos, c.opts.RouteLimit)
	}

	log.Debug().
		Float64("lat", pos.Lat).
		Float64("lng", pos.Lng).
		Msg("Current location acquired")
}

// OnViewportSettled handles the widget idle event. It returns false when the
// event falls inside the throttle window of the previous accepted event.
func (c *Controller) OnViewportSettled(bounds geo.Bounds, zoom int) (bool, error) {
	if err := bounds.Validate(); err != nil {
		c.metrics.IncSettle("invalid")
		return false, err
	}
	if zoom < 0 {
		c.metrics.IncSettle("invalid")
		return false, fmt.Errorf("%w: negative zoom %d", geo.ErrInvalidBounds, zoom)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false, nil
	}

	if !c.limiter.AllowN(c.clock.Now(), 1) {
		c.metrics.IncSettle("throttled")
		log.Trace().
			Int("zoom", zoom).
			Msg("Viewport settle throttled")
		return false, nil
	}
	c.metrics.IncSettle("accepted")

	mode := ModeFor(zoom, c.opts.ZoomThreshold)
	if c.hasViewport && mode != c.mode {
		log.Info().
			Str("from", string(c.mode)).
			Str("to", string(mode)).
			Int("zoom", zoom).
			Msg("Zoom threshold crossed, switching fetch mode")
	}

	c.bounds = bounds
	c.zoom = zoom
	c.center = bounds.Center()
	c.mode = mode
	c.hasViewport = true

	c.generation++
	gen := c.generation
	q := api.ViewportQuery{Bounds: bounds, Zoom: zoom}

	if c.pending != nil {
		c.pending.Stop()
	}
	c.pending = c.clock.AfterFunc(c.opts.Debounce, func() {
		c.fetch(gen, q, mode)
	})

	return true, nil
}

// fetch runs one backend query for generation gen and applies the result
// only if no newer viewport has been accepted since.
func (c *Controller) fetch(gen uint64, q api.ViewportQuery, mode Mode) {
	c.mu.Lock()
	if c.closed || gen != c.generation {
		c.mu.Unlock()
		return
	}
	if c.inflight != nil {
		c.inflight()
	}
	ctx, cancel := context.WithCancel(c.ctx)
	c.inflight = cancel
	c.state = StateFetching
	c.mu.Unlock()
	defer cancel()

	start := c.clock.Now()
	markers, err := c.load(ctx, q, mode)
	elapsed := c.clock.Now().Sub(start)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	if gen != c.generation {
		c.metrics.IncStale()
		log.Debug().
			Uint64("generation", gen).
			Uint64("latest", c.generation).
			Msg("Discarding stale viewport response")
		return
	}

	c.state = StateIdle
	c.inflight = nil

	if err != nil {
		c.lastErr = err
		c.metrics.ObserveFetch(string(mode), "failure", elapsed)
		log.Error().
			Err(err).
			Str("mode", string(mode)).
			Int("zoom", q.Zoom).
			Msg("Viewport fetch failed, keeping previous markers")
		return
	}

	c.lastErr = nil
	c.markers = markers
	c.lastUpdated = c.clock.Now()
	if c.location != nil {
		c.route = c.preview(markers, *c.location, c.opts.RouteLimit)
	}
	c.metrics.ObserveFetch(string(mode), "success", elapsed)

	log.Debug().
		Str("mode", string(mode)).
		Int("zoom", q.Zoom).
		Int("markers", len(markers)).
		Dur("duration", elapsed).
		Msg("Viewport markers updated")
}

// load issues exactly one backend query for mode and builds the marker set
// with its pin icons.
func (c *Controller) load(ctx context.Context, q api.ViewportQuery, mode Mode) ([]Marker, error) {
	markers, err := BuildMarkers(ctx, c.fetcher, q, mode, c.opts.ClusterThresholds)
	if err != nil {
		return nil, err
	}
	if c.icons != nil {
		ResolveIcons(ctx, c.icons, markers, c.opts.IconConcurrency)
	}
	return markers, nil
}

// BuildMarkers queries the endpoint matching mode, never both, and converts the
// result to markers. Diary markers are returned without icons.
func BuildMarkers(ctx context.Context, f Fetcher, q api.ViewportQuery, mode Mode, th icon.Thresholds) ([]Marker, error) {
	if f == nil {
		return nil, errors.New("no backend configured")
	}

	if mode == ModeClustered {
		clusters, err := f.Clusters(ctx, q)
		if err != nil {
			return nil, err
		}
		markers := make([]Marker, 0, len(clusters))
		for _, cl := range clusters {
			markers = append(markers, clusterMarker(cl, th))
		}
		return markers, nil
	}

	diaries, err := f.Diaries(ctx, q)
	if err != nil {
		return nil, err
	}
	markers := make([]Marker, 0, len(diaries))
	for _, d := range diaries {
		markers = append(markers, diaryMarker(d))
	}
	return markers, nil
}

// Markers returns a copy of the current marker set.
func (c *Controller) Markers() []Marker {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Marker, len(c.markers))
	copy(out, c.markers)
	return out
}

// RoutePreview returns the nearest-first stops and the origin they were
// measured from. ok is false when the current location is unknown.
func (c *Controller) RoutePreview() (stops []route.Stop[Marker], origin geo.LatLng, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.location == nil {
		return nil, geo.LatLng{}, false
	}
	out := make([]route.Stop[Marker], len(c.route))
	copy(out, c.route)
	return out, *c.location, true
}

// Region reverse-geocodes the center of the current viewport.
func (c *Controller) Region(ctx context.Context) (api.Region, error) {
	c.mu.Lock()
	center, ok := c.center, c.hasViewport
	c.mu.Unlock()

	if !ok {
		return api.Region{}, ErrNoViewport
	}
	if c.fetcher == nil {
		return api.Region{}, errors.New("no backend configured")
	}
	return c.fetcher.ReverseGeocode(ctx, center)
}

// Snapshot returns the current controller state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		State:       c.state,
		Mode:        c.mode,
		Bounds:      c.bounds,
		Zoom:        c.zoom,
		Center:      c.center,
		Generation:  c.generation,
		Markers:     len(c.markers),
		HasViewport: c.hasViewport,
		HasLocation: c.location != nil,
		LastUpdated: c.lastUpdated,
	}
	if c.lastErr != nil {
		s.LastError = c.lastErr.Error()
	}
	return s
}

// Close stops the pending debounce timer and cancels any in-flight request.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	if c.pending != nil {
		c.pending.Stop()
	}
	c.cancel()
}
