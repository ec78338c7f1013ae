package icon

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // source decoders
	_ "image/jpeg" // source decoders
	_ "image/png"  // source decoders
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/woozymasta/diarymap/internal/metrics"

	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/singleflight"
)

// ErrSourceTooLarge is returned for source images over the byte or pixel limit.
var ErrSourceTooLarge = errors.New("source image too large")

// ErrUnsupportedSource is returned for icon sources that are not http(s) URLs.
var ErrUnsupportedSource = errors.New("unsupported icon source")

// ResolverOptions configures a Resolver. RenderTimeout bounds one shared
// download and render; MaxSourcePixels caps the declared image dimensions.
type ResolverOptions struct {
	HTTPClient      *http.Client
	Cache           *Cache
	Metrics         *metrics.Metrics
	PinWidth        int
	Quality         int
	RenderTimeout   time.Duration
	MaxSourceBytes  int64
	MaxSourcePixels int64
}

// Resolver turns source image URLs into cached pin icons.
type Resolver struct {
	client    *http.Client
	cache     *Cache
	metrics   *metrics.Metrics
	group     singleflight.Group
	width     int
	quality   int
	timeout   time.Duration
	maxBytes  int64
	maxPixels int64
}

// NewResolver creates a Resolver. A nil cache gets a fresh one.
func NewResolver(opts ResolverOptions) *Resolver {
	r := &Resolver{
		client:    opts.HTTPClient,
		cache:     opts.Cache,
		metrics:   opts.Metrics,
		width:     opts.PinWidth,
		quality:   opts.Quality,
		timeout:   opts.RenderTimeout,
		maxBytes:  opts.MaxSourceBytes,
		maxPixels: opts.MaxSourcePixels,
	}
	if r.client == nil {
		r.client = http.DefaultClient
	}
	if r.cache == nil {
		r.cache = NewCache()
	}
	if r.width <= 0 {
		r.width = 48
	}
	if r.timeout <= 0 {
		r.timeout = 15 * time.Second
	}
	if r.maxBytes <= 0 {
		r.maxBytes = 8 << 20
	}
	if r.maxPixels <= 0 {
		r.maxPixels = 16 << 20
	}
	return r
}

// Cache returns the backing icon cache.
func (r *Resolver) Cache() *Cache {
	return r.cache
}

// Resolve returns the cached icon for url, rendering it on first use. Failures
// yield the shared placeholder and are not cached, so a later call retries.
//
// Concurrent callers share one render that does not inherit any caller's
// cancellation. A caller whose ctx ends gets the placeholder while the render
// keeps running for the others and still fills the cache.
func (r *Resolver) Resolve(ctx context.Context, url string) *Icon {
	if url == "" {
		return Placeholder(r.width)
	}

	if ic, ok := r.cache.Get(url); ok {
		r.metrics.IncIconLookup("hit")
		return ic
	}

	ch := r.group.DoChan(url, func() (interface{}, error) {
		if ic, ok := r.cache.Get(url); ok {
			return ic, nil
		}

		r.metrics.IncIconLookup("miss")
		renderCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()

		ic, err := r.render(renderCtx, url)
		if err != nil {
			return nil, err
		}

		stored := r.cache.Put(url, ic)
		r.metrics.SetIconCacheSize(r.cache.Len())
		return stored, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			r.metrics.IncIconLookup("fallback")
			log.Warn().
				Err(res.Err).
				Str("url", url).
				Msg("Marker icon failed, using placeholder")
			return Placeholder(r.width)
		}
		return res.Val.(*Icon)

	case <-ctx.Done():
		r.metrics.IncIconLookup("cancelled")
		log.Trace().
			Err(ctx.Err()).
			Str("url", url).
			Msg("Marker icon wait cancelled")
		return Placeholder(r.width)
	}
}

func (r *Resolver) render(ctx context.Context, url string) (*Icon, error) {
	src, err := r.loadSourceImage(ctx, url)
	if err != nil {
		return nil, err
	}

	pin := SynthesizePin(src, r.width)
	uri, err := EncodeWebPDataURI(pin, r.quality)
	if err != nil {
		return nil, err
	}

	b := pin.Bounds()
	log.Trace().
		Str("url", url).
		Int("bytes", len(uri)).
		Msg("Marker icon rendered")

	return &Icon{
		DataURI: uri,
		Source:  url,
		Width:   b.Dx(),
		Height:  b.Dy(),
	}, nil
}

// loadSourceImage downloads a remote image and decodes it. The header is
// checked against the pixel limit before the full decode allocates.
func (r *Resolver) loadSourceImage(ctx context.Context, source string) (image.Image, error) {
	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSource, source)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > r.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrSourceTooLarge, r.maxBytes)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("decode header failed: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > r.maxPixels {
		return nil, fmt.Errorf("%w: %s %dx%d exceeds %d pixels", ErrSourceTooLarge, format, cfg.Width, cfg.Height, r.maxPixels)
	}

	img, _, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("decode failed: %w", err)
	}
	return img, nil
}
