// Package api is the typed REST client for the diary backend map endpoints.
package api

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"time"

	"github.com/woozymasta/diarymap/internal/config"
	"github.com/woozymasta/diarymap/internal/geo"
	"github.com/woozymasta/diarymap/internal/metrics"

	"github.com/rs/zerolog/log"
	gobreaker "github.com/sony/gobreaker/v2"
)

const (
	clustersPath = "/api/v1/map/clusters"
	diariesPath  = "/api/v1/map/diaries"
	reversePath  = "/api/v1/geocode/reverse"

	breakerName  = "diary-backend"
	maxBodyBytes = 4 << 20
)

// ErrStatus is returned for non-2xx backend responses.
var ErrStatus = errors.New("unexpected status")

// Options configures a Client.
type Options struct {
	HTTPClient      *http.Client
	Session         *Session
	Metrics         *metrics.Metrics
	BaseURL         string
	BreakerTimeout  time.Duration
	BreakerFailures uint32
}

// Client talks to the diary backend. Each instance owns its session state and breaker.
type Client struct {
	base    *url.URL
	http    *http.Client
	session *Session
	cb      *gobreaker.CircuitBreaker[[]byte]
}

// NewHTTPClient builds the shared transport with a cookie jar for the session cookie.
func NewHTTPClient(cfg config.Backend) *http.Client {
	jar, _ := cookiejar.New(nil)
	return &http.Client{
		Transport: &http.Transport{
			TLSNextProto:        make(map[string]func(string, *tls.Conn) http.RoundTripper),
			MaxIdleConns:        cfg.MaxIdleConns,
			MaxIdleConnsPerHost: cfg.MaxIdleConns,
		},
		Jar:     jar,
		Timeout: cfg.Timeout,
	}
}

// New creates a Client. Zero options fall back to defaults.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", opts.BaseURL)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	session := opts.Session
	if session == nil {
		session = NewSession("")
	}
	failures := opts.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	timeout := opts.BreakerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	m := opts.Metrics
	m.SetBreakerState(breakerName, 0)

	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// a superseded request is not a backend failure
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Backend circuit breaker state changed")
			m.SetBreakerState(name, float64(to))
		},
	})

	return &Client{
		base:    base,
		http:    httpClient,
		session: session,
		cb:      cb,
	}, nil
}

// Session returns the refresh state owned by this client.
func (c *Client) Session() *Session {
	return c.session
}

// Clusters queries area aggregates inside the viewport.
func (c *Client) Clusters(ctx context.Context, q ViewportQuery) ([]Cluster, error) {
	body, err := c.get(ctx, clustersPath, viewportParams(q))
	if err != nil {
		return nil, err
	}

	var out []Cluster
	if err := decodeEnvelope(body, KindClusters, &out); err != nil {
		return nil, err
	}
	if err := validateAll(out); err != nil {
		return nil, fmt.Errorf("clusters: %w", err)
	}
	return out, nil
}

// Diaries queries individual diary summaries inside the viewport.
func (c *Client) Diaries(ctx context.Context, q ViewportQuery) ([]DiarySummary, error) {
	body, err := c.get(ctx, diariesPath, viewportParams(q))
	if err != nil {
		return nil, err
	}

	var out []DiarySummary
	if err := decodeEnvelope(body, KindDiaries, &out); err != nil {
		return nil, err
	}
	if err := validateAll(out); err != nil {
		return nil, fmt.Errorf("diaries: %w", err)
	}
	return out, nil
}

// ReverseGeocode resolves administrative region names for a coordinate.
func (c *Client) ReverseGeocode(ctx context.Context, p geo.LatLng) (Region, error) {
	params := url.Values{}
	params.Set("lat", formatCoord(p.Lat))
	params.Set("lng", formatCoord(p.Lng))

	body, err := c.get(ctx, reversePath, params)
	if err != nil {
		return Region{}, err
	}

	var out Region
	if err := decodeEnvelope(body, KindRegion, &out); err != nil {
		return Region{}, err
	}
	return out, nil
}

// get runs a GET through the circuit breaker and returns the raw body.
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	target := c.base.JoinPath(path)
	target.RawQuery = params.Encode()

	body, err := c.cb.Execute(func() ([]byte, error) {
		return c.do(ctx, target.String(), true)
	})
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, target string, allowRefresh bool) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized {
		if !allowRefresh {
			return nil, ErrUnauthorized
		}
		// drain so the connection can be reused by the retry
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		if err := c.session.Refresh(ctx, c.http, c.base); err != nil {
			return nil, err
		}
		return c.do(ctx, target, false)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
}

func viewportParams(q ViewportQuery) url.Values {
	params := url.Values{}
	params.Set("north", formatCoord(q.Bounds.North))
	params.Set("south", formatCoord(q.Bounds.South))
	params.Set("east", formatCoord(q.Bounds.East))
	params.Set("west", formatCoord(q.Bounds.West))
	params.Set("zoom", strconv.Itoa(q.Zoom))
	return params
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
