// Package geolocate supplies the user's current position once per map mount.
package geolocate

import (
	"context"
	"errors"
	"time"

	"github.com/woozymasta/diarymap/internal/config"
	"github.com/woozymasta/diarymap/internal/geo"
)

var (
	// ErrPermissionDenied means the user did not allow location access.
	ErrPermissionDenied = errors.New("geolocation permission denied")
	// ErrTimeout means no position arrived in time.
	ErrTimeout = errors.New("geolocation timeout")
)

// Locator returns the current position of the user.
type Locator interface {
	Locate(ctx context.Context) (geo.LatLng, error)
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(ctx context.Context) (geo.LatLng, error)

// Locate calls f.
func (f LocatorFunc) Locate(ctx context.Context) (geo.LatLng, error) {
	return f(ctx)
}

// Static always reports a fixed position, or denies access when Position is nil.
type Static struct {
	Position *geo.LatLng
}

// Locate returns the configured position.
func (s Static) Locate(ctx context.Context) (geo.LatLng, error) {
	if err := ctx.Err(); err != nil {
		return geo.LatLng{}, err
	}
	if s.Position == nil {
		return geo.LatLng{}, ErrPermissionDenied
	}
	return *s.Position, nil
}

// WithTimeout bounds a Locator call and maps deadline expiry to ErrTimeout.
func WithTimeout(l Locator, d time.Duration) Locator {
	return LocatorFunc(func(ctx context.Context) (geo.LatLng, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		type result struct {
			pos geo.LatLng
			err error
		}
		done := make(chan result, 1)
		go func() {
			pos, err := l.Locate(ctx)
			done <- result{pos: pos, err: err}
		}()

		select {
		case res := <-done:
			if errors.Is(res.err, context.DeadlineExceeded) {
				return geo.LatLng{}, ErrTimeout
			}
			return res.pos, res.err
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return geo.LatLng{}, ErrTimeout
			}
			return geo.LatLng{}, ctx.Err()
		}
	})
}

// FromConfig builds the Locator described by the location section.
func FromConfig(cfg config.Location) Locator {
	pos := cfg.Current
	if cfg.Disabled {
		pos = nil
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return WithTimeout(Static{Position: pos}, timeout)
}
