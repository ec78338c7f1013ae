package geo

import (
	"errors"
	"fmt"

	"github.com/golang/geo/s2"
)

// EarthRadiusMeters is the mean Earth radius used for great-circle distances.
const EarthRadiusMeters = 6371000.0

// ErrInvalidBounds is returned when a viewport violates north > south, east > west.
var ErrInvalidBounds = errors.New("invalid viewport bounds")

// LatLng is a WGS84 coordinate in degrees.
type LatLng struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Bounds is the visible map rectangle. The antimeridian is not handled.
type Bounds struct {
	North float64 `json:"north" yaml:"north" validate:"gte=-90,lte=90"`
	South float64 `json:"south" yaml:"south" validate:"gte=-90,lte=90"`
	East  float64 `json:"east" yaml:"east" validate:"gte=-180,lte=180"`
	West  float64 `json:"west" yaml:"west" validate:"gte=-180,lte=180"`
}

// Validate checks the ordering invariant of the rectangle.
func (b Bounds) Validate() error {
	if !(b.North > b.South) {
		return fmt.Errorf("%w: north %.6f must be greater than south %.6f", ErrInvalidBounds, b.North, b.South)
	}
	if !(b.East > b.West) {
		return fmt.Errorf("%w: east %.6f must be greater than west %.6f", ErrInvalidBounds, b.East, b.West)
	}
	if b.North > 90 || b.South < -90 || b.East > 180 || b.West < -180 {
		return fmt.Errorf("%w: out of range", ErrInvalidBounds)
	}
	return nil
}

// Center returns the midpoint of the rectangle.
func (b Bounds) Center() LatLng {
	return LatLng{
		Lat: (b.North + b.South) / 2,
		Lng: (b.East + b.West) / 2,
	}
}

// Contains reports whether p lies inside the rectangle (edges included).
func (b Bounds) Contains(p LatLng) bool {
	return p.Lat <= b.North && p.Lat >= b.South && p.Lng <= b.East && p.Lng >= b.West
}

// HaversineDistance returns the great-circle distance between a and b in meters.
func HaversineDistance(a, b LatLng) float64 {
	p1 := s2.LatLngFromDegrees(a.Lat, a.Lng)
	p2 := s2.LatLngFromDegrees(b.Lat, b.Lng)
	return p1.Distance(p2).Radians() * EarthRadiusMeters
}
