package geo

import (
	"errors"
	"math"
	"testing"
)

func TestBoundsValidate(t *testing.T) {
	ok := Bounds{North: 38, South: 37, East: 127, West: 126}
	if err := ok.Validate(); err != nil {
		t.Fatalf("expected valid bounds, got %v", err)
	}

	cases := []Bounds{
		{North: 37, South: 38, East: 127, West: 126},
		{North: 38, South: 38, East: 127, West: 126},
		{North: 38, South: 37, East: 126, West: 127},
		{North: 91, South: 37, East: 127, West: 126},
	}
	for _, b := range cases {
		if err := b.Validate(); !errors.Is(err, ErrInvalidBounds) {
			t.Fatalf("expected ErrInvalidBounds for %+v, got %v", b, err)
		}
	}
}

func TestBoundsCenterAndContains(t *testing.T) {
	b := Bounds{North: 38, South: 37, East: 127, West: 126}
	c := b.Center()
	if c.Lat != 37.5 || c.Lng != 126.5 {
		t.Fatalf("unexpected center %+v", c)
	}
	if !b.Contains(c) {
		t.Fatalf("expected center inside bounds")
	}
	if b.Contains(LatLng{Lat: 39, Lng: 126.5}) {
		t.Fatalf("expected point outside bounds")
	}
}

func TestHaversineDistance(t *testing.T) {
	seoul := LatLng{Lat: 37.5665, Lng: 126.9780}
	busan := LatLng{Lat: 35.1796, Lng: 129.0756}

	d := HaversineDistance(seoul, busan)
	// roughly 325 km
	if d < 320000 || d > 330000 {
		t.Fatalf("expected ~325km, got %.0fm", d)
	}
	if HaversineDistance(seoul, seoul) != 0 {
		t.Fatalf("expected zero distance to self")
	}
	if math.Abs(HaversineDistance(seoul, busan)-HaversineDistance(busan, seoul)) > 1e-6 {
		t.Fatalf("expected symmetric distance")
	}
}
