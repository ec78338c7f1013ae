package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/woozymasta/diarymap/internal/geo"
)

func newTestClient(t *testing.T, h http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(Options{BaseURL: srv.URL, HTTPClient: srv.Client(), BreakerFailures: 3})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c, srv
}

func TestClusters_SendsExactViewport(t *testing.T) {
	var gotQuery string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/map/clusters" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"kind":"clusters","data":[{"areaId":11,"lat":37.5,"lon":126.9,"diaryCount":42}]}`))
	}))

	q := ViewportQuery{Bounds: geo.Bounds{North: 38, South: 37, East: 127, West: 126}, Zoom: 10}
	got, err := c.Clusters(context.Background(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotQuery != "east=127&north=38&south=37&west=126&zoom=10" {
		t.Fatalf("unexpected query %q", gotQuery)
	}
	if len(got) != 1 || got[0].AreaID != 11 || got[0].DiaryCount != 42 {
		t.Fatalf("unexpected clusters %+v", got)
	}
}

func TestDiaries_RejectsWrongKind(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"kind":"clusters","data":[]}`))
	}))

	_, err := c.Diaries(context.Background(), ViewportQuery{Bounds: geo.Bounds{North: 1, East: 1}, Zoom: 15})
	if !errors.Is(err, ErrUnexpectedKind) {
		t.Fatalf("expected ErrUnexpectedKind, got %v", err)
	}
}

func TestDiaries_ValidatesCoordinates(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"kind":"diaries","data":[
			{"diaryId":1,"title":"ok","lat":37.1,"lng":127.1,"thumbnailUrl":"http://img/1.png"},
			{"diaryId":2,"title":"bad","lat":137.1,"lng":127.1}
		]}`))
	}))

	_, err := c.Diaries(context.Background(), ViewportQuery{Bounds: geo.Bounds{North: 1, East: 1}, Zoom: 15})
	if err == nil || !strings.Contains(err.Error(), "item 1") {
		t.Fatalf("expected validation error on item 1, got %v", err)
	}
}

func TestReverseGeocode(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("lat") != "37.5" || r.URL.Query().Get("lng") != "126.5" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"kind":"region","data":{"country":"KR","province":"Seoul","city":"Seoul","district":"Jung-gu"}}`))
	}))

	region, err := c.ReverseGeocode(context.Background(), geo.LatLng{Lat: 37.5, Lng: 126.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if region.District != "Jung-gu" {
		t.Fatalf("unexpected region %+v", region)
	}
}

func TestStatusError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := c.Clusters(context.Background(), ViewportQuery{Bounds: geo.Bounds{North: 1, East: 1}})
	if !errors.Is(err, ErrStatus) {
		t.Fatalf("expected ErrStatus, got %v", err)
	}
}

func TestUnauthorized_RefreshesOnceAndRetries(t *testing.T) {
	var refreshed atomic.Bool
	var dataCalls atomic.Int32

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/refresh":
			if r.Method != http.MethodPost {
				t.Errorf("expected POST refresh, got %s", r.Method)
			}
			refreshed.Store(true)
			w.WriteHeader(http.StatusNoContent)
		case "/api/v1/map/clusters":
			dataCalls.Add(1)
			if !refreshed.Load() {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"kind":"clusters","data":[]}`))
		}
	}))

	got, err := c.Clusters(context.Background(), ViewportQuery{Bounds: geo.Bounds{North: 1, East: 1}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty clusters, got %+v", got)
	}
	if c.Session().Refreshes() != 1 {
		t.Fatalf("expected one refresh, got %d", c.Session().Refreshes())
	}
	if dataCalls.Load() != 2 {
		t.Fatalf("expected original call and one retry, got %d", dataCalls.Load())
	}
}

func TestUnauthorized_RefreshRejected(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := c.Clusters(context.Background(), ViewportQuery{Bounds: geo.Bounds{North: 1, East: 1}})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestSessionsAreIsolatedPerClient(t *testing.T) {
	a, err := New(Options{BaseURL: "http://a.example"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	b, err := New(Options{BaseURL: "http://b.example"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if a.Session() == b.Session() {
		t.Fatalf("expected distinct session state per client")
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))

	q := ViewportQuery{Bounds: geo.Bounds{North: 1, East: 1}}
	for i := 0; i < 3; i++ {
		if _, err := c.Clusters(context.Background(), q); err == nil {
			t.Fatalf("expected failure %d", i)
		}
	}

	_, err := c.Clusters(context.Background(), q)
	if err == nil || !strings.Contains(err.Error(), "circuit breaker is open") {
		t.Fatalf("expected open breaker error, got %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected breaker to short-circuit the fourth call, got %d calls", calls.Load())
	}
}

func TestNew_RejectsRelativeURL(t *testing.T) {
	if _, err := New(Options{BaseURL: "/relative"}); err == nil {
		t.Fatalf("expected error for relative base url")
	}
}
