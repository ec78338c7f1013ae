package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/woozymasta/diarymap/internal/api"
	"github.com/woozymasta/diarymap/internal/config"
	"github.com/woozymasta/diarymap/internal/geo"
	"github.com/woozymasta/diarymap/internal/geolocate"
	"github.com/woozymasta/diarymap/internal/metrics"
	"github.com/woozymasta/diarymap/internal/viewport"

	"github.com/goccy/go-json"
)

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/map/clusters":
			_, _ = w.Write([]byte(`{"kind":"clusters","data":[{"areaId":7,"lat":37.5,"lon":126.5,"diaryCount":12}]}`))
		case "/api/v1/map/diaries":
			_, _ = w.Write([]byte(`{"kind":"diaries","data":[{"diaryId":3,"title":"cafe","lat":37.55,"lng":126.55}]}`))
		case "/api/v1/geocode/reverse":
			_, _ = w.Write([]byte(`{"kind":"region","data":{"country":"KR","city":"Seoul"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestServer(t *testing.T, loc geolocate.Locator) (*ServerContext, http.Handler) {
	t.Helper()
	backend := newBackend(t)

	cfg, err := config.Parse([]byte("backend:\n  base_url: " + backend.URL + "\n"))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	client, err := api.New(api.Options{BaseURL: backend.URL, HTTPClient: backend.Client()})
	if err != nil {
		t.Fatalf("client: %v", err)
	}

	opts := viewport.OptionsFromConfig(cfg)
	opts.Fetcher = client
	opts.Locator = loc
	opts.Throttle = 0
	opts.Debounce = 0
	ctl := viewport.New(opts)
	t.Cleanup(ctl.Close)
	ctl.Mount(t.Context())

	m := metrics.New()
	s := NewServerContext(cfg, ctl, m)
	return s, RequestLogger(s.Routes(), m)
}

func do(h http.Handler, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	h.ServeHTTP(rr, req)
	return rr
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestHandleViewport_Validation(t *testing.T) {
	_, h := newTestServer(t, nil)

	if rr := do(h, http.MethodPost, "/api/viewport", "{", nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad json, got %d", rr.Code)
	}
	if rr := do(h, http.MethodPost, "/api/viewport", `{"north":37,"south":38,"east":127,"west":126,"zoom":10}`, nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for inverted bounds, got %d", rr.Code)
	}
	if rr := do(h, http.MethodPost, "/api/viewport", `{"north":38,"south":37,"east":127,"west":126,"zoom":40}`, nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for zoom out of range, got %d", rr.Code)
	}
	if rr := do(h, http.MethodGet, "/api/viewport", "", nil); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET, got %d", rr.Code)
	}
}

func TestViewportToMarkersFlow(t *testing.T) {
	s, h := newTestServer(t, nil)

	rr := do(h, http.MethodPost, "/api/viewport", `{"north":38,"south":37,"east":127,"west":126,"zoom":10}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp viewportResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Accepted || resp.Generation != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}

	waitFor(t, func() bool { return len(s.Controller.Markers()) == 1 })

	rr = do(h, http.MethodGet, "/api/markers", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/geo+json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	var fc geo.GeoJSONFeatureCollection
	if err := json.Unmarshal(rr.Body.Bytes(), &fc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(fc.Features) != 1 || fc.Features[0].Properties["id"] != "area-7" {
		t.Fatalf("unexpected features %+v", fc.Features)
	}

	etag := rr.Header().Get("ETag")
	if rr := do(h, http.MethodGet, "/api/markers", "", map[string]string{"If-None-Match": etag}); rr.Code != http.StatusNotModified {
		t.Fatalf("expected 304 for matching etag, got %d", rr.Code)
	}

	rr = do(h, http.MethodGet, "/api/region", "", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"city":"Seoul"`) {
		t.Fatalf("unexpected region response %d: %s", rr.Code, rr.Body.String())
	}

	rr = do(h, http.MethodGet, "/api/state", "", nil)
	if !strings.Contains(rr.Body.String(), `"mode":"clustered"`) {
		t.Fatalf("unexpected state %s", rr.Body.String())
	}
}

func TestHandleRoute(t *testing.T) {
	_, h := newTestServer(t, nil)
	if rr := do(h, http.MethodGet, "/api/route", "", nil); rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 without location, got %d", rr.Code)
	}

	here := geo.LatLng{Lat: 37.5, Lng: 126.5}
	s, h := newTestServer(t, geolocate.Static{Position: &here})
	do(h, http.MethodPost, "/api/viewport", `{"north":38,"south":37,"east":127,"west":126,"zoom":15}`, nil)
	waitFor(t, func() bool { return len(s.Controller.Markers()) == 1 })

	rr := do(h, http.MethodGet, "/api/route", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, `"LineString"`) || !strings.Contains(body, `"diary-3"`) {
		t.Fatalf("unexpected route body %s", body)
	}
}

func TestHandleRegion_NoViewport(t *testing.T) {
	_, h := newTestServer(t, nil)
	if rr := do(h, http.MethodGet, "/api/region", "", nil); rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestHandleClusterIcon(t *testing.T) {
	_, h := newTestServer(t, nil)

	rr := do(h, http.MethodGet, "/api/icons/cluster?count=60", "", nil)
	if rr.Code != http.StatusOK || rr.Header().Get("Content-Type") != "image/svg+xml" {
		t.Fatalf("unexpected response %d %q", rr.Code, rr.Header().Get("Content-Type"))
	}
	if !strings.Contains(strings.ToLower(rr.Body.String()), "#d7263d") {
		t.Fatalf("expected large tier fill, got %s", rr.Body.String())
	}

	if rr := do(h, http.MethodGet, "/api/icons/cluster?count=x", "", nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestRequestLogger_RecordsPattern(t *testing.T) {
	_, h := newTestServer(t, nil)
	do(h, http.MethodGet, "/api/state", "", nil)

	rr := do(h, http.MethodGet, "/metrics", "", nil)
	want := `diarymap_http_requests_total{method="GET",path="GET /api/state",status="200"} 1`
	if !strings.Contains(rr.Body.String(), want) {
		t.Fatalf("expected %q in metrics body", want)
	}
}
