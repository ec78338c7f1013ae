package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandler_nilMetrics(t *testing.T) {
	var m *Metrics
	m.IncSettle("accepted")
	m.ObserveFetch("clustered", "success", time.Second)
	m.IncStale()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	m.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if got := rr.Body.String(); !strings.Contains(got, "metrics unavailable") {
		t.Fatalf("expected body to mention metrics unavailable, got %q", got)
	}
}

func TestHandler_exposesRegisteredMetrics(t *testing.T) {
	m := New()
	m.ObserveHTTPRequest(http.MethodGet, "/api/markers", http.StatusOK, 12*time.Millisecond)
	m.IncSettle("accepted")
	m.IncSettle("throttled")
	m.IncSettle("throttled")
	m.ObserveFetch("clustered", "success", 40*time.Millisecond)
	m.IncStale()
	m.IncIconLookup("hit")
	m.SetIconCacheSize(3)
	m.SetBreakerState("diary-backend", 2)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	m.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	body := rr.Body.String()
	for _, want := range []string{
		`diarymap_http_requests_total{method="GET",path="/api/markers",status="200"} 1`,
		`diarymap_viewport_settle_events_total{result="throttled"} 2`,
		`diarymap_viewport_fetches_total{mode="clustered",result="success"} 1`,
		`diarymap_viewport_stale_responses_total 1`,
		`diarymap_icon_lookups_total{result="hit"} 1`,
		`diarymap_icon_cache_entries 3`,
		`diarymap_backend_breaker_state{name="diary-backend"} 2`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in body=%s", want, body)
		}
	}
}
