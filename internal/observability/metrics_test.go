package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yungbote/persona-backend/internal/analysis/retry"
)

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	m.ObserveAttempt("v", false, "none", time.Second)
	m.ObserveTransition("v", retry.Idle, retry.Attempting)
	m.ObserveOutcome("v", retry.Success)
	m.IncPersistenceFailure("save")
	m.ObserveAPI("GET", "/x", "200", time.Millisecond)
	m.ApiInflightInc()
	m.ApiInflightDec()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestRecorderCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())
	var _ retry.Recorder = m

	m.ObserveAttempt("deep", false, "timeout", 2*time.Second)
	m.ObserveAttempt("deep", false, "timeout", 3*time.Second)
	m.ObserveAttempt("deep", true, "none", time.Second)
	m.ObserveTransition("deep", retry.FallbackAttempting, retry.FallbackSuccess)
	m.ObserveOutcome("deep", retry.FallbackSuccess)
	m.IncPersistenceFailure("save")
	m.ObserveCompletion("deep", "filled_strings", 3)
	m.ObserveCompletion("deep", "added_items", 0)

	if got := testutil.ToFloat64(m.attempts.WithLabelValues("deep", "primary", "timeout")); got != 2 {
		t.Fatalf("primary timeouts=%v", got)
	}
	if got := testutil.ToFloat64(m.attempts.WithLabelValues("deep", "fallback", "none")); got != 1 {
		t.Fatalf("fallback attempts=%v", got)
	}
	if got := testutil.ToFloat64(m.transitions.WithLabelValues("deep", "fallback_attempting", "fallback_success")); got != 1 {
		t.Fatalf("transitions=%v", got)
	}
	if got := testutil.ToFloat64(m.outcomes.WithLabelValues("deep", "fallback_success")); got != 1 {
		t.Fatalf("outcomes=%v", got)
	}
	if got := testutil.ToFloat64(m.persistFailed.WithLabelValues("save")); got != 1 {
		t.Fatalf("persistence failures=%v", got)
	}
	if got := testutil.ToFloat64(m.completions.WithLabelValues("deep", "filled_strings")); got != 3 {
		t.Fatalf("completions=%v", got)
	}
	if n := testutil.CollectAndCount(m.completions); n != 1 {
		t.Fatalf("zero completions must not create a series, got %d", n)
	}
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New(nil)
	m.ObserveAPI("POST", "/functions/v1/:variant", "200", 150*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `persona_api_requests_total{method="POST",route="/functions/v1/:variant",status="200"} 1`) {
		t.Fatalf("missing api counter in:\n%s", rec.Body.String())
	}
}
