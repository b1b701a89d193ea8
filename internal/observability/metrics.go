package observability

import (
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yungbote/persona-backend/internal/analysis/retry"
	"github.com/yungbote/persona-backend/internal/platform/logger"
)

const namespace = "persona"

// Metrics is safe to use through a nil pointer; every method is then a no-op.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	attempts       *prometheus.CounterVec
	attemptLatency *prometheus.HistogramVec
	transitions    *prometheus.CounterVec
	outcomes       *prometheus.CounterVec
	completions    *prometheus.CounterVec
	persistFailed  *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
	duplicates     *prometheus.CounterVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	v := strings.TrimSpace(os.Getenv("METRICS_ENABLED"))
	if v == "" {
		return true
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func Current() *Metrics {
	return instance
}

// Init builds the process-wide metrics once. It returns nil when metrics are
// disabled.
func Init(log *logger.Logger, enabled bool) *Metrics {
	if !enabled {
		return nil
	}
	initOnce.Do(func() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		instance = New(reg)
		if log != nil {
			log.Info("Observability metrics enabled")
		}
	})
	return instance
}

// New registers every collector on reg. Tests pass a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		registry: reg,
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Total API requests by method/route/status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "API request latency in seconds by method/route/status.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}, []string{"method", "route", "status"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "api_inflight_requests",
			Help:      "In-flight API requests.",
		}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_attempts_total",
			Help:      "Completion attempts by variant/kind/error class.",
		}, []string{"variant", "kind", "class"}),
		attemptLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_attempt_duration_seconds",
			Help:      "Completion attempt latency in seconds by variant/kind.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 45, 60, 90},
		}, []string{"variant", "kind"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_transitions_total",
			Help:      "Retry controller state transitions by variant/from/to.",
		}, []string{"variant", "from", "to"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_outcomes_total",
			Help:      "Finished analyses by variant/terminal state.",
		}, []string{"variant", "state"}),
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_completions_total",
			Help:      "Schema completer repairs by variant/kind.",
		}, []string{"variant", "kind"}),
		persistFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_failures_total",
			Help:      "Persistence failures by operation.",
		}, []string{"op"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_cache_lookups_total",
			Help:      "Fetch cache lookups by result.",
		}, []string{"result"}),
		duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_duplicate_submissions_total",
			Help:      "Submissions rejected by the in-flight guard, by variant.",
		}, []string{"variant"}),
	}
	reg.MustRegister(
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.attempts, m.attemptLatency, m.transitions, m.outcomes,
		m.completions, m.persistFailed, m.cacheLookups, m.duplicates,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveAPI(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route, status).Observe(d.Seconds())
}

// ObserveAttempt implements retry.Recorder.
func (m *Metrics) ObserveAttempt(variant string, fallback bool, class string, d time.Duration) {
	if m == nil {
		return
	}
	kind := "primary"
	if fallback {
		kind = "fallback"
	}
	m.attempts.WithLabelValues(variant, kind, class).Inc()
	m.attemptLatency.WithLabelValues(variant, kind).Observe(d.Seconds())
}

// ObserveTransition implements retry.Recorder.
func (m *Metrics) ObserveTransition(variant string, from, to retry.State) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(variant, from.String(), to.String()).Inc()
}

func (m *Metrics) ObserveOutcome(variant string, state retry.State) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(variant, state.String()).Inc()
}

// ObserveCompletion counts completer work; n is added under kind.
func (m *Metrics) ObserveCompletion(variant, kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.completions.WithLabelValues(variant, kind).Add(float64(n))
}

func (m *Metrics) IncPersistenceFailure(op string) {
	if m == nil {
		return
	}
	m.persistFailed.WithLabelValues(op).Inc()
}

func (m *Metrics) ObserveCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) IncDuplicateSubmission(variant string) {
	if m == nil {
		return
	}
	m.duplicates.WithLabelValues(variant).Inc()
}
