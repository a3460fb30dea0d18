package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	obserrors "github.com/moneybook/websession/internal/observability/errors"
)

// Result constants for metric labels.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// Edge guard decisions.
const (
	EdgePublic   = "public"
	EdgeAsset    = "asset"
	EdgeCookie   = "cookie_present"
	EdgeRedirect = "redirect"
)

// Options configures a Recorder.
type Options struct {
	// Namespace prefixes every metric name (default "websession").
	Namespace string
	// Registry receives the collectors. A fresh registry is created when nil.
	Registry *prometheus.Registry
}

// Recorder emits session metrics to Prometheus.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	validations     *prometheus.CounterVec
	upstreamTotal   *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
	edgeDecisions   *prometheus.CounterVec
	clientRefreshes *prometheus.CounterVec
	clientRetries   *prometheus.CounterVec
}

// NewRecorder registers the session collectors.
func NewRecorder(opts Options) *Recorder {
	ns := opts.Namespace
	if ns == "" {
		ns = "websession"
	}
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		validations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "session_validations_total",
			Help:      "Session validations by result and error code",
		}, []string{"result", "code"}),
		upstreamTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "upstream_requests_total",
			Help:      "Identity provider calls by endpoint, result and error class",
		}, []string{"endpoint", "result", "error_class"}),
		upstreamLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "upstream_request_duration_seconds",
			Help:      "Identity provider call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		edgeDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "edge_decisions_total",
			Help:      "Edge guard decisions",
		}, []string{"decision"}),
		clientRefreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "client_refreshes_total",
			Help:      "Client-side refresh attempts by result",
		}, []string{"result"}),
		clientRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "client_retries_total",
			Help:      "Client-side replays after refresh by result",
		}, []string{"result"}),
	}
}

// Handler exposes the recorder's registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Validation records one session validation outcome.
func (r *Recorder) Validation(authenticated bool, code string) {
	if r == nil {
		return
	}
	result := ResultSuccess
	if !authenticated {
		result = ResultError
	}
	r.validations.WithLabelValues(result, code).Inc()
}

// UpstreamMetric captures one identity provider call.
type UpstreamMetric struct {
	Endpoint string
	Result   string
	Duration time.Duration
	Err      error
}

// Upstream records an identity provider call.
func (r *Recorder) Upstream(in UpstreamMetric) {
	if r == nil {
		return
	}
	class := ""
	if in.Err != nil && in.Result == ResultError {
		class = obserrors.Classify(in.Err)
	}
	r.upstreamTotal.WithLabelValues(in.Endpoint, in.Result, class).Inc()
	if in.Duration > 0 {
		r.upstreamLatency.WithLabelValues(in.Endpoint).Observe(in.Duration.Seconds())
	}
}

// Edge records an edge guard decision.
func (r *Recorder) Edge(decision string) {
	if r == nil {
		return
	}
	r.edgeDecisions.WithLabelValues(decision).Inc()
}

// ClientRefresh records a client-side refresh attempt.
func (r *Recorder) ClientRefresh(result string) {
	if r == nil {
		return
	}
	r.clientRefreshes.WithLabelValues(result).Inc()
}

// ClientRetry records a replay of a request after refresh.
func (r *Recorder) ClientRetry(result string) {
	if r == nil {
		return
	}
	r.clientRetries.WithLabelValues(result).Inc()
}
