// Package metrics exposes Prometheus collectors for the HTTP server and the
// claim, auth and moderation paths.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg *prometheus.Registry

	requests          *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	authFailures      *prometheus.CounterVec
	rateLimited       *prometheus.CounterVec
	claims            *prometheus.CounterVec
	moderation        *prometheus.CounterVec
	eventPublishFails prometheus.Counter
}

func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clawcreate",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clawcreate",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clawcreate",
			Name:      "auth_failures_total",
			Help:      "Rejected API key authentications by reason.",
		}, []string{"reason"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clawcreate",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter by scope.",
		}, []string{"scope"}),
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clawcreate",
			Name:      "claims_total",
			Help:      "Claim attempts by result.",
		}, []string{"result"}),
		moderation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clawcreate",
			Name:      "moderation_outcomes_total",
			Help:      "Moderation verdicts by outcome.",
		}, []string{"outcome"}),
		eventPublishFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clawcreate",
			Name:      "event_publish_failures_total",
			Help:      "Domain events that could not be published.",
		}),
	}
	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.requests, r.requestDuration, r.authFailures, r.rateLimited,
		r.claims, r.moderation, r.eventPublishFails,
	)
	return r
}

func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Gatherer is exposed for tests.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

func (r *Registry) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	r.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	r.requestDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

func (r *Registry) AuthFailure(reason string) { r.authFailures.WithLabelValues(reason).Inc() }

func (r *Registry) RateLimited(scope string) { r.rateLimited.WithLabelValues(scope).Inc() }

func (r *Registry) Claim(result string) { r.claims.WithLabelValues(result).Inc() }

func (r *Registry) Moderation(outcome string) { r.moderation.WithLabelValues(outcome).Inc() }

func (r *Registry) EventPublishFailed() { r.eventPublishFails.Inc() }
