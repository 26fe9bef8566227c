package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the portal's Prometheus collectors
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal *prometheus.CounterVec

	RoleResolutionsTotal *prometheus.CounterVec
	LoginAttemptsTotal   *prometheus.CounterVec
	ServiceClicksTotal   *prometheus.CounterVec

	DirectoryRequestsTotal   *prometheus.CounterVec
	DirectoryRequestDuration prometheus.Histogram
}

// New creates the collectors and registers them on a dedicated registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RoleResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_role_resolutions_total",
				Help: "Role resolutions by resulting role",
			},
			[]string{"role"},
		),
		LoginAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_login_attempts_total",
				Help: "Completed login callbacks by outcome",
			},
			[]string{"outcome"},
		),
		ServiceClicksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_service_clicks_total",
				Help: "Service entry launches by service id",
			},
			[]string{"service"},
		),
		DirectoryRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_directory_requests_total",
				Help: "Directory membership queries by outcome",
			},
			[]string{"outcome"},
		),
		DirectoryRequestDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "portal_directory_request_duration_seconds",
				Help:    "Directory membership query duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	m.registry.MustRegister(
		m.HTTPRequestsTotal,
		m.RoleResolutionsTotal,
		m.LoginAttemptsTotal,
		m.ServiceClicksTotal,
		m.DirectoryRequestsTotal,
		m.DirectoryRequestDuration,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
