package metrics

import (
	"net/http"

	"github.com/modfin/cspd/pkg/cspd"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Report outcomes.
const (
	Logged      = "logged"
	TooLarge    = "too_large"
	ReadError   = "read_error"
	RateLimited = "rate_limited"
)

type Metrics struct {
	PolicyHeadersTotal    *prometheus.CounterVec
	ViolationReportsTotal *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the counters with registry, prometheus.DefaultRegisterer
// when nil.
func New(registry *prometheus.Registry) *Metrics {
	var reg prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if registry != nil {
		reg = registry
		gatherer = registry
	}
	factory := promauto.With(reg)
	return &Metrics{
		PolicyHeadersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cspd_policy_headers_total",
				Help: "Responses a content security policy header was added to",
			},
			[]string{"header"},
		),
		ViolationReportsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cspd_violation_reports_total",
				Help: "Violation reports received, by outcome",
			},
			[]string{"outcome"},
		),
		gatherer: gatherer,
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) Report(outcome string) {
	m.ViolationReportsTotal.WithLabelValues(outcome).Inc()
}

// Middleware counts responses passing through with header attached.
func (m *Metrics) Middleware(header string) cspd.Middleware {
	c := m.PolicyHeadersTotal.WithLabelValues(header)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c.Inc()
			next.ServeHTTP(w, r)
		})
	}
}
