// metrics/metrics.go
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dalemusser/addfriend/internal/emailschema"
)

const maxRouteLabelLength = 256

// Metrics holds the service collectors. The zero value is not usable; call
// New.
type Metrics struct {
	reg      prometheus.Registerer
	gatherer prometheus.Gatherer

	reqDuration *prometheus.HistogramVec
	validations *prometheus.CounterVec
	submissions *prometheus.CounterVec
	submitting  prometheus.Gauge
}

// New creates the collectors and registers them on reg. A nil reg means a
// fresh registry that also carries the Go and process collectors.
func New(reg *prometheus.Registry) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
		if err := register(reg,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		); err != nil {
			return nil, err
		}
	}

	m := &Metrics{
		reg:      reg,
		gatherer: reg,
		reqDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.3, 1.2, 5},
		}, []string{"route", "method", "status"}),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "addfriend_form_validations_total",
			Help: "Add-friend email validations by result.",
		}, []string{"result"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "addfriend_form_submissions_total",
			Help: "Settled add-friend submissions by result.",
		}, []string{"result"}),
		submitting: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "addfriend_form_submitting",
			Help: "Add-friend submissions currently awaiting the friend service.",
		}),
	}
	if err := register(reg, m.reqDuration, m.validations, m.submissions, m.submitting); err != nil {
		return nil, err
	}
	return m, nil
}

func register(reg prometheus.Registerer, cs ...prometheus.Collector) error {
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{Registry: m.reg})
}

// Validated counts one validation, labeled "ok" or by failure kind.
func (m *Metrics) Validated(kind emailschema.Kind) {
	m.validations.WithLabelValues(kind.String()).Inc()
}

// SubmitStarted marks a submission as awaiting the friend service.
func (m *Metrics) SubmitStarted() { m.submitting.Inc() }

// SubmitSettled ends a submission started by SubmitStarted.
func (m *Metrics) SubmitSettled(err error) {
	m.submitting.Dec()
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.submissions.WithLabelValues(result).Inc()
}

// Blocked counts a submission refused before reaching the friend service.
func (m *Metrics) Blocked(reason string) {
	m.submissions.WithLabelValues(reason).Inc()
}

// HTTP records request duration keyed by the chi route pattern, so
// /api/users/{id}/friend-requests stays one series.
func (m *Metrics) HTTP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		proto := r.ProtoMajor
		if proto < 1 {
			proto = 1
		}
		ww := middleware.NewWrapResponseWriter(w, proto)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		if status < 100 || status > 599 {
			status = http.StatusInternalServerError
		}

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		if len(route) > maxRouteLabelLength {
			route = truncateUTF8(route, maxRouteLabelLength-3) + "..."
		}

		m.reqDuration.WithLabelValues(route, r.Method, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}

// truncateUTF8 cuts s to at most n bytes on a rune boundary.
func truncateUTF8(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
