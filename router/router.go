// router/router.go
package router

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/dalemusser/addfriend/config"
	"github.com/dalemusser/addfriend/logging"
	"github.com/dalemusser/addfriend/metrics"
	"github.com/dalemusser/addfriend/middleware"
)

// New returns a chi router carrying the standard stack, outermost first:
// request id, real ip, panic recovery, request logging, route metrics,
// security headers, gzip, body size limit. 404/405 answers negotiate
// JSON for API callers. Routes are left to the caller.
func New(cfg *config.CoreConfig, m *metrics.Metrics, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(logging.Recoverer(logger))
	r.Use(logging.RequestLogger(logger))
	if m != nil {
		r.Use(m.HTTP)
	}
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptionsFor(cfg)))
	r.Use(chimw.Compress(5, "text/html", "application/json"))
	r.Use(middleware.LimitBodySize(cfg.MaxRequestBodyBytes))

	r.NotFound(middleware.NotFound(logger))
	r.MethodNotAllowed(middleware.MethodNotAllowed(logger))
	return r
}
