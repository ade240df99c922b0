// middleware/middleware.go
package middleware

import (
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/dalemusser/addfriend/config"
	"github.com/dalemusser/addfriend/httputil"
)

func identity(next http.Handler) http.Handler { return next }

// LimitBodySize caps request bodies at maxBytes; <= 0 disables the cap.
func LimitBodySize(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		return identity
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// CORS applies the configured CORS policy, or nothing when disabled.
func CORS(cfg *config.CoreConfig) func(http.Handler) http.Handler {
	if cfg == nil || !cfg.CORS.EnableCORS {
		return identity
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.CORSAllowedOrigins,
		AllowedMethods:   cfg.CORS.CORSAllowedMethods,
		AllowedHeaders:   cfg.CORS.CORSAllowedHeaders,
		ExposedHeaders:   cfg.CORS.CORSExposedHeaders,
		AllowCredentials: cfg.CORS.CORSAllowCredentials,
		MaxAge:           cfg.CORS.CORSMaxAge,
	})
}

// RequireJSON answers 415 unless the body is declared as JSON.
func RequireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || (mt != "application/json" && !strings.HasSuffix(mt, "+json")) {
			httputil.JSONError(w, http.StatusUnsupportedMediaType,
				"unsupported_media_type", "Content-Type must be application/json")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// wantsJSON reports whether the caller is an API client rather than a browser.
func wantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html")
}

func fallback(logger *zap.Logger, status int, code, message string) http.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		logger.Info(code,
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_ip", r.RemoteAddr))
		if wantsJSON(r) {
			httputil.JSONError(w, status, code, message)
			return
		}
		http.Error(w, message, status)
	}
}

// NotFound logs a 404 and answers JSON for API callers, plain text otherwise.
func NotFound(logger *zap.Logger) http.HandlerFunc {
	return fallback(logger, http.StatusNotFound, "not_found",
		"The requested resource was not found")
}

// MethodNotAllowed is the 405 counterpart of NotFound.
func MethodNotAllowed(logger *zap.Logger) http.HandlerFunc {
	return fallback(logger, http.StatusMethodNotAllowed, "method_not_allowed",
		"The requested HTTP method is not allowed for this resource")
}
