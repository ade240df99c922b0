// middleware/security.go
package middleware

import (
	"net/http"
	"strconv"

	"github.com/dalemusser/addfriend/config"
)

// PageCSP allows the page's own assets plus htmx from unpkg.
const PageCSP = "default-src 'self'; script-src 'self' https://unpkg.com; style-src 'self' 'unsafe-inline'; form-action 'self'; frame-ancestors 'none'"

// SecurityOptions lists the headers SecurityHeaders sets. Empty strings and
// a zero HSTSMaxAge leave the matching header unset.
type SecurityOptions struct {
	FrameOptions          string
	ContentTypeOptions    string
	ReferrerPolicy        string
	ContentSecurityPolicy string
	PermissionsPolicy     string

	// HSTS is only ever sent on TLS requests.
	HSTSMaxAge            int
	HSTSIncludeSubDomains bool
	HSTSPreload           bool
}

// DefaultSecurityOptions returns the headers used for the add-friend pages.
func DefaultSecurityOptions() SecurityOptions {
	return SecurityOptions{
		FrameOptions:          "DENY",
		ContentTypeOptions:    "nosniff",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: PageCSP,
		PermissionsPolicy:     "geolocation=(), microphone=(), camera=()",
		HSTSMaxAge:            31536000,
		HSTSIncludeSubDomains: true,
	}
}

// SecurityOptionsFor disables HSTS unless the service itself serves HTTPS.
func SecurityOptionsFor(cfg *config.CoreConfig) SecurityOptions {
	opts := DefaultSecurityOptions()
	if cfg == nil || !cfg.HTTP.UseHTTPS {
		opts.HSTSMaxAge = 0
	}
	return opts
}

// SecurityHeaders sets the headers in opts on every response.
func SecurityHeaders(opts SecurityOptions) func(http.Handler) http.Handler {
	static := [][2]string{
		{"X-Frame-Options", opts.FrameOptions},
		{"X-Content-Type-Options", opts.ContentTypeOptions},
		{"Referrer-Policy", opts.ReferrerPolicy},
		{"Content-Security-Policy", opts.ContentSecurityPolicy},
		{"Permissions-Policy", opts.PermissionsPolicy},
	}
	hsts := ""
	if opts.HSTSMaxAge > 0 {
		hsts = "max-age=" + strconv.Itoa(opts.HSTSMaxAge)
		if opts.HSTSIncludeSubDomains {
			hsts += "; includeSubDomains"
		}
		if opts.HSTSPreload {
			hsts += "; preload"
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for _, kv := range static {
				if kv[1] != "" {
					h.Set(kv[0], kv[1])
				}
			}
			if hsts != "" && r.TLS != nil {
				h.Set("Strict-Transport-Security", hsts)
			}
			next.ServeHTTP(w, r)
		})
	}
}
