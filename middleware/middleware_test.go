package middleware

import (
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dalemusser/addfriend/config"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestSecurityHeadersDefaults(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(DefaultSecurityOptions())(ok).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/friends/add", nil))

	tests := []struct {
		header string
		want   string
	}{
		{"X-Frame-Options", "DENY"},
		{"X-Content-Type-Options", "nosniff"},
		{"Referrer-Policy", "strict-origin-when-cross-origin"},
		{"Content-Security-Policy", PageCSP},
		{"Strict-Transport-Security", ""},
	}
	for _, tt := range tests {
		if got := rec.Header().Get(tt.header); got != tt.want {
			t.Errorf("%s = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestSecurityHeadersHSTS(t *testing.T) {
	opts := DefaultSecurityOptions()
	opts.HSTSPreload = true
	h := SecurityHeaders(opts)(ok)

	t.Run("HTTP", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://example.com/", nil))
		if got := rec.Header().Get("Strict-Transport-Security"); got != "" {
			t.Errorf("HSTS over HTTP = %q", got)
		}
	})
	t.Run("HTTPS", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "https://example.com/", nil)
		req.TLS = &tls.ConnectionState{}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		want := "max-age=31536000; includeSubDomains; preload"
		if got := rec.Header().Get("Strict-Transport-Security"); got != want {
			t.Errorf("HSTS = %q, want %q", got, want)
		}
	})
}

func TestSecurityOptionsFor(t *testing.T) {
	if got := SecurityOptionsFor(nil).HSTSMaxAge; got != 0 {
		t.Errorf("nil config HSTSMaxAge = %d", got)
	}
	cfg := &config.CoreConfig{}
	cfg.HTTP.UseHTTPS = true
	if got := SecurityOptionsFor(cfg).HSTSMaxAge; got == 0 {
		t.Error("HTTPS config should keep HSTS")
	}
}

func TestLimitBodySize(t *testing.T) {
	h := LimitBodySize(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			http.Error(w, "too big", http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	for _, tt := range []struct {
		body string
		want int
	}{
		{"short", http.StatusOK},
		{"much too long", http.StatusRequestEntityTooLarge},
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body)))
		if rec.Code != tt.want {
			t.Errorf("body %q: status = %d, want %d", tt.body, rec.Code, tt.want)
		}
	}
}

func TestRequireJSON(t *testing.T) {
	tests := []struct {
		ct   string
		want int
	}{
		{"application/json", http.StatusOK},
		{"application/json; charset=utf-8", http.StatusOK},
		{"application/problem+json", http.StatusOK},
		{"text/plain", http.StatusUnsupportedMediaType},
		{"", http.StatusUnsupportedMediaType},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/api/friend-requests", strings.NewReader("{}"))
		if tt.ct != "" {
			req.Header.Set("Content-Type", tt.ct)
		}
		rec := httptest.NewRecorder()
		RequireJSON(ok).ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Errorf("Content-Type %q: status = %d, want %d", tt.ct, rec.Code, tt.want)
		}
	}
}

func TestCORS(t *testing.T) {
	cfg := &config.CoreConfig{}
	cfg.CORS.EnableCORS = true
	cfg.CORS.CORSAllowedOrigins = []string{"https://app.example"}
	cfg.CORS.CORSAllowedMethods = []string{"GET", "POST"}

	req := httptest.NewRequest(http.MethodGet, "/api/users/u1/friend-requests", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	CORS(cfg)(ok).ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Errorf("Allow-Origin = %q", got)
	}

	rec = httptest.NewRecorder()
	CORS(&config.CoreConfig{})(ok).ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("disabled CORS set Allow-Origin = %q", got)
	}
}

func TestNotFoundNegotiates(t *testing.T) {
	tests := []struct {
		path   string
		accept string
		wantCT string
	}{
		{"/api/nope", "", "application/json"},
		{"/nope", "application/json", "application/json"},
		{"/nope", "text/html,application/xhtml+xml", "text/plain"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		req.Header.Set("Accept", tt.accept)
		rec := httptest.NewRecorder()
		NotFound(nil).ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d", tt.path, rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, tt.wantCT) {
			t.Errorf("%s (%s): Content-Type = %q, want %s", tt.path, tt.accept, ct, tt.wantCT)
		}
	}
}
