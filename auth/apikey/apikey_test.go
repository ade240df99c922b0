package apikey

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequire(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name     string
		expected string
		headers  map[string]string
		want     int
	}{
		{"bearer", "k1", map[string]string{"Authorization": "Bearer k1"}, http.StatusNoContent},
		{"bearer lowercase", "k1", map[string]string{"Authorization": "bearer k1"}, http.StatusNoContent},
		{"header", "k1", map[string]string{Header: "k1"}, http.StatusNoContent},
		{"wrong", "k1", map[string]string{Header: "k2"}, http.StatusUnauthorized},
		{"missing", "k1", nil, http.StatusUnauthorized},
		{"not configured", "", map[string]string{Header: ""}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/friend-requests", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			Require(tt.expected, "", nil)(ok).ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusUnauthorized {
				if got := rec.Header().Get("WWW-Authenticate"); got != `Bearer realm="addfriend"` {
					t.Errorf("WWW-Authenticate = %q", got)
				}
			}
		})
	}
}
