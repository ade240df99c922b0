// server/redirect.go
package server

import (
	"net"
	"net/http"
	"strconv"
	"strings"
)

// RedirectHandler sends every request to the same host and path over HTTPS.
// Hosts or paths carrying control characters get a 400.
func RedirectHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uri := r.URL.RequestURI()
		if !validHost(r.Host) || hasControl(uri) {
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}
		host := r.Host
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
			if strings.Contains(h, ":") {
				host = "[" + h + "]"
			}
		}
		http.Redirect(w, r, "https://"+host+uri, http.StatusMovedPermanently)
	})
}

func hasControl(s string) bool {
	for _, c := range s {
		if c < 0x20 || c == 0x7f {
			return true
		}
	}
	return false
}

func validHost(host string) bool {
	if host == "" || hasControl(host) || strings.ContainsAny(host, "/\\@ ") {
		return false
	}
	h, port, err := net.SplitHostPort(host)
	if err != nil {
		h = host
	} else if n, err := strconv.Atoi(port); err != nil || n <= 0 || n > 65535 {
		return false
	}
	if strings.HasPrefix(h, "[") || strings.Contains(h, ":") {
		ip := strings.Trim(h, "[]")
		if i := strings.IndexByte(ip, '%'); i >= 0 {
			ip = ip[:i]
		}
		return net.ParseIP(ip) != nil
	}
	return h != ""
}
