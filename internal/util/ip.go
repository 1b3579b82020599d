package util

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP extracts the originating client address from a request, honoring
// the proxy headers set by Nginx or an ingress in front of the dashboard.
func ClientIP(r *http.Request) string {
	// X-Forwarded-For carries "client, proxy1, proxy2".
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return strings.TrimSpace(realIP)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return ip
	}
	return r.RemoteAddr
}
