// Package middleware provides HTTP middleware for the VideoLearn API.
package middleware

import (
	"net/http"
	"strings"
)

const (
	// allowedHeaders lists the request headers the chat widget sends,
	// including the per-tab session header.
	allowedHeaders  = "Content-Type, X-Session-ID"
	allowedMethods  = "GET, POST, PUT, OPTIONS"
	preflightMaxAge = "600"
)

// CORS returns middleware that lets the widget call the API from another
// origin. "*" admits any origin but never with credentials, so the anonymous
// identity cookie only travels to explicitly listed origins.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	explicit := make(map[string]bool, len(allowedOrigins))
	wildcard := false
	for _, o := range allowedOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		switch o {
		case "":
		case "*":
			wildcard = true
		default:
			explicit[o] = true
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				w.Header().Add("Vary", "Origin")
			}

			if origin != "" && (explicit[origin] || wildcard) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", allowedMethods)
				h.Set("Access-Control-Allow-Headers", allowedHeaders)
				if explicit[origin] {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
			}

			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Max-Age", preflightMaxAge)
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
