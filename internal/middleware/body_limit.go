package middleware

import "net/http"

// MaxBodySize returns middleware that limits request body size.
// The API bodies here are small JSON objects (credentials, token
// strings); reads beyond maxBytes fail so handlers answer with
// 413 Request Entity Too Large.
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
