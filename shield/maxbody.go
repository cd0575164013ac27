package shield

import (
	"net/http"
	"strings"
)

// MaxBody returns middleware that caps the request body size for JSON
// and form-encoded requests. Snippet code is bounded server-side anyway
// (32 KiB per snippet); this stops oversized payloads before decoding.
func MaxBody(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ct := r.Header.Get("Content-Type")
			if strings.HasPrefix(ct, "application/json") ||
				strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
