package nocache

import (
	"net/http"
)

// Middleware forbids any cache from storing the response, including the
// browser's.
func Middleware(next http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		next.ServeHTTP(w, r)
	}
	return http.HandlerFunc(fn)
}
