package basicauth

import (
	"crypto/subtle"
	"errors"
	"github.com/modfin/cspd/internal/log"
	"github.com/modfin/cspd/pkg/cspd"
	"net/http"
)

// Middleware requires HTTP basic auth with password, and with username when
// it is not empty.
func Middleware(username string, password string) cspd.Middleware {
	if password == "" {
		log.New().Fatal("basicauth: password required")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, p, ok := r.BasicAuth()
			if !ok {
				log.New().WithError(errors.New("basicauth: couldn't parse Authorization header")).AddToContext(r.Context())
				unauthorized(w)
				return
			}
			userOk := username == "" || subtle.ConstantTimeCompare([]byte(username), []byte(u)) == 1
			passOk := subtle.ConstantTimeCompare([]byte(password), []byte(p)) == 1
			if !userOk || !passOk {
				log.New().WithError(errors.New("basicauth: wrong username or password")).AddToContext(r.Context())
				unauthorized(w)
				return
			}
			log.New().WithField("basic_auth_username", u).AddToContext(r.Context())
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="cspd"`)
	w.WriteHeader(http.StatusUnauthorized)
}
