package cspd

import (
	"fmt"
	"net/http"
	"strings"
)

func attachToMux(mux *http.ServeMux, dirPath string, handler http.Handler) error {
	dirPath = strings.TrimSuffix(dirPath, "/")
	if dirPath == "" {
		return handle(mux, "/", handler)
	}
	if err := handle(mux, dirPath, handler); err != nil {
		return err
	}
	return handle(mux, dirPath+"/", handler)
}

// handle registers pattern, turning the mux's panics on invalid or
// conflicting patterns into errors.
func handle(mux *http.ServeMux, pattern string, handler http.Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cspd: registering %q: %v", pattern, r)
		}
	}()
	mux.Handle(pattern, handler)
	return nil
}

// checkPath rejects paths that ServeMux would read as a method, host or
// wildcard pattern, or that no request path can equal.
func checkPath(p string) error {
	if !strings.HasPrefix(p, "/") {
		return fmt.Errorf("cspd: path %q must start with /", p)
	}
	if strings.ContainsAny(p, " \t\n{}?#") {
		return fmt.Errorf("cspd: path %q must be a plain path", p)
	}
	return nil
}

type Middleware func(next http.Handler) http.Handler
