package cspd

import (
	"context"
	"errors"
	"fmt"
	"github.com/go-chi/httprate"
	"github.com/klauspost/compress/gzhttp"
	"github.com/modfin/cspd/internal/fallbackfs"
	"github.com/modfin/cspd/internal/log"
	"golang.org/x/sync/errgroup"
	"io/fs"
	"net/http"
	"net/http/httputil"
	"net/url"
	"path"
	"strings"
	"time"
)

// Options configures the handler built by NewHandler. Middlewares are
// applied in order, the last one is outermost.
type Options struct {
	Addr        string
	Middlewares []Middleware

	PublicDir    fs.FS
	PublicPrefix string
	Routes       []Route

	// ReportPath mounts ReportHandler when both are set.
	ReportPath    string
	ReportHandler http.Handler
	// ReportRateLimit is requests per minute per client IP, 0 disables it.
	ReportRateLimit    int
	ReportLimitReached http.HandlerFunc

	MetricsAddr    string
	MetricsHandler http.Handler

	Compress bool
}

func NewHandler(opts Options) (http.Handler, error) {
	mux := http.NewServeMux()

	if opts.PublicDir != nil {
		publicPrefix := path.Clean("/" + strings.TrimPrefix(opts.PublicPrefix, "/"))
		f := fallbackfs.New(opts.PublicDir, "index.html")
		h := http.StripPrefix(strings.TrimSuffix(publicPrefix, "/"), http.FileServer(http.FS(f)))
		if err := checkPath(publicPrefix); err != nil {
			return nil, err
		}
		if err := attachToMux(mux, publicPrefix, h); err != nil {
			return nil, err
		}
		if publicPrefix != "/" {
			err := handle(mux, "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Redirect(w, r, publicPrefix, http.StatusMovedPermanently)
			}))
			if err != nil {
				return nil, err
			}
		}
		log.New().WithField("prefix", publicPrefix).Info("hosting assets directory")
	}

	for _, r := range opts.Routes {
		target, err := url.Parse(r.Target)
		if err != nil {
			return nil, fmt.Errorf("cspd: could not parse route target: %w", err)
		}
		p := httputil.NewSingleHostReverseProxy(target)
		if r.RewriteHost {
			director := p.Director
			p.Director = func(req *http.Request) {
				director(req)
				req.Host = target.Host
			}
		}
		prefix := strings.TrimSuffix(r.Prefix, "/")
		if prefix != "" {
			if err := checkPath(prefix); err != nil {
				return nil, err
			}
		}
		h := http.Handler(p)
		if r.Strip {
			h = http.StripPrefix(prefix, h)
		}
		if err := attachToMux(mux, prefix, h); err != nil {
			return nil, err
		}
		log.New().
			WithField("prefix", r.Prefix).
			WithField("target", r.Target).
			WithField("strip", r.Strip).
			Info("hosting reverse proxy")
	}

	if opts.ReportPath != "" && opts.ReportHandler != nil {
		if err := checkPath(opts.ReportPath); err != nil {
			return nil, err
		}
		h := opts.ReportHandler
		if opts.ReportRateLimit > 0 {
			limitOpts := []httprate.Option{httprate.WithKeyByIP()}
			if opts.ReportLimitReached != nil {
				limitOpts = append(limitOpts, httprate.WithLimitHandler(opts.ReportLimitReached))
			}
			h = httprate.Limit(opts.ReportRateLimit, time.Minute, limitOpts...)(h)
		}
		if err := handle(mux, opts.ReportPath, h); err != nil {
			return nil, err
		}
		log.New().
			WithField("path", opts.ReportPath).
			WithField("rate_limit", opts.ReportRateLimit).
			Info("hosting violation report endpoint")
	}

	var handler http.Handler = mux
	if opts.Compress {
		handler = gzhttp.GzipHandler(handler)
	}
	for _, m := range opts.Middlewares {
		handler = m(handler)
	}
	return handler, nil
}

// Serve runs the main listener, and the metrics listener when configured,
// until ctx is done or one of them fails.
func Serve(ctx context.Context, opts Options) error {
	handler, err := NewHandler(opts)
	if err != nil {
		return err
	}
	addr := opts.Addr
	if addr == "" {
		addr = ":8080"
	}
	servers := []*http.Server{{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}}
	if opts.MetricsAddr != "" && opts.MetricsHandler != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", opts.MetricsHandler)
		servers = append(servers, &http.Server{Addr: opts.MetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second})
		log.New().WithField("addr", opts.MetricsAddr).Info("hosting metrics")
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, s := range servers {
		s := s
		g.Go(func() error {
			err := s.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return s.Shutdown(shutdownCtx)
		})
	}
	log.New().WithField("addr", addr).Info("listening")
	return g.Wait()
}
