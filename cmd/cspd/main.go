package main

import (
	"context"
	"github.com/modfin/cspd/internal/basicauth"
	"github.com/modfin/cspd/internal/config"
	"github.com/modfin/cspd/internal/csp"
	"github.com/modfin/cspd/internal/log"
	"github.com/modfin/cspd/internal/metrics"
	"github.com/modfin/cspd/internal/nocache"
	"github.com/modfin/cspd/internal/report"
	"github.com/modfin/cspd/pkg/cspd"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	cfg := config.Get()
	m := metrics.New(nil)

	var publicFs fs.FS
	if cfg.PublicDir != "" {
		publicFs = os.DirFS(cfg.PublicDir)
	}

	metricsHandler := m.Handler()
	if cfg.MetricsPass != "" {
		metricsHandler = basicauth.Middleware(cfg.MetricsUser, cfg.MetricsPass)(metricsHandler)
	}
	metricsHandler = log.Middleware(metricsHandler)

	opts := cspd.Options{
		Addr:         cfg.Addr,
		PublicDir:    publicFs,
		PublicPrefix: cfg.PublicPrefix,
		Routes:       cfg.Routes,
		ReportPath:   cfg.ReportPath,
		ReportHandler: nocache.Middleware(report.Handler(report.LogSink,
			report.WithMaxBytes(cfg.ReportMaxBytes),
			report.WithOutcome(m.Report),
		)),
		ReportRateLimit: cfg.ReportRateLimit,
		ReportLimitReached: func(w http.ResponseWriter, r *http.Request) {
			m.Report(metrics.RateLimited)
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		},
		MetricsAddr:    cfg.MetricsAddr,
		MetricsHandler: metricsHandler,
		Compress:       cfg.Compress,
		Middlewares: []cspd.Middleware{
			csp.Middleware(cfg.Policy),
			m.Middleware(cfg.Policy.HeaderName()),
			log.Middleware,
		},
	}

	log.New().
		WithField("header", cfg.Policy.HeaderName()).
		WithField("policy", cfg.Policy.String()).
		Info("content security policy")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, os.Interrupt)
	defer stop()
	err := cspd.Serve(ctx, opts)
	log.New().WithError(err).Info("shutting down")
	log.Drain(context.Background())
}
