package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/sensillum/sensillum/server/internal/config"
	"github.com/sensillum/sensillum/server/internal/conntrack"
	"github.com/sensillum/sensillum/server/internal/dispatch"
	"github.com/sensillum/sensillum/server/internal/metrics"
	"github.com/sensillum/sensillum/server/internal/page"
	"github.com/sensillum/sensillum/server/internal/probe"
	"github.com/sensillum/sensillum/server/internal/sse"
	"github.com/sensillum/sensillum/server/internal/waf"
	"github.com/sensillum/sensillum/server/internal/ws"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// app holds every component built from one configuration.
type app struct {
	cfg       *config.Config
	tracker   *conntrack.Tracker
	metrics   *metrics.Metrics
	catalogue *waf.Catalogue
	handler   http.Handler
}

func newApp(cfg *config.Config) (*app, error) {
	cat := waf.Default()
	if cfg.WAFPayloadsPath != "" {
		var err error
		if cat, err = waf.Load(cfg.WAFPayloadsPath); err != nil {
			return nil, err
		}
	}

	tr := conntrack.New()
	m := metrics.New(tr)
	probes := probe.New(cfg, m, cat)

	d := dispatch.New(cfg, dispatch.Routes{
		Index:        page.NewIndex(cfg),
		WebSocket:    ws.New(cfg, m),
		SSE:          sse.New(cfg, m),
		Echo:         http.HandlerFunc(probes.Echo),
		Header:       http.HandlerFunc(probes.Header),
		DeleteCookie: http.HandlerFunc(probes.DeleteCookie),
		Node:         http.HandlerFunc(probes.NodeIdentity),
		WAF:          http.HandlerFunc(probes.WAF),
	})

	return &app{
		cfg:       cfg,
		tracker:   tr,
		metrics:   m,
		catalogue: cat,
		handler:   dispatch.Handler(d, m),
	}, nil
}

// run listens on the configured ports and serves until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr(), err)
	}

	var metricsLn net.Listener
	if addr := cfg.MetricsAddr(); addr != "" {
		if metricsLn, err = net.Listen("tcp", addr); err != nil {
			ln.Close()
			return fmt.Errorf("listen %s: %w", addr, err)
		}
	}

	return a.serve(ctx, ln, metricsLn)
}

// serve runs the diagnostic server on ln, the metrics server on metricsLn when
// it is non-nil, and the background tasks. It returns once everything has
// stopped.
func (a *app) serve(ctx context.Context, ln, metricsLn net.Listener) error {
	// Cancelled when shutdown starts so SSE streams, which never go idle,
	// do not hold the server open.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	srv := &http.Server{
		Handler:           h2c.NewHandler(a.handler, &http2.Server{}),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	servers := []*http.Server{srv}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("HTTP server listening",
			"addr", ln.Addr().String(),
			"url_prefix", a.cfg.URLPrefix,
			"node_name", a.cfg.NodeName,
			"privacy_mode", a.cfg.PrivacyMode,
			"redact_prefixes", a.cfg.RedactPrefixes,
		)
		return serveHTTP(srv, a.tracker.Listen(ln))
	})

	if metricsLn != nil {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", a.metrics.Handler())
		metricsSrv := &http.Server{Handler: metricsMux, ReadHeaderTimeout: readHeaderTimeout}
		servers = append(servers, metricsSrv)

		g.Go(func() error {
			slog.Info("metrics server listening", "addr", metricsLn.Addr().String())
			return serveHTTP(metricsSrv, metricsLn)
		})
	}

	g.Go(func() error {
		conntrack.NewReporter(a.tracker, a.cfg.PeakReportInterval,
			conntrack.WithSink(a.metrics.ReportPeak),
		).Run(gctx)
		return nil
	})

	g.Go(func() error {
		if err := a.catalogue.Watch(gctx); err != nil {
			// The loaded catalogue keeps serving without reloads.
			slog.Error("waf: catalogue watch stopped", "err", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("sensillum shutting down")
		cancelBase()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		var err error
		for _, s := range servers {
			err = multierr.Append(err, s.Shutdown(shutdownCtx))
		}
		return err
	})

	return g.Wait()
}

func serveHTTP(srv *http.Server, ln net.Listener) error {
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve %s: %w", ln.Addr(), err)
	}
	return nil
}
