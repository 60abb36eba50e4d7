package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"tangled.org/booru.social/booru/internal/config"
	"tangled.org/booru.social/booru/internal/metrics"
	"tangled.org/booru.social/booru/internal/middleware"
	"tangled.org/booru.social/booru/internal/tracing"
)

var serveCmd = &cli.Command{
	Name:  "serve",
	Usage: "run the deadline reconciler with metrics and health endpoints",
	Action: func(cctx *cli.Context) error {
		cfg, err := config.FromCLI(cctx)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cctx.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()

		if cfg.Tracing {
			tp, err := tracing.Init(ctx)
			if err != nil {
				return fmt.Errorf("init tracing: %w", err)
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := tp.Shutdown(ctx); err != nil {
					log.Error().Err(err).Msg("Failed to shut down tracer provider")
				}
			}()
			log.Info().Msg("OpenTelemetry tracing enabled")
		}

		svc, err := openServices(ctx, cfg)
		if err != nil {
			return err
		}
		defer svc.Close()

		return svc.serve(ctx)
	},
}

func (s *services) serve(ctx context.Context) error {
	log.Info().
		Int("quorum", s.cfg.Quorum).
		Dur("review_window", s.cfg.ReviewWindow).
		Dur("extension_window", s.cfg.ExtensionWindow).
		Dur("sweep_interval", s.cfg.SweepInterval).
		Msg("Starting booru moderation service")

	metrics.StartCollector(ctx, s.statsSource, s.cfg.StatsInterval)

	srv := &http.Server{
		Addr:              s.cfg.MetricsListen,
		Handler:           s.opsHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.engine.RunSweeps(ctx, s.cfg.SweepInterval)
	})
	g.Go(func() error {
		log.Info().Str("address", srv.Addr).Msg("Starting metrics server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if s.roles != nil {
		g.Go(func() error {
			s.reloadRolesOnHangup(ctx)
			return nil
		})
	}

	err := g.Wait()
	log.Info().Msg("Booru moderation service stopped")
	return err
}

// opsHandler serves /metrics, /healthz and /readyz.
func (s *services) opsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := s.db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})

	var h http.Handler = mux
	h = middleware.LoggingMiddleware(log.Logger)(h)
	h = middleware.RecoverMiddleware(log.Logger)(h)
	return otelhttp.NewHandler(h, "ops")
}

// reloadRolesOnHangup re-reads the roles file on SIGHUP until ctx is done.
func (s *services) reloadRolesOnHangup(ctx context.Context) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := s.roles.Reload(); err != nil {
				log.Error().Err(err).Msg("Failed to reload roles file, keeping previous roles")
				continue
			}
			log.Info().Int("members", len(s.roles.ListMembers())).Msg("Roles file reloaded")
		}
	}
}
