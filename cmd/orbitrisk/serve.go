package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/star/orbitrisk/internal/alerts"
	"github.com/star/orbitrisk/internal/api"
	"github.com/star/orbitrisk/internal/auth"
	"github.com/star/orbitrisk/internal/ephemeris"
	"github.com/star/orbitrisk/internal/history"
	"github.com/star/orbitrisk/internal/metrics"
	"github.com/star/orbitrisk/internal/passes"
	"github.com/star/orbitrisk/internal/screening"
	"github.com/star/orbitrisk/internal/stream"
	"github.com/star/orbitrisk/internal/tle"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the alert feed",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, closer, err := setup(cmd, nil)
	if err != nil {
		return err
	}
	defer closer.Close()

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := tle.NewStore()
	var fetcher *tle.Fetcher
	if cfg.Catalog.Fetch {
		fetcher = tle.NewFetcher(cfg.Catalog.SourceURL, logger, cfg.Catalog.ExtraURLs...)
	}
	loader := tle.NewLoader(store, fetcher, tle.NewCache(cfg.Catalog.CacheDir, cfg.Catalog.MaxFiles), logger)
	if _, err := loader.LoadCached(); err != nil {
		logger.Info("no TLE cache loaded, starting without TLE data", "error", err)
	}

	engine := newEngine(cfg, store, logger)
	screener := newScreener(cfg, engine, logger)

	var hist *history.Store
	var recorder alerts.Recorder
	if cfg.History.Path != "" {
		hist, err = history.Open(ctx, cfg.History.Path)
		if err != nil {
			return fmt.Errorf("opening history: %w", err)
		}
		defer hist.Close()
		recorder = hist
		logger.Info("history enabled", "path", cfg.History.Path, "keep_runs", cfg.History.KeepRuns)
	}

	deps := api.Deps{
		Loader:    loader,
		Engine:    engine,
		Screener:  screener,
		Ephemeris: ephemeris.NewBuilder(engine, store, 0),
		Passes:    passes.NewPredictor(engine, cfg.Propagation.Workers),
		History:   hist,
	}
	if cfg.Alerts.Enabled {
		svc := alerts.NewService(alerts.Config{
			Interval:    cfg.Alerts.Interval,
			Horizon:     cfg.Alerts.Horizon,
			Step:        cfg.Alerts.Step,
			ThresholdKm: cfg.Alerts.ThresholdKm,
			Limit:       cfg.Alerts.Limit,
			KeepRuns:    cfg.History.KeepRuns,
		}, screener, store, recorder, logger)
		go svc.Start(ctx)

		deps.Alerts = svc
		deps.Stream = stream.NewHandler(svc, store, stream.Config{
			MaxConcurrentPerIP: cfg.HTTP.MaxStreamsPerIP,
			KeepaliveInterval:  cfg.HTTP.KeepaliveInterval,
			TrustProxy:         cfg.HTTP.TrustProxy,
		}, logger)
	}

	srv := api.NewServer(api.Config{
		Addr:            cfg.HTTP.Addr,
		Auth:            auth.Config{Token: cfg.HTTP.AuthToken, ProtectReads: cfg.HTTP.AuthProtectReads},
		MaxScreensPerIP: cfg.HTTP.MaxScreensPerIP,
		ScreenBudget:    cfg.HTTP.ScreenBudget,
		ScreenTimeout:   cfg.HTTP.ScreenTimeout,
		ScreenDefaults: screening.Options{
			Horizon:     cfg.Screening.Horizon,
			Step:        cfg.Screening.Step,
			ThresholdKm: cfg.Screening.ThresholdKm,
		},
		TrustProxy: cfg.HTTP.TrustProxy,
	}, deps, logger)

	if loader.FetchEnabled() {
		go refreshCatalog(ctx, loader, cfg.Catalog.RefreshInterval, logger)
	}
	go trackCatalogAge(ctx, store)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			"addr", cfg.HTTP.Addr,
			"auth_enabled", cfg.HTTP.AuthToken != "",
			"tle_fetch_enabled", loader.FetchEnabled(),
			"alerts_enabled", cfg.Alerts.Enabled,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server listen error: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// refreshCatalog fetches the upstream catalog now and then on every interval.
// A failed fetch keeps the current catalog.
func refreshCatalog(ctx context.Context, loader *tle.Loader, interval time.Duration, logger *slog.Logger) {
	refresh := func() {
		if _, err := loader.Refresh(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("catalog refresh failed, keeping current catalog", "error", err)
		}
	}
	refresh()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			refresh()
		case <-ctx.Done():
			return
		}
	}
}

// trackCatalogAge keeps the catalog age gauge current.
func trackCatalogAge(ctx context.Context, store *tle.Store) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if age := store.AgeSeconds(); age >= 0 {
				metrics.SetCatalogAge(age)
			}
		case <-ctx.Done():
			return
		}
	}
}
