package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/star/orbitrisk/internal/config"
	"github.com/star/orbitrisk/internal/logging"
	"github.com/star/orbitrisk/internal/metrics"
	"github.com/star/orbitrisk/internal/propagation"
	"github.com/star/orbitrisk/internal/screening"
	"github.com/star/orbitrisk/internal/tle"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "orbitrisk",
	Short: "Orbital conjunction risk engine",
	Long: "orbitrisk loads satellite element sets, propagates them with SGP4 and " +
		"screens the catalog for close approaches. It serves the results over HTTP " +
		"and as one-shot commands.",
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a config file (yaml, toml or json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log.level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(screenCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(diagCmd)
}

// setup loads the configuration and builds the process logger, which writes
// to logOut. Warnings raised while loading go to stderr.
func setup(cmd *cobra.Command, logOut io.Writer) (*config.Config, *slog.Logger, io.Closer, error) {
	boot := slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), nil))
	cfg, err := config.Load(configPath, boot)
	if err != nil {
		return nil, nil, nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, closer, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Stdout:     logOut,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, logger, closer, nil
}

func newEngine(cfg *config.Config, store *tle.Store, logger *slog.Logger) *propagation.Engine {
	registry := propagation.NewRegistry(cfg.Propagation.Backend, cfg.Propagation.RegistrySize, cfg.Propagation.RegistryTTL)
	pool := propagation.NewWorkerPool(cfg.Propagation.Workers, logger)
	metrics.SetWorkers(pool.Workers())
	return propagation.NewEngine(store, registry, pool, logger)
}

func newScreener(cfg *config.Config, engine *propagation.Engine, logger *slog.Logger) *screening.Screener {
	return screening.New(engine.Registry(), engine.Pool(), screening.Config{
		MaxSamples:       cfg.Screening.MaxSamples,
		RefineIterations: cfg.Screening.RefineIterations,
		RefineTolerance:  cfg.Screening.RefineTolerance,
		MaxCandidates:    cfg.Screening.MaxCandidates,
	}, logger)
}

// catalogFlags select where one-shot commands read the catalog from.
type catalogFlags struct {
	file  string
	fetch bool
}

func (f *catalogFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.file, "file", "", "Read the catalog from a three-line element file instead of the cache")
	cmd.Flags().BoolVar(&f.fetch, "fetch", false, "Fetch the catalog upstream when the cache is empty")
}

// load reads the catalog into a fresh store: from the named file, else the
// newest cached catalog, else upstream when fetching is allowed.
func (f *catalogFlags) load(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*tle.Store, error) {
	store := tle.NewStore()
	if f.file != "" {
		data, err := os.ReadFile(f.file)
		if err != nil {
			return nil, fmt.Errorf("reading catalog: %w", err)
		}
		if _, err := tle.NewLoader(store, nil, nil, logger).Ingest(f.file, data); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", f.file, err)
		}
		return store, nil
	}

	var fetcher *tle.Fetcher
	if f.fetch {
		fetcher = tle.NewFetcher(cfg.Catalog.SourceURL, logger, cfg.Catalog.ExtraURLs...)
	}
	loader := tle.NewLoader(store, fetcher, tle.NewCache(cfg.Catalog.CacheDir, cfg.Catalog.MaxFiles), logger)
	_, err := loader.LoadCached()
	if err == nil {
		return store, nil
	}
	if fetcher == nil {
		return nil, fmt.Errorf("loading cached catalog from %s: %w (use --file or --fetch)", cfg.Catalog.CacheDir, err)
	}
	if _, err := loader.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("fetching catalog: %w", err)
	}
	return store, nil
}
