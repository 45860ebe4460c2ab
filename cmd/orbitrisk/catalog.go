package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/star/orbitrisk/internal/tle"
)

var (
	inspectCatalog catalogFlags
	inspectID      int
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Fetch or inspect the element set catalog",
}

var catalogFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch the upstream catalog into the on-disk cache",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, closer, err := setup(cmd, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer closer.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		fetcher := tle.NewFetcher(cfg.Catalog.SourceURL, logger, cfg.Catalog.ExtraURLs...)
		loader := tle.NewLoader(tle.NewStore(), fetcher, tle.NewCache(cfg.Catalog.CacheDir, cfg.Catalog.MaxFiles), logger)
		cat, err := loader.Refresh(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd, newCatalogSummary(cat, time.Now()))
	},
}

var catalogInspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Summarize the cached catalog, or print one element set with --id",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, closer, err := setup(cmd, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer closer.Close()

		store, err := inspectCatalog.load(context.Background(), cfg, logger)
		if err != nil {
			return err
		}
		cat := store.Get()
		if inspectID == 0 {
			return printJSON(cmd, newCatalogSummary(cat, time.Now()))
		}
		es, ok := cat.Lookup(inspectID)
		if !ok {
			return fmt.Errorf("catalog id %d not in catalog", inspectID)
		}
		return printJSON(cmd, newElementSetView(es))
	},
}

type catalogSummary struct {
	Source     string    `json:"source"`
	FetchedAt  time.Time `json:"fetched_at"`
	AgeSeconds float64   `json:"age_seconds"`
	Count      int       `json:"count"`
	Groups     int       `json:"groups"`
	Skipped    int       `json:"skipped"`
	EpochMin   time.Time `json:"epoch_min"`
	EpochMax   time.Time `json:"epoch_max"`
	DeepSpace  int       `json:"deep_space"`
}

func newCatalogSummary(cat *tle.Catalog, now time.Time) catalogSummary {
	s := catalogSummary{
		Source:     cat.Source,
		FetchedAt:  cat.FetchedAt,
		AgeSeconds: now.Sub(cat.FetchedAt).Seconds(),
		Count:      len(cat.Sets),
		Groups:     cat.Groups,
		Skipped:    cat.Skipped,
		EpochMin:   cat.EpochRange.Min,
		EpochMax:   cat.EpochRange.Max,
	}
	for _, es := range cat.Sets {
		if es.PeriodMinutes() >= 225 {
			s.DeepSpace++
		}
	}
	return s
}

type elementSetView struct {
	CatalogID      int       `json:"catalog_id"`
	Name           string    `json:"name"`
	Designator     string    `json:"designator"`
	Epoch          time.Time `json:"epoch"`
	InclinationDeg float64   `json:"inclination_deg"`
	RAANDeg        float64   `json:"raan_deg"`
	Eccentricity   float64   `json:"eccentricity"`
	ArgPerigeeDeg  float64   `json:"arg_perigee_deg"`
	MeanAnomalyDeg float64   `json:"mean_anomaly_deg"`
	MeanMotion     float64   `json:"mean_motion_rev_per_day"`
	BStar          float64   `json:"bstar"`
	PeriodMinutes  float64   `json:"period_minutes"`
	Line1          string    `json:"line1"`
	Line2          string    `json:"line2"`
}

func newElementSetView(es tle.ElementSet) elementSetView {
	return elementSetView{
		CatalogID:      es.CatalogID,
		Name:           es.Name,
		Designator:     es.Designator,
		Epoch:          es.Epoch,
		InclinationDeg: es.InclinationDeg,
		RAANDeg:        es.RAANDeg,
		Eccentricity:   es.Eccentricity,
		ArgPerigeeDeg:  es.ArgPerigeeDeg,
		MeanAnomalyDeg: es.MeanAnomalyDeg,
		MeanMotion:     es.MeanMotion,
		BStar:          es.BStar,
		PeriodMinutes:  es.PeriodMinutes(),
		Line1:          es.Line1,
		Line2:          es.Line2,
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	inspectCatalog.register(catalogInspectCmd)
	catalogInspectCmd.Flags().IntVar(&inspectID, "id", 0, "Print the element set with this catalog id")

	catalogCmd.AddCommand(catalogFetchCmd)
	catalogCmd.AddCommand(catalogInspectCmd)
}
