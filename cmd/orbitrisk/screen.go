package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/star/orbitrisk/internal/history"
	"github.com/star/orbitrisk/internal/propagation"
	"github.com/star/orbitrisk/internal/screening"
	"github.com/star/orbitrisk/internal/tle"
)

var (
	screenCatalog   catalogFlags
	screenStart     string
	screenHorizon   time.Duration
	screenStep      time.Duration
	screenThreshold float64
	screenIDs       []int
	screenRecord    bool
	screenTimeout   time.Duration
)

var screenCmd = &cobra.Command{
	Use:   "screen",
	Short: "Screen the catalog for close approaches and print the events as JSON",
	Args:  cobra.NoArgs,
	RunE:  runScreen,
}

type screenOutput struct {
	RunID            string                `json:"run_id,omitempty"`
	CatalogSource    string                `json:"catalog_source"`
	Start            time.Time             `json:"start"`
	HorizonSeconds   float64               `json:"horizon_seconds"`
	StepSeconds      float64               `json:"step_seconds"`
	ThresholdKm      float64               `json:"threshold_km"`
	Samples          int                   `json:"samples"`
	Satellites       int                   `json:"satellites"`
	PairsScreened    int                   `json:"pairs_screened"`
	PairsPrefiltered int                   `json:"pairs_prefiltered"`
	Partial          bool                  `json:"partial"`
	DurationMs       int64                 `json:"duration_ms"`
	Events           []screening.Event     `json:"events"`
	Excluded         []screening.Exclusion `json:"excluded"`
}

func runScreen(cmd *cobra.Command, _ []string) error {
	cfg, logger, closer, err := setup(cmd, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closer.Close()

	if screenRecord && cfg.History.Path == "" {
		return errors.New("--record needs history.path to be configured")
	}

	opts := screening.Options{
		Horizon:     cfg.Screening.Horizon,
		Step:        cfg.Screening.Step,
		ThresholdKm: cfg.Screening.ThresholdKm,
	}
	if screenStart != "" {
		if opts.Start, err = time.Parse(time.RFC3339, screenStart); err != nil {
			return fmt.Errorf("--start: %w", err)
		}
	}
	if cmd.Flags().Changed("horizon") {
		opts.Horizon = screenHorizon
	}
	if cmd.Flags().Changed("step") {
		opts.Step = screenStep
	}
	if cmd.Flags().Changed("threshold") {
		opts.ThresholdKm = screenThreshold
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := screenCatalog.load(ctx, cfg, logger)
	if err != nil {
		return err
	}
	cat := store.Get()
	sets, err := pickSets(cat, screenIDs)
	if err != nil {
		return err
	}

	engine := newEngine(cfg, store, logger)
	screener := newScreener(cfg, engine, logger)
	if err := screener.Validate(opts); err != nil {
		return err
	}

	if screenTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, screenTimeout)
		defer cancel()
	}
	res, err := screener.Screen(ctx, sets, opts)
	if err != nil {
		return err
	}

	out := screenOutput{
		CatalogSource:    cat.Source,
		Start:            res.Start,
		HorizonSeconds:   res.Horizon.Seconds(),
		StepSeconds:      res.Step.Seconds(),
		ThresholdKm:      res.ThresholdKm,
		Samples:          res.Samples,
		Satellites:       res.Satellites,
		PairsScreened:    res.PairsScreened,
		PairsPrefiltered: res.PairsPrefiltered,
		Partial:          res.Partial,
		DurationMs:       res.Duration.Milliseconds(),
		Events:           res.Events,
		Excluded:         res.Excluded,
	}
	if out.Events == nil {
		out.Events = []screening.Event{}
	}
	if out.Excluded == nil {
		out.Excluded = []screening.Exclusion{}
	}

	if screenRecord {
		id, err := recordRun(cfg.History.Path, cfg.History.KeepRuns, res)
		if err != nil {
			return err
		}
		out.RunID = id.String()
	}

	return printJSON(cmd, out)
}

func pickSets(cat *tle.Catalog, ids []int) ([]tle.ElementSet, error) {
	if len(ids) == 0 {
		return cat.Sets, nil
	}
	sets := make([]tle.ElementSet, 0, len(ids))
	for _, id := range ids {
		es, ok := cat.Lookup(id)
		if !ok {
			return nil, fmt.Errorf("catalog id %d: %w", id, propagation.ErrUnknownSatellite)
		}
		sets = append(sets, es)
	}
	return sets, nil
}

// recordRun stores a finished run with a fresh context, so an expired
// screening deadline does not lose the result.
func recordRun(path string, keep int, res *screening.Result) (uuid.UUID, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	hist, err := history.Open(ctx, path)
	if err != nil {
		return uuid.Nil, fmt.Errorf("opening history: %w", err)
	}
	defer hist.Close()

	id, err := hist.InsertRun(ctx, "cli", res)
	if err != nil {
		return uuid.Nil, fmt.Errorf("recording run: %w", err)
	}
	if keep > 0 {
		if _, err := hist.Prune(ctx, keep); err != nil {
			return id, fmt.Errorf("pruning history: %w", err)
		}
	}
	return id, nil
}

func init() {
	screenCatalog.register(screenCmd)
	screenCmd.Flags().StringVar(&screenStart, "start", "", "Window start (RFC 3339); defaults to now")
	screenCmd.Flags().DurationVar(&screenHorizon, "horizon", 24*time.Hour, "Screening window length")
	screenCmd.Flags().DurationVar(&screenStep, "step", time.Minute, "Sample step")
	screenCmd.Flags().Float64Var(&screenThreshold, "threshold", 5, "Report approaches closer than this many km")
	screenCmd.Flags().IntSliceVar(&screenIDs, "ids", nil, "Catalog ids to screen (default: whole catalog)")
	screenCmd.Flags().BoolVar(&screenRecord, "record", false, "Store the run in the history database")
	screenCmd.Flags().DurationVar(&screenTimeout, "timeout", 0, "Stop early and print partial results after this long")
}
