package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/spf13/cobra"

	"github.com/star/orbitrisk/internal/propagation"
	"github.com/star/orbitrisk/internal/tle"
)

var (
	diagCatalog catalogFlags
	diagIDs     []int
	diagLimit   int
	diagHorizon time.Duration
	diagStep    time.Duration
)

var diagCmd = &cobra.Command{
	Use:   "diag",
	Short: "Compare the native and library propagators over a time window",
	Long: "diag propagates a handful of catalog satellites with both SGP4 backends " +
		"from each satellite's epoch and prints the largest position and velocity " +
		"differences.",
	Args: cobra.NoArgs,
	RunE: runDiag,
}

// deviation is the worst disagreement between the two backends for one satellite.
type deviation struct {
	id, samples, failed int
	name                string
	maxPosKm, maxVelKmS float64
	worstAt             time.Duration
	err                 error
}

func runDiag(cmd *cobra.Command, _ []string) error {
	cfg, logger, closer, err := setup(cmd, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closer.Close()

	if diagStep <= 0 || diagHorizon < diagStep {
		return errors.New("--step must be positive and no longer than --horizon")
	}

	store, err := diagCatalog.load(context.Background(), cfg, logger)
	if err != nil {
		return err
	}
	cat := store.Get()
	sets, err := pickSets(cat, diagIDs)
	if err != nil {
		return err
	}
	if len(diagIDs) == 0 && diagLimit > 0 && len(sets) > diagLimit {
		sets = sets[:diagLimit]
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Loaded %d element sets from %s\n", len(cat.Sets), cat.Source)
	fmt.Fprintf(out, "Comparing %d satellites over %v at %v steps\n\n", len(sets), diagHorizon, diagStep)

	worst := 0.0
	for _, es := range sets {
		d := compareBackends(es, diagHorizon, diagStep)
		printDeviation(out, d)
		if d.err == nil {
			worst = math.Max(worst, d.maxPosKm)
		}
	}
	fmt.Fprintf(out, "\nLargest position deviation: %.6f km\n", worst)
	return nil
}

func compareBackends(es tle.ElementSet, horizon, step time.Duration) deviation {
	d := deviation{id: es.CatalogID, name: es.Name}

	native, err := propagation.New(es, propagation.BackendNative)
	if err != nil {
		d.err = fmt.Errorf("native: %w", err)
		return d
	}
	library, err := propagation.New(es, propagation.BackendLibrary)
	if err != nil {
		d.err = fmt.Errorf("library: %w", err)
		return d
	}

	for off := time.Duration(0); off <= horizon; off += step {
		at := es.Epoch.Add(off)
		a, errA := native.Propagate(at)
		b, errB := library.Propagate(at)
		if errA != nil || errB != nil {
			d.failed++
			continue
		}
		d.samples++
		if dp := a.Position.Sub(b.Position).Norm(); dp > d.maxPosKm {
			d.maxPosKm = dp
			d.worstAt = off
		}
		d.maxVelKmS = math.Max(d.maxVelKmS, a.Velocity.Sub(b.Velocity).Norm())
	}
	return d
}

func printDeviation(w io.Writer, d deviation) {
	if d.err != nil {
		fmt.Fprintf(w, "  %6d %-24s ERROR %v\n", d.id, d.name, d.err)
		return
	}
	fmt.Fprintf(w, "  %6d %-24s samples=%d failed=%d max_pos=%.6f km max_vel=%.9f km/s worst_at=+%v\n",
		d.id, d.name, d.samples, d.failed, d.maxPosKm, d.maxVelKmS, d.worstAt)
}

func init() {
	diagCatalog.register(diagCmd)
	diagCmd.Flags().IntSliceVar(&diagIDs, "ids", nil, "Catalog ids to compare (default: the first --limit satellites)")
	diagCmd.Flags().IntVar(&diagLimit, "limit", 5, "Satellites to compare when --ids is not set")
	diagCmd.Flags().DurationVar(&diagHorizon, "horizon", 72*time.Hour, "Window after each epoch")
	diagCmd.Flags().DurationVar(&diagStep, "step", 10*time.Minute, "Sample step")
}
