// Package screening finds close approaches between catalog satellites.
//
// A run samples every satellite on a common time grid, compares every
// unordered pair on that grid, and refines each sampled local minimum of the
// separation with a golden-section search between its bracketing samples.
package screening

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/star/orbitrisk/internal/metrics"
	"github.com/star/orbitrisk/internal/propagation"
	"github.com/star/orbitrisk/internal/tle"
)

// muEarth is the WGS-84 gravitational parameter in km^3/s^2.
const muEarth = 398600.5

// Screener runs conjunction screening over element sets.
type Screener struct {
	registry *propagation.Registry
	pool     *propagation.WorkerPool
	cfg      Config
	logger   *slog.Logger
}

// New creates a Screener. Zero fields of cfg take their defaults.
func New(registry *propagation.Registry, pool *propagation.WorkerPool, cfg Config, logger *slog.Logger) *Screener {
	def := DefaultConfig()
	if cfg.MaxSamples <= 0 {
		cfg.MaxSamples = def.MaxSamples
	}
	if cfg.RefineIterations <= 0 {
		cfg.RefineIterations = def.RefineIterations
	}
	if cfg.RefineTolerance <= 0 {
		cfg.RefineTolerance = def.RefineTolerance
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = def.MaxCandidates
	}
	return &Screener{registry: registry, pool: pool, cfg: cfg, logger: logger}
}

// SampleCount returns the number of grid samples for a horizon and step.
func SampleCount(horizon, step time.Duration) int {
	if step <= 0 || horizon < 0 {
		return 0
	}
	return int(horizon/step) + 1
}

// Validate checks opts against the screener limits.
func (s *Screener) Validate(opts Options) error {
	switch {
	case opts.Step <= 0:
		return &OptionsError{Field: "step", Reason: "must be positive"}
	case opts.Horizon < 0:
		return &OptionsError{Field: "horizon", Reason: "must not be negative"}
	case math.IsNaN(opts.ThresholdKm) || math.IsInf(opts.ThresholdKm, 0) || opts.ThresholdKm <= 0:
		return &OptionsError{Field: "threshold_km", Reason: "must be a positive number"}
	case SampleCount(opts.Horizon, opts.Step) > s.cfg.MaxSamples:
		return &OptionsError{Field: "horizon", Reason: "too many samples for the step"}
	}
	return nil
}

// track is one satellite's sampled trajectory, owned by a single run.
type track struct {
	id   int
	name string
	prop propagation.Propagator
	pos  []propagation.Vector
	vel  []propagation.Vector
	// padded radius band over the horizon
	rmin, rmax float64
}

// Screen samples every satellite and reports each unordered pair whose
// refined closest approach is below the threshold. On cancellation it
// returns the events confirmed so far with Result.Partial set.
func (s *Screener) Screen(ctx context.Context, sets []tle.ElementSet, opts Options) (*Result, error) {
	if err := s.Validate(opts); err != nil {
		return nil, err
	}
	if opts.Start.IsZero() {
		opts.Start = time.Now().UTC()
	}
	began := time.Now()
	res := &Result{
		Start:       opts.Start,
		Horizon:     opts.Horizon,
		Step:        opts.Step,
		ThresholdKm: opts.ThresholdKm,
		Samples:     SampleCount(opts.Horizon, opts.Step),
		Events:      []Event{},
	}
	defer func() {
		res.Duration = time.Since(began)
		metrics.RecordScreening(res.Duration, res.PairsScreened, res.PairsPrefiltered, len(res.Events), len(res.Excluded), res.Partial)
	}()

	tracks := s.sample(ctx, dedupe(sets), opts, res)
	res.Satellites = len(tracks)
	if ctx.Err() != nil {
		res.Partial = true
		s.logger.Warn("screening cancelled during sampling", "excluded", len(res.Excluded))
		return res, nil
	}
	if len(tracks) < 2 {
		return res, nil
	}

	s.comparePairs(ctx, tracks, opts, res)
	sortEvents(res.Events)

	s.logger.Info("screening complete",
		"satellites", res.Satellites,
		"excluded", len(res.Excluded),
		"pairs_screened", res.PairsScreened,
		"pairs_prefiltered", res.PairsPrefiltered,
		"events", len(res.Events),
		"partial", res.Partial,
		"duration_ms", time.Since(began).Milliseconds(),
	)
	return res, nil
}

// dedupe keeps one element set per catalog id, preferring the latest epoch.
func dedupe(sets []tle.ElementSet) []tle.ElementSet {
	idx := make(map[int]int, len(sets))
	out := make([]tle.ElementSet, 0, len(sets))
	for _, es := range sets {
		if i, ok := idx[es.CatalogID]; ok {
			if es.Epoch.After(out[i].Epoch) {
				out[i] = es
			}
			continue
		}
		idx[es.CatalogID] = len(out)
		out = append(out, es)
	}
	return out
}

func (s *Screener) exclude(res *Result, es tle.ElementSet, err error) {
	res.Excluded = append(res.Excluded, Exclusion{CatalogID: es.CatalogID, Name: es.Name, Reason: err.Error()})
	s.logger.Warn("satellite excluded from screening", "catalog_id", es.CatalogID, "name", es.Name, "error", err)
}

// sample builds the run-local trajectory cache. A satellite that fails at
// any sample is excluded for the whole run.
func (s *Screener) sample(ctx context.Context, sets []tle.ElementSet, opts Options, res *Result) []*track {
	times := make([]time.Time, res.Samples)
	for k := range times {
		times[k] = opts.Start.Add(time.Duration(k) * opts.Step)
	}

	props := make([]propagation.Propagator, 0, len(sets))
	owners := make([]tle.ElementSet, 0, len(sets))
	for _, es := range sets {
		p, err := s.registry.Get(es)
		if err != nil {
			s.exclude(res, es, err)
			continue
		}
		props = append(props, p)
		owners = append(owners, es)
	}

	start := time.Now()
	trajs := s.pool.SampleTrajectories(ctx, props, times)
	sort.Slice(trajs, func(i, j int) bool { return trajs[i].Index < trajs[j].Index })

	tracks := make([]*track, 0, len(trajs))
	var failed int
	stepSec := opts.Step.Seconds()
	for _, tr := range trajs {
		es := owners[tr.Index]
		if tr.Err != nil {
			if ctx.Err() == nil {
				failed++
				s.exclude(res, es, tr.Err)
			}
			continue
		}
		t := &track{
			id:   es.CatalogID,
			name: es.Name,
			prop: props[tr.Index],
			pos:  make([]propagation.Vector, len(tr.States)),
			vel:  make([]propagation.Vector, len(tr.States)),
			rmin: math.Inf(1),
			rmax: math.Inf(-1),
		}
		var maxRadialSpeed float64
		for k, sv := range tr.States {
			t.pos[k] = sv.Position
			t.vel[k] = sv.Velocity
			r := sv.Position.Norm()
			t.rmin = math.Min(t.rmin, r)
			t.rmax = math.Max(t.rmax, r)
			maxRadialSpeed = math.Max(maxRadialSpeed, math.Abs(sv.Position.Dot(sv.Velocity)/r))
		}
		pad := maxRadialSpeed * stepSec
		t.rmin -= pad
		t.rmax += pad
		tracks = append(tracks, t)
	}
	metrics.RecordPropagation(time.Since(start), len(tracks), failed)
	return tracks
}

// comparePairs screens all pairs i < j. Rows of the pair triangle are handed
// out dynamically to the workers; each worker keeps its own event list.
func (s *Screener) comparePairs(ctx context.Context, tracks []*track, opts Options, res *Result) {
	workers := s.pool.Workers()
	var (
		next        atomic.Int64
		screened    atomic.Int64
		prefiltered atomic.Int64
		partial     atomic.Bool
		mu          sync.Mutex
	)

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			pw := s.newPairWorker(opts, res.Samples)
			var local []Event
			for {
				i := int(next.Add(1) - 1)
				if i >= len(tracks)-1 {
					break
				}
				if gctx.Err() != nil {
					partial.Store(true)
					break
				}
				for j := i + 1; j < len(tracks); j++ {
					if j%256 == 0 && gctx.Err() != nil {
						partial.Store(true)
						break
					}
					a, b := tracks[i], tracks[j]
					if a.rmax+opts.ThresholdKm < b.rmin || b.rmax+opts.ThresholdKm < a.rmin {
						prefiltered.Add(1)
						continue
					}
					screened.Add(1)
					if ev, ok := pw.screen(gctx, a, b); ok {
						local = append(local, ev)
					}
				}
			}
			mu.Lock()
			res.Events = append(res.Events, local...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	res.PairsScreened = int(screened.Load())
	res.PairsPrefiltered = int(prefiltered.Load())
	res.Partial = partial.Load() || ctx.Err() != nil
}

func sortEvents(events []Event) {
	sort.Slice(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.MissDistanceKm != b.MissDistanceKm {
			return a.MissDistanceKm < b.MissDistanceKm
		}
		if !a.TCA.Equal(b.TCA) {
			return a.TCA.Before(b.TCA)
		}
		if a.A != b.A {
			return a.A < b.A
		}
		return a.B < b.B
	})
}
