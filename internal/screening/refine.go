package screening

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/star/orbitrisk/internal/propagation"
)

// invPhi is 1/φ, the golden-section interval reduction per iteration.
var invPhi = (math.Sqrt(5) - 1) / 2

// goldenSection minimizes f on [lo, hi] until the bracket is narrower than
// tol. It fails with propagation.ErrNumericDivergence when maxIter
// iterations do not reach the tolerance.
func goldenSection(f func(x float64) (float64, error), lo, hi, tol float64, maxIter int) (float64, float64, error) {
	if hi-lo <= tol {
		x := (lo + hi) / 2
		fx, err := f(x)
		return x, fx, err
	}

	x1 := hi - invPhi*(hi-lo)
	x2 := lo + invPhi*(hi-lo)
	f1, err := f(x1)
	if err != nil {
		return 0, 0, err
	}
	f2, err := f(x2)
	if err != nil {
		return 0, 0, err
	}

	for i := 0; i < maxIter; i++ {
		if hi-lo <= tol {
			if f1 < f2 {
				return x1, f1, nil
			}
			return x2, f2, nil
		}
		if f1 < f2 {
			hi, x2, f2 = x2, x1, f1
			x1 = hi - invPhi*(hi-lo)
			if f1, err = f(x1); err != nil {
				return 0, 0, err
			}
		} else {
			lo, x1, f1 = x1, x2, f2
			x2 = lo + invPhi*(hi-lo)
			if f2, err = f(x2); err != nil {
				return 0, 0, err
			}
		}
	}
	return 0, 0, fmt.Errorf("golden-section search: bracket %.6f s wide after %d iterations: %w",
		hi-lo, maxIter, propagation.ErrNumericDivergence)
}

// gravity is the two-body acceleration at r in km/s^2.
func gravity(r propagation.Vector) propagation.Vector {
	n := r.Norm()
	return r.Scale(-muEarth / (n * n * n))
}

type candidate struct {
	k     int
	bound float64 // lower estimate of the separation near sample k
}

// pairWorker holds per-goroutine scratch space for pair screening.
type pairWorker struct {
	s       *Screener
	opts    Options
	n       int
	stepSec float64
	dist    []float64
	cands   []candidate
}

func (s *Screener) newPairWorker(opts Options, samples int) *pairWorker {
	return &pairWorker{
		s:       s,
		opts:    opts,
		n:       samples,
		stepSec: opts.Step.Seconds(),
		dist:    make([]float64, samples),
	}
}

func (pw *pairWorker) at(sec float64) time.Time {
	return pw.opts.Start.Add(time.Duration(math.Round(sec * 1e9)))
}

// screen compares one pair and returns its closest approach if it is
// below the threshold.
func (pw *pairWorker) screen(ctx context.Context, a, b *track) (Event, bool) {
	thr := pw.opts.ThresholdKm
	for k := 0; k < pw.n; k++ {
		pw.dist[k] = b.pos[k].Sub(a.pos[k]).Norm()
	}

	pw.cands = pw.cands[:0]
	for k := 0; k < pw.n; k++ {
		d := pw.dist[k]
		if (k > 0 && pw.dist[k-1] < d) || (k < pw.n-1 && pw.dist[k+1] < d) {
			continue
		}
		if bound := math.Min(d, pw.linearBound(a, b, k)); bound < thr {
			pw.cands = append(pw.cands, candidate{k: k, bound: bound})
		}
	}
	if len(pw.cands) == 0 {
		return Event{}, false
	}
	sort.Slice(pw.cands, func(i, j int) bool { return pw.cands[i].bound < pw.cands[j].bound })
	if len(pw.cands) > pw.s.cfg.MaxCandidates {
		pw.cands = pw.cands[:pw.s.cfg.MaxCandidates]
	}

	bestDist := math.Inf(1)
	var bestTCA time.Time
	bestK := -1
	for _, c := range pw.cands {
		if c.bound >= bestDist || ctx.Err() != nil {
			break
		}
		tca, d, err := pw.refine(a, b, c.k)
		if err != nil {
			pw.s.logger.Warn("refinement failed, using sampled minimum",
				"a", a.id, "b", b.id, "sample", c.k, "error", err)
			tca, d = pw.at(float64(c.k)*pw.stepSec), pw.dist[c.k]
		}
		if pw.dist[c.k] < d {
			tca, d = pw.at(float64(c.k)*pw.stepSec), pw.dist[c.k]
		}
		if d < bestDist {
			bestDist, bestTCA, bestK = d, tca, c.k
		}
	}
	if bestK < 0 || !(bestDist < thr) {
		return Event{}, false
	}

	relVel := b.vel[bestK].Sub(a.vel[bestK]).Norm()
	if sa, err := a.prop.Propagate(bestTCA); err == nil {
		if sb, err := b.prop.Propagate(bestTCA); err == nil {
			relVel = sb.Velocity.Sub(sa.Velocity).Norm()
		}
	}

	ev := Event{
		A: a.id, B: b.id, NameA: a.name, NameB: b.name,
		TCA:                 bestTCA,
		MissDistanceKm:      bestDist,
		RelativeVelocityKmS: relVel,
	}
	if ev.A > ev.B {
		ev.A, ev.B = ev.B, ev.A
		ev.NameA, ev.NameB = ev.NameB, ev.NameA
	}
	return ev, true
}

// linearBound estimates the closest approach within one step of sample k
// from straight-line relative motion, less the largest deviation the
// differential gravity between the two positions can cause over a step.
func (pw *pairWorker) linearBound(a, b *track, k int) float64 {
	rel := b.pos[k].Sub(a.pos[k])
	vrel := b.vel[k].Sub(a.vel[k])
	lo, hi := -pw.stepSec, pw.stepSec
	if k == 0 {
		lo = 0
	}
	if k == pw.n-1 {
		hi = 0
	}

	var tau float64
	if vv := vrel.Dot(vrel); vv > 0 {
		tau = math.Max(lo, math.Min(hi, -rel.Dot(vrel)/vv))
	}
	lin := rel.Add(vrel.Scale(tau)).Norm()
	dacc := gravity(b.pos[k]).Sub(gravity(a.pos[k])).Norm()
	return lin - 0.5*dacc*pw.stepSec*pw.stepSec
}

// refine searches for the minimum separation between the samples that
// bracket sample k.
func (pw *pairWorker) refine(a, b *track, k int) (time.Time, float64, error) {
	lo := float64(max(k-1, 0)) * pw.stepSec
	hi := float64(min(k+1, pw.n-1)) * pw.stepSec
	f := func(sec float64) (float64, error) {
		t := pw.at(sec)
		sa, err := a.prop.Propagate(t)
		if err != nil {
			return 0, err
		}
		sb, err := b.prop.Propagate(t)
		if err != nil {
			return 0, err
		}
		return Separation(sa, sb), nil
	}
	x, d, err := goldenSection(f, lo, hi, pw.s.cfg.RefineTolerance.Seconds(), pw.s.cfg.RefineIterations)
	if err != nil {
		return time.Time{}, 0, err
	}
	return pw.at(x), d, nil
}
