// Package passes predicts when catalog satellites are above an observer's
// horizon.
package passes

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/star/orbitrisk/internal/propagation"
	"github.com/star/orbitrisk/internal/transform"
)

// GroundTrackPoint is a sub-satellite position at a specific time during a pass.
type GroundTrackPoint struct {
	Time         time.Time `json:"time"`
	LatDeg       float64   `json:"lat"`
	LonDeg       float64   `json:"lon"`
	AltKm        float64   `json:"alt_km"`
	ElevationDeg float64   `json:"elevation"` // degrees above observer's horizon
}

// Pass describes a single satellite pass over an observer location.
type Pass struct {
	Rise            time.Time          `json:"rise"`
	Culmination     time.Time          `json:"culmination"`
	Set             time.Time          `json:"set"`
	DurationSeconds float64            `json:"duration_seconds"`
	MaxElevationDeg float64            `json:"max_elevation"`
	AzimuthAtMax    float64            `json:"azimuth_at_max"`
	RiseAzimuth     float64            `json:"rise_azimuth"`
	SetAzimuth      float64            `json:"set_azimuth"`
	MinRangeKm      float64            `json:"min_range_km"`
	GroundTrack     []GroundTrackPoint `json:"ground_track"`
}

// SatellitePasses holds the predicted passes for one satellite. Error is set
// when propagation failed; Passes then holds the passes found before.
type SatellitePasses struct {
	CatalogID int    `json:"catalog_id"`
	Passes    []Pass `json:"passes"`
	Error     string `json:"error,omitempty"`
}

// Request holds the parameters for a pass prediction request.
type Request struct {
	Observer        transform.Observer
	CatalogIDs      []int
	Start           time.Time
	Horizon         time.Duration
	MinElevationDeg float64
	MaxPasses       int // per satellite (default: 10)
}

// RequestError reports an unusable pass request.
type RequestError struct{ Reason string }

func (e *RequestError) Error() string { return "invalid pass request: " + e.Reason }

// Source resolves catalog ids to initialised propagators.
type Source interface {
	Propagator(id int) (propagation.Propagator, error)
}

const (
	// MaxHorizon bounds the prediction window.
	MaxHorizon = 7 * 24 * time.Hour
	// MaxPassesLimit bounds Request.MaxPasses.
	MaxPassesLimit = 50
	// MaxSatellites bounds the satellites in one request.
	MaxSatellites = 100

	coarseStep      = 30 * time.Second
	trackStep       = 10 * time.Second
	resolution      = time.Second
	minPassDuration = 10 * time.Second
)

// Predictor finds passes for catalog members.
type Predictor struct {
	source  Source
	workers int
}

// NewPredictor creates a Predictor that runs up to workers satellites at once.
func NewPredictor(source Source, workers int) *Predictor {
	if workers < 1 {
		workers = 1
	}
	return &Predictor{source: source, workers: workers}
}

// Validate checks the request bounds and fills MaxPasses.
func (req *Request) Validate() error {
	switch {
	case len(req.CatalogIDs) == 0:
		return &RequestError{Reason: "no catalog ids"}
	case len(req.CatalogIDs) > MaxSatellites:
		return &RequestError{Reason: fmt.Sprintf("at most %d satellites", MaxSatellites)}
	case req.Horizon <= 0 || req.Horizon > MaxHorizon:
		return &RequestError{Reason: fmt.Sprintf("horizon must be in (0, %v]", MaxHorizon)}
	case req.MinElevationDeg < 0 || req.MinElevationDeg >= 90:
		return &RequestError{Reason: "min elevation must be in [0, 90)"}
	case req.MaxPasses < 0 || req.MaxPasses > MaxPassesLimit:
		return &RequestError{Reason: fmt.Sprintf("max passes must be in [1, %d]", MaxPassesLimit)}
	}
	if req.MaxPasses == 0 {
		req.MaxPasses = 10
	}
	return nil
}

// Predict computes passes for every requested satellite, in request order.
// An unknown catalog id fails the whole request; a propagation failure is
// reported on that satellite only.
func (p *Predictor) Predict(ctx context.Context, req Request) ([]SatellitePasses, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	props := make([]propagation.Propagator, len(req.CatalogIDs))
	for i, id := range req.CatalogIDs {
		prop, err := p.source.Propagator(id)
		if err != nil {
			return nil, err
		}
		props[i] = prop
	}

	results := make([]SatellitePasses, len(props))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, prop := range props {
		g.Go(func() error {
			s := scanner{prop: prop, obs: req.Observer, minEl: req.MinElevationDeg}
			passes, err := s.passes(gctx, req.Start, req.Start.Add(req.Horizon), req.MaxPasses)
			results[i] = SatellitePasses{CatalogID: req.CatalogIDs[i], Passes: passes}
			if err != nil {
				results[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

// sample is the observer's view of the satellite at one instant.
type sample struct {
	t    time.Time
	look transform.LookAngles
	ecef transform.PositionECEF
}

type scanner struct {
	prop  propagation.Propagator
	obs   transform.Observer
	minEl float64
}

func (s *scanner) at(t time.Time) (sample, error) {
	sv, err := s.prop.Propagate(t)
	if err != nil {
		return sample{}, err
	}
	ecef := transform.TEMEToECEF(sv.TEME(), t)
	return sample{t: t, look: s.obs.Look(ecef), ecef: ecef}, nil
}

func (s *scanner) above(smp sample) bool { return smp.look.ElevationDeg >= s.minEl }

// passes steps through [start, end] at the coarse step and expands every
// above-threshold sample into a full pass.
func (s *scanner) passes(ctx context.Context, start, end time.Time, maxPasses int) ([]Pass, error) {
	passes := []Pass{}
	cur, err := s.at(start)
	if err != nil {
		return passes, err
	}
	for len(passes) < maxPasses {
		if err := ctx.Err(); err != nil {
			return passes, err
		}
		if s.above(cur) {
			pass, next, err := s.follow(ctx, cur, end)
			if err != nil {
				return passes, err
			}
			passes = appendPass(passes, pass)
			if next.After(end) {
				break
			}
			if cur, err = s.at(next); err != nil {
				return passes, err
			}
			continue
		}
		if !cur.t.Before(end) {
			break
		}

		t := cur.t.Add(coarseStep)
		if t.After(end) {
			t = end
		}
		next, err := s.at(t)
		if err != nil {
			return passes, err
		}
		if s.above(next) {
			// The loop follows the pass from its rise.
			if next, err = s.crossing(cur, next); err != nil {
				return passes, err
			}
		}
		cur = next
	}
	return passes, nil
}

func appendPass(passes []Pass, p Pass) []Pass {
	if p.Set.Sub(p.Rise) < minPassDuration {
		return passes
	}
	return append(passes, p)
}

// follow tracks a pass from its rise sample until the satellite drops below
// the threshold or the window ends. It returns the pass and the time to
// resume scanning from.
func (s *scanner) follow(ctx context.Context, rise sample, end time.Time) (Pass, time.Time, error) {
	pass := Pass{
		Rise:        rise.t,
		RiseAzimuth: rise.look.AzimuthDeg,
		MinRangeKm:  rise.look.RangeKm,
	}
	best := rise
	last := rise
	for {
		pass.GroundTrack = append(pass.GroundTrack, trackPoint(last))
		if last.look.ElevationDeg > best.look.ElevationDeg {
			best = last
		}
		if last.look.RangeKm < pass.MinRangeKm {
			pass.MinRangeKm = last.look.RangeKm
		}
		if !last.t.Before(end) {
			pass.Set, pass.SetAzimuth = last.t, last.look.AzimuthDeg
			break
		}
		if err := ctx.Err(); err != nil {
			return pass, last.t, err
		}

		t := last.t.Add(trackStep)
		if t.After(end) {
			t = end
		}
		cur, err := s.at(t)
		if err != nil {
			return pass, t, err
		}
		if !s.above(cur) {
			set, err := s.crossing(last, cur)
			if err != nil {
				return pass, t, err
			}
			pass.Set, pass.SetAzimuth = set.t, set.look.AzimuthDeg
			break
		}
		last = cur
	}

	culm, err := s.culmination(best, pass.Rise, pass.Set)
	if err != nil {
		return pass, pass.Set, err
	}
	pass.Culmination = culm.t
	pass.MaxElevationDeg = culm.look.ElevationDeg
	pass.AzimuthAtMax = culm.look.AzimuthDeg
	pass.DurationSeconds = pass.Set.Sub(pass.Rise).Seconds()
	return pass, pass.Set.Add(resolution), nil
}

// crossing bisects between a and b, which lie on opposite sides of the
// elevation threshold, and returns the sample on the above side nearest to
// the crossing.
func (s *scanner) crossing(a, b sample) (sample, error) {
	rising := !s.above(a)
	for b.t.Sub(a.t) > resolution {
		mid, err := s.at(a.t.Add(b.t.Sub(a.t) / 2))
		if err != nil {
			return sample{}, err
		}
		if s.above(mid) == rising {
			b = mid
		} else {
			a = mid
		}
	}
	if rising {
		return b, nil
	}
	return a, nil
}

// culmination refines the highest track sample at one second resolution.
func (s *scanner) culmination(best sample, rise, set time.Time) (sample, error) {
	for t := best.t.Add(-trackStep); !t.After(best.t.Add(trackStep)); t = t.Add(resolution) {
		if t.Before(rise) || t.After(set) {
			continue
		}
		smp, err := s.at(t)
		if err != nil {
			return best, err
		}
		if smp.look.ElevationDeg > best.look.ElevationDeg {
			best = smp
		}
	}
	return best, nil
}

func trackPoint(smp sample) GroundTrackPoint {
	geo := smp.ecef.Geodetic()
	return GroundTrackPoint{
		Time:         smp.t,
		LatDeg:       geo.LatDeg,
		LonDeg:       geo.LonDeg,
		AltKm:        geo.AltKm,
		ElevationDeg: smp.look.ElevationDeg,
	}
}
