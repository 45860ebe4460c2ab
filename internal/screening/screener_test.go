package screening

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/star/orbitrisk/internal/propagation"
	"github.com/star/orbitrisk/internal/tle"
)

const (
	issLine1 = "1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005"
	issLine2 = "2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09"

	starlinkLine1 = "1 44713U 19074A   24100.50000000  .00001000  00000-0  10000-4 0  9995"
	starlinkLine2 = "2 44713  53.0000 200.0000 0001500  90.0000 270.0000 15.06000000    05"
)

var (
	testEpoch  = time.Date(2024, 4, 9, 12, 0, 0, 0, time.UTC)
	testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))
)

func parseOne(t *testing.T, name, l1, l2 string) tle.ElementSet {
	t.Helper()
	res, err := tle.ParseCatalog(strings.NewReader(name+"\n"+l1+"\n"+l2+"\n"), testLogger)
	if err != nil || len(res.Sets) != 1 {
		t.Fatalf("parse %s: %v %+v", name, err, res)
	}
	return res.Sets[0]
}

// coOrbitingPair returns two drag-free satellites on the same orbit about
// 5 km apart along track.
func coOrbitingPair(t *testing.T) (tle.ElementSet, tle.ElementSet) {
	base := parseOne(t, "ISS", issLine1, issLine2)
	base.BStar = 0
	base.MeanMotionDot = 0

	a := base
	a.CatalogID, a.Name = 90001, "SAT-A"
	b := base
	b.CatalogID, b.Name = 90002, "SAT-B"
	b.MeanAnomalyDeg = 0.0423
	return a, b
}

func newTestScreener(workers int) *Screener {
	return New(
		propagation.NewRegistry(propagation.BackendAuto, 1024, time.Hour),
		propagation.NewWorkerPool(workers, testLogger),
		Config{},
		testLogger,
	)
}

func TestScreenCoOrbitingPair(t *testing.T) {
	a, b := coOrbitingPair(t)
	far := parseOne(t, "STARLINK-1007", starlinkLine1, starlinkLine2)

	s := newTestScreener(3)
	res, err := s.Screen(context.Background(), []tle.ElementSet{b, far, a}, Options{
		Start:       testEpoch,
		Horizon:     2 * time.Hour,
		Step:        time.Minute,
		ThresholdKm: 10,
	})
	if err != nil {
		t.Fatalf("Screen: %v", err)
	}
	if res.Partial {
		t.Error("unexpected partial result")
	}
	if len(res.Events) != 1 {
		t.Fatalf("got %d events, want exactly 1: %+v", len(res.Events), res.Events)
	}

	ev := res.Events[0]
	if ev.A != 90001 || ev.B != 90002 || ev.NameA != "SAT-A" || ev.NameB != "SAT-B" {
		t.Errorf("event pair = %d(%s)/%d(%s), want 90001/90002 in order", ev.A, ev.NameA, ev.B, ev.NameB)
	}
	if ev.MissDistanceKm >= 10 || ev.MissDistanceKm < 4 {
		t.Errorf("miss distance = %.3f km, want about 5", ev.MissDistanceKm)
	}
	if ev.TCA.Before(testEpoch) || ev.TCA.After(testEpoch.Add(2*time.Hour)) {
		t.Errorf("TCA %v outside horizon", ev.TCA)
	}
	if ev.RelativeVelocityKmS > 0.1 {
		t.Errorf("relative velocity = %.4f km/s, want near zero for co-orbiting satellites", ev.RelativeVelocityKmS)
	}
	if res.PairsScreened != 1 || res.PairsPrefiltered != 2 {
		t.Errorf("pairs screened=%d prefiltered=%d, want 1/2", res.PairsScreened, res.PairsPrefiltered)
	}
}

// TestScreenRefinesBetweenSamples places the closest approach of two
// crossing orbits between coarse samples and checks that refinement finds a
// separation below the best sampled one.
func TestScreenRefinesBetweenSamples(t *testing.T) {
	base := parseOne(t, "ISS", issLine1, issLine2)
	base.BStar = 0
	base.MeanMotionDot = 0

	a := base
	a.CatalogID, a.Name = 1, "PROGRADE"
	b := base
	b.CatalogID, b.Name = 2, "CROSSING"
	// Same shell and node, different plane: the orbits intersect at the
	// nodes, where both satellites arrive together at epoch.
	b.InclinationDeg = 97.0

	s := newTestScreener(2)
	res, err := s.Screen(context.Background(), []tle.ElementSet{a, b}, Options{
		Start:       testEpoch.Add(-37 * time.Second),
		Horizon:     10 * time.Minute,
		Step:        2 * time.Minute,
		ThresholdKm: 50,
	})
	if err != nil {
		t.Fatalf("Screen: %v", err)
	}
	if len(res.Events) != 1 {
		t.Fatalf("got %d events, want 1", len(res.Events))
	}
	ev := res.Events[0]
	if ev.MissDistanceKm > 15 {
		t.Errorf("refined miss distance = %.3f km, want a near-collision", ev.MissDistanceKm)
	}
	if d := ev.TCA.Sub(testEpoch); d < -10*time.Second || d > 10*time.Second {
		t.Errorf("TCA offset from node crossing = %v", d)
	}
	if ev.RelativeVelocityKmS < 5 {
		t.Errorf("relative velocity = %.3f km/s, want a fast crossing", ev.RelativeVelocityKmS)
	}
}

func TestScreenNeverReportsAtOrAboveThreshold(t *testing.T) {
	a, b := coOrbitingPair(t)
	s := newTestScreener(2)
	res, err := s.Screen(context.Background(), []tle.ElementSet{a, b}, Options{
		Start:       testEpoch,
		Horizon:     time.Hour,
		Step:        time.Minute,
		ThresholdKm: 4,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Events) != 0 {
		t.Errorf("got %+v, want no events below 4 km", res.Events)
	}
}

func TestScreenSmallCatalogs(t *testing.T) {
	a, _ := coOrbitingPair(t)
	s := newTestScreener(2)
	opts := Options{Start: testEpoch, Horizon: time.Hour, Step: time.Minute, ThresholdKm: 10}

	for _, sets := range [][]tle.ElementSet{nil, {a}, {a, a}} {
		res, err := s.Screen(context.Background(), sets, opts)
		if err != nil {
			t.Fatalf("Screen(%d sets): %v", len(sets), err)
		}
		if res.Events == nil || len(res.Events) != 0 {
			t.Errorf("Screen(%d sets) events = %#v, want empty non-nil", len(sets), res.Events)
		}
	}
}

func TestScreenExcludesFailingSatellites(t *testing.T) {
	a, b := coOrbitingPair(t)

	broken := a
	broken.CatalogID, broken.Name = 90003, "BROKEN"
	broken.Eccentricity = 1.5

	reentering := a
	reentering.CatalogID, reentering.Name = 90004, "REENTERING"
	reentering.MeanMotion = 16.3
	reentering.BStar = 0.01

	s := newTestScreener(2)
	res, err := s.Screen(context.Background(), []tle.ElementSet{a, broken, b, reentering}, Options{
		Start:       testEpoch,
		Horizon:     24 * time.Hour,
		Step:        10 * time.Minute,
		ThresholdKm: 10,
	})
	if err != nil {
		t.Fatalf("Screen: %v", err)
	}
	if len(res.Excluded) != 2 {
		t.Fatalf("excluded = %+v, want BROKEN and REENTERING", res.Excluded)
	}
	ids := map[int]bool{}
	for _, ex := range res.Excluded {
		ids[ex.CatalogID] = true
	}
	if !ids[90003] || !ids[90004] {
		t.Errorf("excluded ids = %v", ids)
	}
	if res.Satellites != 2 || len(res.Events) != 1 {
		t.Errorf("satellites=%d events=%d, want 2/1", res.Satellites, len(res.Events))
	}
}

func TestScreenCancelledReturnsPartial(t *testing.T) {
	a, b := coOrbitingPair(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := newTestScreener(2)
	res, err := s.Screen(ctx, []tle.ElementSet{a, b}, Options{
		Start: testEpoch, Horizon: time.Hour, Step: time.Minute, ThresholdKm: 10,
	})
	if err != nil {
		t.Fatalf("cancelled screen returned error: %v", err)
	}
	if !res.Partial {
		t.Error("expected Partial for a cancelled run")
	}
	if res.Events == nil {
		t.Error("events must be an empty list, not nil")
	}
}

func TestScreenOptionsValidation(t *testing.T) {
	s := newTestScreener(1)
	tests := []struct {
		name  string
		opts  Options
		field string
	}{
		{"zero step", Options{Horizon: time.Hour, ThresholdKm: 10}, "step"},
		{"negative horizon", Options{Horizon: -time.Hour, Step: time.Minute, ThresholdKm: 10}, "horizon"},
		{"nan threshold", Options{Horizon: time.Hour, Step: time.Minute, ThresholdKm: math.NaN()}, "threshold_km"},
		{"zero threshold", Options{Horizon: time.Hour, Step: time.Minute}, "threshold_km"},
		{"too many samples", Options{Horizon: 365 * 24 * time.Hour, Step: time.Second, ThresholdKm: 10}, "horizon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Screen(context.Background(), nil, tt.opts)
			var oe *OptionsError
			if !errors.As(err, &oe) || oe.Field != tt.field {
				t.Errorf("err = %v, want OptionsError on %s", err, tt.field)
			}
		})
	}
}

// TestSeparationSymmetric checks d(A,B) == d(B,A) at every sample.
func TestSeparationSymmetric(t *testing.T) {
	a, b := coOrbitingPair(t)
	pa, err := propagation.New(a, propagation.BackendAuto)
	if err != nil {
		t.Fatal(err)
	}
	pb, err := propagation.New(b, propagation.BackendAuto)
	if err != nil {
		t.Fatal(err)
	}
	for k := 0; k < 120; k++ {
		at := testEpoch.Add(time.Duration(k) * time.Minute)
		sa, _ := pa.Propagate(at)
		sb, _ := pb.Propagate(at)
		if Separation(sa, sb) != Separation(sb, sa) {
			t.Fatalf("sample %d: separation not symmetric", k)
		}
	}
}

func TestSortEventsTieBreak(t *testing.T) {
	events := []Event{
		{A: 3, B: 4, MissDistanceKm: 2, TCA: testEpoch.Add(time.Hour)},
		{A: 1, B: 2, MissDistanceKm: 2, TCA: testEpoch},
		{A: 5, B: 6, MissDistanceKm: 1, TCA: testEpoch.Add(2 * time.Hour)},
	}
	sortEvents(events)
	if events[0].A != 5 || events[1].A != 1 || events[2].A != 3 {
		t.Errorf("order = %d,%d,%d; want 5,1,3", events[0].A, events[1].A, events[2].A)
	}
}

func TestGoldenSection(t *testing.T) {
	f := func(x float64) (float64, error) { return (x - 1.2345) * (x - 1.2345), nil }
	x, fx, err := goldenSection(f, 0, 10, 1e-6, 64)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(x-1.2345) > 1e-5 || fx > 1e-9 {
		t.Errorf("minimum at %.7f (f=%g), want 1.2345", x, fx)
	}

	if _, _, err := goldenSection(f, 0, 10, 1e-9, 3); !errors.Is(err, propagation.ErrNumericDivergence) {
		t.Errorf("exhausted budget err = %v, want ErrNumericDivergence", err)
	}

	boom := errors.New("boom")
	failing := func(float64) (float64, error) { return 0, boom }
	if _, _, err := goldenSection(failing, 0, 1, 1e-3, 10); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestDedupeKeepsLatestEpoch(t *testing.T) {
	a, _ := coOrbitingPair(t)
	newer := a
	newer.Epoch = a.Epoch.Add(time.Hour)
	newer.Name = "NEWER"
	out := dedupe([]tle.ElementSet{a, newer, a})
	if len(out) != 1 || out[0].Name != "NEWER" {
		t.Errorf("dedupe = %+v", out)
	}
}
