package propagation

import (
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/star/orbitrisk/internal/tle"
)

// ISS TLE (epoch 2024-04-09 12:00 UTC).
const (
	issLine1 = "1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005"
	issLine2 = "2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09"
)

// Starlink TLE (typical LEO constellation satellite).
const (
	starlinkLine1 = "1 44713U 19074A   24100.50000000  .00001000  00000-0  10000-4 0  9995"
	starlinkLine2 = "2 44713  53.0000 200.0000 0001500  90.0000 270.0000 15.06000000    05"
)

// Moderately eccentric LEO with drag.
const (
	eccLine1 = "1 90200U 20001A   24100.50000000  .00000500  00000-0  20000-4 0  9990"
	eccLine2 = "2 90200  65.0000  30.0000 0500000  45.0000  10.0000 14.00000000  1009"
)

// Geostationary satellite; deep-space theory.
const (
	geoLine1 = "1 90100U 13001A   24100.50000000  .00000000  00000-0  00000-0 0  9990"
	geoLine2 = "2 90100   0.0500  80.0000 0002000 270.0000  90.0000  1.00270000    19"
)

var testEpoch = time.Date(2024, 4, 9, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func mustElementSet(t testing.TB, name, line1, line2 string) tle.ElementSet {
	t.Helper()
	res, err := tle.ParseCatalog(strings.NewReader(name+"\n"+line1+"\n"+line2+"\n"), testLogger())
	if err != nil {
		t.Fatalf("parse %s: %v", name, err)
	}
	if len(res.Sets) != 1 {
		t.Fatalf("parse %s: got %d sets, skipped %v", name, len(res.Sets), res.Skipped)
	}
	return res.Sets[0]
}

type tleSet = tle.ElementSet
