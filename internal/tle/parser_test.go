package tle

import (
	"errors"
	"math"
	"strings"
	"testing"
	"testing/iotest"
	"time"
)

const (
	issName  = "ISS (ZARYA)"
	issLine1 = "1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005"
	issLine2 = "2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09"

	starlinkName  = "STARLINK-1007"
	starlinkLine1 = "1 44713U 19074A   24100.50000000  .00001000  00000-0  10000-4 0  9995"
	starlinkLine2 = "2 44713  53.0000 200.0000 0001500  90.0000 270.0000 15.06000000    05"
)

func catalogText(records ...[3]string) string {
	var b strings.Builder
	for _, r := range records {
		b.WriteString(r[0] + "\n" + r[1] + "\n" + r[2] + "\n")
	}
	return b.String()
}

var (
	issRecord      = [3]string{issName, issLine1, issLine2}
	starlinkRecord = [3]string{starlinkName, starlinkLine1, starlinkLine2}
)

func TestParseCatalogFields(t *testing.T) {
	res, err := ParseCatalog(strings.NewReader(catalogText(issRecord)), testLogger)
	if err != nil {
		t.Fatalf("ParseCatalog: %v", err)
	}
	if len(res.Sets) != 1 || res.Groups != 1 || len(res.Skipped) != 0 {
		t.Fatalf("got %d sets, %d groups, %d skipped; want 1, 1, 0", len(res.Sets), res.Groups, len(res.Skipped))
	}

	es := res.Sets[0]
	wantEpoch := time.Date(2024, 4, 9, 12, 0, 0, 0, time.UTC)
	if !es.Epoch.Equal(wantEpoch) {
		t.Errorf("epoch = %v, want %v", es.Epoch, wantEpoch)
	}

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"inclination", es.InclinationDeg, 51.64},
		{"raan", es.RAANDeg, 100},
		{"eccentricity", es.Eccentricity, 0.0001},
		{"arg perigee", es.ArgPerigeeDeg, 0},
		{"mean anomaly", es.MeanAnomalyDeg, 0},
		{"mean motion", es.MeanMotion, 15.5},
		{"ndot", es.MeanMotionDot, 0.00016717},
		{"nddot", es.MeanMotionDDot, 0},
		{"bstar", es.BStar, 1.027e-4},
	}
	for _, c := range checks {
		if math.Abs(c.got-c.want) > 1e-12 {
			t.Errorf("%s = %g, want %g", c.name, c.got, c.want)
		}
	}
	if es.CatalogID != 25544 || es.Name != issName || es.Designator != "98067A" || es.Classification != 'U' {
		t.Errorf("identity fields = %d %q %q %c", es.CatalogID, es.Name, es.Designator, es.Classification)
	}
}

func TestParseCatalogSkipsCorruptedGroup(t *testing.T) {
	corrupted := [3]string{"BROKEN", "X" + issLine1[1:], issLine2}
	text := catalogText(issRecord, corrupted, starlinkRecord)

	res, err := ParseCatalog(strings.NewReader(text), testLogger)
	if err != nil {
		t.Fatalf("ParseCatalog: %v", err)
	}
	if res.Groups != 3 {
		t.Errorf("groups = %d, want 3", res.Groups)
	}
	if len(res.Sets) != 2 {
		t.Fatalf("sets = %d, want 2", len(res.Sets))
	}
	if len(res.Skipped) != 1 {
		t.Fatalf("skipped = %d, want 1", len(res.Skipped))
	}
	if res.Skipped[0].Group != 1 || res.Skipped[0].Name != "BROKEN" {
		t.Errorf("skip = %+v, want group 1 named BROKEN", res.Skipped[0])
	}
	if res.Sets[0].CatalogID != 25544 || res.Sets[1].CatalogID != 44713 {
		t.Errorf("ids = %d, %d", res.Sets[0].CatalogID, res.Sets[1].CatalogID)
	}
}

func TestParseCatalogRejects(t *testing.T) {
	tests := []struct {
		name   string
		record [3]string
	}{
		{"empty name", [3]string{"", issLine1, issLine2}},
		{"bad line 2 prefix", [3]string{issName, issLine1, "3" + issLine2[1:]}},
		{"short line", [3]string{issName, issLine1[:60], issLine2}},
		{"bad epoch", [3]string{issName, issLine1[:18] + "24XYZ.50000000" + issLine1[32:], issLine2}},
		{"catalog mismatch", [3]string{issName, issLine1, "2 25545" + issLine2[7:]}},
		{"bad mean motion", [3]string{issName, issLine1, issLine2[:52] + "15.5a000000" + issLine2[63:]}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ParseCatalog(strings.NewReader(catalogText(tt.record)), testLogger)
			if err != nil {
				t.Fatalf("ParseCatalog: %v", err)
			}
			if len(res.Sets) != 0 || len(res.Skipped) != 1 {
				t.Fatalf("got %d sets, %d skipped; want 0, 1", len(res.Sets), len(res.Skipped))
			}
			if res.Skipped[0].Reason == "" {
				t.Error("skip reason is empty")
			}
		})
	}
}

func TestParseCatalogIncompleteTrailingGroup(t *testing.T) {
	text := catalogText(issRecord) + starlinkName + "\n" + starlinkLine1 + "\n"
	res, err := ParseCatalog(strings.NewReader(text), testLogger)
	if err != nil {
		t.Fatalf("ParseCatalog: %v", err)
	}
	if res.Groups != 2 || len(res.Sets) != 1 || len(res.Skipped) != 1 {
		t.Errorf("got %d groups, %d sets, %d skipped; want 2, 1, 1", res.Groups, len(res.Sets), len(res.Skipped))
	}
}

func TestParseCatalogCRLFAndOuterBlankLines(t *testing.T) {
	text := "\r\n\r\n" + strings.ReplaceAll(catalogText(issRecord, starlinkRecord), "\n", "\r\n") + "\r\n\r\n"
	res, err := ParseCatalog(strings.NewReader(text), testLogger)
	if err != nil {
		t.Fatalf("ParseCatalog: %v", err)
	}
	if len(res.Sets) != 2 || len(res.Skipped) != 0 {
		t.Errorf("got %d sets, %d skipped; want 2, 0", len(res.Sets), len(res.Skipped))
	}
}

func TestParseCatalogThreeLineNamePrefix(t *testing.T) {
	res, err := ParseCatalog(strings.NewReader(catalogText([3]string{"0 " + issName, issLine1, issLine2})), testLogger)
	if err != nil {
		t.Fatalf("ParseCatalog: %v", err)
	}
	if len(res.Sets) != 1 || res.Sets[0].Name != issName {
		t.Fatalf("sets = %+v", res.Sets)
	}
}

func TestParseCatalogOverlongLineSkipsGroup(t *testing.T) {
	junk := [3]string{"JUNK", strings.Repeat("x", 2<<20), "foo"}
	text := catalogText(issRecord, junk, starlinkRecord)

	res, err := ParseCatalog(strings.NewReader(text), testLogger)
	if err != nil {
		t.Fatalf("ParseCatalog: %v", err)
	}
	if res.Groups != 3 || len(res.Sets) != 2 || len(res.Skipped) != 1 {
		t.Fatalf("got %d groups, %d sets, %d skipped; want 3, 2, 1", res.Groups, len(res.Sets), len(res.Skipped))
	}
	if res.Skipped[0].Name != "JUNK" {
		t.Errorf("skipped %q, want JUNK", res.Skipped[0].Name)
	}
}

func TestParseCatalogIndentedElementLines(t *testing.T) {
	indented := [3]string{"  " + issName, "  " + issLine1, "\t" + issLine2}
	res, err := ParseCatalog(strings.NewReader(catalogText(indented)), testLogger)
	if err != nil {
		t.Fatalf("ParseCatalog: %v", err)
	}
	if len(res.Sets) != 1 || len(res.Skipped) != 0 {
		t.Fatalf("got %d sets, %d skipped; want 1, 0", len(res.Sets), len(res.Skipped))
	}
	es := res.Sets[0]
	if es.CatalogID != 25544 || es.Name != issName || es.MeanMotion != 15.5 {
		t.Errorf("decoded %d %q n=%g", es.CatalogID, es.Name, es.MeanMotion)
	}
	if es.Line1 != issLine1 || es.Line2 != issLine2 {
		t.Errorf("stored lines keep indentation: %q / %q", es.Line1, es.Line2)
	}
}

func TestParseCatalogEmpty(t *testing.T) {
	res, err := ParseCatalog(strings.NewReader("\n\n"), testLogger)
	if err != nil {
		t.Fatalf("ParseCatalog: %v", err)
	}
	if res.Groups != 0 || len(res.Sets) != 0 {
		t.Errorf("got %d groups, %d sets", res.Groups, len(res.Sets))
	}
}

func TestParseCatalogReadError(t *testing.T) {
	boom := errors.New("boom")
	if _, err := ParseCatalog(iotest.ErrReader(boom), testLogger); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped boom", err)
	}
}

func TestParseImplied(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{" 10270-3", 1.027e-4},
		{" 00000-0", 0},
		{"-11606-4", -1.1606e-5},
		{"+12345+1", 1.2345},
		{"", 0},
	}
	for _, tt := range tests {
		got, err := parseImplied(tt.in)
		if err != nil {
			t.Fatalf("parseImplied(%q): %v", tt.in, err)
		}
		if math.Abs(got-tt.want) > 1e-15 {
			t.Errorf("parseImplied(%q) = %g, want %g", tt.in, got, tt.want)
		}
	}
}

func TestParseCatalogNumber(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"25544", 25544, false},
		{"    1", 1, false},
		{"A0001", 100001, false},
		{"J2931", 182931, false},
		{"Z9999", 339999, false},
		{"I0001", 0, true},
		{"12a45", 0, true},
	}
	for _, tt := range tests {
		got, err := parseCatalogNumber(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseCatalogNumber(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseCatalogNumber(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseEpochCentury(t *testing.T) {
	got, err := parseEpoch("57001.00000000")
	if err != nil {
		t.Fatal(err)
	}
	if got.Year() != 1957 {
		t.Errorf("year = %d, want 1957", got.Year())
	}
	got, err = parseEpoch("56001.00000000")
	if err != nil {
		t.Fatal(err)
	}
	if got.Year() != 2056 {
		t.Errorf("year = %d, want 2056", got.Year())
	}
}

func TestNewCatalogEpochRange(t *testing.T) {
	res, err := ParseCatalog(strings.NewReader(catalogText(issRecord, starlinkRecord)), testLogger)
	if err != nil {
		t.Fatal(err)
	}
	cat := NewCatalog("test", time.Now(), res)
	if !cat.EpochRange.Min.Equal(cat.EpochRange.Max) {
		t.Errorf("epoch range = %v..%v, want a single instant", cat.EpochRange.Min, cat.EpochRange.Max)
	}
	if _, ok := cat.Lookup(44713); !ok {
		t.Error("Lookup(44713) not found")
	}
	if _, ok := cat.Lookup(1); ok {
		t.Error("Lookup(1) found")
	}
}
