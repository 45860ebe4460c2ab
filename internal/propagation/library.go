package propagation

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/star/orbitrisk/internal/tle"
)

// maxRadius bounds plausible geocentric radii; beyond it the model has diverged.
const maxRadius = 1.0e6 // km

// libraryModel wraps github.com/joshuaferrara/go-satellite, which implements
// both the near-earth and the deep-space SGP4 theories.
//
// satellite.Propagate takes the Satellite by value, so SGP4 error codes are
// not visible to the caller. Failures are detected from the output instead.
type libraryModel struct {
	sat   satellite.Satellite
	id    int
	epoch time.Time
}

// newLibrary validates the raw lines before handing them to go-satellite,
// which calls log.Fatal on malformed input.
func newLibrary(es tle.ElementSet) (*libraryModel, error) {
	line1, line2, err := libraryLines(es.Line1, es.Line2)
	if err != nil {
		return nil, &Error{CatalogID: es.CatalogID, Kind: ErrNumericDivergence, Detail: "invalid TLE: " + err.Error()}
	}

	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS84)
	if sat.Error != 0 {
		return nil, diverged(es.CatalogID, 0, "sgp4 init failed: code=%d %s", sat.Error, sat.ErrorStr)
	}
	m := &libraryModel{sat: sat, id: es.CatalogID, epoch: es.Epoch}
	if _, err := m.Propagate(es.Epoch); err != nil {
		return nil, err
	}
	return m, nil
}

// libraryLines returns copies of the element lines that go-satellite parses
// without failing. The library reads the catalog number as a plain integer
// and never uses it, so the field is blanked to zeros; Alpha-5 numbers would
// otherwise abort the process.
func libraryLines(line1, line2 string) (string, string, error) {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)
	if err := validateTLELines(line1, line2); err != nil {
		return "", "", err
	}
	line1 = line1[:2] + "00000" + line1[7:]
	line2 = line2[:2] + "00000" + line2[7:]

	// Each entry is the exact string go-satellite hands to strconv.
	floats := []struct {
		field string
		s     string
	}{
		{"epoch day", line1[20:32]},
		{"mean motion derivative", strings.Replace(line1[33:43], " ", "", 2)},
		{"mean motion second derivative", strings.Replace(line1[44:45]+"."+line1[45:50]+"e"+line1[50:52], " ", "", 2)},
		{"drag term", strings.Replace(line1[53:54]+"."+line1[54:59]+"e"+line1[59:61], " ", "", 2)},
		{"inclination", strings.Replace(line2[8:16], " ", "", 2)},
		{"right ascension", strings.Replace(line2[17:25], " ", "", 2)},
		{"eccentricity", "." + line2[26:33]},
		{"argument of perigee", strings.Replace(line2[34:42], " ", "", 2)},
		{"mean anomaly", strings.Replace(line2[43:51], " ", "", 2)},
		{"mean motion", strings.Replace(line2[52:63], " ", "", 2)},
	}
	if _, err := strconv.ParseInt(line1[18:20], 10, 0); err != nil {
		return "", "", fmt.Errorf("epoch year %q not readable by the library model", line1[18:20])
	}
	for _, f := range floats {
		if _, err := strconv.ParseFloat(f.s, 64); err != nil {
			return "", "", fmt.Errorf("%s %q not readable by the library model", f.field, f.s)
		}
	}
	return line1, line2, nil
}

// validateTLELines performs basic format validation on TLE lines.
func validateTLELines(line1, line2 string) error {
	if len(line1) != lineWidth {
		return fmt.Errorf("line1 length %d, expected %d", len(line1), lineWidth)
	}
	if len(line2) != lineWidth {
		return fmt.Errorf("line2 length %d, expected %d", len(line2), lineWidth)
	}
	if line1[0] != '1' {
		return fmt.Errorf("line1 must start with '1', got '%c'", line1[0])
	}
	if line2[0] != '2' {
		return fmt.Errorf("line2 must start with '2', got '%c'", line2[0])
	}
	return nil
}

const lineWidth = 69

func (m *libraryModel) CatalogID() int { return m.id }
func (m *libraryModel) Epoch() time.Time { return m.epoch }

// Propagate evaluates the library model at the whole second at or before t
// and carries the remaining fraction of a second forward with a
// second-order step under two-body gravity.
func (m *libraryModel) Propagate(t time.Time) (StateVector, error) {
	t = t.UTC()
	whole := t.Truncate(time.Second)
	pos, vel := satellite.Propagate(m.sat, whole.Year(), int(whole.Month()), whole.Day(),
		whole.Hour(), whole.Minute(), whole.Second())

	r := Vector{pos.X, pos.Y, pos.Z}
	v := Vector{vel.X, vel.Y, vel.Z}
	minutes := t.Sub(m.epoch).Minutes()
	if !r.finite() || !v.finite() {
		return StateVector{}, diverged(m.id, minutes, "output is NaN/Inf")
	}

	mag := r.Norm()
	if mag < reentryRadius {
		return StateVector{}, decayed(m.id, minutes, "radius %.1f km below reentry altitude", mag)
	}
	if mag > maxRadius {
		return StateVector{}, diverged(m.id, minutes, "unreasonable position magnitude %.1f km", mag)
	}

	if dt := t.Sub(whole).Seconds(); dt > 0 {
		a := r.Scale(-muEarth / (mag * mag * mag))
		r = r.Add(v.Scale(dt)).Add(a.Scale(0.5 * dt * dt))
		v = v.Add(a.Scale(dt))
	}
	return StateVector{CatalogID: m.id, Time: t, Position: r, Velocity: v}, nil
}
