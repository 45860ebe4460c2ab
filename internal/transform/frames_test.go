package transform

import (
	"math"
	"testing"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
)

func TestToECEFMatchesLibrary(t *testing.T) {
	tests := []struct {
		name string
		s    PositionTEME
		at   time.Time
	}{
		{
			"Vallado 3-15",
			PositionTEME{X: 5094.18016, Y: 6127.64465, Z: 6380.34453, VX: -4.746131487, VY: 0.786598499, VZ: 5.531931288},
			time.Date(2004, 4, 6, 7, 51, 28, 0, time.UTC),
		},
		{
			"equatorial LEO",
			PositionTEME{X: 6778, VY: 7.5},
			time.Date(2024, 4, 9, 12, 0, 0, 0, time.UTC),
		},
		{
			"GEO",
			PositionTEME{X: -29814.6, Y: 29814.6, VX: -2.174, VY: -2.174},
			time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gmst := satellite.GSTimeFromDate(tt.at.Year(), int(tt.at.Month()), tt.at.Day(), tt.at.Hour(), tt.at.Minute(), tt.at.Second())
			got := RotationFromGMST(gmst).ToECEF(tt.s)
			ref := satellite.ECIToECEF(satellite.Vector3{X: tt.s.X, Y: tt.s.Y, Z: tt.s.Z}, gmst)

			dx, dy, dz := got.X-ref.X*1000, got.Y-ref.Y*1000, got.Z-ref.Z*1000
			if d := math.Sqrt(dx*dx + dy*dy + dz*dz); d > 1e-3 {
				t.Errorf("position off by %.6f m", d)
			}
			if !got.Plausible() {
				t.Errorf("implausible result %+v", got)
			}
		})
	}
}

func TestToECEFRemovesEarthRotation(t *testing.T) {
	// A GEO satellite co-rotating with Earth is at rest in ECEF.
	const r = 42164.0
	v := r * EarthRotationRate
	got := RotationFromGMST(0).ToECEF(PositionTEME{X: r, VY: v})
	if speed := math.Sqrt(got.VX*got.VX + got.VY*got.VY + got.VZ*got.VZ); speed > 1e-6 {
		t.Errorf("co-rotating ECEF speed %.9f m/s, want 0", speed)
	}

	// Radial motion picks up the westward drift of the frame.
	got = RotationFromGMST(0).ToECEF(PositionTEME{X: 7000})
	if want := -7000 * EarthRotationRate * 1000; math.Abs(got.VY-want) > 1e-9 {
		t.Errorf("VY = %.6f m/s, want %.6f", got.VY, want)
	}
}

func TestTEMEToECEFKeepsRadius(t *testing.T) {
	s := PositionTEME{X: 1234.5, Y: -6012.25, Z: 2877.75}
	want := math.Sqrt(s.X*s.X + s.Y*s.Y + s.Z*s.Z)
	for h := 0; h < 24; h += 5 {
		at := time.Date(2024, 4, 9, h, 17, 0, 0, time.UTC)
		if got := TEMEToECEF(s, at).RadiusKm(); math.Abs(got-want) > 1e-9 {
			t.Errorf("%v: radius %.12f km, want %.12f", at, got, want)
		}
	}
}

func TestPlausible(t *testing.T) {
	tests := []struct {
		name string
		p    PositionECEF
		want bool
	}{
		{"LEO", PositionECEF{X: 6_778_000}, true},
		{"GEO", PositionECEF{X: 30_000_000, Y: 29_800_000}, true},
		{"HEO apogee", PositionECEF{Z: 300_000_000}, true},
		{"inside earth", PositionECEF{X: 5_000_000}, false},
		{"beyond the moon", PositionECEF{Y: 500_000_000}, false},
		{"NaN", PositionECEF{X: math.NaN(), Y: 7_000_000}, false},
		{"Inf", PositionECEF{Z: math.Inf(-1)}, false},
	}
	for _, tt := range tests {
		if got := tt.p.Plausible(); got != tt.want {
			t.Errorf("%s: Plausible = %v, want %v", tt.name, got, tt.want)
		}
	}
}
