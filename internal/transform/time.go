// Package transform converts propagated TEME states into Earth-fixed,
// geodetic and observer-relative coordinates.
//
// TEME to ECEF is a rotation by GMST alone (IAU-82). Polar motion and the
// equation of the equinoxes are ignored, which costs tens of meters. That is
// well inside the uncertainty of element-set propagation itself.
package transform

import (
	"math"
	"time"
)

// EarthRotationRate is Earth's sidereal rotation rate in rad/s.
const EarthRotationRate = 7.292115146706979e-5

const (
	unixEpochJD   = 2440587.5 // 1970-01-01T00:00:00Z
	j2000JD       = 2451545.0 // 2000-01-01T12:00:00
	secondsPerDay = 86400.0
)

// JulianDate returns the Julian Date of t. UTC stands in for UT1.
func JulianDate(t time.Time) float64 {
	sec := float64(t.Unix()) + float64(t.Nanosecond())/1e9
	return unixEpochJD + sec/secondsPerDay
}

// GMST returns Greenwich Mean Sidereal Time at t in radians, in [0, 2π).
//
//	θ = 67310.54841 + (876600h + 8640184.812866)·T + 0.093104·T² − 6.2e-6·T³
//
// with T in Julian centuries from J2000 and θ in seconds of time
// (Vallado eq. 3-47).
func GMST(t time.Time) float64 {
	c := (JulianDate(t) - j2000JD) / 36525.0
	sec := 67310.54841 + (876600*3600+8640184.812866)*c + 0.093104*c*c - 6.2e-6*c*c*c
	sec = math.Mod(sec, secondsPerDay)
	if sec < 0 {
		sec += secondsPerDay
	}
	return sec / secondsPerDay * 2 * math.Pi
}
