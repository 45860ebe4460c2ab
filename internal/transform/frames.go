package transform

import (
	"math"
	"time"
)

// Radii bounding a plausible Earth-orbit position.
const (
	polarRadiusKm    = 6356.7523142
	maxOrbitRadiusKm = 400000.0 // beyond lunar distance
)

// PositionTEME is a state in the True Equator Mean Equinox frame that SGP4
// produces. Kilometers and km/s.
type PositionTEME struct {
	X, Y, Z    float64
	VX, VY, VZ float64
}

// PositionECEF is an Earth-fixed state. Meters and m/s.
type PositionECEF struct {
	X, Y, Z    float64
	VX, VY, VZ float64
}

// Rotation is the TEME to ECEF rotation at one instant. Computing it once and
// applying it to a whole catalog saves a GMST evaluation per satellite.
type Rotation struct {
	cos, sin float64
}

// RotationAt returns the rotation for time t.
func RotationAt(t time.Time) Rotation {
	return RotationFromGMST(GMST(t))
}

// RotationFromGMST returns the rotation for a sidereal angle in radians.
func RotationFromGMST(gmst float64) Rotation {
	return Rotation{cos: math.Cos(gmst), sin: math.Sin(gmst)}
}

// ToECEF rotates a TEME state about Z and removes the frame's rotation from
// the velocity: v_ecef = R3(θ)·v_teme − ω × r_ecef.
func (r Rotation) ToECEF(s PositionTEME) PositionECEF {
	x := r.cos*s.X + r.sin*s.Y
	y := -r.sin*s.X + r.cos*s.Y
	vx := r.cos*s.VX + r.sin*s.VY + EarthRotationRate*y
	vy := -r.sin*s.VX + r.cos*s.VY - EarthRotationRate*x

	const m = 1000.0
	return PositionECEF{
		X: x * m, Y: y * m, Z: s.Z * m,
		VX: vx * m, VY: vy * m, VZ: s.VZ * m,
	}
}

// TEMEToECEF converts a TEME state at t to ECEF.
func TEMEToECEF(s PositionTEME, t time.Time) PositionECEF {
	return RotationAt(t).ToECEF(s)
}

// RadiusKm is the distance from Earth's center.
func (p PositionECEF) RadiusKm() float64 {
	return math.Sqrt(p.X*p.X+p.Y*p.Y+p.Z*p.Z) / 1000
}

// Plausible reports whether p is finite and lies between Earth's surface and
// lunar distance.
func (p PositionECEF) Plausible() bool {
	for _, v := range [...]float64{p.X, p.Y, p.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	r := p.RadiusKm()
	return r >= polarRadiusKm && r <= maxOrbitRadiusKm
}
