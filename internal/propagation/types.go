package propagation

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/star/orbitrisk/internal/tle"
	"github.com/star/orbitrisk/internal/transform"
)

// Vector is a Cartesian 3-vector.
type Vector struct {
	X, Y, Z float64
}

func (v Vector) Add(o Vector) Vector { return Vector{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vector) Sub(o Vector) Vector { return Vector{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vector) Scale(k float64) Vector { return Vector{v.X * k, v.Y * k, v.Z * k} }
func (v Vector) Dot(o Vector) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }
func (v Vector) Norm() float64 { return math.Sqrt(v.Dot(v)) }
func (v Vector) finite() bool { return finite(v.X) && finite(v.Y) && finite(v.Z) }
func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
func (v Vector) String() string { return fmt.Sprintf("(%.3f, %.3f, %.3f)", v.X, v.Y, v.Z) }

// StateVector is a satellite's position (km) and velocity (km/s) in the TEME
// frame at one instant.
type StateVector struct {
	CatalogID int
	Time      time.Time
	Position  Vector
	Velocity  Vector
}

// TEME returns the state in the transform package's representation.
func (s StateVector) TEME() transform.PositionTEME {
	return transform.PositionTEME{
		X: s.Position.X, Y: s.Position.Y, Z: s.Position.Z,
		VX: s.Velocity.X, VY: s.Velocity.Y, VZ: s.Velocity.Z,
	}
}

// Propagator produces state vectors for one element set.
// Implementations are safe for concurrent use.
type Propagator interface {
	CatalogID() int
	Epoch() time.Time
	Propagate(t time.Time) (StateVector, error)
}

// Backend selects the propagation model implementation.
type Backend string

const (
	// BackendAuto uses the native model for near-earth orbits and the
	// library model for deep-space orbits.
	BackendAuto    Backend = "auto"
	BackendNative  Backend = "native"
	BackendLibrary Backend = "library"
)

// ParseBackend validates a backend name.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case BackendAuto, BackendNative, BackendLibrary:
		return b, nil
	case "":
		return BackendAuto, nil
	default:
		return "", fmt.Errorf("unknown propagation backend %q", s)
	}
}

// deepSpacePeriod is the orbital period at and above which SGP4 switches to
// its deep-space theory.
const deepSpacePeriod = 225.0 // minutes

// New initializes a propagator for es with the given backend.
func New(es tle.ElementSet, backend Backend) (Propagator, error) {
	switch backend {
	case BackendNative:
		return newNative(es)
	case BackendLibrary:
		return newLibrary(es)
	case BackendAuto, "":
		if es.PeriodMinutes() >= deepSpacePeriod {
			return newLibrary(es)
		}
		// The native model tests the un-Kozai'd period, which can cross the
		// deep-space boundary when the Kozai period does not.
		p, err := newNative(es)
		if errors.Is(err, ErrDeepSpace) {
			return newLibrary(es)
		}
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown propagation backend %q", backend)
	}
}

// Propagate is a convenience for a single propagation with the auto backend.
func Propagate(es tle.ElementSet, t time.Time) (StateVector, error) {
	p, err := New(es, BackendAuto)
	if err != nil {
		return StateVector{}, err
	}
	return p.Propagate(t)
}

// Snapshot holds the positions of all satellites at a single point in time.
type Snapshot struct {
	Timestamp  time.Time
	Satellites []SatellitePosition
	Failed     int
}

// SatellitePosition holds a single satellite's ECEF state at a snapshot time.
type SatellitePosition struct {
	CatalogID    int
	PositionECEF [3]float64 // meters
	VelocityECEF [3]float64 // m/s
}

// Config holds propagation settings.
type Config struct {
	Workers      int
	Backend      Backend
	RegistrySize int
	RegistryTTL  time.Duration
}
