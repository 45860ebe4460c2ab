package screening

import (
	"fmt"
	"time"

	"github.com/star/orbitrisk/internal/propagation"
)

// Options describe one screening run.
type Options struct {
	Start       time.Time // zero means now
	Horizon     time.Duration
	Step        time.Duration
	ThresholdKm float64
}

// OptionsError reports unusable screening options.
type OptionsError struct {
	Field  string
	Reason string
}

func (e *OptionsError) Error() string {
	return fmt.Sprintf("invalid screening option %s: %s", e.Field, e.Reason)
}

// Event is a close approach between two satellites. A is always the lower
// catalog id, so an unordered pair has exactly one representation.
type Event struct {
	A                   int       `json:"a_id"`
	B                   int       `json:"b_id"`
	NameA               string    `json:"a"`
	NameB               string    `json:"b"`
	TCA                 time.Time `json:"tca"`
	MissDistanceKm      float64   `json:"distance_km"`
	RelativeVelocityKmS float64   `json:"relative_velocity_km_s"`
}

// Pair returns the event's unordered pair key.
func (e Event) Pair() [2]int { return [2]int{e.A, e.B} }

// Exclusion records a satellite left out of a run.
type Exclusion struct {
	CatalogID int    `json:"catalog_id"`
	Name      string `json:"name"`
	Reason    string `json:"reason"`
}

// Result is the outcome of a screening run. Partial is set when the run was
// cancelled; Events then holds only the events confirmed before cancellation.
type Result struct {
	Start            time.Time
	Horizon          time.Duration
	Step             time.Duration
	ThresholdKm      float64
	Samples          int
	Satellites       int
	PairsScreened    int
	PairsPrefiltered int
	Events           []Event
	Excluded         []Exclusion
	Partial          bool
	Duration         time.Duration
}

// Config holds screener tuning.
type Config struct {
	// MaxSamples bounds the samples per satellite in one run.
	MaxSamples int
	// RefineIterations bounds the golden-section search.
	RefineIterations int
	// RefineTolerance is the time resolution of the refined closest approach.
	RefineTolerance time.Duration
	// MaxCandidates bounds the local minima refined per pair.
	MaxCandidates int
}

// DefaultConfig returns the screener defaults.
func DefaultConfig() Config {
	return Config{
		MaxSamples:       20161,
		RefineIterations: 64,
		RefineTolerance:  time.Millisecond,
		MaxCandidates:    16,
	}
}

// Separation returns the distance in km between two state vectors.
func Separation(a, b propagation.StateVector) float64 {
	return a.Position.Sub(b.Position).Norm()
}
