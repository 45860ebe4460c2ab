package propagation

import (
	"errors"
	"fmt"
)

var (
	// ErrDecayed reports an orbit that has reentered or whose mean elements
	// have collapsed under drag.
	ErrDecayed = errors.New("satellite decayed")

	// ErrNumericDivergence reports a model that produced values outside its
	// domain: non-finite output, eccentricity out of range, negative
	// semi-latus rectum or an unconverged Kepler solution.
	ErrNumericDivergence = errors.New("numeric divergence")

	// ErrDeepSpace is returned by the native model for orbits whose period
	// requires the deep-space theory.
	ErrDeepSpace = errors.New("deep-space orbit not supported by native model")
)

// Error is a propagation failure for one satellite. Kind is one of the
// sentinel errors above and is matched by errors.Is.
type Error struct {
	CatalogID int
	Kind      error
	Minutes   float64 // time since epoch
	Detail    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("propagate %d at %+.3f min: %v: %s", e.CatalogID, e.Minutes, e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Kind }

func decayed(id int, minutes float64, format string, args ...any) error {
	return &Error{CatalogID: id, Kind: ErrDecayed, Minutes: minutes, Detail: fmt.Sprintf(format, args...)}
}

func diverged(id int, minutes float64, format string, args ...any) error {
	return &Error{CatalogID: id, Kind: ErrNumericDivergence, Minutes: minutes, Detail: fmt.Sprintf(format, args...)}
}
