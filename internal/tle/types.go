package tle

import (
	"fmt"
	"time"
)

// ElementSet is one satellite's mean orbital elements as published in a
// three-line element record. Angles are degrees, mean motion is rev/day.
type ElementSet struct {
	CatalogID      int
	Name           string
	Classification byte
	Designator     string
	Epoch          time.Time

	InclinationDeg float64
	RAANDeg        float64
	Eccentricity   float64
	ArgPerigeeDeg  float64
	MeanAnomalyDeg float64
	MeanMotion     float64 // rev/day
	MeanMotionDot  float64 // rev/day^2, first derivative / 2
	MeanMotionDDot float64 // rev/day^3, second derivative / 6
	BStar          float64 // 1/earth radii
	RevNumber      int

	Line1 string
	Line2 string
}

// PeriodMinutes returns the Keplerian orbital period implied by the mean motion.
func (e ElementSet) PeriodMinutes() float64 {
	if e.MeanMotion <= 0 {
		return 0
	}
	return 1440.0 / e.MeanMotion
}

// EpochRange represents the minimum and maximum epoch times in a catalog.
type EpochRange struct {
	Min time.Time
	Max time.Time
}

// Catalog is a complete set of element sets loaded from one source.
type Catalog struct {
	Source     string
	FetchedAt  time.Time
	EpochRange EpochRange
	Sets       []ElementSet
	Groups     int
	Skipped    int
}

// NewCatalog builds a Catalog from a parse result and computes its epoch range.
func NewCatalog(source string, fetchedAt time.Time, res *ParseResult) *Catalog {
	c := &Catalog{
		Source:    source,
		FetchedAt: fetchedAt,
		Sets:      res.Sets,
		Groups:    res.Groups,
		Skipped:   len(res.Skipped),
	}
	for i, s := range res.Sets {
		if i == 0 || s.Epoch.Before(c.EpochRange.Min) {
			c.EpochRange.Min = s.Epoch
		}
		if i == 0 || s.Epoch.After(c.EpochRange.Max) {
			c.EpochRange.Max = s.Epoch
		}
	}
	return c
}

// Lookup returns the element set with the given catalog id.
func (c *Catalog) Lookup(id int) (ElementSet, bool) {
	for _, s := range c.Sets {
		if s.CatalogID == id {
			return s, true
		}
	}
	return ElementSet{}, false
}

// SkipError describes a record group that could not be decoded.
type SkipError struct {
	Group  int // zero-based group index
	Name   string
	Reason string
}

func (e *SkipError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("tle group %d skipped: %s", e.Group, e.Reason)
	}
	return fmt.Sprintf("tle group %d (%s) skipped: %s", e.Group, e.Name, e.Reason)
}

// ParseResult is the outcome of parsing a catalog text.
type ParseResult struct {
	Sets    []ElementSet
	Groups  int
	Skipped []*SkipError
}
