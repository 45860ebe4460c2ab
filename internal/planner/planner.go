// Package planner produces mission-planning estimates from user supplied
// orbit parameters: a debris-density risk score, an orbital lifetime range and
// a recommended launch site. The constants are documented heuristics, not
// validated physics.
package planner

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Level is the qualitative debris-risk level.
type Level string

const (
	LevelLow      Level = "low"
	LevelModerate Level = "moderate"
	LevelHigh     Level = "high"
)

// DisposalYears is the post-mission disposal guideline.
const DisposalYears = 25.0

// referenceAreaToMass is the area-to-mass ratio (m^2/kg) the lifetime table
// was drawn for.
const referenceAreaToMass = 0.02

// RiskAssessment is the debris-density risk of an orbit.
type RiskAssessment struct {
	Score int      `json:"score"`
	Level Level    `json:"level"`
	Notes []string `json:"notes"`
}

// LifetimeEstimate bounds the years until atmospheric reentry.
type LifetimeEstimate struct {
	Min              float64 `json:"min"`
	Nominal          float64 `json:"nominal"`
	Max              float64 `json:"max"`
	Complies25yrRule bool    `json:"complies25yrRule"`
}

// LaunchSite is a named launch location.
type LaunchSite struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// Request carries the mission parameters of a planning request.
type Request struct {
	SiteLat        float64 `json:"siteLat"`
	SiteLon        float64 `json:"siteLon"`
	AltitudeKm     float64 `json:"altitudeKm"`
	InclinationDeg float64 `json:"inclinationDeg"`
	MassKg         float64 `json:"massKg"`
	AreaM2         float64 `json:"areaM2"`
}

// Report is the planning report returned for a Request.
type Report struct {
	RecommendedSite LaunchSite       `json:"recommendedSite"`
	DebrisRisk      RiskAssessment   `json:"debrisRisk"`
	LifetimeYears   LifetimeEstimate `json:"lifetimeYears"`
	Recommendations []string         `json:"recommendations"`
}

// ValidationError lists the request fields that were rejected, keyed by the
// JSON field name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + ": " + e.Fields[name]
	}
	return "invalid planner request: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, reason string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = reason
	}
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

var requestFields = []string{"siteLat", "siteLon", "altitudeKm", "inclinationDeg", "massKg", "areaM2"}

// DecodeRequest decodes a JSON planning request. Every field must be present
// and a JSON number; anything else is reported as a *ValidationError.
func DecodeRequest(data []byte) (Request, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Request{}, &ValidationError{Fields: map[string]string{"body": "not a JSON object"}}
	}

	var req Request
	targets := map[string]*float64{
		"siteLat":        &req.SiteLat,
		"siteLon":        &req.SiteLon,
		"altitudeKm":     &req.AltitudeKm,
		"inclinationDeg": &req.InclinationDeg,
		"massKg":         &req.MassKg,
		"areaM2":         &req.AreaM2,
	}
	verr := &ValidationError{}
	for _, name := range requestFields {
		value, ok := raw[name]
		if !ok || string(value) == "null" {
			verr.add(name, "missing")
			continue
		}
		if err := json.Unmarshal(value, targets[name]); err != nil {
			verr.add(name, "not a number")
		}
	}
	return req, verr.orNil()
}

// Validate checks the numeric ranges of a request.
func (r Request) Validate() error {
	verr := &ValidationError{}
	values := []float64{r.SiteLat, r.SiteLon, r.AltitudeKm, r.InclinationDeg, r.MassKg, r.AreaM2}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			verr.add(requestFields[i], "not a finite number")
		}
	}
	if r.SiteLat < -90 || r.SiteLat > 90 {
		verr.add("siteLat", "outside [-90, 90]")
	}
	if r.SiteLon < -180 || r.SiteLon > 180 {
		verr.add("siteLon", "outside [-180, 180]")
	}
	if r.AltitudeKm <= 0 {
		verr.add("altitudeKm", "must be positive")
	}
	if r.InclinationDeg < 0 || r.InclinationDeg > 180 {
		verr.add("inclinationDeg", "outside [0, 180]")
	}
	if r.MassKg <= 0 {
		verr.add("massKg", "must be positive")
	}
	if r.AreaM2 < 0 {
		verr.add("areaM2", "must not be negative")
	}
	return verr.orNil()
}

// Plan validates the request and assembles the planning report.
func Plan(req Request) (*Report, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	site := RecommendSite(req.InclinationDeg)
	risk := DebrisRisk(req.AltitudeKm, req.InclinationDeg)
	lifetime := EstimateLifetime(req.AltitudeKm, req.AreaM2/req.MassKg)

	var recs []string
	if risk.Level != LevelLow {
		recs = append(recs, "Select a lower congestion altitude band (e.g., <550 km) if mission permits.")
	}
	if !lifetime.Complies25yrRule {
		recs = append(recs, "Increase drag (deploy sail) or target lower altitude to meet 25-year rule.")
	}
	if sunSynchronous(req.InclinationDeg) {
		recs = append(recs, "Consider non-SSO planes or off-peak RAANs to reduce conjunctions.")
	}
	if needsPlaneChange(req.SiteLat, req.InclinationDeg) {
		recs = append(recs, fmt.Sprintf(
			"Inclination %.1f° is below the launch latitude %.1f°; plan a plane change or use a lower-latitude site.",
			req.InclinationDeg, math.Abs(req.SiteLat)))
	}
	recs = append(recs,
		"Integrate authoritative catalogs (CelesTrak/Space-Track) for pre-launch conjunction screening.",
		"Publish a disposal plan (deorbit or graveyard transfer) aligned with mitigation guidelines.",
	)

	return &Report{
		RecommendedSite: site,
		DebrisRisk:      risk,
		LifetimeYears:   lifetime,
		Recommendations: recs,
	}, nil
}

// DebrisRisk scores the debris density of an orbit on [1, 10]. The busiest
// band is 700-900 km; sun-synchronous and 45-60° planes add traffic.
func DebrisRisk(altitudeKm, inclinationDeg float64) RiskAssessment {
	var score int
	switch {
	case altitudeKm < 400:
		score = 2
	case altitudeKm < 550:
		score = 4
	case altitudeKm < 700:
		score = 7
	case altitudeKm < 900:
		score = 8
	default:
		score = 6
	}
	if sunSynchronous(inclinationDeg) {
		score += 2
	}
	if inclinationDeg > 45 && inclinationDeg < 60 {
		score++
	}
	score = min(max(score, 1), 10)

	level := levelFor(score)
	notes := []string{}
	if level == LevelHigh {
		notes = append(notes, "Crowded altitude band; consider lower altitude or alternative plane.")
	}
	if sunSynchronous(inclinationDeg) {
		notes = append(notes, "Sun-synchronous planes are heavily utilized.")
	}
	if altitudeKm < 400 {
		notes = append(notes, "Lower altitudes reduce debris density but increase atmospheric drag.")
	}
	return RiskAssessment{Score: score, Level: level, Notes: notes}
}

func levelFor(score int) Level {
	switch {
	case score <= 3:
		return LevelLow
	case score <= 6:
		return LevelModerate
	default:
		return LevelHigh
	}
}

// EstimateLifetime bounds the orbital lifetime in years. The baseline table
// assumes average solar activity and a 0.02 m^2/kg area-to-mass ratio; the
// min/max bounds model solar-cycle uncertainty at ±60%.
func EstimateLifetime(altitudeKm, areaToMass float64) LifetimeEstimate {
	var baseline float64
	switch {
	case altitudeKm < 350:
		baseline = 0.2
	case altitudeKm < 400:
		baseline = 0.6
	case altitudeKm < 500:
		baseline = 2.5
	case altitudeKm < 600:
		baseline = 8
	case altitudeKm < 700:
		baseline = 18
	case altitudeKm < 800:
		baseline = 40
	default:
		baseline = 70
	}

	scale := clamp(referenceAreaToMass/areaToMass, 0.05, 20)
	nominal := baseline * scale
	upper := nominal * 1.6
	return LifetimeEstimate{
		Min:              nominal * 0.4,
		Nominal:          nominal,
		Max:              upper,
		Complies25yrRule: upper <= DisposalYears,
	}
}

var (
	siteSSO     = LaunchSite{Name: "Vandenberg (SSO)", Lat: 34.732, Lon: -120.572}
	siteLowInc  = LaunchSite{Name: "Kourou (Low inc)", Lat: 5.236, Lon: -52.768}
	siteLowMid  = LaunchSite{Name: "Cape Canaveral (Low–Mid inc)", Lat: 28.572, Lon: -80.649}
	siteMidInc  = LaunchSite{Name: "Cape/Wallops (Mid inc)", Lat: 37.940, Lon: -75.466}
	siteHighInc = LaunchSite{Name: "Vandenberg (High inc)", Lat: 34.732, Lon: -120.572}
)

// RecommendSite picks a launch site by inclination band. Upper bounds are
// inclusive and the first matching band wins.
func RecommendSite(inclinationDeg float64) LaunchSite {
	switch {
	case inclinationDeg >= 95 && inclinationDeg <= 100:
		return siteSSO
	case inclinationDeg <= 20:
		return siteLowInc
	case inclinationDeg <= 40:
		return siteLowMid
	case inclinationDeg <= 65:
		return siteMidInc
	default:
		return siteHighInc
	}
}

// sunSynchronous reports the open SSO band used by the risk rules.
func sunSynchronous(inclinationDeg float64) bool {
	return inclinationDeg > 95 && inclinationDeg < 100
}

// needsPlaneChange reports whether a direct ascent from siteLat cannot reach
// the inclination. Retrograde inclinations are reachable from any latitude
// their supplement covers.
func needsPlaneChange(siteLat, inclinationDeg float64) bool {
	reach := inclinationDeg
	if reach > 90 {
		reach = 180 - reach
	}
	return reach < math.Abs(siteLat)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
