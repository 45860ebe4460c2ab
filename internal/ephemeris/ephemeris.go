// Package ephemeris builds per-satellite state vector tracks for rendering
// collaborators and encodes them as JSON or as zstd-compressed msgpack.
package ephemeris

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/star/orbitrisk/internal/propagation"
	"github.com/star/orbitrisk/internal/tle"
	"github.com/star/orbitrisk/internal/transform"
)

// DefaultMaxPoints bounds a track: one week at one-minute resolution.
const DefaultMaxPoints = 7*24*60 + 1

// Tracker propagates one catalog member over evenly spaced samples.
type Tracker interface {
	Track(ctx context.Context, id int, start time.Time, step time.Duration, count int) ([]propagation.StateVector, error)
}

// RequestError reports an unusable ephemeris request.
type RequestError struct {
	Reason string
}

func (e *RequestError) Error() string { return "invalid ephemeris request: " + e.Reason }

// Request describes one track.
type Request struct {
	CatalogID int
	Start     time.Time
	Step      time.Duration
	Count     int
	// Observer adds look angles to every point when set.
	Observer *transform.Observer
}

// Geodetic is a WGS-84 position.
type Geodetic struct {
	LatDeg float64 `json:"lat_deg" msgpack:"lat"`
	LonDeg float64 `json:"lon_deg" msgpack:"lon"`
	AltKm  float64 `json:"alt_km" msgpack:"alt"`
}

// Look holds topocentric look angles from the request observer.
type Look struct {
	AzimuthDeg   float64 `json:"azimuth_deg" msgpack:"az"`
	ElevationDeg float64 `json:"elevation_deg" msgpack:"el"`
	RangeKm      float64 `json:"range_km" msgpack:"rng"`
}

// Point is one sample of a track. TEME is in km and km/s, ECEF in meters.
type Point struct {
	Time         time.Time  `json:"t" msgpack:"t"`
	PositionTEME [3]float64 `json:"r_teme_km" msgpack:"r"`
	VelocityTEME [3]float64 `json:"v_teme_km_s" msgpack:"v"`
	PositionECEF [3]float64 `json:"r_ecef_m" msgpack:"re"`
	Geodetic     Geodetic   `json:"geodetic" msgpack:"g"`
	Look         *Look      `json:"look,omitempty" msgpack:"l,omitempty"`
}

// Ephemeris is a satellite track.
type Ephemeris struct {
	CatalogID int       `json:"catalog_id" msgpack:"id"`
	Name      string    `json:"name" msgpack:"name"`
	Epoch     time.Time `json:"epoch" msgpack:"epoch"`
	Start     time.Time `json:"start" msgpack:"start"`
	StepSec   float64   `json:"step_seconds" msgpack:"step"`
	Points    []Point   `json:"points" msgpack:"points"`
}

// Builder assembles tracks from the stored catalog.
type Builder struct {
	tracker   Tracker
	store     *tle.Store
	maxPoints int
}

// NewBuilder creates a Builder. maxPoints <= 0 means DefaultMaxPoints.
func NewBuilder(tracker Tracker, store *tle.Store, maxPoints int) *Builder {
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}
	return &Builder{tracker: tracker, store: store, maxPoints: maxPoints}
}

// Build propagates the requested track and converts every sample to ECEF and
// geodetic coordinates.
func (b *Builder) Build(ctx context.Context, req Request) (*Ephemeris, error) {
	if req.Step <= 0 {
		return nil, &RequestError{Reason: "step must be positive"}
	}
	if req.Count <= 0 || req.Count > b.maxPoints {
		return nil, &RequestError{Reason: fmt.Sprintf("count must be in [1, %d]", b.maxPoints)}
	}

	cat := b.store.Get()
	if cat == nil {
		return nil, propagation.ErrNoCatalog
	}
	es, ok := cat.Lookup(req.CatalogID)
	if !ok {
		return nil, fmt.Errorf("catalog id %d: %w", req.CatalogID, propagation.ErrUnknownSatellite)
	}

	states, err := b.tracker.Track(ctx, req.CatalogID, req.Start, req.Step, req.Count)
	if err != nil {
		return nil, err
	}

	eph := &Ephemeris{
		CatalogID: es.CatalogID,
		Name:      es.Name,
		Epoch:     es.Epoch,
		Start:     req.Start.UTC(),
		StepSec:   req.Step.Seconds(),
		Points:    make([]Point, len(states)),
	}
	for i, sv := range states {
		eph.Points[i] = point(sv, req.Observer)
	}
	return eph, nil
}

func point(sv propagation.StateVector, obs *transform.Observer) Point {
	ecef := transform.TEMEToECEF(sv.TEME(), sv.Time)
	geo := ecef.Geodetic()

	p := Point{
		Time:         sv.Time.UTC(),
		PositionTEME: [3]float64{sv.Position.X, sv.Position.Y, sv.Position.Z},
		VelocityTEME: [3]float64{sv.Velocity.X, sv.Velocity.Y, sv.Velocity.Z},
		PositionECEF: [3]float64{ecef.X, ecef.Y, ecef.Z},
		Geodetic:     Geodetic{LatDeg: geo.LatDeg, LonDeg: geo.LonDeg, AltKm: geo.AltKm},
	}
	if obs != nil {
		la := obs.Look(ecef)
		p.Look = &Look{AzimuthDeg: la.AzimuthDeg, ElevationDeg: la.ElevationDeg, RangeKm: la.RangeKm}
	}
	return p
}

// Format is an ephemeris wire encoding.
type Format string

const (
	FormatJSON    Format = "json"
	FormatMsgpack Format = "msgpack+zstd"
)

// ContentType returns the HTTP media type of the format.
func (f Format) ContentType() string {
	if f == FormatMsgpack {
		return "application/vnd.msgpack+zstd"
	}
	return "application/json"
}

// ParseFormat maps a query value to a Format. Empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", "json":
		return FormatJSON, nil
	case "msgpack", "msgpack+zstd":
		return FormatMsgpack, nil
	default:
		return "", &RequestError{Reason: fmt.Sprintf("unknown format %q", s)}
	}
}

// EncodeMsgpack writes the ephemeris as zstd-compressed msgpack.
func EncodeMsgpack(w io.Writer, eph *Ephemeris) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}
	if err := msgpack.NewEncoder(zw).Encode(eph); err != nil {
		zw.Close()
		return fmt.Errorf("msgpack encode: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("zstd close: %w", err)
	}
	return nil
}

// DecodeMsgpack reads an ephemeris written by EncodeMsgpack.
func DecodeMsgpack(r io.Reader) (*Ephemeris, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer zr.Close()

	var eph Ephemeris
	if err := msgpack.NewDecoder(zr).Decode(&eph); err != nil {
		return nil, fmt.Errorf("msgpack decode: %w", err)
	}
	return &eph, nil
}

// IsRequestError reports whether err is a *RequestError.
func IsRequestError(err error) bool {
	var re *RequestError
	return errors.As(err, &re)
}
