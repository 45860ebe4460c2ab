package api

import (
	"bytes"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/star/orbitrisk/internal/ephemeris"
	"github.com/star/orbitrisk/internal/logging"
	"github.com/star/orbitrisk/internal/transform"
)

const (
	defaultEphemerisStep  = time.Minute
	defaultEphemerisCount = 91
)

// GET /api/v1/ephemeris/{catalog_id}?start=&step=60&count=91&format=json&lat=&lon=&alt=
func (s *Server) handleEphemeris(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("catalog_id"))
	if err != nil || id < 1 {
		writeMessage(w, http.StatusBadRequest, "catalog_id must be a positive integer")
		return
	}

	req, format, err := parseEphemerisQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	req.CatalogID = id

	eph, err := s.deps.Ephemeris.Build(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if format == ephemeris.FormatJSON {
		writeJSON(w, http.StatusOK, eph)
		return
	}
	var buf bytes.Buffer
	if err := ephemeris.EncodeMsgpack(&buf, eph); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		logging.FromContext(r.Context(), s.logger).Debug("ephemeris write failed", "error", err)
	}
}

func parseEphemerisQuery(r *http.Request) (ephemeris.Request, ephemeris.Format, error) {
	q := r.URL.Query()
	req := ephemeris.Request{
		Start: time.Now().UTC().Truncate(time.Second),
		Step:  defaultEphemerisStep,
		Count: defaultEphemerisCount,
	}
	bad := func(reason string) (ephemeris.Request, ephemeris.Format, error) {
		return req, "", &ephemeris.RequestError{Reason: reason}
	}

	if v := q.Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return bad("start must be RFC 3339")
		}
		req.Start = t.UTC()
	}
	if v := q.Get("step"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return bad("step must be a number of seconds")
		}
		req.Step = seconds(f)
	}
	if v := q.Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return bad("count must be an integer")
		}
		req.Count = n
	}

	obs, reason := parseObserver(q)
	if reason != "" {
		return bad(reason)
	}
	req.Observer = obs

	formatName := q.Get("format")
	if formatName == "" && strings.Contains(r.Header.Get("Accept"), ephemeris.FormatMsgpack.ContentType()) {
		formatName = string(ephemeris.FormatMsgpack)
	}
	format, err := ephemeris.ParseFormat(formatName)
	if err != nil {
		return req, "", err
	}
	return req, format, nil
}

// parseObserver reads the optional lat/lon/alt observer. A non-empty reason
// reports a malformed one.
func parseObserver(q url.Values) (*transform.Observer, string) {
	lat, lon, alt := q.Get("lat"), q.Get("lon"), q.Get("alt")
	if lat == "" && lon == "" {
		return nil, ""
	}
	if lat == "" || lon == "" {
		return nil, "lat and lon must be given together"
	}
	latDeg, err1 := strconv.ParseFloat(lat, 64)
	lonDeg, err2 := strconv.ParseFloat(lon, 64)
	if err1 != nil || err2 != nil || latDeg < -90 || latDeg > 90 || lonDeg < -180 || lonDeg > 180 {
		return nil, "lat must be in [-90, 90] and lon in [-180, 180]"
	}
	altM := 0.0
	if alt != "" {
		var err error
		if altM, err = strconv.ParseFloat(alt, 64); err != nil || math.IsNaN(altM) || math.IsInf(altM, 0) {
			return nil, "alt must be meters"
		}
	}
	obs := transform.NewObserver(latDeg, lonDeg, altM)
	return &obs, ""
}
