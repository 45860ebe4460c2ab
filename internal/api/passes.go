package api

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/star/orbitrisk/internal/passes"
)

// GET /api/v1/passes/{catalog_id}?lat=&lon=&alt=&start=&hours=24&min_el=10&max=10
func (s *Server) handlePasses(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("catalog_id"))
	if err != nil || id < 1 {
		writeMessage(w, http.StatusBadRequest, "catalog_id must be a positive integer")
		return
	}

	req, reason := parsePassQuery(r)
	if reason != "" {
		s.writeError(w, r, &passes.RequestError{Reason: reason})
		return
	}
	req.CatalogIDs = []int{id}

	results, err := s.deps.Passes.Predict(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results[0])
}

func parsePassQuery(r *http.Request) (passes.Request, string) {
	q := r.URL.Query()
	req := passes.Request{
		Start:           time.Now().UTC().Truncate(time.Second),
		Horizon:         24 * time.Hour,
		MinElevationDeg: 10,
	}

	obs, reason := parseObserver(q)
	if reason != "" {
		return req, reason
	}
	if obs == nil {
		return req, "lat and lon are required"
	}
	req.Observer = *obs

	if v := q.Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return req, "start must be RFC 3339"
		}
		req.Start = t.UTC()
	}
	if v := q.Get("hours"); v != "" {
		h, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(h) || math.IsInf(h, 0) {
			return req, "hours must be a number"
		}
		req.Horizon = seconds(h * 3600)
	}
	if v := q.Get("min_el"); v != "" {
		el, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return req, "min_el must be degrees"
		}
		req.MinElevationDeg = el
	}
	if v := q.Get("max"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return req, "max must be a positive integer"
		}
		req.MaxPasses = n
	}
	return req, ""
}
