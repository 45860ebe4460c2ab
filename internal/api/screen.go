package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/star/orbitrisk/internal/httputil"
	"github.com/star/orbitrisk/internal/logging"
	"github.com/star/orbitrisk/internal/metrics"
	"github.com/star/orbitrisk/internal/propagation"
	"github.com/star/orbitrisk/internal/screening"
	"github.com/star/orbitrisk/internal/tle"
)

const maxScreenBodyBytes = 1 << 20

// screenRequest leaves zero-valued fields to the configured defaults.
type screenRequest struct {
	Start          *time.Time `json:"start"`
	HorizonSeconds *float64   `json:"horizon_seconds"`
	StepSeconds    *float64   `json:"step_seconds"`
	ThresholdKm    *float64   `json:"threshold_km"`
	// CatalogIDs restricts the run to these satellites; empty screens all.
	CatalogIDs []int `json:"catalog_ids"`
	// Record stores the run in the history database.
	Record bool `json:"record"`
}

type screenResponse struct {
	RunID            string                `json:"run_id,omitempty"`
	Start            time.Time             `json:"start"`
	HorizonSeconds   float64               `json:"horizon_seconds"`
	StepSeconds      float64               `json:"step_seconds"`
	ThresholdKm      float64               `json:"threshold_km"`
	Samples          int                   `json:"samples"`
	Satellites       int                   `json:"satellites"`
	PairsScreened    int                   `json:"pairs_screened"`
	PairsPrefiltered int                   `json:"pairs_prefiltered"`
	Partial          bool                  `json:"partial"`
	DurationMs       int64                 `json:"duration_ms"`
	Events           []screening.Event     `json:"events"`
	Excluded         []screening.Exclusion `json:"excluded"`
}

func newScreenResponse(res *screening.Result, runID uuid.UUID) screenResponse {
	resp := screenResponse{
		Start:            res.Start.UTC(),
		HorizonSeconds:   res.Horizon.Seconds(),
		StepSeconds:      res.Step.Seconds(),
		ThresholdKm:      res.ThresholdKm,
		Samples:          res.Samples,
		Satellites:       res.Satellites,
		PairsScreened:    res.PairsScreened,
		PairsPrefiltered: res.PairsPrefiltered,
		Partial:          res.Partial,
		DurationMs:       res.Duration.Milliseconds(),
		Events:           res.Events,
		Excluded:         res.Excluded,
	}
	if runID != uuid.Nil {
		resp.RunID = runID.String()
	}
	if resp.Events == nil {
		resp.Events = []screening.Event{}
	}
	if resp.Excluded == nil {
		resp.Excluded = []screening.Exclusion{}
	}
	return resp
}

// options merges the request over the defaults.
func (req screenRequest) options(def screening.Options) screening.Options {
	opts := def
	opts.Start = time.Time{}
	if req.Start != nil {
		opts.Start = req.Start.UTC()
	}
	if req.HorizonSeconds != nil {
		opts.Horizon = seconds(*req.HorizonSeconds)
	}
	if req.StepSeconds != nil {
		opts.Step = seconds(*req.StepSeconds)
	}
	if req.ThresholdKm != nil {
		opts.ThresholdKm = *req.ThresholdKm
	}
	return opts
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

// selectSets returns the requested catalog members, or the whole catalog.
func selectSets(cat *tle.Catalog, ids []int) ([]tle.ElementSet, error) {
	if len(ids) == 0 {
		return cat.Sets, nil
	}
	byID := make(map[int]tle.ElementSet, len(cat.Sets))
	for _, es := range cat.Sets {
		byID[es.CatalogID] = es
	}
	sets := make([]tle.ElementSet, 0, len(ids))
	for _, id := range ids {
		es, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("catalog id %d: %w", id, propagation.ErrUnknownSatellite)
		}
		sets = append(sets, es)
	}
	return sets, nil
}

// POST /api/v1/screen
func (s *Server) handleScreen(w http.ResponseWriter, r *http.Request) {
	var req screenRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxScreenBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid screening request: "+err.Error())
		return
	}
	if req.Record && s.deps.History == nil {
		writeMessage(w, http.StatusBadRequest, "history is disabled; cannot record")
		return
	}

	opts := req.options(s.cfg.ScreenDefaults)
	if err := s.deps.Screener.Validate(opts); err != nil {
		s.writeError(w, r, err)
		return
	}

	cat := s.deps.Loader.Store().Get()
	if cat == nil {
		s.writeError(w, r, propagation.ErrNoCatalog)
		return
	}
	sets, err := selectSets(cat, req.CatalogIDs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	n := int64(len(sets))
	work := n * (n - 1) / 2 * int64(screening.SampleCount(opts.Horizon, opts.Step))
	if s.cfg.ScreenBudget > 0 && work > s.cfg.ScreenBudget {
		metrics.IncRequestsRejected("budget")
		writeMessage(w, http.StatusUnprocessableEntity, fmt.Sprintf(
			"screening of %d satellites over %d samples exceeds the work budget; narrow catalog_ids, the horizon or the step",
			n, screening.SampleCount(opts.Horizon, opts.Step)))
		return
	}

	ip := httputil.ClientIP(r, s.cfg.TrustProxy)
	if !s.screens.Acquire(ip) {
		metrics.IncRequestsRejected("rate_limit")
		w.Header().Set("Retry-After", strconv.Itoa(int(s.cfg.ScreenTimeout.Seconds())))
		writeMessage(w, http.StatusTooManyRequests, "too many concurrent screenings")
		return
	}
	defer s.screens.Release(ip)

	extendWriteDeadline(w, s.cfg.ScreenTimeout+10*time.Second)
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ScreenTimeout)
	defer cancel()

	res, err := s.deps.Screener.Screen(ctx, sets, opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var runID uuid.UUID
	if req.Record {
		// Recording uses the request context, not the expired screening one.
		runID, err = s.deps.History.InsertRun(r.Context(), "api", res)
		if err != nil {
			logging.FromContext(r.Context(), s.logger).Warn("recording screening run failed", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, newScreenResponse(res, runID))
}
