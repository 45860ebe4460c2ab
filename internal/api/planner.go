package api

import (
	"io"
	"net/http"

	"github.com/star/orbitrisk/internal/metrics"
	"github.com/star/orbitrisk/internal/planner"
)

const maxPlannerBodyBytes = 64 << 10

// POST /api/v1/planner
func (s *Server) handlePlanner(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPlannerBodyBytes))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "reading body: "+err.Error())
		return
	}

	req, err := planner.DecodeRequest(data)
	if err != nil {
		metrics.RecordPlannerRequest("invalid")
		s.writeError(w, r, err)
		return
	}
	report, err := planner.Plan(req)
	if err != nil {
		metrics.RecordPlannerRequest("invalid")
		s.writeError(w, r, err)
		return
	}

	metrics.RecordPlannerRequest(string(report.DebrisRisk.Level))
	writeJSON(w, http.StatusOK, report)
}
