package api

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/star/orbitrisk/internal/history"
	"github.com/star/orbitrisk/internal/screening"
)

const maxHistoryLimit = 500

type runResponse struct {
	Run    *history.Run      `json:"run"`
	Events []screening.Event `json:"events"`
}

// GET /api/v1/history/runs?limit=50
func (s *Server) handleHistoryRuns(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeMessage(w, http.StatusNotFound, "history is disabled")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxHistoryLimit {
			writeMessage(w, http.StatusBadRequest, "invalid limit parameter, must be 1-500")
			return
		}
		limit = n
	}

	runs, err := s.deps.History.ListRuns(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if runs == nil {
		runs = []history.Run{}
	}
	writeJSON(w, http.StatusOK, map[string][]history.Run{"runs": runs})
}

// GET /api/v1/history/runs/{id}
func (s *Server) handleHistoryRun(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeMessage(w, http.StatusNotFound, "history is disabled")
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "id must be a UUID")
		return
	}

	run, events, err := s.deps.History.Run(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if events == nil {
		events = []screening.Event{}
	}
	writeJSON(w, http.StatusOK, runResponse{Run: run, Events: events})
}
