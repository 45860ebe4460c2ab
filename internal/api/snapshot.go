package api

import (
	"net/http"
	"time"
)

type snapshotResponse struct {
	Timestamp time.Time    `json:"t"`
	Frame     string       `json:"frame"`
	Count     int          `json:"count"`
	Failed    int          `json:"failed"`
	Sat       []satPayload `json:"sat"`
}

type satPayload struct {
	ID int        `json:"id"`
	P  [3]float64 `json:"p"`
	V  [3]float64 `json:"v"`
}

// GET /api/v1/snapshot?t=2026-02-06T04:00:00Z
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	target := time.Now().UTC().Truncate(time.Second)
	if v := r.URL.Query().Get("t"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "t must be RFC 3339")
			return
		}
		target = t.UTC()
	}

	snap, err := s.deps.Engine.PropagateToTime(r.Context(), target)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	sats := make([]satPayload, len(snap.Satellites))
	for i, p := range snap.Satellites {
		sats[i] = satPayload{ID: p.CatalogID, P: p.PositionECEF, V: p.VelocityECEF}
	}
	writeJSON(w, http.StatusOK, snapshotResponse{
		Timestamp: snap.Timestamp.UTC(),
		Frame:     "ECEF",
		Count:     len(sats),
		Failed:    snap.Failed,
		Sat:       sats,
	})
}
