package api

import (
	"net/http"
	"strconv"

	"github.com/star/orbitrisk/internal/alerts"
)

// maxAlertLimit bounds the feed size a client may ask for.
const maxAlertLimit = 100

// GET /api/v1/alerts?limit=10
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxAlertLimit {
			writeMessage(w, http.StatusBadRequest, "invalid limit parameter, must be 1-100")
			return
		}
		limit = n
	}

	if s.deps.Alerts == nil {
		writeJSON(w, http.StatusOK, alerts.Feed{Alerts: []alerts.Alert{}})
		return
	}
	snap := s.deps.Alerts.Latest()
	if snap == nil {
		writeJSON(w, http.StatusOK, s.deps.Alerts.Feed())
		return
	}

	feed := snap.Feed
	if limit > 0 && snap.Result != nil {
		feed = alerts.NewFeed(snap.Result.Events, limit)
		feed.GeneratedAt = snap.Feed.GeneratedAt
		feed.Partial = snap.Feed.Partial
	}
	writeJSON(w, http.StatusOK, feed)
}
