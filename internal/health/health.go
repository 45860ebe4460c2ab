// Package health serves liveness and readiness checks.
package health

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/star/orbitrisk/internal/tle"
)

// Healthz reports that the process is up.
func Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok\n"))
}

type readiness struct {
	Status     string  `json:"status"`
	Satellites int     `json:"satellites"`
	Source     string  `json:"source,omitempty"`
	AgeSeconds float64 `json:"age_seconds,omitempty"`
}

// Readyz returns a handler that answers 503 until store holds a catalog and
// then describes the catalog being served.
func Readyz(store *tle.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := readiness{Status: "no catalog loaded"}
		code := http.StatusServiceUnavailable
		if cat := store.Get(); cat != nil {
			code = http.StatusOK
			body = readiness{
				Status:     "ready",
				Satellites: len(cat.Sets),
				Source:     cat.Source,
				AgeSeconds: time.Since(cat.FetchedAt).Round(time.Second).Seconds(),
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(body)
	}
}
