package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/star/orbitrisk/internal/tle"
)

// maxUploadBytes bounds an uploaded catalog; the full public catalog is
// about 5 MiB of text.
const maxUploadBytes = 64 << 20

// fetchWindow is the write deadline granted to an upstream refresh.
const fetchWindow = 2 * time.Minute

type epochRange struct {
	Min time.Time `json:"min"`
	Max time.Time `json:"max"`
}

type catalogResponse struct {
	Source     string     `json:"source"`
	FetchedAt  time.Time  `json:"fetched_at"`
	AgeSeconds int        `json:"age_seconds"`
	Count      int        `json:"count"`
	Groups     int        `json:"groups"`
	Skipped    int        `json:"skipped"`
	EpochRange epochRange `json:"epoch_range"`
}

func newCatalogResponse(cat *tle.Catalog) catalogResponse {
	return catalogResponse{
		Source:     cat.Source,
		FetchedAt:  cat.FetchedAt.UTC(),
		AgeSeconds: int(time.Since(cat.FetchedAt).Seconds()),
		Count:      len(cat.Sets),
		Groups:     cat.Groups,
		Skipped:    cat.Skipped,
		EpochRange: epochRange{Min: cat.EpochRange.Min.UTC(), Max: cat.EpochRange.Max.UTC()},
	}
}

// GET /api/v1/catalog
func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	cat := s.deps.Loader.Store().Get()
	if cat == nil {
		writeMessage(w, http.StatusServiceUnavailable, "no catalog loaded")
		return
	}
	writeJSON(w, http.StatusOK, newCatalogResponse(cat))
}

// POST /api/v1/catalog with raw three-line element text as the body.
func (s *Server) handleCatalogUpload(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeMessage(w, http.StatusRequestEntityTooLarge, "catalog exceeds upload limit")
			return
		}
		writeMessage(w, http.StatusBadRequest, "reading body: "+err.Error())
		return
	}

	cat, err := s.deps.Loader.Ingest("upload", data)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, newCatalogResponse(cat))
}

// POST /api/v1/catalog/fetch
func (s *Server) handleCatalogFetch(w http.ResponseWriter, r *http.Request) {
	if !s.deps.Loader.FetchEnabled() {
		writeMessage(w, http.StatusConflict, "catalog fetching is disabled")
		return
	}
	extendWriteDeadline(w, fetchWindow)

	cat, err := s.deps.Loader.Refresh(r.Context())
	if err != nil {
		var upstream *tle.UpstreamError
		if !errors.As(err, &upstream) {
			// Transport failures and unusable bodies are gateway errors too.
			writeJSON(w, http.StatusBadGateway, errorBody{Error: err.Error()})
			return
		}
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCatalogResponse(cat))
}

// extendWriteDeadline lifts the server WriteTimeout for a slow handler.
func extendWriteDeadline(w http.ResponseWriter, d time.Duration) {
	// Writers without deadline support keep the server default.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Now().Add(d))
}
