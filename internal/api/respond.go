package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/star/orbitrisk/internal/alerts"
	"github.com/star/orbitrisk/internal/ephemeris"
	"github.com/star/orbitrisk/internal/history"
	"github.com/star/orbitrisk/internal/logging"
	"github.com/star/orbitrisk/internal/passes"
	"github.com/star/orbitrisk/internal/planner"
	"github.com/star/orbitrisk/internal/propagation"
	"github.com/star/orbitrisk/internal/screening"
	"github.com/star/orbitrisk/internal/tle"
)

type errorBody struct {
	Error          string            `json:"error"`
	Fields         map[string]string `json:"fields,omitempty"`
	UpstreamStatus int               `json:"upstream_status,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorBody{Error: msg})
}

// writeError maps domain errors to HTTP statuses. Unclassified errors are
// logged and reported as 500 without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *planner.ValidationError
		options    *screening.OptionsError
		request    *ephemeris.RequestError
		passReq    *passes.RequestError
		upstream   *tle.UpstreamError
		propErr    *propagation.Error
	)
	body := errorBody{Error: err.Error()}
	code := http.StatusInternalServerError

	switch {
	case errors.As(err, &validation):
		code = http.StatusBadRequest
		body.Fields = validation.Fields
	case errors.As(err, &options), errors.As(err, &request), errors.As(err, &passReq):
		code = http.StatusBadRequest
	case errors.Is(err, propagation.ErrNoCatalog), errors.Is(err, alerts.ErrNoCatalog):
		code = http.StatusServiceUnavailable
	case errors.Is(err, propagation.ErrUnknownSatellite), errors.Is(err, history.ErrNotFound):
		code = http.StatusNotFound
	case errors.As(err, &upstream):
		code = http.StatusBadGateway
		body.UpstreamStatus = upstream.StatusCode
	case errors.As(err, &propErr), errors.Is(err, propagation.ErrNoPropagator):
		code = http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		code = http.StatusGatewayTimeout
	}

	if code == http.StatusInternalServerError {
		logging.FromContext(r.Context(), s.logger).Error("request failed", "path", r.URL.Path, "error", err)
		body.Error = "internal error"
	}
	writeJSON(w, code, body)
}
