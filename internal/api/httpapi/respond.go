package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/BearBump/ParcelHub/internal/errs"
	"github.com/BearBump/ParcelHub/internal/integrations/carrier"
	"github.com/pkg/errors"
)

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg, RequestID: RequestIDFromContext(r.Context())})
}

func statusOf(err error) int {
	var gwErr *carrier.GatewayError
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrUnauthorized), errors.Is(err, errs.ErrUnverifiedEvent):
		return http.StatusUnauthorized
	case errors.Is(err, errs.ErrInvalidStatus), errors.Is(err, errs.ErrPackageNotRegistrable), errors.Is(err, carrier.ErrInvalidNumber):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrTransitionRejected):
		return http.StatusConflict
	case errors.Is(err, errs.ErrGatewayUnavailable), errors.As(err, &gwErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeErr maps domain errors to HTTP statuses. 5xx details stay in the log.
func (h *Handlers) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", "rid", RequestIDFromContext(r.Context()), "path", r.URL.Path, "error", err.Error())
		writeError(w, r, status, http.StatusText(status))
		return
	}
	writeError(w, r, status, err.Error())
}
