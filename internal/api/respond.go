package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/equity-map/internal/backend"
	"github.com/sells-group/equity-map/internal/dashboard"
	"github.com/sells-group/equity-map/internal/state"
)

type errorBody struct {
	Error string              `json:"error"`
	Kind  dashboard.AlertKind `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeError maps dashboard alerts to client errors. Anything else is a 500.
func writeError(w http.ResponseWriter, err error) {
	a, ok := dashboard.AsAlert(err)
	if !ok {
		zap.L().Error("api: unexpected error", zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, alertStatus(a), errorBody{Error: a.Message, Kind: a.Kind})
}

func alertStatus(a *dashboard.Alert) int {
	var apiErr *backend.APIError
	switch {
	case errors.As(a, &apiErr):
		return http.StatusBadGateway
	case errors.Is(a, state.ErrInvalidName),
		errors.Is(a, state.ErrNoVariables),
		errors.Is(a, state.ErrUnknownKind):
		return http.StatusBadRequest
	case errors.Is(a, state.ErrStaleTicket):
		return http.StatusConflict
	}

	switch a.Kind {
	case dashboard.AlertLoad:
		return http.StatusServiceUnavailable
	case dashboard.AlertExport, dashboard.AlertView:
		return http.StatusConflict
	default:
		return http.StatusUnprocessableEntity
	}
}

const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return eris.Wrap(dec.Decode(v), "api: decode request body")
}

func writeDownload(w http.ResponseWriter, dl *dashboard.Download) {
	w.Header().Set("Content-Type", dl.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", dl.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(dl.Data)
}
