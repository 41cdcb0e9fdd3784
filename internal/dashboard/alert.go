package dashboard

import (
	"errors"
	"fmt"

	"github.com/sells-group/equity-map/internal/backend"
)

// AlertKind classifies a user-visible failure.
type AlertKind string

// Alert kinds.
const (
	AlertLoad           AlertKind = "load"
	AlertGeneration     AlertKind = "generation"
	AlertClassification AlertKind = "classification"
	AlertAnalysis       AlertKind = "analysis"
	AlertExport         AlertKind = "export"
	AlertView           AlertKind = "view"
)

// Alert is a failure reported to the user. The dashboard state is already
// consistent when one is returned.
type Alert struct {
	Kind    AlertKind
	Message string
	cause   error
}

func (a *Alert) Error() string {
	if a.cause != nil {
		return fmt.Sprintf("%s: %s: %v", a.Kind, a.Message, a.cause)
	}
	return fmt.Sprintf("%s: %s", a.Kind, a.Message)
}

// Unwrap returns the underlying error.
func (a *Alert) Unwrap() error { return a.cause }

func newAlert(kind AlertKind, cause error, format string, args ...any) *Alert {
	return &Alert{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

// AsAlert extracts an Alert from err.
func AsAlert(err error) (*Alert, bool) {
	var a *Alert
	if errors.As(err, &a) {
		return a, true
	}
	return nil, false
}

// serverMessage prefers the backend's own error text.
func serverMessage(err error, fallback string) string {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
