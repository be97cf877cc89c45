package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/desertthunder/plx/internal/shared"
	"github.com/desertthunder/plx/internal/tasks"
)

type errorBody struct {
	Error      string `json:"error"`
	Kind       string `json:"kind,omitempty"`
	Phase      string `json:"phase,omitempty"`
	Classified int    `json:"classified,omitempty"`
	Status     int    `json:"status,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), describeError(err))
}

// describeError classifies err the way the CLI reports it: input, migration or provider failure.
func describeError(err error) errorBody {
	body := errorBody{Error: err.Error()}

	var me *tasks.MigrationError
	switch {
	case shared.IsInputError(err):
		body.Kind = "input"
	case errors.As(err, &me):
		body.Kind = "migration"
		body.Phase = me.Phase.String()
		body.Classified = me.Progress.Classified()
	case shared.IsMappingUnavailable(err):
		body.Kind = "mapping"
	default:
		body.Kind = "provider"
	}

	if pe, ok := shared.IsProviderError(err); ok {
		body.Status = pe.Status
	}
	return body
}

// statusFor maps an error onto the response status of a non-streaming route.
func statusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrMissingCredentials), errors.Is(err, shared.ErrTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, shared.ErrUnsupportedProvider):
		return http.StatusNotFound
	case shared.IsInputError(err):
		return http.StatusBadRequest
	}

	if pe, ok := shared.IsProviderError(err); ok {
		switch pe.Status {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusTooManyRequests:
			return pe.Status
		}
	}
	if shared.IsMappingUnavailable(err) {
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}
