package shared

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestProviderError(t *testing.T) {
	err := fmt.Errorf("add tracks: %w", &ProviderError{Service: "deezer", Status: http.StatusForbidden})

	pe, ok := IsProviderError(err)
	if !ok {
		t.Fatal("expected wrapped ProviderError to be found")
	}
	if pe.Service != "deezer" || pe.Status != http.StatusForbidden {
		t.Errorf("unexpected error fields: %+v", pe)
	}
	if !strings.Contains(err.Error(), "status 403") {
		t.Errorf("error message should include status, got %q", err.Error())
	}
	if pe.Temporary() {
		t.Error("403 should not be temporary")
	}
	if !(&ProviderError{Status: http.StatusBadGateway}).Temporary() {
		t.Error("502 should be temporary")
	}
}

func TestTypedErrorsUnwrap(t *testing.T) {
	root := errors.New("connection reset")

	netErr := &NetworkError{Op: http.MethodGet, URL: "https://api.example.com", Err: root}
	if !errors.Is(netErr, root) || !IsNetworkError(fmt.Errorf("wrap: %w", netErr)) {
		t.Error("NetworkError should unwrap to its cause")
	}

	mapErr := &MappingUnavailableError{Service: "tidal", TrackID: "42", Err: netErr}
	if !errors.Is(mapErr, root) || !IsMappingUnavailable(mapErr) {
		t.Error("MappingUnavailableError should unwrap through NetworkError")
	}
}

func TestIsInputError(t *testing.T) {
	tc := []struct {
		name string
		err  error
		want bool
	}{
		{name: "missing credentials", err: fmt.Errorf("%w: spotify", ErrMissingCredentials), want: true},
		{name: "expired token", err: fmt.Errorf("%w: tidal", ErrTokenExpired), want: true},
		{name: "unsupported provider", err: ErrUnsupportedProvider, want: true},
		{name: "provider failure", err: &ProviderError{Service: "tidal", Status: 500}, want: false},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsInputError(tt.err); got != tt.want {
				t.Errorf("IsInputError() = %v, want %v", got, tt.want)
			}
		})
	}
}
