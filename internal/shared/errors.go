package shared

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// Configuration errors
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrTokenExpired = fmt.Errorf("access token expired")

	// API and service errors
	ErrServiceUnavailable  = fmt.Errorf("service unavailable")
	ErrUnsupportedProvider = fmt.Errorf("unsupported provider")
	ErrPlaylistNotFound    = fmt.Errorf("playlist not found")
	ErrTrackNotFound       = fmt.Errorf("track not found")
	ErrDatabase            = fmt.Errorf("database error")

	// Input validation errors
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

// ProviderError is returned by adapters when a provider answers with a non-2xx status
// after the fetch client has exhausted its retries.
type ProviderError struct {
	Service string
	Status  int
	Message string
}

func (e *ProviderError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s API error: status %d (%s)", e.Service, e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("%s API error: status %d: %s", e.Service, e.Status, e.Message)
}

// Temporary reports whether the status is one the fetch client would have retried.
func (e *ProviderError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// MappingUnavailableError means the track mapping store could not be consulted.
// It is distinct from a lookup that finds no mapping, which is not an error.
type MappingUnavailableError struct {
	Service string
	TrackID string
	Err     error
}

func (e *MappingUnavailableError) Error() string {
	if e.TrackID == "" {
		return fmt.Sprintf("track mapping unavailable for %s: %v", e.Service, e.Err)
	}
	return fmt.Sprintf("track mapping unavailable for %s/%s: %v", e.Service, e.TrackID, e.Err)
}

func (e *MappingUnavailableError) Unwrap() error { return e.Err }

// NetworkError wraps a transport-level failure (DNS, connection reset, timeout).
type NetworkError struct {
	Op  string
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsProviderError reports whether err carries a [ProviderError] and returns it.
func IsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsMappingUnavailable reports whether err is a [MappingUnavailableError].
func IsMappingUnavailable(err error) bool {
	var me *MappingUnavailableError
	return errors.As(err, &me)
}

// IsNetworkError reports whether err is a [NetworkError].
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// IsInputError reports whether err is a validation failure raised before any network call.
func IsInputError(err error) bool {
	return errors.Is(err, ErrMissingCredentials) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrMissingArgument) ||
		errors.Is(err, ErrUnsupportedProvider)
}
