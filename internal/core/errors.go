package core

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthMissing is returned when no oauth token or client id is available
	ErrAuthMissing = errors.New("not authenticated")
	// ErrAuthExpired is returned when the upstream API rejects the credentials
	ErrAuthExpired = errors.New("credentials rejected by upstream")
	// ErrNoPlayableVariant is returned for tracks without any transcodings
	ErrNoPlayableVariant = errors.New("no transcodings available for this track")
	// ErrNoCompatibleVariant is returned when no transcoding matches a supported category
	ErrNoCompatibleVariant = errors.New("no compatible transcoding found")
	// ErrStreamNetworkFatal marks a fatal network error of the active stream (usually an expired URL)
	ErrStreamNetworkFatal = errors.New("fatal stream network error")
	// ErrStreamMediaFatal marks a fatal decode error of the active stream
	ErrStreamMediaFatal = errors.New("fatal stream media error")
	// ErrRecoveryExhausted is reported when a stream could not be recovered within its bounds
	ErrRecoveryExhausted = errors.New("stream recovery exhausted")
	// ErrUnsupportedProtocol is returned when the media host cannot play the resolved protocol
	ErrUnsupportedProtocol = errors.New("no supported playback method")
	// ErrResolverUnavailable is returned while the resolver circuit breaker is open
	ErrResolverUnavailable = errors.New("stream resolver unavailable")
	// ErrEmptyStreamURL is returned when the resolve endpoint answers without a url
	ErrEmptyStreamURL = errors.New("resolve response contained no stream url")
	// ErrIncompatibleState is returned when a persisted state fails schema validation
	ErrIncompatibleState = errors.New("incompatible saved state")
)

// ResolveHTTPError reports a non-success answer from a transcoding endpoint.
type ResolveHTTPError struct {
	Status int
	URL    string
	Cause  error
}

func (e *ResolveHTTPError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("stream resolve failed: %d: %v", e.Status, e.Cause)
	}
	return fmt.Sprintf("stream resolve failed: %d", e.Status)
}

func (e *ResolveHTTPError) Unwrap() error {
	return e.Cause
}

// APIError reports a non-success answer from a collection endpoint.
type APIError struct {
	Status   int
	Endpoint string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: %d", e.Status)
}

// ErrorKind maps an error onto a short taxonomy name used for metrics and events.
func ErrorKind(err error) string {
	var resolveErr *ResolveHTTPError
	var apiErr *APIError

	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrRecoveryExhausted):
		return "recovery_exhausted"
	case errors.Is(err, ErrAuthMissing):
		return "auth_missing"
	case errors.Is(err, ErrAuthExpired):
		return "auth_expired"
	case errors.Is(err, ErrNoPlayableVariant):
		return "no_playable_variant"
	case errors.Is(err, ErrNoCompatibleVariant):
		return "no_compatible_variant"
	case errors.Is(err, ErrResolverUnavailable):
		return "resolver_unavailable"
	case errors.As(err, &resolveErr):
		return "resolve_http_error"
	case errors.As(err, &apiErr):
		return "api_error"
	case errors.Is(err, ErrStreamNetworkFatal):
		return "stream_network_fatal"
	case errors.Is(err, ErrStreamMediaFatal):
		return "stream_media_fatal"
	case errors.Is(err, ErrUnsupportedProtocol):
		return "unsupported_protocol"
	default:
		return "unknown"
	}
}
