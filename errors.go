package genaistream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for common failure modes.
// These can be checked with errors.Is().
var (
	// ErrConnection indicates the transport could not be opened or broke mid-stream
	// (DNS, TLS, refused connection, reset, deadline).
	ErrConnection = errors.New("genaistream: connection failed")

	// ErrHTTPStatus indicates the backend answered with a non-2xx status.
	ErrHTTPStatus = errors.New("genaistream: unexpected HTTP status")

	// ErrStreamDecode indicates a chunk payload could not be decoded and the
	// variant treats that as fatal.
	ErrStreamDecode = errors.New("genaistream: stream decode failed")

	// ErrCancelled indicates the session was cancelled by its owner.
	// It is expected and never shown to the user as a failure.
	ErrCancelled = errors.New("genaistream: cancelled")

	// ErrInvalidRequest indicates the request could not be built or sent as given.
	ErrInvalidRequest = errors.New("genaistream: invalid request")

	// ErrSessionStarted indicates Run or Stream was called on a session that already ran.
	ErrSessionStarted = errors.New("genaistream: session already started")

	// ErrUnknownVariant indicates a decoder variant name outside the supported set.
	ErrUnknownVariant = errors.New("genaistream: unknown decoder variant")

	// ErrEndpointNotConfigured indicates the environment does not provide a URL for an endpoint.
	ErrEndpointNotConfigured = errors.New("genaistream: endpoint not configured")
)

// ConnectionError represents a network-level failure talking to the backend.
type ConnectionError struct {
	URL string // The URL being contacted
	Err error  // Underlying network error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to '%s' failed: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() []error {
	return []error{ErrConnection, e.Err}
}

// HTTPStatusError represents a non-2xx answer from the backend.
// No partial content of such a response is trusted.
type HTTPStatusError struct {
	StatusCode int    // HTTP status code
	Message    string // Message extracted from the body, or the status text
	Body       []byte // Raw body (may be empty)
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("backend error (status %d): %s", e.StatusCode, e.Message)
}

func (e *HTTPStatusError) Unwrap() error {
	return ErrHTTPStatus
}

// DecodeError represents a malformed payload that the active variant refuses to skip.
type DecodeError struct {
	Variant Variant // Variant that rejected the payload
	Line    string  // Offending line or payload (possibly truncated)
	Err     error   // Underlying parse error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode failed for variant '%s' on %q: %v", e.Variant, e.Line, e.Err)
	}
	return fmt.Sprintf("decode failed for variant '%s' on %q", e.Variant, e.Line)
}

func (e *DecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrStreamDecode}
	}
	return []error{ErrStreamDecode, e.Err}
}

// ValidationError represents an error in request parameter validation.
type ValidationError struct {
	Field  string // The parameter field that failed validation
	Value  any    // The invalid value
	Reason string // Human-readable explanation
	Err    error  // Wrapped error (usually ErrInvalidRequest)
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("validation failed for '%s' (value: %v): %s (%v)", e.Field, e.Value, e.Reason, e.Err)
	}
	return fmt.Sprintf("validation failed for '%s' (value: %v): %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ErrorKind is the error taxonomy that drives UI behavior.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindConnection
	KindHTTPStatus
	KindStreamDecode
	KindCancellation
	KindInvalidRequest
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindConnection:
		return "connection"
	case KindHTTPStatus:
		return "http_status"
	case KindStreamDecode:
		return "stream_decode"
	case KindCancellation:
		return "cancellation"
	case KindInvalidRequest:
		return "invalid_request"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Classify maps an error returned by this package to its ErrorKind.
// Unknown errors are reported as connection failures, the transport boundary being
// the only place they can come from.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	if errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) {
		return KindCancellation
	}

	var validationErr *ValidationError
	if errors.Is(err, ErrInvalidRequest) || errors.Is(err, ErrUnknownVariant) ||
		errors.Is(err, ErrEndpointNotConfigured) || errors.As(err, &validationErr) {
		return KindInvalidRequest
	}

	if errors.Is(err, ErrHTTPStatus) {
		return KindHTTPStatus
	}

	if errors.Is(err, ErrStreamDecode) {
		return KindStreamDecode
	}

	return KindConnection
}

// IsCancellation checks if an error only reports an expected cancellation.
func IsCancellation(err error) bool {
	return Classify(err) == KindCancellation
}

// ShouldNotify reports whether err deserves a user-visible notification.
// Cancellation resets the UI silently.
func ShouldNotify(err error) bool {
	kind := Classify(err)
	return kind != KindNone && kind != KindCancellation
}

// UserMessage returns the notification text for err.
func UserMessage(err error) string {
	switch Classify(err) {
	case KindNone, KindCancellation:
		return ""
	case KindConnection:
		return "network error"
	case KindHTTPStatus:
		var statusErr *HTTPStatusError
		if errors.As(err, &statusErr) && statusErr.Message != "" {
			return statusErr.Message
		}
		return "request failed"
	case KindStreamDecode:
		return "received an unreadable response"
	default:
		return err.Error()
	}
}

// statusMessage falls back to the standard status text.
func statusMessage(code int) string {
	if text := http.StatusText(code); text != "" {
		return text
	}
	return fmt.Sprintf("HTTP %d", code)
}
