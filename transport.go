package genaistream

import (
	"context"
	"errors"
	"fmt"
)

// Transport defines the interface that all stream transports must implement.
// This abstraction lets one session control loop drive SSE connections, raw fetch
// streams and in-process mocks alike.
//
// Types used by this interface:
//   - StreamRequest: defined in request.go
//   - Chunk: defined in decoder.go
type Transport interface {
	// Open establishes one network stream for req.
	// Cancelling ctx must abort the stream, including a blocked Source.Next.
	// Non-2xx statuses are returned as *HTTPStatusError, network failures as *ConnectionError.
	Open(ctx context.Context, req *StreamRequest) (Source, error)

	// Name returns the transport identifier (e.g., "sse", "fetch", "lorem")
	Name() TransportID
}

// Source is one open stream.
//
// Usage:
//
//	src, err := transport.Open(ctx, req)
//	if err != nil { return err }
//	defer src.Close()
//	for {
//	  chunk, err := src.Next()
//	  if err == io.EOF { break }
//	  if err != nil { handle error }
//	  decode chunk
//	}
type Source interface {
	// Next blocks for the next chunk. It returns io.EOF on clean termination.
	Next() (Chunk, error)

	// Close releases the connection or reader. It is safe to call more than once.
	Close() error
}

// Requester performs single-shot calls whose answer is one JSON object.
type Requester interface {
	Do(ctx context.Context, req *StreamRequest) (*Response, error)
}

// StatusReporter is implemented by sources backed by an HTTP response.
type StatusReporter interface {
	StatusCode() int
}

// TransportID represents a unique transport identifier.
// Using a typed constant prevents typos and provides compile-time safety.
type TransportID string

// Known transport identifiers
const (
	// TransportSSE is an EventSource-style stream that allows a method and a body
	TransportSSE TransportID = "sse"

	// TransportFetch is a raw streamed response body
	TransportFetch TransportID = "fetch"

	// TransportLorem is the in-process mock transport for testing
	TransportLorem TransportID = "lorem"
)

// String returns the string representation of the transport ID
func (t TransportID) String() string {
	return string(t)
}

// IsValid returns true if the transport ID is a known transport
func (t TransportID) IsValid() bool {
	switch t {
	case TransportSSE, TransportFetch, TransportLorem:
		return true
	default:
		return false
	}
}

// TransportError converts an error raised while opening or reading a stream into the
// package taxonomy. Errors already classified pass through unchanged.
func TransportError(ctx context.Context, url string, err error) error {
	if err == nil {
		return nil
	}

	var statusErr *HTTPStatusError
	var connErr *ConnectionError
	var decodeErr *DecodeError
	var validationErr *ValidationError
	if errors.As(err, &statusErr) || errors.As(err, &connErr) || errors.As(err, &decodeErr) ||
		errors.As(err, &validationErr) || errors.Is(err, ErrCancelled) || errors.Is(err, ErrInvalidRequest) {
		return err
	}

	if ctx != nil && errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}

	return &ConnectionError{URL: url, Err: err}
}
