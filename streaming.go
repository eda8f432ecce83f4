package genaistream

import "time"

// StreamEvent represents a single event in a streaming session.
// Exactly one field is set: a decoded fragment, the final metadata, or an error.
type StreamEvent struct {
	// Fragment contains one decoded piece of text, already appended to the session text
	Fragment *string

	// Metadata contains the final session data (nil until the session ends)
	// Sent for Done and Cancelled sessions as the last event before the channel closes.
	Metadata *StreamMetadata

	// Error contains the failure of an Errored session (nil otherwise)
	Error error
}

// StreamMetadata contains completion information sent when a session ends.
type StreamMetadata struct {
	// SessionID identifies the session that produced this result
	SessionID string

	// State is the terminal state (Done, Errored or Cancelled)
	State SessionState

	// Text is the accumulated text at the time the session ended
	Text string

	// Fragments is the number of fragments appended
	Fragments int

	// Bytes is the number of raw bytes received from the transport
	Bytes int64

	// StatusCode is the HTTP status of the response, when the transport has one
	StatusCode int

	// Duration is the wall time from Run to the terminal state
	Duration time.Duration

	// TimeToFirstFragment is the latency of the first fragment (zero if none arrived)
	TimeToFirstFragment time.Duration
}
