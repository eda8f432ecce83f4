package genaistream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// maxErrorBodySize bounds how much of an error response is read for its message.
const maxErrorBodySize = 64 * 1024

// Response contains the answer of a single-shot (non-streaming) call.
// The accumulator is bypassed: the body is handed over as the backend sent it.
type Response struct {
	// StatusCode is the HTTP status (always 2xx here)
	StatusCode int

	// Header holds the response headers
	Header http.Header

	// Body is the JSON object exactly as received
	Body json.RawMessage
}

// NewResponse validates body as one JSON object and wraps it.
func NewResponse(statusCode int, header http.Header, body []byte) (*Response, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' || !gjson.ValidBytes(trimmed) {
		return nil, &DecodeError{
			Variant: VariantRawText,
			Line:    clip(string(body)),
			Err:     fmt.Errorf("response is not a JSON object"),
		}
	}
	return &Response{StatusCode: statusCode, Header: header, Body: json.RawMessage(body)}, nil
}

// Decode unmarshals the body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// Field reads one value from the body by gjson path (e.g. "image", "choices.0.text").
func (r *Response) Field(path string) gjson.Result {
	return gjson.GetBytes(r.Body, path)
}

// ErrorFromResponse builds an *HTTPStatusError from a non-2xx response, reading the body
// for a message. The body is consumed but not closed.
func ErrorFromResponse(resp *http.Response) *HTTPStatusError {
	var body []byte
	if resp.Body != nil {
		body, _ = io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	}

	return &HTTPStatusError{
		StatusCode: resp.StatusCode,
		Message:    errorMessage(resp.StatusCode, body),
		Body:       body,
	}
}

// errorMessage tries the error shapes the backends use, then the plain body.
func errorMessage(status int, body []byte) string {
	if len(bytes.TrimSpace(body)) == 0 {
		return statusMessage(status)
	}

	if gjson.ValidBytes(body) {
		for _, path := range []string{"error.message", "error", "detail", "message"} {
			if r := gjson.GetBytes(body, path); r.Exists() && r.Type == gjson.String && r.Str != "" {
				return r.Str
			}
		}
	}

	return strings.TrimSpace(string(clipBytes(body)))
}

func clipBytes(b []byte) []byte {
	if len(b) <= maxReportedLineSize {
		return b
	}
	return b[:maxReportedLineSize]
}
