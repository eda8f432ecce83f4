package genaistream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"mime/multipart"
	"net/http"
	"slices"
	"strings"
)

// Content types the backends speak.
const (
	ContentTypeJSON        = "application/json"
	ContentTypeEventStream = "text/event-stream"
)

// StreamRequest contains everything needed to open one stream (or one single-shot call).
// It is created per user submission and never mutated afterwards; constructors copy
// the header map and body they are given.
type StreamRequest struct {
	// URL is the backend endpoint, taken as-is from configuration
	URL string

	// Method defaults to POST when empty
	Method string

	// Headers are sent verbatim; Content-Type here wins over ContentType
	Headers map[string]string

	// Body is the encoded payload (JSON object or multipart form)
	Body []byte

	// ContentType of Body (application/json or multipart/form-data; boundary=...)
	ContentType string
}

// FormFile is one file part of a multipart upload.
type FormFile struct {
	// Field is the form field name (e.g. "files")
	Field string

	// Name is the file name reported to the backend
	Name string

	// Content is read fully while the request is built
	Content io.Reader
}

// NewJSONRequest builds a streaming POST request whose body is payload encoded as a JSON
// object, with params merged in. payload may be a struct, a map, or pre-encoded JSON bytes.
func NewJSONRequest(url string, payload any, params *GenerationParams) (*StreamRequest, error) {
	if err := ValidateGenerationParams(params); err != nil {
		return nil, err
	}

	var body []byte
	switch p := payload.(type) {
	case nil:
		body = []byte("{}")
	case []byte:
		body = bytes.Clone(p)
	case json.RawMessage:
		body = bytes.Clone(p)
	default:
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to marshal payload: %v", ErrInvalidRequest, err)
		}
		body = encoded
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return nil, &ValidationError{
			Field:  "body",
			Value:  string(trimmed),
			Reason: "payload must encode a JSON object",
			Err:    ErrInvalidRequest,
		}
	}

	body, err := params.ApplyTo(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	return &StreamRequest{
		URL:    url,
		Method: http.MethodPost,
		Headers: map[string]string{
			"Accept": ContentTypeEventStream,
		},
		Body:        body,
		ContentType: ContentTypeJSON,
	}, nil
}

// NewFormRequest builds a multipart/form-data POST request for uploads
// (documents, links for retrieval, audio).
func NewFormRequest(url string, fields map[string]string, files []FormFile) (*StreamRequest, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, key := range keys {
		if err := w.WriteField(key, fields[key]); err != nil {
			return nil, fmt.Errorf("%w: failed to write field %s: %v", ErrInvalidRequest, key, err)
		}
	}

	for _, f := range files {
		if f.Field == "" || f.Content == nil {
			return nil, &ValidationError{
				Field:  "files",
				Value:  f.Name,
				Reason: "file part needs a field name and content",
				Err:    ErrInvalidRequest,
			}
		}
		part, err := w.CreateFormFile(f.Field, f.Name)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to create part %s: %v", ErrInvalidRequest, f.Name, err)
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return nil, fmt.Errorf("%w: failed to read %s: %v", ErrInvalidRequest, f.Name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%w: failed to finish form: %v", ErrInvalidRequest, err)
	}

	return &StreamRequest{
		URL:         url,
		Method:      http.MethodPost,
		Headers:     map[string]string{},
		Body:        buf.Bytes(),
		ContentType: w.FormDataContentType(),
	}, nil
}

// WithHeader returns a copy of the request with one more header.
func (r *StreamRequest) WithHeader(key, value string) *StreamRequest {
	c := *r
	c.Headers = maps.Clone(r.Headers)
	if c.Headers == nil {
		c.Headers = map[string]string{}
	}
	c.Headers[key] = value
	c.Body = bytes.Clone(r.Body)
	return &c
}

// Header returns a header value, matching the key case-insensitively.
func (r *StreamRequest) Header(key string) string {
	for k, v := range r.Headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

// HTTPRequest creates a fresh *http.Request for this stream request.
func (r *StreamRequest) HTTPRequest(ctx context.Context) (*http.Request, error) {
	if r == nil || r.URL == "" {
		return nil, &ValidationError{Field: "url", Value: "", Reason: "missing URL", Err: ErrInvalidRequest}
	}

	method := r.Method
	if method == "" {
		method = http.MethodPost
	}

	var body io.Reader
	if len(r.Body) > 0 {
		body = bytes.NewReader(r.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, r.URL, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	if r.ContentType != "" && len(r.Body) > 0 {
		httpReq.Header.Set("Content-Type", r.ContentType)
	}
	for k, v := range r.Headers {
		httpReq.Header.Set(k, v)
	}

	return httpReq, nil
}
