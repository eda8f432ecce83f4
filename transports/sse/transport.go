// Package sse implements an EventSource-style transport that, unlike a browser
// EventSource, allows a custom method, headers and request body.
package sse

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"

	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	genaistream "github.com/haowjy/genai-stream-go"
)

// Transport opens Server-Sent-Event streams over HTTP.
// Frames are split by the ssestream decoder; each event becomes one framed Chunk.
type Transport struct {
	httpClient *http.Client
}

// Option configures a Transport.
type Option func(*Transport)

// WithHTTPClient sets the client used for requests.
// No timeout is applied by default; wrap the context to bound a stream.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transport) {
		if c != nil {
			t.httpClient = c
		}
	}
}

// New creates an SSE transport.
func New(opts ...Option) *Transport {
	t := &Transport{httpClient: &http.Client{}}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name returns the transport identifier.
func (t *Transport) Name() genaistream.TransportID {
	return genaistream.TransportSSE
}

// Open sends req and returns its event stream.
func (t *Transport) Open(ctx context.Context, req *genaistream.StreamRequest) (genaistream.Source, error) {
	httpReq, err := req.HTTPRequest(ctx)
	if err != nil {
		return nil, err
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", genaistream.ContentTypeEventStream)
	}
	httpReq.Header.Set("Cache-Control", "no-cache")

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, genaistream.TransportError(ctx, req.URL, err)
	}

	// Handle error responses
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, genaistream.ErrorFromResponse(resp)
	}

	return &source{
		resp:    resp,
		decoder: ssestream.NewDecoder(resp),
	}, nil
}

// source adapts an ssestream.Decoder to genaistream.Source.
type source struct {
	resp    *http.Response
	decoder ssestream.Decoder

	closeOnce sync.Once
	closeErr  error
}

func (s *source) Next() (genaistream.Chunk, error) {
	for s.decoder.Next() {
		ev := s.decoder.Event()

		// a blank line with no fields before it dispatches an empty event
		if ev.Type == "" && len(ev.Data) == 0 {
			continue
		}

		// data lines are joined with '\n' and the last one keeps its newline
		data := bytes.TrimSuffix(ev.Data, []byte("\n"))
		return genaistream.Chunk{Data: data, Framed: true, Event: ev.Type}, nil
	}

	if err := s.decoder.Err(); err != nil {
		return genaistream.Chunk{}, err
	}
	return genaistream.Chunk{}, io.EOF
}

func (s *source) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.decoder.Close()
	})
	return s.closeErr
}

func (s *source) StatusCode() int {
	return s.resp.StatusCode
}

var _ genaistream.Transport = (*Transport)(nil)
