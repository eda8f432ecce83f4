// Package fetch implements the fetch-stream transport: the response body is read
// incrementally and handed over as raw byte chunks, framing left to the decoder.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	genaistream "github.com/haowjy/genai-stream-go"
)

const (
	// DefaultChunkSize is the read buffer size for one chunk
	DefaultChunkSize = 4096

	// maxResponseSize bounds single-shot JSON answers (base64 images included)
	maxResponseSize = 64 << 20
)

// Transport streams raw HTTP bodies and performs single-shot JSON calls.
type Transport struct {
	httpClient *http.Client
	chunkSize  int
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

// WithChunkSize sets the maximum size of one chunk.
func WithChunkSize(n int) Option {
	return func(t *Transport) {
		if n > 0 {
			t.chunkSize = n
		}
	}
}

// New creates a fetch transport.
func New(opts ...Option) *Transport {
	t := &Transport{
		httpClient: &http.Client{},
		chunkSize:  DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name returns the transport identifier.
func (t *Transport) Name() genaistream.TransportID {
	return genaistream.TransportFetch
}

// Open sends req and returns a reader over its body.
func (t *Transport) Open(ctx context.Context, req *genaistream.StreamRequest) (genaistream.Source, error) {
	resp, err := t.send(ctx, req)
	if err != nil {
		return nil, err
	}

	return &source{
		resp: resp,
		buf:  make([]byte, t.chunkSize),
	}, nil
}

// Do performs a single-shot call whose answer is one JSON object.
// The body is returned unchanged; nothing is accumulated.
func (t *Transport) Do(ctx context.Context, req *genaistream.StreamRequest) (*genaistream.Response, error) {
	resp, err := t.send(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, genaistream.TransportError(ctx, req.URL, fmt.Errorf("failed to read response body: %w", err))
	}

	return genaistream.NewResponse(resp.StatusCode, resp.Header, body)
}

func (t *Transport) send(ctx context.Context, req *genaistream.StreamRequest) (*http.Response, error) {
	httpReq, err := req.HTTPRequest(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, genaistream.TransportError(ctx, req.URL, err)
	}

	// Handle error responses
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, genaistream.ErrorFromResponse(resp)
	}
	return resp, nil
}

// source yields body reads as chunks, like reader.read() on a response body.
type source struct {
	resp    *http.Response
	buf     []byte
	pending error

	closeOnce sync.Once
	closeErr  error
}

func (s *source) Next() (genaistream.Chunk, error) {
	if s.pending != nil {
		return genaistream.Chunk{}, s.pending
	}

	for {
		n, err := s.resp.Body.Read(s.buf)
		if err != nil {
			// data returned together with an error is delivered first
			s.pending = err
		}
		if n > 0 {
			return genaistream.Chunk{Data: bytes.Clone(s.buf[:n])}, nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return genaistream.Chunk{}, io.EOF
			}
			return genaistream.Chunk{}, err
		}
	}
}

func (s *source) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.resp.Body.Close()
	})
	return s.closeErr
}

func (s *source) StatusCode() int {
	return s.resp.StatusCode
}

var (
	_ genaistream.Transport = (*Transport)(nil)
	_ genaistream.Requester = (*Transport)(nil)
)
