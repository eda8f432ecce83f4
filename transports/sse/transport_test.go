package sse

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	genaistream "github.com/haowjy/genai-stream-go"
	"github.com/haowjy/genai-stream-go/mockbackend"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newBackend(t *testing.T, cfg mockbackend.Config) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(mockbackend.New(cfg).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func run(t *testing.T, url string, v genaistream.Variant) (*genaistream.StreamMetadata, error) {
	t.Helper()

	req, err := genaistream.NewJSONRequest(url, map[string]string{"messages": "hi"}, nil)
	require.NoError(t, err)

	s, err := genaistream.NewSession(New(), req, genaistream.SessionOptions{Variant: v})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Run(ctx)
}

func TestTransport_Variants(t *testing.T) {
	fragments := []string{"Hello", " world", ", ça va?"}
	srv := newBackend(t, mockbackend.Config{Fragments: fragments})

	tests := []struct {
		path    string
		variant genaistream.Variant
	}{
		{mockbackend.EndPointChatQnA, genaistream.VariantPlainSSE},
		{mockbackend.EndPointFaqGen, genaistream.VariantJSONPatchSSE},
		{mockbackend.EndPointChatCompletions, genaistream.VariantChatCompletionSSE},
		{mockbackend.EndPointDocSum, genaistream.VariantByteStringSSE},
	}

	for _, tt := range tests {
		t.Run(tt.variant.String(), func(t *testing.T) {
			meta, err := run(t, srv.URL+tt.path, tt.variant)
			require.NoError(t, err)
			assert.Equal(t, genaistream.StateDone, meta.State)
			assert.Equal(t, "Hello world, ça va?", meta.Text)
			assert.Equal(t, http.StatusOK, meta.StatusCode)
		})
	}
}

func TestTransport_HTTPStatus(t *testing.T) {
	srv := newBackend(t, mockbackend.Config{})

	tests := []struct {
		name    string
		path    string
		status  int
		message string
	}{
		{"empty body", "/v1/error/500", 500, "Internal Server Error"},
		{"error object", "/v1/error/429?message=slow+down", 429, "slow down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta, err := run(t, srv.URL+tt.path, genaistream.VariantPlainSSE)
			require.Error(t, err)

			var statusErr *genaistream.HTTPStatusError
			require.True(t, errors.As(err, &statusErr))
			assert.Equal(t, tt.status, statusErr.StatusCode)
			assert.Equal(t, tt.message, genaistream.UserMessage(err))
			assert.Equal(t, genaistream.StateErrored, meta.State)
			assert.Equal(t, 0, meta.Fragments)
			assert.Equal(t, tt.status, meta.StatusCode)
		})
	}
}

func TestTransport_MalformedPatch(t *testing.T) {
	srv := newBackend(t, mockbackend.Config{})

	meta, err := run(t, srv.URL+mockbackend.EndPointMalformed, genaistream.VariantJSONPatchSSE)
	require.Error(t, err)
	assert.Equal(t, genaistream.KindStreamDecode, genaistream.Classify(err))
	assert.Equal(t, "Hello", meta.Text)
}

func TestTransport_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	meta, err := run(t, url+"/v1/chatqna", genaistream.VariantPlainSSE)
	require.Error(t, err)
	assert.Equal(t, genaistream.KindConnection, genaistream.Classify(err))
	assert.Equal(t, "network error", genaistream.UserMessage(err))
	assert.Equal(t, genaistream.StateErrored, meta.State)
}

func TestTransport_SendsRequest(t *testing.T) {
	var (
		gotMethod, gotAccept, gotCache, gotType string
		gotBody                                 []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotAccept = r.Header.Get("Accept")
		gotCache = r.Header.Get("Cache-Control")
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)

		w.Header().Set("Content-Type", genaistream.ContentTypeEventStream)
		_, _ = io.WriteString(w, ": keep-alive\n\nevent: ping\ndata: {}\n\ndata: ok\n\ndata: [DONE]\n\n")
	}))
	defer srv.Close()

	meta, err := run(t, srv.URL, genaistream.VariantPlainSSE)
	require.NoError(t, err)
	assert.Equal(t, "ok", meta.Text)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, genaistream.ContentTypeEventStream, gotAccept)
	assert.Equal(t, "no-cache", gotCache)
	assert.Equal(t, genaistream.ContentTypeJSON, gotType)
	assert.Equal(t, "hi", gjson.GetBytes(gotBody, "messages").String())
}

func TestTransport_Frames(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr genaistream.ErrorKind
	}{
		{"multi-line data joined", "data: a\ndata: b\n\ndata: [DONE]\n\n", "a\nb", genaistream.KindNone},
		{"leading space kept", "data: one\n\ndata:  two\n\n", "one two", genaistream.KindNone},
		{"error event", "data: partial\n\nevent: error\ndata: boom\n\n", "partial", genaistream.KindStreamDecode},
		{"end of body without sentinel", "data: tail\n\n", "tail", genaistream.KindNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", genaistream.ContentTypeEventStream)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			meta, err := run(t, srv.URL, genaistream.VariantPlainSSE)
			assert.Equal(t, tt.wantErr, genaistream.Classify(err))
			assert.Equal(t, tt.want, meta.Text)
		})
	}
}

func TestTransport_Cancel(t *testing.T) {
	srv := newBackend(t, mockbackend.Config{Words: 200, Delay: 20 * time.Millisecond})

	req, err := genaistream.NewJSONRequest(srv.URL+mockbackend.EndPointChatQnA, map[string]string{"messages": "hi"}, nil)
	require.NoError(t, err)

	s, err := genaistream.NewSession(New(), req, genaistream.SessionOptions{Variant: genaistream.VariantPlainSSE})
	require.NoError(t, err)

	go func() { _, _ = s.Run(context.Background()) }()
	require.Eventually(t, func() bool { return s.Accumulator().Fragments() >= 2 }, 5*time.Second, 10*time.Millisecond)

	s.Cancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	meta, err := s.Wait(ctx)
	require.ErrorIs(t, err, genaistream.ErrCancelled)
	assert.Equal(t, genaistream.StateCancelled, meta.State)

	frozen := s.Text()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, frozen, s.Text(), "nothing is appended after cancel")
	assert.Less(t, meta.Fragments, 200)
}
