package genaistream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindNone},
		{"cancelled", ErrCancelled, KindCancellation},
		{"wrapped context cancel", fmt.Errorf("read: %w", context.Canceled), KindCancellation},
		{"validation", &ValidationError{Field: "url", Err: ErrInvalidRequest}, KindInvalidRequest},
		{"unknown variant", fmt.Errorf("%w: x", ErrUnknownVariant), KindInvalidRequest},
		{"endpoint not configured", ErrEndpointNotConfigured, KindInvalidRequest},
		{"http status", &HTTPStatusError{StatusCode: 503}, KindHTTPStatus},
		{"decode", &DecodeError{Variant: VariantJSONPatchSSE, Err: io.ErrUnexpectedEOF}, KindStreamDecode},
		{"connection", &ConnectionError{URL: "http://x", Err: io.EOF}, KindConnection},
		{"unknown error", errors.New("boom"), KindConnection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		want       string
		wantNotify bool
	}{
		{"cancellation is silent", ErrCancelled, "", false},
		{"none", nil, "", false},
		{"network", &ConnectionError{URL: "http://x", Err: io.EOF}, "network error", true},
		{"status with message", &HTTPStatusError{StatusCode: 429, Message: "rate limited"}, "rate limited", true},
		{"status without message", &HTTPStatusError{StatusCode: 500}, "request failed", true},
		{"decode", &DecodeError{Variant: VariantPlainSSE}, "received an unreadable response", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UserMessage(tt.err))
			assert.Equal(t, tt.wantNotify, ShouldNotify(tt.err))
		})
	}
}

func TestTypedErrorsUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	connErr := &ConnectionError{URL: "http://backend", Err: cause}
	assert.ErrorIs(t, connErr, ErrConnection)
	assert.ErrorIs(t, connErr, cause)
	assert.Contains(t, connErr.Error(), "http://backend")

	statusErr := &HTTPStatusError{StatusCode: 404, Message: "Not Found"}
	assert.ErrorIs(t, statusErr, ErrHTTPStatus)
	assert.Contains(t, statusErr.Error(), "404")

	decodeErr := &DecodeError{Variant: VariantJSONPatchSSE, Line: "{", Err: io.ErrUnexpectedEOF}
	assert.ErrorIs(t, decodeErr, ErrStreamDecode)
	assert.ErrorIs(t, decodeErr, io.ErrUnexpectedEOF)
}

func TestTransportError(t *testing.T) {
	cause := errors.New("read tcp: reset")

	t.Run("plain errors become connection errors", func(t *testing.T) {
		err := TransportError(context.Background(), "http://x", cause)
		var connErr *ConnectionError
		assert.ErrorAs(t, err, &connErr)
		assert.Equal(t, "http://x", connErr.URL)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, TransportError(ctx, "http://x", cause), ErrCancelled)
	})

	t.Run("classified errors pass through", func(t *testing.T) {
		statusErr := &HTTPStatusError{StatusCode: 500}
		assert.Same(t, statusErr, TransportError(context.Background(), "http://x", statusErr))
	})

	t.Run("nil", func(t *testing.T) {
		assert.NoError(t, TransportError(context.Background(), "http://x", nil))
	})
}
