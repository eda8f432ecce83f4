package lorem

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	genaistream "github.com/haowjy/genai-stream-go"
)

func loremRequest(t *testing.T, url string, params *genaistream.GenerationParams) *genaistream.StreamRequest {
	t.Helper()
	req, err := genaistream.NewJSONRequest(url, nil, params)
	require.NoError(t, err)
	return req
}

func runLorem(t *testing.T, url string, v genaistream.Variant) (*genaistream.StreamMetadata, error) {
	t.Helper()
	s, err := genaistream.NewSession(New(), loremRequest(t, url, nil), genaistream.SessionOptions{Variant: v})
	require.NoError(t, err)
	return s.Run(context.Background())
}

func TestTransport_Name(t *testing.T) {
	if New().Name() != genaistream.TransportLorem {
		t.Errorf("expected transport name 'lorem', got '%s'", New().Name())
	}
}

func TestTransport_EveryVariant(t *testing.T) {
	for _, v := range genaistream.Variants() {
		for _, split := range []string{"0", "1"} {
			t.Run(v.String()+"/split="+split, func(t *testing.T) {
				meta, err := runLorem(t, "lorem://instant?words=12&split="+split+"&format="+v.String(), v)
				require.NoError(t, err)
				assert.Equal(t, genaistream.StateDone, meta.State)
				assert.Len(t, strings.Fields(meta.Text), 12)
				if v.IsFramed() || split == "0" {
					assert.Equal(t, 12, meta.Fragments)
				}
			})
		}
	}
}

func TestTransport_WordsFromParams(t *testing.T) {
	req := loremRequest(t, "lorem://instant", &genaistream.GenerationParams{MaxNewTokens: intPtr(7)})
	s, err := genaistream.NewSession(New(), req, genaistream.SessionOptions{Variant: genaistream.VariantPlainSSE})
	require.NoError(t, err)

	meta, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, strings.Fields(meta.Text), 7)
}

func TestTransport_ErrorHost(t *testing.T) {
	meta, err := runLorem(t, "lorem://error", genaistream.VariantPlainSSE)
	require.Error(t, err)
	assert.Equal(t, genaistream.KindHTTPStatus, genaistream.Classify(err))
	assert.Equal(t, 503, meta.StatusCode)
	assert.Equal(t, 0, meta.Fragments)
}

func TestTransport_BrokenHost(t *testing.T) {
	meta, err := runLorem(t, "lorem://broken?words=10", genaistream.VariantPlainSSE)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBrokenStream))
	assert.Equal(t, genaistream.KindConnection, genaistream.Classify(err))
	assert.Equal(t, 5, meta.Fragments)
}

func TestTransport_BadURL(t *testing.T) {
	tests := []string{
		"http://localhost/v1/chatqna",
		"lorem://fast?format=xml",
		"lorem://fast?words=-3",
	}

	for _, url := range tests {
		t.Run(url, func(t *testing.T) {
			_, err := New().Open(context.Background(), loremRequest(t, url, nil))
			require.Error(t, err)
			assert.Equal(t, genaistream.KindInvalidRequest, genaistream.Classify(err))
		})
	}
}

func TestTransport_Cancel(t *testing.T) {
	s, err := genaistream.NewSession(New(), loremRequest(t, "lorem://fast?words=500", nil),
		genaistream.SessionOptions{Variant: genaistream.VariantPlainSSE})
	require.NoError(t, err)

	go func() { _, _ = s.Run(context.Background()) }()
	require.Eventually(t, func() bool { return s.Text() != "" }, 2*time.Second, 5*time.Millisecond)

	s.Cancel()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop")
	}
	assert.Equal(t, genaistream.StateCancelled, s.State())
	assert.Less(t, s.Accumulator().Fragments(), 500)
}

func TestGetStreamDelay(t *testing.T) {
	tests := []struct {
		speed string
		want  time.Duration
	}{
		{"instant", 0},
		{"fast", 33 * time.Millisecond},
		{"medium", 100 * time.Millisecond},
		{"slow", 500 * time.Millisecond},
		{"anything", 100 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.speed, func(t *testing.T) {
			if got := getStreamDelay(tt.speed); got != tt.want {
				t.Errorf("getStreamDelay(%q) = %v, want %v", tt.speed, got, tt.want)
			}
		})
	}
}

func intPtr(i int) *int {
	return &i
}
