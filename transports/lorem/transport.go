// Package lorem is a mock transport that streams lorem ipsum text in the wire format
// of any decoder variant. Used for testing and development without a backend.
package lorem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	loremgen "github.com/bozaro/golorem"
	"github.com/tidwall/gjson"

	genaistream "github.com/haowjy/genai-stream-go"
)

// Scheme is the URL scheme this transport answers.
const Scheme = "lorem"

const defaultWords = 50

// ErrBrokenStream is reported by the "broken" host halfway through the stream.
var ErrBrokenStream = errors.New("lorem: connection reset")

// Transport generates lorem ipsum streams in-process.
//
// The URL selects the behavior: lorem://<speed>?format=<variant>&words=<n>&split=1
//   - speed: instant, fast, medium, slow, error (503 answer), broken (fails midway)
//   - format: wire variant, plain_sse by default
//   - words: number of words, else max_new_tokens from the body, else 50
//   - split: deliver every frame in two chunks to exercise line carry-over
type Transport struct {
	mu        sync.Mutex
	generator *loremgen.Lorem
}

// New creates a lorem transport.
func New() *Transport {
	return &Transport{generator: loremgen.New()}
}

// Name returns the transport identifier.
func (t *Transport) Name() genaistream.TransportID {
	return genaistream.TransportLorem
}

// streamConfig is what the URL asked for.
type streamConfig struct {
	speed   string
	variant genaistream.Variant
	words   int
	split   bool
}

// Open starts a generated stream.
func (t *Transport) Open(ctx context.Context, req *genaistream.StreamRequest) (genaistream.Source, error) {
	cfg, err := parseURL(req)
	if err != nil {
		return nil, err
	}

	if cfg.speed == "error" {
		return nil, &genaistream.HTTPStatusError{
			StatusCode: http.StatusServiceUnavailable,
			Message:    "lorem backend unavailable",
		}
	}

	words := strings.Fields(t.generateTextWords(cfg.words))
	if len(words) > cfg.words {
		words = words[:cfg.words]
	}

	var frames [][]byte
	for _, w := range words {
		frame := genaistream.EncodeFragment(cfg.variant, w+" ")
		if cfg.split && len(frame) > 1 {
			mid := len(frame) / 2
			frames = append(frames, frame[:mid], frame[mid:])
			continue
		}
		frames = append(frames, frame)
	}
	if done := genaistream.EncodeDone(cfg.variant); len(done) > 0 {
		frames = append(frames, done)
	}

	breakAt := -1
	if cfg.speed == "broken" {
		breakAt = len(frames) / 2
	}

	return &source{
		ctx:     ctx,
		frames:  frames,
		delay:   getStreamDelay(cfg.speed),
		breakAt: breakAt,
	}, nil
}

func parseURL(req *genaistream.StreamRequest) (*streamConfig, error) {
	u, err := url.Parse(req.URL)
	if err != nil || u.Scheme != Scheme {
		return nil, &genaistream.ValidationError{
			Field:  "url",
			Value:  req.URL,
			Reason: "lorem transport needs a lorem://<speed> URL",
			Err:    genaistream.ErrInvalidRequest,
		}
	}

	cfg := &streamConfig{
		speed:   u.Host,
		variant: genaistream.VariantPlainSSE,
		words:   defaultWords,
	}
	if cfg.speed == "" {
		cfg.speed = "medium"
	}

	q := u.Query()
	if f := q.Get("format"); f != "" {
		v, err := genaistream.ParseVariant(f)
		if err != nil {
			return nil, err
		}
		cfg.variant = v
	}

	if n := q.Get("words"); n != "" {
		words, err := strconv.Atoi(n)
		if err != nil || words < 0 {
			return nil, &genaistream.ValidationError{
				Field:  "words",
				Value:  n,
				Reason: "must be a non-negative integer",
				Err:    genaistream.ErrInvalidRequest,
			}
		}
		cfg.words = words
	} else if v := gjson.GetBytes(req.Body, "max_new_tokens"); v.Type == gjson.Number {
		cfg.words = int(v.Int())
	}

	cfg.split = q.Get("split") == "1" || q.Get("split") == "true"
	return cfg, nil
}

// getStreamDelay returns the delay between frames based on the speed.
// - slow: 2 words/second (500ms per word)
// - fast: 30 words/second (33ms per word)
// - medium: 10 words/second (100ms per word)
// - instant: no delay
func getStreamDelay(speed string) time.Duration {
	switch speed {
	case "instant":
		return 0
	case "slow":
		return 500 * time.Millisecond // 2 words/second
	case "fast":
		return 33 * time.Millisecond // 30 words/second
	default:
		return 100 * time.Millisecond // default: 10 words/second
	}
}

// generateTextWords generates lorem ipsum text with approximately targetWords words.
func (t *Transport) generateTextWords(targetWords int) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var sb strings.Builder
	wordCount := 0

	for wordCount < targetWords {
		// Generate sentence with 5-15 words
		sentence := t.generator.Sentence(5, 15)
		sb.WriteString(sentence)
		sb.WriteString(" ")

		wordCount += len(strings.Fields(sentence))
	}

	return strings.TrimSpace(sb.String())
}

// source replays pre-rendered frames with a per-frame delay.
type source struct {
	ctx     context.Context
	frames  [][]byte
	next    int
	delay   time.Duration
	breakAt int
	closed  bool
}

func (s *source) Next() (genaistream.Chunk, error) {
	if s.closed {
		return genaistream.Chunk{}, fmt.Errorf("lorem: read on closed stream")
	}
	if s.next >= len(s.frames) {
		return genaistream.Chunk{}, io.EOF
	}
	if s.next == s.breakAt {
		return genaistream.Chunk{}, ErrBrokenStream
	}

	if s.delay > 0 {
		select {
		case <-s.ctx.Done():
			return genaistream.Chunk{}, s.ctx.Err()
		case <-time.After(s.delay):
		}
	} else if err := s.ctx.Err(); err != nil {
		return genaistream.Chunk{}, err
	}

	frame := s.frames[s.next]
	s.next++
	return genaistream.Chunk{Data: frame}, nil
}

func (s *source) Close() error {
	s.closed = true
	return nil
}

func (s *source) StatusCode() int {
	return http.StatusOK
}

var _ genaistream.Transport = (*Transport)(nil)
