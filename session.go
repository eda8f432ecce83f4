package genaistream

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"
)

// SessionOptions configures a StreamSession.
type SessionOptions struct {
	// Variant selects the chunk decoder (required)
	Variant Variant

	// OnUpdate receives the accumulated text after every fragment
	OnUpdate Observer

	// OnEnd is called exactly once when the session reaches a terminal state.
	// err is nil for Done, wraps ErrCancelled for Cancelled, and is the failure otherwise.
	OnEnd func(meta *StreamMetadata, err error)

	// Endpoint, when set, is used to report validation warnings for the request
	Endpoint *Endpoint

	// Logger defaults to the apex/log package logger
	Logger log.Interface
}

// Session is one StreamSession: a single request, its raw buffer and its accumulated
// text, driven by one control loop. A session runs at most once; a new submission
// always gets a new session.
type Session struct {
	id        string
	transport Transport
	req       *StreamRequest
	decoder   *ChunkDecoder
	acc       *Accumulator
	onEnd     func(*StreamMetadata, error)
	logger    log.Interface

	cancelled atomic.Bool

	mu      sync.Mutex
	state   SessionState
	started bool
	cancel  context.CancelFunc
	result  *StreamMetadata
	err     error
	done    chan struct{}
}

// runStats collects per-run counters for StreamMetadata.
type runStats struct {
	start      time.Time
	firstFrag  time.Duration
	bytes      int64
	statusCode int
}

// NewSession creates an idle session for req over transport.
func NewSession(transport Transport, req *StreamRequest, opts SessionOptions) (*Session, error) {
	if transport == nil {
		return nil, &ValidationError{Field: "transport", Value: nil, Reason: "transport is required", Err: ErrInvalidRequest}
	}
	if req == nil {
		return nil, &ValidationError{Field: "request", Value: nil, Reason: "request is required", Err: ErrInvalidRequest}
	}

	decoder, err := NewChunkDecoder(opts.Variant)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Log
	}

	id := uuid.NewString()
	s := &Session{
		id:        id,
		transport: transport,
		req:       req,
		decoder:   decoder,
		acc:       NewAccumulator(opts.OnUpdate),
		onEnd:     opts.OnEnd,
		state:     StateIdle,
		done:      make(chan struct{}),
		logger: logger.WithFields(log.Fields{
			"session":   id,
			"url":       req.URL,
			"variant":   opts.Variant.String(),
			"transport": transport.Name().String(),
		}),
	}

	for _, w := range GetValidationWarnings(opts.Endpoint, req, transport.Name(), opts.Variant) {
		s.logger.WithFields(log.Fields{
			"code":     string(w.Code),
			"field":    w.Field,
			"severity": string(w.Severity),
		}).Warn(w.Message)
	}

	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Text returns the text accumulated so far.
func (s *Session) Text() string {
	return s.acc.Text()
}

// Accumulator exposes the session-owned accumulator, e.g. to subscribe more observers.
func (s *Session) Accumulator() *Accumulator {
	return s.acc
}

// Err returns the failure of an Errored session (nil otherwise).
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed when the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Cancel requests cooperative cancellation: the underlying stream is aborted and no
// fragment delivered afterwards is appended. Cancelling a finished session does nothing.
func (s *Session) Cancel() {
	if s.cancelled.Swap(true) {
		return
	}

	s.mu.Lock()
	cancel := s.cancel
	state := s.state
	s.mu.Unlock()

	if !state.IsTerminal() {
		s.logger.WithField("state", state.String()).Debug("cancellation requested")
	}
	if cancel != nil {
		cancel()
	}
}

// Run drives the session to a terminal state and returns its metadata.
// The error is nil for Done, wraps ErrCancelled for Cancelled (see ShouldNotify), and
// is a *ConnectionError, *HTTPStatusError or *DecodeError for Errored.
func (s *Session) Run(ctx context.Context) (*StreamMetadata, error) {
	runCtx, err := s.claim(ctx)
	if err != nil {
		return nil, err
	}
	return s.loop(ctx, runCtx, nil)
}

// Stream runs the session in a goroutine and returns its events.
// The channel emits one event per fragment, then Metadata (Done, Cancelled) or
// Error (Errored), then closes. Events are dropped once ctx is done.
func (s *Session) Stream(ctx context.Context) (<-chan StreamEvent, error) {
	runCtx, err := s.claim(ctx)
	if err != nil {
		return nil, err
	}

	eventChan := make(chan StreamEvent, 10) // Buffered to prevent blocking
	go func() {
		defer close(eventChan)
		_, _ = s.loop(ctx, runCtx, func(ev StreamEvent) {
			select {
			case <-ctx.Done():
			case eventChan <- ev:
			}
		})
	}()
	return eventChan, nil
}

// Wait blocks until the session ends or ctx is done.
func (s *Session) Wait(ctx context.Context) (*StreamMetadata, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.result.State {
	case StateCancelled:
		return s.result, ErrCancelled
	default:
		return s.result, s.err
	}
}

// claim marks the session as started and derives the run context.
func (s *Session) claim(ctx context.Context) (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil, ErrSessionStarted
	}
	s.started = true

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	return runCtx, nil
}

// loop is the single control loop: open, read, decode, append, detect completion.
func (s *Session) loop(parent, ctx context.Context, emit func(StreamEvent)) (*StreamMetadata, error) {
	defer s.cancelRun()

	st := &runStats{start: time.Now()}
	if s.stopRequested(parent) {
		return s.finish(st, StateCancelled, nil, emit)
	}

	s.transition(StateConnecting)
	s.logger.Info("opening stream")

	src, err := s.transport.Open(ctx, s.req)
	if err != nil {
		return s.fail(parent, ctx, st, err, emit)
	}
	defer src.Close()

	if sr, ok := src.(StatusReporter); ok {
		st.statusCode = sr.StatusCode()
	}

	for {
		chunk, err := src.Next()

		if s.stopRequested(parent) {
			// anything that arrived after the request is stale
			return s.finish(st, StateCancelled, nil, emit)
		}

		if errors.Is(err, io.EOF) {
			res, ferr := s.decoder.Flush()
			if !s.appendAll(parent, st, res.Fragments, emit) {
				return s.finish(st, StateCancelled, nil, emit)
			}
			if ferr != nil {
				return s.fail(parent, ctx, st, ferr, emit)
			}
			return s.finish(st, StateDone, nil, emit)
		}
		if err != nil {
			return s.fail(parent, ctx, st, err, emit)
		}

		st.bytes += int64(len(chunk.Data))
		if s.State() == StateConnecting {
			s.transition(StateStreaming)
		}

		res, derr := s.decoder.Decode(chunk)
		if !s.appendAll(parent, st, res.Fragments, emit) {
			return s.finish(st, StateCancelled, nil, emit)
		}
		if derr != nil {
			return s.fail(parent, ctx, st, derr, emit)
		}
		if res.Done {
			return s.finish(st, StateDone, nil, emit)
		}
	}
}

// appendAll appends fragments in order. It returns false as soon as cancellation
// has been requested; the remaining fragments are discarded.
func (s *Session) appendAll(parent context.Context, st *runStats, fragments []string, emit func(StreamEvent)) bool {
	for _, f := range fragments {
		if s.stopRequested(parent) {
			return false
		}
		if f == "" {
			continue
		}
		if st.firstFrag == 0 {
			st.firstFrag = time.Since(st.start)
		}
		s.acc.Append(f)
		if emit != nil {
			fragment := f
			emit(StreamEvent{Fragment: &fragment})
		}
	}
	return true
}

// stopRequested reports an explicit Cancel or a cancelled parent context.
// A parent deadline is not a cancellation; it surfaces as a connection failure.
func (s *Session) stopRequested(parent context.Context) bool {
	return s.cancelled.Load() || errors.Is(parent.Err(), context.Canceled)
}

// fail records a failure, unless it is the echo of a requested cancellation.
func (s *Session) fail(parent, ctx context.Context, st *runStats, err error, emit func(StreamEvent)) (*StreamMetadata, error) {
	if s.stopRequested(parent) {
		return s.finish(st, StateCancelled, nil, emit)
	}
	if errors.Is(err, ErrCancelled) {
		return s.finish(st, StateCancelled, nil, emit)
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		st.statusCode = statusErr.StatusCode
	}

	return s.finish(st, StateErrored, TransportError(ctx, s.req.URL, err), emit)
}

// finish moves the session to a terminal state exactly once.
func (s *Session) finish(st *runStats, state SessionState, err error, emit func(StreamEvent)) (*StreamMetadata, error) {
	meta := &StreamMetadata{
		SessionID:           s.id,
		State:               state,
		Text:                s.acc.Text(),
		Fragments:           s.acc.Fragments(),
		Bytes:               st.bytes,
		StatusCode:          st.statusCode,
		Duration:            time.Since(st.start),
		TimeToFirstFragment: st.firstFrag,
	}

	s.mu.Lock()
	from := s.state
	s.state = state
	s.err = err
	s.result = meta
	s.mu.Unlock()
	defer close(s.done)

	entry := s.logger.WithFields(log.Fields{
		"from":      from.String(),
		"state":     state.String(),
		"fragments": meta.Fragments,
		"bytes":     meta.Bytes,
		"status":    meta.StatusCode,
	})

	var ret error
	switch state {
	case StateErrored:
		entry.WithError(err).Warn("stream failed")
		ret = err
	case StateCancelled:
		entry.Info("stream cancelled")
		ret = ErrCancelled
	default:
		entry.Info("stream complete")
	}

	if s.onEnd != nil {
		s.onEnd(meta, ret)
	}

	if emit != nil {
		if state == StateErrored {
			emit(StreamEvent{Error: err})
		} else {
			emit(StreamEvent{Metadata: meta})
		}
	}

	return meta, ret
}

func (s *Session) transition(next SessionState) {
	s.mu.Lock()
	from := s.state
	ok := from.CanTransition(next)
	if ok {
		s.state = next
	}
	s.mu.Unlock()

	if !ok {
		s.logger.WithFields(log.Fields{"from": from.String(), "to": next.String()}).Warn("ignored illegal state transition")
		return
	}
	s.logger.WithField("state", next.String()).Debug("state changed")
}

func (s *Session) cancelRun() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
