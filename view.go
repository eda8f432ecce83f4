package genaistream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/apex/log"
)

// Chat roles stored in history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one persisted history entry.
type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// HistoryStore persists finished conversations under an app-specific key.
type HistoryStore interface {
	Append(ctx context.Context, key string, msgs ...ChatMessage) error
}

// ViewOptions configures a View.
type ViewOptions struct {
	// Variant selects the chunk decoder for every submission
	Variant Variant

	// Endpoint, when set, is used for validation warnings
	Endpoint *Endpoint

	// History receives the prompt and the answer of every Done session (optional)
	History HistoryStore

	// HistoryKey is the app key the conversation is stored under
	HistoryKey string

	// OnUpdate receives the accumulated text of the current session only
	OnUpdate Observer

	// OnEnd receives the terminal result of the current session only
	OnEnd func(meta *StreamMetadata, err error)

	// Logger defaults to the apex/log package logger
	Logger log.Interface
}

// View owns at most one active session (an arena of one, indexed by session id).
// Submitting replaces the current session: the old one is cancelled and anything it
// still delivers is dropped.
type View struct {
	transport Transport
	opts      ViewOptions
	logger    log.Interface

	mu      sync.Mutex
	current *Session
	closed  bool
}

// NewView creates a view that opens every session over transport.
func NewView(transport Transport, opts ViewOptions) (*View, error) {
	if transport == nil {
		return nil, &ValidationError{Field: "transport", Value: nil, Reason: "transport is required", Err: ErrInvalidRequest}
	}
	if !opts.Variant.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, string(opts.Variant))
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Log
	}

	return &View{
		transport: transport,
		opts:      opts,
		logger:    logger.WithField("view", opts.HistoryKey),
	}, nil
}

// Submit starts a fresh session for prompt, cancelling the active one first.
// The session runs in the background; use Session.Wait for its result.
func (v *View) Submit(ctx context.Context, prompt string, req *StreamRequest) (*Session, error) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil, fmt.Errorf("%w: view is closed", ErrInvalidRequest)
	}

	var s *Session
	s, err := NewSession(v.transport, req, SessionOptions{
		Variant:  v.opts.Variant,
		Endpoint: v.opts.Endpoint,
		Logger:   v.opts.Logger,
		OnUpdate: func(text string) {
			if v.isCurrent(s) && v.opts.OnUpdate != nil {
				v.opts.OnUpdate(text)
			}
		},
		OnEnd: func(meta *StreamMetadata, err error) {
			v.end(s, prompt, meta, err)
		},
	})
	if err != nil {
		v.mu.Unlock()
		return nil, err
	}

	prev := v.current
	v.current = s
	v.mu.Unlock()

	if prev != nil {
		v.logger.WithFields(log.Fields{"previous": prev.ID(), "session": s.ID()}).Debug("replacing active session")
		prev.Cancel()
	}

	go func() {
		_, _ = s.Run(ctx)
	}()
	return s, nil
}

// Current returns the active (or last) session, nil before the first submission.
func (v *View) Current() *Session {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// Close cancels the active session. Later submissions fail.
func (v *View) Close() {
	v.mu.Lock()
	v.closed = true
	current := v.current
	v.mu.Unlock()

	if current != nil {
		current.Cancel()
	}
}

func (v *View) isCurrent(s *Session) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return s != nil && v.current == s
}

// end records history for Done sessions and forwards the result of the current one.
func (v *View) end(s *Session, prompt string, meta *StreamMetadata, err error) {
	if !v.isCurrent(s) {
		v.logger.WithField("session", meta.SessionID).Debug("dropping result of replaced session")
		return
	}

	if meta.State == StateDone && v.opts.History != nil && v.opts.HistoryKey != "" {
		now := time.Now().UTC()
		msgs := []ChatMessage{
			{Role: RoleUser, Content: prompt, Timestamp: now},
			{Role: RoleAssistant, Content: meta.Text, Timestamp: now},
		}
		if herr := v.opts.History.Append(context.Background(), v.opts.HistoryKey, msgs...); herr != nil {
			v.logger.WithError(herr).Warn("failed to persist chat history")
		}
	}

	if v.opts.OnEnd != nil {
		v.opts.OnEnd(meta, err)
	}
}
