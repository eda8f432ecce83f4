package genaistream

import (
	"strings"
	"sync"
)

// Observer receives the full accumulated text after every change.
type Observer func(text string)

// Accumulator holds the append-only response text of one session and republishes it
// to observers synchronously after every fragment. There is no batching and no length
// limit; scroll-following is the UI's concern.
type Accumulator struct {
	mu        sync.Mutex
	text      strings.Builder
	fragments int
	observers []Observer
}

// NewAccumulator creates an accumulator with optional observers.
func NewAccumulator(observers ...Observer) *Accumulator {
	a := &Accumulator{}
	for _, o := range observers {
		if o != nil {
			a.observers = append(a.observers, o)
		}
	}
	return a
}

// Subscribe adds an observer. It is called for every later change.
func (a *Accumulator) Subscribe(o Observer) {
	if o == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.observers = append(a.observers, o)
}

// Append concatenates fragment and publishes the new text. It returns the new text.
func (a *Accumulator) Append(fragment string) string {
	a.mu.Lock()
	a.text.WriteString(fragment)
	a.fragments++
	text := a.text.String()
	observers := a.observers
	a.mu.Unlock()

	// observers run outside the lock so they may read the accumulator back
	for _, o := range observers {
		o(text)
	}
	return text
}

// Reset clears the text and publishes the empty string.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	a.text.Reset()
	a.fragments = 0
	observers := a.observers
	a.mu.Unlock()

	for _, o := range observers {
		o("")
	}
}

// Text returns the accumulated text.
func (a *Accumulator) Text() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.text.String()
}

// Len returns the accumulated length in bytes.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.text.Len()
}

// Fragments returns how many fragments were appended since the last reset.
func (a *Accumulator) Fragments() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fragments
}
