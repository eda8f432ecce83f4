package genaistream

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
)

// Test helper functions shared across test files

func intPtr(i int) *int {
	return &i
}

func float64Ptr(f float64) *float64 {
	return &f
}

func boolPtr(b bool) *bool {
	return &b
}

// step is one scripted delivery of a fake source.
type step struct {
	chunk Chunk
	err   error
}

// feed scripts what a fake source delivers. Closing it ends the body with io.EOF.
type feed chan step

func newFeed() feed {
	return make(feed, 64)
}

func (f feed) data(s string) feed {
	f <- step{chunk: Chunk{Data: []byte(s)}}
	return f
}

func (f feed) fail(err error) feed {
	f <- step{err: err}
	return f
}

func (f feed) end() feed {
	close(f)
	return f
}

// fakeTransport hands out the queued feeds in order, one per Open.
type fakeTransport struct {
	// openErr fails every Open
	openErr error

	// ignoreCtx makes sources keep blocking after the stream context is cancelled,
	// like a network read that completes anyway
	ignoreCtx bool

	mu      sync.Mutex
	feeds   []feed
	sources []*fakeSource
	opens   atomic.Int32
}

func (t *fakeTransport) queue(f feed) *fakeTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.feeds = append(t.feeds, f)
	return t
}

func (t *fakeTransport) Name() TransportID {
	return TransportFetch
}

func (t *fakeTransport) Open(ctx context.Context, req *StreamRequest) (Source, error) {
	t.opens.Add(1)
	if t.openErr != nil {
		return nil, t.openErr
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	f := newFeed()
	if len(t.feeds) > 0 {
		f = t.feeds[0]
		t.feeds = t.feeds[1:]
	}
	src := &fakeSource{ctx: ctx, feed: f, ignoreCtx: t.ignoreCtx}
	t.sources = append(t.sources, src)
	return src, nil
}

func (t *fakeTransport) source(i int) *fakeSource {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i >= len(t.sources) {
		return nil
	}
	return t.sources[i]
}

type fakeSource struct {
	ctx       context.Context
	feed      feed
	ignoreCtx bool
	closed    atomic.Bool
}

func (s *fakeSource) Next() (Chunk, error) {
	if s.ignoreCtx {
		st, ok := <-s.feed
		if !ok {
			return Chunk{}, io.EOF
		}
		return st.chunk, st.err
	}

	select {
	case <-s.ctx.Done():
		return Chunk{}, s.ctx.Err()
	case st, ok := <-s.feed:
		if !ok {
			return Chunk{}, io.EOF
		}
		return st.chunk, st.err
	}
}

func (s *fakeSource) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *fakeSource) StatusCode() int {
	return 200
}

// testRequest is a JSON streaming request to a dummy backend.
func testRequest() *StreamRequest {
	req, err := NewJSONRequest("http://backend.test/v1/chatqna", []byte(`{"messages":"hi"}`), nil)
	if err != nil {
		panic(err)
	}
	return req
}

// recorder collects observer snapshots.
type recorder struct {
	mu        sync.Mutex
	snapshots []string
}

func (r *recorder) observe(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, text)
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.snapshots...)
}
