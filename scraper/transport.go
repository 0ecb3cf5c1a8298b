package scraper

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
)

// callHeader carries the fetch id from the colly request to the transport.
// It is removed before the request goes out.
const callHeader = "X-Isbnfinder-Call"

// contextTransport ties each outgoing request to the context of the fetch
// that issued it, so deadlines and cancellation interrupt in-flight requests.
// colly builds its own http.Request without a caller context.
type contextTransport struct {
	base http.RoundTripper

	seq   atomic.Uint64
	mu    sync.Mutex
	calls map[string]*boundCall
}

type boundCall struct {
	ctx context.Context

	mu      sync.Mutex
	cleanup []func()
}

func newContextTransport(base http.RoundTripper) *contextTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &contextTransport{base: base, calls: make(map[string]*boundCall)}
}

// bind registers ctx and returns the id to send in callHeader.
// release must be called once the response body has been consumed.
func (t *contextTransport) bind(ctx context.Context) (string, func()) {
	id := strconv.FormatUint(t.seq.Add(1), 10)
	call := &boundCall{ctx: ctx}

	t.mu.Lock()
	t.calls[id] = call
	t.mu.Unlock()

	return id, func() {
		t.mu.Lock()
		delete(t.calls, id)
		t.mu.Unlock()

		call.mu.Lock()
		defer call.mu.Unlock()
		for _, fn := range call.cleanup {
			fn()
		}
		call.cleanup = nil
	}
}

func (t *contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	id := req.Header.Get(callHeader)
	if id == "" {
		return t.base.RoundTrip(req)
	}

	t.mu.Lock()
	call := t.calls[id]
	t.mu.Unlock()

	// The request context already holds the client timeout; the fetch
	// context is layered on top of it.
	ctx := req.Context()
	if call != nil {
		merged, cancel := context.WithCancelCause(ctx)
		stop := context.AfterFunc(call.ctx, func() {
			cancel(context.Cause(call.ctx))
		})
		call.mu.Lock()
		call.cleanup = append(call.cleanup, func() {
			stop()
			cancel(nil)
		})
		call.mu.Unlock()
		ctx = merged
	}

	out := req.Clone(ctx)
	out.Header.Del(callHeader)
	return t.base.RoundTrip(out)
}
