// Package future provides a single-assignment result handle.
//
// A Handle settles exactly once, either with a value or with an error.
// Waiters observe settlement through the Done channel, which makes it easy
// to race a handle against timers and contexts with a plain select; the
// losing branch of such a race is responsible for its own cleanup.
package future

import (
	"context"
	"sync"
)

// Handle is a result that settles exactly once.
type Handle struct {
	mu      sync.Mutex
	done    chan struct{}
	settled bool
	value   interface{}
	err     error
}

// New creates an unsettled Handle.
func New() *Handle {
	return &Handle{done: make(chan struct{})}
}

// Resolve settles the handle with a value.
// It reports whether this call performed the settlement.
func (h *Handle) Resolve(value interface{}) bool {
	return h.settle(value, nil)
}

// Reject settles the handle with an error.
// It reports whether this call performed the settlement.
func (h *Handle) Reject(err error) bool {
	return h.settle(nil, err)
}

func (h *Handle) settle(value interface{}, err error) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.settled {
		return false
	}
	h.settled = true
	h.value = value
	h.err = err
	close(h.done)
	return true
}

// Done returns a channel that is closed once the handle settles.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Result returns the settled value and error.
// It must only be called after Done is closed.
func (h *Handle) Result() (interface{}, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.value, h.err
}

// Wait blocks until the handle settles or the context is done.
func (h *Handle) Wait(ctx context.Context) (interface{}, error) {
	select {
	case <-h.done:
		return h.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
