// Package call tracks in-flight request ids and their pending result handles.
//
// Ids are allocated from a monotonic counter with wraparound, checked against
// the live pending set so an id is never reused while its call is still in
// flight. Settling, purging and failing all look up strictly by id, so a
// reply is only ever delivered to the call that issued it.
package call

import (
	"math"
	"sync"

	"github.com/ExoZoneDev/mixer-chat/internal/pkg/future"

	"github.com/pkg/errors"
)

// Correlator matches replies to pending calls by id.
type Correlator struct {
	mu      sync.Mutex
	next    uint32
	pending map[uint32]*future.Handle
}

// NewCorrelator creates an empty Correlator.
func NewCorrelator() *Correlator {
	return &Correlator{
		pending: make(map[uint32]*future.Handle),
	}
}

// Register allocates a fresh id and records a pending handle for it.
func (c *Correlator) Register() (uint32, *future.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if uint64(len(c.pending)) >= math.MaxUint32 {
		return 0, nil, ErrIDSpaceExhausted
	}
	// advance past any id still in flight; bounded by the pending count
	for i := 0; ; i++ {
		if i > len(c.pending) {
			return 0, nil, ErrIDSpaceExhausted
		}
		c.next++
		if _, live := c.pending[c.next]; !live {
			break
		}
	}
	id := c.next
	handle := future.New()
	c.pending[id] = handle
	return id, handle, nil
}

// Settle resolves or rejects the pending call with the given id and removes it.
// Returns ErrNoPendingCall if the id is unknown, which indicates a duplicate,
// stale or mis-addressed reply.
func (c *Correlator) Settle(id uint32, value interface{}, err error) error {
	c.mu.Lock()
	handle, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if !ok {
		return errors.Wrapf(ErrNoPendingCall, "id %d", id)
	}
	if err != nil {
		handle.Reject(err)
	} else {
		handle.Resolve(value)
	}
	return nil
}

// Purge removes the pending call with the given id without settling its
// handle. Used by the timeout path, which settles the caller itself; a reply
// arriving after the purge is reported as unmatched.
func (c *Correlator) Purge(id uint32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[id]; !ok {
		return false
	}
	delete(c.pending, id)
	return true
}

// FailAll rejects every pending call with the given error and clears the set.
func (c *Correlator) FailAll(err error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[uint32]*future.Handle)
	c.mu.Unlock()
	for _, handle := range pending {
		handle.Reject(err)
	}
}

// Len returns the number of calls currently in flight.
func (c *Correlator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
