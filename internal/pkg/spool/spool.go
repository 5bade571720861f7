// Package spool buffers outbound requests issued while disconnected.
//
// Entries are keyed by method name: spooling the same method twice before a
// reconnect collapses both into the newer payload. The superseded caller's
// handle is rejected with ErrSuperseded so it is not left dangling, but only
// the surviving entry is replayed. Entries drain in original insertion order
// once the connection is re-established and re-authenticated.
package spool

import (
	"sync"

	"github.com/ExoZoneDev/mixer-chat/internal/pkg/future"
)

// Entry is a buffered outbound request.
type Entry struct {
	Method  string
	Payload []byte
	Handle  *future.Handle
}

// Queue is a method-name-keyed FIFO of spooled requests.
type Queue struct {
	mu      sync.Mutex
	order   []string
	entries map[string]*Entry
}

// NewQueue creates an empty Queue.
func NewQueue() *Queue {
	return &Queue{
		entries: make(map[string]*Entry),
	}
}

// Put spools a request under its method name, collapsing onto any existing
// entry for the same method. The collapsed entry keeps its original position
// in the drain order. Returns the superseded entry's handle, if any; the
// caller is responsible for rejecting it.
func (q *Queue) Put(method string, payload []byte, handle *future.Handle) *future.Handle {
	q.mu.Lock()
	defer q.mu.Unlock()
	var superseded *future.Handle
	if existing, ok := q.entries[method]; ok {
		superseded = existing.Handle
	} else {
		q.order = append(q.order, method)
	}
	q.entries[method] = &Entry{
		Method:  method,
		Payload: payload,
		Handle:  handle,
	}
	return superseded
}

// Restore returns undelivered drained entries to the queue, ahead of anything
// spooled since the drain and in their original order. An entry whose method
// was re-spooled in the meantime is dropped so the newer payload survives;
// its handle is returned and the caller is responsible for rejecting it.
func (q *Queue) Restore(entries []*Entry) []*future.Handle {
	q.mu.Lock()
	defer q.mu.Unlock()
	var superseded []*future.Handle
	restored := make([]string, 0, len(entries))
	for _, entry := range entries {
		if _, ok := q.entries[entry.Method]; ok {
			superseded = append(superseded, entry.Handle)
			continue
		}
		q.entries[entry.Method] = entry
		restored = append(restored, entry.Method)
	}
	q.order = append(restored, q.order...)
	return superseded
}

// Drain removes and returns all entries in insertion order.
func (q *Queue) Drain() []*Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	drained := make([]*Entry, 0, len(q.order))
	for _, method := range q.order {
		drained = append(drained, q.entries[method])
	}
	q.order = nil
	q.entries = make(map[string]*Entry)
	return drained
}

// Len returns the number of spooled entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}
