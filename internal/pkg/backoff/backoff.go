// Package backoff implements the reconnection delay policy.
package backoff

import (
	"math/rand"
	"sync"
	"time"
)

// Policy computes the delay before the next connection attempt.
//
// Next may be called repeatedly without an intervening Reset; the possible
// delay range grows until it hits the cap. Reset is called exactly once per
// successful handshake and zeroes the accumulated growth.
type Policy interface {
	Next() time.Duration
	Reset()
}

// Default policy parameters.
const (
	DefaultBase = 500 * time.Millisecond
	DefaultCap  = 20 * time.Second
)

// Exponential is a Policy that doubles the delay window on every attempt,
// with equal jitter: each delay is drawn from [window/2, window).
type Exponential struct {
	mu      sync.Mutex
	base    time.Duration
	cap     time.Duration
	attempt uint
	rng     *rand.Rand
}

// NewExponential creates an exponential policy with the given base and cap.
// Non-positive parameters fall back to the defaults.
func NewExponential(base, cap time.Duration) *Exponential {
	if base <= 0 {
		base = DefaultBase
	}
	if cap <= 0 {
		cap = DefaultCap
	}
	return &Exponential{
		base: base,
		cap:  cap,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the delay before the next connection attempt.
func (e *Exponential) Next() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	window := e.base << e.attempt
	if window <= 0 || window > e.cap {
		window = e.cap
	} else {
		e.attempt++
	}
	half := window / 2
	return half + time.Duration(e.rng.Int63n(int64(half)+1))
}

// Reset zeroes the attempt counter after a successful handshake.
func (e *Exponential) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attempt = 0
}
