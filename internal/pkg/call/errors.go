package call

import "github.com/pkg/errors"

// ErrNoPendingCall indicates a reply for an id with no registered pending call.
var ErrNoPendingCall = errors.New("no pending call")

// ErrIDSpaceExhausted indicates that no free correlation id could be allocated.
var ErrIDSpaceExhausted = errors.New("correlation id space exhausted")
