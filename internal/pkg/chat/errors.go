package chat

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

// ErrNoEndpoints indicates the client was built without any endpoint.
var ErrNoEndpoints = errors.New("no endpoints configured")

// ErrClosed indicates the client was closed while work was outstanding.
var ErrClosed = errors.New("socket closed")

// ErrNotConnected indicates a forced send found no live transport.
var ErrNotConnected = errors.New("not connected")

// ErrCallTimeout indicates a call's reply deadline elapsed.
var ErrCallTimeout = errors.New("call timed out")

// ErrPingTimeout indicates a liveness probe received no response in time.
var ErrPingTimeout = errors.New("ping timed out")

// ErrAuthNotSpooled indicates an auth request was issued while disconnected.
// Authentication is never spooled; saved credentials are replayed on reconnect.
var ErrAuthNotSpooled = errors.New("auth is not spooled")

// ErrAuthSuperseded indicates a deferred auth was replaced by a newer attempt.
var ErrAuthSuperseded = errors.New("superseded by newer auth attempt")

// ErrAuthFailed indicates re-authentication after a reconnect was rejected.
// The client closes and does not retry; the caller must authenticate again.
var ErrAuthFailed = errors.New("re-authentication failed")

// ErrUnexpectedMethod indicates the server sent a method frame, which the
// protocol reserves for the client side.
var ErrUnexpectedMethod = errors.New("unexpected method frame from server")

// ReplyError carries the error half of a reply frame.
type ReplyError struct {
	Raw json.RawMessage
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("call rejected: %s", string(e.Raw))
}
