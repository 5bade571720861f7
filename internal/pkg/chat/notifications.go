package chat

import "time"

// Notification names emitted to consumers. Server-pushed events are re-emitted
// under their own protocol names alongside these.
const (
	// NotifyOpen fires when a transport is established, before the handshake.
	NotifyOpen = "open"
	// NotifyReady fires when the handshake completes and the connection is usable.
	NotifyReady = "ready"
	// NotifyReconnecting fires when a reconnect is scheduled; payload ReconnectingInfo.
	NotifyReconnecting = "reconnecting"
	// NotifyReconnected fires on handshake completion after a prior disconnect.
	NotifyReconnected = "reconnected"
	// NotifyConnected fires once the spool queue has fully drained.
	NotifyConnected = "connected"
	// NotifySpooled fires when a request is queued due to disconnection; payload Spooled.
	NotifySpooled = "spooled"
	// NotifyClosed fires when a close cycle reaches its terminal state.
	NotifyClosed = "closed"
	// NotifyError fires on any non-fatal fault; payload error.
	NotifyError = "error"
	// NotifyDebug fires for every raw frame in either direction; payload Debug.
	NotifyDebug = "debug"
)

// ReconnectingInfo is the payload of NotifyReconnecting.
type ReconnectingInfo struct {
	Delay time.Duration
	Cause error
}

// Spooled is the payload of NotifySpooled.
type Spooled struct {
	Method string
}

// Debug is the payload of NotifyDebug.
type Debug struct {
	Dir   string // "in" or "out"
	Frame []byte
}

// note is a notification collected under the state lock and emitted after it
// is released, so listeners can safely call back into the client.
type note struct {
	name    string
	payload interface{}
}
