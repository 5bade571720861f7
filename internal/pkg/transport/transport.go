// Package transport provides the duplex frame transport under the chat client.
//
// A Transport is one live connection: the client creates a fresh instance per
// connect attempt and never reuses one after it dies. Death is observed as
// the Frames channel closing; Err then reports the cause.
package transport

import "context"

// Transport is a single duplex frame connection.
type Transport interface {
	// Send writes one outbound frame.
	Send(frame []byte) error

	// Frames returns the inbound frame stream. The channel is closed when
	// the transport dies, whether by error or local Close.
	Frames() <-chan []byte

	// Err returns the cause of death. Valid once Frames is closed.
	Err() error

	// Close tears the connection down. Safe to call more than once.
	Close() error
}

// Dialer opens a Transport to the given endpoint.
type Dialer func(ctx context.Context, url string) (Transport, error)
