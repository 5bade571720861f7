// Package server implements a chat server speaking the wire protocol,
// used by the demo CLI and the integration tests.
//
// The server performs the following steps:
//	1. Accepts websocket connections on /chat and sends a WelcomeEvent to
//	   confirm the transport is protocol-ready.
//	2. Answers auth methods: the first argument selects the channel; user id
//	   and auth key are optional for an anonymous join.
//	3. Answers ping methods, which the client uses as liveness probes.
//	4. Answers msg methods with a delivery reply and broadcasts a ChatMessage
//	   event to every connection in the same channel.
//
// State is held in memory per connection; there is no persistence. The auth
// key "invalid" is always rejected so clients can exercise their
// authentication failure handling.
package server
