// Package chat implements the resilient chat socket client.
//
// A Client owns one logical connection to a chat server and keeps it alive
// across transient failures:
//	1. Boot picks the next endpoint (round-robin) and dials a fresh transport.
//	2. The server confirms the transport with a WelcomeEvent; the client then
//	   re-authenticates with any saved credentials and drains the spool queue.
//	3. Requests issued while disconnected are spooled, keyed by method name;
//	   a second request for the same method replaces the first (the collapsed
//	   caller's handle is rejected rather than left dangling).
//	4. Replies are correlated to in-flight calls by id; calls that see no
//	   reply within their deadline fail with a timeout and a late reply is
//	   reported as an unmatched-reply error.
//	5. If no inbound frame arrives for the ping interval, a liveness probe is
//	   sent; a probe timeout force-closes the transport.
//	6. A dropped transport schedules a reconnect with exponential backoff,
//	   unless auto-reconnect is disabled or Close was requested.
//
// Every transport instance is tagged with a generation number. Callbacks and
// timers carry the generation they were created under and are discarded when
// the client has since moved to a newer transport, so a stale transport can
// never corrupt the state of its successor.
//
// Consumers observe the client through named notifications (open, ready,
// reconnecting, reconnected, connected, spooled, closed, error, debug) and
// every server-pushed event re-emitted under its protocol name.
package chat
