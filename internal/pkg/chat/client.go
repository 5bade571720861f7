package chat

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ExoZoneDev/mixer-chat/internal/pkg/backoff"
	"github.com/ExoZoneDev/mixer-chat/internal/pkg/call"
	"github.com/ExoZoneDev/mixer-chat/internal/pkg/events"
	"github.com/ExoZoneDev/mixer-chat/internal/pkg/future"
	"github.com/ExoZoneDev/mixer-chat/internal/pkg/spool"
	"github.com/ExoZoneDev/mixer-chat/internal/pkg/transport"
	"github.com/ExoZoneDev/mixer-chat/internal/pkg/wire"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

// Default timeouts.
const (
	DefaultCallTimeout  = 20 * time.Second
	DefaultReplyTimeout = 10 * time.Second
	DefaultPingInterval = 15 * time.Second
	DefaultPingTimeout  = 5 * time.Second
)

// Credentials identify a user in a channel. UserID and AuthKey may be left
// zero for an anonymous join. Credentials are retained for the lifetime of
// the client so authentication can be replayed after every reconnect.
type Credentials struct {
	ChannelID int
	UserID    int
	AuthKey   string
}

func (cr Credentials) arguments() []interface{} {
	if cr.UserID == 0 && cr.AuthKey == "" {
		return []interface{}{cr.ChannelID}
	}
	return []interface{}{cr.ChannelID, cr.UserID, cr.AuthKey}
}

// Client is the chat socket state machine. It persists across many transport
// instances, one per connect or reconnect cycle.
type Client struct {
	id   uuid.UUID
	dial transport.Dialer

	mu         sync.Mutex
	state      State
	endpoints  *endpointSet
	tr         transport.Transport
	generation uint64

	emitter *events.Emitter
	calls   *call.Correlator
	queue   *spool.Queue
	policy  backoff.Policy

	autoReconnect bool
	callTimeout   time.Duration
	replyTimeout  time.Duration
	pingInterval  time.Duration
	pingTimeout   time.Duration

	creds       *Credentials
	authPending *future.Handle

	reconnectTimer *time.Timer
	idleTimer      *time.Timer
	everConnected  bool
}

// Cfg configures a Client.
type Cfg func(*Client) error

// WithEndpoints sets the connection endpoints.
func WithEndpoints(urls ...string) Cfg {
	return func(c *Client) error {
		if len(urls) == 0 {
			return ErrNoEndpoints
		}
		c.endpoints = newEndpointSet(urls)
		return nil
	}
}

// WithDialer sets the transport dialer.
func WithDialer(dial transport.Dialer) Cfg {
	return func(c *Client) error {
		c.dial = dial
		return nil
	}
}

// WithAutoReconnect enables or disables automatic reconnection.
func WithAutoReconnect(enabled bool) Cfg {
	return func(c *Client) error {
		c.autoReconnect = enabled
		return nil
	}
}

// WithCallTimeout sets the default per-call reply deadline.
func WithCallTimeout(d time.Duration) Cfg {
	return func(c *Client) error {
		c.callTimeout = d
		return nil
	}
}

// WithReplyTimeout sets the reserved reply-wait budget.
func WithReplyTimeout(d time.Duration) Cfg {
	return func(c *Client) error {
		c.replyTimeout = d
		return nil
	}
}

// WithPingInterval sets the idle period before a liveness probe.
func WithPingInterval(d time.Duration) Cfg {
	return func(c *Client) error {
		c.pingInterval = d
		return nil
	}
}

// WithPingTimeout sets the deadline for a probe response.
func WithPingTimeout(d time.Duration) Cfg {
	return func(c *Client) error {
		c.pingTimeout = d
		return nil
	}
}

// WithReconnectionPolicy sets the backoff policy.
func WithReconnectionPolicy(policy backoff.Policy) Cfg {
	return func(c *Client) error {
		c.policy = policy
		return nil
	}
}

// NewClient creates a new Client with the given configuration.
func NewClient(cfgs ...Cfg) (*Client, error) {
	client := &Client{
		id:            uuid.New(),
		dial:          transport.DialWebSocket,
		state:         Idle,
		emitter:       events.NewEmitter(),
		calls:         call.NewCorrelator(),
		queue:         spool.NewQueue(),
		autoReconnect: true,
		callTimeout:   DefaultCallTimeout,
		replyTimeout:  DefaultReplyTimeout,
		pingInterval:  DefaultPingInterval,
		pingTimeout:   DefaultPingTimeout,
	}
	for _, cfg := range cfgs {
		if err := cfg(client); err != nil {
			return nil, errors.Wrap(err, "apply Client cfg failed")
		}
	}
	if client.endpoints == nil {
		return nil, ErrNoEndpoints
	}
	if client.policy == nil {
		client.policy = backoff.NewExponential(backoff.DefaultBase, backoff.DefaultCap)
	}
	return client, nil
}

// On registers a listener for a notification or server event name.
// The returned function removes the registration.
func (c *Client) On(name string, handler events.Handler) func() {
	return c.emitter.On(name, handler)
}

// Once registers a listener removed after its first invocation.
func (c *Client) Once(name string, handler events.Handler) func() {
	return c.emitter.Once(name, handler)
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetEndpoints replaces the endpoint set and re-randomizes the rotation
// offset. An already-open connection is unaffected.
func (c *Client) SetEndpoints(urls ...string) {
	if len(urls) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endpoints = newEndpointSet(urls)
}

// Boot opens the connection. It returns the receiver so calls can be chained.
//
// Booting while a connect is already in flight is a no-op. Booting while
// Closing defers the connect to Refreshing: the new transport is dialed only
// once the old one has finished closing, so two transports never coexist.
func (c *Client) Boot() *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case Closing:
		c.state = Refreshing
	case Connecting, Connected, Refreshing:
		// already on the way up
	case Reconnecting:
		// short-circuit the backoff delay
		c.stopReconnectTimerLocked()
		c.connectLocked()
	case Idle, Closed:
		c.connectLocked()
	}
	return c
}

// connectLocked starts a new connect cycle; callers must hold mu.
func (c *Client) connectLocked() {
	c.state = Connecting
	c.generation++
	gen := c.generation
	addr := c.endpoints.next()
	logger.WithFields(logrus.Fields{
		"id":         c.id.String(),
		"generation": gen,
		"endpoint":   addr,
	}).Debug("dialing")
	go c.dialTransport(gen, addr)
}

func (c *Client) dialTransport(gen uint64, addr string) {
	tr, err := c.dial(context.Background(), addr)

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		if err == nil {
			_ = tr.Close()
		}
		return
	}
	if err != nil {
		notes := c.transportGoneLocked(err)
		c.mu.Unlock()
		c.post(notes)
		return
	}
	c.tr = tr
	c.resetIdleTimerLocked(gen)
	c.mu.Unlock()

	c.emitter.Emit(NotifyOpen, nil)
	go c.pump(gen, tr)
}

// pump feeds inbound frames to the state machine until the transport dies.
func (c *Client) pump(gen uint64, tr transport.Transport) {
	for frame := range tr.Frames() {
		c.handleFrame(gen, frame)
	}
	c.transportClosed(gen, tr.Err())
}

func (c *Client) handleFrame(gen uint64, frame []byte) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.resetIdleTimerLocked(gen)
	notes := []note{{NotifyDebug, Debug{Dir: "in", Frame: frame}}}

	pkt, err := wire.Decode(frame)
	if err != nil {
		notes = append(notes, note{NotifyError, err})
		c.mu.Unlock()
		c.post(notes)
		return
	}
	switch p := pkt.(type) {
	case *wire.Reply:
		var callErr error
		if isSet(p.Error) {
			callErr = &ReplyError{Raw: p.Error}
		}
		if err := c.calls.Settle(p.ID, p.Data, callErr); err != nil {
			notes = append(notes, note{NotifyError, err})
		}
	case *wire.Event:
		notes = append(notes, c.handleEventLocked(gen, p)...)
	case *wire.Method:
		notes = append(notes, note{NotifyError, ErrUnexpectedMethod})
	}
	c.mu.Unlock()
	c.post(notes)
}

// handleEventLocked processes a server event; callers must hold mu.
func (c *Client) handleEventLocked(gen uint64, p *wire.Event) []note {
	var notes []note
	switch p.Event {
	case wire.EventWelcome:
		if c.state == Connecting {
			wasReconnect := c.everConnected
			c.everConnected = true
			c.state = Connected
			c.policy.Reset()
			logger.WithFields(logrus.Fields{
				"id":         c.id.String(),
				"generation": gen,
			}).Info("handshake complete")
			notes = append(notes, note{NotifyReady, p.Data})
			if wasReconnect {
				notes = append(notes, note{NotifyReconnected, p.Data})
			}
			go c.afterHandshake(gen)
		}
	case wire.EventAuthResult:
		if c.authPending != nil {
			c.authPending.Resolve(p.Data)
			c.authPending = nil
		}
	}
	notes = append(notes, note{p.Event, p.Data})
	return notes
}

// afterHandshake re-authenticates with saved credentials, then drains the
// spool queue in insertion order. The connected notification fires only once
// the queue is empty.
func (c *Client) afterHandshake(gen uint64) {
	c.mu.Lock()
	if gen != c.generation || c.state != Connected {
		c.mu.Unlock()
		return
	}
	creds := c.creds
	c.mu.Unlock()

	if creds != nil {
		data, err := c.Call(context.Background(), wire.MethodAuth, creds.arguments(), Force())
		c.mu.Lock()
		if gen != c.generation {
			c.mu.Unlock()
			return
		}
		pending := c.authPending
		c.authPending = nil
		c.mu.Unlock()
		if err != nil {
			failure := errors.Wrap(ErrAuthFailed, err.Error())
			if pending != nil {
				pending.Reject(failure)
			}
			c.emitter.Emit(NotifyError, failure)
			c.Close()
			return
		}
		if pending != nil {
			pending.Resolve(data)
		}
		c.emitter.Emit(wire.EventAuthResult, data)
	}

	entries := c.queue.Drain()
	for i, entry := range entries {
		c.mu.Lock()
		stale := gen != c.generation
		c.mu.Unlock()
		if stale {
			c.requeue(entries[i:])
			return
		}
		flush := c.send(entry.Method, entry.Payload, true)
		<-flush.Done()
		if _, err := flush.Result(); err != nil {
			c.requeue(entries[i:])
			return
		}
		entry.Handle.Resolve(nil)
	}
	c.emitter.Emit(NotifyConnected, nil)
}

// requeue puts undelivered spool entries back in their original order so the
// next successful handshake replays them. A method re-spooled while the drain
// was in flight keeps its newer payload; the stale entry's caller is rejected.
func (c *Client) requeue(entries []*spool.Entry) {
	for _, superseded := range c.queue.Restore(entries) {
		superseded.Reject(spool.ErrSuperseded)
	}
}

// CallOptions adjust a single call.
type CallOptions struct {
	// Timeout overrides the client's default reply deadline.
	Timeout time.Duration
	// NoReply resolves the call as soon as the send completes.
	NoReply bool
	// Force sends immediately even when not connected, bypassing the spool.
	Force bool
}

// CallOption mutates CallOptions.
type CallOption func(*CallOptions)

// WithTimeout overrides the reply deadline for one call.
func WithTimeout(d time.Duration) CallOption {
	return func(o *CallOptions) {
		o.Timeout = d
	}
}

// NoReply makes the call resolve once sent, without waiting for a reply.
func NoReply() CallOption {
	return func(o *CallOptions) {
		o.NoReply = true
	}
}

// Force sends immediately even while disconnected.
func Force() CallOption {
	return func(o *CallOptions) {
		o.Force = true
	}
}

// Call issues a method call and waits for its reply.
//
// While disconnected the request is spooled (auth excepted) and the reply
// deadline keeps running; the call succeeds only if the connection recovers
// and the server replies in time. On timeout the pending entry is purged, so
// a late reply surfaces as an unmatched-reply error instead of resolving a
// stale caller.
func (c *Client) Call(ctx context.Context, method string, args []interface{}, opts ...CallOption) (json.RawMessage, error) {
	options := CallOptions{Timeout: c.callTimeout}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Timeout <= 0 {
		options.Timeout = c.callTimeout
	}

	id, pending, err := c.calls.Register()
	if err != nil {
		return nil, errors.Wrap(err, "register call failed")
	}
	frame, err := wire.Encode(wire.NewMethod(id, method, args))
	if err != nil {
		c.calls.Purge(id)
		return nil, errors.Wrap(err, "encode call failed")
	}

	sent := c.send(method, frame, options.Force)
	if options.NoReply {
		c.calls.Purge(id)
		if _, err := sent.Wait(ctx); err != nil {
			return nil, err
		}
		return nil, nil
	}

	timer := time.NewTimer(options.Timeout)
	defer timer.Stop()
	sendDone := sent.Done()
	for {
		select {
		case <-pending.Done():
			value, err := pending.Result()
			if err != nil {
				return nil, err
			}
			data, _ := value.(json.RawMessage)
			return data, nil
		case <-sendDone:
			if _, err := sent.Result(); err != nil {
				c.calls.Purge(id)
				return nil, err
			}
			sendDone = nil
		case <-timer.C:
			c.calls.Purge(id)
			return nil, errors.Wrapf(ErrCallTimeout, "method %q", method)
		case <-ctx.Done():
			c.calls.Purge(id)
			return nil, ctx.Err()
		}
	}
}

// send delivers an encoded method frame, spooling it when disconnected.
// The returned handle settles when the frame is sent or flushed, not when it
// is answered.
func (c *Client) send(method string, frame []byte, force bool) *future.Handle {
	handle := future.New()
	c.mu.Lock()
	tr := c.tr
	deliver := (c.state == Connected || force) && tr != nil
	if !deliver {
		if force {
			c.mu.Unlock()
			handle.Reject(ErrNotConnected)
			return handle
		}
		if method == wire.MethodAuth {
			c.mu.Unlock()
			handle.Reject(ErrAuthNotSpooled)
			return handle
		}
		superseded := c.queue.Put(method, frame, handle)
		c.mu.Unlock()
		if superseded != nil {
			superseded.Reject(spool.ErrSuperseded)
		}
		c.emitter.Emit(NotifySpooled, Spooled{Method: method})
		return handle
	}
	c.mu.Unlock()

	c.emitter.Emit(NotifyDebug, Debug{Dir: "out", Frame: frame})
	if err := tr.Send(frame); err != nil {
		handle.Reject(errors.Wrap(err, "send frame failed"))
	} else {
		handle.Resolve(nil)
	}
	return handle
}

// Auth records credentials for this client and authenticates.
//
// When connected, the auth call is issued immediately. Otherwise the saved
// credentials are replayed automatically after the next handshake and the
// returned handle resolves once the authResult notification fires.
func (c *Client) Auth(creds Credentials) *future.Handle {
	handle := future.New()
	c.mu.Lock()
	c.creds = &creds
	if c.state != Connected {
		superseded := c.authPending
		c.authPending = handle
		c.mu.Unlock()
		if superseded != nil {
			superseded.Reject(ErrAuthSuperseded)
		}
		return handle
	}
	c.mu.Unlock()

	go func() {
		data, err := c.Call(context.Background(), wire.MethodAuth, creds.arguments(), Force())
		if err != nil {
			handle.Reject(err)
			return
		}
		handle.Resolve(data)
		c.emitter.Emit(wire.EventAuthResult, data)
	}()
	return handle
}

// Close shuts the connection down.
//
// With a live transport the client transitions to Closing and waits for the
// transport close to complete. Without one it transitions straight to Closed,
// clears every pending timer and emits the closed notification immediately.
func (c *Client) Close() {
	c.mu.Lock()
	c.stopReconnectTimerLocked()
	c.stopIdleTimerLocked()
	if c.tr != nil {
		c.state = Closing
		tr := c.tr
		c.mu.Unlock()
		_ = tr.Close()
		return
	}
	if c.state == Closed {
		c.mu.Unlock()
		return
	}
	notes := c.closeNowLocked()
	c.mu.Unlock()
	c.post(notes)
}

// transportClosed handles the end of a transport's life. Stale generations
// are ignored: a superseded transport cannot affect its successor.
func (c *Client) transportClosed(gen uint64, cause error) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.tr = nil
	notes := c.transportGoneLocked(cause)
	c.mu.Unlock()
	c.post(notes)
}

// transportGoneLocked routes a dead transport to the next state; callers
// must hold mu.
func (c *Client) transportGoneLocked(cause error) []note {
	c.stopIdleTimerLocked()
	var notes []note
	switch c.state {
	case Closing:
		notes = c.closeNowLocked()
	case Refreshing:
		// resume the deferred connect
		c.state = Idle
		c.connectLocked()
	case Closed, Idle:
	default: // Connecting, Connected, Reconnecting
		if !c.autoReconnect {
			c.state = Idle
			break
		}
		c.state = Reconnecting
		delay := c.policy.Next()
		gen := c.generation
		logger.WithFields(logrus.Fields{
			"id":    c.id.String(),
			"delay": delay.String(),
		}).Info("scheduling reconnect")
		notes = append(notes, note{NotifyReconnecting, ReconnectingInfo{Delay: delay, Cause: cause}})
		c.reconnectTimer = time.AfterFunc(delay, func() {
			c.reconnectDelayElapsed(gen)
		})
	}
	return notes
}

func (c *Client) reconnectDelayElapsed(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation || c.state != Reconnecting {
		return
	}
	c.reconnectTimer = nil
	c.connectLocked()
}

// closeNowLocked finishes a close cycle; callers must hold mu.
func (c *Client) closeNowLocked() []note {
	c.state = Closed
	c.generation++
	c.stopReconnectTimerLocked()
	c.stopIdleTimerLocked()
	if c.authPending != nil {
		c.authPending.Reject(ErrClosed)
		c.authPending = nil
	}
	for _, entry := range c.queue.Drain() {
		entry.Handle.Reject(ErrClosed)
	}
	c.calls.FailAll(ErrClosed)
	logger.WithField("id", c.id.String()).Info("socket closed")
	return []note{{NotifyClosed, nil}}
}

func (c *Client) stopReconnectTimerLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

// post emits collected notifications outside the state lock.
func (c *Client) post(notes []note) {
	for _, n := range notes {
		c.emitter.Emit(n.name, n.payload)
	}
}

// isSet reports whether a raw JSON value is present and not null.
func isSet(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}
