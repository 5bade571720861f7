package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ExoZoneDev/mixer-chat/internal/pkg/future"
	"github.com/ExoZoneDev/mixer-chat/internal/pkg/spool"
	"github.com/ExoZoneDev/mixer-chat/internal/pkg/transport"
	"github.com/ExoZoneDev/mixer-chat/internal/pkg/wire"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

const testWait = 2 * time.Second

// fakeTransport is a scriptable in-memory transport.
type fakeTransport struct {
	frames chan []byte
	sent   chan []byte

	mu       sync.Mutex
	autoDrop bool
	closed   bool
	dropped  bool
	err      error
}

func newFakeTransport(autoDrop bool) *fakeTransport {
	return &fakeTransport{
		frames:   make(chan []byte, 64),
		sent:     make(chan []byte, 64),
		autoDrop: autoDrop,
	}
}

func (f *fakeTransport) Send(frame []byte) error {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return errors.New("transport closed")
	}
	f.sent <- frame
	return nil
}

func (f *fakeTransport) Frames() <-chan []byte { return f.frames }

func (f *fakeTransport) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closed = true
	drop := f.autoDrop && !f.dropped
	f.mu.Unlock()
	if drop {
		f.drop(nil)
	}
	return nil
}

// drop ends the frame stream with the given cause, as if the peer vanished.
func (f *fakeTransport) drop(cause error) {
	f.mu.Lock()
	if f.dropped {
		f.mu.Unlock()
		return
	}
	f.dropped = true
	f.err = cause
	f.mu.Unlock()
	close(f.frames)
}

func (f *fakeTransport) push(t *testing.T, frame string) {
	t.Helper()
	f.frames <- []byte(frame)
}

func (f *fakeTransport) welcome(t *testing.T) {
	t.Helper()
	f.push(t, `{"type":"event","event":"WelcomeEvent","data":{}}`)
}

// nextSent decodes the next outbound method frame.
func (f *fakeTransport) nextSent(t *testing.T) *wire.Method {
	t.Helper()
	select {
	case frame := <-f.sent:
		pkt, err := wire.Decode(frame)
		require.NoError(t, err)
		m, ok := pkt.(*wire.Method)
		require.True(t, ok, "expected a method frame")
		return m
	case <-time.After(testWait):
		t.Fatal("no outbound frame")
		return nil
	}
}

func (f *fakeTransport) reply(t *testing.T, id uint32, data string) {
	t.Helper()
	f.push(t, fmt.Sprintf(`{"type":"reply","id":%d,"data":%s}`, id, data))
}

// fakeDialer hands out fresh fake transports and records them.
type fakeDialer struct {
	autoDrop bool
	dialed   chan *fakeTransport
}

func newFakeDialer(autoDrop bool) *fakeDialer {
	return &fakeDialer{
		autoDrop: autoDrop,
		dialed:   make(chan *fakeTransport, 8),
	}
}

func (d *fakeDialer) dial(context.Context, string) (transport.Transport, error) {
	tr := newFakeTransport(d.autoDrop)
	d.dialed <- tr
	return tr, nil
}

func (d *fakeDialer) next(t *testing.T) *fakeTransport {
	t.Helper()
	select {
	case tr := <-d.dialed:
		return tr
	case <-time.After(testWait):
		t.Fatal("no transport dialed")
		return nil
	}
}

// recorder captures notifications on a channel per name.
type recorder struct {
	ch chan interface{}
}

func record(c *Client, name string) *recorder {
	r := &recorder{ch: make(chan interface{}, 16)}
	c.On(name, func(payload interface{}) {
		r.ch <- payload
	})
	return r
}

func (r *recorder) wait(t *testing.T) interface{} {
	t.Helper()
	select {
	case payload := <-r.ch:
		return payload
	case <-time.After(testWait):
		t.Fatal("notification not emitted")
		return nil
	}
}

func (r *recorder) none(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case payload := <-r.ch:
		t.Fatalf("unexpected notification: %v", payload)
	case <-time.After(within):
	}
}

func newTestClient(t *testing.T, dialer *fakeDialer, cfgs ...Cfg) *Client {
	t.Helper()
	all := append([]Cfg{
		WithEndpoints("ws://one/chat", "ws://two/chat"),
		WithDialer(dialer.dial),
	}, cfgs...)
	c, err := NewClient(all...)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func awaitState(t *testing.T, c *Client, want State) {
	t.Helper()
	deadline := time.Now().Add(testWait)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state %s, want %s", c.State(), want)
}

func TestEndpointRotation(t *testing.T) {
	urls := []string{"a", "b", "c"}
	set := newEndpointSet(urls)
	start := set.offset
	var picked []string
	for i := 0; i < len(urls); i++ {
		picked = append(picked, set.next())
	}
	// full cycle with no repeats, beginning one past the random start
	require.ElementsMatch(t, urls, picked)
	require.Equal(t, urls[(start+1)%len(urls)], picked[0])
	// and the cycle repeats identically
	require.Equal(t, picked[0], set.next())
}

func TestBootHandshake(t *testing.T) {
	dialer := newFakeDialer(true)
	c := newTestClient(t, dialer)
	ready := record(c, NotifyReady)
	connected := record(c, NotifyConnected)

	c.Boot()
	tr := dialer.next(t)
	awaitState(t, c, Connecting)
	tr.welcome(t)
	ready.wait(t)
	connected.wait(t)
	awaitState(t, c, Connected)
}

func TestBootWhileConnectingIsNoOp(t *testing.T) {
	dialer := newFakeDialer(true)
	c := newTestClient(t, dialer)
	c.Boot().Boot()
	dialer.next(t)
	select {
	case <-dialer.dialed:
		t.Fatal("second transport dialed")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCallResolved(t *testing.T) {
	dialer := newFakeDialer(true)
	c := newTestClient(t, dialer)
	c.Boot()
	tr := dialer.next(t)
	tr.welcome(t)
	awaitState(t, c, Connected)

	type result struct {
		data json.RawMessage
		err  error
	}
	done := make(chan result, 1)
	go func() {
		data, err := c.Call(context.Background(), "msg", []interface{}{"hello"})
		done <- result{data, err}
	}()

	m := tr.nextSent(t)
	require.Equal(t, "msg", m.Method)
	tr.reply(t, m.ID, `{"delivered":true}`)

	res := <-done
	require.NoError(t, res.err)
	require.JSONEq(t, `{"delivered":true}`, string(res.data))
}

func TestCallReplyError(t *testing.T) {
	dialer := newFakeDialer(true)
	c := newTestClient(t, dialer)
	c.Boot()
	tr := dialer.next(t)
	tr.welcome(t)
	awaitState(t, c, Connected)

	done := make(chan error, 1)
	go func() {
		_, err := c.Call(context.Background(), "msg", []interface{}{"hello"})
		done <- err
	}()
	m := tr.nextSent(t)
	tr.push(t, fmt.Sprintf(`{"type":"reply","id":%d,"error":"UNOTFOUND"}`, m.ID))

	err := <-done
	require.Error(t, err)
	var replyErr *ReplyError
	require.ErrorAs(t, err, &replyErr)
}

func TestCallTimeoutThenLateReply(t *testing.T) {
	dialer := newFakeDialer(true)
	c := newTestClient(t, dialer)
	errs := record(c, NotifyError)
	c.Boot()
	tr := dialer.next(t)
	tr.welcome(t)
	awaitState(t, c, Connected)

	done := make(chan error, 1)
	go func() {
		_, err := c.Call(context.Background(), "foo", nil, WithTimeout(50*time.Millisecond))
		done <- err
	}()
	m := tr.nextSent(t)

	err := <-done
	require.True(t, errors.Is(err, ErrCallTimeout))

	// the late reply must not resolve anyone; it is reported as unmatched
	tr.reply(t, m.ID, `"late"`)
	payload := errs.wait(t)
	reported, ok := payload.(error)
	require.True(t, ok)
	require.Contains(t, reported.Error(), "no pending call")
}

func TestCallNoReply(t *testing.T) {
	dialer := newFakeDialer(true)
	c := newTestClient(t, dialer)
	c.Boot()
	tr := dialer.next(t)
	tr.welcome(t)
	awaitState(t, c, Connected)

	data, err := c.Call(context.Background(), "msg", []interface{}{"hi"}, NoReply())
	require.NoError(t, err)
	require.Nil(t, data)
	require.Equal(t, "msg", tr.nextSent(t).Method)
}

func TestSpoolCollapseSameMethod(t *testing.T) {
	dialer := newFakeDialer(true)
	c := newTestClient(t, dialer)
	spooled := record(c, NotifySpooled)

	first := c.send("msg", []byte(`{"type":"method","id":1,"method":"msg","arguments":["one"]}`), false)
	spooled.wait(t)
	second := c.send("msg", []byte(`{"type":"method","id":2,"method":"msg","arguments":["two"]}`), false)
	spooled.wait(t)

	// the first caller is informed it was collapsed away
	<-first.Done()
	_, err := first.Result()
	require.True(t, errors.Is(err, spool.ErrSuperseded))
	require.Equal(t, 1, c.queue.Len())

	connected := record(c, NotifyConnected)
	c.Boot()
	tr := dialer.next(t)
	tr.welcome(t)

	// exactly one flush, carrying the second payload
	m := tr.nextSent(t)
	require.Equal(t, uint32(2), m.ID)
	require.Equal(t, []interface{}{"two"}, m.Arguments)
	connected.wait(t)

	<-second.Done()
	_, err = second.Result()
	require.NoError(t, err)
}

func TestRequeueKeepsNewerSpooledEntry(t *testing.T) {
	dialer := newFakeDialer(true)
	c := newTestClient(t, dialer)

	// a newer request for the same method arrives while an interrupted drain
	// still holds the older entry
	newer := c.send("msg", []byte(`{"type":"method","id":2,"method":"msg","arguments":["newer"]}`), false)
	older := &spool.Entry{
		Method:  "msg",
		Payload: []byte(`{"type":"method","id":1,"method":"msg","arguments":["older"]}`),
		Handle:  future.New(),
	}
	c.requeue([]*spool.Entry{older})

	// latest wins: the older caller is informed, the newer payload survives
	<-older.Handle.Done()
	_, err := older.Handle.Result()
	require.True(t, errors.Is(err, spool.ErrSuperseded))
	require.Equal(t, 1, c.queue.Len())

	c.Boot()
	tr := dialer.next(t)
	tr.welcome(t)
	m := tr.nextSent(t)
	require.Equal(t, []interface{}{"newer"}, m.Arguments)

	<-newer.Done()
	_, err = newer.Result()
	require.NoError(t, err)
}

func TestReconnectReplaysAuthThenSpoolInOrder(t *testing.T) {
	dialer := newFakeDialer(true)
	c := newTestClient(t, dialer)

	authHandle := c.Auth(Credentials{ChannelID: 12, UserID: 34, AuthKey: "key"})
	c.send("msg", []byte(`{"type":"method","id":90,"method":"msg","arguments":["queued"]}`), false)
	c.send("vote", []byte(`{"type":"method","id":91,"method":"vote","arguments":["a"]}`), false)

	connected := record(c, NotifyConnected)
	authResult := record(c, wire.EventAuthResult)
	c.Boot()
	tr := dialer.next(t)
	tr.welcome(t)

	// re-auth goes out first
	auth := tr.nextSent(t)
	require.Equal(t, wire.MethodAuth, auth.Method)
	require.Equal(t, []interface{}{float64(12), float64(34), "key"}, auth.Arguments)
	connected.none(t, 50*time.Millisecond)
	tr.reply(t, auth.ID, `{"authenticated":true}`)
	authResult.wait(t)

	// then the spool drains in insertion order, and only then connected fires
	require.Equal(t, "msg", tr.nextSent(t).Method)
	require.Equal(t, "vote", tr.nextSent(t).Method)
	connected.wait(t)

	<-authHandle.Done()
	data, err := authHandle.Result()
	require.NoError(t, err)
	require.JSONEq(t, `{"authenticated":true}`, string(data.(json.RawMessage)))
}

func TestAuthFailureOnReconnectClosesSocket(t *testing.T) {
	dialer := newFakeDialer(true)
	c := newTestClient(t, dialer)
	errs := record(c, NotifyError)
	closed := record(c, NotifyClosed)

	c.Auth(Credentials{ChannelID: 12})
	c.Boot()
	tr := dialer.next(t)
	tr.welcome(t)

	auth := tr.nextSent(t)
	require.Equal(t, wire.MethodAuth, auth.Method)
	// anonymous form carries only the channel id
	require.Equal(t, []interface{}{float64(12)}, auth.Arguments)
	tr.push(t, fmt.Sprintf(`{"type":"reply","id":%d,"error":"access denied"}`, auth.ID))

	payload := errs.wait(t)
	err, ok := payload.(error)
	require.True(t, ok)
	require.True(t, errors.Is(err, ErrAuthFailed))
	closed.wait(t)
	awaitState(t, c, Closed)
}

func TestAuthWhenConnected(t *testing.T) {
	dialer := newFakeDialer(true)
	c := newTestClient(t, dialer)
	c.Boot()
	tr := dialer.next(t)
	tr.welcome(t)
	awaitState(t, c, Connected)

	handle := c.Auth(Credentials{ChannelID: 5})
	auth := tr.nextSent(t)
	require.Equal(t, wire.MethodAuth, auth.Method)
	tr.reply(t, auth.ID, `{"authenticated":false}`)
	<-handle.Done()
	_, err := handle.Result()
	require.NoError(t, err)
}

func TestCloseWithoutTransport(t *testing.T) {
	dialer := newFakeDialer(true)
	c := newTestClient(t, dialer)
	closed := record(c, NotifyClosed)
	c.Close()
	closed.wait(t)
	require.Equal(t, Closed, c.State())
}

func TestCloseWhileOpen(t *testing.T) {
	dialer := newFakeDialer(true)
	c := newTestClient(t, dialer)
	closed := record(c, NotifyClosed)
	c.Boot()
	tr := dialer.next(t)
	tr.welcome(t)
	awaitState(t, c, Connected)

	c.Close()
	closed.wait(t)
	awaitState(t, c, Closed)
}

func TestBootWhileClosingDefersToRefreshing(t *testing.T) {
	// manual drop: the transport close does not complete until drop is called
	dialer := newFakeDialer(false)
	c := newTestClient(t, dialer)
	c.Boot()
	tr := dialer.next(t)
	tr.welcome(t)
	awaitState(t, c, Connected)

	c.Close()
	require.Equal(t, Closing, c.State())
	c.Boot()
	require.Equal(t, Refreshing, c.State())

	// no second transport until the close completes
	select {
	case <-dialer.dialed:
		t.Fatal("transport dialed while refreshing")
	case <-time.After(50 * time.Millisecond):
	}

	tr.drop(nil)
	next := dialer.next(t)
	next.welcome(t)
	awaitState(t, c, Connected)
}

func TestAutoReconnectAfterDrop(t *testing.T) {
	dialer := newFakeDialer(true)
	c := newTestClient(t, dialer)
	reconnecting := record(c, NotifyReconnecting)
	reconnected := record(c, NotifyReconnected)

	c.Boot()
	first := dialer.next(t)
	first.welcome(t)
	awaitState(t, c, Connected)

	cause := errors.New("connection reset")
	first.drop(cause)

	payload := reconnecting.wait(t)
	info, ok := payload.(ReconnectingInfo)
	require.True(t, ok)
	require.Positive(t, info.Delay)
	require.Equal(t, cause, info.Cause)

	second := dialer.next(t)
	second.welcome(t)
	reconnected.wait(t)
	awaitState(t, c, Connected)
}

func TestNoReconnectWhenDisabled(t *testing.T) {
	dialer := newFakeDialer(true)
	c := newTestClient(t, dialer, WithAutoReconnect(false))
	c.Boot()
	tr := dialer.next(t)
	tr.welcome(t)
	awaitState(t, c, Connected)

	tr.drop(errors.New("gone"))
	awaitState(t, c, Idle)
	select {
	case <-dialer.dialed:
		t.Fatal("reconnect attempted with autoReconnect disabled")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestKeepaliveProbeTimeoutForcesReconnect(t *testing.T) {
	dialer := newFakeDialer(true)
	c := newTestClient(t, dialer,
		WithPingInterval(30*time.Millisecond),
		WithPingTimeout(30*time.Millisecond),
	)
	errs := record(c, NotifyError)
	reconnecting := record(c, NotifyReconnecting)

	c.Boot()
	tr := dialer.next(t)
	tr.welcome(t)
	awaitState(t, c, Connected)

	// silence triggers a probe; leaving it unanswered kills the transport
	probe := tr.nextSent(t)
	require.Equal(t, wire.MethodPing, probe.Method)

	payload := errs.wait(t)
	err, ok := payload.(error)
	require.True(t, ok)
	require.True(t, errors.Is(err, ErrPingTimeout))

	info, ok := reconnecting.wait(t).(ReconnectingInfo)
	require.True(t, ok)
	require.Positive(t, info.Delay)
}

func TestInboundTrafficSuppressesProbe(t *testing.T) {
	dialer := newFakeDialer(true)
	c := newTestClient(t, dialer, WithPingInterval(60*time.Millisecond))
	c.Boot()
	tr := dialer.next(t)
	tr.welcome(t)
	awaitState(t, c, Connected)

	// steady inbound events keep rearming the idle timer
	for i := 0; i < 5; i++ {
		tr.push(t, `{"type":"event","event":"ChatMessage","data":{}}`)
		time.Sleep(20 * time.Millisecond)
	}
	select {
	case frame := <-tr.sent:
		t.Fatalf("unexpected probe: %s", frame)
	default:
	}
}

func TestNoIdleTimeoutWhileClosing(t *testing.T) {
	dialer := newFakeDialer(false)
	c := newTestClient(t, dialer, WithPingInterval(30*time.Millisecond))
	errs := record(c, NotifyError)
	c.Boot()
	tr := dialer.next(t)
	tr.welcome(t)
	awaitState(t, c, Connected)

	c.Close()
	require.Equal(t, Closing, c.State())

	// a straggler frame re-arms the idle timer during the close window; its
	// expiry must not surface a ping timeout on a deliberate close
	tr.push(t, `{"type":"event","event":"ChatMessage","data":{}}`)
	errs.none(t, 100*time.Millisecond)

	tr.drop(nil)
	awaitState(t, c, Closed)
}

func TestMalformedFrameReportedNonFatal(t *testing.T) {
	dialer := newFakeDialer(true)
	c := newTestClient(t, dialer)
	errs := record(c, NotifyError)
	c.Boot()
	tr := dialer.next(t)
	tr.welcome(t)
	awaitState(t, c, Connected)

	tr.push(t, `{"type":`)
	payload := errs.wait(t)
	err, ok := payload.(error)
	require.True(t, ok)
	require.True(t, errors.Is(err, wire.ErrMalformedFrame))
	require.Equal(t, Connected, c.State())

	tr.push(t, `{"type":"banana"}`)
	payload = errs.wait(t)
	err, ok = payload.(error)
	require.True(t, ok)
	require.True(t, errors.Is(err, wire.ErrUnknownPacketType))
	require.Equal(t, Connected, c.State())
}

func TestServerEventsReEmitted(t *testing.T) {
	dialer := newFakeDialer(true)
	c := newTestClient(t, dialer)
	messages := record(c, "ChatMessage")
	c.Boot()
	tr := dialer.next(t)
	tr.welcome(t)

	tr.push(t, `{"type":"event","event":"ChatMessage","data":{"user":"bob","text":"hi"}}`)
	payload := messages.wait(t)
	require.JSONEq(t, `{"user":"bob","text":"hi"}`, string(payload.(json.RawMessage)))
}
