package chat

import (
	"context"
	"time"

	"github.com/ExoZoneDev/mixer-chat/internal/pkg/transport"
	"github.com/ExoZoneDev/mixer-chat/internal/pkg/wire"

	"github.com/pkg/errors"
)

// Keepalive: every inbound frame rearms the idle timer. When it expires on a
// connected socket a ping is raced against the probe timeout; losing the race
// force-closes the transport, which drives the normal reconnect path. When it
// expires before the handshake completes, the connection is treated as dead
// without sending a probe.

// resetIdleTimerLocked rearms the idle timer for the given transport
// generation; callers must hold mu.
func (c *Client) resetIdleTimerLocked(gen uint64) {
	if c.idleTimer != nil {
		c.idleTimer.Stop()
	}
	c.idleTimer = time.AfterFunc(c.pingInterval, func() {
		c.idleExpired(gen)
	})
}

func (c *Client) stopIdleTimerLocked() {
	if c.idleTimer != nil {
		c.idleTimer.Stop()
		c.idleTimer = nil
	}
}

func (c *Client) idleExpired(gen uint64) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	tr := c.tr
	switch c.state {
	case Connected:
		c.mu.Unlock()
		c.probe(gen, tr)
	case Connecting:
		c.mu.Unlock()
		c.emitter.Emit(NotifyError, errors.Wrap(ErrPingTimeout, "idle before handshake"))
		if tr != nil {
			_ = tr.Close()
		}
	default:
		// closing or already torn down; the close path owns the transport
		c.mu.Unlock()
	}
}

// probe sends a liveness ping and force-closes the transport when no response
// arrives within the probe timeout.
func (c *Client) probe(gen uint64, tr transport.Transport) {
	_, err := c.Call(context.Background(), wire.MethodPing, nil, Force(), WithTimeout(c.pingTimeout))

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	if err == nil {
		// the reply already rearmed the idle timer via the inbound path
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	logger.WithField("id", c.id.String()).Warn("liveness probe failed, forcing close")
	c.emitter.Emit(NotifyError, errors.Wrap(ErrPingTimeout, err.Error()))
	_ = tr.Close()
}
