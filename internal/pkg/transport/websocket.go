package transport

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

const closeGracePeriod = time.Second

// WebSocket is a Transport over a single websocket connection.
// Frames are carried as text messages, one JSON object per message.
type WebSocket struct {
	conn   *websocket.Conn
	frames chan []byte

	writeMu sync.Mutex
	once    sync.Once

	errMu sync.Mutex
	err   error
}

// DialWebSocket opens a websocket Transport to the given endpoint.
func DialWebSocket(ctx context.Context, url string) (Transport, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s failed", url)
	}
	ws := &WebSocket{
		conn:   conn,
		frames: make(chan []byte, 16),
	}
	go ws.readLoop()
	return ws, nil
}

func (ws *WebSocket) readLoop() {
	defer close(ws.frames)
	for {
		_, data, err := ws.conn.ReadMessage()
		if err != nil {
			ws.setErr(err)
			_ = ws.conn.Close()
			return
		}
		ws.frames <- data
	}
}

// Send writes one outbound text frame.
func (ws *WebSocket) Send(frame []byte) error {
	ws.writeMu.Lock()
	defer ws.writeMu.Unlock()
	if err := ws.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return errors.Wrap(err, "write frame failed")
	}
	return nil
}

// Frames returns the inbound frame stream.
func (ws *WebSocket) Frames() <-chan []byte {
	return ws.frames
}

// Err returns the cause of death, normalized so a clean peer close reads nil.
func (ws *WebSocket) Err() error {
	ws.errMu.Lock()
	defer ws.errMu.Unlock()
	if websocket.IsCloseError(ws.err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil
	}
	return ws.err
}

// Close sends a close control message, then tears the connection down.
func (ws *WebSocket) Close() error {
	ws.once.Do(func() {
		ws.writeMu.Lock()
		_ = ws.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGracePeriod),
		)
		ws.writeMu.Unlock()
		_ = ws.conn.Close()
	})
	return nil
}

func (ws *WebSocket) setErr(err error) {
	ws.errMu.Lock()
	defer ws.errMu.Unlock()
	if ws.err == nil {
		ws.err = err
	}
}
