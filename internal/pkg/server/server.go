package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/ExoZoneDev/mixer-chat/internal/pkg/log"
	"github.com/ExoZoneDev/mixer-chat/internal/pkg/wire"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// Server implements a chat server speaking the wire protocol over websockets.
type Server struct {
	addr string

	mu      sync.Mutex
	clients map[uuid.UUID]*client
}

type client struct {
	id      uuid.UUID
	conn    *websocket.Conn
	writeMu sync.Mutex
	channel int
	user    int
}

// Cfg configures a Server.
type Cfg func(*Server) error

// WithListenAddr sets the address the server listens on.
func WithListenAddr(addr string) Cfg {
	return func(s *Server) error {
		s.addr = addr
		return nil
	}
}

// NewServer creates a new Server with the given configuration.
func NewServer(cfgs ...Cfg) (*Server, error) {
	server := &Server{
		clients: make(map[uuid.UUID]*client),
	}
	for _, cfg := range cfgs {
		if err := cfg(server); err != nil {
			return nil, errors.Wrap(err, "apply Server cfg failed")
		}
	}
	return server, nil
}

// Handler returns the HTTP handler serving the chat endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat", s.handleChat)
	return mux
}

// Run serves chat connections until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logger.WithField("addr", s.addr).Info("chat server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "serve failed")
	}
	return nil
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithError(err).Warn("upgrade failed")
		return
	}
	cl := &client{
		id:   uuid.New(),
		conn: conn,
	}
	s.mu.Lock()
	s.clients[cl.id] = cl
	s.mu.Unlock()
	logger.WithField("client", cl.id.String()).Info("new connection established")

	defer func() {
		s.mu.Lock()
		delete(s.clients, cl.id)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	if err := s.sendPacket(cl, wire.NewEvent(wire.EventWelcome, mustJSON(map[string]interface{}{
		"server": "mixer-chat-mock",
	}))); err != nil {
		return
	}

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			logger.WithField("client", cl.id.String()).Info("client disconnected")
			return
		}
		pkt, err := wire.Decode(frame)
		if err != nil {
			logger.WithError(err).Warn("dropping bad frame")
			continue
		}
		logger.WithFields(log.PacketToFields(pkt)).Debug("received packet")
		m, ok := pkt.(*wire.Method)
		if !ok {
			continue
		}
		if err := s.handleMethod(cl, m); err != nil {
			logger.WithError(err).Warn("handle method failed")
			return
		}
	}
}

func (s *Server) handleMethod(cl *client, m *wire.Method) error {
	switch m.Method {
	case wire.MethodAuth:
		return s.handleAuth(cl, m)
	case wire.MethodPing:
		return s.sendPacket(cl, wire.NewReply(m.ID, mustJSON("pong"), nil))
	case "msg":
		return s.handleMsg(cl, m)
	default:
		return s.sendPacket(cl, wire.NewReply(m.ID, nil, mustJSON("unknown method")))
	}
}

// handleAuth accepts anonymous (channel only) and keyed joins. The key
// "invalid" is rejected, which lets tests and demos exercise the client's
// re-authentication failure path.
func (s *Server) handleAuth(cl *client, m *wire.Method) error {
	if len(m.Arguments) == 0 {
		return s.sendPacket(cl, wire.NewReply(m.ID, nil, mustJSON("channel required")))
	}
	channel, _ := m.Arguments[0].(float64)
	cl.channel = int(channel)
	authenticated := false
	if len(m.Arguments) >= 3 {
		key, _ := m.Arguments[2].(string)
		if key == "invalid" {
			return s.sendPacket(cl, wire.NewReply(m.ID, nil, mustJSON("access denied")))
		}
		user, _ := m.Arguments[1].(float64)
		cl.user = int(user)
		authenticated = true
	}
	return s.sendPacket(cl, wire.NewReply(m.ID, mustJSON(map[string]interface{}{
		"authenticated": authenticated,
		"roles":         []string{},
	}), nil))
}

// handleMsg replies to the sender and broadcasts the message to everyone in
// the same channel.
func (s *Server) handleMsg(cl *client, m *wire.Method) error {
	if cl.user == 0 {
		return s.sendPacket(cl, wire.NewReply(m.ID, nil, mustJSON("not authenticated")))
	}
	var text string
	if len(m.Arguments) > 0 {
		text, _ = m.Arguments[0].(string)
	}
	payload := mustJSON(map[string]interface{}{
		"channel": cl.channel,
		"user":    cl.user,
		"text":    text,
	})
	if err := s.sendPacket(cl, wire.NewReply(m.ID, payload, nil)); err != nil {
		return err
	}
	s.broadcast(cl.channel, wire.NewEvent("ChatMessage", payload))
	return nil
}

func (s *Server) broadcast(channel int, event *wire.Event) {
	s.mu.Lock()
	targets := make([]*client, 0, len(s.clients))
	for _, cl := range s.clients {
		if cl.channel == channel {
			targets = append(targets, cl)
		}
	}
	s.mu.Unlock()
	for _, cl := range targets {
		if err := s.sendPacket(cl, event); err != nil {
			logger.WithField("client", cl.id.String()).WithError(err).Warn("broadcast failed")
		}
	}
}

func (s *Server) sendPacket(cl *client, pkt wire.Packet) error {
	frame, err := wire.Encode(pkt)
	if err != nil {
		return errors.Wrap(err, "encode packet failed")
	}
	cl.writeMu.Lock()
	defer cl.writeMu.Unlock()
	return errors.Wrap(cl.conn.WriteMessage(websocket.TextMessage, frame), "write packet failed")
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Fatalln(err)
	}
	return data
}
