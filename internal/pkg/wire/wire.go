// Package wire implements the chat protocol frame codec.
//
// Every frame is a single JSON object tagged by its "type" field:
//
//	method: { "type": "method", "id": 1, "method": "msg", "arguments": ["hi"] }
//	reply:  { "type": "reply",  "id": 1, "data": {...} } or { ..., "error": {...} }
//	event:  { "type": "event",  "event": "ChatMessage", "data": {...} }
//
// A method carries a locally unique id; the matching reply carries the same id.
// Events are server pushes and carry no id.
package wire

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Frame type tags.
const (
	TypeMethod = "method"
	TypeReply  = "reply"
	TypeEvent  = "event"
)

// Protocol event and method names with special meaning during the handshake.
const (
	EventWelcome    = "WelcomeEvent"
	EventAuthResult = "authResult"
	MethodAuth      = "auth"
	MethodPing      = "ping"
)

// Packet is the tagged union of decoded frames.
type Packet interface {
	packet()
}

// Method is a client request, optionally expecting a Reply with the same id.
type Method struct {
	Type      string        `json:"type"`
	ID        uint32        `json:"id"`
	Method    string        `json:"method"`
	Arguments []interface{} `json:"arguments"`
}

// Reply answers a Method. Exactly one of Data and Error is meaningful.
type Reply struct {
	Type  string          `json:"type"`
	ID    uint32          `json:"id"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error json.RawMessage `json:"error,omitempty"`
}

// Event is a server push, re-emitted to listeners under its name.
type Event struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func (*Method) packet() {}
func (*Reply) packet()  {}
func (*Event) packet()  {}

// NewMethod creates a method packet with the given id, name and arguments.
func NewMethod(id uint32, method string, arguments []interface{}) *Method {
	if arguments == nil {
		arguments = []interface{}{}
	}
	return &Method{
		Type:      TypeMethod,
		ID:        id,
		Method:    method,
		Arguments: arguments,
	}
}

// NewReply creates a reply packet answering the method with the given id.
func NewReply(id uint32, data, replyErr json.RawMessage) *Reply {
	return &Reply{
		Type:  TypeReply,
		ID:    id,
		Data:  data,
		Error: replyErr,
	}
}

// NewEvent creates an event packet with the given name and payload.
func NewEvent(event string, data json.RawMessage) *Event {
	return &Event{
		Type:  TypeEvent,
		Event: event,
		Data:  data,
	}
}

// Encode serializes a packet to its wire form.
func Encode(p Packet) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, errors.Wrap(err, "marshal packet failed")
	}
	return data, nil
}

// envelope is used to sniff the type tag before decoding the full frame.
type envelope struct {
	Type string `json:"type"`
}

// Decode parses a raw frame into a typed packet.
//
// Malformed JSON yields ErrMalformedFrame; a well-formed object with an
// unrecognized type tag yields ErrUnknownPacketType. Both are non-fatal:
// callers drop the frame and report the error.
func Decode(raw []byte) (Packet, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errors.Wrap(ErrMalformedFrame, err.Error())
	}
	switch env.Type {
	case TypeMethod:
		var m Method
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, errors.Wrap(ErrMalformedFrame, err.Error())
		}
		return &m, nil
	case TypeReply:
		var r Reply
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, errors.Wrap(ErrMalformedFrame, err.Error())
		}
		return &r, nil
	case TypeEvent:
		var e Event
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, errors.Wrap(ErrMalformedFrame, err.Error())
		}
		return &e, nil
	default:
		return nil, errors.Wrapf(ErrUnknownPacketType, "type %q", env.Type)
	}
}
