package wire

import "github.com/pkg/errors"

// ErrMalformedFrame indicates that a frame could not be parsed as JSON.
var ErrMalformedFrame = errors.New("malformed frame")

// ErrUnknownPacketType indicates a well-formed frame with an unrecognized type tag.
var ErrUnknownPacketType = errors.New("unknown packet type")
