package spool

import "github.com/pkg/errors"

// ErrSuperseded indicates a spooled request was replaced by a newer request
// for the same method before it could be flushed.
var ErrSuperseded = errors.New("spooled request superseded")
