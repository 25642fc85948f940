// Package arsdkerr provides the single structured error type threaded
// through the transport, reliable-channel, codec and state layers.
package arsdkerr

import (
	"errors"
	"fmt"
)

// Kind categorises an Error the way §7 of the spec enumerates failure kinds.
type Kind string

const (
	KindSchema      Kind = "schema"      // unknown project/class/command, arity/type mismatch
	KindTransport   Kind = "transport"   // socket send failure
	KindTimeout     Kind = "timeout"     // a wait ran out (bring-up event, discovery browse)
	KindDecode      Kind = "decode"      // malformed frame or command payload
	KindUnknownCmd  Kind = "unknown_cmd" // command id/class/project not in the catalogue
	KindLiveness    Kind = "liveness"    // read timeout / socket error in the read loop
	KindBufferUnset Kind = "buffer_unset"
)

// Error is the structured error type used across the stack.
type Error struct {
	Op    string // operation that failed, e.g. "network.Send", "codec.Decode"
	Kind  Kind
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	if e.Inner != nil {
		return fmt.Sprintf("arsdk: %s: %s: %s: %v", e.Op, e.Kind, e.Msg, e.Inner)
	}
	return fmt.Sprintf("arsdk: %s: %s: %s", e.Op, e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Inner }

// Is supports errors.Is comparison by Kind alone, so callers can write
// errors.Is(err, arsdkerr.New("", arsdkerr.KindTimeout, "")) style sentinels,
// or more idiomatically check via Is(err, KindX) below.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return e.Kind == te.Kind
	}
	return false
}

// New builds a structured Error.
func New(op string, kind Kind, msg string) *Error {
	return &Error{Op: op, Kind: kind, Msg: msg}
}

// Wrap builds a structured Error around an existing error.
func Wrap(op string, kind Kind, inner error) *Error {
	if inner == nil {
		return nil
	}
	return &Error{Op: op, Kind: kind, Msg: inner.Error(), Inner: inner}
}

// Is reports whether err is an *Error of the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
