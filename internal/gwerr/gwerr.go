// Package gwerr defines the error taxonomy shared by every gateway
// component (spec §7): each error belongs to one class that decides
// whether a handler can recover locally or must tear the session down.
package gwerr

import "errors"

// Class identifies which of §7's recovery paths an error takes.
type Class int

const (
	// ClassBadArgument means the input was malformed but a documented
	// default can often stand in for it.
	ClassBadArgument Class = iota
	// ClassProtocolError means the peer violated the instruction
	// stream's framing or ordering and the session cannot continue.
	ClassProtocolError
	// ClassResourceExhausted means a bounded resource (copy-queue,
	// cache slot, tile budget) is full.
	ClassResourceExhausted
	// ClassTimeout means a blocking wait exceeded its deadline.
	ClassTimeout
	// ClassTransient means the failure is likely to clear on retry
	// (connection reset, temporary I/O error).
	ClassTransient
	// ClassNotSupported means the peer asked for a capability this
	// gateway build does not implement.
	ClassNotSupported
)

func (c Class) String() string {
	switch c {
	case ClassBadArgument:
		return "bad_argument"
	case ClassProtocolError:
		return "protocol_error"
	case ClassResourceExhausted:
		return "resource_exhausted"
	case ClassTimeout:
		return "timeout"
	case ClassTransient:
		return "transient"
	case ClassNotSupported:
		return "not_supported"
	default:
		return "unknown"
	}
}

// IsFatal reports whether an error of this class must end the session
// rather than be recovered from in place.
func (c Class) IsFatal() bool {
	return c == ClassProtocolError || c == ClassResourceExhausted
}

// Error wraps an underlying cause with the class that decides how
// callers should react to it, plus an optional component tag for
// log correlation.
type Error struct {
	Class     Class
	Component string
	Code      int
	Cause     error
}

func (e *Error) Error() string {
	if e.Component != "" {
		return e.Component + ": " + e.Class.String() + ": " + e.Cause.Error()
	}
	return e.Class.String() + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsFatal reports whether err (or anything it wraps) demands session
// termination rather than local recovery.
func IsFatal(err error) bool {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Class.IsFatal()
	}
	return false
}

// ClassOf extracts the Class of err, if it (or anything it wraps) is a
// *Error. The second return is false for plain errors.
func ClassOf(err error) (Class, bool) {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Class, true
	}
	return 0, false
}

// New builds an *Error of the given class wrapping cause, tagged with
// component for log correlation.
func New(class Class, component string, cause error) *Error {
	return &Error{Class: class, Component: component, Cause: cause}
}

// WithCode attaches a numeric protocol error code (spec §7's error
// opcode argument) to an *Error built with New.
func (e *Error) WithCode(code int) *Error {
	e.Code = code
	return e
}

// Sentinel causes used across components, wrapped via New at the call
// site so callers can still errors.Is against the underlying cause.
var (
	ErrQueueFull        = errors.New("gwerr: bounded queue is full")
	ErrCacheMiss        = errors.New("gwerr: cache slot not present")
	ErrUnknownLayer      = errors.New("gwerr: layer id not found")
	ErrMalformedInstruction = errors.New("gwerr: malformed instruction")
	ErrSessionClosed     = errors.New("gwerr: session already closed")
	ErrUnsupportedOrder  = errors.New("gwerr: drawing order not supported")
	ErrUnsupportedCodec  = errors.New("gwerr: audio codec not supported")
	ErrHandshakeTimeout  = errors.New("gwerr: handshake timed out")
)
