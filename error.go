package dbus

import "fmt"

// Well-known bus error names the binding reports on its own behalf,
// when a failure happens below the level of a daemon error reply.
const (
	errNameNoServer         = "org.freedesktop.DBus.Error.NoServer"
	errNameNoReply          = "org.freedesktop.DBus.Error.NoReply"
	errNameDisconnected     = "org.freedesktop.DBus.Error.Disconnected"
	errNameIOError          = "org.freedesktop.DBus.Error.IOError"
	errNameInvalidSignature = "org.freedesktop.DBus.Error.InvalidSignature"
	errNameUnknownMethod    = "org.freedesktop.DBus.Error.UnknownMethod"
)

// Error is a failure reported through the bus error channel: a
// daemon-assigned error name plus a human-readable message.
//
// An Error starts life not set. Exactly one Error is allocated per
// fallible bus operation and handed to the plumbing that performs it;
// afterwards the operation checks [Error.IsSet] and either surfaces
// the Error to the caller or discards it. A set Error always carries
// both a name and a message.
type Error struct {
	name    string
	message string
	flagged bool
}

// newError returns a fresh Error in the not-set state.
func newError() *Error { return &Error{} }

// setFailure records a failure on e. An empty message is normalized
// to the error name, matching the reference implementation's behavior
// for error replies that carry no detail string.
func (e *Error) setFailure(name, message string) {
	if message == "" {
		message = name
	}
	e.name = name
	e.message = message
	e.flagged = true
}

// assertConsistent checks that a set Error carries both of its
// strings. A violation means the binding's own plumbing flagged a
// failure without populating it, which is a defect rather than a
// reportable error.
func (e *Error) assertConsistent() {
	if e.flagged && (e.name == "" || e.message == "") {
		panic(fmt.Sprintf("bus error flagged as set with incomplete contents (name=%q, message=%q)", e.name, e.message))
	}
}

// IsSet reports whether a failure has been recorded on e.
func (e *Error) IsSet() bool { return e.flagged }

// Name returns the bus error name, e.g.
// "org.freedesktop.DBus.Error.NoReply". It is empty until a failure
// is recorded.
func (e *Error) Name() string { return e.name }

// Message returns the human-readable explanation of what went wrong.
// It is empty until a failure is recorded.
func (e *Error) Message() string { return e.message }

func (e *Error) Error() string {
	if !e.flagged {
		return "bus error (not set)"
	}
	if e.message == e.name {
		return fmt.Sprintf("bus error %s", e.name)
	}
	return fmt.Sprintf("bus error %s: %s", e.name, e.message)
}
