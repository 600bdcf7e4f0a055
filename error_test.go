package dbus

import (
	"errors"
	"testing"
)

func TestErrorLifecycle(t *testing.T) {
	e := newError()
	if e.IsSet() {
		t.Error("fresh error reports IsSet")
	}
	if e.Name() != "" || e.Message() != "" {
		t.Errorf("fresh error carries contents (name=%q, message=%q)", e.Name(), e.Message())
	}
	e.assertConsistent() // must not panic in the not-set state

	e.setFailure("org.freedesktop.DBus.Error.Failed", "it broke")
	if !e.IsSet() {
		t.Error("error not set after setFailure")
	}
	e.assertConsistent()
	if e.Name() != "org.freedesktop.DBus.Error.Failed" {
		t.Errorf("Name() = %q", e.Name())
	}
	if e.Message() != "it broke" {
		t.Errorf("Message() = %q", e.Message())
	}
	if got, want := e.Error(), "bus error org.freedesktop.DBus.Error.Failed: it broke"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorEmptyMessage(t *testing.T) {
	e := newError()
	e.setFailure("org.freedesktop.DBus.Error.AccessDenied", "")
	e.assertConsistent()
	if e.Message() != e.Name() {
		t.Errorf("empty message not normalized to name, got %q", e.Message())
	}
	if got, want := e.Error(), "bus error org.freedesktop.DBus.Error.AccessDenied"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorConsistencyViolation(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("assertConsistent did not panic on a set error with no name")
		}
	}()
	e := &Error{flagged: true, message: "orphaned message"}
	e.assertConsistent()
}

func TestErrorAsError(t *testing.T) {
	e := newError()
	e.setFailure("org.freedesktop.DBus.Error.NoReply", "timed out")

	var target *Error
	if !errors.As(error(e), &target) {
		t.Fatal("errors.As failed to recover *Error")
	}
	if target.Name() != "org.freedesktop.DBus.Error.NoReply" {
		t.Errorf("recovered Name() = %q", target.Name())
	}
}
