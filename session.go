package dbus

import (
	"context"
	"errors"
	"os"
)

// sessionBusEnv is the well-known environment variable naming the
// session bus address.
const sessionBusEnv = "DBUS_SESSION_BUS_ADDRESS"

// SessionBusAddress reports the session bus address recorded in the
// given environment lookup, which has the shape of [os.LookupEnv].
// Taking the lookup as a parameter keeps the read injectable: tests
// supply a fixed mapping instead of mutating the process environment.
func SessionBusAddress(lookup func(key string) (string, bool)) (string, bool) {
	if lookup == nil {
		return "", false
	}
	addr, ok := lookup(sessionBusEnv)
	if !ok || addr == "" {
		return "", false
	}
	return addr, true
}

// SessionBus opens a private connection to the current user's session
// bus, located through the process environment.
func SessionBus(ctx context.Context) (*Conn, error) {
	addr, ok := SessionBusAddress(os.LookupEnv)
	if !ok {
		return nil, errors.New("session bus not available")
	}
	return Open(ctx, addr)
}
