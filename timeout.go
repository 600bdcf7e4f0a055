package dbus

import (
	"fmt"
	"time"
)

// maxTimeoutMillis is the top of the explicit timeout range. The bus
// protocol treats this value as its "infinite" sentinel, so an
// explicit timeout must stay strictly below it.
const maxTimeoutMillis = 0x7FFFFFFF

// defaultCallTimeout is how long a blocking call waits for a reply
// under [DefaultTimeout], matching the reference implementation's
// default reply timeout.
const defaultCallTimeout = 25 * time.Second

type timeoutKind uint8

const (
	timeoutDefault timeoutKind = iota
	timeoutInfinite
	timeoutMillis
)

// Timeout selects how long a blocking bus operation may wait for a
// reply: the implementation default, forever, or an explicit
// millisecond count. The zero value is the implementation default.
type Timeout struct {
	kind   timeoutKind
	millis int32
}

// DefaultTimeout returns the implementation-default timeout.
func DefaultTimeout() Timeout { return Timeout{kind: timeoutDefault} }

// InfiniteTimeout returns a timeout that never expires.
func InfiniteTimeout() Timeout { return Timeout{kind: timeoutInfinite} }

// Millis returns an explicit timeout of ms milliseconds.
//
// Millis panics if ms is outside [0, 0x7FFFFFFF): a negative count is
// meaningless, and the top of the range is the protocol's "infinite"
// sentinel, which must be requested with [InfiniteTimeout] instead of
// smuggled through as a count.
func Millis(ms int32) Timeout {
	if ms < 0 || ms >= maxTimeoutMillis {
		panic(fmt.Sprintf("timeout of %d ms outside the representable range [0, 0x7FFFFFFF)", ms))
	}
	return Timeout{kind: timeoutMillis, millis: ms}
}

func (t Timeout) String() string {
	switch t.kind {
	case timeoutInfinite:
		return "infinite"
	case timeoutMillis:
		return fmt.Sprintf("%dms", t.millis)
	default:
		return "default"
	}
}

// duration returns the concrete wait duration for t, and whether a
// timer should run at all.
func (t Timeout) duration() (time.Duration, bool) {
	switch t.kind {
	case timeoutInfinite:
		return 0, false
	case timeoutMillis:
		return time.Duration(t.millis) * time.Millisecond, true
	default:
		return defaultCallTimeout, true
	}
}
