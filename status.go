package dbus

import "fmt"

// DispatchStatus reports the outcome of one [Conn.Dispatch] step.
//
// The type carries the raw protocol ordinal, so values outside the
// named set remain representable; [DispatchStatus.Known] reports
// whether a value is one the binding understands.
type DispatchStatus int32

const (
	// DispatchDataRemains means more buffered incoming data is
	// waiting to be dispatched.
	DispatchDataRemains DispatchStatus = iota
	// DispatchComplete means all buffered incoming data has been
	// dispatched.
	DispatchComplete
	// DispatchNeedMemory means a dispatch step could not complete for
	// lack of memory, and should be retried later.
	DispatchNeedMemory
)

// Known reports whether s is one of the named dispatch statuses.
func (s DispatchStatus) Known() bool {
	return s >= DispatchDataRemains && s <= DispatchNeedMemory
}

func (s DispatchStatus) String() string {
	switch s {
	case DispatchDataRemains:
		return "data remains"
	case DispatchComplete:
		return "complete"
	case DispatchNeedMemory:
		return "need memory"
	default:
		return fmt.Sprintf("unknown dispatch status %d", int32(s))
	}
}

// HandlerResult is how a message filter disposed of an incoming
// message.
//
// Like [DispatchStatus], the type carries the raw protocol ordinal
// and degrades gracefully for values outside the named set.
type HandlerResult int32

const (
	// Handled means the filter consumed the message, and no further
	// processing should happen.
	Handled HandlerResult = iota
	// NotYetHandled means the filter declined the message, and
	// processing continues with the next filter.
	NotYetHandled
	// HandlerNeedMemory means the filter could not run for lack of
	// memory, and the message should be redelivered later.
	HandlerNeedMemory
)

// Known reports whether r is one of the named handler results.
func (r HandlerResult) Known() bool {
	return r >= Handled && r <= HandlerNeedMemory
}

func (r HandlerResult) String() string {
	switch r {
	case Handled:
		return "handled"
	case NotYetHandled:
		return "not yet handled"
	case HandlerNeedMemory:
		return "need memory"
	default:
		return fmt.Sprintf("unknown handler result %d", int32(r))
	}
}

// NameReply is the bus's reply code to a [Conn.RequestName] call. The
// raw code is preserved, so reply codes added by future bus versions
// remain representable.
type NameReply int32

const (
	// NameReplyPrimaryOwner means the caller is now the primary owner
	// of the name.
	NameReplyPrimaryOwner NameReply = iota + 1
	// NameReplyInQueue means the name already has an owner, and the
	// caller joined the queue of claimants.
	NameReplyInQueue
	// NameReplyExists means the name already has an owner and the
	// caller asked not to queue.
	NameReplyExists
	// NameReplyAlreadyOwner means the caller was already the primary
	// owner of the name.
	NameReplyAlreadyOwner
)

// Known reports whether r is one of the named reply codes.
func (r NameReply) Known() bool {
	return r >= NameReplyPrimaryOwner && r <= NameReplyAlreadyOwner
}

// IsOwner reports whether the reply means the caller holds primary
// ownership of the name.
func (r NameReply) IsOwner() bool {
	return r == NameReplyPrimaryOwner || r == NameReplyAlreadyOwner
}

func (r NameReply) String() string {
	switch r {
	case NameReplyPrimaryOwner:
		return "primary owner"
	case NameReplyInQueue:
		return "in queue"
	case NameReplyExists:
		return "name exists"
	case NameReplyAlreadyOwner:
		return "already owner"
	default:
		return fmt.Sprintf("unknown name reply %d", int32(r))
	}
}

// NameRequestFlags alter how the bus arbitrates a RequestName call.
// They pass through to the bus uninterpreted.
type NameRequestFlags uint32

const (
	// NameRequestAllowReplacement permits a later claimant that sets
	// NameRequestReplace to take over the name.
	NameRequestAllowReplacement NameRequestFlags = 1 << iota
	// NameRequestReplace attempts to take over the name from a
	// current owner that allows replacement.
	NameRequestReplace
	// NameRequestNoQueue refuses to join the claimant queue if the
	// name cannot be owned immediately.
	NameRequestNoQueue
)
