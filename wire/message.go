// Package wire implements the small slice of the DBus wire format
// needed to drive a connection's lifecycle: message framing, the
// fixed header, and the padding-aware primitive codecs. It performs
// no reflection and models no composite body types; callers encode
// and decode message bodies with the primitives directly.
package wire

import (
	"fmt"
	"io"
)

// Type is the type of a DBus message.
type Type byte

const (
	TypeCall Type = iota + 1
	TypeReturn
	TypeError
	TypeSignal
)

func (t Type) String() string {
	switch t {
	case TypeCall:
		return "call"
	case TypeReturn:
		return "return"
	case TypeError:
		return "error"
	case TypeSignal:
		return "signal"
	default:
		return fmt.Sprintf("unknown message type %d", byte(t))
	}
}

// Message header field codes, from the DBus specification.
const (
	fieldPath        = 1
	fieldInterface   = 2
	fieldMember      = 3
	fieldErrName     = 4
	fieldReplySerial = 5
	fieldDestination = 6
	fieldSender      = 7
	fieldSignature   = 8
	fieldNumFDs      = 9
)

// FlagNoReplyExpected tells the recipient that no method return or
// error reply is wanted for a call.
const FlagNoReplyExpected = 0x1

// Message is one DBus message. The Body is carried as raw wire bytes
// in the byte order the message was read or will be written with,
// described by Signature.
type Message struct {
	// Type is the message's type.
	Type Type
	// Flags is the message's flag byte.
	Flags byte
	// Serial is the sender-assigned serial for this message. It must
	// be non-zero.
	Serial uint32

	// Path is the target object for a call, or the source object for
	// a signal.
	Path string
	// Interface is the interface to target for a call, or the source
	// interface for a signal.
	Interface string
	// Member is the method name for a call, or signal name for a
	// signal.
	Member string
	// ErrName is the name of the error that occurred, for error
	// replies.
	ErrName string
	// ReplySerial is the message serial to which this message is
	// replying, for returns and errors.
	ReplySerial uint32
	// Destination is the intended recipient of the message.
	Destination string
	// Sender is the client ID of the message sender. The message bus
	// populates this value itself, any sent value is ignored.
	Sender string
	// Signature is the type signature of the message body. Required
	// if a body is present.
	Signature string
	// NumFDs is the number of file descriptors attached to this
	// message.
	NumFDs uint32

	// Body is the raw encoded message body.
	Body []byte
}

// Valid checks that the message header is valid for its message type.
func (m *Message) Valid() error {
	if m.Serial == 0 {
		return fmt.Errorf("invalid message with zero Serial")
	}
	switch m.Type {
	case 0:
		return fmt.Errorf("invalid message with Type 0")
	case TypeCall:
		if m.Path == "" {
			return fmt.Errorf("missing required header field Path")
		}
		if m.Member == "" {
			return fmt.Errorf("missing required header field Member")
		}
	case TypeReturn:
		if m.ReplySerial == 0 {
			return fmt.Errorf("missing required header field ReplySerial")
		}
	case TypeError:
		if m.ReplySerial == 0 {
			return fmt.Errorf("missing required header field ReplySerial")
		}
		if m.ErrName == "" {
			return fmt.Errorf("missing required header field ErrName")
		}
	case TypeSignal:
		if m.Path == "" {
			return fmt.Errorf("missing required header field Path")
		}
		if m.Interface == "" {
			return fmt.Errorf("missing required header field Interface")
		}
		if m.Member == "" {
			return fmt.Errorf("missing required header field Member")
		}
	default:
		// Unknown message types are suspect, but the spec requires
		// receivers to gracefully allow them.
	}
	return nil
}

// WantReply reports whether this message requires a response.
func (m *Message) WantReply() bool {
	return m.Type == TypeCall && m.Flags&FlagNoReplyExpected == 0
}

// protocolVersion is the only major protocol version in existence.
const protocolVersion = 1

// Marshal returns the full wire encoding of m in the given byte
// order, header padding and body included.
func Marshal(m *Message, ord ByteOrder) ([]byte, error) {
	if err := m.Valid(); err != nil {
		return nil, err
	}
	e := Encoder{Order: ord}
	e.ByteOrderFlag()
	e.Uint8(byte(m.Type))
	e.Uint8(m.Flags)
	e.Uint8(protocolVersion)
	e.Uint32(uint32(len(m.Body)))
	e.Uint32(m.Serial)

	strField := func(code uint8, sig, val string) {
		if val == "" {
			return
		}
		e.Pad(8)
		e.Uint8(code)
		e.Signature(sig)
		e.String(val)
	}
	u32Field := func(code uint8, val uint32) {
		if val == 0 {
			return
		}
		e.Pad(8)
		e.Uint8(code)
		e.Signature("u")
		e.Uint32(val)
	}
	e.Array(true, func() {
		strField(fieldPath, "o", m.Path)
		strField(fieldInterface, "s", m.Interface)
		strField(fieldMember, "s", m.Member)
		strField(fieldErrName, "s", m.ErrName)
		u32Field(fieldReplySerial, m.ReplySerial)
		strField(fieldDestination, "s", m.Destination)
		strField(fieldSender, "s", m.Sender)
		if m.Signature != "" {
			e.Pad(8)
			e.Uint8(fieldSignature)
			e.Signature("g")
			e.Signature(m.Signature)
		}
		u32Field(fieldNumFDs, m.NumFDs)
	})
	e.Pad(8)
	e.Write(m.Body)
	return e.Out, nil
}

// ReadMessage reads one complete message from r, returning it along
// with the byte order its body is encoded in.
func ReadMessage(r io.Reader) (*Message, ByteOrder, error) {
	d := Decoder{In: r}
	if err := d.ByteOrderFlag(); err != nil {
		return nil, nil, err
	}

	var ret Message
	t, err := d.Uint8()
	if err != nil {
		return nil, nil, err
	}
	ret.Type = Type(t)
	if ret.Flags, err = d.Uint8(); err != nil {
		return nil, nil, err
	}
	if _, err = d.Uint8(); err != nil { // protocol version
		return nil, nil, err
	}
	bodyLen, err := d.Uint32()
	if err != nil {
		return nil, nil, err
	}
	if ret.Serial, err = d.Uint32(); err != nil {
		return nil, nil, err
	}

	err = d.Array(true, func() error {
		if err := d.Pad(8); err != nil {
			return err
		}
		code, err := d.Uint8()
		if err != nil {
			return err
		}
		sig, err := d.Signature()
		if err != nil {
			return err
		}
		switch code {
		case fieldPath, fieldInterface, fieldMember, fieldErrName, fieldDestination, fieldSender:
			val, err := d.String()
			if err != nil {
				return err
			}
			switch code {
			case fieldPath:
				ret.Path = val
			case fieldInterface:
				ret.Interface = val
			case fieldMember:
				ret.Member = val
			case fieldErrName:
				ret.ErrName = val
			case fieldDestination:
				ret.Destination = val
			case fieldSender:
				ret.Sender = val
			}
			return nil
		case fieldReplySerial, fieldNumFDs:
			val, err := d.Uint32()
			if err != nil {
				return err
			}
			if code == fieldReplySerial {
				ret.ReplySerial = val
			} else {
				ret.NumFDs = val
			}
			return nil
		case fieldSignature:
			val, err := d.Signature()
			if err != nil {
				return err
			}
			ret.Signature = val
			return nil
		default:
			// An unknown header field must be ignored, which requires
			// skipping its variant payload by signature.
			return d.skipValue(sig)
		}
	})
	if err != nil {
		return nil, nil, err
	}

	if err := d.Pad(8); err != nil {
		return nil, nil, err
	}
	if ret.Body, err = d.Read(int(bodyLen)); err != nil {
		return nil, nil, err
	}
	return &ret, d.Order, nil
}

// skipValue consumes one value of the given signature. Only single
// complete basic types and string-like types appear in header
// variants, so that is all this handles.
func (d *Decoder) skipValue(sig string) error {
	var err error
	switch sig {
	case "y":
		_, err = d.Uint8()
	case "n", "q":
		_, err = d.Uint16()
	case "b", "i", "u":
		_, err = d.Uint32()
	case "x", "t", "d":
		_, err = d.Uint64()
	case "s", "o":
		_, err = d.String()
	case "g":
		_, err = d.Signature()
	default:
		err = fmt.Errorf("cannot skip unknown header field of type %q", sig)
	}
	return err
}
