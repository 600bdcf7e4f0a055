package wire

import (
	"encoding/binary"

	"golang.org/x/sys/cpu"
)

// ByteOrder is a byte order that knows its DBus byte order mark.
type ByteOrder interface {
	byteOrder
	Flag() byte
}

type byteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

type wrapStd struct {
	byteOrder
}

func (w wrapStd) Flag() byte {
	switch w.byteOrder {
	case binary.BigEndian:
		return 'B'
	case binary.LittleEndian:
		return 'l'
	case binary.NativeEndian:
		if cpu.IsBigEndian {
			return 'B'
		}
		return 'l'
	default:
		panic("unknown ByteOrder, how did you manage to make one of those?")
	}
}

var (
	BigEndian    = wrapStd{binary.BigEndian}
	LittleEndian = wrapStd{binary.LittleEndian}
	NativeEndian = wrapStd{binary.NativeEndian}
)

// OrderFor returns the ByteOrder for a DBus byte order mark, or false
// if the mark is not one of the two defined values.
func OrderFor(flag byte) (ByteOrder, bool) {
	switch flag {
	case 'B':
		return BigEndian, true
	case 'l':
		return LittleEndian, true
	default:
		return nil, false
	}
}
