package wire

import (
	"fmt"
	"io"
)

// A Decoder provides utilities to read a DBus wire format message
// from a stream.
//
// Methods advance the read cursor as needed to account for the
// padding required by DBus alignment rules, except for [Decoder.Read]
// which reads bytes verbatim.
type Decoder struct {
	// Order is the byte order to use when reading multi-byte values.
	Order ByteOrder
	// In is the input stream to read.
	In io.Reader

	// offset is the number of bytes consumed off the front of In so
	// far. Alignment depends on the global offset within the message,
	// and cannot be derived from local context partway through
	// decoding.
	offset int
}

// ByteOrderFlag reads a byte order mark and sets the decoder's Order
// accordingly.
func (d *Decoder) ByteOrderFlag() error {
	flag, err := d.Uint8()
	if err != nil {
		return err
	}
	ord, ok := OrderFor(flag)
	if !ok {
		return fmt.Errorf("invalid byte order mark %q", flag)
	}
	d.Order = ord
	return nil
}

// Pad consumes padding bytes as needed to make the next read happen
// at a multiple of align bytes. If the decoder is already correctly
// aligned, no bytes are consumed.
func (d *Decoder) Pad(align int) error {
	extra := d.offset % align
	if extra == 0 {
		return nil
	}
	skip := align - extra
	if _, err := io.CopyN(io.Discard, d.In, int64(skip)); err != nil {
		return err
	}
	d.offset += skip
	return nil
}

// Read reads n bytes, with no framing or padding.
func (d *Decoder) Read(n int) ([]byte, error) {
	bs := make([]byte, n)
	if _, err := io.ReadFull(d.In, bs); err != nil {
		return nil, err
	}
	d.offset += n
	return bs, nil
}

// Uint8 reads a uint8.
func (d *Decoder) Uint8() (uint8, error) {
	bs, err := d.Read(1)
	if err != nil {
		return 0, err
	}
	return bs[0], nil
}

// Uint16 reads a uint16.
func (d *Decoder) Uint16() (uint16, error) {
	if err := d.Pad(2); err != nil {
		return 0, err
	}
	bs, err := d.Read(2)
	if err != nil {
		return 0, err
	}
	return d.Order.Uint16(bs), nil
}

// Uint32 reads a uint32.
func (d *Decoder) Uint32() (uint32, error) {
	if err := d.Pad(4); err != nil {
		return 0, err
	}
	bs, err := d.Read(4)
	if err != nil {
		return 0, err
	}
	return d.Order.Uint32(bs), nil
}

// Uint64 reads a uint64.
func (d *Decoder) Uint64() (uint64, error) {
	if err := d.Pad(8); err != nil {
		return 0, err
	}
	bs, err := d.Read(8)
	if err != nil {
		return 0, err
	}
	return d.Order.Uint64(bs), nil
}

// String reads a DBus string.
func (d *Decoder) String() (string, error) {
	ln, err := d.Uint32()
	if err != nil {
		return "", err
	}
	ret, err := d.Read(int(ln) + 1)
	if err != nil {
		return "", err
	}
	return string(ret[:len(ret)-1]), nil
}

// Signature reads a DBus type signature string.
func (d *Decoder) Signature() (string, error) {
	ln, err := d.Uint8()
	if err != nil {
		return "", err
	}
	ret, err := d.Read(int(ln) + 1)
	if err != nil {
		return "", err
	}
	return string(ret[:len(ret)-1]), nil
}

// Array reads an array from the input.
//
// Array elements must be consumed within the provided elements
// function, which is called once per element until the array's byte
// length is exhausted.
//
// containsStructs indicates whether the array's elements are structs,
// so that the array header padding can be consumed accordingly.
func (d *Decoder) Array(containsStructs bool, element func() error) error {
	ln, err := d.Uint32()
	if err != nil {
		return err
	}
	if containsStructs {
		if err := d.Pad(8); err != nil {
			return err
		}
	}
	start := d.offset
	for d.offset-start < int(ln) {
		if err := element(); err != nil {
			return err
		}
	}
	if d.offset-start != int(ln) {
		return fmt.Errorf("array element decoder overran array bounds (%d > %d)", d.offset-start, ln)
	}
	return nil
}
