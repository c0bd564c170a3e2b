package packet

import (
	"bytes"
	"encoding/binary"
	"net/netip"

	"github.com/pkg/errors"
)

// cursor reads big endian fields from a byte region. It never reads past the end
// of its region. offset() reports positions relative to the start of the UPDATE body.
type cursor struct {
	buf  []byte
	pos  int
	base int
}

func newCursor(buf []byte, base int) *cursor {
	return &cursor{
		buf:  buf,
		base: base,
	}
}

// len returns the number of unread bytes
func (c *cursor) len() int {
	return len(c.buf) - c.pos
}

func (c *cursor) offset() int {
	return c.base + c.pos
}

func (c *cursor) need(n int, field string) error {
	if n < 0 || c.len() < n {
		return errors.Wrapf(ErrTruncated, "%s: need %d bytes at offset %d, have %d", field, n, c.offset(), c.len())
	}
	return nil
}

// decode reads fixed size fields in order
func (c *cursor) decode(field string, fields ...interface{}) error {
	for _, f := range fields {
		n := binary.Size(f)
		if err := c.need(n, field); err != nil {
			return err
		}

		err := binary.Read(bytes.NewReader(c.buf[c.pos:c.pos+n]), binary.BigEndian, f)
		if err != nil {
			return errors.Wrapf(ErrTruncated, "%s: %v", field, err)
		}
		c.pos += n
	}
	return nil
}

func (c *cursor) uint8(field string) (uint8, error) {
	if err := c.need(1, field); err != nil {
		return 0, err
	}
	v := c.buf[c.pos]
	c.pos++
	return v, nil
}

func (c *cursor) uint16(field string) (uint16, error) {
	if err := c.need(2, field); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(c.buf[c.pos:])
	c.pos += 2
	return v, nil
}

func (c *cursor) uint24(field string) (uint32, error) {
	if err := c.need(3, field); err != nil {
		return 0, err
	}
	b := c.buf[c.pos:]
	c.pos += 3
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2]), nil
}

func (c *cursor) uint32(field string) (uint32, error) {
	if err := c.need(4, field); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(c.buf[c.pos:])
	c.pos += 4
	return v, nil
}

func (c *cursor) uint64(field string) (uint64, error) {
	if err := c.need(8, field); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(c.buf[c.pos:])
	c.pos += 8
	return v, nil
}

// bytes returns a copy of the next n bytes
func (c *cursor) bytes(n int, field string) ([]byte, error) {
	if err := c.need(n, field); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	copy(b, c.buf[c.pos:])
	c.pos += n
	return b, nil
}

// rest returns a copy of all unread bytes
func (c *cursor) rest() []byte {
	b, _ := c.bytes(c.len(), "")
	return b
}

// sub returns a cursor over the next n bytes and advances past them
func (c *cursor) sub(n int, field string) (*cursor, error) {
	if err := c.need(n, field); err != nil {
		return nil, err
	}
	s := newCursor(c.buf[c.pos:c.pos+n], c.offset())
	c.pos += n
	return s, nil
}

// addr reads an IPv4 (n = 4) or IPv6 (n = 16) address
func (c *cursor) addr(n int, field string) (netip.Addr, error) {
	switch n {
	case 4:
		var a [4]byte
		if err := c.decode(field, &a); err != nil {
			return netip.Addr{}, err
		}
		return netip.AddrFrom4(a), nil
	case 16:
		var a [16]byte
		if err := c.decode(field, &a); err != nil {
			return netip.Addr{}, err
		}
		return netip.AddrFrom16(a), nil
	}
	return netip.Addr{}, errors.Wrapf(ErrLengthMismatch, "%s: %d byte address", field, n)
}

func (c *cursor) peek() (uint8, bool) {
	if c.len() == 0 {
		return 0, false
	}
	return c.buf[c.pos], true
}

// done fails if unread bytes are left
func (c *cursor) done(field string) error {
	if c.len() != 0 {
		return errors.Wrapf(ErrLengthMismatch, "%s: %d bytes left at offset %d", field, c.len(), c.offset())
	}
	return nil
}

// expectLen checks a fixed size value region
func expectLen(field string, got int, want ...int) error {
	for _, w := range want {
		if got == w {
			return nil
		}
	}
	return errors.Wrapf(ErrLengthMismatch, "%s: length %d, expected %v", field, got, want)
}
