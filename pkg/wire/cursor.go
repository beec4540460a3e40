package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// TruncatedError reports a read that would run past the end of the buffer.
type TruncatedError struct {
	Offset int // cursor position when the read was attempted
	Want   int // bytes the read needed
	Have   int // bytes that were left
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("truncated read at offset %d: want %d bytes, have %d", e.Offset, e.Want, e.Have)
}

// Cursor is a bounds-checked little-endian read cursor over a byte buffer.
// Reads advance an internal offset; a failed read returns a *TruncatedError
// and leaves the offset where it was.
type Cursor struct {
	buf []byte
	off int
}

// NewCursor returns a cursor positioned at the start of buf.
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Offset returns the number of bytes consumed so far.
func (c *Cursor) Offset() int {
	return c.off
}

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int {
	return len(c.buf) - c.off
}

func (c *Cursor) take(n int) ([]byte, error) {
	if rem := len(c.buf) - c.off; rem < n {
		return nil, &TruncatedError{Offset: c.off, Want: n, Have: rem}
	}
	b := c.buf[c.off : c.off+n]
	c.off += n
	return b, nil
}

// Skip advances the cursor n bytes without interpreting them.
func (c *Cursor) Skip(n int) error {
	if n < 0 {
		return fmt.Errorf("wire: negative skip %d", n)
	}
	_, err := c.take(n)
	return err
}

// ReadUint8 reads one byte.
func (c *Cursor) ReadUint8() (uint8, error) {
	b, err := c.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadUint16 reads a little-endian uint16.
func (c *Cursor) ReadUint16() (uint16, error) {
	b, err := c.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadInt16 reads a little-endian int16.
func (c *Cursor) ReadInt16() (int16, error) {
	v, err := c.ReadUint16()
	return int16(v), err
}

// ReadUint32 reads a little-endian uint32.
func (c *Cursor) ReadUint32() (uint32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadInt32 reads a little-endian int32.
func (c *Cursor) ReadInt32() (int32, error) {
	v, err := c.ReadUint32()
	return int32(v), err
}

// ReadFloat32 reads a little-endian IEEE-754 single.
func (c *Cursor) ReadFloat32() (float32, error) {
	v, err := c.ReadUint32()
	return math.Float32frombits(v), err
}

// ReadFloat64 reads a little-endian IEEE-754 double.
func (c *Cursor) ReadFloat64() (float64, error) {
	b, err := c.take(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
}

// ReadFloat32s fills dst from consecutive little-endian singles. The whole
// vector is read or none of it.
func (c *Cursor) ReadFloat32s(dst []float32) error {
	b, err := c.take(4 * len(dst))
	if err != nil {
		return err
	}
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return nil
}

// ReadCString reads the bytes before the next NUL and consumes the
// terminator. It fails when no terminator remains in the buffer.
func (c *Cursor) ReadCString() (string, error) {
	rem := c.buf[c.off:]
	i := bytes.IndexByte(rem, 0)
	if i < 0 {
		return "", &TruncatedError{Offset: c.off, Want: len(rem) + 1, Have: len(rem)}
	}
	s := string(rem[:i])
	c.off += i + 1
	return s, nil
}

// ReadFixedString reads exactly n bytes and returns the text before the
// first NUL, or all n bytes when none is present.
func (c *Cursor) ReadFixedString(n int) (string, error) {
	b, err := c.take(n)
	if err != nil {
		return "", err
	}
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b), nil
}
