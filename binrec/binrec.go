// Package binrec encodes and decodes fixed-width binary records field by field.
//
// All integers and floats are little-endian. Text fields occupy exactly
// their declared width, are NUL padded and end at the first NUL. A text field
// of width n holds at most n-1 bytes so that it stays NUL terminated.
//
// Encoder and Decoder remember the first error, so a record codec can write
// all of its fields and check Err() once:
//
//	e := binrec.NewEncoder(buf)
//	e.Int64(s.RegNo)
//	e.Text(s.Name, 100)
//	return e.Err()
package binrec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	// ErrTextTooLong is returned when a text value doesn't fit its field
	ErrTextTooLong = errors.New("text too long for field")
	// ErrShortBuffer is returned when fields don't fit into the buffer
	ErrShortBuffer = errors.New("buffer too short for record")
)

var le = binary.LittleEndian

// Encoder writes fields into a fixed-size buffer
type Encoder struct {
	buf []byte
	pos int
	err error
}

// NewEncoder creates an encoder writing into buf.
// buf should be exactly the size of the record.
func NewEncoder(buf []byte) *Encoder {
	return &Encoder{buf: buf}
}

func (e *Encoder) next(n int) []byte {
	if e.err != nil {
		return nil
	}
	if e.pos+n > len(e.buf) {
		e.err = ErrShortBuffer
		return nil
	}
	b := e.buf[e.pos : e.pos+n]
	e.pos += n
	return b
}

func (e *Encoder) Int64(v int64) {
	if b := e.next(8); b != nil {
		le.PutUint64(b, uint64(v))
	}
}

func (e *Encoder) Int32(v int32) {
	if b := e.next(4); b != nil {
		le.PutUint32(b, uint32(v))
	}
}

func (e *Encoder) Float32(v float32) {
	if b := e.next(4); b != nil {
		le.PutUint32(b, math.Float32bits(v))
	}
}

// Text writes s NUL padded to width bytes
func (e *Encoder) Text(s string, width int) {
	if e.err != nil {
		return
	}
	if len(s) >= width {
		e.err = fmt.Errorf("%w: %d bytes, max %d", ErrTextTooLong, len(s), width-1)
		return
	}
	if strings.IndexByte(s, 0) >= 0 {
		e.err = fmt.Errorf("text %q contains NUL byte", s)
		return
	}
	b := e.next(width)
	if b == nil {
		return
	}
	n := copy(b, s)
	clear(b[n:])
}

// Len returns number of bytes written so far
func (e *Encoder) Len() int {
	return e.pos
}

func (e *Encoder) Err() error {
	if e.err == nil && e.pos != len(e.buf) {
		return fmt.Errorf("encoded %d bytes, record is %d bytes", e.pos, len(e.buf))
	}
	return e.err
}

// Decoder reads fields from a fixed-size buffer
type Decoder struct {
	buf []byte
	pos int
	err error
}

func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

func (d *Decoder) next(n int) []byte {
	if d.err != nil {
		return nil
	}
	if d.pos+n > len(d.buf) {
		d.err = ErrShortBuffer
		return nil
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b
}

func (d *Decoder) Int64() int64 {
	if b := d.next(8); b != nil {
		return int64(le.Uint64(b))
	}
	return 0
}

func (d *Decoder) Int32() int32 {
	if b := d.next(4); b != nil {
		return int32(le.Uint32(b))
	}
	return 0
}

func (d *Decoder) Float32() float32 {
	if b := d.next(4); b != nil {
		return math.Float32frombits(le.Uint32(b))
	}
	return 0
}

// Text reads a NUL padded text field of width bytes
func (d *Decoder) Text(width int) string {
	b := d.next(width)
	if b == nil {
		return ""
	}
	if idx := bytes.IndexByte(b, 0); idx >= 0 {
		b = b[:idx]
	}
	return string(b)
}

func (d *Decoder) Err() error {
	if d.err == nil && d.pos != len(d.buf) {
		return fmt.Errorf("decoded %d bytes, record is %d bytes", d.pos, len(d.buf))
	}
	return d.err
}
