// Package siser frames blocks of data in a human-readable, size-prefixed format.
//
// Each block starts with a header line followed by the data:
//
//	--- ${size} ${timestamp_in_unix_epoch_ms} ${name}\n
//	${data}
//
// Timestamp and name are optional. If data doesn't end with '\n', one is added
// for readability and skipped on reading. Data can be binary.
package siser

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"
)

var hdrPrefix = []byte("--- ")

// TimeToUnixMillisecond converts t into Unix epoch time in milliseconds.
func TimeToUnixMillisecond(t time.Time) int64 {
	return t.UnixNano() / 1e6
}

// TimeFromUnixMillisecond returns time from Unix epoch time in milliseconds.
func TimeFromUnixMillisecond(unixMs int64) time.Time {
	return time.Unix(0, unixMs*1e6)
}

// MarshalLine serializes one block. If t is zero, it's not written.
// wb is optional and re-used for performance.
func MarshalLine(name string, t time.Time, d []byte, wb *bytes.Buffer) []byte {
	if wb == nil {
		wb = &bytes.Buffer{}
	} else {
		wb.Reset()
	}
	wb.Grow(len(hdrPrefix) + len(name) + len(d) + 64)
	wb.Write(hdrPrefix)
	wb.WriteString(strconv.Itoa(len(d)))
	if !t.IsZero() {
		wb.WriteByte(' ')
		wb.WriteString(strconv.FormatInt(TimeToUnixMillisecond(t), 10))
	}
	if name != "" {
		wb.WriteByte(' ')
		wb.WriteString(name)
	}
	wb.WriteByte('\n')
	if n := len(d); n > 0 {
		wb.Write(d)
		if d[n-1] != '\n' {
			wb.WriteByte('\n')
		}
	}
	return wb.Bytes()
}

// Writer writes blocks to an io.Writer. Safe for concurrent use.
type Writer struct {
	w        io.Writer
	writeBuf bytes.Buffer
	mu       sync.Mutex
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write writes d as a block. Zero t means current time.
func (w *Writer) Write(d []byte, t time.Time, name string) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t.IsZero() {
		t = time.Now()
	}
	// don't keep a big buffer around after a one-off big write
	if w.writeBuf.Cap() > 100*1024 && len(d) < 50*1024 {
		w.writeBuf = bytes.Buffer{}
	}
	return w.w.Write(MarshalLine(name, t, d, &w.writeBuf))
}

// WriteRecord writes key/value record r as a block and resets it
func (w *Writer) WriteRecord(r *Record) (int, error) {
	n, err := w.Write(r.Marshal(), r.Timestamp, r.Name)
	r.Reset()
	return n, err
}

// Reader reads blocks written by Writer
type Reader struct {
	r *bufio.Reader

	// Data, Name and Timestamp of the last block read by ReadNextData
	Data      []byte
	Name      string
	Timestamp time.Time

	// Record is set by ReadNextRecord
	Record *ReadRecord

	err  error
	done bool
}

func NewReader(r *bufio.Reader) *Reader {
	return &Reader{
		r:      r,
		Record: &ReadRecord{},
	}
}

// Err returns the first error. io.EOF at a block boundary is not an error.
func (r *Reader) Err() error {
	return r.err
}

func (r *Reader) Done() bool {
	return r.err != nil || r.done
}

func (r *Reader) setErr(err error) bool {
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	r.err = err
	return false
}

// parseHeader parses "${size} [${timestamp}] [${name}]"
func parseHeader(hdr []byte) (size int64, ts int64, name string, err error) {
	parts := bytes.SplitN(hdr, []byte{' '}, 3)
	size, err = strconv.ParseInt(string(parts[0]), 10, 64)
	if err != nil || size < 0 {
		return 0, 0, "", fmt.Errorf("unexpected header '%s'", hdr)
	}
	if len(parts) == 1 {
		return size, 0, "", nil
	}
	// second part is a timestamp if it parses as a number, otherwise a name
	if v, errTs := strconv.ParseInt(string(parts[1]), 10, 64); errTs == nil {
		ts = v
		if len(parts) == 3 {
			name = string(parts[2])
		}
		return size, ts, name, nil
	}
	name = string(bytes.Join(parts[1:], []byte{' '}))
	return size, 0, name, nil
}

// ReadNextData reads the next block. Returns false at the end or on error,
// check Err() to tell them apart.
func (r *Reader) ReadNextData() bool {
	if r.Done() {
		return false
	}
	hdr, err := r.r.ReadBytes('\n')
	if err != nil {
		if err == io.EOF && len(hdr) == 0 {
			r.done = true
			return false
		}
		return r.setErr(err)
	}
	hdr = bytes.TrimPrefix(hdr[:len(hdr)-1], hdrPrefix)
	size, ts, name, err := parseHeader(hdr)
	if err != nil {
		return r.setErr(err)
	}
	r.Name = name
	r.Timestamp = time.Time{}
	if ts != 0 {
		r.Timestamp = TimeFromUnixMillisecond(ts)
	}

	// re-use the buffer unless it grew past 1 MB
	if cap(r.Data) > 1024*1024 || size > int64(cap(r.Data)) {
		r.Data = make([]byte, size)
	} else {
		r.Data = r.Data[:size]
	}
	if _, err = io.ReadFull(r.r, r.Data); err != nil {
		return r.setErr(err)
	}
	if size > 0 && r.Data[size-1] != '\n' {
		if _, err = r.r.Discard(1); err != nil {
			return r.setErr(err)
		}
	}
	return true
}

// ReadNextRecord reads the next block and decodes it as key/value record
func (r *Reader) ReadNextRecord() bool {
	if !r.ReadNextData() {
		return false
	}
	if _, err := UnmarshalRecord(r.Data, r.Record); err != nil {
		return r.setErr(err)
	}
	r.Record.Name = r.Name
	r.Record.Timestamp = r.Timestamp
	return true
}
