package siser

import (
	"bytes"
	"fmt"
	"strconv"
	"time"
)

/*
Record is a list of key/value pairs serialized one per line:

	key: value\n

Values that are empty, long (> 120 chars) or not printable ASCII are
size-prefixed:

	key:+${len}\n
	value\n
*/

type Entry struct {
	Key   string
	Value string
}

// Record is for writing key/value pairs
type Record struct {
	buf       bytes.Buffer
	Name      string
	Timestamp time.Time
}

// ReadRecord is a decoded Record
type ReadRecord struct {
	Record
	Entries []Entry
}

func toStr(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	}
	return fmt.Sprintf("%v", v)
}

// Write adds key/value pairs, args must be key1, val1, key2, val2...
func (r *Record) Write(args ...any) error {
	n := len(args)
	if n == 0 || n%2 != 0 {
		return fmt.Errorf("invalid number of args: %d. Should be multiple of 2", n)
	}
	for i := 0; i < n; i += 2 {
		r.marshalKeyVal(toStr(args[i]), toStr(args[i+1]))
	}
	return nil
}

// Reset allows re-using the record. Name is kept.
func (r *Record) Reset() {
	r.Timestamp = time.Time{}
	r.buf.Reset()
}

// Marshal returns serialized record, valid until next Reset()
func (r *Record) Marshal() []byte {
	return r.buf.Bytes()
}

func needsLongFormat(s string) bool {
	if len(s) == 0 || len(s) > 120 {
		return true
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 32 || s[i] > 127 {
			return true
		}
	}
	return false
}

func (r *Record) marshalKeyVal(key, val string) {
	r.buf.WriteString(key)
	if !needsLongFormat(val) {
		r.buf.WriteString(": ")
		r.buf.WriteString(val)
		r.buf.WriteByte('\n')
		return
	}
	r.buf.WriteString(":+")
	r.buf.WriteString(strconv.Itoa(len(val)))
	r.buf.WriteByte('\n')
	r.buf.WriteString(val)
	if n := len(val); n == 0 || val[n-1] != '\n' {
		r.buf.WriteByte('\n')
	}
}

// Get returns value for key
func (r *ReadRecord) Get(key string) (string, bool) {
	for _, e := range r.Entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// UnmarshalRecord decodes d as created by Record.Marshal.
// Re-uses r if not nil.
func UnmarshalRecord(d []byte, r *ReadRecord) (*ReadRecord, error) {
	if r == nil {
		r = &ReadRecord{}
	}
	r.Reset()
	r.Name = ""
	r.Entries = r.Entries[:0]

	for len(d) > 0 {
		idx := bytes.IndexByte(d, '\n')
		if idx == -1 {
			return nil, fmt.Errorf("missing '\\n' at the end of '%s'", d)
		}
		line := d[:idx]
		d = d[idx+1:]
		idx = bytes.IndexByte(line, ':')
		if idx == -1 || idx == len(line)-1 {
			return nil, fmt.Errorf("line in unrecognized format: '%s'", line)
		}
		key := string(line[:idx])
		kind, val := line[idx+1], line[idx+2:]
		switch kind {
		case ' ':
			r.Entries = append(r.Entries, Entry{Key: key, Value: string(val)})
		case '+':
			n, err := strconv.Atoi(string(val))
			if err != nil {
				return nil, err
			}
			if n < 0 || n > len(d) {
				return nil, fmt.Errorf("invalid length %d of value, remaining data: %d", n, len(d))
			}
			r.Entries = append(r.Entries, Entry{Key: key, Value: string(d[:n])})
			d = d[n:]
			if len(d) > 0 && d[0] == '\n' {
				d = d[1:]
			}
		default:
			return nil, fmt.Errorf("line in unrecognized format: '%s'", line)
		}
	}
	return r, nil
}
