package siser

import (
	"bufio"
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestMarshalLine(t *testing.T) {
	tm := TimeFromUnixMillisecond(1700000000123)
	got := string(MarshalLine("student.append", tm, []byte("regno: 1001"), nil))
	exp := "--- 11 1700000000123 student.append\nregno: 1001\n"
	if got != exp {
		t.Fatalf("expected:\n%q\ngot:\n%q", exp, got)
	}

	got = string(MarshalLine("", time.Time{}, nil, nil))
	if got != "--- 0\n" {
		t.Fatalf("unexpected empty line: %q", got)
	}
}

func TestWriteReadData(t *testing.T) {
	blocks := [][]byte{
		[]byte("plain text"),
		[]byte("ends with newline\n"),
		nil,
		{0, 1, 2, '\n', 0xff},
	}
	var buf bytes.Buffer
	w := NewWriter(&buf)
	for i, d := range blocks {
		name := ""
		if i%2 == 0 {
			name = "block name"
		}
		_, err := w.Write(d, time.Time{}, name)
		if err != nil {
			t.Fatalf("Write() failed with '%s'", err)
		}
	}

	r := NewReader(bufio.NewReader(&buf))
	i := 0
	for r.ReadNextData() {
		if !bytes.Equal(r.Data, blocks[i]) {
			t.Fatalf("block %d: expected %q, got %q", i, blocks[i], r.Data)
		}
		if i%2 == 0 && r.Name != "block name" {
			t.Fatalf("block %d: expected name 'block name', got '%s'", i, r.Name)
		}
		if r.Timestamp.IsZero() {
			t.Fatalf("block %d: expected timestamp", i)
		}
		i++
	}
	if r.Err() != nil {
		t.Fatalf("unexpected error '%s'", r.Err())
	}
	if i != len(blocks) {
		t.Fatalf("expected %d blocks, got %d", len(blocks), i)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	var rec Record
	rec.Name = "file"
	long := strings.Repeat("x", 200)
	err := rec.Write("Path", "students.dat", "Size", 286, "Empty", "", "Long", long, "Multi", "a\nb")
	if err != nil {
		t.Fatalf("Write() failed with '%s'", err)
	}
	_, err = w.WriteRecord(&rec)
	if err != nil {
		t.Fatalf("WriteRecord() failed with '%s'", err)
	}

	r := NewReader(bufio.NewReader(&buf))
	if !r.ReadNextRecord() {
		t.Fatalf("ReadNextRecord() failed with '%v'", r.Err())
	}
	if r.Record.Name != "file" {
		t.Fatalf("expected name 'file', got '%s'", r.Record.Name)
	}
	exp := map[string]string{
		"Path":  "students.dat",
		"Size":  "286",
		"Empty": "",
		"Long":  long,
		"Multi": "a\nb",
	}
	for k, v := range exp {
		got, ok := r.Record.Get(k)
		if !ok || got != v {
			t.Fatalf("key '%s': expected %q, got %q (ok: %v)", k, v, got, ok)
		}
	}
	if r.ReadNextRecord() {
		t.Fatal("expected no more records")
	}
}

func TestOddArgs(t *testing.T) {
	var rec Record
	if err := rec.Write("key"); err == nil {
		t.Fatal("expected error for odd number of args")
	}
}

func TestTruncatedBlock(t *testing.T) {
	d := MarshalLine("x", time.Now(), []byte("0123456789"), nil)
	r := NewReader(bufio.NewReader(bytes.NewReader(d[:len(d)-5])))
	if r.ReadNextData() {
		t.Fatal("expected ReadNextData() to fail on truncated data")
	}
	if r.Err() == nil {
		t.Fatal("expected an error for truncated data")
	}
}

func TestBadHeader(t *testing.T) {
	r := NewReader(bufio.NewReader(strings.NewReader("--- abc\n")))
	if r.ReadNextData() || r.Err() == nil {
		t.Fatal("expected error for invalid header")
	}
}
