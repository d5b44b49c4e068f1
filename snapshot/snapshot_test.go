package snapshot

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alecthomas/assert"
	"github.com/kjk/gradebook/siser"
)

func writeFiles(t *testing.T, dir string, files map[string][]byte) {
	for name, d := range files {
		assert.NoError(t, os.WriteFile(filepath.Join(dir, name), d, 0644))
	}
}

var testFiles = []File{
	{Name: "students.dat", RecordSize: 4},
	{Name: "empty.dat", RecordSize: 8},
	{Name: "missing.dat", RecordSize: 8},
	{Name: "roster.dat"},
}

func TestRoundTrip(t *testing.T) {
	for _, ext := range []string{"", ".zst", ".br"} {
		src := t.TempDir()
		writeFiles(t, src, map[string][]byte{
			"students.dat": bytes.Repeat([]byte{1, 2, 3, 4}, 100),
			"empty.dat":    nil,
			"roster.dat":   []byte("abc\n"),
		})
		s, err := Collect(src, testFiles)
		assert.NoError(t, err)
		// missing file is stored as empty
		assert.Equal(t, 4, len(s.Entries))
		missing := s.Get("missing.dat")
		assert.True(t, missing != nil)
		assert.Equal(t, int64(0), missing.Size)

		path := filepath.Join(t.TempDir(), "snap.bin"+ext)
		assert.NoError(t, s.WriteFile(path))

		s2, err := ReadFile(path)
		assert.NoError(t, err, ext)
		assert.Equal(t, 4, len(s2.Entries))
		for _, e := range s.Entries {
			e2 := s2.Get(e.Path)
			assert.True(t, e2 != nil, e.Path)
			assert.Equal(t, e.Size, e2.Size)
			assert.Equal(t, e.Sha1, e2.Sha1)
			assert.True(t, bytes.Equal(e.Data, e2.Data), e.Path)
		}

		dst := filepath.Join(t.TempDir(), "restored")
		assert.NoError(t, s2.Restore(dst))
		for _, name := range []string{"students.dat", "empty.dat", "roster.dat"} {
			exp, err := os.ReadFile(filepath.Join(src, name))
			assert.NoError(t, err)
			got, err := os.ReadFile(filepath.Join(dst, name))
			assert.NoError(t, err)
			assert.True(t, bytes.Equal(exp, got), name)
		}
		st, err := os.Stat(filepath.Join(dst, "missing.dat"))
		assert.NoError(t, err)
		assert.Equal(t, int64(0), st.Size())
	}
}

func TestRestoreReplacesNewerFiles(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string][]byte{"students.dat": {1, 2, 3, 4}})
	s, err := Collect(dir, testFiles)
	assert.NoError(t, err)

	// files created and grown after the snapshot
	writeFiles(t, dir, map[string][]byte{
		"students.dat": {1, 2, 3, 4, 5, 6, 7, 8},
		"missing.dat":  {1, 2, 3, 4, 5, 6, 7, 8},
	})
	assert.NoError(t, s.Restore(dir))

	d, err := os.ReadFile(filepath.Join(dir, "students.dat"))
	assert.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, d)
	d, err = os.ReadFile(filepath.Join(dir, "missing.dat"))
	assert.NoError(t, err)
	assert.Equal(t, 0, len(d))
}

func TestCorruptSource(t *testing.T) {
	src := t.TempDir()
	writeFiles(t, src, map[string][]byte{"students.dat": {1, 2, 3, 4, 5}})
	_, err := Collect(src, testFiles)
	assert.True(t, errors.Is(err, ErrCorruptSource))
}

func TestSha1Mismatch(t *testing.T) {
	src := t.TempDir()
	writeFiles(t, src, map[string][]byte{"roster.dat": []byte("0123456789")})
	s, err := Collect(src, testFiles)
	assert.NoError(t, err)
	var buf bytes.Buffer
	assert.NoError(t, s.Write(&buf))

	d := buf.Bytes()
	// flip a byte of file content at the end
	d[len(d)-1] = 'x'
	_, err = Read(bytes.NewReader(d))
	assert.True(t, errors.Is(err, ErrSha1Mismatch))

	// truncated content
	_, err = Read(bytes.NewReader(d[:len(d)-3]))
	assert.Error(t, err)
}

func TestBadHeader(t *testing.T) {
	_, err := Read(bytes.NewReader(nil))
	assert.Error(t, err)

	var buf bytes.Buffer
	buf.WriteString("--- 3 1700000000000 not-a-snapshot\nabc\n")
	_, err = Read(&buf)
	assert.Error(t, err)
}

func TestHugeSizeInHeader(t *testing.T) {
	var rec siser.Record
	rec.Name = entryName
	assert.NoError(t, rec.Write(KeyPath, "students.dat", KeySize, "4611686018427387904", KeySha1, "da39a3ee5e6b4b0d3255bfef95601890afd80709"))
	var hdr bytes.Buffer
	_, err := siser.NewWriter(&hdr).WriteRecord(&rec)
	assert.NoError(t, err)

	var buf bytes.Buffer
	_, err = siser.NewWriter(&buf).Write(hdr.Bytes(), time.Now(), headerName)
	assert.NoError(t, err)
	buf.WriteString("only a few bytes")

	_, err = Read(&buf)
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
}

func TestWriteSizeMismatch(t *testing.T) {
	s := &Snapshot{Entries: []*Entry{{Path: "students.dat", Size: 4}}}
	var buf bytes.Buffer
	assert.Error(t, s.Write(&buf))
	assert.Equal(t, 0, buf.Len())
}

func TestInvalidName(t *testing.T) {
	_, err := Collect(t.TempDir(), []File{{Name: "../etc/passwd"}})
	assert.Error(t, err)

	s := &Snapshot{Entries: []*Entry{{Path: "..", Data: []byte("x")}}}
	assert.Error(t, s.Restore(t.TempDir()))
}
