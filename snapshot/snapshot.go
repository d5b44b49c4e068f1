// Package snapshot bundles record files of a data directory into a single
// file and restores them.
//
// A snapshot is siser framed. The first block, named "gradebook-snapshot",
// is a list of siser records, one per file, with Path, Size and Sha1 values.
// Contents of the files follow, in the same order, without framing.
// Snapshot files ending with .zst are zstd compressed, with .br brotli
// compressed.
package snapshot

import (
	"bufio"
	"bytes"
	"crypto/sha1"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kjk/gradebook/atomicfile"
	"github.com/kjk/gradebook/log"
	"github.com/kjk/gradebook/siser"
)

const (
	KeyPath = "Path"
	KeySize = "Size"
	KeySha1 = "Sha1"

	headerName = "gradebook-snapshot"
	entryName  = "file"
)

var (
	// ErrSha1Mismatch means content of a file doesn't match its recorded sha1
	ErrSha1Mismatch = errors.New("sha1 mismatch")
	// ErrCorruptSource means a data file ends with a partial record
	ErrCorruptSource = errors.New("file size is not a multiple of record size")
)

// File describes a file to include in a snapshot
type File struct {
	Name string
	// if > 0, size of the file must be a multiple of RecordSize
	RecordSize int
}

// Entry is a single file in a snapshot
type Entry struct {
	// file name, relative to data directory
	Path string
	Size int64
	// sha1 of content, in hex format
	Sha1 string
	Data []byte
}

type Snapshot struct {
	Created time.Time
	Entries []*Entry
}

func sha1HexOfBytes(d []byte) string {
	h := sha1.New()
	h.Write(d)
	return fmt.Sprintf("%x", h.Sum(nil))
}

// only plain file names, a snapshot must not write outside of data directory
func validateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid file name '%s' in snapshot", name)
	}
	return nil
}

// Collect reads files from dir. A missing file is stored as an empty file
// so that Restore replaces whatever was created after the snapshot.
func Collect(dir string, files []File) (*Snapshot, error) {
	s := &Snapshot{Created: time.Now()}
	for _, f := range files {
		if err := validateName(f.Name); err != nil {
			return nil, err
		}
		path := filepath.Join(dir, f.Name)
		d, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, err
			}
			// an empty record file is the same as a missing one
			log.Verbosef("snapshot.Collect: '%s' doesn't exist, storing as empty\n", path)
			d = nil
		}
		if f.RecordSize > 0 && len(d)%f.RecordSize != 0 {
			return nil, fmt.Errorf("%w: '%s' has %d bytes, record size is %d", ErrCorruptSource, path, len(d), f.RecordSize)
		}
		e := &Entry{
			Path: f.Name,
			Size: int64(len(d)),
			Sha1: sha1HexOfBytes(d),
			Data: d,
		}
		s.Entries = append(s.Entries, e)
	}
	return s, nil
}

// Get returns entry for a file name
func (s *Snapshot) Get(name string) *Entry {
	for _, e := range s.Entries {
		if e.Path == name {
			return e
		}
	}
	return nil
}

func serializeHeader(entries []*Entry) ([]byte, error) {
	var buf bytes.Buffer
	sw := siser.NewWriter(&buf)

	var r siser.Record
	r.Name = entryName
	for _, e := range entries {
		r.Reset()
		err := r.Write(KeyPath, e.Path, KeySize, strconv.FormatInt(e.Size, 10), KeySha1, e.Sha1)
		if err != nil {
			return nil, err
		}
		if _, err = sw.WriteRecord(&r); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// Write writes snapshot in uncompressed format
func (s *Snapshot) Write(w io.Writer) error {
	for _, e := range s.Entries {
		if int64(len(e.Data)) != e.Size {
			return fmt.Errorf("'%s' has Size %d but %d bytes of data", e.Path, e.Size, len(e.Data))
		}
	}
	hdr, err := serializeHeader(s.Entries)
	if err != nil {
		return err
	}
	sw := siser.NewWriter(w)
	created := s.Created
	if created.IsZero() {
		created = time.Now()
	}
	if _, err = sw.Write(hdr, created, headerName); err != nil {
		return err
	}
	for _, e := range s.Entries {
		if len(e.Data) == 0 {
			continue
		}
		if _, err = w.Write(e.Data); err != nil {
			return err
		}
	}
	return nil
}

func parseEntry(r *siser.ReadRecord) (*Entry, error) {
	get := func(key string) (string, error) {
		v, ok := r.Get(key)
		if !ok {
			return "", fmt.Errorf("missing '%s' value", key)
		}
		return v, nil
	}
	path, err := get(KeyPath)
	if err != nil {
		return nil, err
	}
	if err = validateName(path); err != nil {
		return nil, err
	}
	sizeStr, err := get(KeySize)
	if err != nil {
		return nil, err
	}
	size, err := strconv.ParseInt(sizeStr, 10, 64)
	if err != nil || size < 0 {
		return nil, fmt.Errorf("value '%s' for '%s' is not a valid size", sizeStr, KeySize)
	}
	hash, err := get(KeySha1)
	if err != nil {
		return nil, err
	}
	return &Entry{Path: path, Size: size, Sha1: hash}, nil
}

// Read reads uncompressed snapshot and verifies sha1 of every file
func Read(r io.Reader) (*Snapshot, error) {
	br := bufio.NewReader(r)
	sr := siser.NewReader(br)
	if !sr.ReadNextData() {
		if sr.Err() != nil {
			return nil, sr.Err()
		}
		return nil, errors.New("empty snapshot")
	}
	if sr.Name != headerName {
		return nil, fmt.Errorf("expected header named '%s', got '%s'", headerName, sr.Name)
	}
	s := &Snapshot{Created: sr.Timestamp}

	hr := siser.NewReader(bufio.NewReader(bytes.NewReader(sr.Data)))
	for hr.ReadNextRecord() {
		e, err := parseEntry(hr.Record)
		if err != nil {
			return nil, err
		}
		s.Entries = append(s.Entries, e)
	}
	if hr.Err() != nil {
		return nil, hr.Err()
	}

	// file contents follow the header. Size isn't trusted for allocation
	for _, e := range s.Entries {
		var buf bytes.Buffer
		if _, err := io.CopyN(&buf, br, e.Size); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, fmt.Errorf("reading '%s' from snapshot: %w", e.Path, err)
		}
		e.Data = buf.Bytes()
		if got := sha1HexOfBytes(e.Data); got != e.Sha1 {
			return nil, fmt.Errorf("%w: '%s', expected %s, got %s", ErrSha1Mismatch, e.Path, e.Sha1, got)
		}
	}
	return s, nil
}

// WriteFile atomically writes snapshot to path, compressed according to
// extension of path
func (s *Snapshot) WriteFile(path string) error {
	f, err := atomicfile.New(path)
	if err != nil {
		return err
	}
	defer f.Abort()

	bw := bufio.NewWriter(f)
	cw, err := newCompressWriter(bw, path)
	if err != nil {
		return err
	}
	if err = s.Write(cw); err != nil {
		return err
	}
	if err = cw.Close(); err != nil {
		return err
	}
	if err = bw.Flush(); err != nil {
		return err
	}
	if err = f.Commit(); err != nil {
		return err
	}
	log.Event("snapshot.write", "path", path, "files", len(s.Entries))
	return nil
}

// ReadFile reads a snapshot written with WriteFile
func ReadFile(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r, release, err := newDecompressReader(f, path)
	if err != nil {
		return nil, fmt.Errorf("opening '%s': %w", path, err)
	}
	defer release()
	s, err := Read(r)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot '%s': %w", path, err)
	}
	return s, nil
}

// Restore writes every file of the snapshot into dir, replacing existing
// files. Each file is replaced atomically but a failure can leave some
// files restored and others not.
func (s *Snapshot) Restore(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	for _, e := range s.Entries {
		if err := validateName(e.Path); err != nil {
			return err
		}
		if err := restoreEntry(dir, e); err != nil {
			return fmt.Errorf("restoring '%s': %w", e.Path, err)
		}
	}
	log.Event("snapshot.restore", "dir", dir, "files", len(s.Entries))
	return nil
}

func restoreEntry(dir string, e *Entry) error {
	f, err := atomicfile.New(filepath.Join(dir, e.Path))
	if err != nil {
		return err
	}
	defer f.Abort()
	if _, err = f.Write(e.Data); err != nil {
		return err
	}
	return f.Commit()
}
