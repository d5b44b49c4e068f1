// Package recfile stores fixed-size records in a flat file.
//
// The file is a plain concatenation of records encoded by a Codec: no header,
// no length prefix. Records are appended at the end, read by a linear scan and
// updated only by Upsert, which rewrites the whole file into a staging file and
// renames it over the original.
//
// # Basic Usage
//
//	s := &recfile.Store[Student]{
//	    DataDir:  "./data",
//	    FileName: "students.dat",
//	    Codec:    studentCodec{},
//	}
//	if err := recfile.OpenStore(s); err != nil {
//	    return err
//	}
//	err = s.Append(&student)
//	students, err := s.LoadAll(256)
//
// # Thread Safety
//
// Operations on one Store are serialized by a mutex. Nothing protects
// the file from other processes or from another Store opened on the same file.
package recfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/kjk/gradebook/atomicfile"
	"github.com/kjk/gradebook/log"
)

var (
	// ErrTruncated is returned by LoadAll together with the first maxRecords
	// records when the file holds more records
	ErrTruncated = errors.New("more records than requested")
	// ErrCorrupt means the file ends with a partial record
	ErrCorrupt = errors.New("file size is not a multiple of record size")
)

// Codec converts records of type T to and from fixed-size blocks
type Codec[T any] interface {
	// Size is the size of an encoded record in bytes
	Size() int
	// Encode writes v into buf, len(buf) == Size()
	Encode(buf []byte, v *T) error
	// Decode reads buf into v, len(buf) == Size()
	Decode(buf []byte, v *T) error
}

type Store[T any] struct {
	DataDir  string
	FileName string
	// name of the file Upsert writes before renaming it over FileName.
	// defaults to FileName + ".tmp"
	StagingFileName string
	Codec           Codec[T]

	path        string
	stagingPath string
	mu          sync.Mutex
}

// OpenStore validates s and resolves its paths. DataDir is created if needed,
// the data file is not: a missing file is an empty store.
func OpenStore[T any](s *Store[T]) error {
	if s.DataDir == "" {
		return fmt.Errorf("data directory is not set. For current directory, use '.'")
	}
	if s.FileName == "" {
		return fmt.Errorf("file name is not set")
	}
	if s.Codec == nil || s.Codec.Size() <= 0 {
		return fmt.Errorf("codec for '%s' is missing or has invalid record size", s.FileName)
	}
	if s.StagingFileName == "" {
		s.StagingFileName = s.FileName + ".tmp"
	}
	if s.StagingFileName == s.FileName {
		return fmt.Errorf("staging file name must differ from '%s'", s.FileName)
	}

	var err error
	s.path, err = filepath.Abs(filepath.Join(s.DataDir, s.FileName))
	if err != nil {
		return fmt.Errorf("failed to get absolute path for data file: %w", err)
	}
	s.stagingPath, err = filepath.Abs(filepath.Join(s.DataDir, s.StagingFileName))
	if err != nil {
		return fmt.Errorf("failed to get absolute path for staging file: %w", err)
	}
	return os.MkdirAll(s.DataDir, 0755)
}

// Path returns absolute path of the data file
func (s *Store[T]) Path() string {
	return s.path
}

// RecordSize returns size of a single record in bytes
func (s *Store[T]) RecordSize() int {
	return s.Codec.Size()
}

// wholeRecords returns number of records in the file.
// A missing file has 0 records.
func (s *Store[T]) wholeRecords() (int, error) {
	st, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	size := st.Size()
	recSize := int64(s.Codec.Size())
	n := int(size / recSize)
	if size%recSize != 0 {
		return n, fmt.Errorf("%w: '%s' has %d bytes, record size is %d", ErrCorrupt, s.path, size, recSize)
	}
	return n, nil
}

func (s *Store[T]) encode(v *T) ([]byte, error) {
	buf := make([]byte, s.Codec.Size())
	if err := s.Codec.Encode(buf, v); err != nil {
		return nil, fmt.Errorf("encoding record for '%s': %w", s.FileName, err)
	}
	return buf, nil
}

// Append writes v at the end of the file, creating the file if needed.
// Refuses to write to a file that ends with a partial record.
func (s *Store[T]) Append(v *T) error {
	d, err := s.encode(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err = s.wholeRecords(); err != nil {
		return err
	}
	file, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	if _, err = file.Write(d); err != nil {
		file.Close()
		return err
	}
	if err = file.Sync(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// scan decodes records from r in order and calls fn for each one with the
// decoded record and its raw bytes (valid only during the call).
// Stops when fn returns false. A partial record at the end is dropped.
func (s *Store[T]) scan(r io.Reader, fn func(v *T, raw []byte) bool) error {
	br := bufio.NewReader(r)
	buf := make([]byte, s.Codec.Size())
	for i := 0; ; i++ {
		_, err := io.ReadFull(br, buf)
		if err == io.EOF {
			return nil
		}
		if err == io.ErrUnexpectedEOF {
			log.Verbosef("recfile: dropped partial record %d at the end of '%s'\n", i, s.path)
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading record %d of '%s': %w", i, s.path, err)
		}
		var v T
		if err = s.Codec.Decode(buf, &v); err != nil {
			return fmt.Errorf("decoding record %d of '%s': %w", i, s.path, err)
		}
		if !fn(&v, buf) {
			return nil
		}
	}
}

// scanFile opens the data file and scans it. Returns false if it doesn't exist.
func (s *Store[T]) scanFile(fn func(v *T, raw []byte) bool) (bool, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()
	return true, s.scan(f, fn)
}

// LoadAll returns up to maxRecords records in file order, <= 0 means no limit.
// A missing file returns no records and no error.
// If the file has more than maxRecords records, returns the first maxRecords
// records and ErrTruncated.
func (s *Store[T]) LoadAll(maxRecords int) ([]T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res []T
	truncated := false
	_, err := s.scanFile(func(v *T, _ []byte) bool {
		if maxRecords > 0 && len(res) == maxRecords {
			truncated = true
			return false
		}
		res = append(res, *v)
		return true
	})
	if err != nil {
		return res, err
	}
	if truncated {
		return res, fmt.Errorf("%w: '%s' has more than %d records", ErrTruncated, s.FileName, maxRecords)
	}
	return res, nil
}

// Find returns the first record for which match returns true
func (s *Store[T]) Find(match func(v *T) bool) (T, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res T
	found := false
	_, err := s.scanFile(func(v *T, _ []byte) bool {
		if match(v) {
			res = *v
			found = true
			return false
		}
		return true
	})
	if err != nil || !found {
		var zero T
		return zero, false, err
	}
	return res, true, nil
}

// Upsert replaces every record for which sameKey(record, v) is true with v.
// If there are no such records, v is appended. The file is rewritten into
// the staging file which then replaces the original, so a failure leaves
// the original untouched.
// A missing file is treated as empty: the result holds only v.
// Returns number of replaced records, 0 means v was inserted.
func (s *Store[T]) Upsert(v *T, sameKey func(a, b *T) bool) (int, error) {
	d, err := s.encode(v)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	nRecords, err := s.wholeRecords()
	if err != nil {
		return 0, err
	}
	src, err := os.Open(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return 0, err
	}
	if src != nil {
		defer src.Close()
	}

	dst, err := atomicfile.NewStaging(s.path, s.stagingPath)
	if err != nil {
		return 0, fmt.Errorf("creating staging file for '%s': %w", s.FileName, err)
	}
	defer dst.Abort()

	w := bufio.NewWriter(dst)
	replaced := 0
	var errWrite error
	if src != nil {
		err = s.scan(src, func(rec *T, raw []byte) bool {
			out := raw
			if sameKey(rec, v) {
				out = d
				replaced++
			}
			_, errWrite = w.Write(out)
			return errWrite == nil
		})
		if err != nil {
			return 0, err
		}
		if errWrite != nil {
			return 0, errWrite
		}
	}
	if replaced == 0 {
		if _, err = w.Write(d); err != nil {
			return 0, err
		}
	}
	if err = w.Flush(); err != nil {
		return 0, err
	}
	if err = dst.Commit(); err != nil {
		return 0, err
	}
	log.Verbosef("recfile: rewrote '%s', %d records, replaced %d\n", s.path, nRecords, replaced)
	return replaced, nil
}

// Check returns number of records in the file and ErrCorrupt if the file
// ends with a partial record
func (s *Store[T]) Check() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wholeRecords()
}

// Repair drops a partial record at the end of the file.
// Returns number of bytes removed.
func (s *Store[T]) Repair() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.wholeRecords()
	if err == nil || !errors.Is(err, ErrCorrupt) {
		return 0, err
	}
	st, err := os.Stat(s.path)
	if err != nil {
		return 0, err
	}
	keep := int64(n) * int64(s.Codec.Size())
	if err = os.Truncate(s.path, keep); err != nil {
		return 0, err
	}
	log.Logf("recfile: removed %d bytes of partial record from '%s'\n", st.Size()-keep, s.path)
	return st.Size() - keep, nil
}
