// Package atomicfile replaces a file in one step.
//
// Data is written to a staging file in the same directory as the destination.
// Commit() syncs and closes the staging file, renames it over the destination
// and syncs the directory. If anything fails before the rename, the staging
// file is removed and the destination is left untouched.
//
//	f, err := atomicfile.New(path)
//	if err != nil {
//		return err
//	}
//	// a no-op after Commit()
//	defer f.Abort()
//	if _, err = f.Write(data); err != nil {
//		return err
//	}
//	return f.Commit()
package atomicfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Some references:
// - https://www.slideshare.net/nan1nan1/eat-my-data
// - https://lwn.net/Articles/457667/

var (
	// ErrAborted is returned by calls after Abort()
	ErrAborted = errors.New("aborted")

	_ io.Writer = &File{}
)

// File is a staging file that replaces dstPath on Commit()
type File struct {
	dstPath     string
	dir         string
	stagingPath string
	f           *os.File
	// first error we encountered, sticky
	err error
}

// New creates a staging file with a unique name next to path
func New(path string) (*File, error) {
	dir, name, err := splitDst(path)
	if err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(dir, name+".*.tmp")
	if err != nil {
		return nil, err
	}
	return &File{
		dstPath:     path,
		dir:         dir,
		stagingPath: f.Name(),
		f:           f,
	}, nil
}

// NewStaging creates (or truncates) stagingPath as the staging file for path.
// stagingPath must be in the same directory as path so that rename is atomic.
func NewStaging(path string, stagingPath string) (*File, error) {
	dir, _, err := splitDst(path)
	if err != nil {
		return nil, err
	}
	stagingDir, err := filepath.Abs(filepath.Dir(stagingPath))
	if err != nil {
		return nil, err
	}
	if stagingDir != dir {
		return nil, fmt.Errorf("staging file '%s' must be in directory '%s'", stagingPath, dir)
	}
	f, err := os.OpenFile(stagingPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	return &File{
		dstPath:     path,
		dir:         dir,
		stagingPath: stagingPath,
		f:           f,
	}, nil
}

func splitDst(path string) (string, string, error) {
	dir, name := filepath.Split(path)
	if name == "" {
		return "", "", &os.PathError{Op: "open", Path: path, Err: os.ErrInvalid}
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", "", err
	}
	return dir, name, nil
}

// StagingPath returns path of the staging file
func (f *File) StagingPath() string {
	return f.stagingPath
}

func (f *File) fail(err error) error {
	if err == nil {
		return nil
	}
	if f.err == nil {
		f.err = err
	}
	_ = f.finish()
	return err
}

func (f *File) Write(d []byte) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	n, err := f.f.Write(d)
	return n, f.fail(err)
}

func (f *File) done() bool {
	return f.f == nil
}

// Abort removes the staging file if Commit() wasn't called yet.
// Use with defer. Abort after Commit is a no-op.
func (f *File) Abort() {
	if f == nil || f.done() {
		return
	}
	f.err = ErrAborted
	_ = f.finish()
}

// Commit replaces the destination with the staging file.
// Can be called multiple times, returns the first error.
func (f *File) Commit() error {
	return f.finish()
}

func (f *File) finish() error {
	if f.done() {
		return f.err
	}
	file := f.f
	f.f = nil

	// https://www.joeshaw.org/dont-defer-close-on-writable-files/
	errSync := file.Sync()
	errClose := file.Close()

	renamed := false
	defer func() {
		if !renamed {
			_ = os.Remove(f.stagingPath)
		}
	}()

	if f.err != nil {
		return f.err
	}
	err := errSync
	if err == nil {
		err = errClose
	}
	if err == nil {
		err = os.Rename(f.stagingPath, f.dstPath)
		renamed = err == nil
		if err != nil {
			err = fmt.Errorf("rename '%s' => '%s': %w", f.stagingPath, f.dstPath, err)
		}
		// directory sync makes the rename durable, failing it is not fatal
		if d, _ := os.Open(f.dir); d != nil {
			_ = d.Sync()
			_ = d.Close()
		}
	}
	f.err = err
	return err
}
