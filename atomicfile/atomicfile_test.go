package atomicfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func assertFileExists(t *testing.T, path string) {
	st, err := os.Stat(path)
	if err != nil {
		t.Fatalf("file '%s' doesn't exist, os.Stat() failed with '%s'", path, err)
	}
	if !st.Mode().IsRegular() {
		t.Fatalf("path '%s' exists but is not a file (mode: %d)", path, int(st.Mode()))
	}
}

func assertFileNotExists(t *testing.T, path string) {
	_, err := os.Stat(path)
	if err == nil {
		t.Fatalf("file '%s' exist, expected to not exist", path)
	}
}

func assertNoError(t *testing.T, err error) {
	if err != nil {
		t.Fatalf("error: %s", err)
	}
}

func assertFileContent(t *testing.T, path string, exp string) {
	d, err := os.ReadFile(path)
	assertNoError(t, err)
	if string(d) != exp {
		t.Fatalf("path: '%s', expected content: '%s', got: '%s'", path, exp, string(d))
	}
}

func TestCommitReplaces(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "enrollments.dat")
	assertNoError(t, os.WriteFile(dst, []byte("old"), 0644))

	f, err := New(dst)
	assertNoError(t, err)
	assertFileExists(t, f.StagingPath())
	_, err = f.Write([]byte("new content"))
	assertNoError(t, err)
	// destination is untouched until Commit
	assertFileContent(t, dst, "old")

	assertNoError(t, f.Commit())
	assertFileNotExists(t, f.StagingPath())
	assertFileContent(t, dst, "new content")
	// calling Commit twice is a no-op
	assertNoError(t, f.Commit())
}

func TestStagingFixedName(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "enrollments.dat")
	staging := filepath.Join(dir, "enrollments.dat.tmp")
	// a leftover from a crashed rewrite gets truncated
	assertNoError(t, os.WriteFile(staging, []byte("garbage from before"), 0644))

	f, err := NewStaging(dst, staging)
	assertNoError(t, err)
	_, err = f.Write([]byte("abc"))
	assertNoError(t, err)
	assertNoError(t, f.Commit())
	assertFileContent(t, dst, "abc")
	assertFileNotExists(t, staging)
}

func TestStagingOtherDir(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "a.dat")
	staging := filepath.Join(t.TempDir(), "a.dat.tmp")
	_, err := NewStaging(dst, staging)
	if err == nil {
		t.Fatal("expected error for staging file in a different directory")
	}
}

func TestAbort(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "students.dat")
	assertNoError(t, os.WriteFile(dst, []byte("keep me"), 0644))

	f, err := New(dst)
	assertNoError(t, err)
	_, err = f.Write([]byte("discarded"))
	assertNoError(t, err)
	f.Abort()
	assertFileNotExists(t, f.StagingPath())
	assertFileContent(t, dst, "keep me")

	_, err = f.Write([]byte("more"))
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
	if err = f.Commit(); !errors.Is(err, ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
	// Abort after Abort is fine
	f.Abort()
}

func abortWithPanic(t *testing.T, f *File) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected to panic")
		}
	}()
	defer f.Abort()
	_, err := f.Write([]byte("foo"))
	assertNoError(t, err)
	panic("simulating a crash")
}

func TestAbortOnPanic(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "roster.dat")
	f, err := New(dst)
	assertNoError(t, err)
	abortWithPanic(t, f)
	assertFileNotExists(t, f.StagingPath())
	assertFileNotExists(t, dst)
}

func TestSimulatedError(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "classes.dat")
	f, err := New(dst)
	assertNoError(t, err)
	errSimulated := errors.New("simulated")
	f.err = errSimulated
	if err = f.Commit(); err != errSimulated {
		t.Fatalf("expected simulated error, got %v", err)
	}
	assertFileNotExists(t, f.StagingPath())
	assertFileNotExists(t, dst)
}

func TestMissingDir(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "foo", "bar.dat")
	f, err := New(dst)
	if err == nil {
		t.Fatal("expected error creating staging file in missing directory")
	}
	if f != nil {
		t.Fatalf("expected f to be nil, got %v", f)
	}
}
