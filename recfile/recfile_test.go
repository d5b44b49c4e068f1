package recfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/kjk/gradebook/binrec"
)

type testRec struct {
	ID   int64
	Name string
}

type testCodec struct{}

func (testCodec) Size() int { return 8 + 16 }

func (testCodec) Encode(buf []byte, v *testRec) error {
	e := binrec.NewEncoder(buf)
	e.Int64(v.ID)
	e.Text(v.Name, 16)
	return e.Err()
}

func (testCodec) Decode(buf []byte, v *testRec) error {
	d := binrec.NewDecoder(buf)
	v.ID = d.Int64()
	v.Name = d.Text(16)
	return d.Err()
}

func sameID(a, b *testRec) bool {
	return a.ID == b.ID
}

func a(_ *testing.T, cond bool, format string, args ...any) {
	if !cond {
		msg := format
		if len(args) > 0 {
			msg = fmt.Sprintf(format, args...)
		}
		panic(msg)
	}
}

func createStore(t *testing.T) *Store[testRec] {
	s := &Store[testRec]{
		DataDir:  t.TempDir(),
		FileName: "test.dat",
		Codec:    testCodec{},
	}
	err := OpenStore(s)
	a(t, err == nil, "OpenStore() failed with '%v'", err)
	return s
}

func appendRecs(t *testing.T, s *Store[testRec], recs ...testRec) {
	for i := range recs {
		err := s.Append(&recs[i])
		a(t, err == nil, "Append() of %v failed with '%v'", recs[i], err)
	}
}

func genRecs(n int) []testRec {
	var res []testRec
	for i := 0; i < n; i++ {
		res = append(res, testRec{ID: int64(i + 1), Name: fmt.Sprintf("rec %d", i+1)})
	}
	return res
}

func assertRecs(t *testing.T, got []testRec, exp []testRec) {
	a(t, len(got) == len(exp), "expected %d records, got %d", len(exp), len(got))
	for i := range exp {
		a(t, got[i] == exp[i], "record %d: expected %v, got %v", i, exp[i], got[i])
	}
}

func TestOpenStoreValidation(t *testing.T) {
	err := OpenStore(&Store[testRec]{FileName: "x.dat", Codec: testCodec{}})
	a(t, err != nil, "expected error for missing DataDir")
	err = OpenStore(&Store[testRec]{DataDir: t.TempDir(), Codec: testCodec{}})
	a(t, err != nil, "expected error for missing FileName")
	err = OpenStore(&Store[testRec]{DataDir: t.TempDir(), FileName: "x.dat"})
	a(t, err != nil, "expected error for missing Codec")
	err = OpenStore(&Store[testRec]{DataDir: t.TempDir(), FileName: "x.dat", StagingFileName: "x.dat", Codec: testCodec{}})
	a(t, err != nil, "expected error for staging file same as data file")
}

func TestLoadMissingFile(t *testing.T) {
	s := createStore(t)
	recs, err := s.LoadAll(10)
	a(t, err == nil, "LoadAll() on missing file failed with '%v'", err)
	a(t, len(recs) == 0, "expected 0 records, got %d", len(recs))
	_, err = os.Stat(s.Path())
	a(t, os.IsNotExist(err), "LoadAll() shouldn't create the file")
}

func TestAppendLoadOrder(t *testing.T) {
	s := createStore(t)
	exp := genRecs(100)
	appendRecs(t, s, exp[:1]...)
	recs, err := s.LoadAll(0)
	a(t, err == nil, "LoadAll() failed with '%v'", err)
	assertRecs(t, recs, exp[:1])

	appendRecs(t, s, exp[1:]...)
	recs, err = s.LoadAll(0)
	a(t, err == nil, "LoadAll() failed with '%v'", err)
	assertRecs(t, recs, exp)

	st, err := os.Stat(s.Path())
	a(t, err == nil, "os.Stat() failed with '%v'", err)
	a(t, st.Size() == int64(len(exp)*s.RecordSize()), "unexpected file size %d", st.Size())
}

func TestLoadTruncated(t *testing.T) {
	s := createStore(t)
	exp := genRecs(5)
	appendRecs(t, s, exp...)

	recs, err := s.LoadAll(3)
	a(t, errors.Is(err, ErrTruncated), "expected ErrTruncated, got '%v'", err)
	assertRecs(t, recs, exp[:3])

	// exactly the number of records is not truncation
	recs, err = s.LoadAll(5)
	a(t, err == nil, "LoadAll(5) failed with '%v'", err)
	assertRecs(t, recs, exp)
}

func writePartial(t *testing.T, s *Store[testRec], n int) {
	f, err := os.OpenFile(s.Path(), os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
	a(t, err == nil, "os.OpenFile() failed with '%v'", err)
	_, err = f.Write(make([]byte, n))
	a(t, err == nil, "Write() failed with '%v'", err)
	a(t, f.Close() == nil, "Close() failed")
}

func TestPartialTail(t *testing.T) {
	s := createStore(t)
	exp := genRecs(3)
	appendRecs(t, s, exp...)
	writePartial(t, s, 7)

	recs, err := s.LoadAll(0)
	a(t, err == nil, "LoadAll() failed with '%v'", err)
	assertRecs(t, recs, exp)

	n, err := s.Check()
	a(t, errors.Is(err, ErrCorrupt), "expected ErrCorrupt, got '%v'", err)
	a(t, n == 3, "expected 3 whole records, got %d", n)

	extra := testRec{ID: 99, Name: "extra"}
	err = s.Append(&extra)
	a(t, errors.Is(err, ErrCorrupt), "Append() should refuse corrupt file, got '%v'", err)
	_, err = s.Upsert(&extra, sameID)
	a(t, errors.Is(err, ErrCorrupt), "Upsert() should refuse corrupt file, got '%v'", err)

	removed, err := s.Repair()
	a(t, err == nil, "Repair() failed with '%v'", err)
	a(t, removed == 7, "expected 7 bytes removed, got %d", removed)
	n, err = s.Check()
	a(t, err == nil && n == 3, "after Repair() expected 3 records, got %d, err: '%v'", n, err)

	// Repair of a good file is a no-op
	removed, err = s.Repair()
	a(t, err == nil && removed == 0, "Repair() of a good file: removed %d, err: '%v'", removed, err)

	appendRecs(t, s, extra)
	recs, err = s.LoadAll(0)
	a(t, err == nil, "LoadAll() failed with '%v'", err)
	assertRecs(t, recs, append(exp, extra))
}

func TestFind(t *testing.T) {
	s := createStore(t)
	_, found, err := s.Find(func(v *testRec) bool { return true })
	a(t, err == nil && !found, "Find() on missing file: found %v, err: '%v'", found, err)

	recs := genRecs(10)
	// duplicate id: first match wins
	recs = append(recs, testRec{ID: 5, Name: "duplicate"})
	appendRecs(t, s, recs...)

	v, found, err := s.Find(func(v *testRec) bool { return v.ID == 5 })
	a(t, err == nil && found, "Find(5): found %v, err: '%v'", found, err)
	a(t, v.Name == "rec 5", "expected first match 'rec 5', got '%s'", v.Name)

	v, found, err = s.Find(func(v *testRec) bool { return v.ID == 500 })
	a(t, err == nil && !found, "Find(500): found %v, err: '%v'", found, err)
	a(t, v == testRec{}, "not found should return zero value, got %v", v)
}

func TestUpsert(t *testing.T) {
	s := createStore(t)
	staging := filepath.Join(s.DataDir, s.StagingFileName)

	// insert into missing file
	r1 := testRec{ID: 1, Name: "first"}
	n, err := s.Upsert(&r1, sameID)
	a(t, err == nil && n == 0, "Upsert() insert: replaced %d, err: '%v'", n, err)

	exp := genRecs(5)[1:]
	appendRecs(t, s, exp...)
	exp = append([]testRec{r1}, exp...)

	// replace in place
	upd := testRec{ID: 3, Name: "updated"}
	n, err = s.Upsert(&upd, sameID)
	a(t, err == nil && n == 1, "Upsert() replace: replaced %d, err: '%v'", n, err)
	exp[2] = upd
	recs, err := s.LoadAll(0)
	a(t, err == nil, "LoadAll() failed with '%v'", err)
	assertRecs(t, recs, exp)
	_, err = os.Stat(staging)
	a(t, os.IsNotExist(err), "staging file should not exist after Upsert()")

	// idempotent
	n, err = s.Upsert(&upd, sameID)
	a(t, err == nil && n == 1, "second Upsert(): replaced %d, err: '%v'", n, err)
	recs, err = s.LoadAll(0)
	a(t, err == nil, "LoadAll() failed with '%v'", err)
	assertRecs(t, recs, exp)

	// insert at the end
	ins := testRec{ID: 77, Name: "new"}
	n, err = s.Upsert(&ins, sameID)
	a(t, err == nil && n == 0, "Upsert() insert: replaced %d, err: '%v'", n, err)
	exp = append(exp, ins)
	recs, err = s.LoadAll(0)
	a(t, err == nil, "LoadAll() failed with '%v'", err)
	assertRecs(t, recs, exp)
}

func TestUpsertReplacesDuplicates(t *testing.T) {
	s := createStore(t)
	appendRecs(t, s, testRec{ID: 1, Name: "a"}, testRec{ID: 2, Name: "b"}, testRec{ID: 1, Name: "c"})
	upd := testRec{ID: 1, Name: "z"}
	n, err := s.Upsert(&upd, sameID)
	a(t, err == nil && n == 2, "expected 2 replaced, got %d, err: '%v'", n, err)
	recs, err := s.LoadAll(0)
	a(t, err == nil, "LoadAll() failed with '%v'", err)
	assertRecs(t, recs, []testRec{upd, {ID: 2, Name: "b"}, upd})
}

func TestEncodeError(t *testing.T) {
	s := createStore(t)
	bad := testRec{ID: 1, Name: "this name is way too long"}
	err := s.Append(&bad)
	a(t, errors.Is(err, binrec.ErrTextTooLong), "expected ErrTextTooLong, got '%v'", err)
	_, err = s.Upsert(&bad, sameID)
	a(t, errors.Is(err, binrec.ErrTextTooLong), "expected ErrTextTooLong, got '%v'", err)
	_, err = os.Stat(s.Path())
	a(t, os.IsNotExist(err), "failed writes shouldn't create the file")
}

func TestUpsertStagingFails(t *testing.T) {
	s := createStore(t)
	exp := genRecs(3)
	appendRecs(t, s, exp...)
	// a directory in place of the staging file makes creating it fail
	staging := filepath.Join(s.DataDir, s.StagingFileName)
	err := os.Mkdir(staging, 0755)
	a(t, err == nil, "os.Mkdir() failed with '%v'", err)

	upd := testRec{ID: 2, Name: "changed"}
	_, err = s.Upsert(&upd, sameID)
	a(t, err != nil, "expected Upsert() to fail")
	recs, err := s.LoadAll(0)
	a(t, err == nil, "LoadAll() failed with '%v'", err)
	assertRecs(t, recs, exp)
}
