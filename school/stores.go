package school

import (
	"github.com/kjk/gradebook/log"
	"github.com/kjk/gradebook/recfile"
)

// table is what all stores share: loading, integrity checks and
// appending with an event in the journal
type table[T any] struct {
	// used as prefix of event names e.g. "student.append"
	entity string
	file   *recfile.Store[T]
}

func openTable[T any](entity string, dir string, fileName string, codec recfile.Codec[T]) (table[T], error) {
	f := &recfile.Store[T]{
		DataDir:  dir,
		FileName: fileName,
		Codec:    codec,
	}
	if err := recfile.OpenStore(f); err != nil {
		return table[T]{}, err
	}
	return table[T]{entity: entity, file: f}, nil
}

// Path returns path of the backing file
func (t *table[T]) Path() string {
	return t.file.Path()
}

// FileName returns name of the backing file in data directory
func (t *table[T]) FileName() string {
	return t.file.FileName
}

func (t *table[T]) RecordSize() int {
	return t.file.RecordSize()
}

// LoadAll returns up to maxRecords records in file order, 0 means all.
// Returns recfile.ErrTruncated (with the records) if there are more.
func (t *table[T]) LoadAll(maxRecords int) ([]T, error) {
	return t.file.LoadAll(maxRecords)
}

// Check returns number of records and recfile.ErrCorrupt if the file
// ends with a partial record
func (t *table[T]) Check() (int, error) {
	return t.file.Check()
}

// Repair drops a partial record at the end of the file
func (t *table[T]) Repair() (int64, error) {
	return t.file.Repair()
}

func (t *table[T]) append(v *T, vals ...any) error {
	if err := t.file.Append(v); err != nil {
		return err
	}
	log.Event(t.entity+".append", vals...)
	return nil
}

type StudentStore struct {
	table[Student]
}

func OpenStudentStore(dir string, fileName string) (*StudentStore, error) {
	t, err := openTable[Student]("student", dir, fileName, studentCodec{})
	if err != nil {
		return nil, err
	}
	return &StudentStore{t}, nil
}

// Append adds a student. Uniqueness of RegNo and NationalID is not checked.
func (s *StudentStore) Append(v Student) error {
	return s.append(&v, "regno", v.RegNo)
}

// FindByRegNo returns the first student with regNo
func (s *StudentStore) FindByRegNo(regNo int64) (Student, bool, error) {
	return s.file.Find(func(v *Student) bool {
		return v.RegNo == regNo
	})
}

// FindByNationalID returns the first student with exactly this national id
func (s *StudentStore) FindByNationalID(id string) (Student, bool, error) {
	return s.file.Find(func(v *Student) bool {
		return v.NationalID == id
	})
}

type ClassStore struct {
	table[Class]
}

func OpenClassStore(dir string, fileName string) (*ClassStore, error) {
	t, err := openTable[Class]("class", dir, fileName, classCodec{})
	if err != nil {
		return nil, err
	}
	return &ClassStore{t}, nil
}

func (s *ClassStore) Append(v Class) error {
	return s.append(&v, "id", v.ID)
}

type SubjectStore struct {
	table[Subject]
}

func OpenSubjectStore(dir string, fileName string) (*SubjectStore, error) {
	t, err := openTable[Subject]("subject", dir, fileName, subjectCodec{})
	if err != nil {
		return nil, err
	}
	return &SubjectStore{t}, nil
}

func (s *SubjectStore) Append(v Subject) error {
	return s.append(&v, "id", v.ID)
}

type EnrollmentStore struct {
	table[Enrollment]
}

// OpenEnrollmentStore opens the enrollment file. stagingFileName is used
// by Upsert, empty means fileName + ".tmp".
func OpenEnrollmentStore(dir string, fileName string, stagingFileName string) (*EnrollmentStore, error) {
	f := &recfile.Store[Enrollment]{
		DataDir:         dir,
		FileName:        fileName,
		StagingFileName: stagingFileName,
		Codec:           enrollmentCodec{},
	}
	if err := recfile.OpenStore(f); err != nil {
		return nil, err
	}
	return &EnrollmentStore{table[Enrollment]{entity: "enrollment", file: f}}, nil
}

// Append adds an enrollment without checking for an existing one with
// the same key. Use Upsert to keep one record per key.
func (s *EnrollmentStore) Append(v Enrollment) error {
	return s.append(&v, "regno", v.RegNo, "class", v.ClassID, "subject", v.SubjectID, "status", v.Status)
}

func sameEnrollmentKey(a, b *Enrollment) bool {
	return a.EnrollmentKey == b.EnrollmentKey
}

// Upsert replaces every enrollment with the same key as v, keeping its
// position, or appends v if there's none. Rewrites the whole file.
// Returns number of replaced records.
func (s *EnrollmentStore) Upsert(v Enrollment) (int, error) {
	n, err := s.file.Upsert(&v, sameEnrollmentKey)
	if err != nil {
		return 0, err
	}
	log.Event("enrollment.upsert", "regno", v.RegNo, "class", v.ClassID, "subject", v.SubjectID, "status", v.Status, "replaced", n)
	return n, nil
}

// Find returns the first enrollment with key k
func (s *EnrollmentStore) Find(k EnrollmentKey) (Enrollment, bool, error) {
	return s.file.Find(func(v *Enrollment) bool {
		return v.EnrollmentKey == k
	})
}

// RosterStore holds which subjects are taught in which class
type RosterStore struct {
	table[ClassSubject]
}

func OpenRosterStore(dir string, fileName string) (*RosterStore, error) {
	t, err := openTable[ClassSubject]("roster", dir, fileName, classSubjectCodec{})
	if err != nil {
		return nil, err
	}
	return &RosterStore{t}, nil
}

// Append links a subject to a class. Duplicate links are not checked.
func (s *RosterStore) Append(v ClassSubject) error {
	return s.append(&v, "class", v.ClassID, "subject", v.SubjectID)
}
