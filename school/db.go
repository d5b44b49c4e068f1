package school

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kjk/gradebook/config"
	"github.com/kjk/gradebook/log"
	"github.com/kjk/gradebook/snapshot"
)

var (
	ErrStudentNotFound = errors.New("student not found")
	ErrEmptyRoster     = errors.New("class has no subjects")
)

// DB ties together the five stores of a data directory
type DB struct {
	Students    *StudentStore
	Classes     *ClassStore
	Subjects    *SubjectStore
	Enrollments *EnrollmentStore
	Roster      *RosterStore

	DataDir string
	// limit for loading whole files, 0 means no limit
	MaxRecords int
}

// Open opens all stores described by cfg. Files that don't exist are
// empty stores and are created on first write.
func Open(cfg *config.Store) (*DB, error) {
	var err error
	db := &DB{DataDir: cfg.DataDir, MaxRecords: cfg.MaxRecords}
	dir := cfg.DataDir
	if db.Students, err = OpenStudentStore(dir, cfg.StudentFile); err != nil {
		return nil, err
	}
	if db.Classes, err = OpenClassStore(dir, cfg.ClassFile); err != nil {
		return nil, err
	}
	if db.Subjects, err = OpenSubjectStore(dir, cfg.SubjectFile); err != nil {
		return nil, err
	}
	if db.Enrollments, err = OpenEnrollmentStore(dir, cfg.EnrollmentFile, cfg.StagingFile); err != nil {
		return nil, err
	}
	if db.Roster, err = OpenRosterStore(dir, cfg.RosterFile); err != nil {
		return nil, err
	}
	log.Verbosef("school.Open: opened stores in '%s'\n", dir)
	return db, nil
}

// FileCheck is result of checking one file
type FileCheck struct {
	Path    string
	Records int
	Err     error
}

type checker interface {
	Path() string
	FileName() string
	RecordSize() int
	Check() (int, error)
	Repair() (int64, error)
}

func (db *DB) checkers() []checker {
	return []checker{db.Students, db.Classes, db.Subjects, db.Enrollments, db.Roster}
}

// Check checks all files. An error in one file doesn't stop checking others.
func (db *DB) Check() []FileCheck {
	var res []FileCheck
	for _, c := range db.checkers() {
		n, err := c.Check()
		res = append(res, FileCheck{Path: c.Path(), Records: n, Err: err})
	}
	return res
}

// Repair drops partial records at the end of all files.
// Returns total number of bytes removed.
func (db *DB) Repair() (int64, error) {
	var total int64
	for _, c := range db.checkers() {
		n, err := c.Repair()
		if err != nil {
			return total, fmt.Errorf("repairing '%s': %w", c.Path(), err)
		}
		total += n
	}
	return total, nil
}

// SnapshotFiles describes the record files for snapshot.Collect
func (db *DB) SnapshotFiles() []snapshot.File {
	var res []snapshot.File
	for _, c := range db.checkers() {
		f := snapshot.File{Name: c.FileName(), RecordSize: c.RecordSize()}
		res = append(res, f)
	}
	return res
}

// ClassSubjects returns ids of subjects taught in a class, in roster order
func (db *DB) ClassSubjects(classID int32) ([]int32, error) {
	links, err := db.Roster.LoadAll(db.MaxRecords)
	if err != nil {
		return nil, err
	}
	var res []int32
	for _, l := range links {
		if l.ClassID == classID {
			res = append(res, l.SubjectID)
		}
	}
	return res, nil
}

// EnrollInClass creates a pending enrollment for every subject of the class.
// Subjects the student is already enrolled in are skipped.
// Returns number of created enrollments.
func (db *DB) EnrollInClass(regNo int64, classID int32) (int, error) {
	subjects, err := db.ClassSubjects(classID)
	if err != nil {
		return 0, err
	}
	if len(subjects) == 0 {
		return 0, fmt.Errorf("%w: class %d", ErrEmptyRoster, classID)
	}
	n := 0
	for _, subjectID := range subjects {
		k := EnrollmentKey{RegNo: regNo, ClassID: classID, SubjectID: subjectID}
		_, found, err := db.Enrollments.Find(k)
		if err != nil {
			return n, err
		}
		if found {
			continue
		}
		e := Enrollment{EnrollmentKey: k, Status: StatusPending}
		if err = db.Enrollments.Append(e); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// SaveGrades computes the result and stores it in the enrollment with key k,
// creating it if needed
func (db *DB) SaveGrades(k EnrollmentKey, g Grades) (Enrollment, error) {
	e := Enrollment{
		EnrollmentKey: k,
		Grade1:        g.Grade1,
		Grade2:        g.Grade2,
		Project:       g.Project,
		Absences:      g.Absences,
	}
	e.FinalAverage, e.Status = ComputeResult(g)
	if _, err := db.Enrollments.Upsert(e); err != nil {
		return Enrollment{}, err
	}
	return e, nil
}

// names resolves class and subject ids to names
type names struct {
	classes  map[int32]string
	subjects map[int32]string
}

func nameOrID(m map[int32]string, id int32) string {
	if s, ok := m[id]; ok {
		return s
	}
	return fmt.Sprintf("ID %d", id)
}

func (n *names) class(id int32) string {
	return nameOrID(n.classes, id)
}

func (n *names) subject(id int32) string {
	return nameOrID(n.subjects, id)
}

func (db *DB) loadNames() (*names, error) {
	classes, err := db.Classes.LoadAll(db.MaxRecords)
	if err != nil {
		return nil, err
	}
	subjects, err := db.Subjects.LoadAll(db.MaxRecords)
	if err != nil {
		return nil, err
	}
	res := &names{
		classes:  map[int32]string{},
		subjects: map[int32]string{},
	}
	// first wins, same as a linear search
	for _, c := range classes {
		if _, ok := res.classes[c.ID]; !ok {
			res.classes[c.ID] = c.Name
		}
	}
	for _, s := range subjects {
		if _, ok := res.subjects[s.ID]; !ok {
			res.subjects[s.ID] = s.Name
		}
	}
	return res, nil
}

type ReportLine struct {
	Class   string `json:"class"`
	Subject string `json:"subject"`
	Enrollment
}

type ReportCard struct {
	Student Student      `json:"student"`
	Lines   []ReportLine `json:"lines"`
}

// ReportCard returns all enrollments of a student, in file order
func (db *DB) ReportCard(regNo int64) (*ReportCard, error) {
	st, found, err := db.Students.FindByRegNo(regNo)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: regno %d", ErrStudentNotFound, regNo)
	}
	return db.reportCard(st)
}

// ReportCardByNationalID is like ReportCard but finds the student by national id
func (db *DB) ReportCardByNationalID(id string) (*ReportCard, error) {
	st, found, err := db.Students.FindByNationalID(id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: national id '%s'", ErrStudentNotFound, id)
	}
	return db.reportCard(st)
}

func (db *DB) reportCard(st Student) (*ReportCard, error) {
	nm, err := db.loadNames()
	if err != nil {
		return nil, err
	}
	all, err := db.Enrollments.LoadAll(db.MaxRecords)
	if err != nil {
		return nil, err
	}
	res := &ReportCard{Student: st}
	for _, e := range all {
		if e.RegNo != st.RegNo {
			continue
		}
		line := ReportLine{
			Class:      nm.class(e.ClassID),
			Subject:    nm.subject(e.SubjectID),
			Enrollment: e,
		}
		res.Lines = append(res.Lines, line)
	}
	return res, nil
}

type ExamEntry struct {
	Student string `json:"student"`
	Class   string `json:"class"`
	Subject string `json:"subject"`
	Enrollment
}

// StudentsInExam returns enrollments with exam status. classID 0 means all classes.
func (db *DB) StudentsInExam(classID int32) ([]ExamEntry, error) {
	nm, err := db.loadNames()
	if err != nil {
		return nil, err
	}
	students, err := db.Students.LoadAll(db.MaxRecords)
	if err != nil {
		return nil, err
	}
	studentNames := map[int64]string{}
	for _, s := range students {
		if _, ok := studentNames[s.RegNo]; !ok {
			studentNames[s.RegNo] = s.Name
		}
	}
	all, err := db.Enrollments.LoadAll(db.MaxRecords)
	if err != nil {
		return nil, err
	}
	var res []ExamEntry
	for _, e := range all {
		if !strings.EqualFold(e.Status, StatusExam) {
			continue
		}
		if classID != 0 && e.ClassID != classID {
			continue
		}
		name, ok := studentNames[e.RegNo]
		if !ok {
			name = fmt.Sprintf("regno %d", e.RegNo)
		}
		res = append(res, ExamEntry{
			Student:    name,
			Class:      nm.class(e.ClassID),
			Subject:    nm.subject(e.SubjectID),
			Enrollment: e,
		})
	}
	return res, nil
}
