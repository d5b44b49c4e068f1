package school

import (
	"github.com/kjk/gradebook/binrec"
)

// widths of text fields in bytes, including the terminating NUL
const (
	NameWidth       = 100
	NationalIDWidth = 15
	PhoneWidth      = 20
	StatusWidth     = 20
)

type Student struct {
	RegNo      int64  `json:"regno"`
	Name       string `json:"name"`
	NationalID string `json:"national_id"`
	Phone      string `json:"phone"`
}

type Class struct {
	ID   int32  `json:"id"`
	Name string `json:"name"`
}

type Subject struct {
	ID   int32  `json:"id"`
	Name string `json:"name"`
}

// EnrollmentKey identifies an enrollment of a student in a subject of a class
type EnrollmentKey struct {
	RegNo     int64 `json:"regno"`
	ClassID   int32 `json:"class_id"`
	SubjectID int32 `json:"subject_id"`
}

// Enrollment holds grades and attendance of a student in a subject of a class
type Enrollment struct {
	EnrollmentKey
	Grade1       float32 `json:"grade1"`
	Grade2       float32 `json:"grade2"`
	Project      float32 `json:"project"`
	Absences     int32   `json:"absences"`
	FinalAverage float32 `json:"final_average"`
	Status       string  `json:"status"`
}

// ClassSubject records that a subject is taught in a class
type ClassSubject struct {
	ClassID   int32 `json:"class_id"`
	SubjectID int32 `json:"subject_id"`
}

// On-disk layout, little-endian, no padding:
//
//	Student      i64 regno, text[100] name, text[15] national id, text[20] phone   143 bytes
//	Class        i32 id, text[100] name                                           104 bytes
//	Subject      i32 id, text[100] name                                           104 bytes
//	Enrollment   i64 regno, i32 class, i32 subject, f32 grade1, f32 grade2,
//	             f32 project, i32 absences, f32 average, text[20] status           56 bytes
//	ClassSubject i32 class, i32 subject                                             8 bytes

type studentCodec struct{}

func (studentCodec) Size() int { return 8 + NameWidth + NationalIDWidth + PhoneWidth }

func (studentCodec) Encode(buf []byte, v *Student) error {
	e := binrec.NewEncoder(buf)
	e.Int64(v.RegNo)
	e.Text(v.Name, NameWidth)
	e.Text(v.NationalID, NationalIDWidth)
	e.Text(v.Phone, PhoneWidth)
	return e.Err()
}

func (studentCodec) Decode(buf []byte, v *Student) error {
	d := binrec.NewDecoder(buf)
	v.RegNo = d.Int64()
	v.Name = d.Text(NameWidth)
	v.NationalID = d.Text(NationalIDWidth)
	v.Phone = d.Text(PhoneWidth)
	return d.Err()
}

// classes and subjects share the layout
type idNameCodec struct{}

func (idNameCodec) Size() int { return 4 + NameWidth }

func (idNameCodec) encode(buf []byte, id int32, name string) error {
	e := binrec.NewEncoder(buf)
	e.Int32(id)
	e.Text(name, NameWidth)
	return e.Err()
}

func (idNameCodec) decode(buf []byte) (int32, string, error) {
	d := binrec.NewDecoder(buf)
	id := d.Int32()
	name := d.Text(NameWidth)
	return id, name, d.Err()
}

type classCodec struct{ idNameCodec }

func (c classCodec) Encode(buf []byte, v *Class) error {
	return c.encode(buf, v.ID, v.Name)
}

func (c classCodec) Decode(buf []byte, v *Class) (err error) {
	v.ID, v.Name, err = c.decode(buf)
	return err
}

type subjectCodec struct{ idNameCodec }

func (c subjectCodec) Encode(buf []byte, v *Subject) error {
	return c.encode(buf, v.ID, v.Name)
}

func (c subjectCodec) Decode(buf []byte, v *Subject) (err error) {
	v.ID, v.Name, err = c.decode(buf)
	return err
}

type enrollmentCodec struct{}

func (enrollmentCodec) Size() int { return 8 + 4*7 + StatusWidth }

func (enrollmentCodec) Encode(buf []byte, v *Enrollment) error {
	e := binrec.NewEncoder(buf)
	e.Int64(v.RegNo)
	e.Int32(v.ClassID)
	e.Int32(v.SubjectID)
	e.Float32(v.Grade1)
	e.Float32(v.Grade2)
	e.Float32(v.Project)
	e.Int32(v.Absences)
	e.Float32(v.FinalAverage)
	e.Text(v.Status, StatusWidth)
	return e.Err()
}

func (enrollmentCodec) Decode(buf []byte, v *Enrollment) error {
	d := binrec.NewDecoder(buf)
	v.RegNo = d.Int64()
	v.ClassID = d.Int32()
	v.SubjectID = d.Int32()
	v.Grade1 = d.Float32()
	v.Grade2 = d.Float32()
	v.Project = d.Float32()
	v.Absences = d.Int32()
	v.FinalAverage = d.Float32()
	v.Status = d.Text(StatusWidth)
	return d.Err()
}

type classSubjectCodec struct{}

func (classSubjectCodec) Size() int { return 8 }

func (classSubjectCodec) Encode(buf []byte, v *ClassSubject) error {
	e := binrec.NewEncoder(buf)
	e.Int32(v.ClassID)
	e.Int32(v.SubjectID)
	return e.Err()
}

func (classSubjectCodec) Decode(buf []byte, v *ClassSubject) error {
	d := binrec.NewDecoder(buf)
	v.ClassID = d.Int32()
	v.SubjectID = d.Int32()
	return d.Err()
}
