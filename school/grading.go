package school

// values of Enrollment.Status
const (
	StatusPending        = "pending"
	StatusApproved       = "approved"
	StatusExam           = "exam"
	StatusFailedAbsences = "failed (absences)"
)

const (
	// MaxAbsences is the number of absences that fails a subject
	MaxAbsences = 15
	// PassingAverage is the lowest average that doesn't need an exam
	PassingAverage = 7
)

// Grades are the marks and absences of a student in a subject
type Grades struct {
	Grade1   float32 `json:"grade1"`
	Grade2   float32 `json:"grade2"`
	Project  float32 `json:"project"`
	Absences int32   `json:"absences"`
}

// ComputeResult returns final average and status.
// Grades weigh 4, 4 and 2.
func ComputeResult(g Grades) (float32, string) {
	if g.Absences >= MaxAbsences {
		return 0, StatusFailedAbsences
	}
	avg := (4*float64(g.Grade1) + 4*float64(g.Grade2) + 2*float64(g.Project)) / 10
	if avg >= PassingAverage {
		return float32(avg), StatusApproved
	}
	return float32(avg), StatusExam
}
