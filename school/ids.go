package school

import (
	"math/rand/v2"
	"time"
)

// NewRegNo returns a registration number for a new student:
// tenths of a second since epoch plus a random 100..999.
// Uniqueness is not checked.
func NewRegNo(t time.Time) int64 {
	return t.UnixMilli()/100 + 100 + rand.Int64N(900)
}

// NewID returns an id for a new class or subject, in 0..999999.
// Uniqueness is not checked.
func NewID(t time.Time) int32 {
	return int32(t.UnixMilli() % 1000000)
}
