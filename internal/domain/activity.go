package domain

import "time"

// Kind tags an activity event with the action the user took on an assignment.
type Kind string

const (
	// KindPlanning records that the user intends to work on an assignment.
	KindPlanning Kind = "planning"
	// KindWorkedOn records a work session on an assignment.
	KindWorkedOn Kind = "worked_on"
	// KindCompleted records that the user finished an assignment.
	KindCompleted Kind = "completed"
)

// Valid reports whether the kind is one of the known activity kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindPlanning, KindWorkedOn, KindCompleted:
		return true
	}
	return false
}

// Activity is an immutable entry in the activity ledger. Once appended it is
// never mutated or deleted.
type Activity struct {
	ID           string
	UserID       string
	CourseID     string
	AssignmentID string
	Kind         Kind
	// DurationSecs is the length of a work session in seconds. Only
	// meaningful for KindWorkedOn; zero for the other kinds.
	DurationSecs int64
	RecordedAt   time.Time
	CreatedAt    time.Time

	// Seq is the ledger sequence number assigned at append time. It defines
	// the committed event order used for audit and replay.
	Seq int64
}
