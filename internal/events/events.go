// Package events defines the payloads published for downstream collaborators
// (feed, search, notifications).
package events

import "time"

// ActivityRecorded is emitted when an activity event is appended to the ledger.
type ActivityRecorded struct {
	ActivityID   string    `json:"activity_id"`
	UserID       string    `json:"user_id"`
	CourseID     string    `json:"course_id"`
	AssignmentID string    `json:"assignment_id"`
	Kind         string    `json:"kind"`
	DurationSecs int64     `json:"duration_secs"`
	RecordedAt   time.Time `json:"recorded_at"`
	Seq          int64     `json:"seq"`
}

// StatusUpdated carries the user's aggregate snapshot after a projection is
// applied, so subscribers can render without re-reading the store.
type StatusUpdated struct {
	UserID               string    `json:"user_id"`
	PlanningCount        int       `json:"planning_count"`
	InProgressCount      int       `json:"in_progress_count"`
	CompletedCount       int       `json:"completed_count"`
	SecsWorked           int64     `json:"secs_worked"`
	AssignmentsCompleted int64     `json:"assignments_completed"`
	OccurredAt           time.Time `json:"occurred_at"`
}
