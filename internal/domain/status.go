package domain

import (
	"sort"
	"time"
)

// AssignmentSet is an unordered, unique-membership collection of assignment
// IDs. Adding a member that is already present and removing one that is absent
// are both no-ops.
type AssignmentSet map[string]struct{}

// NewAssignmentSet builds a set from the given members.
func NewAssignmentSet(ids ...string) AssignmentSet {
	set := make(AssignmentSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Add inserts the assignment into the set.
func (s AssignmentSet) Add(id string) {
	s[id] = struct{}{}
}

// Remove deletes the assignment from the set.
func (s AssignmentSet) Remove(id string) {
	delete(s, id)
}

// Contains reports membership.
func (s AssignmentSet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

// Clone returns an independent copy of the set.
func (s AssignmentSet) Clone() AssignmentSet {
	out := make(AssignmentSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// Sorted returns the members as a sorted slice, for stable serialization.
func (s AssignmentSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Stats aggregates a user's work across all assignments. Unlike the status
// sets, stats are cumulative per event, not idempotent.
type Stats struct {
	// SecsWorked is the total seconds accumulated across all worked-on events.
	SecsWorked int64
	// AssignmentsCompleted counts completed events, one per event.
	AssignmentsCompleted int64
}

// UserStatus is the derived state maintained for each user: three status sets
// plus aggregate stats. It is created empty alongside the user account and
// mutated only by the projector.
type UserStatus struct {
	UserID     string
	Planning   AssignmentSet
	InProgress AssignmentSet
	Completed  AssignmentSet
	Stats      Stats
	UpdatedAt  time.Time
}

// NewUserStatus returns the empty status record for a freshly created user.
func NewUserStatus(userID string) UserStatus {
	return UserStatus{
		UserID:     userID,
		Planning:   make(AssignmentSet),
		InProgress: make(AssignmentSet),
		Completed:  make(AssignmentSet),
	}
}

// Clone returns a deep copy so callers can project without aliasing the sets.
func (s UserStatus) Clone() UserStatus {
	out := s
	out.Planning = s.Planning.Clone()
	out.InProgress = s.InProgress.Clone()
	out.Completed = s.Completed.Clone()
	return out
}
