// Package memory provides an in-memory repository for local development and
// deterministic tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jacobhenn/unistellar/internal/domain"
)

// userRecord holds one user's ledger slice and derived status behind its own
// lock, so appends contend only on the single user's record.
type userRecord struct {
	mu     sync.Mutex
	status domain.UserStatus
	ledger []domain.Activity
}

// Repository stores the ledger and status records in memory. It implements
// domain.Repository with the same per-user linearization the Postgres
// repository gets from row locks.
type Repository struct {
	mu          sync.RWMutex
	users       map[string]struct{}
	courses     map[string]struct{}
	assignments map[string]string // assignment id -> owning course id
	statuses    map[string]*userRecord
	seq         atomic.Int64
}

// NewRepository constructs an empty Repository.
func NewRepository() *Repository {
	return &Repository{
		users:       make(map[string]struct{}),
		courses:     make(map[string]struct{}),
		assignments: make(map[string]string),
		statuses:    make(map[string]*userRecord),
	}
}

// AddUser registers a user in the reference directory.
func (r *Repository) AddUser(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[userID] = struct{}{}
}

// AddCourse registers a course in the reference directory.
func (r *Repository) AddCourse(courseID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.courses[courseID] = struct{}{}
}

// AddAssignment registers an assignment belonging to the given course.
func (r *Repository) AddAssignment(assignmentID, courseID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assignments[assignmentID] = courseID
}

// Append implements domain.Repository.
func (r *Repository) Append(ctx context.Context, act domain.Activity) (*domain.Activity, error) {
	r.mu.RLock()
	rec, ok := r.statuses[act.UserID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownUser, act.UserID)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	act.Seq = r.seq.Add(1)
	rec.status = domain.Project(rec.status, act)
	rec.ledger = append(rec.ledger, act)
	return &act, nil
}

// ListByUser returns the user's activities in append order.
func (r *Repository) ListByUser(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	r.mu.RLock()
	rec, ok := r.statuses[userID]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, nil
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	after := int64(0)
	if cursor != nil {
		after = cursor.Seq
	}

	results := make([]domain.Activity, 0, limit)
	for _, act := range rec.ledger {
		if act.Seq <= after {
			continue
		}
		results = append(results, act)
		if len(results) == limit {
			break
		}
	}

	var next *domain.Cursor
	if len(results) == limit {
		next = &domain.Cursor{Seq: results[len(results)-1].Seq}
	}
	return results, next, nil
}

// GetUserStatus implements domain.Repository.
func (r *Repository) GetUserStatus(ctx context.Context, userID string) (*domain.UserStatus, error) {
	r.mu.RLock()
	rec, ok := r.statuses[userID]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	status := rec.status.Clone()
	return &status, nil
}

// CreateUserStatus creates an empty status record; re-creation is a no-op.
func (r *Repository) CreateUserStatus(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.statuses[userID]; ok {
		return nil
	}
	r.statuses[userID] = &userRecord{status: domain.NewUserStatus(userID)}
	return nil
}

// DeleteUserStatus removes the status record and its ledger view.
func (r *Repository) DeleteUserStatus(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.statuses, userID)
	return nil
}

// UserExists implements domain.Repository.
func (r *Repository) UserExists(ctx context.Context, userID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.users[userID]
	return ok, nil
}

// CourseExists implements domain.Repository.
func (r *Repository) CourseExists(ctx context.Context, courseID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.courses[courseID]
	return ok, nil
}

// AssignmentInCourse implements domain.Repository.
func (r *Repository) AssignmentInCourse(ctx context.Context, assignmentID, courseID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	owner, ok := r.assignments[assignmentID]
	return ok && owner == courseID, nil
}
