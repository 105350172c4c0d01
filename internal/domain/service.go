// Package domain defines the business logic for the unistellar activity
// service: the activity ledger, the per-user derived status, and the projector
// that keeps the two consistent.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidReference indicates a referenced user, course, or assignment
	// does not exist (or the assignment does not belong to the course). The
	// event is rejected before any ledger append.
	ErrInvalidReference = errors.New("referenced entity does not exist")
	// ErrInvalidPayload indicates a kind-specific field is missing or out of
	// range.
	ErrInvalidPayload = errors.New("invalid activity payload")
	// ErrUnknownUser indicates the status record for an otherwise-valid user
	// is missing. Status records are created with the user account, so this is
	// an internal consistency fault, never repaired silently.
	ErrUnknownUser = errors.New("no status record for user")
	// ErrStorage wraps persistence failures; callers may retry.
	ErrStorage = errors.New("storage failure")
)

// Cursor is the pagination token for ledger listings. Seq is the sequence
// number of the last activity on the previous page.
type Cursor struct {
	Seq int64
}

// Repository captures persistence operations for the ledger, the status
// store, and the collaborator-owned reference directory.
type Repository interface {
	// Append writes the activity to the ledger and applies the projected
	// status delta to the owning user in one atomic unit. It returns the
	// stored activity with its ledger sequence assigned. Returns ErrUnknownUser
	// when the user has no status record.
	Append(ctx context.Context, act Activity) (*Activity, error)
	// ListByUser returns the user's activities in append order.
	ListByUser(ctx context.Context, userID string, cursor *Cursor, limit int) ([]Activity, *Cursor, error)

	// GetUserStatus returns the derived status, or nil when absent.
	GetUserStatus(ctx context.Context, userID string) (*UserStatus, error)
	// CreateUserStatus creates the empty status record for a new user.
	CreateUserStatus(ctx context.Context, userID string) error
	// DeleteUserStatus removes the status record when the user is deleted.
	DeleteUserStatus(ctx context.Context, userID string) error

	// Reference existence checks against collaborator-owned entities.
	UserExists(ctx context.Context, userID string) (bool, error)
	CourseExists(ctx context.Context, courseID string) (bool, error)
	AssignmentInCourse(ctx context.Context, assignmentID, courseID string) (bool, error)
}

// Service orchestrates activity submission and status reads.
type Service struct {
	repo Repository
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// SubmitActivityInput captures the payload from the API layer. DurationSecs is
// a pointer so a missing duration can be told apart from an explicit zero.
type SubmitActivityInput struct {
	UserID       string
	CourseID     string
	AssignmentID string
	Kind         Kind
	DurationSecs *int64
	RecordedAt   time.Time
}

// SubmitActivity validates the candidate event, appends it to the ledger, and
// applies the derived-state delta, all before returning. The append and the
// status update commit atomically; a validation failure leaves no trace.
func (s *Service) SubmitActivity(ctx context.Context, input SubmitActivityInput) (*Activity, error) {
	act, err := s.validate(ctx, input)
	if err != nil {
		return nil, err
	}

	stored, err := s.repo.Append(ctx, act)
	if err != nil {
		if errors.Is(err, ErrUnknownUser) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return stored, nil
}

// validate checks the payload shape and referential integrity. It has no side
// effects; on success it returns the fully-formed activity ready to append.
func (s *Service) validate(ctx context.Context, input SubmitActivityInput) (Activity, error) {
	if !input.Kind.Valid() {
		return Activity{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidPayload, input.Kind)
	}

	var duration int64
	if input.Kind == KindWorkedOn {
		if input.DurationSecs == nil {
			return Activity{}, fmt.Errorf("%w: worked_on requires duration_secs", ErrInvalidPayload)
		}
		if *input.DurationSecs < 0 {
			return Activity{}, fmt.Errorf("%w: duration_secs must be non-negative", ErrInvalidPayload)
		}
		duration = *input.DurationSecs
	}

	if ok, err := s.repo.UserExists(ctx, input.UserID); err != nil {
		return Activity{}, fmt.Errorf("%w: %v", ErrStorage, err)
	} else if !ok {
		return Activity{}, fmt.Errorf("%w: user %s", ErrInvalidReference, input.UserID)
	}
	if ok, err := s.repo.CourseExists(ctx, input.CourseID); err != nil {
		return Activity{}, fmt.Errorf("%w: %v", ErrStorage, err)
	} else if !ok {
		return Activity{}, fmt.Errorf("%w: course %s", ErrInvalidReference, input.CourseID)
	}
	if ok, err := s.repo.AssignmentInCourse(ctx, input.AssignmentID, input.CourseID); err != nil {
		return Activity{}, fmt.Errorf("%w: %v", ErrStorage, err)
	} else if !ok {
		return Activity{}, fmt.Errorf("%w: assignment %s in course %s", ErrInvalidReference, input.AssignmentID, input.CourseID)
	}

	now := time.Now().UTC()
	recordedAt := input.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = now
	}

	return Activity{
		ID:           uuid.NewString(),
		UserID:       input.UserID,
		CourseID:     input.CourseID,
		AssignmentID: input.AssignmentID,
		Kind:         input.Kind,
		DurationSecs: duration,
		RecordedAt:   recordedAt.UTC(),
		CreatedAt:    now,
	}, nil
}

// GetUserStatus fetches the derived status for a user.
func (s *Service) GetUserStatus(ctx context.Context, userID string) (*UserStatus, error) {
	status, err := s.repo.GetUserStatus(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if status == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUser, userID)
	}
	return status, nil
}

// ListActivities returns a user's ledger entries in append order with cursor
// pagination.
func (s *Service) ListActivities(ctx context.Context, userID string, cursor *Cursor, limit int) ([]Activity, *Cursor, error) {
	acts, next, err := s.repo.ListByUser(ctx, userID, cursor, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return acts, next, nil
}
