package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jacobhenn/unistellar/internal/domain"
	"github.com/jacobhenn/unistellar/internal/events"
	"github.com/jacobhenn/unistellar/internal/observability"
)

// Repository provides Postgres-backed persistence for the activity ledger,
// the user status store, and the outbox.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Append writes the activity to the ledger, applies the projected status to
// the owning user, and records outbox events, all inside a single transaction.
// The FOR UPDATE lock on the user's status row serialises concurrent appends
// for the same user without blocking other users.
func (r *Repository) Append(ctx context.Context, act domain.Activity) (*domain.Activity, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	status, err := lockStatus(ctx, tx, act.UserID)
	if err != nil {
		return nil, err
	}

	next := domain.Project(*status, act)

	const insertActivity = `INSERT INTO activities (activity_id, user_id, course_id, assignment_id, kind, duration_secs, recorded_at, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING seq`

	if err = tx.QueryRow(ctx, insertActivity,
		act.ID,
		act.UserID,
		act.CourseID,
		act.AssignmentID,
		act.Kind,
		act.DurationSecs,
		act.RecordedAt,
		act.CreatedAt,
	).Scan(&act.Seq); err != nil {
		return nil, err
	}

	const updateStatus = `UPDATE user_status
        SET planning=$2, in_progress=$3, completed=$4, secs_worked=$5, assignments_completed=$6, updated_at=$7
        WHERE user_id=$1`

	if _, err = tx.Exec(ctx, updateStatus,
		act.UserID,
		next.Planning.Sorted(),
		next.InProgress.Sorted(),
		next.Completed.Sorted(),
		next.Stats.SecsWorked,
		next.Stats.AssignmentsCompleted,
		next.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if err = r.insertOutbox(ctx, tx, act, "activity.recorded", events.ActivityRecorded{
		ActivityID:   act.ID,
		UserID:       act.UserID,
		CourseID:     act.CourseID,
		AssignmentID: act.AssignmentID,
		Kind:         string(act.Kind),
		DurationSecs: act.DurationSecs,
		RecordedAt:   act.RecordedAt,
		Seq:          act.Seq,
	}); err != nil {
		return nil, err
	}

	if err = r.insertOutbox(ctx, tx, act, "status.updated", events.StatusUpdated{
		UserID:               next.UserID,
		PlanningCount:        len(next.Planning),
		InProgressCount:      len(next.InProgress),
		CompletedCount:       len(next.Completed),
		SecsWorked:           next.Stats.SecsWorked,
		AssignmentsCompleted: next.Stats.AssignmentsCompleted,
		OccurredAt:           next.UpdatedAt,
	}); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}

	observability.RecordActivityAppended(string(act.Kind), act.CreatedAt)
	return &act, nil
}

// lockStatus reads the user's status row under FOR UPDATE within tx.
func lockStatus(ctx context.Context, tx pgx.Tx, userID string) (*domain.UserStatus, error) {
	const query = `SELECT planning, in_progress, completed, secs_worked, assignments_completed
        FROM user_status WHERE user_id=$1 FOR UPDATE`

	var planning, inProgress, completed []string
	status := domain.NewUserStatus(userID)
	if err := tx.QueryRow(ctx, query, userID).Scan(
		&planning,
		&inProgress,
		&completed,
		&status.Stats.SecsWorked,
		&status.Stats.AssignmentsCompleted,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnknownUser, userID)
		}
		return nil, err
	}

	status.Planning = domain.NewAssignmentSet(planning...)
	status.InProgress = domain.NewAssignmentSet(inProgress...)
	status.Completed = domain.NewAssignmentSet(completed...)
	return &status, nil
}

func (r *Repository) insertOutbox(ctx context.Context, tx pgx.Tx, act domain.Activity, eventType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	dedupeKey := fmt.Sprintf("%s:%s", act.ID, eventType)

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, stmt,
		"activity",
		act.ID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		meta.PartitionKeyFn(act),
		body,
		dedupeKey,
	)
	return err
}

// ListByUser returns the user's ledger entries in append order.
func (r *Repository) ListByUser(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	args := []interface{}{userID, limit}
	query := `SELECT seq, activity_id, user_id, course_id, assignment_id, kind, duration_secs, recorded_at, created_at
        FROM activities WHERE user_id=$1`

	if cursor != nil {
		query += ` AND seq > $3`
		args = append(args, cursor.Seq)
	}

	query += ` ORDER BY seq LIMIT $2`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	results := make([]domain.Activity, 0, limit)
	for rows.Next() {
		var act domain.Activity
		if err := rows.Scan(&act.Seq, &act.ID, &act.UserID, &act.CourseID, &act.AssignmentID, &act.Kind, &act.DurationSecs, &act.RecordedAt, &act.CreatedAt); err != nil {
			return nil, nil, err
		}
		results = append(results, act)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if len(results) == limit {
		next = &domain.Cursor{Seq: results[len(results)-1].Seq}
	}
	return results, next, nil
}

// GetUserStatus returns the derived status, or nil when the user has none.
func (r *Repository) GetUserStatus(ctx context.Context, userID string) (*domain.UserStatus, error) {
	const query = `SELECT planning, in_progress, completed, secs_worked, assignments_completed, updated_at
        FROM user_status WHERE user_id=$1`

	var planning, inProgress, completed []string
	status := domain.NewUserStatus(userID)
	if err := r.pool.QueryRow(ctx, query, userID).Scan(
		&planning,
		&inProgress,
		&completed,
		&status.Stats.SecsWorked,
		&status.Stats.AssignmentsCompleted,
		&status.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	status.Planning = domain.NewAssignmentSet(planning...)
	status.InProgress = domain.NewAssignmentSet(inProgress...)
	status.Completed = domain.NewAssignmentSet(completed...)
	return &status, nil
}

// CreateUserStatus creates the empty status record for a new user. Re-delivery
// of the same lifecycle event is a no-op.
func (r *Repository) CreateUserStatus(ctx context.Context, userID string) error {
	const stmt = `INSERT INTO user_status (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`
	_, err := r.pool.Exec(ctx, stmt, userID)
	return err
}

// DeleteUserStatus removes the status record for a deleted user.
func (r *Repository) DeleteUserStatus(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM user_status WHERE user_id=$1`, userID)
	return err
}

// UserExists checks the collaborator-owned users table.
func (r *Repository) UserExists(ctx context.Context, userID string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE user_id=$1)`, userID)
}

// CourseExists checks the collaborator-owned courses table.
func (r *Repository) CourseExists(ctx context.Context, courseID string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM courses WHERE course_id=$1)`, courseID)
}

// AssignmentInCourse checks that the assignment exists and belongs to the
// course.
func (r *Repository) AssignmentInCourse(ctx context.Context, assignmentID, courseID string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM assignments WHERE assignment_id=$1 AND course_id=$2)`, assignmentID, courseID)
}

func (r *Repository) exists(ctx context.Context, query string, args ...interface{}) (bool, error) {
	var ok bool
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic          string
	SchemaSubject  string
	PartitionKeyFn func(domain.Activity) string
}

var eventCatalog = map[string]EventMetadata{
	"activity.recorded": {
		Topic:         "activity_events",
		SchemaSubject: "activity_events-value",
		PartitionKeyFn: func(a domain.Activity) string {
			return a.UserID
		},
	},
	"status.updated": {
		Topic:         "user_status_updates",
		SchemaSubject: "user_status_updates-value",
		PartitionKeyFn: func(a domain.Activity) string {
			return a.UserID
		},
	},
}
