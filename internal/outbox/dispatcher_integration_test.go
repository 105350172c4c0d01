//go:build integration

package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
)

func TestDispatcherPublishesMessages(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	seedOutbox(t, ctx, pool, uuid.NewString(), "activity.recorded")

	producer := &stubProducer{}
	registry := &stubRegistry{id: 42}
	dispatcher := NewDispatcher(pool, producer, registry, 10*time.Millisecond, 5)

	require.NoError(t, dispatcher.processBatch(ctx))

	require.Len(t, producer.writes, 1)
	require.Equal(t, "activity_events", producer.writes[0].topic)
	require.Len(t, producer.writes[0].messages, 1)

	var published int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NOT NULL`).Scan(&published))
	require.Equal(t, 1, published)
}

func TestDispatcherRetriesUnpublishedRowsOnNextPoll(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	seedOutbox(t, ctx, pool, uuid.NewString(), "status.updated")

	producer := &stubProducer{err: errors.New("kafka write failed")}
	registry := &stubRegistry{id: 7}
	dispatcher := NewDispatcher(pool, producer, registry, 10*time.Millisecond, 5)

	require.Error(t, dispatcher.processBatch(ctx))

	var published int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NOT NULL`).Scan(&published))
	require.Zero(t, published, "failed delivery must leave the row unpublished")

	// Broker recovers; the next poll picks the row up again.
	producer.err = nil
	require.NoError(t, dispatcher.processBatch(ctx))

	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NOT NULL`).Scan(&published))
	require.Equal(t, 1, published)
}

func TestDispatcherReleasesConnectionWhenClaimFails(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgresMaxConns(t, ctx, 1)
	defer cleanup()

	seedOutbox(t, ctx, pool, uuid.NewString(), "activity.recorded")

	// Make the claim UPDATE fail mid-transaction.
	_, err := pool.Exec(ctx, `
        CREATE FUNCTION reject_outbox_claims() RETURNS trigger AS $$
        BEGIN
            IF NEW.claimed_at IS NOT NULL AND OLD.claimed_at IS NULL THEN
                RAISE EXCEPTION 'claims disabled';
            END IF;
            RETURN NEW;
        END
        $$ LANGUAGE plpgsql;
        CREATE TRIGGER reject_claims BEFORE UPDATE ON outbox
            FOR EACH ROW EXECUTE FUNCTION reject_outbox_claims()`)
	require.NoError(t, err)

	producer := &stubProducer{}
	registry := &stubRegistry{id: 9}
	dispatcher := NewDispatcher(pool, producer, registry, 10*time.Millisecond, 5)

	require.Error(t, dispatcher.processBatch(ctx))
	require.Empty(t, producer.writes)

	// The pool has a single connection; if the failed claim left its
	// transaction open, every statement below would hang on Acquire.
	verifyCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	_, err = pool.Exec(verifyCtx, `DROP TRIGGER reject_claims ON outbox`)
	require.NoError(t, err, "connection was not returned to the pool after the failed claim")

	require.NoError(t, dispatcher.processBatch(verifyCtx))
	require.Len(t, producer.writes, 1)

	var published int
	require.NoError(t, pool.QueryRow(verifyCtx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NOT NULL`).Scan(&published))
	require.Equal(t, 1, published)
}

func TestDispatcherCachesSchemaIDsAcrossBatch(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	seedOutbox(t, ctx, pool, uuid.NewString(), "activity.recorded")
	seedOutbox(t, ctx, pool, uuid.NewString(), "activity.recorded")

	producer := &stubProducer{}
	registry := &stubRegistry{id: 21}
	dispatcher := NewDispatcher(pool, producer, registry, 10*time.Millisecond, 5)

	require.NoError(t, dispatcher.processBatch(ctx))

	require.Len(t, producer.writes, 1)
	require.Len(t, producer.writes[0].messages, 2)
	require.Len(t, registry.calls, 1, "schema registry should be invoked once due to cache")
}

type stubProducer struct {
	mu     sync.Mutex
	err    error
	writes []writtenBatch
}

type writtenBatch struct {
	topic    string
	messages []kafka.Message
}

func (s *stubProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}

	copied := make([]kafka.Message, len(msgs))
	copy(copied, msgs)

	s.writes = append(s.writes, writtenBatch{
		topic:    topic,
		messages: copied,
	})
	return nil
}

type stubRegistry struct {
	mu    sync.Mutex
	id    int
	err   error
	calls []schemaCall
}

type schemaCall struct {
	subject string
	schema  string
}

func (s *stubRegistry) EnsureSchema(ctx context.Context, subject string, schema string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, schemaCall{subject: subject, schema: schema})
	if s.err != nil {
		return 0, s.err
	}
	return s.id, nil
}

func setupPostgres(t *testing.T, ctx context.Context) (*pgxpool.Pool, func()) {
	return setupPostgresMaxConns(t, ctx, 4)
}

func setupPostgresMaxConns(t *testing.T, ctx context.Context, maxConns int) (*pgxpool.Pool, func()) {
	t.Helper()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("unistellar"),
		postgrescontainer.WithUsername("unistellar"),
		postgrescontainer.WithPassword("unistellar"),
	)
	require.NoError(t, err)

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable", fmt.Sprintf("pool_max_conns=%d", maxConns))
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	require.NoError(t, waitForDatabase(ctx, pool))
	runMigrations(t, ctx, pool)

	cleanup := func() {
		pool.Close()
		_ = pg.Terminate(ctx)
	}
	return pool, cleanup
}

func waitForDatabase(ctx context.Context, pool *pgxpool.Pool) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		if err := pool.Ping(ctx); err == nil {
			return nil
		} else if time.Now().After(deadline) {
			return fmt.Errorf("database not ready: %w", err)
		}
		time.Sleep(500 * time.Millisecond)
	}
}

func runMigrations(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	sql, err := os.ReadFile("../../db/postgres/migrations/0001_init.up.sql")
	require.NoError(t, err)
	_, err = pool.Exec(ctx, string(sql))
	require.NoError(t, err)
}

func seedOutbox(t *testing.T, ctx context.Context, pool *pgxpool.Pool, aggregateID, eventType string) {
	t.Helper()

	_, ok := schemaCatalog[eventType]
	require.True(t, ok)

	topic := "activity_events"
	if eventType == "status.updated" {
		topic = "user_status_updates"
	}

	payload, err := json.Marshal(map[string]any{
		"activity_id": aggregateID,
		"user_id":     "user-1",
	})
	require.NoError(t, err)

	_, err = pool.Exec(ctx,
		`INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		"activity",
		aggregateID,
		eventType,
		topic,
		topic+"-value",
		"user-1",
		payload,
		aggregateID+":"+eventType,
	)
	require.NoError(t, err)
}
