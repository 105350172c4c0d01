package consumer

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jacobhenn/unistellar/internal/persistence/memory"
)

func lifecycleMessage(eventType, payload string) Message {
	return Message{
		Topic:     "user_lifecycle",
		EventType: eventType,
		Payload:   json.RawMessage(payload),
	}
}

func TestLifecycleCreatesStatusRecord(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()
	handler := NewLifecycleHandler(repo)

	err := handler.Handle(ctx, lifecycleMessage("user.created", `{"user_id":"user-1"}`))
	require.NoError(t, err)

	status, err := repo.GetUserStatus(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, status)
	require.Empty(t, status.Planning)
	require.Zero(t, status.Stats.SecsWorked)
}

func TestLifecycleCreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()
	handler := NewLifecycleHandler(repo)

	require.NoError(t, handler.Handle(ctx, lifecycleMessage("user.created", `{"user_id":"user-1"}`)))
	require.NoError(t, handler.Handle(ctx, lifecycleMessage("user.created", `{"user_id":"user-1"}`)))

	status, err := repo.GetUserStatus(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, status)
}

func TestLifecycleDeletesStatusRecord(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()
	handler := NewLifecycleHandler(repo)

	require.NoError(t, handler.Handle(ctx, lifecycleMessage("user.created", `{"user_id":"user-1"}`)))
	require.NoError(t, handler.Handle(ctx, lifecycleMessage("user.deleted", `{"user_id":"user-1"}`)))

	status, err := repo.GetUserStatus(ctx, "user-1")
	require.NoError(t, err)
	require.Nil(t, status)
}

func TestLifecycleIgnoresOtherEventTypes(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()
	handler := NewLifecycleHandler(repo)

	err := handler.Handle(ctx, lifecycleMessage("user.renamed", `{"user_id":"user-1"}`))
	require.NoError(t, err)

	status, err := repo.GetUserStatus(ctx, "user-1")
	require.NoError(t, err)
	require.Nil(t, status)
}

func TestLifecycleRejectsMissingUserID(t *testing.T) {
	ctx := context.Background()
	handler := NewLifecycleHandler(memory.NewRepository())

	err := handler.Handle(ctx, lifecycleMessage("user.created", `{}`))
	require.Error(t, err)

	err = handler.Handle(ctx, lifecycleMessage("user.created", `not json`))
	require.Error(t, err)
}
