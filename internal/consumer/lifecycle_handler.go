package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// StatusLifecycle is the slice of the repository the lifecycle handler needs:
// creating and removing user status records.
type StatusLifecycle interface {
	CreateUserStatus(ctx context.Context, userID string) error
	DeleteUserStatus(ctx context.Context, userID string) error
}

// LifecycleHandler reacts to user.created / user.deleted events from the
// accounts service, keeping status records sequenced with the user account
// lifecycle. Unrecognised event types are ignored and committed.
type LifecycleHandler struct {
	statuses StatusLifecycle
}

// NewLifecycleHandler constructs a handler backed by the provided store.
func NewLifecycleHandler(statuses StatusLifecycle) *LifecycleHandler {
	return &LifecycleHandler{statuses: statuses}
}

type userLifecyclePayload struct {
	UserID string `json:"user_id"`
}

// Handle implements Handler.
func (h *LifecycleHandler) Handle(ctx context.Context, msg Message) error {
	switch msg.EventType {
	case "user.created", "user.deleted":
	default:
		return nil
	}

	var payload userLifecyclePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("malformed %s payload: %w", msg.EventType, err)
	}
	if strings.TrimSpace(payload.UserID) == "" {
		return fmt.Errorf("%s event missing user_id", msg.EventType)
	}

	if msg.EventType == "user.created" {
		return h.statuses.CreateUserStatus(ctx, payload.UserID)
	}
	return h.statuses.DeleteUserStatus(ctx, payload.UserID)
}
