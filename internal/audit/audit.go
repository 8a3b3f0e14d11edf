// Package audit constructs and dispatches audit events for sensitive secret
// operations. Delivery is strictly best-effort: the triggering operation never
// fails or blocks because the audit collaborator is slow or unreachable.
package audit

import (
	"context"
	"time"
)

// Action identifies the audited operation.
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionView   Action = "VIEW"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
	ActionRotate Action = "ROTATE"
)

// Event is the outbound audit record. The core hands it off and does not own
// its persistence or retry.
type Event struct {
	ActorID    string    `json:"user_id"`
	ActorEmail string    `json:"user_email"`
	Action     Action    `json:"action"`
	SecretID   string    `json:"secret_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// Emitter delivers audit events. Implementations must absorb delivery
// failures; the interface leaves room for a retrying implementation without
// changing call sites.
type Emitter interface {
	Notify(ctx context.Context, evt Event)
}

// NewEvent stamps an event with the current time.
func NewEvent(actorID, actorEmail string, action Action, secretID string) Event {
	return Event{
		ActorID:    actorID,
		ActorEmail: actorEmail,
		Action:     action,
		SecretID:   secretID,
		Timestamp:  time.Now().UTC(),
	}
}
