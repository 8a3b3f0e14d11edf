package audit

import (
	"context"
	"encoding/json"
	"time"

	"sekret.org/internal/obs"
)

// LogEmitter writes audit events as JSON lines to the shared logger. Used when
// no audit collaborator is configured.
type LogEmitter struct{}

var _ Emitter = LogEmitter{}

// Notify writes the event to the log.
func (LogEmitter) Notify(_ context.Context, evt Event) {
	entry := map[string]any{
		"ts":         time.Now().UTC().Format(time.RFC3339Nano),
		"type":       "audit",
		"action":     evt.Action,
		"user_id":    evt.ActorID,
		"user_email": evt.ActorEmail,
		"secret_id":  evt.SecretID,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	obs.Logger().Println(string(data))
}
