// Package eventstream defines the events skycast emits after a turn has been
// recorded, and the publishers that deliver them.
package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/skycast/pkg/storage"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeTurnCompleted is emitted after a turn is recorded, whether it
	// completed or failed.
	EventTypeTurnCompleted = "skycast.turn.completed"
)

// TurnCompletedEvent is a transport-neutral event payload for a recorded turn.
type TurnCompletedEvent struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	EventID       string       `json:"event_id"`
	EmittedAt     time.Time    `json:"emitted_at"`
	Source        EventSource  `json:"source"`
	Turn          storage.Turn `json:"turn"`
}

// EventSource identifies where the turn was served.
type EventSource struct {
	Service   string `json:"service"`
	AgentName string `json:"agent_name"`
	Path      string `json:"path,omitempty"`
}

// NewTurnCompletedEvent wraps turn in a v1 event with a fresh ID.
func NewTurnCompletedEvent(turn *storage.Turn, path string) *TurnCompletedEvent {
	return &TurnCompletedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeTurnCompleted,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source: EventSource{
			Service:   "skycast",
			AgentName: turn.Agent,
			Path:      path,
		},
		Turn: *turn,
	}
}
