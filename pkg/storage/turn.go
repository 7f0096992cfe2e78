package storage

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/skycast/pkg/llm"
)

// StartTurn returns an in-flight turn with a fresh ID. Finish completes it.
func StartTurn(agentName string, mode Mode, query string, started time.Time) *Turn {
	return &Turn{
		ID:        uuid.NewString(),
		Agent:     agentName,
		Mode:      mode,
		Query:     query,
		CreatedAt: started.UTC(),
	}
}

// Finish records the outcome of the turn. A nil err marks it complete,
// anything else marks it failed with the error text. usage may be nil.
func (t *Turn) Finish(response string, usage *llm.Usage, chunks int, err error) {
	t.Response = response
	t.Chunks = chunks
	if usage != nil {
		t.Usage = *usage
	}

	t.Status = StatusComplete
	if err != nil {
		t.Status = StatusFailed
		t.Error = err.Error()
	}

	t.DurationMs = time.Since(t.CreatedAt).Milliseconds()
}
