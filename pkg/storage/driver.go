// Package storage persists the turns skycast serves, so completed and failed
// interactions can be listed and inspected after the fact.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/papercomputeco/skycast/pkg/llm"
)

// Mode is how a turn was requested.
type Mode string

const (
	ModeStream     Mode = "stream"
	ModeGenerate   Mode = "generate"
	ModeStructured Mode = "structured"
	ModeForm       Mode = "form"
	ModeMCP        Mode = "mcp"
)

// Status is how a turn ended.
type Status string

const (
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// Turn is one query and the answer relayed for it.
type Turn struct {
	ID       string    `json:"id"`
	Agent    string    `json:"agent"`
	Mode     Mode      `json:"mode"`
	Query    string    `json:"query"`
	Response string    `json:"response"`
	Usage    llm.Usage `json:"usage"`
	Status   Status    `json:"status"`
	Error    string    `json:"error,omitempty"`

	// Chunks is the number of chunk frames relayed. Zero for non-streamed turns.
	Chunks int `json:"chunks"`

	CreatedAt  time.Time `json:"createdAt"`
	DurationMs int64     `json:"durationMs"`
}

// Validate checks the fields every driver requires.
func (t *Turn) Validate() error {
	switch {
	case t == nil:
		return errors.New("cannot store nil turn")
	case t.ID == "":
		return errors.New("turn has no id")
	case t.Status != StatusComplete && t.Status != StatusFailed:
		return errors.New("turn has no terminal status")
	}
	return nil
}

// ListOptions filters List.
type ListOptions struct {
	// Agent restricts results to one agent when set.
	Agent string

	// Limit caps the number of results. Zero means DefaultListLimit.
	Limit int
}

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 50

// EffectiveLimit returns the limit List should apply.
func (o ListOptions) EffectiveLimit() int {
	if o.Limit <= 0 {
		return DefaultListLimit
	}
	return o.Limit
}

// Driver defines the interface for persisting and retrieving turns.
type Driver interface {
	// Put stores a turn. Storing an existing ID replaces it.
	Put(ctx context.Context, turn *Turn) error

	// Get retrieves a turn by ID, or returns NotFoundError.
	Get(ctx context.Context, id string) (*Turn, error)

	// List returns turns newest first.
	List(ctx context.Context, opts ListOptions) ([]*Turn, error)

	// Close releases any resources held by the driver.
	Close() error
}
