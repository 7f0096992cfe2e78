// Package entdriver implements storage.Driver on a database/sql connection,
// building dialect-specific SQL with ent's query builder. The sqlite and
// postgres packages open the connection and embed EntDriver.
package entdriver

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/papercomputeco/skycast/pkg/storage"
)

const turnsTable = "turns"

var turnColumns = []string{
	"id", "agent", "mode", "query", "response",
	"prompt_tokens", "completion_tokens", "total_tokens",
	"status", "error", "chunks", "created_at", "duration_ms",
}

// EntDriver provides storage operations on top of an ent SQL driver.
// It is database-agnostic and is embedded by the specific drivers.
type EntDriver struct {
	Driver *entsql.Driver
}

// New wraps db for the given ent dialect and applies schema.
func New(ctx context.Context, dialectName string, db *sql.DB, schema []string) (*EntDriver, error) {
	drv := entsql.OpenDB(dialectName, db)
	for _, stmt := range schema {
		if err := drv.Exec(ctx, stmt, []any{}, nil); err != nil {
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return &EntDriver{Driver: drv}, nil
}

func (ed *EntDriver) builder() *entsql.DialectBuilder {
	return entsql.Dialect(ed.Driver.Dialect())
}

// Put inserts turn, replacing a previous turn with the same ID.
func (ed *EntDriver) Put(ctx context.Context, turn *storage.Turn) error {
	if err := turn.Validate(); err != nil {
		return err
	}

	insert := ed.builder().
		Insert(turnsTable).
		Columns(turnColumns...).
		Values(
			turn.ID, turn.Agent, string(turn.Mode), turn.Query, turn.Response,
			turn.Usage.PromptTokens, turn.Usage.CompletionTokens, turn.Usage.TotalTokens,
			string(turn.Status), turn.Error, turn.Chunks, turn.CreatedAt.UTC(), turn.DurationMs,
		).
		OnConflict(
			entsql.ConflictColumns("id"),
			entsql.ResolveWithNewValues(),
		)

	query, args := insert.Query()
	if err := ed.Driver.Exec(ctx, query, args, nil); err != nil {
		return fmt.Errorf("failed to insert turn %s: %w", turn.ID, err)
	}
	return nil
}

// Get retrieves a turn by ID.
func (ed *EntDriver) Get(ctx context.Context, id string) (*storage.Turn, error) {
	query, args := ed.builder().
		Select(turnColumns...).
		From(ed.builder().Table(turnsTable)).
		Where(entsql.EQ("id", id)).
		Query()

	turns, err := ed.query(ctx, query, args)
	if err != nil {
		return nil, err
	}
	if len(turns) == 0 {
		return nil, storage.NotFoundError{ID: id}
	}
	return turns[0], nil
}

// List returns turns newest first.
func (ed *EntDriver) List(ctx context.Context, opts storage.ListOptions) ([]*storage.Turn, error) {
	selector := ed.builder().
		Select(turnColumns...).
		From(ed.builder().Table(turnsTable)).
		OrderBy(entsql.Desc("created_at"), entsql.Desc("id")).
		Limit(opts.EffectiveLimit())
	if opts.Agent != "" {
		selector.Where(entsql.EQ("agent", opts.Agent))
	}

	query, args := selector.Query()
	return ed.query(ctx, query, args)
}

// Close closes the underlying database.
func (ed *EntDriver) Close() error {
	return ed.Driver.Close()
}

func (ed *EntDriver) query(ctx context.Context, query string, args []any) ([]*storage.Turn, error) {
	var rows entsql.Rows
	if err := ed.Driver.Query(ctx, query, args, &rows); err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var turns []*storage.Turn
	for rows.Next() {
		var (
			t              storage.Turn
			mode, status   string
			createdAt      time.Time
			errMsg         sql.NullString
			responseOrNull sql.NullString
		)
		if err := rows.Scan(
			&t.ID, &t.Agent, &mode, &t.Query, &responseOrNull,
			&t.Usage.PromptTokens, &t.Usage.CompletionTokens, &t.Usage.TotalTokens,
			&status, &errMsg, &t.Chunks, &createdAt, &t.DurationMs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		t.Mode = storage.Mode(mode)
		t.Status = storage.Status(status)
		t.Response = responseOrNull.String
		t.Error = errMsg.String
		t.CreatedAt = createdAt.UTC()
		turns = append(turns, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate turns: %w", err)
	}
	return turns, nil
}
