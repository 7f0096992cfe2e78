// Package inmemory provides a map-backed storage.Driver.
package inmemory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/papercomputeco/skycast/pkg/storage"
)

// Driver implements storage.Driver using an in-memory map.
type Driver struct {
	mu    sync.RWMutex
	turns map[string]*storage.Turn
}

// NewDriver creates an empty in-memory driver.
func NewDriver() *Driver {
	return &Driver{
		turns: make(map[string]*storage.Turn),
	}
}

func (d *Driver) Put(_ context.Context, turn *storage.Turn) error {
	if err := turn.Validate(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	stored := *turn
	d.turns[turn.ID] = &stored
	return nil
}

func (d *Driver) Get(_ context.Context, id string) (*storage.Turn, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	turn, ok := d.turns[id]
	if !ok {
		return nil, storage.NotFoundError{ID: id}
	}

	out := *turn
	return &out, nil
}

func (d *Driver) List(_ context.Context, opts storage.ListOptions) ([]*storage.Turn, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*storage.Turn, 0, len(d.turns))
	for _, turn := range d.turns {
		if opts.Agent != "" && turn.Agent != opts.Agent {
			continue
		}
		t := *turn
		out = append(out, &t)
	}

	slices.SortFunc(out, func(a, b *storage.Turn) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})

	if limit := opts.EffectiveLimit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close is a no-op for the in-memory driver.
func (d *Driver) Close() error {
	return nil
}
