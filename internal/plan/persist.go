package plan

import (
	"context"
	"fmt"

	"github.com/roach88/horizon/internal/history"
)

// Persister stores history snapshots.
// Implemented by store.Store (SQLite) and kv.Store (Badger).
type Persister interface {
	SaveHistory(ctx context.Context, snap history.Snapshot) error
	LoadHistory(ctx context.Context) (history.Snapshot, error)
}

// SaveHistory exports the plan's history to dst and returns the number of
// entries written.
func (p *Plan) SaveHistory(ctx context.Context, dst Persister) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	snap, err := p.graph.History().Export()
	if err != nil {
		return 0, fmt.Errorf("save history: %w", err)
	}
	if err := dst.SaveHistory(ctx, snap); err != nil {
		return 0, fmt.Errorf("save history: %w", err)
	}
	p.logger.Debug("history saved", "plan", p.id, "entries", snap.Len())
	return snap.Len(), nil
}

// LoadHistory imports a snapshot from src through the plan's registry.
// Entries already cached win.
func (p *Plan) LoadHistory(ctx context.Context, src Persister) (history.ImportResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap, err := src.LoadHistory(ctx)
	if err != nil {
		return history.ImportResult{}, fmt.Errorf("load history: %w", err)
	}
	res, err := p.graph.History().Import(p.graph.Registry(), snap)
	if err != nil {
		return res, fmt.Errorf("load history: %w", err)
	}
	p.logger.Debug("history loaded", "plan", p.id, "entries", res.Entries, "skipped", len(res.Skipped))
	return res, nil
}
