package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/roach88/horizon/internal/history"
)

// Save describes one SaveHistory call.
type Save struct {
	Seq     int64
	ID      string
	Entries int
	// Added counts entries not already stored.
	Added int
}

// Stats summarizes the stored history.
type Stats struct {
	Entries    int
	WriteTypes int
	Saves      int
}

func newSaveID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// SaveHistory writes snap in one transaction. Entries already stored under
// the same write type and hash are kept.
func (s *Store) SaveHistory(ctx context.Context, snap history.Snapshot) error {
	_, err := s.save(ctx, snap)
	return err
}

// SaveHistoryInfo is SaveHistory returning the recorded save.
func (s *Store) SaveHistoryInfo(ctx context.Context, snap history.Snapshot) (Save, error) {
	return s.save(ctx, snap)
}

func (s *Store) save(ctx context.Context, snap history.Snapshot) (Save, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Save{}, fmt.Errorf("save history: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO history_entries (write_type, hash, value)
		VALUES (?, ?, ?)
		ON CONFLICT(write_type, hash) DO NOTHING
	`)
	if err != nil {
		return Save{}, fmt.Errorf("save history: %w", err)
	}
	defer stmt.Close()

	added := 0
	for _, wt := range snap.WriteTypes() {
		for hash, value := range snap[wt] {
			res, err := stmt.ExecContext(ctx, wt, formatHash(hash), value)
			if err != nil {
				return Save{}, fmt.Errorf("save history: %s/%s: %w", wt, formatHash(hash), err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return Save{}, fmt.Errorf("save history: %w", err)
			}
			added += int(n)
		}
	}

	save := Save{ID: s.newID(), Entries: snap.Len(), Added: added}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO history_saves (id, entries, added) VALUES (?, ?, ?)`,
		save.ID, save.Entries, save.Added)
	if err != nil {
		return Save{}, fmt.Errorf("save history: %w", err)
	}
	if save.Seq, err = res.LastInsertId(); err != nil {
		return Save{}, fmt.Errorf("save history: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Save{}, fmt.Errorf("save history: %w", err)
	}
	return save, nil
}

// LoadHistory reads every stored entry.
func (s *Store) LoadHistory(ctx context.Context) (history.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT write_type, hash, value
		FROM history_entries
		ORDER BY write_type COLLATE BINARY ASC, hash ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	snap := history.Snapshot{}
	for rows.Next() {
		var wt, hex string
		var value []byte
		if err := rows.Scan(&wt, &hex, &value); err != nil {
			return nil, fmt.Errorf("load history: %w", err)
		}
		hash, err := parseHash(hex)
		if err != nil {
			return nil, fmt.Errorf("load history: %s: %w", wt, err)
		}
		if snap[wt] == nil {
			snap[wt] = make(map[uint64][]byte)
		}
		snap[wt][hash] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return snap, nil
}

// Saves lists recorded saves, oldest first.
func (s *Store) Saves(ctx context.Context) ([]Save, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, entries, added FROM history_saves ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query saves: %w", err)
	}
	defer rows.Close()

	saves := []Save{}
	for rows.Next() {
		var sv Save
		if err := rows.Scan(&sv.Seq, &sv.ID, &sv.Entries, &sv.Added); err != nil {
			return nil, fmt.Errorf("scan save: %w", err)
		}
		saves = append(saves, sv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate saves: %w", err)
	}
	return saves, nil
}

// Stats counts stored entries, write types and saves.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM history_entries),
			(SELECT COUNT(DISTINCT write_type) FROM history_entries),
			(SELECT COUNT(*) FROM history_saves)
	`).Scan(&st.Entries, &st.WriteTypes, &st.Saves)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}

// formatHash renders a hash as fixed-width hex so text order matches
// numeric order. SQLite integers are signed.
func formatHash(h uint64) string {
	return fmt.Sprintf("%016x", h)
}

func parseHash(s string) (uint64, error) {
	h, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("bad hash %q: %w", s, err)
	}
	return h, nil
}
