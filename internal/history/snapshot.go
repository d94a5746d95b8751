package history

import (
	"fmt"
	"slices"

	"github.com/roach88/horizon/internal/resource"
)

// Snapshot is the persisted form of a History: write type, then structural
// hash, then the encoded write value.
type Snapshot map[string]map[uint64][]byte

// Len returns the total number of entries.
func (s Snapshot) Len() int {
	n := 0
	for _, entries := range s {
		n += len(entries)
	}
	return n
}

// WriteTypes returns the snapshot's write types in sorted order.
func (s Snapshot) WriteTypes() []string {
	out := make([]string, 0, len(s))
	for wt := range s {
		out = append(out, wt)
	}
	slices.Sort(out)
	return out
}

// ImportResult reports what Import loaded.
type ImportResult struct {
	Entries int
	// Skipped lists write types with no registered resource.
	Skipped []string
}

// Export encodes every entry with its resource's codec.
func (h *History) Export() (Snapshot, error) {
	h.mu.RLock()
	tables := make([]*table, 0, len(h.tables))
	for _, t := range h.tables {
		tables = append(tables, t)
	}
	h.mu.RUnlock()

	snap := make(Snapshot, len(tables))
	for _, t := range tables {
		entries := make(map[uint64][]byte)
		err := t.each(func(hash uint64, w any) error {
			data, err := t.res.Encode(w)
			if err != nil {
				return fmt.Errorf("export %s/%016x: %w", t.res.WriteType(), hash, err)
			}
			entries[hash] = data
			return nil
		})
		if err != nil {
			return nil, err
		}
		if len(entries) > 0 {
			snap[t.res.WriteType()] = entries
		}
	}
	return snap, nil
}

// Import decodes snap through reg and inserts every entry. Existing entries
// win over imported ones. Write types reg does not know are skipped.
func (h *History) Import(reg *resource.Registry, snap Snapshot) (ImportResult, error) {
	var res ImportResult
	for _, wt := range snap.WriteTypes() {
		handle, ok := reg.ByWriteType(wt)
		if !ok {
			res.Skipped = append(res.Skipped, wt)
			continue
		}
		for hash, data := range snap[wt] {
			w, err := handle.Decode(data)
			if err != nil {
				return res, fmt.Errorf("import %s/%016x: %w", wt, hash, err)
			}
			h.Insert(handle, hash, w)
			res.Entries++
		}
	}
	return res, nil
}
