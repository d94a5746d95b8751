package history

import (
	"sync"
	"sync/atomic"

	"github.com/roach88/horizon/internal/resource"
)

const numShards = 16

// History caches write values per resource, keyed by structural hash.
//
// Thread-safety: safe for concurrent use.
type History struct {
	mu     sync.RWMutex
	tables map[resource.ID]*table

	hits   atomic.Uint64
	misses atomic.Uint64
}

type table struct {
	res    resource.Handle
	shards [numShards]shard
}

type shard struct {
	mu      sync.RWMutex
	entries map[uint64]any
}

// Stats summarizes cache usage.
type Stats struct {
	Resources int
	Entries   int
	Hits      uint64
	Misses    uint64
}

// New creates an empty History.
func New() *History {
	return &History{tables: make(map[resource.ID]*table)}
}

func (h *History) table(res resource.Handle, create bool) *table {
	h.mu.RLock()
	t, ok := h.tables[res.ID()]
	h.mu.RUnlock()
	if ok || !create {
		return t
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok = h.tables[res.ID()]; ok {
		return t
	}
	t = &table{res: res}
	for i := range t.shards {
		t.shards[i].entries = make(map[uint64]any)
	}
	h.tables[res.ID()] = t
	return t
}

func (t *table) shard(hash uint64) *shard {
	return &t.shards[hash%numShards]
}

// Get returns the value stored for hash. It never waits on computation:
// absence only means the value has not been cached yet.
func (h *History) Get(res resource.Handle, hash uint64) (any, bool) {
	v, ok := h.lookup(res, hash)
	h.count(ok)
	return v, ok
}

// GetAll returns the values stored for hash under every resource in outs,
// in order. It succeeds only when all of them are cached, and counts one hit
// or one miss for the whole lookup.
func (h *History) GetAll(hash uint64, outs ...resource.Handle) ([]any, bool) {
	vals := make([]any, len(outs))
	for i, res := range outs {
		v, ok := h.lookup(res, hash)
		if !ok {
			h.count(false)
			return nil, false
		}
		vals[i] = v
	}
	h.count(true)
	return vals, true
}

func (h *History) lookup(res resource.Handle, hash uint64) (any, bool) {
	t := h.table(res, false)
	if t == nil {
		return nil, false
	}
	s := t.shard(hash)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[hash]
	return v, ok
}

func (h *History) count(hit bool) {
	if hit {
		h.hits.Add(1)
	} else {
		h.misses.Add(1)
	}
}

// Insert stores w under hash unless an entry exists, and returns the stored
// value either way.
func (h *History) Insert(res resource.Handle, hash uint64, w any) any {
	s := h.table(res, true).shard(hash)
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.entries[hash]; ok {
		return existing
	}
	s.entries[hash] = w
	return w
}

// Len returns the number of entries for res.
func (h *History) Len(res resource.Handle) int {
	t := h.table(res, false)
	if t == nil {
		return 0
	}
	return t.len()
}

func (t *table) len() int {
	n := 0
	for i := range t.shards {
		t.shards[i].mu.RLock()
		n += len(t.shards[i].entries)
		t.shards[i].mu.RUnlock()
	}
	return n
}

// Stats returns entry counts and lookup counters.
func (h *History) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	st := Stats{
		Resources: len(h.tables),
		Hits:      h.hits.Load(),
		Misses:    h.misses.Load(),
	}
	for _, t := range h.tables {
		st.Entries += t.len()
	}
	return st
}

// each calls fn for every entry of t under the shard read locks.
func (t *table) each(fn func(hash uint64, w any) error) error {
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.RLock()
		for hash, w := range s.entries {
			if err := fn(hash, w); err != nil {
				s.mu.RUnlock()
				return err
			}
		}
		s.mu.RUnlock()
	}
	return nil
}
