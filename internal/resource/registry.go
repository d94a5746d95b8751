package resource

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Registry maps labels and write types to resource handles.
//
// Persistence needs it to turn write-type strings back into concrete
// resources; the CLI and scenario runner use it to resolve names.
// Resources are registered explicitly, usually by whoever declares them.
type Registry struct {
	mu          sync.RWMutex
	byLabel     map[string]Handle
	byWriteType map[string]Handle
}

// NewRegistry creates an empty registry, optionally pre-populated.
func NewRegistry(handles ...Handle) (*Registry, error) {
	r := &Registry{
		byLabel:     make(map[string]Handle),
		byWriteType: make(map[string]Handle),
	}
	for _, h := range handles {
		if err := r.Register(h); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// MustRegistry is like NewRegistry but panics on error.
// Use only in tests or for static declarations.
func MustRegistry(handles ...Handle) *Registry {
	r, err := NewRegistry(handles...)
	if err != nil {
		panic(err)
	}
	return r
}

// Register adds h. Labels and write types must be unique.
func (r *Registry) Register(h Handle) error {
	if h == nil {
		return fmt.Errorf("register: nil resource")
	}
	if strings.TrimSpace(h.Label()) == "" {
		return fmt.Errorf("register: empty resource label")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byLabel[h.Label()]; ok {
		if existing.ID() == h.ID() {
			return nil
		}
		return fmt.Errorf("register: duplicate resource label %q", h.Label())
	}
	if _, ok := r.byWriteType[h.WriteType()]; ok {
		return fmt.Errorf("register: duplicate write type %q (resource %q)", h.WriteType(), h.Label())
	}
	r.byLabel[h.Label()] = h
	r.byWriteType[h.WriteType()] = h
	return nil
}

// Lookup returns the resource with the given label.
func (r *Registry) Lookup(label string) (Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byLabel[label]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotRegistered, label)
	}
	return h, nil
}

// ByWriteType returns the resource persisted under writeType.
func (r *Registry) ByWriteType(writeType string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byWriteType[writeType]
	return h, ok
}

// All returns every registered resource sorted by label.
func (r *Registry) All() []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Handle, 0, len(r.byLabel))
	for _, h := range r.byLabel {
		out = append(out, h)
	}
	slices.SortFunc(out, func(a, b Handle) int {
		return strings.Compare(a.Label(), b.Label())
	})
	return out
}

// Len returns the number of registered resources.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byLabel)
}
