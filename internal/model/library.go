package model

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/horizon/internal/engine"
	"github.com/roach88/horizon/internal/ir"
	"github.com/roach88/horizon/internal/resource"
)

// Factory builds an activity from its arguments. Resource arguments are
// looked up in reg.
type Factory func(reg *resource.Registry, args ir.Object) (engine.Activity, error)

// Library maps activity labels to factories.
//
// Thread-safety: safe for concurrent use.
type Library struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewLibrary returns a library holding the built-in activities.
func NewLibrary() *Library {
	l := &Library{factories: make(map[string]Factory)}
	for label, f := range builtins {
		l.factories[label] = f
	}
	return l
}

// Register adds a factory. Labels are unique.
func (l *Library) Register(label string, f Factory) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, dup := l.factories[label]; dup {
		return fmt.Errorf("activity %q already registered", label)
	}
	l.factories[label] = f
	return nil
}

// Labels returns the registered labels in sorted order.
func (l *Library) Labels() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.factories))
	for label := range l.factories {
		out = append(out, label)
	}
	slices.Sort(out)
	return out
}

// Build creates the activity named label.
func (l *Library) Build(reg *resource.Registry, label string, args ir.Object) (engine.Activity, error) {
	l.mu.RLock()
	f, ok := l.factories[label]
	l.mu.RUnlock()
	if !ok {
		return nil, &engine.RuntimeError{
			Code:     engine.ErrCodeUnknownActivity,
			Message:  "no such activity",
			Activity: label,
		}
	}
	if args == nil {
		args = ir.Object{}
	}
	act, err := f(reg, args)
	if err != nil {
		var rerr *engine.RuntimeError
		if errors.As(err, &rerr) {
			return nil, err
		}
		return nil, engine.NewInvalidActivityError(label, "%v", err)
	}
	return act, nil
}

// lookup resolves the resource named by args[key].
func lookup(reg *resource.Registry, activity string, args ir.Object, key string) (resource.Handle, error) {
	name, err := args.Str(key)
	if err != nil {
		return nil, err
	}
	h, err := reg.Lookup(name)
	if err != nil {
		return nil, engine.NewUnknownResourceError(activity, name)
	}
	return h, nil
}

// lookupNumeric is lookup restricted to numeric kinds.
func lookupNumeric(reg *resource.Registry, activity string, args ir.Object, key string) (numeric, error) {
	h, err := lookup(reg, activity, args, key)
	if err != nil {
		return numeric{}, err
	}
	return numericOf(h)
}
