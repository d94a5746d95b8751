package engine

import (
	"fmt"

	"github.com/roach88/horizon/internal/ir"
	"github.com/roach88/horizon/internal/resource"
	"github.com/roach88/horizon/internal/simtime"
)

// Activity is a user-level scheduling unit. At insertion it decomposes into
// a fixed, ordered list of operations.
//
// Decompose must be deterministic in (start, Args()): every placement and
// dependency is a function of the static arguments.
type Activity interface {
	Label() string
	Args() ir.Object
	Decompose(start simtime.Time) ([]OpDecl, error)
}

// FuncActivity adapts a decomposition function to Activity.
type FuncActivity struct {
	Name      string
	Arguments ir.Object
	Ops       func(start simtime.Time) ([]OpDecl, error)
}

func (a *FuncActivity) Label() string   { return a.Name }
func (a *FuncActivity) Args() ir.Object { return a.Arguments }

func (a *FuncActivity) Decompose(start simtime.Time) ([]OpDecl, error) {
	return a.Ops(start)
}

type placementKind int

const (
	placementStatic placementKind = iota
	placementDynamic
)

// Placement says when an operation takes effect.
type Placement struct {
	kind     placementKind
	at       simtime.Time
	min, max simtime.Time
	grounder int
}

// Static places an operation at a fixed instant.
func Static(at simtime.Time) Placement {
	return Placement{kind: placementStatic, at: at}
}

// Dynamic places an operation somewhere in [min, max). The exact instant is
// the time of the grounder op (an earlier op of the same activity with a
// Delay) plus the delay it returns.
func Dynamic(min, max simtime.Time, grounder int) Placement {
	return Placement{kind: placementDynamic, min: min, max: max, grounder: grounder}
}

// IsStatic reports whether p is grounded.
func (p Placement) IsStatic() bool { return p.kind == placementStatic }

// At returns the instant of a static placement.
func (p Placement) At() simtime.Time { return p.at }

// Bounds returns the interval of a dynamic placement.
func (p Placement) Bounds() (min, max simtime.Time) { return p.min, p.max }

// Grounder returns the op index a dynamic placement is timed by.
func (p Placement) Grounder() int { return p.grounder }

func (p Placement) String() string {
	if p.IsStatic() {
		return fmt.Sprintf("static(%s)", p.at)
	}
	return fmt.Sprintf("dynamic([%s, %s) via op %d)", p.min, p.max, p.grounder)
}

// latest returns the last instant p can land at.
func (p Placement) latest() simtime.Time {
	if p.IsStatic() {
		return p.at
	}
	return p.max - 1
}

// OpDecl declares one operation.
//
// Reads are sampled at the operation's time. ReadWrites are evolved to the
// operation's time and may be rewritten. Writes are written without being
// read. Exactly one of Body and Delay is set: a Delay op writes nothing and
// only times the dynamic ops that name it as grounder.
type OpDecl struct {
	Placement  Placement
	Reads      []resource.Handle
	ReadWrites []resource.Handle
	Writes     []resource.Handle

	Body  func(in *Inputs, out *Outputs) error
	Delay func(in *Inputs) (simtime.Time, error)
}

// inputs lists read-writes then reads, in declaration order.
func (d *OpDecl) inputs() []inputDecl {
	out := make([]inputDecl, 0, len(d.ReadWrites)+len(d.Reads))
	for _, r := range d.ReadWrites {
		out = append(out, inputDecl{res: r, readWrite: true})
	}
	for _, r := range d.Reads {
		out = append(out, inputDecl{res: r})
	}
	return out
}

// outputs lists read-writes then writes.
func (d *OpDecl) outputs() []resource.Handle {
	out := make([]resource.Handle, 0, len(d.ReadWrites)+len(d.Writes))
	out = append(out, d.ReadWrites...)
	return append(out, d.Writes...)
}

type inputDecl struct {
	res       resource.Handle
	readWrite bool
}

// validateDecls checks a decomposition against the plan before anything is
// mutated.
func validateDecls(label string, start simtime.Time, decls []OpDecl, known func(resource.Handle) bool) error {
	for i := range decls {
		d := &decls[i]
		if (d.Body == nil) == (d.Delay == nil) {
			return NewInvalidActivityError(label, "op %d: exactly one of Body and Delay must be set", i)
		}
		if d.Delay != nil && len(d.outputs()) > 0 {
			return NewInvalidActivityError(label, "op %d: a delay op cannot write resources", i)
		}
		if d.Body != nil && len(d.outputs()) == 0 {
			return NewInvalidActivityError(label, "op %d: op writes no resources", i)
		}

		seen := make(map[resource.ID]string)
		check := func(kind string, hs []resource.Handle) error {
			for _, h := range hs {
				if h == nil {
					return NewInvalidActivityError(label, "op %d: nil resource in %s", i, kind)
				}
				if !known(h) {
					return NewUnknownResourceError(label, h.Label())
				}
				if prev, ok := seen[h.ID()]; ok && !(prev == "reads" && kind == "writes") {
					return NewInvalidActivityError(label, "op %d: resource %s listed in %s and %s", i, h.Label(), prev, kind)
				}
				seen[h.ID()] = kind
			}
			return nil
		}
		if err := check("reads", d.Reads); err != nil {
			return err
		}
		if err := check("read_writes", d.ReadWrites); err != nil {
			return err
		}
		if err := check("writes", d.Writes); err != nil {
			return err
		}

		p := d.Placement
		if p.IsStatic() {
			if p.at < start {
				return &RuntimeError{
					Code:     ErrCodePlacementOutOfRange,
					Message:  fmt.Sprintf("op %d placed at %s before plan start %s", i, p.at, start),
					Activity: label,
				}
			}
			continue
		}
		if p.min >= p.max {
			return NewInvalidActivityError(label, "op %d: empty interval [%s, %s)", i, p.min, p.max)
		}
		if p.grounder < 0 || p.grounder >= i {
			return NewInvalidActivityError(label, "op %d: grounder %d must be an earlier op", i, p.grounder)
		}
		g := &decls[p.grounder]
		if g.Delay == nil {
			return NewInvalidActivityError(label, "op %d: grounder %d has no Delay", i, p.grounder)
		}
		// Strictly after anything the grounder can observe, so grounding
		// never waits on itself.
		if p.min <= g.Placement.latest() {
			return NewInvalidActivityError(label, "op %d: interval must start after its grounder (%s)", i, g.Placement)
		}
	}
	return nil
}
