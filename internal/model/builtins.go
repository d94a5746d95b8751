package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/roach88/horizon/internal/engine"
	"github.com/roach88/horizon/internal/ir"
	"github.com/roach88/horizon/internal/resource"
	"github.com/roach88/horizon/internal/simtime"
)

var builtins = map[string]Factory{
	"set":         newSet,
	"increment":   newIncrement,
	"copy":        newCopy,
	"delayed_set": newDelayedSet,
	"ramp":        newRamp,
	"fail":        newFail,
}

// single is a one-op activity placed at its start.
func single(label string, args ir.Object, op engine.OpDecl) engine.Activity {
	return &engine.FuncActivity{
		Name:      label,
		Arguments: args,
		Ops: func(start simtime.Time) ([]engine.OpDecl, error) {
			decl := op
			decl.Placement = engine.Static(start)
			return []engine.OpDecl{decl}, nil
		},
	}
}

func handles(hs ...resource.Handle) []resource.Handle { return hs }

func newSet(reg *resource.Registry, args ir.Object) (engine.Activity, error) {
	target, err := lookupNumeric(reg, "set", args, "resource")
	if err != nil {
		return nil, err
	}
	v, err := args.Decimal("value")
	if err != nil {
		return nil, err
	}
	w, err := target.constant(v)
	if err != nil {
		return nil, err
	}
	return single("set", args, engine.OpDecl{
		Writes: handles(target.h),
		Body: func(_ *engine.Inputs, out *engine.Outputs) error {
			return out.SetValue(target.h, w)
		},
	}), nil
}

func newIncrement(reg *resource.Registry, args ir.Object) (engine.Activity, error) {
	target, err := lookupNumeric(reg, "increment", args, "resource")
	if err != nil {
		return nil, err
	}
	by, err := args.Decimal("by")
	if err != nil {
		return nil, err
	}
	if _, err := target.constant(by); err != nil {
		return nil, err
	}
	return single("increment", args, engine.OpDecl{
		ReadWrites: handles(target.h),
		Body: func(in *engine.Inputs, out *engine.Outputs) error {
			cur, _ := in.EvolvedValue(target.h)
			w, err := target.add(cur, by)
			if err != nil {
				return err
			}
			return out.SetValue(target.h, w)
		},
	}), nil
}

func newCopy(reg *resource.Registry, args ir.Object) (engine.Activity, error) {
	src, err := lookupNumeric(reg, "copy", args, "from")
	if err != nil {
		return nil, err
	}
	dst, err := lookupNumeric(reg, "copy", args, "to")
	if err != nil {
		return nil, err
	}
	if src.h.ID() == dst.h.ID() {
		return nil, fmt.Errorf("copy from %s to itself", src.h.Label())
	}
	if dst.kind == KindInt && src.kind != KindInt {
		return nil, fmt.Errorf("cannot copy %s %s into int %s", src.kind, src.h.Label(), dst.h.Label())
	}
	return single("copy", args, engine.OpDecl{
		Reads:  handles(src.h),
		Writes: handles(dst.h),
		Body: func(in *engine.Inputs, out *engine.Outputs) error {
			v, err := src.sample(in)
			if err != nil {
				return err
			}
			w, err := dst.constant(v)
			if err != nil {
				return err
			}
			return out.SetValue(dst.h, w)
		},
	}), nil
}

// newDelayedSet writes value at start+delay, where the delay is either the
// delay argument or the sampled value of delay_from in seconds. The write
// must land in [start+min, start+max).
func newDelayedSet(reg *resource.Registry, args ir.Object) (engine.Activity, error) {
	target, err := lookupNumeric(reg, "delayed_set", args, "resource")
	if err != nil {
		return nil, err
	}
	v, err := args.Decimal("value")
	if err != nil {
		return nil, err
	}
	w, err := target.constant(v)
	if err != nil {
		return nil, err
	}
	lo, err := args.Duration("min")
	if err != nil {
		return nil, err
	}
	hi, err := args.Duration("max")
	if err != nil {
		return nil, err
	}

	grounder := engine.OpDecl{}
	_, hasFixed := args["delay"]
	_, hasFrom := args["delay_from"]
	switch {
	case hasFixed && hasFrom:
		return nil, errors.New("delay and delay_from are exclusive")
	case hasFixed:
		d, err := args.Duration("delay")
		if err != nil {
			return nil, err
		}
		grounder.Delay = func(*engine.Inputs) (simtime.Time, error) { return d, nil }
	case hasFrom:
		from, err := lookupNumeric(reg, "delayed_set", args, "delay_from")
		if err != nil {
			return nil, err
		}
		grounder.Reads = handles(from.h)
		grounder.Delay = func(in *engine.Inputs) (simtime.Time, error) {
			secs, err := from.sample(in)
			if err != nil {
				return 0, err
			}
			return time.Duration(secs * float64(time.Second)), nil
		}
	default:
		return nil, errors.New(`argument "delay" or "delay_from" is required`)
	}

	return &engine.FuncActivity{
		Name:      "delayed_set",
		Arguments: args,
		Ops: func(start simtime.Time) ([]engine.OpDecl, error) {
			g := grounder
			g.Placement = engine.Static(start)
			return []engine.OpDecl{
				g,
				{
					Placement: engine.Dynamic(start+lo, start+hi, 0),
					Writes:    handles(target.h),
					Body: func(_ *engine.Inputs, out *engine.Outputs) error {
						return out.SetValue(target.h, w)
					},
				},
			}, nil
		},
	}, nil
}

func newRamp(reg *resource.Registry, args ir.Object) (engine.Activity, error) {
	target, err := lookupNumeric(reg, "ramp", args, "resource")
	if err != nil {
		return nil, err
	}
	if target.kind != KindPoly {
		return nil, fmt.Errorf("ramp needs a poly resource, %s is %s", target.h.Label(), target.kind)
	}
	rate, err := args.Decimal("rate")
	if err != nil {
		return nil, err
	}
	return single("ramp", args, engine.OpDecl{
		ReadWrites: handles(target.h),
		Body: func(in *engine.Inputs, out *engine.Outputs) error {
			cur, _ := in.EvolvedValue(target.h)
			p, ok := cur.(resource.Polynomial)
			if !ok {
				return fmt.Errorf("%s: unexpected value %T", target.h.Label(), cur)
			}
			return out.SetValue(target.h, p.Add(resource.Linear(0, rate)))
		},
	}), nil
}

func newFail(reg *resource.Registry, args ir.Object) (engine.Activity, error) {
	target, err := lookup(reg, "fail", args, "resource")
	if err != nil {
		return nil, err
	}
	msg := "failed"
	if _, ok := args["message"]; ok {
		if msg, err = args.Str("message"); err != nil {
			return nil, err
		}
	}
	return single("fail", args, engine.OpDecl{
		Writes: handles(target),
		Body: func(*engine.Inputs, *engine.Outputs) error {
			return errors.New(msg)
		},
	}), nil
}
