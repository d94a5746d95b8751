package engine

import (
	"fmt"

	"github.com/roach88/horizon/internal/resource"
)

// Inputs holds what an operation body reads: a sample of every input and
// the evolved write value of every read-write input, as of the operation's
// time.
type Inputs struct {
	samples map[resource.ID]any
	evolved map[resource.ID]any
}

// Sample returns the sampled value of r. It panics if r is not an input;
// the engine turns body panics into body failures.
func Sample[W, R, S any](in *Inputs, r *resource.Resource[W, R, S]) S {
	v, ok := in.samples[r.ID()]
	if !ok {
		panic(fmt.Errorf("resource %s is not an input of this op", r.Label()))
	}
	s, err := r.AsSample(v)
	if err != nil {
		panic(err)
	}
	return s
}

// Evolved returns the write value of read-write input r evolved to the
// operation's time.
func Evolved[W, R, S any](in *Inputs, r *resource.Resource[W, R, S]) W {
	v, ok := in.evolved[r.ID()]
	if !ok {
		panic(fmt.Errorf("resource %s is not a read-write input of this op", r.Label()))
	}
	w, err := r.AsWrite(v)
	if err != nil {
		panic(err)
	}
	return w
}

// SampleValue returns the sample of h without static typing.
func (in *Inputs) SampleValue(h resource.Handle) (any, bool) {
	v, ok := in.samples[h.ID()]
	return v, ok
}

// EvolvedValue returns the evolved write value of h without static typing.
func (in *Inputs) EvolvedValue(h resource.Handle) (any, bool) {
	v, ok := in.evolved[h.ID()]
	return v, ok
}

// Outputs collects the values an operation body writes.
type Outputs struct {
	declared map[resource.ID]resource.Handle
	values   map[resource.ID]any
}

func newOutputs(hs []resource.Handle) *Outputs {
	out := &Outputs{
		declared: make(map[resource.ID]resource.Handle, len(hs)),
		values:   make(map[resource.ID]any, len(hs)),
	}
	for _, h := range hs {
		out.declared[h.ID()] = h
	}
	return out
}

// Set writes w to r. It panics if r is not an output of the op.
func Set[W, R, S any](out *Outputs, r *resource.Resource[W, R, S], w W) {
	if err := out.SetValue(r, w); err != nil {
		panic(err)
	}
}

// SetValue writes an untyped value, checking it against h.
func (out *Outputs) SetValue(h resource.Handle, w any) error {
	if _, ok := out.declared[h.ID()]; !ok {
		return fmt.Errorf("resource %s is not an output of this op", h.Label())
	}
	// ReadOf type-checks without keeping the result.
	if _, err := h.ReadOf(w, 0); err != nil {
		return err
	}
	out.values[h.ID()] = w
	return nil
}

// missing returns the first declared output that was not set.
func (out *Outputs) missing(order []resource.Handle) (resource.Handle, bool) {
	for _, h := range order {
		if _, ok := out.values[h.ID()]; !ok {
			return h, true
		}
	}
	return nil, false
}
