package harness

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/roach88/horizon/internal/compiler"
	"github.com/roach88/horizon/internal/engine"
	"github.com/roach88/horizon/internal/ir"
	"github.com/roach88/horizon/internal/model"
	"github.com/roach88/horizon/internal/plan"
	"github.com/roach88/horizon/internal/resource"
	"github.com/roach88/horizon/internal/simtime"
)

// Options configures a scenario run.
type Options struct {
	// Logger receives plan debug logs. Default: discarded.
	Logger *slog.Logger

	// DepthBudget overrides the engine's inline continuation depth.
	DepthBudget int

	// Metrics records engine counters.
	Metrics *engine.Metrics

	// Persister, when set, seeds the plan's history before the first step
	// and receives it after the last.
	Persister plan.Persister

	// Library overrides the built-in activity library.
	Library *model.Library
}

// runner holds the state of one scenario run.
type runner struct {
	plan   *plan.Plan
	reg    *resource.Registry
	lib    *model.Library
	ids    map[string]plan.ActivityID
	result *Result
}

// Run executes a scenario against a fresh plan and returns the result.
//
// Expectation failures are recorded in the result; the returned error is
// reserved for scenarios that cannot run at all (bad model, unknown
// initial resource, persistence failures).
//
// Execution flow:
// 1. Build the resource registry from the model or inline resources
// 2. Create the plan with initial conditions
// 3. Load persisted history, if any
// 4. Execute steps in order, checking expectations
// 5. Save history and return the trace
func Run(ctx context.Context, sc *Scenario, opts Options) (*Result, error) {
	reg, err := registryFor(sc)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}
	initial, err := initialFor(sc, reg)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	planOpts := []plan.Option{
		plan.WithLogger(logger),
		plan.WithIDGenerator(plan.NewFixedGenerator(sc.Name)),
	}
	if opts.DepthBudget > 0 {
		planOpts = append(planOpts, plan.WithDepthBudget(opts.DepthBudget))
	}
	if opts.Metrics != nil {
		planOpts = append(planOpts, plan.WithMetrics(opts.Metrics))
	}
	p, err := plan.New(simtime.Time(sc.Start), initial, planOpts...)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}

	if opts.Persister != nil {
		loaded, err := p.LoadHistory(ctx, opts.Persister)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
		}
		logger.Debug("history seeded", "scenario", sc.Name, "entries", loaded.Entries)
	}

	lib := opts.Library
	if lib == nil {
		lib = model.NewLibrary()
	}
	r := &runner{
		plan:   p,
		reg:    reg,
		lib:    lib,
		ids:    make(map[string]plan.ActivityID),
		result: NewResult(),
	}
	for i, step := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.step(ctx, i, step)
	}

	r.result.Entries = p.History().Stats().Entries
	r.result.AddTrace(fmt.Sprintf("history entries=%d", r.result.Entries))

	if opts.Persister != nil {
		if _, err := p.SaveHistory(ctx, opts.Persister); err != nil {
			return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
		}
	}
	return r.result, nil
}

// registryFor declares the scenario's resources.
func registryFor(sc *Scenario) (*resource.Registry, error) {
	if sc.Model != "" {
		spec, err := compiler.LoadModel(sc.Model)
		if err != nil {
			return nil, err
		}
		return spec.Registry()
	}

	spec := &compiler.ModelSpec{}
	for name, decl := range sc.Resources {
		k, err := model.ParseKind(decl.Kind)
		if err != nil {
			return nil, fmt.Errorf("resource %s: %w", name, err)
		}
		spec.Resources = append(spec.Resources, compiler.ResourceSpec{
			Name:    name,
			Kind:    k,
			Default: decl.Default,
		})
	}
	slices.SortFunc(spec.Resources, func(a, b compiler.ResourceSpec) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return spec.Registry()
}

// initialFor builds one initial condition per resource. Resources without
// an override start at their default.
func initialFor(sc *Scenario, reg *resource.Registry) ([]engine.Initial, error) {
	for name := range sc.Initial {
		if _, err := reg.Lookup(name); err != nil {
			return nil, fmt.Errorf("initial: %w", err)
		}
	}
	all := reg.All()
	out := make([]engine.Initial, 0, len(all))
	for _, h := range all {
		in := engine.Initial{Resource: h}
		if v, ok := sc.Initial[h.Label()]; ok {
			w, err := model.Value(h, v)
			if err != nil {
				return nil, fmt.Errorf("initial %s: %w", h.Label(), err)
			}
			in.Value = w
		}
		out = append(out, in)
	}
	return out, nil
}

func (r *runner) step(ctx context.Context, i int, step Step) {
	switch {
	case step.Insert != nil:
		r.insert(i, step.Insert)
	case step.Remove != "":
		r.remove(i, step.Remove)
	case step.Sample != nil:
		r.sample(ctx, i, step.Sample)
	case step.View != nil:
		r.view(ctx, i, step.View)
	}
}

func (r *runner) insert(i int, s *InsertStep) {
	label := s.ID
	if label == "" {
		label = "-"
	}
	args, err := ir.ObjectFromMap(s.Args)
	var shown string
	if err == nil {
		var data []byte
		if data, err = ir.MarshalCanonical(args); err == nil {
			shown = string(data)
		}
	}
	var id plan.ActivityID
	if err == nil {
		var act engine.Activity
		if act, err = r.lib.Build(r.reg, s.Activity, args); err == nil {
			id, err = r.plan.Insert(simtime.Time(s.At), act)
		}
	}
	line := fmt.Sprintf("insert %s: %s %s at %s", label, s.Activity, shown, simtime.Time(s.At))
	if r.check(i, &line, err, s.ExpectError) && s.ID != "" {
		r.ids[s.ID] = id
	}
	r.result.AddTrace(line)
}

func (r *runner) remove(i int, id string) {
	line := "remove " + id
	err := r.plan.Remove(r.ids[id])
	if err == nil {
		delete(r.ids, id)
	}
	r.check(i, &line, err, "")
	r.result.AddTrace(line)
}

func (r *runner) sample(ctx context.Context, i int, s *SampleStep) {
	at := simtime.Time(s.At)
	line := fmt.Sprintf("sample %s at %s", s.Resource, at)
	var v any
	h, err := r.lookup(s.Resource)
	if err == nil {
		v, err = r.plan.Sample(ctx, h, at)
	}
	if err == nil {
		line += " = " + formatValue(v)
	}
	if r.check(i, &line, err, s.ExpectError) && s.Expect != nil {
		if err := expectValue(v, *s.Expect); err != nil {
			r.result.AddError(fmt.Sprintf("steps[%d]: sample %s at %s: %v", i, s.Resource, at, err))
		}
	}
	r.result.AddTrace(line)
}

func (r *runner) view(ctx context.Context, i int, s *ViewStep) {
	from, to := simtime.Time(s.From), simtime.Time(s.To)
	line := fmt.Sprintf("view %s (%s, %s]:", s.Resource, from, to)
	var got []observed
	h, err := r.lookup(s.Resource)
	if err == nil {
		var pts []engine.Point
		pts, err = r.plan.View(ctx, h, from, to)
		for _, pt := range pts {
			v, serr := h.SampleOf(pt.Read, pt.Time)
			if serr != nil {
				err = serr
				break
			}
			got = append(got, observed{at: pt.Time, value: v})
			line += fmt.Sprintf(" %s=%s", pt.Time, formatValue(v))
		}
	}
	if r.check(i, &line, err, s.ExpectError) && s.Expect != nil {
		if err := expectPoints(got, s.Expect); err != nil {
			r.result.AddError(fmt.Sprintf("steps[%d]: view %s: %v", i, s.Resource, err))
		}
	}
	r.result.AddTrace(line)
}

func (r *runner) lookup(name string) (resource.Handle, error) {
	h, err := r.reg.Lookup(name)
	if err != nil {
		return nil, engine.NewUnknownResourceError("", name)
	}
	return h, nil
}

// check appends err to the trace line and compares it with the expected
// error. It returns true when the step succeeded.
func (r *runner) check(i int, line *string, err error, expectErr string) bool {
	if err == nil {
		if expectErr != "" {
			r.result.AddError(fmt.Sprintf("steps[%d]: expected error %s, got none", i, expectErr))
		}
		return true
	}
	parts := describe(err)
	*line += " ! " + strings.Join(parts, "; ")
	switch {
	case expectErr == "":
		r.result.AddError(fmt.Sprintf("steps[%d]: unexpected error: %s", i, strings.Join(parts, "; ")))
	case !matchesError(parts, expectErr):
		r.result.AddError(fmt.Sprintf("steps[%d]: expected error %s, got %s", i, expectErr, strings.Join(parts, "; ")))
	}
	return false
}
