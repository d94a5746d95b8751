package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/horizon/internal/exec"
	"github.com/roach88/horizon/internal/history"
	"github.com/roach88/horizon/internal/ir"
	"github.com/roach88/horizon/internal/resource"
	"github.com/roach88/horizon/internal/simtime"
	"github.com/roach88/horizon/internal/timeline"
)

// Graph is the dependency graph of one plan: a timeline and initial
// condition per resource, and the operation nodes of every placed activity.
//
// Thread-safety: Place, Unplace and Flush must be exclusive with each other
// and with queries; the plan enforces this with its lock. Queries (Request,
// View) may run in parallel.
type Graph struct {
	start       simtime.Time
	logger      *slog.Logger
	metrics     *Metrics
	history     *history.History
	depthBudget int
	bufferSize  int

	registry  *resource.Registry
	timelines map[resource.ID]*timeline.Timeline[writer]
	initials  map[resource.ID]*initialNode
}

// Option configures a Graph.
type Option func(*Graph)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(g *Graph) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithMetrics sets the metrics sink. Default: none.
func WithMetrics(m *Metrics) Option {
	return func(g *Graph) {
		g.metrics = m
	}
}

// WithHistory shares an existing history. Default: a fresh one.
func WithHistory(h *history.History) Option {
	return func(g *Graph) {
		if h != nil {
			g.history = h
		}
	}
}

// WithDepthBudget sets the inline continuation depth.
// Default: exec.DefaultDepthBudget.
func WithDepthBudget(n int) Option {
	return func(g *Graph) {
		g.depthBudget = n
	}
}

// WithBufferSize sets the grounded insert buffer of every timeline.
// Default: timeline.DefaultBufferSize.
func WithBufferSize(n int) Option {
	return func(g *Graph) {
		g.bufferSize = n
	}
}

// NewGraph creates a graph whose resources are exactly those in initial.
// Every resource needs an explicit value or a default.
func NewGraph(start simtime.Time, initial []Initial, opts ...Option) (*Graph, error) {
	g := &Graph{
		start:       start,
		logger:      slog.Default(),
		history:     history.New(),
		depthBudget: exec.DefaultDepthBudget,
		bufferSize:  timeline.DefaultBufferSize,
		timelines:   make(map[resource.ID]*timeline.Timeline[writer], len(initial)),
		initials:    make(map[resource.ID]*initialNode, len(initial)),
	}
	for _, opt := range opts {
		opt(g)
	}

	reg, err := resource.NewRegistry()
	if err != nil {
		return nil, err
	}
	for _, in := range initial {
		if in.Resource == nil {
			return nil, fmt.Errorf("initial condition without resource")
		}
		if err := reg.Register(in.Resource); err != nil {
			return nil, err
		}
		node, err := newInitialNode(in.Resource, in.Value, start)
		if err != nil {
			return nil, err
		}
		id := in.Resource.ID()
		if _, dup := g.initials[id]; dup {
			return nil, fmt.Errorf("resource %s has two initial conditions", in.Resource.Label())
		}
		g.initials[id] = node
		g.timelines[id] = timeline.New[writer](start, node, timeline.WithBufferSize(g.bufferSize))
	}
	g.registry = reg
	return g, nil
}

// Start returns the plan start.
func (g *Graph) Start() simtime.Time { return g.start }

// History returns the graph's history.
func (g *Graph) History() *history.History { return g.history }

// Registry returns the graph's resources.
func (g *Graph) Registry() *resource.Registry { return g.registry }

// Metrics returns the metrics sink, possibly nil.
func (g *Graph) Metrics() *Metrics { return g.metrics }

// ExecOptions returns the scope options queries should run with.
func (g *Graph) ExecOptions() exec.Options {
	return exec.Options{
		DepthBudget: g.depthBudget,
		Logger:      g.logger,
		OnSpawn:     g.metrics.spawned,
	}
}

// Has reports whether res is part of the graph.
func (g *Graph) Has(res resource.Handle) bool {
	_, ok := g.timelines[res.ID()]
	return ok
}

// InitialValue returns the initial condition of res.
func (g *Graph) InitialValue(res resource.Handle) (any, bool) {
	n, ok := g.initials[res.ID()]
	if !ok {
		return nil, false
	}
	return n.value, true
}

// Slab holds the operation nodes of one placed activity.
type Slab struct {
	id    uint64
	label string
	args  ir.Object
	start simtime.Time
	nodes []opNode
}

// ID returns the id the slab was placed under.
func (s *Slab) ID() uint64 { return s.id }

// Label returns the activity label.
func (s *Slab) Label() string { return s.label }

// Args returns the activity arguments.
func (s *Slab) Args() ir.Object { return s.args }

// Start returns the activity start time.
func (s *Slab) Start() simtime.Time { return s.start }

// Len returns the number of operations.
func (s *Slab) Len() int { return len(s.nodes) }

type placementKey struct {
	res resource.ID
	at  simtime.Time
}

// Place decomposes act at start and inserts every write into its timeline,
// clearing downstream caches the new writes may shadow. Orders are stamped
// from clock in decomposition order. Nothing is mutated if the
// decomposition is rejected.
func (g *Graph) Place(id uint64, start simtime.Time, act Activity, clock *simtime.Clock) (*Slab, error) {
	label := act.Label()
	decls, err := act.Decompose(start)
	if err != nil {
		return nil, NewInvalidActivityError(label, "decompose: %v", err)
	}
	if err := validateDecls(label, g.start, decls, g.Has); err != nil {
		return nil, err
	}

	claimed := make(map[placementKey]struct{})
	for i := range decls {
		p := decls[i].Placement
		if !p.IsStatic() {
			continue
		}
		for _, res := range decls[i].outputs() {
			key := placementKey{res: res.ID(), at: p.at}
			if _, dup := claimed[key]; dup || g.timelines[res.ID()].Occupied(p.at) {
				return nil, NewDuplicatePlacementError(label, res.Label(), p.at)
			}
			claimed[key] = struct{}{}
		}
	}

	args := act.Args()
	slab := &Slab{id: id, label: label, args: args, start: start, nodes: make([]opNode, len(decls))}
	for i := range decls {
		config, err := ir.OperationHash(label, i, args)
		if err != nil {
			return nil, NewInvalidActivityError(label, "%v", err)
		}
		slab.nodes[i] = opNode{
			graph:  g,
			slab:   slab,
			index:  i,
			decl:   &decls[i],
			order:  clock.Next(),
			config: config,
		}
	}

	for i := range slab.nodes {
		n := &slab.nodes[i]
		for _, res := range n.decl.outputs() {
			if err := g.insert(n, res); err != nil {
				return nil, err
			}
		}
	}
	g.logger.Debug("activity placed", "activity", label, "activity_id", id, "start", start, "ops", len(decls))
	return slab, nil
}

func (g *Graph) insert(n *opNode, res resource.Handle) error {
	tl := g.timelines[res.ID()]
	p := n.decl.Placement
	if p.IsStatic() {
		at := n.staticAt()
		prev, err := tl.InsertGrounded(at, n)
		if err != nil {
			return fmt.Errorf("place %s on %s: %w", n, res.Label(), err)
		}
		for _, w := range prev {
			w.notify(res, at)
		}
		return nil
	}
	stale, err := tl.InsertUngrounded(p.min, p.max, n.order, n)
	if err != nil {
		return fmt.Errorf("place %s on %s: %w", n, res.Label(), err)
	}
	for _, w := range stale {
		w.notify(res, simtime.Start(p.min))
	}
	return nil
}

// Unplace removes every write of slab from its timeline and detaches its
// nodes. A write missing from its slot is a structural error; the remaining
// writes are still removed.
func (g *Graph) Unplace(slab *Slab) error {
	var errs []error
	for i := range slab.nodes {
		n := &slab.nodes[i]
		for _, res := range n.decl.outputs() {
			if err := g.remove(n, res); err != nil {
				errs = append(errs, NewPlacementNotFoundError(slab.label, res.Label(), err))
			}
		}
	}
	for i := range slab.nodes {
		slab.nodes[i].detach()
	}
	g.logger.Debug("activity removed", "activity", slab.label, "activity_id", slab.id)
	return errors.Join(errs...)
}

func (g *Graph) remove(n *opNode, res resource.Handle) error {
	tl := g.timelines[res.ID()]
	p := n.decl.Placement
	if !p.IsStatic() {
		return tl.RemoveUngrounded(p.min, p.max, n)
	}
	w, err := tl.RemoveGrounded(n.staticAt())
	if err != nil {
		return err
	}
	if w != writer(n) {
		return fmt.Errorf("slot %s held by another writer: %w", n.staticAt(), timeline.ErrNotFound)
	}
	return nil
}

// Flush applies buffered timeline inserts.
func (g *Graph) Flush() {
	for _, tl := range g.timelines {
		tl.Flush()
	}
}

// upstreamAt returns what supplies res to a read at at: the single
// candidate, a resolver over several, or a failure if there is none.
func (g *Graph) upstreamAt(res resource.Handle, at simtime.Dense, exclude writer, owned bool) upstream {
	tl, ok := g.timelines[res.ID()]
	if !ok {
		return failedUpstream{err: NewUnknownResourceError("", res.Label())}
	}
	return g.upstreamFor(res, at, tl.LastBefore(at, exclude), owned)
}

func (g *Graph) upstreamFor(res resource.Handle, at simtime.Dense, c timeline.Candidates[writer], owned bool) upstream {
	if w, ok := c.Single(); ok {
		return w
	}
	if c.Empty() {
		return failedUpstream{err: NewUnreachableError(res.Label(), at)}
	}
	return newResolver(g, res, at, c, owned)
}

// Request drives evaluation of the value of res read at at and calls cont
// with the read handle. Failures are reported to env once, by their
// original cause.
func (g *Graph) Request(env *exec.Env, res resource.Handle, at simtime.Dense, cont func(read any, written simtime.Dense, ok bool)) {
	up := g.upstreamAt(res, at, nil, false)
	up.request(env, 0, res, nil, func(_ int, resp response) {
		if resp.err != nil {
			env.Report(RootCause(resp.err))
			cont(nil, simtime.Dense{}, false)
			return
		}
		cont(resp.read, resp.at, true)
	})
}
