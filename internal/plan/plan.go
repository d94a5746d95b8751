package plan

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/horizon/internal/engine"
	"github.com/roach88/horizon/internal/exec"
	"github.com/roach88/horizon/internal/history"
	"github.com/roach88/horizon/internal/ir"
	"github.com/roach88/horizon/internal/resource"
	"github.com/roach88/horizon/internal/simtime"
)

// ActivityID identifies an inserted activity within its plan.
type ActivityID uint64

// Plan is one simulation session.
//
// Thread-safety: Insert and Remove are exclusive; View and Sample may run
// concurrently with each other.
type Plan struct {
	mu sync.RWMutex

	id     string
	graph  *engine.Graph
	clock  *simtime.Clock
	logger *slog.Logger

	nextID     ActivityID
	activities map[ActivityID]*record
}

type record struct {
	id       ActivityID
	at       simtime.Time
	activity engine.Activity
	slab     *engine.Slab
}

// ActivityInfo describes an inserted activity.
type ActivityInfo struct {
	ID    ActivityID
	At    simtime.Time
	Label string
	Args  ir.Object
	Ops   int
}

// Option configures a Plan.
type Option func(*config)

type config struct {
	logger *slog.Logger
	idGen  IDGenerator
	engine []engine.Option
}

// WithLogger sets the logger for the plan and its graph.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
		c.engine = append(c.engine, engine.WithLogger(l))
	}
}

// WithMetrics records engine counters.
func WithMetrics(m *engine.Metrics) Option {
	return func(c *config) {
		c.engine = append(c.engine, engine.WithMetrics(m))
	}
}

// WithHistory shares h instead of creating a fresh history.
func WithHistory(h *history.History) Option {
	return func(c *config) {
		c.engine = append(c.engine, engine.WithHistory(h))
	}
}

// WithDepthBudget sets the inline continuation depth.
func WithDepthBudget(n int) Option {
	return func(c *config) {
		c.engine = append(c.engine, engine.WithDepthBudget(n))
	}
}

// WithBufferSize sets the grounded insert buffer of every timeline.
func WithBufferSize(n int) Option {
	return func(c *config) {
		c.engine = append(c.engine, engine.WithBufferSize(n))
	}
}

// WithIDGenerator sets how the plan id is generated.
func WithIDGenerator(g IDGenerator) Option {
	return func(c *config) {
		c.idGen = g
	}
}

// New creates a plan starting at start. Its resources are exactly those
// named in initial; each needs an explicit value or a resource default.
func New(start simtime.Time, initial []engine.Initial, opts ...Option) (*Plan, error) {
	cfg := config{logger: slog.Default(), idGen: UUIDv7Generator{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	g, err := engine.NewGraph(start, initial, cfg.engine...)
	if err != nil {
		return nil, fmt.Errorf("new plan: %w", err)
	}
	p := &Plan{
		id:         cfg.idGen.Generate(),
		graph:      g,
		clock:      simtime.NewClock(),
		logger:     cfg.logger,
		activities: make(map[ActivityID]*record),
	}
	p.logger.Debug("plan created", "plan", p.id, "start", start, "resources", len(initial))
	return p, nil
}

// ID returns the plan id.
func (p *Plan) ID() string { return p.id }

// Start returns the plan start.
func (p *Plan) Start() simtime.Time { return p.graph.Start() }

// History returns the plan's history.
func (p *Plan) History() *history.History { return p.graph.History() }

// Registry returns the plan's resources.
func (p *Plan) Registry() *resource.Registry { return p.graph.Registry() }

// Insert decomposes act at at and adds it to the plan.
func (p *Plan) Insert(at simtime.Time, act engine.Activity) (ActivityID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextID + 1
	slab, err := p.graph.Place(uint64(id), at, act, p.clock)
	p.graph.Flush()
	if err != nil {
		return 0, fmt.Errorf("insert %s at %s: %w", act.Label(), at, err)
	}
	p.nextID = id
	p.activities[id] = &record{id: id, at: at, activity: act, slab: slab}
	p.logger.Debug("activity inserted", "plan", p.id, "activity_id", id, "label", act.Label(), "at", at)
	return id, nil
}

// Remove takes an activity out of the plan.
func (p *Plan) Remove(id ActivityID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.activities[id]
	if !ok {
		return &engine.RuntimeError{
			Code:    engine.ErrCodeUnknownActivity,
			Message: fmt.Sprintf("activity %d is not in the plan", id),
		}
	}
	delete(p.activities, id)
	err := p.graph.Unplace(rec.slab)
	p.graph.Flush()
	if err != nil {
		return fmt.Errorf("remove activity %d: %w", id, err)
	}
	p.logger.Debug("activity removed", "plan", p.id, "activity_id", id, "label", rec.activity.Label())
	return nil
}

// Activities lists inserted activities in insertion order.
func (p *Plan) Activities() []ActivityInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]ActivityInfo, 0, len(p.activities))
	for _, rec := range p.activities {
		out = append(out, ActivityInfo{
			ID:    rec.id,
			At:    rec.at,
			Label: rec.activity.Label(),
			Args:  rec.activity.Args(),
			Ops:   rec.slab.Len(),
		})
	}
	slices.SortFunc(out, func(a, b ActivityInfo) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// View returns the value of res in effect at from followed by every write
// in (from, to], ordered by dense time. Points whose evaluation failed are
// left out and their errors joined, each distinct failure once.
func (p *Plan) View(ctx context.Context, res resource.Handle, from, to simtime.Time) ([]engine.Point, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if err := p.check(res); err != nil {
		return nil, err
	}
	var points []engine.Point
	err := exec.Run(ctx, p.graph.ExecOptions(), func(env *exec.Env) {
		p.graph.View(env, res, from, to, func(pts []engine.Point) {
			points = pts
		})
	})
	return points, err
}

// Sample returns the sample of res at at: the last write at or before at,
// evolved to at.
func (p *Plan) Sample(ctx context.Context, res resource.Handle, at simtime.Time) (any, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if err := p.check(res); err != nil {
		return nil, err
	}
	var read any
	var found bool
	err := exec.Run(ctx, p.graph.ExecOptions(), func(env *exec.Env) {
		p.graph.Request(env, res, simtime.At(at), func(r any, _ simtime.Dense, ok bool) {
			read, found = r, ok
		})
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("sample %s at %s: no value", res.Label(), at)
	}
	s, err := res.SampleOf(read, at)
	if err != nil {
		return nil, engine.NewTypeMismatchError(res.Label(), err)
	}
	return s, nil
}

func (p *Plan) check(res resource.Handle) error {
	if res == nil || !p.graph.Has(res) {
		label := "<nil>"
		if res != nil {
			label = res.Label()
		}
		return engine.NewUnknownResourceError("", label)
	}
	return nil
}
