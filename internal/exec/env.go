package exec

import (
	"context"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// DefaultDepthBudget bounds inline continuation depth.
const DefaultDepthBudget = 64

// Options configures a scope.
type Options struct {
	// DepthBudget is the inline depth before continuations spawn tasks.
	// Zero means DefaultDepthBudget.
	DepthBudget int

	// Logger receives debug output. Nil means slog.Default().
	Logger *slog.Logger

	// OnSpawn is called for every spawned task.
	OnSpawn func()
}

// Env is the handle tasks use to spawn work and report errors.
//
// Thread-safety: safe for concurrent use within its scope. An Env must not
// be used after Run returns.
type Env struct {
	ctx     context.Context
	group   *errgroup.Group
	budget  int
	logger  *slog.Logger
	onSpawn func()

	acc     *Accumulator
	spawned atomic.Int64
}

// Run opens a scope, calls fn with depth 0 on the calling goroutine, and
// waits for every task spawned in the scope. It returns the joined errors
// reported during the scope.
func Run(ctx context.Context, opts Options, fn func(env *Env)) error {
	env := newEnv(ctx, opts)
	fn(env)
	return env.wait()
}

func newEnv(ctx context.Context, opts Options) *Env {
	budget := opts.DepthBudget
	if budget <= 0 {
		budget = DefaultDepthBudget
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	// No SetLimit: tasks spawn tasks, and a bounded group would deadlock
	// once every slot waits on a child.
	return &Env{
		ctx:     ctx,
		group:   &errgroup.Group{},
		budget:  budget,
		logger:  logger,
		onSpawn: opts.OnSpawn,
		acc:     &Accumulator{},
	}
}

func (e *Env) wait() error {
	_ = e.group.Wait() // tasks report through the accumulator
	if n := e.spawned.Load(); n > 0 {
		e.logger.Debug("scope joined", "spawned", n, "errors", e.acc.Len())
	}
	return e.acc.Err()
}

// Context returns the scope's context.
func (e *Env) Context() context.Context {
	return e.ctx
}

// Budget returns the inline depth budget.
func (e *Env) Budget() int {
	return e.budget
}

// Spawn runs fn as a new task at depth 0.
func (e *Env) Spawn(fn func(depth int)) {
	e.spawned.Add(1)
	if e.onSpawn != nil {
		e.onSpawn()
	}
	e.group.Go(func() error {
		fn(0)
		return nil
	})
}

// Resume runs fn inline at depth+1 while depth is under the budget, and as
// a new task otherwise.
func (e *Env) Resume(depth int, fn func(depth int)) {
	if depth < e.budget {
		fn(depth + 1)
		return
	}
	e.Spawn(fn)
}

// Report records err in the scope's accumulator.
func (e *Env) Report(err error) {
	e.acc.Add(err)
}

// Spawned returns the number of tasks spawned so far.
func (e *Env) Spawned() int64 {
	return e.spawned.Load()
}

// Errors returns the errors reported so far.
func (e *Env) Errors() []error {
	return e.acc.Errors()
}
