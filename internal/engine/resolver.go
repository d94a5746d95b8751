package engine

import (
	"sync"

	"github.com/roach88/horizon/internal/exec"
	"github.com/roach88/horizon/internal/resource"
	"github.com/roach88/horizon/internal/simtime"
	"github.com/roach88/horizon/internal/timeline"
)

type grounding struct {
	at  simtime.Dense
	err error
}

// resolver picks the authoritative writer among one grounded and several
// ungrounded candidates for a read at a fixed dense time.
//
// Every ungrounded candidate is grounded in parallel. Among those landing
// strictly before the read, the latest is compared with the grounded
// candidate and the strictly later one wins. Dense times never tie, so
// insertion order settles writes at the same instant.
//
// A resolver owned by a node registers on every candidate and caches its
// decision until cleared. A root resolver built for a single query does not
// register anywhere.
type resolver struct {
	graph *Graph
	res   resource.Handle
	at    simtime.Dense
	cands timeline.Candidates[writer]
	owned bool

	downstream observerSet

	mu          sync.Mutex
	state       state
	pending     []respCont
	times       []grounding
	outstanding int
	winner      writer
	resp        response
}

func newResolver(g *Graph, res resource.Handle, at simtime.Dense, cands timeline.Candidates[writer], owned bool) *resolver {
	return &resolver{graph: g, res: res, at: at, cands: cands, owned: owned}
}

// self is the observer the resolver registers as, nil for root resolvers.
func (r *resolver) self() observer {
	if r.owned {
		return r
	}
	return nil
}

func (r *resolver) readTime() simtime.Dense {
	return r.at
}

func (r *resolver) unregister(obs observer, res resource.Handle) {
	r.downstream.remove(obs, res)
}

func (r *resolver) request(env *exec.Env, depth int, res resource.Handle, obs observer, cont respCont) {
	r.downstream.add(obs, res)

	r.mu.Lock()
	switch r.state {
	case done:
		resp := r.resp
		r.mu.Unlock()
		env.Resume(depth, func(d int) { cont(d, resp) })
	case working:
		r.pending = append(r.pending, cont)
		r.mu.Unlock()
	default:
		r.state = working
		r.pending = append(r.pending, cont)
		r.times = make([]grounding, len(r.cands.Ungrounded))
		r.outstanding = len(r.cands.Ungrounded)
		r.mu.Unlock()
		r.start(env, depth)
	}
}

func (r *resolver) start(env *exec.Env, depth int) {
	self := r.self()
	if r.cands.HasGrounded && self != nil {
		r.cands.Grounded.Writer.observe(self, r.res)
	}
	if len(r.cands.Ungrounded) == 0 {
		r.decide(env, depth)
		return
	}
	for i, u := range r.cands.Ungrounded {
		env.Resume(depth, func(d int) {
			u.Writer.ground(env, d, r.res, self, func(d int, at simtime.Dense, err error) {
				r.grounded(env, d, i, at, err)
			})
		})
	}
}

func (r *resolver) grounded(env *exec.Env, depth int, i int, at simtime.Dense, err error) {
	r.mu.Lock()
	r.times[i] = grounding{at: at, err: err}
	r.outstanding--
	last := r.outstanding == 0
	r.mu.Unlock()

	if last {
		r.decide(env, depth)
	}
}

func (r *resolver) decide(env *exec.Env, depth int) {
	r.mu.Lock()
	times := r.times
	r.mu.Unlock()

	var best writer
	var bestAt simtime.Dense
	found := false
	for i, g := range times {
		if g.err != nil {
			r.finish(env, depth, response{err: propagate(g.err)})
			return
		}
		if g.at.Before(r.at) && (!found || g.at.After(bestAt)) {
			best, bestAt, found = r.cands.Ungrounded[i].Writer, g.at, true
		}
	}
	if r.cands.HasGrounded {
		if ga := r.cands.Grounded.At; !found || ga.After(bestAt) {
			best, found = r.cands.Grounded.Writer, true
		}
	}
	if !found {
		err := NewUnreachableError(r.res.Label(), r.at)
		env.Report(err)
		r.finish(env, depth, response{err: err})
		return
	}

	r.mu.Lock()
	r.winner = best
	r.mu.Unlock()

	best.request(env, depth, r.res, r.self(), func(d int, resp response) {
		r.finish(env, d, resp)
	})
}

// finish caches resp and answers every pending requester. A winner's
// failure passes through unchanged; readers wrap it.
func (r *resolver) finish(env *exec.Env, depth int, resp response) {
	r.mu.Lock()
	r.resp = resp
	r.state = done
	pending := r.pending
	r.pending = nil
	r.mu.Unlock()

	for _, cont := range pending {
		env.Resume(depth, func(d int) { cont(d, resp) })
	}
}

// clear drops the cached decision, unregisters from every candidate and
// cascades to the owner.
func (r *resolver) clear() {
	if !r.reset() {
		return
	}
	r.graph.metrics.invalidated()
	clearAll(r.downstream.takeAll())
}

// release unregisters r from its candidates once nothing reads through it.
func (r *resolver) release() {
	if r.downstream.len() > 0 {
		return
	}
	r.reset()
}

// reset returns r to dormant and drops its candidate registrations. It
// reports whether r was active.
func (r *resolver) reset() bool {
	r.mu.Lock()
	if r.state == dormant {
		r.mu.Unlock()
		return false
	}
	r.state = dormant
	r.resp = response{}
	r.times = nil
	r.winner = nil
	r.mu.Unlock()

	if self := r.self(); self != nil {
		for _, w := range r.cands.Writers() {
			w.unregister(self, r.res)
		}
	}
	return true
}
