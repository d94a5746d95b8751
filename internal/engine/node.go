package engine

import (
	"fmt"
	"sync"

	"github.com/roach88/horizon/internal/exec"
	"github.com/roach88/horizon/internal/ir"
	"github.com/roach88/horizon/internal/resource"
	"github.com/roach88/horizon/internal/simtime"
)

// state is the protocol state of a node. It only moves forward
// (dormant -> working -> done) until the node is cleared.
type state int

const (
	dormant state = iota
	working
	done
)

func (s state) String() string {
	switch s {
	case dormant:
		return "dormant"
	case working:
		return "working"
	case done:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type pendingReq struct {
	res  resource.Handle
	cont respCont
}

type inputSlot struct {
	decl inputDecl
	up   upstream
	resp response
}

// result is a node's cached evaluation.
type result struct {
	hash  uint64
	reads map[resource.ID]any
	delay simtime.Time
	err   error
}

// opNode is one operation of an inserted activity.
//
// Thread-safety: requests may arrive from any task. mu guards every field
// below it; it is never held while calling into another node.
type opNode struct {
	graph  *Graph
	slab   *Slab
	index  int
	decl   *OpDecl
	order  uint64
	config uint64

	downstream observerSet

	mu sync.Mutex

	// Grounding of dynamic placements.
	gState state
	gAt    simtime.Dense
	gErr   error
	gConts []groundCont

	state       state
	at          simtime.Dense
	pending     []pendingReq
	inputs      []inputSlot
	outstanding int
	res         result
}

func (n *opNode) String() string {
	return fmt.Sprintf("%s#%d[%d]", n.slab.label, n.slab.id, n.index)
}

// staticAt returns the dense time of a static placement.
func (n *opNode) staticAt() simtime.Dense {
	return simtime.Dense{At: n.decl.Placement.at, Order: n.order}
}

func (n *opNode) readTime() simtime.Dense {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.at
}

func (n *opNode) observe(obs observer, res resource.Handle) {
	n.downstream.add(obs, res)
}

func (n *opNode) unregister(obs observer, res resource.Handle) {
	n.downstream.remove(obs, res)
}

func (n *opNode) notify(res resource.Handle, t simtime.Dense) {
	clearAll(n.downstream.takeAfter(res, t))
}

// ground resolves the dense time the node lands at. Static placements
// answer immediately; dynamic ones ask their grounder once and cache the
// answer.
func (n *opNode) ground(env *exec.Env, depth int, res resource.Handle, obs observer, cont groundCont) {
	n.downstream.add(obs, res)
	if n.decl.Placement.IsStatic() {
		at := n.staticAt()
		env.Resume(depth, func(d int) { cont(d, at, nil) })
		return
	}

	n.mu.Lock()
	switch n.gState {
	case done:
		at, err := n.gAt, n.gErr
		n.mu.Unlock()
		env.Resume(depth, func(d int) { cont(d, at, err) })
	case working:
		n.gConts = append(n.gConts, cont)
		n.mu.Unlock()
	default:
		n.gState = working
		n.gConts = append(n.gConts, cont)
		n.mu.Unlock()
		n.startGrounding(env, depth)
	}
}

func (n *opNode) grounder() *opNode {
	return &n.slab.nodes[n.decl.Placement.grounder]
}

func (n *opNode) startGrounding(env *exec.Env, depth int) {
	g := n.grounder()
	env.Resume(depth, func(d int) {
		g.request(env, d, nil, n, func(d int, resp response) {
			at, err := n.resolveTime(env, resp)

			n.mu.Lock()
			n.gState = done
			n.gAt, n.gErr = at, err
			conts := n.gConts
			n.gConts = nil
			n.mu.Unlock()

			for _, c := range conts {
				env.Resume(d, func(d int) { c(d, at, err) })
			}
		})
	})
}

// resolveTime turns the grounder's answer into this node's dense time.
func (n *opNode) resolveTime(env *exec.Env, resp response) (simtime.Dense, error) {
	if resp.err != nil {
		return simtime.Dense{}, propagate(resp.err)
	}
	min, max := n.decl.Placement.Bounds()
	at := resp.at.At + resp.delay
	if at < min || at >= max {
		err := NewOutOfRangeError(n.slab.label, at, min, max)
		env.Report(err)
		return simtime.Dense{}, err
	}
	return simtime.Dense{At: at, Order: n.order}, nil
}

// request asks for the value n wrote to res (or, with a nil res, the delay
// of a delay op).
func (n *opNode) request(env *exec.Env, depth int, res resource.Handle, obs observer, cont respCont) {
	n.downstream.add(obs, res)

	n.mu.Lock()
	switch n.state {
	case done:
		resp := n.responseFor(res)
		n.mu.Unlock()
		env.Resume(depth, func(d int) { cont(d, resp) })
	case working:
		n.pending = append(n.pending, pendingReq{res: res, cont: cont})
		n.mu.Unlock()
	default:
		n.state = working
		n.pending = append(n.pending, pendingReq{res: res, cont: cont})
		n.mu.Unlock()
		n.start(env, depth)
	}
}

func (n *opNode) start(env *exec.Env, depth int) {
	n.ground(env, depth, nil, nil, func(d int, at simtime.Dense, err error) {
		if err != nil {
			n.finish(env, d, result{err: err})
			return
		}
		n.sendRequests(env, d, at)
	})
}

// sendRequests looks up every input's upstream at the node's time and
// requests it. The last response to arrive runs the node.
func (n *opNode) sendRequests(env *exec.Env, depth int, at simtime.Dense) {
	decls := n.decl.inputs()
	slots := make([]inputSlot, len(decls))
	for i, in := range decls {
		slots[i] = inputSlot{decl: in, up: n.graph.upstreamAt(in.res, at, n, true)}
	}

	n.mu.Lock()
	n.at = at
	n.inputs = slots
	n.outstanding = len(slots)
	n.mu.Unlock()

	if len(slots) == 0 {
		n.run(env, depth)
		return
	}
	for i, slot := range slots {
		env.Resume(depth, func(d int) {
			slot.up.request(env, d, slot.decl.res, n, func(d int, resp response) {
				n.receive(env, d, i, resp)
			})
		})
	}
}

func (n *opNode) receive(env *exec.Env, depth int, i int, resp response) {
	n.mu.Lock()
	n.inputs[i].resp = resp
	n.outstanding--
	last := n.outstanding == 0
	n.mu.Unlock()

	if last {
		n.run(env, depth)
	}
}

func (n *opNode) run(env *exec.Env, depth int) {
	n.mu.Lock()
	slots := n.inputs
	at := n.at
	n.mu.Unlock()

	n.finish(env, depth, n.evaluate(env, slots, at))
}

// evaluate samples and evolves inputs, computes the structural hash and
// either reuses history or invokes the body.
func (n *opNode) evaluate(env *exec.Env, slots []inputSlot, at simtime.Dense) result {
	for _, s := range slots {
		if s.resp.err != nil {
			return result{err: propagate(s.resp.err)}
		}
	}

	in := &Inputs{
		samples: make(map[resource.ID]any, len(slots)),
		evolved: make(map[resource.ID]any, len(n.decl.ReadWrites)),
	}
	h := ir.NewHasher(ir.DomainNode).Uint64(n.config)
	for _, s := range slots {
		res := s.decl.res
		evolved, err := res.Evolve(s.resp.read, at.At)
		if err != nil {
			return n.fail(env, NewTypeMismatchError(res.Label(), err))
		}
		sample, err := res.SampleOf(s.resp.read, at.At)
		if err != nil {
			return n.fail(env, NewTypeMismatchError(res.Label(), err))
		}
		in.samples[res.ID()] = sample
		if s.decl.readWrite {
			in.evolved[res.ID()] = evolved
		}

		hv, ok, err := res.HashWrite(evolved)
		switch {
		case err != nil:
			return n.fail(env, NewTypeMismatchError(res.Label(), err))
		case ok:
			h.Uint64(1).Uint64(hv)
		default:
			h.Uint64(2).Uint64(s.resp.hash)
			if res.Continuous() {
				h.Int64(int64(at.At - s.resp.at.At))
			}
		}
	}
	hash := h.Sum64()

	if n.decl.Delay != nil {
		delay, err := n.callDelay(in)
		if err != nil {
			return n.fail(env, n.bodyError(at, err))
		}
		return result{hash: hash, delay: delay}
	}

	outs := n.decl.outputs()
	if stored, ok := n.graph.history.GetAll(hash, outs...); ok {
		n.graph.metrics.historyHit()
		return n.materialize(env, outs, stored, hash, at)
	}
	n.graph.metrics.historyMiss()

	out := newOutputs(outs)
	if err := n.callBody(in, out); err != nil {
		return n.fail(env, n.bodyError(at, err))
	}
	if unset, ok := out.missing(outs); ok {
		return n.fail(env, n.bodyError(at, fmt.Errorf("output %s not set", unset.Label())))
	}

	stored := make([]any, len(outs))
	for i, res := range outs {
		stored[i] = n.graph.history.Insert(res, hash, out.values[res.ID()])
	}
	return n.materialize(env, outs, stored, hash, at)
}

func (n *opNode) materialize(env *exec.Env, outs []resource.Handle, stored []any, hash uint64, at simtime.Dense) result {
	reads := make(map[resource.ID]any, len(outs))
	for i, res := range outs {
		r, err := res.ReadOf(stored[i], at.At)
		if err != nil {
			return n.fail(env, NewTypeMismatchError(res.Label(), err))
		}
		reads[res.ID()] = r
	}
	return result{hash: hash, reads: reads}
}

func (n *opNode) callBody(in *Inputs, out *Outputs) (err error) {
	n.graph.metrics.bodyInvoked()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return n.decl.Body(in, out)
}

func (n *opNode) callDelay(in *Inputs) (d simtime.Time, err error) {
	n.graph.metrics.bodyInvoked()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return n.decl.Delay(in)
}

func (n *opNode) bodyError(at simtime.Dense, err error) error {
	return &BodyError{Activity: n.slab.label, Op: n.index, At: at, Err: err}
}

// fail records err as this node's own failure. It is reported once here;
// readers only see the sentinel.
func (n *opNode) fail(env *exec.Env, err error) result {
	n.graph.logger.Warn("operation failed",
		"activity", n.slab.label,
		"activity_id", n.slab.id,
		"op", n.index,
		"error", err)
	env.Report(err)
	return result{err: err}
}

func (n *opNode) finish(env *exec.Env, depth int, res result) {
	n.mu.Lock()
	n.res = res
	n.state = done
	pending := n.pending
	n.pending = nil
	resps := make([]response, len(pending))
	for i, p := range pending {
		resps[i] = n.responseFor(p.res)
	}
	n.mu.Unlock()

	for i, p := range pending {
		resp := resps[i]
		env.Resume(depth, func(d int) { p.cont(d, resp) })
	}
}

// responseFor builds the answer for res. Callers hold n.mu.
func (n *opNode) responseFor(res resource.Handle) response {
	if n.res.err != nil {
		return response{at: n.at, err: n.res.err}
	}
	if res == nil {
		return response{hash: n.res.hash, at: n.at, delay: n.res.delay}
	}
	read, ok := n.res.reads[res.ID()]
	if !ok {
		return response{err: NewTypeMismatchError(res.Label(), fmt.Errorf("%s does not write it", n))}
	}
	return response{hash: n.res.hash, at: n.at, read: read}
}

// clear drops cached state and cascades to every observer. A node with
// nothing cached stops the wave.
func (n *opNode) clear() {
	n.mu.Lock()
	if n.state == dormant && n.gState == dormant && n.downstream.len() == 0 {
		n.mu.Unlock()
		return
	}
	slots := n.reset()
	n.mu.Unlock()

	n.graph.metrics.invalidated()
	n.release(slots)
	clearAll(n.downstream.takeAll())
}

// detach removes n from the graph: every observer is cleared and every
// upstream registration dropped.
func (n *opNode) detach() {
	obs := n.downstream.takeAll()
	n.mu.Lock()
	slots := n.reset()
	n.mu.Unlock()

	n.release(slots)
	clearAll(obs)
}

// reset returns the node to dormant. Callers hold n.mu.
func (n *opNode) reset() []inputSlot {
	slots := n.inputs
	n.state = dormant
	n.gState = dormant
	n.res = result{}
	n.gErr = nil
	n.inputs = nil
	n.outstanding = 0
	n.at = simtime.Dense{}
	return slots
}

// release unregisters n from its upstreams.
func (n *opNode) release(slots []inputSlot) {
	for _, s := range slots {
		if s.up == nil {
			continue
		}
		s.up.unregister(n, s.decl.res)
		if r, ok := s.up.(*resolver); ok {
			r.release()
		}
	}
	if !n.decl.Placement.IsStatic() {
		n.grounder().unregister(n, nil)
	}
}
