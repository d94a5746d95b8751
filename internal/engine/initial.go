package engine

import (
	"fmt"

	"github.com/roach88/horizon/internal/exec"
	"github.com/roach88/horizon/internal/ir"
	"github.com/roach88/horizon/internal/resource"
	"github.com/roach88/horizon/internal/simtime"
)

// Initial is an explicit initial condition. A nil Value falls back to the
// resource default.
type Initial struct {
	Resource resource.Handle
	Value    any
}

// initialNode writes a resource's initial condition at order 0 of the plan
// start. It is the only node that hashes a concrete value.
type initialNode struct {
	res   resource.Handle
	value any
	read  any
	hash  uint64
	at    simtime.Dense

	downstream observerSet
}

func newInitialNode(res resource.Handle, value any, start simtime.Time) (*initialNode, error) {
	if value == nil {
		def, ok := res.Default()
		if !ok {
			return nil, NewMissingInitialError(res.Label())
		}
		value = def
	}
	read, err := res.ReadOf(value, start)
	if err != nil {
		return nil, NewTypeMismatchError(res.Label(), err)
	}
	hash, err := initialHash(res, value)
	if err != nil {
		return nil, err
	}
	return &initialNode{
		res:   res,
		value: value,
		read:  read,
		hash:  hash,
		at:    simtime.Start(start),
	}, nil
}

func initialHash(res resource.Handle, value any) (uint64, error) {
	h := ir.NewHasher(ir.DomainInitial).String(res.WriteType())
	hv, ok, err := res.HashWrite(value)
	if err != nil {
		return 0, NewTypeMismatchError(res.Label(), err)
	}
	if ok {
		return h.Uint64(hv).Sum64(), nil
	}
	data, err := res.Encode(value)
	if err != nil {
		return 0, fmt.Errorf("hash initial value of %s: %w", res.Label(), err)
	}
	return h.Bytes(data).Sum64(), nil
}

func (n *initialNode) String() string {
	return "initial(" + n.res.Label() + ")"
}

func (n *initialNode) request(env *exec.Env, depth int, res resource.Handle, obs observer, cont respCont) {
	n.downstream.add(obs, res)
	resp := response{hash: n.hash, at: n.at, read: n.read}
	env.Resume(depth, func(d int) { cont(d, resp) })
}

func (n *initialNode) ground(env *exec.Env, depth int, res resource.Handle, obs observer, cont groundCont) {
	n.downstream.add(obs, res)
	env.Resume(depth, func(d int) { cont(d, n.at, nil) })
}

func (n *initialNode) observe(obs observer, res resource.Handle) {
	n.downstream.add(obs, res)
}

func (n *initialNode) unregister(obs observer, res resource.Handle) {
	n.downstream.remove(obs, res)
}

func (n *initialNode) notify(res resource.Handle, t simtime.Dense) {
	clearAll(n.downstream.takeAfter(res, t))
}
