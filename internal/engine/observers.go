package engine

import (
	"sync"

	"github.com/roach88/horizon/internal/exec"
	"github.com/roach88/horizon/internal/resource"
	"github.com/roach88/horizon/internal/simtime"
)

// response answers a request for one resource of a writer.
type response struct {
	hash  uint64
	at    simtime.Dense
	read  any
	delay simtime.Time
	err   error
}

type respCont func(depth int, resp response)

type groundCont func(depth int, at simtime.Dense, err error)

// observer is a downstream that caches something derived from an upstream.
type observer interface {
	// readTime is the dense time the observer reads at.
	readTime() simtime.Dense
	// clear drops the observer's cached state and cascades to its own
	// observers. Only called during exclusive plan mutations.
	clear()
}

// upstream answers requests for resource values.
type upstream interface {
	// request asks for the value written to res and calls cont exactly
	// once. A non-nil obs is registered as a downstream under res.
	request(env *exec.Env, depth int, res resource.Handle, obs observer, cont respCont)
	unregister(obs observer, res resource.Handle)
}

// writer is an upstream that lives in timelines.
type writer interface {
	upstream
	// ground asks for the dense time the writer lands at.
	ground(env *exec.Env, depth int, res resource.Handle, obs observer, cont groundCont)
	// observe registers obs under res without requesting anything.
	observe(obs observer, res resource.Handle)
	// notify clears observers of res that read after t.
	notify(res resource.Handle, t simtime.Dense)
}

// groundingKey registers dynamic ops on their grounder.
const groundingKey resource.ID = 0

func keyOf(res resource.Handle) resource.ID {
	if res == nil {
		return groundingKey
	}
	return res.ID()
}

type obsKey struct {
	obs observer
	res resource.ID
}

// observerSet holds downstream registrations.
//
// Thread-safety: safe for concurrent use.
type observerSet struct {
	mu sync.Mutex
	m  map[obsKey]struct{}
}

func (s *observerSet) add(obs observer, res resource.Handle) {
	if obs == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m == nil {
		s.m = make(map[obsKey]struct{})
	}
	s.m[obsKey{obs: obs, res: keyOf(res)}] = struct{}{}
}

func (s *observerSet) remove(obs observer, res resource.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, obsKey{obs: obs, res: keyOf(res)})
}

func (s *observerSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

// takeAll removes every registration and returns the distinct observers.
func (s *observerSet) takeAll() []observer {
	s.mu.Lock()
	m := s.m
	s.m = nil
	s.mu.Unlock()

	seen := make(map[observer]struct{}, len(m))
	out := make([]observer, 0, len(m))
	for k := range m {
		if _, ok := seen[k.obs]; ok {
			continue
		}
		seen[k.obs] = struct{}{}
		out = append(out, k.obs)
	}
	return out
}

// takeAfter removes and returns the observers of res reading after t.
func (s *observerSet) takeAfter(res resource.Handle, t simtime.Dense) []observer {
	id := keyOf(res)
	s.mu.Lock()
	var keys []obsKey
	for k := range s.m {
		if k.res == id {
			keys = append(keys, k)
		}
	}
	s.mu.Unlock()

	var out []observer
	for _, k := range keys {
		// readTime locks the observer; never hold s.mu across it.
		if !k.obs.readTime().After(t) {
			continue
		}
		s.mu.Lock()
		delete(s.m, k)
		s.mu.Unlock()
		out = append(out, k.obs)
	}
	return out
}

// clearAll clears every observer in obs.
func clearAll(obs []observer) {
	for _, o := range obs {
		o.clear()
	}
}

// failedUpstream answers every request with the same failure.
type failedUpstream struct {
	err error
}

func (f failedUpstream) request(env *exec.Env, depth int, _ resource.Handle, _ observer, cont respCont) {
	env.Report(f.err)
	env.Resume(depth, func(d int) { cont(d, response{err: f.err}) })
}

func (failedUpstream) unregister(observer, resource.Handle) {}
