package engine

import (
	"slices"
	"sync"

	"github.com/roach88/horizon/internal/exec"
	"github.com/roach88/horizon/internal/resource"
	"github.com/roach88/horizon/internal/simtime"
)

// Point is one value of a resource in a view.
type Point struct {
	// Time is where the point appears in the view: the view start for the
	// value in effect there, otherwise the instant of the write.
	Time simtime.Time
	// Written is the dense time of the write that produced the value.
	Written simtime.Dense
	// Read is the resource's read handle.
	Read any
}

// View evaluates res over (from, to]: the value in effect at from followed
// by every write after from up to and including to, in dense order. done is
// called once with whatever points evaluated successfully; failures are
// reported to env.
func (g *Graph) View(env *exec.Env, res resource.Handle, from, to simtime.Time, done func([]Point)) {
	tl, ok := g.timelines[res.ID()]
	if !ok {
		env.Report(NewUnknownResourceError("", res.Label()))
		done(nil)
		return
	}
	span := tl.Range(from, to)

	c := &collector{outstanding: 1 + len(span.Grounded) + len(span.Ungrounded), done: done}

	start := g.upstreamFor(res, simtime.At(from), span.Start, false)
	start.request(env, 0, res, nil, func(_ int, resp response) {
		c.add(env, resp, from)
	})
	for _, e := range span.Grounded {
		e.Writer.request(env, 0, res, nil, func(_ int, resp response) {
			c.add(env, resp, e.At.At)
		})
	}
	for _, u := range span.Ungrounded {
		u.Writer.ground(env, 0, res, nil, func(d int, at simtime.Dense, err error) {
			if err != nil {
				c.add(env, response{err: err}, 0)
				return
			}
			if at.At <= from || at.At > to {
				c.skip()
				return
			}
			u.Writer.request(env, d, res, nil, func(_ int, resp response) {
				c.add(env, resp, at.At)
			})
		})
	}
}

// collector gathers view points from concurrent responses.
type collector struct {
	mu          sync.Mutex
	points      []Point
	outstanding int
	done        func([]Point)
}

func (c *collector) add(env *exec.Env, resp response, t simtime.Time) {
	if resp.err != nil {
		env.Report(RootCause(resp.err))
		c.skip()
		return
	}
	c.mu.Lock()
	c.points = append(c.points, Point{Time: t, Written: resp.at, Read: resp.read})
	c.mu.Unlock()
	c.skip()
}

func (c *collector) skip() {
	c.mu.Lock()
	c.outstanding--
	last := c.outstanding == 0
	points := c.points
	c.mu.Unlock()

	if last {
		slices.SortFunc(points, func(a, b Point) int {
			return a.Written.Compare(b.Written)
		})
		c.done(points)
	}
}
