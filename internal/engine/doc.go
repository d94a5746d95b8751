// Package engine implements the incremental operation graph behind a plan.
//
// ARCHITECTURE:
//
// Nodes and timelines:
// Every placed activity decomposes into operation nodes, allocated together
// in one Slab. Each node's writes are entered into the timeline of the
// written resource, grounded (fixed instant) or ungrounded (an interval the
// node's grounder picks from). Every timeline starts with an initial
// condition node at order 0 of the plan start.
//
// Request protocol:
// A node is dormant, working or done. The first request moves it to
// working: it resolves its own time (asking its grounder if dynamic), looks
// up an upstream per input at that time and requests each. The last
// response runs the node. Later requests while working queue up; requests
// once done are answered from cache.
//
// Grounding resolver:
// When a lookup yields one grounded and several ungrounded candidates, a
// resolver grounds every ungrounded candidate and picks the latest write
// strictly before the read, comparing dense times.
//
// Memoization:
// A node's structural hash combines its configuration (activity label, op
// index, canonical arguments) with one contribution per input: the value
// hash for hashable resources, otherwise the upstream's structural hash
// plus the elapsed time for continuous resources. Only initial conditions
// hash concrete values. Outputs are stored in History under that hash, so
// any node with the same hash reuses them without running its body.
//
// Invalidation:
// Plan edits notify the writers whose readers may now see a different
// value. Affected nodes return to dormant and clear their own observers.
// A node that is already dormant stops the wave.
//
// Failures:
// A failing body is recorded once as a *BodyError. Readers cache a wrapper
// matching ErrUpstreamFailed, which the exec accumulator ignores, so a
// failure is reported once no matter how many readers observe it.
package engine
