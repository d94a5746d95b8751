// Package exec is the structured fork-join substrate evaluation runs on.
//
// Run opens a scope and joins every task spawned in it before returning.
// Waiting on a dependency is never a blocking call: the waiter registers a
// continuation and returns, and whoever completes the dependency resumes
// it. Resume runs a continuation inline while the call depth stays under
// the budget and spawns a task beyond it, so long dependency chains cost
// goroutines instead of stack.
//
// Failures never cancel sibling tasks. They are reported to the scope's
// Accumulator, which keeps each distinct error once and drops the
// ErrUpstreamFailed sentinel that readers of a failed computation observe.
package exec
