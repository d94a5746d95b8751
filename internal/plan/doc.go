// Package plan is the entry point for simulating a schedule.
//
// A Plan owns one engine graph: a timeline per resource plus the operation
// nodes of every inserted activity. Insert and Remove mutate it under the
// plan's write lock and clear exactly the cached results the edit can
// affect. View and Sample take the read lock, may run in parallel, and
// drive evaluation through a fork-join scope.
//
// Results are memoized in the plan's History by structural hash. A History
// can be shared between plans, and saved to and loaded from a Persister.
package plan
