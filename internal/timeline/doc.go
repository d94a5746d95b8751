// Package timeline indexes, per resource, which writers supply the
// resource's value over time.
//
// Grounded writers have a fixed dense time and live in a sorted index with
// an insert buffer that is applied in batches. Ungrounded writers only know
// an interval [min, max) in which they will land; they live in a boundary
// index keyed by interval start, where each boundary lists every ungrounded
// writer whose interval covers it.
//
// A lookup returns at most one grounded candidate and any number of
// ungrounded ones. Choosing between them needs evaluation and is left to
// the caller.
package timeline
