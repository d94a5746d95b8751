// Package history is the content-addressed cache of operation outputs.
//
// Each resource owns a table from structural hash to write value. Insert is
// insert-or-fetch: the first writer wins and later inserts under the same
// hash return the stored value unchanged. Because equal hashes come from
// deterministic computations over equal inputs, racing writers converge.
//
// History is the only structure evaluation tasks mutate concurrently. Tables
// are split into lock-striped shards so unrelated inserts do not contend.
// Entries are never evicted during a session.
package history
