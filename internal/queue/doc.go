// Package queue defines the job model shared by the orchestrator, the daemon
// API and the CLI, plus the SQLite journal that remembers how past jobs ended.
//
// Jobs describe one paper moving through the conversion pipeline. Pending
// holds the in-memory ordering rules: fewest missing artifacts first, higher
// priority first among equals, then insertion order, with uploads promoted
// straight to the front. The orchestrator owns the single Pending instance and
// serializes every mutation behind its own lock; Pending itself is not safe
// for concurrent use.
//
// The Store journals terminal outcomes (completed, failed, cancelled) so the
// history survives daemon restarts. It is not the source of truth for what is
// queued: the queue is rebuilt from the data directory on every start.
// Schema changes bump the version in schema.go; users delete queue.db to adopt
// the new schema.
package queue
