// Package workflow serializes paper conversions onto a single pipeline
// worker.
//
// The Orchestrator keeps the pending queue ordered by missing-step count,
// then priority, then arrival. Directory scans add papers that lack output,
// uploads jump to the front, and exactly one runner goroutine executes the
// head job at a time. Pause cancels the running attempt through its context
// and returns the job to the head of the queue so it restarts from scratch
// on resume. Progress and terminal callbacks carry the attempt id and are
// dropped when they no longer match the active job.
//
// On completion the library index is refreshed, the paper is registered with
// the Indexer and the outcome is journaled. Failures are recorded with their
// cause and never stop the queue; failed papers stay out of scans until
// RetryFailed or a new upload.
//
// Observers call Subscribe to receive Events on a buffered channel. Slow
// subscribers lose events rather than stall the queue.
package workflow
