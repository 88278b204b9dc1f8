// Package services defines shared utilities consumed by the pipeline stages,
// the queue orchestrator and the daemon API.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, dispatch attempts and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so failures carry a
//     consistent classification (not found, malformed, pipeline, ...) from the
//     stage that raised them up to the API and CLI.
//
// Use these helpers when wiring new stage logic so operational behaviour stays
// uniform across the pipeline.
package services
