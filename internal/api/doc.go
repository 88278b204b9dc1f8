// Package api defines wire-format types, converters and the HTTP client for
// the lectern daemon API. It translates queue, library and matcher models into
// transport-friendly DTOs so the CLI never couples to internal types.
//
// # Key Types
//
// Job/Progress: queue entries and stage progress of the active job.
//
// WorkflowStatus/DaemonStatus: orchestrator state, stage readiness and the
// daemon's file locations.
//
// Paper/PaperResponse: library index rows and loaded bilingual content.
//
// MatchRequest/MatchResponse: counterpart lookups. A failed lookup is always
// {"found": false}, never an error status.
//
// Event: orchestrator events relayed over the /api/events websocket.
//
// LogEvent/LogStreamResponse: structured log payloads for live tailing.
//
// # Validation
//
// Request bodies carry validator/v10 tags; Validate reports every failing
// field and tags the error with services.ErrValidation.
//
// # Client
//
// Client wraps every endpoint. Error statuses map back to services markers
// (404 to ErrNotFound, 400/409 to ErrValidation, 401 to ErrConfiguration) so
// callers can classify failures the same way on both sides of the wire.
// IsUnavailable distinguishes a stopped daemon from a failing request.
//
// DTOs use camelCase JSON tags and RFC3339 timestamps with milliseconds.
package api
