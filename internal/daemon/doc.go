// Package daemon coordinates the long-running lectern process.
//
// It wires configuration, the paper library, the outcome journal, the queue
// orchestrator and the matcher into a single lifecycle with flock-based
// locking to prevent multiple instances. Once started it reconciles the data
// directory on a ticker and on fsnotify bursts, accepts uploads, and serves
// the HTTP API (JSON endpoints, a websocket event stream and log tailing).
//
// Keep orchestration logic here: queue semantics live in workflow, artifact
// layout in library, and the daemon focuses on startup, shutdown and
// translating requests into those calls.
package daemon
