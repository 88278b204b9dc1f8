// Package main hosts the lectern CLI entrypoint and command graph.
//
// Commands talk to a running daemon over its HTTP API: queue inspection and
// control, uploads, library browsing, fragment matching, log tailing and the
// live event stream. `lectern daemon` runs the daemon itself in the
// foreground. Every read command accepts --output json|yaml for scripting.
package main
