// Package llm translates paper text through an OpenAI-compatible chat API
// when no external translator command is configured.
//
// Requests that fail with HTTP 408, 429 or 5xx, network timeouts or an empty
// reply are retried with exponential backoff (1s doubling to 10s, five
// attempts by default; Retry-After wins when present). A cancelled context
// stops retrying at once, which is how a paused queue abandons an in-flight
// chunk. Failures are tagged services.ErrExternalTool, or ErrConfiguration
// when no API key is set.
package llm
