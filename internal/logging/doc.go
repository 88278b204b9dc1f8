// Package logging builds the slog loggers lectern components share.
//
// New picks a console or JSON handler, fans output to stdout, stderr or log
// files, and optionally mirrors every record into a StreamHub, the bounded
// buffer behind `lectern logs`. The console format lifts component, job and
// stage into a one-line header and prints remaining attributes as labelled
// detail lines. WithContext tags a logger with the job, stage, attempt and
// request id carried by a context; WarnWithContext and ErrorWithContext make
// sure failure lines always name an event type and a hint.
package logging
