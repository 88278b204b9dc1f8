// Package stage holds the small contracts shared by pipeline stages: health
// records, progress reporters and failure tagging.
package stage
