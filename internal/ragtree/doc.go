// Package ragtree loads the structured bilingual representation of a paper
// (final_rag_tree.json) into a flat arena of sections that can be walked
// pre-order without recursion.
//
// Parse validates the raw JSON against an embedded schema before building the
// arena; any structural problem is reported as services.ErrMalformed so callers
// can degrade to "no cross-reference" instead of failing.
package ragtree
