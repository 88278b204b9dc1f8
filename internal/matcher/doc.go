// Package matcher finds the cross-language counterpart of a rendered text
// fragment inside a paper's rag tree.
//
// Candidates and the query are compared after normalization (markup and math
// stripped, only letters, digits and CJK ideographs kept, case folded); two
// strings match when either contains the other. Traversal is pre-order and
// the first match in document order wins. Formula nodes never match.
package matcher
