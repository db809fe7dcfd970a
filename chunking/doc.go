// Package chunking splits source documents into overlapping, deterministically
// identified chunks.
//
// Splitting is recursive: the text is cut on paragraph breaks first, then line
// breaks, sentence punctuation (including CJK), spaces and finally single
// characters, until every piece fits the chunk size. Lengths are measured in
// runes. A document is always split from scratch; there is no resumable or
// incremental mode.
package chunking
