// Package lexical implements keyword retrieval with Okapi BM25.
//
// An Index is built from a full snapshot of the chunk store and never updated
// in place. Callers that need a live index build a new one after each
// synchronization and swap it in atomically (see retrieval.LexicalStrategy).
package lexical
