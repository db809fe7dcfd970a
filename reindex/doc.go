// Package reindex recomputes the embedding of every indexed chunk, typically
// after switching embedding models.
//
// Chunks are visited in batches. Each batch is embedded with retry and
// exponential backoff, normalized to unit length and written back in one
// transaction. Chunk content, ids and source records are left untouched, so a
// following sync still sees every file as unchanged.
package reindex
