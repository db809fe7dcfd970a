// Package workpool provides the CPU tier of ragsync's two-tier task model.
//
// Blocking I/O (file reads, embedding calls, index reads and writes, model
// calls) runs on ordinary goroutines, usually fanned out with errgroup.
// CPU-bound work is submitted to a Pool so that the number of goroutines
// competing for cores stays bounded no matter how many I/O goroutines are in
// flight:
//
//   - content hashing of source files (corpus.Synchronizer.Plan)
//   - chunk splitting (corpus.Synchronizer.Apply)
//   - lexical index construction (retrieval.LexicalStrategy.Rebuild)
//
// A Pool is backed by ants and defaults to half the available CPUs.
package workpool
