// Package corpus keeps the chunk index synchronized with the configured
// source locations.
//
// A pass has two phases. Plan scans every enabled SourceDescriptor,
// fingerprints each file by content hash and classifies it against the
// persisted SourceRecord as new, modified, unchanged or deleted. Apply then
// deletes, re-chunks, re-embeds and stores exactly the files that changed, and
// rebuilds derived indexes (the lexical index) from a full snapshot when
// anything changed. Running Sync twice over unchanged files performs no writes
// the second time.
//
// # Task tiers
//
//	Method                    I/O tier (errgroup goroutines)          CPU tier (workpool)
//	Scanner.Scan              directory walk                          -
//	Synchronizer.Plan         stat + read per file                    content hash
//	Synchronizer.Apply        read, embed, index writes               content hash, chunk split
//	Synchronizer.Rebuild      snapshot read                           index build (in the Rebuilder)
//
// # Failure handling
//
// A file that cannot be read, embedded or written is logged and reported in
// Report.FailedPaths; its previous index entries are left as they were. Index
// entries for paths outside every configured source are treated as
// core.ErrStateInconsistency and removed on the next pass. Entries for files
// that vanished from a configured source are removed only with WithAutoDelete.
//
// Watcher re-runs Sync after file system activity settles.
package corpus
