// Package ragsync keeps a chunked, vector-indexed document corpus in sync
// with a set of source directories and answers questions about it.
//
// A Service is built from a config.Config:
//
//	svc, err := ragsync.New(cfg)
//	if err != nil {
//		return err
//	}
//	defer svc.Close()
//
//	if _, err := svc.Sync(ctx); err != nil {
//		return err
//	}
//	for ev := range svc.AskStream(ctx, "What changed in the release?", true) {
//		fmt.Print(ev.Chunk)
//	}
//
// Sync only re-embeds files whose content hash changed. Questions are
// answered from hybrid semantic and lexical retrieval, optionally reranked,
// with a fallback to the model's general knowledge when nothing relevant is
// indexed.
package ragsync
