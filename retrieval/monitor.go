package retrieval

import "github.com/poiesic/ragsync/core"

// RetrievalMonitor provides hooks to observe a retrieval.
// AfterStrategySearch and StrategyFailed are called from concurrent
// goroutines; implementations must be safe for concurrent use.
type RetrievalMonitor interface {
	Start(query string, categories []string)
	AfterExpansion(variants []string)
	AfterStrategySearch(strategy, variant string, candidates []core.Candidate)
	StrategyFailed(strategy, variant string, err error)
	Finish(candidates []core.Candidate)
}

// noopMonitor is a no-op implementation of RetrievalMonitor
type noopMonitor struct{}

var _ RetrievalMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string, _ []string)                          {}
func (n *noopMonitor) AfterExpansion(_ []string)                           {}
func (n *noopMonitor) AfterStrategySearch(_, _ string, _ []core.Candidate) {}
func (n *noopMonitor) StrategyFailed(_, _ string, _ error)                 {}
func (n *noopMonitor) Finish(_ []core.Candidate)                           {}
