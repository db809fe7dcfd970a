package mock

import (
	"context"
	"sync/atomic"
)

// MockReranker is a test double for ai.Reranker.
type MockReranker struct {
	// RerankFunc is called by Rerank if set.
	// If nil, the incoming order is kept and truncated to topN.
	RerankFunc func(ctx context.Context, query string, passages []string, topN int) ([]int, error)

	callCount atomic.Int64
}

// NewMockReranker creates a reranker that keeps the incoming order.
func NewMockReranker() *MockReranker {
	return &MockReranker{}
}

// Rerank returns passage indexes in relevance order.
func (m *MockReranker) Rerank(ctx context.Context, query string, passages []string, topN int) ([]int, error) {
	m.callCount.Add(1)

	if m.RerankFunc != nil {
		return m.RerankFunc(ctx, query, passages, topN)
	}
	n := min(topN, len(passages))
	order := make([]int, 0, max(n, 0))
	for i := 0; i < n; i++ {
		order = append(order, i)
	}
	return order, nil
}

// CallCount returns the number of times Rerank was called.
func (m *MockReranker) CallCount() int {
	return int(m.callCount.Load())
}
