// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package lexical

import (
	"math"
	"slices"
	"strings"

	"github.com/poiesic/ragsync/core"
)

// Okapi BM25 parameters.
const (
	k1 = 1.5
	b  = 0.75

	// coverageBoost multiplies the score of documents containing every query term.
	coverageBoost = 1.25
)

// StrategyName labels candidates produced by the lexical index.
const StrategyName = "lexical"

type document struct {
	chunk    *core.Chunk
	termFreq map[string]int
	length   int
}

// Index is an immutable BM25 index over a snapshot of chunks. It is rebuilt
// from scratch whenever the corpus changes; it has no incremental update.
// An Index is safe for concurrent reads.
type Index struct {
	docs     []document
	postings map[string][]int // term -> indexes into docs
	avgLen   float64
}

// Build indexes chunks. Vectors are not retained.
func Build(chunks []*core.Chunk) *Index {
	idx := &Index{
		docs:     make([]document, 0, len(chunks)),
		postings: make(map[string][]int),
	}

	var totalLen int
	for _, c := range chunks {
		terms := Tokenize(c.Content)
		tf := make(map[string]int, len(terms))
		for _, term := range terms {
			tf[term]++
		}
		slim := *c
		slim.Vector = nil

		pos := len(idx.docs)
		idx.docs = append(idx.docs, document{chunk: &slim, termFreq: tf, length: len(terms)})
		for term := range tf {
			idx.postings[term] = append(idx.postings[term], pos)
		}
		totalLen += len(terms)
	}
	if len(idx.docs) > 0 {
		idx.avgLen = float64(totalLen) / float64(len(idx.docs))
	}
	return idx
}

// Len returns the number of indexed chunks.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.docs)
}

// Search returns up to k chunks ranked by BM25 score against query. Only
// chunks sharing at least one term with the query are returned. A non-empty
// categories restricts results to those categories.
func (idx *Index) Search(query string, k int, categories []string) []core.Candidate {
	if idx == nil || k <= 0 || len(idx.docs) == 0 {
		return []core.Candidate{}
	}

	queryTerms := uniqueTerms(Tokenize(query))
	scores := make(map[int]float64)
	n := float64(len(idx.docs))
	for _, term := range queryTerms {
		postings := idx.postings[term]
		if len(postings) == 0 {
			continue
		}
		df := float64(len(postings))
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))
		for _, pos := range postings {
			doc := idx.docs[pos]
			if len(categories) > 0 && !slices.Contains(categories, doc.chunk.Category) {
				continue
			}
			tf := float64(doc.termFreq[term])
			norm := tf * (k1 + 1) / (tf + k1*(1-b+b*float64(doc.length)/idx.avgLen))
			scores[pos] += idf * norm
		}
	}

	results := make([]core.Candidate, 0, len(scores))
	for pos, score := range scores {
		doc := idx.docs[pos]
		if containsAllTerms(doc.termFreq, queryTerms) {
			score *= coverageBoost
		}
		results = append(results, core.CandidateFromChunk(doc.chunk, float32(score), StrategyName))
	}

	slices.SortFunc(results, func(a, b core.Candidate) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return strings.Compare(a.ChunkID, b.ChunkID)
	})
	if len(results) > k {
		results = results[:k]
	}
	return results
}

func uniqueTerms(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
