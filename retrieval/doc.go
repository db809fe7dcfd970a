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

// Package retrieval gathers grounding candidates for a question.
//
// A Merger sends the question, plus any paraphrases produced by an Expander,
// to every configured Strategy concurrently and concatenates the results in
// (variant, strategy) order, dropping passages whose content was already seen.
// The original question gets the full TopK from each strategy; paraphrases get
// the smaller VariantTopK.
//
// Two strategies are provided. SemanticStrategy embeds the query and asks the
// chunk store for the nearest vectors. LexicalStrategy ranks chunks with BM25
// over an in-memory index that is rebuilt from a full snapshot after every
// corpus change; it implements corpus.Rebuilder for that purpose.
//
// Failures of individual strategy calls or of expansion never fail a
// retrieval. They are retried once, logged, and contribute nothing.
// Relevance ordering across strategies is left to the rerank package.
package retrieval
