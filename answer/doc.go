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

// Package answer produces streamed, context-grounded answers.
//
// Generator.AskStream runs one question through a fixed sequence of events:
//
//	Processing+ -> GenerationStart -> GenerationChunk* -> GenerationEnd -> Complete
//
// Any failure before GenerationEnd ends the sequence with a single Error
// event instead. The channel is closed after the terminal event, so ranging
// over it always terminates.
//
// Whether an answer is grounded is decided before generation, from whether
// retrieval and reranking produced any candidates. With candidates, the QA
// prompt is used. Without them, or when the model answers a grounded prompt
// with the refusal sentinel, the fallback prompt asks for an answer from
// general knowledge and the result is tagged ModelKnowledge. If that also
// yields the sentinel or nothing, the sentinel itself is the answer and the
// result is tagged Refusal. The final answer is never empty.
//
// Output that could still turn out to be the refusal sentinel is held back
// while streaming, so a refusal is never shown and then withdrawn.
//
// The generation collaborator is an ai.GenerationClient. A StreamingClient's
// fragments are forwarded as they arrive; a BlockingClient's complete
// response is cut into fixed-size rune windows. No delay is added either way.
package answer
