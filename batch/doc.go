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

// Package batch answers many questions concurrently and merges their event
// streams into one.
//
// Every event of a Run carries the 1-based QuestionIndex of the question it
// belongs to and the TotalQuestions of the batch. Within one question the
// events keep the order of answer.Generator. Across questions they are
// delivered in arrival order. A failing or cancelled question ends with its
// own Error event and never affects its siblings. After every question has
// finished, one last Complete event with QuestionIndex 0 reports how many
// questions succeeded and failed, and the channel is closed.
package batch
