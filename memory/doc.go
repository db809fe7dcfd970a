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

// Package memory keeps a bounded buffer of recent conversation turns that is
// injected into prompts so follow-up questions can refer to earlier ones.
//
// The buffer is bounded by a character budget with a floor: after each Add the
// oldest turns are evicted while the total length exceeds the budget and more
// than MinRounds turns remain. Once only MinRounds turns are left the budget is
// soft and nothing more is evicted.
//
// A Manager has one logical writer, the answer generator, and any number of
// concurrent readers. Every read returns a copy taken under a read lock, so a
// reader never observes a partially applied Add or eviction.
package memory
