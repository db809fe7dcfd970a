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

package core

import "errors"

// Error taxonomy shared by all packages. Callers classify failures with errors.Is.
var (
	// ErrTransientExternal marks a failed embedding, retrieval, rerank or generation call.
	// It is retried at most once and then degraded, never fatal.
	ErrTransientExternal = errors.New("transient external failure")

	// ErrCorpusIO marks a single unreadable source file.
	ErrCorpusIO = errors.New("corpus io failure")

	// ErrConfiguration marks missing or invalid configuration detected at startup.
	ErrConfiguration = errors.New("configuration failure")

	// ErrStateInconsistency marks an index entry whose source matches no configured descriptor.
	ErrStateInconsistency = errors.New("state inconsistency")
)

var (
	// ErrInvalidSource indicates a SourceDescriptor failed validation.
	ErrInvalidSource = errors.New("invalid source descriptor")

	// ErrInvalidTurn indicates a ConversationTurn failed validation.
	ErrInvalidTurn = errors.New("invalid conversation turn")

	// ErrEmptyContent indicates a required text field is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrPlanConsumed indicates a SyncPlan was applied twice.
	ErrPlanConsumed = errors.New("sync plan already applied")
)
