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

// Package storage defines the persistence contracts for the chunk index.
//
// A ChunkRepository holds two kinds of records: chunks (content, provenance
// and embedding vector) and source records (the fingerprint of the file the
// chunks were produced from). The synchronizer relies on ReplaceSource being
// atomic: a source record is only ever visible together with the chunks that
// were produced from exactly that fingerprint.
//
// Records are serialized as JSON. The BadgerDB implementation lives in
// storage/badger.
package storage
