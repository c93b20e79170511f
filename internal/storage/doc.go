/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package storage implements durable workspace persistence.
// It provides a small versioned key-value store (KV) backed by an embedded
// SQLite database or by Postgres, transactional JSON snapshot files with a
// backup copy, and schema validation for the persisted workspace document.
// A version mismatch is the caller's signal to discard the stored value.
package storage
