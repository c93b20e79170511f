/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package history

import (
	"sync"

	"infinitecanvas/internal/domain"
)

// Config controls depth caps.
type Config struct {
	// MaxEntries limits the number of entries kept (0 means unlimited);
	// the oldest entries are dropped first.
	MaxEntries int
}

// Manager is a browser-style navigation history: an ordered list of visited
// states with a cursor. Pushing after navigating back truncates the forward
// entries. Re-focusing the image that was focused last does not add an entry.
// It is safe for concurrent use.
type Manager struct {
	cfg     Config
	mu      sync.Mutex
	entries []domain.HistoryEntry
	cursor  int
}

func NewManager(cfg Config) *Manager {
	if cfg.MaxEntries < 0 {
		cfg.MaxEntries = 0
	}
	return &Manager{cfg: cfg, cursor: -1}
}

// Push records e. It reports false when e was coalesced into the last entry.
func (m *Manager) Push(e domain.HistoryEntry) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := len(m.entries); n > 0 && e.Kind == domain.EntryFocusImage && m.entries[n-1].IsFocus(e.ImageID) {
		return false
	}
	m.entries = append(m.entries[:m.cursor+1], e)
	m.cursor = len(m.entries) - 1
	m.enforceCapsLocked()
	return true
}

// Navigate moves the cursor by offset and returns the entry to replay.
// Going back while no image is focused keeps the cursor, so the current entry
// is replayed instead of skipped. ok is false when there is nothing to replay.
func (m *Manager) Navigate(offset int, editorFocused bool) (domain.HistoryEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) == 0 {
		return domain.HistoryEntry{}, false
	}
	idx := m.cursor
	if offset != -1 || editorFocused {
		idx = min(max(m.cursor+offset, 0), len(m.entries)-1)
	}
	if idx < 0 {
		return domain.HistoryEntry{}, false
	}
	m.cursor = idx
	return m.entries[idx], true
}

// RemoveImage drops every focus entry for id. The cursor keeps pointing at
// the same surviving entry, or the closest earlier one.
func (m *Manager) RemoveImage(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.entries[:0]
	cursor := m.cursor
	removed := 0
	for i, e := range m.entries {
		if e.IsFocus(id) {
			removed++
			if i <= m.cursor {
				cursor--
			}
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	if len(m.entries) == 0 {
		m.cursor = -1
	} else {
		m.cursor = min(max(cursor, 0), len(m.entries)-1)
	}
	return removed
}

// Entries returns a copy of the recorded entries.
func (m *Manager) Entries() []domain.HistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.HistoryEntry{}, m.entries...)
}

// Cursor returns the current index (-1 when empty).
func (m *Manager) Cursor() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Restore replaces the history, clamping an out-of-range cursor.
func (m *Manager) Restore(entries []domain.HistoryEntry, cursor int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append([]domain.HistoryEntry{}, entries...)
	switch {
	case len(m.entries) == 0:
		m.cursor = -1
	case cursor < 0:
		m.cursor = 0
	default:
		m.cursor = min(cursor, len(m.entries)-1)
	}
	m.enforceCapsLocked()
}

func (m *Manager) enforceCapsLocked() {
	if m.cfg.MaxEntries <= 0 || len(m.entries) <= m.cfg.MaxEntries {
		return
	}
	// drop the oldest extras
	toDrop := len(m.entries) - m.cfg.MaxEntries
	m.entries = append([]domain.HistoryEntry{}, m.entries[toDrop:]...)
	m.cursor = max(m.cursor-toDrop, 0)
}
