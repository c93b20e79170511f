/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package selection holds the active/editor node ids, the current tool and
// the pinned-visibility set, and decides what a pointer gesture on a node means.
package selection

import (
	"sort"
	"sync"

	"infinitecanvas/internal/domain"
)

// State is the persisted selection snapshot.
type State struct {
	ActiveID     string      `json:"activeImageId"`
	EditorID     string      `json:"editorId"`
	PrevEditorID string      `json:"prevEditorId"`
	Tool         domain.Tool `json:"-"`
	Visible      []string    `json:"workspaceImages"`
}

// Manager guards the selection state. Switching tools never touches the
// selection.
type Manager struct {
	mu      sync.Mutex
	active  string
	editor  string
	prev    string
	tool    domain.Tool
	visible map[string]bool
}

func New() *Manager { return &Manager{tool: domain.ToolSelect, visible: map[string]bool{}} }

func (m *Manager) Tool() domain.Tool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tool
}

func (m *Manager) SetTool(t domain.Tool) {
	m.mu.Lock()
	m.tool = t
	m.mu.Unlock()
}

func (m *Manager) Active() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

func (m *Manager) SetActive(id string) {
	m.mu.Lock()
	m.active = id
	m.mu.Unlock()
}

func (m *Manager) Editor() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.editor
}

// SetEditor focuses id ("" clears) and remembers the previous editor.
func (m *Manager) SetEditor(id string) {
	m.mu.Lock()
	m.prev = m.editor
	m.editor = id
	m.mu.Unlock()
}

func (m *Manager) PrevEditor() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prev
}

// Forget clears every reference to a deleted node.
func (m *Manager) Forget(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == id {
		m.active = ""
	}
	if m.editor == id {
		m.editor = ""
	}
	if m.prev == id {
		m.prev = ""
	}
	delete(m.visible, id)
}

func (m *Manager) Show(id string) {
	m.mu.Lock()
	m.visible[id] = true
	m.mu.Unlock()
}

func (m *Manager) Hide(id string) {
	m.mu.Lock()
	delete(m.visible, id)
	m.mu.Unlock()
}

func (m *Manager) Visible(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.visible[id]
}

// Snapshot returns the current state with a sorted visibility list.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	vis := make([]string, 0, len(m.visible))
	for id := range m.visible {
		vis = append(vis, id)
	}
	sort.Strings(vis)
	return State{ActiveID: m.active, EditorID: m.editor, PrevEditorID: m.prev, Tool: m.tool, Visible: vis}
}

// Restore loads a saved state. The tool is not persisted and resets to Select.
func (m *Manager) Restore(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active, m.editor, m.prev = s.ActiveID, s.EditorID, s.PrevEditorID
	m.tool = domain.ToolSelect
	m.visible = make(map[string]bool, len(s.Visible))
	for _, id := range s.Visible {
		m.visible[id] = true
	}
}

// Gesture is a pointer interaction on a node.
type Gesture int

const (
	Press Gesture = iota
	Drag
	Click
)

// Target describes the node under the pointer.
type Target struct {
	// Editing is true when the node is the focused editor node.
	Editing bool
	// Ready is true when the node's images are available.
	Ready bool
	// Dragged is true when the press turned into a drag before release.
	Dragged bool
}

// Action is what the workspace should do for a gesture.
type Action int

const (
	None Action = iota
	Activate
	Focus
	MoveNode
	PanCanvas
	DeleteNode
)

func (a Action) String() string {
	switch a {
	case Activate:
		return "activate"
	case Focus:
		return "focus"
	case MoveNode:
		return "move-node"
	case PanCanvas:
		return "pan-canvas"
	case DeleteNode:
		return "delete-node"
	default:
		return "none"
	}
}

// Interpret maps a gesture on a node to an action under tool.
//
//	Select: press activates, drag moves the node, click focuses a ready node.
//	Grab:   node gestures pan the canvas instead.
//	Delete: click removes the node.
//
// The focused editor node ignores presses and drags.
func Interpret(tool domain.Tool, g Gesture, t Target) Action {
	switch tool {
	case domain.ToolDelete:
		if g == Click {
			return DeleteNode
		}
		return None
	case domain.ToolGrab:
		if g == Drag {
			return PanCanvas
		}
		return None
	case domain.ToolSelect:
		switch g {
		case Press:
			if t.Editing {
				return None
			}
			return Activate
		case Drag:
			if t.Editing {
				return None
			}
			return MoveNode
		case Click:
			if !t.Ready || t.Editing || t.Dragged {
				return Activate
			}
			return Focus
		}
	}
	return None
}
