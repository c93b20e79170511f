/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package selection

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"infinitecanvas/internal/domain"
)

func TestInterpretTable(t *testing.T) {
	ready := Target{Ready: true}
	cases := []struct {
		tool domain.Tool
		g    Gesture
		t    Target
		want Action
	}{
		{domain.ToolSelect, Press, ready, Activate},
		{domain.ToolSelect, Press, Target{Editing: true}, None},
		{domain.ToolSelect, Drag, ready, MoveNode},
		{domain.ToolSelect, Drag, Target{Editing: true}, None},
		{domain.ToolSelect, Click, ready, Focus},
		{domain.ToolSelect, Click, Target{}, Activate},
		{domain.ToolSelect, Click, Target{Ready: true, Dragged: true}, Activate},
		{domain.ToolGrab, Press, ready, None},
		{domain.ToolGrab, Drag, ready, PanCanvas},
		{domain.ToolGrab, Click, ready, None},
		{domain.ToolDelete, Press, ready, None},
		{domain.ToolDelete, Click, Target{}, DeleteNode},
		{domain.Tool("bogus"), Click, ready, None},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Interpret(tc.tool, tc.g, tc.t), "%s %d %+v", tc.tool, tc.g, tc.t)
	}
}

func TestToolSwitchKeepsSelection(t *testing.T) {
	m := New()
	assert.Equal(t, domain.ToolSelect, m.Tool())
	m.SetActive("a")
	m.SetEditor("a")
	m.SetTool(domain.ToolDelete)
	assert.Equal(t, "a", m.Active())
	assert.Equal(t, "a", m.Editor())
	m.SetEditor("b")
	assert.Equal(t, "a", m.PrevEditor())
}

func TestForgetAndVisibility(t *testing.T) {
	m := New()
	m.SetActive("x")
	m.SetEditor("x")
	m.Show("x")
	m.Show("y")
	m.Forget("x")
	s := m.Snapshot()
	assert.Empty(t, s.ActiveID)
	assert.Empty(t, s.EditorID)
	assert.Equal(t, []string{"y"}, s.Visible)
	m.Hide("y")
	assert.False(t, m.Visible("y"))

	m.SetTool(domain.ToolGrab)
	m.Restore(State{ActiveID: "k", Visible: []string{"k"}, Tool: domain.ToolGrab})
	assert.Equal(t, domain.ToolSelect, m.Tool(), "tool is not restored")
	assert.True(t, m.Visible("k"))
}
