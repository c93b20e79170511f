/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package workspace

import (
	"fmt"
	"log/slog"

	"infinitecanvas/internal/domain"
	"infinitecanvas/internal/graph"
	"infinitecanvas/internal/selection"
	"infinitecanvas/internal/viewport"
)

// SetEditingImage focuses id ("" leaves the editor) and frames it. Unless
// keepHistory is set, the focus is recorded as a history entry.
func (w *Workspace) SetEditingImage(id string, keepHistory bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.setEditingLocked(id, keepHistory)
}

func (w *Workspace) setEditingLocked(id string, keepHistory bool) error {
	defer w.markDirty()
	w.sel.SetActive(id)
	if id == "" {
		w.sel.SetEditor("")
		return nil
	}
	n, ok := w.graph.Get(id)
	if !ok {
		logger("focus").Warn("unknown node", slog.String("node", id))
		return fmt.Errorf("focus %s: %w", id, graph.ErrNotFound)
	}
	w.sel.SetEditor(id)
	if !keepHistory {
		w.hist.Push(domain.FocusImage(id))
	}
	w.view.Commit(viewport.Full(viewport.FrameNode(n.Position, viewport.EditorScale(w.viewW, w.viewH))))
	return nil
}

// NavigateHistory moves through the history by offset and replays the entry
// it lands on. It reports false when there was nothing to replay.
func (w *Workspace) NavigateHistory(offset int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.hist.Navigate(offset, w.sel.Editor() != "")
	if !ok {
		return false
	}
	defer w.markDirty()
	switch e.Kind {
	case domain.EntryFocusImage:
		if !w.graph.Has(e.ImageID) {
			logger("history").Info("skipping deleted image", slog.String("node", e.ImageID))
			return true
		}
		_ = w.setEditingLocked(e.ImageID, true)
	case domain.EntryTransformViewport:
		if e.Transform != nil {
			w.sel.SetEditor("")
			w.view.Commit(viewport.Full(*e.Transform))
		}
	}
	return true
}

// BookmarkView records the current viewport as a history entry.
func (w *Workspace) BookmarkView() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.hist.Push(domain.TransformViewport(w.view.Working()))
	w.markDirty()
}

// Wheel applies a wheel tick: pan, or zoom anchored at the pointer with a
// modifier. A real horizontal move, or any tick that leaves the view zoomed
// out, also closes the editor.
func (w *Workspace) Wheel(ev viewport.WheelEvent) domain.Transform {
	w.mu.Lock()
	defer w.mu.Unlock()
	d := viewport.NormalizeWheel(ev, viewport.IsDarwin)
	t := w.view.Working()
	next := viewport.Pan(t, d)
	if d.Z != 0 {
		// ZoomAt hands back t when the scale is pinned
		next, _ = viewport.ZoomAt(t, d.Z, ev.ClientX, ev.ClientY, w.viewW, w.viewH)
	}
	if w.sel.Editor() != "" && viewport.ShouldUnfocus(d, min(t.Scale, next.Scale)) {
		_ = w.setEditingLocked("", true)
	}
	if next == t {
		return t
	}
	if d.Z != 0 {
		return w.view.Gesture(viewport.Full(next))
	}
	return w.view.Gesture(viewport.XY(next.X, next.Y))
}

// DragCanvas pans by a pointer delta in screen pixels.
func (w *Workspace) DragCanvas(dx, dy float64) domain.Transform {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dragCanvasLocked(dx, dy)
}

func (w *Workspace) dragCanvasLocked(dx, dy float64) domain.Transform {
	t := w.view.Working()
	return w.view.Gesture(viewport.XY(t.X+dx, t.Y+dy))
}

// PointerDownCanvas handles a press on empty canvas: focus and the active
// node are cleared.
func (w *Workspace) PointerDownCanvas() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sel.SetEditor("")
	w.sel.SetActive("")
	w.markDirty()
}

// PressNode handles a pointer press on node id.
func (w *Workspace) PressNode(id string) (selection.Action, error) {
	return w.pointer(id, selection.Press, 0, 0, false)
}

// DragNode handles a pointer drag of (dx, dy) screen pixels on node id.
func (w *Workspace) DragNode(id string, dx, dy float64) (selection.Action, error) {
	return w.pointer(id, selection.Drag, dx, dy, true)
}

// ClickNode handles a pointer release on node id. dragged tells whether the
// press moved before release.
func (w *Workspace) ClickNode(id string, dragged bool) (selection.Action, error) {
	return w.pointer(id, selection.Click, 0, 0, dragged)
}

func (w *Workspace) pointer(id string, g selection.Gesture, dx, dy float64, dragged bool) (selection.Action, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	n, ok := w.graph.Get(id)
	if !ok {
		return selection.None, fmt.Errorf("pointer %s: %w", id, graph.ErrNotFound)
	}
	act := selection.Interpret(w.sel.Tool(), g, selection.Target{
		Editing: w.sel.Editor() == id,
		Ready:   n.Ready(),
		Dragged: dragged,
	})
	var err error
	switch act {
	case selection.Activate:
		w.sel.SetActive(id)
		w.markDirty()
	case selection.Focus:
		err = w.setEditingLocked(id, false)
	case selection.MoveNode:
		s := w.view.Working().Scale
		err = w.graph.MoveNode(id, dx/s, dy/s)
	case selection.PanCanvas:
		w.dragCanvasLocked(dx, dy)
	case selection.DeleteNode:
		err = w.deleteLocked(id)
	}
	return act, err
}

// Delete removes one node. Children survive with a dangling parent reference
// and every history entry focusing the node is dropped.
func (w *Workspace) Delete(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.deleteLocked(id)
}

func (w *Workspace) deleteLocked(id string) error {
	if _, err := w.graph.Remove(id); err != nil {
		return err
	}
	w.sel.Forget(id)
	dropped := w.hist.RemoveImage(id)
	logger("delete").Info("node deleted", slog.String("node", id), slog.Int("history_dropped", dropped))
	w.event("node_deleted", nil)
	w.markDirty()
	return nil
}

// DeleteActive deletes the active node, if any, and returns its id.
func (w *Workspace) DeleteActive() (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.sel.Active()
	if id == "" {
		return "", nil
	}
	return id, w.deleteLocked(id)
}

// SetTool switches the pointer tool. The selection is untouched.
func (w *Workspace) SetTool(t domain.Tool) { w.sel.SetTool(t) }

// ShowInWorkspace marks id as visible in the workspace.
func (w *Workspace) ShowInWorkspace(id string) {
	w.sel.Show(id)
	w.markDirty()
}

// HideInWorkspace clears the visibility mark of id.
func (w *Workspace) HideInWorkspace(id string) {
	w.sel.Hide(id)
	w.markDirty()
}

// GoToCenter jumps back to the origin when the view drifted far away.
func (w *Workspace) GoToCenter() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !viewport.NeedsRecenter(w.view.Working()) {
		return false
	}
	w.view.Commit(viewport.XY(0, 0))
	return true
}

// RegionAction is what activating one image slot of a node does.
type RegionAction int

const (
	ActionNone RegionAction = iota
	// ActionJumpToImage focuses the finished upscaled child of the slot.
	ActionJumpToImage
	// ActionLoadingImage focuses the upscaled child that is still pending.
	ActionLoadingImage
	// ActionUpscaleImage promotes the slot into its own node.
	ActionUpscaleImage
)

func (a RegionAction) String() string {
	switch a {
	case ActionJumpToImage:
		return "jump-to-image"
	case ActionLoadingImage:
		return "loading-image"
	case ActionUpscaleImage:
		return "upscale-image"
	default:
		return "none"
	}
}

// PositionAction reports what activating slot position of id would do.
func (w *Workspace) PositionAction(id string, position int) RegionAction {
	w.mu.Lock()
	defer w.mu.Unlock()
	a, _ := w.positionActionLocked(id, position)
	return a
}

func (w *Workspace) positionActionLocked(id string, position int) (RegionAction, string) {
	n, ok := w.graph.Get(id)
	if !ok || n.URLAt(position) == "" {
		return ActionNone, ""
	}
	child, ok := w.graph.UpscaledChildren(id)[position]
	switch {
	case !ok:
		return ActionUpscaleImage, ""
	case child.Progress >= 100:
		return ActionJumpToImage, child.ID
	default:
		return ActionLoadingImage, child.ID
	}
}

// ApplyPositionAction performs the slot action and returns the node it
// focused or created.
func (w *Workspace) ApplyPositionAction(id string, position int) (RegionAction, string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	a, target := w.positionActionLocked(id, position)
	switch a {
	case ActionJumpToImage, ActionLoadingImage:
		return a, target, w.setEditingLocked(target, false)
	case ActionUpscaleImage:
		nid, err := w.promoteLocked(id, position)
		return a, nid, err
	default:
		return a, "", fmt.Errorf("slot %s[%d]: %w", id, position, ErrSourceNotReady)
	}
}
