/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

// This file defines the core data model of the canvas workspace: generated
// image nodes and their parent/child links, the viewport transform, history
// entries and the workspace tools. Everything serializes to the JSON layout
// persisted under the "generatedImages" key.

import (
	"errors"
	"fmt"

	"infinitecanvas/internal/vector"
)

// NodeSize is the logical footprint of every node on the canvas.
const NodeSize = 400

// Kind discriminates the two node variants sharing one flat store.
type Kind string

const (
	// KindVariations is a batch of sibling images produced from a text prompt.
	KindVariations Kind = "variations"
	// KindUpscaled holds exactly one image derived from a single source.
	KindUpscaled Kind = "upscaled"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindVariations, KindUpscaled:
		return true
	default:
		return false
	}
}

// ParentRef is a weak back-reference to the node (and image slot) a node was derived from.
type ParentRef struct {
	ID       string `json:"id"`
	Position int    `json:"position"`
}

// ChildRef links a parent to a derived node. Position is set for upscaled children
// and names the parent's image slot the child was produced from.
type ChildRef struct {
	ID       string `json:"id"`
	Kind     Kind   `json:"type"`
	Position *int   `json:"position,omitempty"`
}

// UpscaledChild builds an upscaled child reference keyed by position.
func UpscaledChild(id string, position int) ChildRef {
	p := position
	return ChildRef{ID: id, Kind: KindUpscaled, Position: &p}
}

// VariationsChild builds a variations child reference.
func VariationsChild(id string) ChildRef { return ChildRef{ID: id, Kind: KindVariations} }

// Node is one generated image entity. URLs is nil while generation is pending.
type Node struct {
	ID       string     `json:"id"`
	Kind     Kind       `json:"type"`
	URLs     []string   `json:"url"`
	Prompt   string     `json:"prompt"`
	Progress int        `json:"percentageDone"`
	IsCanvas bool       `json:"isCanvas,omitempty"`
	Parent   *ParentRef `json:"parent"`
	Children []ChildRef `json:"children"`
	Position vector.Pt  `json:"transform"`
}

// Ready is the canonical "generation finished" test.
func (n Node) Ready() bool { return n.URLs != nil }

// URLAt returns the image at position, or "" when pending or out of range.
func (n Node) URLAt(position int) string {
	if position < 0 || position >= len(n.URLs) {
		return ""
	}
	return n.URLs[position]
}

// Bounds returns the node footprint in canvas coordinates.
func (n Node) Bounds() vector.Rect { return vector.Square(n.Position, NodeSize) }

var (
	ErrMissingID       = errors.New("node id is required")
	ErrUnknownKind     = errors.New("unknown node kind")
	ErrCanvasVariation = errors.New("variations node cannot be a canvas")
	ErrTooManyURLs     = errors.New("upscaled node holds at most one url")
)

// Validate checks the per-kind rules.
func (n Node) Validate() error {
	if n.ID == "" {
		return ErrMissingID
	}
	switch n.Kind {
	case KindVariations:
		if n.IsCanvas {
			return fmt.Errorf("%s: %w", n.ID, ErrCanvasVariation)
		}
	case KindUpscaled:
		if len(n.URLs) > 1 {
			return fmt.Errorf("%s: %w", n.ID, ErrTooManyURLs)
		}
	default:
		return fmt.Errorf("%s: %w %q", n.ID, ErrUnknownKind, string(n.Kind))
	}
	return nil
}

// Clone returns a deep copy so callers can hand nodes out without sharing slices.
func (n Node) Clone() Node {
	c := n
	if n.URLs != nil {
		c.URLs = append([]string{}, n.URLs...)
	}
	if n.Parent != nil {
		p := *n.Parent
		c.Parent = &p
	}
	if n.Children != nil {
		c.Children = make([]ChildRef, len(n.Children))
		for i, ch := range n.Children {
			c.Children[i] = ch
			if ch.Position != nil {
				p := *ch.Position
				c.Children[i].Position = &p
			}
		}
	}
	return c
}

// Transform is the viewport translation and uniform scale.
type Transform struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Scale float64 `json:"scale"`
}

const (
	MinScale = 0.1
	MaxScale = 5
)

// InitialTransform is the viewport on a fresh workspace.
var InitialTransform = Transform{X: 0, Y: 0, Scale: 1}

// Clamped returns t with the scale limited to [MinScale, MaxScale].
func (t Transform) Clamped() Transform {
	t.Scale = vector.Clamp(t.Scale, MinScale, MaxScale)
	return t
}

// Translation returns the (x, y) part of the transform.
func (t Transform) Translation() vector.Pt { return vector.Pt{X: t.X, Y: t.Y} }

// Affine maps canvas coordinates to screen coordinates.
func (t Transform) Affine() vector.Affine2D {
	return vector.Translate(t.X, t.Y).Mul(vector.Scale(t.Scale, t.Scale))
}

// EntryKind discriminates history entries.
type EntryKind string

const (
	EntryFocusImage        EntryKind = "image-editor"
	EntryTransformViewport EntryKind = "workspace-transform"
)

// HistoryEntry is either a focused image or a viewport transform.
type HistoryEntry struct {
	Kind      EntryKind  `json:"type"`
	ImageID   string     `json:"imageId,omitempty"`
	Transform *Transform `json:"transform,omitempty"`
}

// FocusImage builds a focus history entry.
func FocusImage(id string) HistoryEntry { return HistoryEntry{Kind: EntryFocusImage, ImageID: id} }

// TransformViewport builds a transform history entry.
func TransformViewport(t Transform) HistoryEntry {
	return HistoryEntry{Kind: EntryTransformViewport, Transform: &t}
}

// IsFocus reports whether e focuses image id.
func (e HistoryEntry) IsFocus(id string) bool { return e.Kind == EntryFocusImage && e.ImageID == id }

// Tool is the current workspace tool.
type Tool string

const (
	ToolSelect Tool = "select-tool"
	ToolGrab   Tool = "grab-tool"
	ToolDelete Tool = "delete-tool"
)

// ParseTool accepts the short or long tool names.
func ParseTool(s string) (Tool, error) {
	switch s {
	case "select", string(ToolSelect):
		return ToolSelect, nil
	case "grab", string(ToolGrab):
		return ToolGrab, nil
	case "delete", string(ToolDelete):
		return ToolDelete, nil
	default:
		return "", fmt.Errorf("unknown tool %q", s)
	}
}
