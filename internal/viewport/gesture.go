/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package viewport

import (
	"math"
	"runtime"

	"infinitecanvas/internal/domain"
	"infinitecanvas/internal/vector"
)

// MaxZoomStep caps the per-tick wheel delta used for zooming.
const MaxZoomStep = 10

// IsDarwin selects the platform wheel convention; shift+wheel only maps to a
// horizontal pan off Apple platforms.
var IsDarwin = runtime.GOOS == "darwin" || runtime.GOOS == "ios"

// WheelEvent is a raw wheel tick with its modifier keys.
type WheelEvent struct {
	DeltaX, DeltaY float64
	Ctrl, Alt      bool
	Meta, Shift    bool
	// Pointer position inside the viewport.
	ClientX, ClientY float64
}

// Delta is a normalized gesture: pan by (X, Y), zoom by Z.
type Delta struct{ X, Y, Z float64 }

// NormalizeWheel converts a wheel tick into a gesture delta. Any of
// ctrl/alt/meta turns the vertical delta into a clamped zoom step.
func NormalizeWheel(ev WheelEvent, darwin bool) Delta {
	dx, dy, dz := ev.DeltaX, ev.DeltaY, 0.0
	if ev.Ctrl || ev.Alt || ev.Meta {
		dz = vector.Clamp(dy, -MaxZoomStep, MaxZoomStep) / 100
	} else if ev.Shift && !darwin {
		dx, dy = dy, 0
	}
	return Delta{X: -dx, Y: -dy, Z: -dz}
}

// Pan returns t translated by d.
func Pan(t domain.Transform, d Delta) domain.Transform {
	t.X += d.X
	t.Y += d.Y
	return t
}

// Zoom sensitivity interpolates linearly between these reference points.
const (
	refScaleLow, refScaleHigh = 0.1, 5.0
	refSensLow, refSensHigh   = 1.0, 3.0
	zoomGain                  = 1.3
	wheelZoomMax              = 4.0
)

// ZoomAt applies zoom step z anchored at the pointer (px, py) of a w×h
// viewport. ok is false when the scale would not change.
func ZoomAt(t domain.Transform, z, px, py, w, h float64) (domain.Transform, bool) {
	cur := t.Scale
	scaling := ((cur-refScaleLow)*(refSensHigh-refSensLow))/(refScaleHigh-refScaleLow) + refSensLow
	scaleBy := z * scaling
	next := math.Min(math.Min(math.Max(cur+scaleBy*zoomGain, domain.MinScale), wheelZoomMax), domain.MaxScale)
	if next == cur || w <= 0 || h <= 0 || cur == 0 {
		return t, false
	}
	fromLeft := px/w - 0.5
	fromTop := py/h - 0.5
	anchorX := -fromLeft * scaleBy * w / cur
	anchorY := -fromTop * scaleBy * h / cur
	dx := t.X*(next-cur)/cur + anchorX
	dy := t.Y*(next-cur)/cur + anchorY
	return domain.Transform{X: t.X + dx, Y: t.Y + dy, Scale: next}, true
}

// AnchorOffset is the pointer-dependent part of the zoom translation. It is
// zero when the pointer sits at the exact viewport center.
func AnchorOffset(z, cur, px, py, w, h float64) vector.Pt {
	scaling := ((cur-refScaleLow)*(refSensHigh-refSensLow))/(refScaleHigh-refScaleLow) + refSensLow
	scaleBy := z * scaling
	return vector.Pt{
		X: -(px/w - 0.5) * scaleBy * w / cur,
		Y: -(py/h - 0.5) * scaleBy * h / cur,
	}
}

// unfocus thresholds
const (
	moveThreshold   = 2
	zoomedOutScale  = 0.9
	recenterRadius  = 1000
	editorRefWidth  = 1500
	editorRefHeight = 1000
	editorRefScale  = 1.6
)

// ShouldUnfocus reports whether a gesture navigates away from a focused node:
// a real horizontal move, or any gesture while zoomed out.
func ShouldUnfocus(d Delta, workingScale float64) bool {
	moving := d.X != 0 && (math.Abs(d.X) > moveThreshold || math.Abs(d.Y) > moveThreshold)
	return moving || workingScale < zoomedOutScale
}

// EditorScale is the zoom used when focusing a node in a w×h viewport,
// rounded to one decimal.
func EditorScale(w, h float64) float64 {
	return vector.FloatRound(math.Min(h/editorRefHeight*editorRefScale, w/editorRefWidth*editorRefScale), 1)
}

// FrameNode returns the transform that puts the node at pos in view at scale s.
func FrameNode(pos vector.Pt, s float64) domain.Transform {
	half := float64(domain.NodeSize) / 2
	return domain.Transform{X: (-pos.X - half) * s, Y: (-pos.Y - half) * s, Scale: s}
}

// NeedsRecenter reports whether the view drifted far enough from the origin
// to offer a jump back.
func NeedsRecenter(t domain.Transform) bool { return t.Translation().Len() > recenterRadius }

// RecenterAngle is the direction (degrees) of the translation, used to point
// back towards the origin.
func RecenterAngle(t domain.Transform) float64 { return math.Atan2(t.Y, t.X) * 180 / math.Pi }
