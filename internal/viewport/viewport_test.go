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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infinitecanvas/internal/domain"
	"infinitecanvas/internal/vector"
)

func TestNormalizeWheel(t *testing.T) {
	// plain wheel pans, negated
	assert.Equal(t, Delta{X: -3, Y: 7}, NormalizeWheel(WheelEvent{DeltaX: 3, DeltaY: -7}, false))
	// modifier zooms with a clamped step
	d := NormalizeWheel(WheelEvent{DeltaY: -120, Ctrl: true}, false)
	assert.InDelta(t, 0.1, d.Z, 1e-12)
	d = NormalizeWheel(WheelEvent{DeltaY: 4, Meta: true}, true)
	assert.InDelta(t, -0.04, d.Z, 1e-12)
	// shift swaps axes off darwin only
	assert.Equal(t, Delta{X: -5}, NormalizeWheel(WheelEvent{DeltaX: 1, DeltaY: 5, Shift: true}, false))
	assert.Equal(t, Delta{X: -1, Y: -5}, NormalizeWheel(WheelEvent{DeltaX: 1, DeltaY: 5, Shift: true}, true))
}

func TestZoomAtCenterHasNoAnchorDelta(t *testing.T) {
	for _, z := range []float64{0.1, -0.05, 0.03} {
		off := AnchorOffset(z, 1.3, 750, 500, 1500, 1000)
		assert.Zero(t, off.X)
		assert.Zero(t, off.Y)
	}
	got, ok := ZoomAt(domain.Transform{Scale: 1}, 0.1, 750, 500, 1500, 1000)
	require.True(t, ok)
	assert.Zero(t, got.X)
	assert.Zero(t, got.Y)
	scaling := (0.9*2)/4.9 + 1
	assert.InDelta(t, 1+0.1*scaling*1.3, got.Scale, 1e-12)

	// with a translation only the proportional term remains
	got, _ = ZoomAt(domain.Transform{X: 100, Y: -50, Scale: 1}, 0.1, 750, 500, 1500, 1000)
	ratio := got.Scale - 1
	assert.InDelta(t, 100+100*ratio, got.X, 1e-9)
	assert.InDelta(t, -50-50*ratio, got.Y, 1e-9)
}

func TestZoomAtPointerAnchor(t *testing.T) {
	got, ok := ZoomAt(domain.Transform{Scale: 2}, -0.05, 0, 0, 1000, 800)
	require.True(t, ok)
	scaling := ((2-0.1)*2)/4.9 + 1
	scaleBy := -0.05 * scaling
	assert.InDelta(t, 2+scaleBy*1.3, got.Scale, 1e-12)
	assert.InDelta(t, 0.5*scaleBy*1000/2, got.X, 1e-9)
	assert.InDelta(t, 0.5*scaleBy*800/2, got.Y, 1e-9)
}

func TestZoomAtClampsAndNoops(t *testing.T) {
	got, ok := ZoomAt(domain.Transform{Scale: 3.9}, 1, 10, 10, 100, 100)
	require.True(t, ok)
	assert.Equal(t, 4.0, got.Scale, "wheel zoom stops at 4")
	_, ok = ZoomAt(domain.Transform{Scale: 4}, 1, 10, 10, 100, 100)
	assert.False(t, ok, "unchanged scale is a no-op")
	_, ok = ZoomAt(domain.Transform{Scale: 0.1}, -1, 10, 10, 100, 100)
	assert.False(t, ok)
}

func TestShouldUnfocus(t *testing.T) {
	assert.True(t, ShouldUnfocus(Delta{X: 3}, 1))
	assert.True(t, ShouldUnfocus(Delta{X: 1, Y: 5}, 1))
	assert.False(t, ShouldUnfocus(Delta{X: 0, Y: 50}, 1), "vertical-only scroll keeps focus")
	assert.False(t, ShouldUnfocus(Delta{X: 1, Y: 1}, 1))
	assert.True(t, ShouldUnfocus(Delta{}, 0.8))
}

func TestEditorScaleFrameAndRecenter(t *testing.T) {
	assert.Equal(t, 1.6, EditorScale(1500, 1000))
	assert.Equal(t, 0.8, EditorScale(750, 1000))
	assert.Equal(t, 1.1, EditorScale(1920, 700))
	f := FrameNode(vector.Pt{X: 100, Y: -300}, 2)
	assert.Equal(t, domain.Transform{X: -600, Y: 200, Scale: 2}, f)
	assert.False(t, NeedsRecenter(domain.Transform{X: 600, Y: 800}))
	assert.True(t, NeedsRecenter(domain.Transform{X: 600, Y: 801}))
	assert.InDelta(t, 90, RecenterAngle(domain.Transform{Y: 5}), 1e-9)
}

type persistLog struct {
	mu  sync.Mutex
	got []domain.Transform
}

func (p *persistLog) add(t domain.Transform) {
	p.mu.Lock()
	p.got = append(p.got, t)
	p.mu.Unlock()
}

func (p *persistLog) snapshot() []domain.Transform {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Transform{}, p.got...)
}

func TestCommitIsImmediateAndSettles(t *testing.T) {
	var pl persistLog
	c := New(domain.InitialTransform, Options{Settle: 30 * time.Millisecond, OnPersist: pl.add})
	defer c.Close()

	got := c.Commit(Full(domain.Transform{X: 10, Y: 20, Scale: 9}))
	assert.Equal(t, 5.0, got.Scale, "scale is clamped")
	assert.Equal(t, c.Working(), c.Persisted())
	assert.True(t, c.Animating())
	assert.Len(t, pl.snapshot(), 1)
	assert.Eventually(t, func() bool { return !c.Animating() }, time.Second, 5*time.Millisecond)

	c.Commit(XY(0, 0))
	assert.Equal(t, domain.Transform{Scale: 5}, c.Persisted(), "partial keeps the scale")
}

func TestGestureThrottlesPersistedCopy(t *testing.T) {
	var pl persistLog
	c := New(domain.InitialTransform, Options{Throttle: time.Hour, OnPersist: pl.add})
	defer c.Close()

	c.Gesture(XY(1, 1))
	assert.Equal(t, 1.0, c.Persisted().X, "leading edge persists")
	for i := 2; i <= 20; i++ {
		c.Gesture(XY(float64(i), float64(i)))
	}
	assert.Equal(t, 20.0, c.Working().X)
	assert.Equal(t, 1.0, c.Persisted().X, "persisted copy lags under throttle")
	assert.False(t, c.Animating())

	c.Flush()
	assert.Equal(t, c.Working(), c.Persisted())
	assert.Len(t, pl.snapshot(), 2)
}

func TestGestureTrailingEdgeFires(t *testing.T) {
	c := New(domain.InitialTransform, Options{Throttle: 20 * time.Millisecond})
	defer c.Close()
	c.Gesture(XY(1, 0))
	c.Gesture(XY(2, 0))
	assert.Eventually(t, func() bool { return c.Persisted().X == 2 }, time.Second, 5*time.Millisecond)
	assert.False(t, math.IsNaN(c.Persisted().Scale))
}
