/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package workspace

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infinitecanvas/internal/domain"
	"infinitecanvas/internal/generation"
	"infinitecanvas/internal/graph"
	"infinitecanvas/internal/placement"
	"infinitecanvas/internal/selection"
	"infinitecanvas/internal/storage"
	"infinitecanvas/internal/viewport"
)

// fakeGen answers every route with deterministic urls. When gate is set,
// calls block until it is closed.
type fakeGen struct {
	mu    sync.Mutex
	calls []string
	gate  chan struct{}
	err   error
	n     int
}

func (f *fakeGen) record(route string) ([]string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, route)
	f.n++
	n, gate, err := f.n, f.gate, f.err
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	out := make([]string, 4)
	for i := range out {
		out[i] = fmt.Sprintf("https://cdn.test/%d-%d/", n, i)
	}
	return out, nil
}

func (f *fakeGen) ImagineVariations(_ context.Context, _ string) ([]string, error) {
	return f.record(generation.RouteImagine)
}

func (f *fakeGen) ImageToImage(_ context.Context, _, _ string) ([]string, error) {
	urls, err := f.record(generation.RouteImageToImage)
	if err != nil {
		return nil, err
	}
	return urls[:1], nil
}

func (f *fakeGen) SketchToImage(_ context.Context, _, _ string) ([]string, error) {
	urls, err := f.record(generation.RouteSketchToImage)
	if err != nil {
		return nil, err
	}
	return urls[:1], nil
}

func (f *fakeGen) Upscale(_ context.Context, _ string) (string, error) {
	urls, err := f.record(generation.RouteUpscale)
	if err != nil {
		return "", err
	}
	return urls[0], nil
}

func (f *fakeGen) routes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeUploader struct{ got []byte }

func (u *fakeUploader) Upload(_ context.Context, data []byte, _ string) (string, error) {
	u.got = data
	return "https://cdn.test/edited/", nil
}

func newTestWorkspace(t *testing.T, gen generation.Generator, store storage.KV) *Workspace {
	t.Helper()
	w := New(Options{
		Generator:        gen,
		Uploader:         &fakeUploader{},
		Store:            store,
		Finder:           placement.Seeded(7),
		ViewportThrottle: 5 * time.Millisecond,
		ViewportSettle:   5 * time.Millisecond,
		PersistThrottle:  5 * time.Millisecond,
	})
	require.NoError(t, w.Load(context.Background()))
	t.Cleanup(w.Close)
	return w
}

func mustNode(t *testing.T, w *Workspace, id string) domain.Node {
	t.Helper()
	n, ok := w.Node(id)
	require.True(t, ok, "node %s missing", id)
	return n
}

func TestGenerateFromPromptReconciles(t *testing.T) {
	gen := &fakeGen{}
	w := newTestWorkspace(t, gen, nil)
	ctx := context.Background()

	id, err := w.GenerateFromPrompt(ctx, "  a red fox  ", GenerateOptions{})
	require.NoError(t, err)
	n := mustNode(t, w, id)
	assert.Equal(t, domain.KindVariations, n.Kind)
	assert.Equal(t, "a red fox", n.Prompt)

	w.Wait()
	n = mustNode(t, w, id)
	assert.Len(t, n.URLs, 4)
	assert.Equal(t, 100, n.Progress)
	assert.Equal(t, RequestReady, w.Request(id))
	assert.Equal(t, []string{generation.RouteImagine}, gen.routes())
}

func TestGenerateFromPromptEdgeCases(t *testing.T) {
	w := newTestWorkspace(t, &fakeGen{}, nil)
	ctx := context.Background()

	_, err := w.GenerateFromPrompt(ctx, "   ", GenerateOptions{})
	require.ErrorIs(t, err, ErrEmptyPrompt)

	id, err := w.GenerateFromPrompt(ctx, EmptyPrompt, GenerateOptions{})
	require.NoError(t, err)
	n := mustNode(t, w, id)
	assert.True(t, n.IsCanvas)
	assert.Equal(t, []string{BlankCanvasURL}, n.URLs)
	assert.Equal(t, BlankCanvasPrompt, n.Prompt)
	// the canvas snap zooms in to at least 1.2
	assert.InDelta(t, 1.2, w.Transform().Scale, 1e-9)

	bare := New(Options{})
	defer bare.Close()
	_, err = bare.GenerateFromPrompt(ctx, "fox", GenerateOptions{})
	require.ErrorIs(t, err, ErrNoGenerator)
}

func TestGenerateNavigateFramesNode(t *testing.T) {
	w := newTestWorkspace(t, &fakeGen{}, nil)
	id, err := w.GenerateFromPrompt(context.Background(), "fox", GenerateOptions{Navigate: true})
	require.NoError(t, err)
	n := mustNode(t, w, id)
	want := viewport.FrameNode(n.Position, 1.1)
	assert.Equal(t, want, w.Transform())
	assert.True(t, w.Animating())
	w.Wait()
}

func TestFailedGenerationStaysPending(t *testing.T) {
	gen := &fakeGen{err: errors.New("upstream down")}
	w := newTestWorkspace(t, gen, nil)

	id, err := w.GenerateFromPrompt(context.Background(), "fox", GenerateOptions{})
	require.NoError(t, err)
	w.Wait()

	n := mustNode(t, w, id)
	assert.False(t, n.Ready())
	assert.Equal(t, 0, n.Progress)
	assert.Equal(t, RequestFailed, w.Request(id))
}

func TestLateResponseForDeletedNodeIsDropped(t *testing.T) {
	gen := &fakeGen{gate: make(chan struct{})}
	w := newTestWorkspace(t, gen, nil)

	id, err := w.GenerateFromPrompt(context.Background(), "fox", GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, RequestPending, w.Request(id))
	require.NoError(t, w.Delete(id))
	close(gen.gate)
	w.Wait()

	_, ok := w.Node(id)
	assert.False(t, ok)
	assert.Equal(t, 0, w.Len())
	assert.Equal(t, RequestFailed, w.Request(id))
}

func readyVariations(t *testing.T, w *Workspace) string {
	t.Helper()
	id, err := w.GenerateFromPrompt(context.Background(), "astronaut", GenerateOptions{})
	require.NoError(t, err)
	w.Wait()
	require.True(t, mustNode(t, w, id).Ready())
	return id
}

func TestUpscaleLinksChildByPosition(t *testing.T) {
	w := newTestWorkspace(t, &fakeGen{}, nil)
	src := readyVariations(t, w)

	id, err := w.Upscale(context.Background(), src, 2)
	require.NoError(t, err)
	child := mustNode(t, w, id)
	parent := mustNode(t, w, src)

	assert.Equal(t, domain.KindUpscaled, child.Kind)
	assert.Equal(t, parent.Prompt, child.Prompt)
	require.NotNil(t, child.Parent)
	assert.Equal(t, domain.ParentRef{ID: src, Position: 2}, *child.Parent)
	dx := child.Position.X - parent.Position.X
	dy := child.Position.Y - parent.Position.Y
	assert.True(t, dx >= 800 && dx <= 1000, "dx=%v", dx)
	assert.True(t, dy >= -250 && dy <= 250, "dy=%v", dy)

	require.Len(t, parent.Children, 1)
	assert.Equal(t, domain.UpscaledChild(id, 2), parent.Children[0])

	w.Wait()
	child = mustNode(t, w, id)
	assert.Len(t, child.URLs, 1)
	assert.Equal(t, 100, child.Progress)
}

func TestSourceMustBeReady(t *testing.T) {
	gen := &fakeGen{gate: make(chan struct{})}
	w := newTestWorkspace(t, gen, nil)
	ctx := context.Background()

	pending, err := w.GenerateFromPrompt(ctx, "fox", GenerateOptions{})
	require.NoError(t, err)

	_, err = w.Upscale(ctx, pending, 0)
	assert.ErrorIs(t, err, ErrSourceNotReady)
	_, err = w.GenerateFromImage(ctx, pending, 0, "fox at night")
	assert.ErrorIs(t, err, ErrSourceNotReady)
	_, err = w.PromoteRegion("missing", 0)
	assert.ErrorIs(t, err, ErrSourceNotReady)
	assert.Equal(t, 1, w.Len())

	close(gen.gate)
	w.Wait()
}

func TestGenerateFromImageRoutesCanvasToSketch(t *testing.T) {
	gen := &fakeGen{}
	w := newTestWorkspace(t, gen, nil)
	ctx := context.Background()

	src := readyVariations(t, w)
	img, err := w.GenerateFromImage(ctx, src, 1, "same, at night")
	require.NoError(t, err)
	canvas, err := w.AddBlankCanvas()
	require.NoError(t, err)
	sketch, err := w.GenerateFromImage(ctx, canvas, 3, "a castle")
	require.NoError(t, err)
	w.Wait()

	assert.ElementsMatch(t, []string{
		generation.RouteImagine,
		generation.RouteImageToImage,
		generation.RouteSketchToImage,
	}, gen.routes())

	n := mustNode(t, w, img)
	assert.Equal(t, &domain.ParentRef{ID: src, Position: 1}, n.Parent)
	assert.Contains(t, mustNode(t, w, src).Children, domain.VariationsChild(img))
	// upscaled sources only carry slot 0
	assert.Equal(t, 0, mustNode(t, w, sketch).Parent.Position)
	assert.Equal(t, 100, mustNode(t, w, sketch).Progress)
}

func TestPositionActions(t *testing.T) {
	gen := &fakeGen{}
	w := newTestWorkspace(t, gen, nil)
	src := readyVariations(t, w)

	assert.Equal(t, ActionNone, w.PositionAction(src, 9))
	assert.Equal(t, ActionUpscaleImage, w.PositionAction(src, 0))

	act, promoted, err := w.ApplyPositionAction(src, 0)
	require.NoError(t, err)
	assert.Equal(t, ActionUpscaleImage, act)
	p := mustNode(t, w, promoted)
	assert.Equal(t, mustNode(t, w, src).URLs[0], p.URLs[0])
	assert.Equal(t, ActionJumpToImage, w.PositionAction(src, 0))

	act, target, err := w.ApplyPositionAction(src, 0)
	require.NoError(t, err)
	assert.Equal(t, ActionJumpToImage, act)
	assert.Equal(t, promoted, target)
	assert.Equal(t, promoted, w.Selection().EditorID)

	gen.mu.Lock()
	gen.gate = make(chan struct{})
	gen.mu.Unlock()
	up, err := w.Upscale(context.Background(), src, 1)
	require.NoError(t, err)
	assert.Equal(t, ActionLoadingImage, w.PositionAction(src, 1))
	_, target, err = w.ApplyPositionAction(src, 1)
	require.NoError(t, err)
	assert.Equal(t, up, target)
	close(gen.gate)
	w.Wait()
	assert.Equal(t, ActionJumpToImage, w.PositionAction(src, 1))
}

func TestFocusHistoryAndDelete(t *testing.T) {
	w := newTestWorkspace(t, &fakeGen{}, nil)
	var ids []string
	for range 4 {
		ids = append(ids, readyVariations(t, w))
	}
	for _, id := range ids {
		require.NoError(t, w.SetEditingImage(id, false))
	}
	// refocusing the last image is coalesced
	require.NoError(t, w.SetEditingImage(ids[3], false))
	require.Len(t, w.History(), 4)
	assert.Equal(t, 3, w.HistoryCursor())

	require.True(t, w.NavigateHistory(-1))
	assert.Equal(t, ids[2], w.Selection().EditorID)
	assert.Equal(t, 2, w.HistoryCursor())
	n := mustNode(t, w, ids[2])
	scale := viewport.EditorScale(1500, 1000)
	assert.Equal(t, viewport.FrameNode(n.Position, scale), w.Transform())

	require.NoError(t, w.Delete(ids[2]))
	assert.Len(t, w.History(), 3)
	assert.Empty(t, w.Selection().EditorID)
	assert.Equal(t, 1, w.HistoryCursor())

	require.True(t, w.NavigateHistory(1))
	assert.Equal(t, ids[3], w.Selection().EditorID)

	require.NoError(t, w.SetEditingImage("", false))
	assert.Empty(t, w.Selection().EditorID)
	assert.Equal(t, ids[3], w.Selection().PrevEditorID)
	assert.Error(t, w.SetEditingImage("missing", false))
}

func TestDeleteKeepsChildren(t *testing.T) {
	w := newTestWorkspace(t, &fakeGen{}, nil)
	src := readyVariations(t, w)
	child, err := w.PromoteRegion(src, 2)
	require.NoError(t, err)

	_, _, err = w.ApplyPositionAction(src, 2)
	require.NoError(t, err)
	_, err = w.PressNode(src)
	require.NoError(t, err)
	got, err := w.DeleteActive()
	require.NoError(t, err)
	assert.Equal(t, src, got)

	c := mustNode(t, w, child)
	require.NotNil(t, c.Parent)
	assert.Equal(t, src, c.Parent.ID)
	assert.Equal(t, 1, w.Len())
	assert.ErrorIs(t, w.Delete(src), graph.ErrNotFound)

	got, err = w.DeleteActive()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPointerGesturesFollowTool(t *testing.T) {
	w := newTestWorkspace(t, &fakeGen{}, nil)
	id := readyVariations(t, w)
	before := mustNode(t, w, id).Position

	act, err := w.DragNode(id, 20, -10)
	require.NoError(t, err)
	assert.Equal(t, selection.MoveNode, act)
	after := mustNode(t, w, id).Position
	assert.InDelta(t, before.X+20, after.X, 1e-9)
	assert.InDelta(t, before.Y-10, after.Y, 1e-9)

	w.SetTool(domain.ToolGrab)
	t0 := w.Transform()
	act, err = w.DragNode(id, 30, 0)
	require.NoError(t, err)
	assert.Equal(t, selection.PanCanvas, act)
	assert.InDelta(t, t0.X+30, w.Transform().X, 1e-9)
	assert.Equal(t, after, mustNode(t, w, id).Position)

	w.SetTool(domain.ToolSelect)
	act, err = w.ClickNode(id, false)
	require.NoError(t, err)
	assert.Equal(t, selection.Focus, act)
	assert.Equal(t, id, w.Selection().EditorID)

	w.PointerDownCanvas()
	assert.Empty(t, w.Selection().EditorID)
	assert.Empty(t, w.Selection().ActiveID)

	w.SetTool(domain.ToolDelete)
	act, err = w.ClickNode(id, false)
	require.NoError(t, err)
	assert.Equal(t, selection.DeleteNode, act)
	assert.Equal(t, 0, w.Len())
}

func TestWheelPansAndZooms(t *testing.T) {
	w := newTestWorkspace(t, nil, nil)
	w.SetViewportSize(1000, 800)

	got := w.Wheel(viewport.WheelEvent{DeltaX: 10, DeltaY: 20})
	assert.Equal(t, domain.Transform{X: -10, Y: -20, Scale: 1}, got)

	got = w.Wheel(viewport.WheelEvent{DeltaY: -5, Ctrl: true, ClientX: 500, ClientY: 400})
	assert.Greater(t, got.Scale, 1.0)
	assert.Equal(t, got, w.Transform())
}

func TestWheelWhileFocused(t *testing.T) {
	w := newTestWorkspace(t, nil, nil)
	w.SetViewportSize(1500, 1000)
	id, err := w.AddBlankCanvas()
	require.NoError(t, err)
	require.NoError(t, w.SetEditingImage(id, false))
	t0 := w.Transform()
	require.Equal(t, 1.6, t0.Scale)

	// vertical scrolling pans and keeps the editor open
	got := w.Wheel(viewport.WheelEvent{DeltaY: 50})
	assert.Equal(t, domain.Transform{X: t0.X, Y: t0.Y - 50, Scale: t0.Scale}, got)
	assert.Equal(t, id, w.Selection().EditorID)

	// so does a horizontal jitter within the threshold
	got = w.Wheel(viewport.WheelEvent{DeltaX: 1})
	assert.InDelta(t, t0.X-1, got.X, 1e-9)
	assert.Equal(t, id, w.Selection().EditorID)

	// a real horizontal move pans and closes the editor
	got = w.Wheel(viewport.WheelEvent{DeltaX: 5})
	assert.InDelta(t, t0.X-6, got.X, 1e-9)
	assert.Empty(t, w.Selection().EditorID)
	assert.Empty(t, w.Selection().ActiveID)

	// zooming applies while focused and closes the editor once below 0.9
	require.NoError(t, w.SetEditingImage(id, true))
	prev := w.Transform().Scale
	for i := 0; i < 50 && w.Transform().Scale >= 0.9; i++ {
		got = w.Wheel(viewport.WheelEvent{DeltaY: 10, Ctrl: true, ClientX: 750, ClientY: 500})
		require.Less(t, got.Scale, prev)
		prev = got.Scale
		if got.Scale >= 0.9 {
			assert.Equal(t, id, w.Selection().EditorID)
		}
	}
	assert.Less(t, w.Transform().Scale, 0.9)
	assert.Empty(t, w.Selection().EditorID)
	assert.Empty(t, w.Selection().ActiveID)
}

func TestBookmarkAndGoToCenter(t *testing.T) {
	w := newTestWorkspace(t, nil, nil)
	w.DragCanvas(2000, 0)
	w.BookmarkView()
	require.Len(t, w.History(), 1)
	assert.Equal(t, domain.EntryTransformViewport, w.History()[0].Kind)

	assert.True(t, w.GoToCenter())
	assert.Equal(t, 0.0, w.Transform().X)
	assert.False(t, w.GoToCenter())

	require.True(t, w.NavigateHistory(0))
	assert.Equal(t, 2000.0, w.Transform().X)
}

func TestSaveEditedImage(t *testing.T) {
	up := &fakeUploader{}
	w := New(Options{Uploader: up})
	defer w.Close()
	id, err := w.AddBlankCanvas()
	require.NoError(t, err)

	url, err := w.SaveEditedImage(context.Background(), id, []byte("png"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, []string{url}, mustNode(t, w, id).URLs)
	assert.Equal(t, []byte("png"), up.got)

	_, err = w.SaveEditedImage(context.Background(), "missing", nil, "image/png")
	assert.ErrorIs(t, err, graph.ErrNotFound)
}

func TestOptimizedURL(t *testing.T) {
	w := New(Options{})
	defer w.Close()
	assert.Equal(t, "https://ucarecdn.com/x/-/format/auto/", w.OptimizedURL("https://ucarecdn.com/x/"))
}
