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
	"fmt"
	"log/slog"
	"math"
	"strings"

	"infinitecanvas/internal/domain"
	"infinitecanvas/internal/generation"
	"infinitecanvas/internal/graph"
	"infinitecanvas/internal/vector"
	"infinitecanvas/internal/viewport"
)

// GenerateOptions tunes GenerateFromPrompt.
type GenerateOptions struct {
	// Navigate frames the new node once it is placed.
	Navigate bool
}

// Snap scales used when framing new nodes.
const (
	navigateMinScale = 1.1
	canvasMinScale   = 1.2
)

// upscale offsets from the source node
const (
	upscaleOffsetX  = 900
	upscaleJitterX  = 200
	upscaleJitterY  = 500
	upscaleJitterAt = 0.5
)

// GenerateFromPrompt adds a pending variations node and asks the generator
// for its images. The prompt "empty" adds a blank canvas instead.
func (w *Workspace) GenerateFromPrompt(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", ErrEmptyPrompt
	}
	if prompt == EmptyPrompt {
		return w.AddBlankCanvas()
	}
	if w.gen == nil {
		return "", ErrNoGenerator
	}
	w.mu.Lock()
	t := w.view.Persisted()
	pos := w.finder.FindEmptyArea(-t.X, -t.Y, w.graph.All())
	n := domain.Node{
		ID:       w.newID(),
		Kind:     domain.KindVariations,
		Prompt:   prompt,
		Children: []domain.ChildRef{},
		Position: pos,
	}
	if err := w.graph.Add(n); err != nil {
		w.mu.Unlock()
		return "", err
	}
	if opts.Navigate {
		w.view.Commit(viewport.Full(viewport.FrameNode(pos, math.Max(navigateMinScale, t.Scale))))
	}
	w.mu.Unlock()

	w.dispatch(ctx, n.ID, generation.RouteImagine, func(ctx context.Context) ([]string, error) {
		return w.gen.ImagineVariations(ctx, prompt)
	})
	return n.ID, nil
}

// source returns a ready node and the image at position. Upscaled nodes only
// carry slot 0. Callers hold w.mu.
func (w *Workspace) source(op, id string, position int) (domain.Node, int, string, error) {
	n, ok := w.graph.Get(id)
	if ok && n.Kind == domain.KindUpscaled {
		position = 0
	}
	url := n.URLAt(position)
	if !ok || !n.Ready() || url == "" {
		logger(op).Warn("source not ready", slog.String("node", id), slog.Int("position", position))
		return domain.Node{}, 0, "", fmt.Errorf("%s %s[%d]: %w", op, id, position, ErrSourceNotReady)
	}
	return n, position, url, nil
}

// GenerateFromImage derives a new image from slot position of sourceID. A
// blank canvas source goes through sketch-to-image.
func (w *Workspace) GenerateFromImage(ctx context.Context, sourceID string, position int, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", ErrEmptyPrompt
	}
	if w.gen == nil {
		return "", ErrNoGenerator
	}
	w.mu.Lock()
	src, position, url, err := w.source("generate_from_image", sourceID, position)
	if err != nil {
		w.mu.Unlock()
		return "", err
	}
	t := w.view.Persisted()
	n := domain.Node{
		ID:       w.newID(),
		Kind:     domain.KindUpscaled,
		Prompt:   prompt,
		Parent:   &domain.ParentRef{ID: sourceID, Position: position},
		Children: []domain.ChildRef{},
		Position: w.finder.FindEmptyArea(-t.X/t.Scale, -t.Y/t.Scale, w.graph.All()),
	}
	err = w.graph.Batch(func(tx *graph.Tx) error {
		if err := tx.Add(n); err != nil {
			return err
		}
		return tx.AppendChild(sourceID, domain.VariationsChild(n.ID))
	})
	w.mu.Unlock()
	if err != nil {
		return "", err
	}

	route, call := generation.RouteImageToImage, w.gen.ImageToImage
	if src.IsCanvas {
		route, call = generation.RouteSketchToImage, w.gen.SketchToImage
	}
	w.dispatch(ctx, n.ID, route, func(ctx context.Context) ([]string, error) {
		return call(ctx, prompt, url)
	})
	return n.ID, nil
}

// Upscale adds a pending high-resolution child for slot position of sourceID,
// placed to the right of the source.
func (w *Workspace) Upscale(ctx context.Context, sourceID string, position int) (string, error) {
	if w.gen == nil {
		return "", ErrNoGenerator
	}
	w.mu.Lock()
	src, position, url, err := w.source("upscale", sourceID, position)
	if err != nil {
		w.mu.Unlock()
		return "", err
	}
	dx := math.Floor((w.finder.Float64()-upscaleJitterAt)*upscaleJitterX + upscaleOffsetX)
	dy := math.Floor((w.finder.Float64() - upscaleJitterAt) * upscaleJitterY)
	n := domain.Node{
		ID:       w.newID(),
		Kind:     domain.KindUpscaled,
		Prompt:   src.Prompt,
		Parent:   &domain.ParentRef{ID: sourceID, Position: position},
		Children: []domain.ChildRef{},
		Position: src.Position.Add(vector.Pt{X: dx, Y: dy}),
	}
	err = w.graph.Batch(func(tx *graph.Tx) error {
		if err := tx.Add(n); err != nil {
			return err
		}
		return tx.AppendChild(sourceID, domain.UpscaledChild(n.ID, position))
	})
	w.mu.Unlock()
	if err != nil {
		return "", err
	}

	w.dispatch(ctx, n.ID, generation.RouteUpscale, func(ctx context.Context) ([]string, error) {
		u, err := w.gen.Upscale(ctx, url)
		if err != nil {
			return nil, err
		}
		return []string{u}, nil
	})
	return n.ID, nil
}

// AddBlankCanvas adds a finished white canvas and snaps the view to it.
func (w *Workspace) AddBlankCanvas() (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	t := w.view.Persisted()
	pos := w.finder.FindEmptyArea(-t.X/t.Scale, -t.Y/t.Scale, w.graph.All())
	n := domain.Node{
		ID:       w.newID(),
		Kind:     domain.KindUpscaled,
		URLs:     []string{BlankCanvasURL},
		Prompt:   BlankCanvasPrompt,
		Progress: 100,
		IsCanvas: true,
		Children: []domain.ChildRef{},
		Position: pos,
	}
	if err := w.graph.Add(n); err != nil {
		return "", err
	}
	w.view.Commit(viewport.Full(viewport.FrameNode(pos, math.Max(canvasMinScale, t.Scale))))
	return n.ID, nil
}

// PromoteRegion copies slot position of sourceID into its own finished node,
// linked as the upscaled child for that slot.
func (w *Workspace) PromoteRegion(sourceID string, position int) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.promoteLocked(sourceID, position)
}

func (w *Workspace) promoteLocked(sourceID string, position int) (string, error) {
	src, position, url, err := w.source("promote", sourceID, position)
	if err != nil {
		return "", err
	}
	t := w.view.Persisted()
	n := domain.Node{
		ID:       w.newID(),
		Kind:     domain.KindUpscaled,
		URLs:     []string{url},
		Prompt:   src.Prompt,
		Progress: 100,
		Parent:   &domain.ParentRef{ID: sourceID, Position: position},
		Children: []domain.ChildRef{},
		Position: w.finder.FindEmptyArea(-t.X/t.Scale, -t.Y/t.Scale, w.graph.All()),
	}
	err = w.graph.Batch(func(tx *graph.Tx) error {
		if err := tx.Add(n); err != nil {
			return err
		}
		return tx.AppendChild(sourceID, domain.UpscaledChild(n.ID, position))
	})
	if err != nil {
		return "", err
	}
	return n.ID, nil
}

// SaveEditedImage uploads the edited pixels of an upscaled node and points
// the node at the stored copy.
func (w *Workspace) SaveEditedImage(ctx context.Context, id string, data []byte, mime string) (string, error) {
	if w.uploader == nil {
		return "", ErrNoUploader
	}
	n, ok := w.graph.Get(id)
	if !ok {
		return "", fmt.Errorf("save %s: %w", id, graph.ErrNotFound)
	}
	if n.Kind != domain.KindUpscaled {
		return "", fmt.Errorf("save %s: %w", id, ErrNotEditable)
	}
	url, err := w.uploader.Upload(ctx, data, mime)
	if err != nil {
		logger("save_edited").Error("upload failed", slog.String("node", id), slog.Any("err", err))
		return "", err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.graph.SetURLs(id, []string{url}); err != nil {
		return "", err
	}
	w.event("image_edited", nil)
	return url, nil
}
