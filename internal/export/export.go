/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package export renders the canvas graph into shareable artifacts: a PNG map
// of the node layout and a PDF contact sheet. JSON snapshots are written by the
// workspace itself.
package export

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"infinitecanvas/internal/domain"
	"infinitecanvas/internal/imgutil"
	applog "infinitecanvas/internal/log"
	"infinitecanvas/internal/vector"

	"golang.org/x/sync/errgroup"
)

// Format names an export target.
type Format string

const (
	FormatPNG  Format = "png"
	FormatPDF  Format = "pdf"
	FormatJSON Format = "json"
)

// ErrNoNodes is returned when there is nothing to render.
var ErrNoNodes = errors.New("export: canvas has no nodes")

// ParseFormat accepts a format name, case-insensitive.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatPNG, FormatPDF, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown export format %q (want png, pdf or json)", s)
	}
}

// Fetcher loads image bytes. *imgutil.Fetcher satisfies it.
type Fetcher interface {
	FetchBytes(ctx context.Context, url string) ([]byte, error)
}

const fetchConcurrency = 4

// thumbnails fetches and decodes every URL of the given nodes, shrunk to
// maxSide. Failed downloads are logged and left out; a nil fetcher yields an
// empty map.
func thumbnails(ctx context.Context, f Fetcher, nodes []domain.Node, maxSide int) map[string]image.Image {
	out := map[string]image.Image{}
	if f == nil {
		return out
	}
	seen := map[string]bool{}
	var urls []string
	for _, n := range nodes {
		for _, u := range n.URLs {
			if u != "" && !seen[u] {
				seen[u] = true
				urls = append(urls, u)
			}
		}
	}
	l := applog.WithOperation(applog.WithComponent("export"), "thumbnails")
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for _, u := range urls {
		g.Go(func() error {
			data, err := f.FetchBytes(gctx, u)
			if err != nil {
				l.Warn("fetch failed", slog.String("url", u), slog.Any("err", err))
				return nil
			}
			img, _, err := imgutil.Decode(data)
			if err != nil {
				l.Warn("decode failed", slog.String("url", u), slog.Any("err", err))
				return nil
			}
			img = imgutil.Fit(img, maxSide)
			mu.Lock()
			out[u] = img
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// bounds is the union of all node boxes in canvas units.
func bounds(nodes []domain.Node) vector.Rect {
	r := nodes[0].Bounds()
	for _, n := range nodes[1:] {
		r = r.Union(n.Bounds())
	}
	return r
}

type entry struct {
	node  domain.Node
	depth int
}

// treeOrder lists nodes depth first: roots sorted by position, then each
// node's children in link order. Nodes unreachable from a root (cycles are
// rejected by the graph, but a parent may have been deleted) count as roots.
func treeOrder(nodes []domain.Node) []entry {
	byID := make(map[string]domain.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}
	var roots []domain.Node
	for _, n := range nodes {
		if n.Parent == nil {
			roots = append(roots, n)
			continue
		}
		if _, ok := byID[n.Parent.ID]; !ok {
			roots = append(roots, n)
		}
	}
	sort.SliceStable(roots, func(i, j int) bool {
		a, b := roots[i].Position, roots[j].Position
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})
	out := make([]entry, 0, len(nodes))
	visited := map[string]bool{}
	var walk func(n domain.Node, depth int)
	walk = func(n domain.Node, depth int) {
		if visited[n.ID] {
			return
		}
		visited[n.ID] = true
		out = append(out, entry{node: n, depth: depth})
		for _, c := range n.Children {
			if child, ok := byID[c.ID]; ok {
				walk(child, depth+1)
			}
		}
	}
	for _, r := range roots {
		walk(r, 0)
	}
	return out
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func kindLabel(n domain.Node) string {
	switch {
	case n.IsCanvas:
		return "canvas"
	case n.Kind == domain.KindUpscaled:
		return "upscaled"
	default:
		return "variations"
	}
}
