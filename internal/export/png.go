/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"strconv"

	"infinitecanvas/internal/domain"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// MapOptions controls the PNG canvas map.
//   - Width: maximum output width in pixels (default 1600)
//   - Padding: empty margin around the node bounds (default 40)
//   - Highlight: node id drawn with an accent border, usually the focused image
//   - Labels: draw the kind, short id and progress inside each box
type MapOptions struct {
	Width     int
	Padding   int
	Highlight string
	Labels    bool
}

var (
	backgroundColor = color.RGBA{245, 245, 245, 255}
	edgeColor       = color.RGBA{150, 150, 150, 255}
	borderColor     = color.RGBA{40, 40, 40, 255}
	accentColor     = color.RGBA{230, 80, 20, 255}
	pendingColor    = color.RGBA{215, 215, 215, 255}
	canvasColor     = color.RGBA{255, 255, 255, 255}
	variationsColor = color.RGBA{200, 220, 245, 255}
	upscaledColor   = color.RGBA{205, 235, 205, 255}
	labelColor      = color.RGBA{20, 20, 20, 255}
)

const (
	defaultMapWidth = 1600
	defaultPadding  = 40
	// boxes narrower than this carry no label
	minLabelWidth = 60
)

// mapping converts canvas units to pixels.
type mapping struct {
	minX, minY float64
	scale      float64
	pad        int
}

func (m mapping) px(x, y float64) (int, int) {
	return m.pad + int(math.Round((x-m.minX)*m.scale)), m.pad + int(math.Round((y-m.minY)*m.scale))
}

// RenderMap draws every node at its canvas position, scaled to fit the width.
// Parent/child links are drawn as lines between box centers. When f is not
// nil, ready nodes show their images (variations as a 2x2 grid).
func RenderMap(ctx context.Context, nodes []domain.Node, f Fetcher, opt MapOptions) (*image.RGBA, error) {
	if len(nodes) == 0 {
		return nil, ErrNoNodes
	}
	if opt.Width <= 0 {
		opt.Width = defaultMapWidth
	}
	if opt.Padding < 0 {
		opt.Padding = 0
	} else if opt.Padding == 0 {
		opt.Padding = defaultPadding
	}
	b := bounds(nodes)
	scale := math.Min(1, float64(opt.Width-2*opt.Padding)/b.W)
	if scale <= 0 {
		return nil, fmt.Errorf("map width %d too small for padding %d", opt.Width, opt.Padding)
	}
	m := mapping{minX: b.X, minY: b.Y, scale: scale, pad: opt.Padding}
	pixW := int(math.Round(b.W*scale)) + 2*opt.Padding
	pixH := int(math.Round(b.H*scale)) + 2*opt.Padding

	img := image.NewRGBA(image.Rect(0, 0, pixW, pixH))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: backgroundColor}, image.Point{}, draw.Src)

	byID := make(map[string]domain.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}
	const half = domain.NodeSize / 2
	for _, n := range nodes {
		for _, c := range n.Children {
			child, ok := byID[c.ID]
			if !ok {
				continue
			}
			x0, y0 := m.px(n.Position.X+half, n.Position.Y+half)
			x1, y1 := m.px(child.Position.X+half, child.Position.Y+half)
			line(img, x0, y0, x1, y1, edgeColor)
		}
	}

	side := int(math.Round(domain.NodeSize * scale))
	thumbs := thumbnails(ctx, f, nodes, max(1, side))
	for _, n := range nodes {
		x0, y0 := m.px(n.Position.X, n.Position.Y)
		r := image.Rect(x0, y0, x0+side, y0+side)
		drawNode(img, r, n, thumbs)
		if n.ID == opt.Highlight {
			for i := 0; i < 3; i++ {
				strokeRect(img, r.Min.X-i, r.Min.Y-i, r.Max.X-1+i, r.Max.Y-1+i, accentColor)
			}
		} else {
			strokeRect(img, r.Min.X, r.Min.Y, r.Max.X-1, r.Max.Y-1, borderColor)
		}
		if opt.Labels && side >= minLabelWidth {
			label(img, r, n)
		}
	}
	return img, nil
}

// WriteMapPNG renders the map and writes it to path.
func WriteMapPNG(ctx context.Context, path string, nodes []domain.Node, f Fetcher, opt MapOptions) error {
	img, err := RenderMap(ctx, nodes, f, opt)
	if err != nil {
		return err
	}
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create png: %w", err)
	}
	if err := png.Encode(out, img); err != nil {
		_ = out.Close()
		return fmt.Errorf("encode png: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close png: %w", err)
	}
	return nil
}

func drawNode(img *image.RGBA, r image.Rectangle, n domain.Node, thumbs map[string]image.Image) {
	fill := pendingColor
	switch {
	case !n.Ready() || n.Progress < 100:
	case n.IsCanvas:
		fill = canvasColor
	case n.Kind == domain.KindUpscaled:
		fill = upscaledColor
	default:
		fill = variationsColor
	}
	fillRect(img, r.Min.X, r.Min.Y, r.Max.X-1, r.Max.Y-1, fill)
	if !n.Ready() {
		return
	}
	cells := []image.Rectangle{r}
	if n.Kind == domain.KindVariations && len(n.URLs) > 1 {
		mid := r.Min.Add(image.Pt(r.Dx()/2, r.Dy()/2))
		cells = []image.Rectangle{
			image.Rect(r.Min.X, r.Min.Y, mid.X, mid.Y),
			image.Rect(mid.X, r.Min.Y, r.Max.X, mid.Y),
			image.Rect(r.Min.X, mid.Y, mid.X, r.Max.Y),
			image.Rect(mid.X, mid.Y, r.Max.X, r.Max.Y),
		}
	}
	for i, cell := range cells {
		src, ok := thumbs[n.URLAt(i)]
		if !ok || cell.Empty() {
			continue
		}
		xdraw.ApproxBiLinear.Scale(img, cell, src, src.Bounds(), draw.Src, nil)
	}
}

func label(img *image.RGBA, r image.Rectangle, n domain.Node) {
	text := kindLabel(n) + " " + shortID(n.ID)
	if n.Progress < 100 {
		text += " " + strconv.Itoa(n.Progress) + "%"
	}
	face := basicfont.Face7x13
	maxChars := (r.Dx() - 8) / face.Advance
	if maxChars <= 0 {
		return
	}
	if len(text) > maxChars {
		text = text[:maxChars]
	}
	// backing strip keeps the text readable over thumbnails
	fillRect(img, r.Min.X+1, r.Min.Y+1, r.Max.X-2, r.Min.Y+face.Height+4, canvasColor)
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(labelColor),
		Face: face,
		Dot:  fixed.P(r.Min.X+4, r.Min.Y+face.Ascent+3),
	}
	d.DrawString(text)
}

// strokeRect draws a 1px axis-aligned rectangle border inclusive of endpoints.
func strokeRect(img *image.RGBA, x0, y0, x1, y1 int, col color.RGBA) {
	for x := x0; x <= x1; x++ {
		img.SetRGBA(x, y0, col)
		img.SetRGBA(x, y1, col)
	}
	for y := y0; y <= y1; y++ {
		img.SetRGBA(x0, y, col)
		img.SetRGBA(x1, y, col)
	}
}

func fillRect(img *image.RGBA, x0, y0, x1, y1 int, col color.RGBA) {
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	if y1 < y0 {
		y0, y1 = y1, y0
	}
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			img.SetRGBA(x, y, col)
		}
	}
}

// line is Bresenham's algorithm; SetRGBA ignores points outside the image.
func line(img *image.RGBA, x0, y0, x1, y1 int, col color.RGBA) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		img.SetRGBA(x0, y0, col)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
