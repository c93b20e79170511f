/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"strings"

	"infinitecanvas/internal/domain"

	"github.com/jung-kurt/gofpdf"
)

// PDFOptions controls the contact sheet. Units are points (pt) on an A4 page
// with the origin at the top-left.
type PDFOptions struct {
	Title  string
	Author string
	// Compress toggles stream compression; tests turn it off to inspect text.
	Compress bool
}

const (
	pageW     = 595.28
	pageH     = 841.89
	margin    = 36.0
	rowH      = 108.0
	thumbSide = 96.0
	indent    = 14.0
	maxIndent = 6
)

// WriteContactSheet writes one row per node in tree order: a thumbnail (or a
// grey placeholder while the node is pending) followed by its kind, id,
// prompt, progress and parent link.
func WriteContactSheet(ctx context.Context, path string, nodes []domain.Node, f Fetcher, opt PDFOptions) error {
	if len(nodes) == 0 {
		return ErrNoNodes
	}
	title := opt.Title
	if title == "" {
		title = "Infinite Canvas"
	}
	pdf := gofpdf.NewCustom(&gofpdf.InitType{UnitStr: "pt", Size: gofpdf.SizeType{Wd: pageW, Ht: pageH}})
	pdf.SetCompression(opt.Compress)
	pdf.SetAutoPageBreak(false, 0)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(tr(title), false)
	if opt.Author != "" {
		pdf.SetAuthor(tr(opt.Author), false)
	}

	thumbs := thumbnails(ctx, f, nodes, int(thumbSide*2))
	registered := map[string]string{}
	imageName := func(url string) string {
		if name, ok := registered[url]; ok {
			return name
		}
		img, ok := thumbs[url]
		if !ok {
			return ""
		}
		data, err := encodeJPEG(img)
		if err != nil {
			return ""
		}
		name := fmt.Sprintf("img%d", len(registered))
		pdf.RegisterImageOptionsReader(name, gofpdf.ImageOptions{ImageType: "JPG"}, bytes.NewReader(data))
		registered[url] = name
		return name
	}

	y := pageH
	page := 0
	for _, e := range treeOrder(nodes) {
		if y+rowH > pageH-margin {
			pdf.AddPage()
			page++
			y = margin
			pdf.SetFont("Helvetica", "B", 16)
			pdf.Text(margin, y+12, tr(title))
			pdf.SetFont("Helvetica", "", 9)
			pdf.Text(pageW-margin-40, y+12, fmt.Sprintf("page %d", page))
			y += 28
		}
		x := margin + float64(min(e.depth, maxIndent))*indent
		row(pdf, tr, x, y, e.node, imageName)
		y += rowH
	}
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("build pdf: %w", err)
	}
	if err := pdf.OutputFileAndClose(path); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func row(pdf *gofpdf.Fpdf, tr func(string) string, x, y float64, n domain.Node, imageName func(string) string) {
	name := ""
	if n.Ready() {
		name = imageName(n.URLAt(0))
	}
	if name != "" {
		pdf.ImageOptions(name, x, y, thumbSide, thumbSide, false, gofpdf.ImageOptions{ImageType: "JPG"}, 0, "")
	} else {
		setFillColor(pdf, pendingColor)
		pdf.Rect(x, y, thumbSide, thumbSide, "F")
	}
	setDrawColor(pdf, borderColor)
	pdf.SetLineWidth(0.5)
	pdf.Rect(x, y, thumbSide, thumbSide, "D")

	tx := x + thumbSide + 10
	tw := pageW - margin - tx
	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetXY(tx, y)
	pdf.CellFormat(tw, 14, tr(kindLabel(n)+"  "+n.ID), "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 9)
	status := fmt.Sprintf("progress %d%%", n.Progress)
	if n.Ready() {
		status += fmt.Sprintf(", %d image(s)", len(n.URLs))
	}
	status += fmt.Sprintf(", at (%.0f, %.0f)", n.Position.X, n.Position.Y)
	if n.Parent != nil {
		status += fmt.Sprintf(", from %s #%d", shortID(n.Parent.ID), n.Parent.Position)
	}
	if len(n.Children) > 0 {
		status += fmt.Sprintf(", %d child(ren)", len(n.Children))
	}
	pdf.SetX(tx)
	pdf.CellFormat(tw, 12, tr(status), "", 1, "L", false, 0, "")

	prompt := strings.TrimSpace(n.Prompt)
	if prompt == "" {
		return
	}
	// wrapped prompt, clipped to what fits beside the thumbnail
	lines := pdf.SplitLines([]byte(tr(prompt)), tw)
	maxLines := int((thumbSide - 26) / 11)
	if len(lines) > maxLines {
		lines = lines[:maxLines]
	}
	for _, ln := range lines {
		pdf.SetX(tx)
		pdf.CellFormat(tw, 11, string(ln), "", 1, "L", false, 0, "")
	}
}

func encodeJPEG(img image.Image) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func setDrawColor(pdf *gofpdf.Fpdf, c color.RGBA) {
	pdf.SetDrawColor(int(c.R), int(c.G), int(c.B))
}

func setFillColor(pdf *gofpdf.Fpdf, c color.RGBA) {
	pdf.SetFillColor(int(c.R), int(c.G), int(c.B))
}
