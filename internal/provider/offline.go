/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package provider

import (
	"bytes"
	"context"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// OfflineSide is the edge length of images rendered by Offline.
const OfflineSide = 256

// Offline renders deterministic placeholder images locally. It lets the proxy
// run without credentials (development, demos, tests).
type Offline struct {
	Fetcher Fetcher
}

func (o Offline) TextToImage(_ context.Context, prompt string, n int) ([]Image, error) {
	if n <= 0 {
		n = TextToImageOutputs
	}
	out := make([]Image, 0, n)
	for i := 0; i < n; i++ {
		b, err := render(prompt, i, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, Image{Data: b, MIME: "image/png"})
	}
	return out, nil
}

func (o Offline) ImageToImage(ctx context.Context, prompt, sourceURL string) ([]Image, error) {
	return o.derive(ctx, prompt, sourceURL, 1)
}

func (o Offline) SketchToImage(ctx context.Context, prompt, sourceURL string) ([]Image, error) {
	return o.derive(ctx, prompt, sourceURL, 2)
}

func (o Offline) Upscale(ctx context.Context, sourceURL string) (Image, error) {
	src, err := o.source(ctx, sourceURL)
	if err != nil {
		return Image{}, err
	}
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx()*2, b.Dy()*2))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return Image{}, err
	}
	return Image{Data: buf.Bytes(), MIME: "image/png"}, nil
}

func (o Offline) derive(ctx context.Context, prompt, sourceURL string, variant int) ([]Image, error) {
	src, err := o.source(ctx, sourceURL)
	if err != nil {
		return nil, err
	}
	b, err := render(prompt, variant, src)
	if err != nil {
		return nil, err
	}
	return []Image{{Data: b, MIME: "image/png"}}, nil
}

func (o Offline) source(ctx context.Context, url string) (image.Image, error) {
	if o.Fetcher == nil {
		return image.NewRGBA(image.Rect(0, 0, OfflineSide, OfflineSide)), nil
	}
	data, err := o.Fetcher.FetchBytes(ctx, url)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}

// render paints a prompt-seeded gradient, blends in src when present and
// writes the prompt in the top-left corner.
func render(prompt string, variant int, src image.Image) ([]byte, error) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(prompt))
	seed := h.Sum32() + uint32(variant)*0x9e3779b9
	base := color.RGBA{uint8(seed), uint8(seed >> 8), uint8(seed >> 16), 255}

	img := image.NewRGBA(image.Rect(0, 0, OfflineSide, OfflineSide))
	for y := 0; y < OfflineSide; y++ {
		for x := 0; x < OfflineSide; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: base.R ^ uint8(x),
				G: base.G ^ uint8(y),
				B: base.B ^ uint8(x+y),
				A: 255,
			})
		}
	}
	if src != nil {
		mask := image.NewUniform(color.Alpha{A: 160})
		draw.ApproxBiLinear.Scale(img, img.Bounds(), src, src.Bounds(), draw.Over, &draw.Options{SrcMask: mask})
	}
	d := &font.Drawer{
		Dst:  img,
		Src:  image.White,
		Face: basicfont.Face7x13,
		Dot:  fixed.P(6, 16),
	}
	label := prompt
	if len(label) > 34 {
		label = label[:34]
	}
	d.DrawString(label)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var _ Provider = Offline{}
