/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package imgutil holds the image plumbing shared by the proxy and the
// exporters: JPEG compression, thumbnails, SSRF-guarded fetching and the
// optimized-URL cache.
package imgutil

import (
	"bytes"
	"errors"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
)

// DefaultJPEGQuality is used when sending source images to providers.
const DefaultJPEGQuality = 75

// CompressToJPEG re-encodes any decodable image (PNG, GIF, JPEG) as JPEG.
func CompressToJPEG(data []byte, quality int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode wraps image.Decode for callers that only hold bytes.
func Decode(data []byte) (image.Image, string, error) {
	return image.Decode(bytes.NewReader(data))
}

// Fit scales img so its longer side is at most maxSide, keeping the aspect
// ratio. Images already small enough are returned unchanged.
func Fit(img image.Image, maxSide int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxSide <= 0 || (w <= maxSide && h <= maxSide) {
		return img
	}
	nw, nh := maxSide, maxSide
	if w >= h {
		nh = max(1, h*maxSide/w)
	} else {
		nw = max(1, w*maxSide/h)
	}
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

// Thumbnail decodes data, fits it into maxSide and re-encodes it in the
// source format (PNG stays PNG, everything else becomes JPEG).
func Thumbnail(data []byte, maxSide int) ([]byte, string, error) {
	if len(data) == 0 {
		return nil, "", errors.New("thumbnail: empty image")
	}
	img, format, err := Decode(data)
	if err != nil {
		return nil, "", err
	}
	out := Fit(img, maxSide)
	buf := new(bytes.Buffer)
	if format == "png" {
		if err := png.Encode(buf, out); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "image/png", nil
	}
	if err := jpeg.Encode(buf, out, &jpeg.Options{Quality: DefaultJPEGQuality}); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), "image/jpeg", nil
}
