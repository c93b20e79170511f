/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package generation holds the client side of the image generation proxy:
// the Generator/Uploader contracts the workspace depends on and an HTTP
// implementation speaking the proxy's JSON routes.
package generation

import (
	"context"
	"fmt"
)

// Generator produces image URLs. Every call is a single attempt; callers
// decide what a failure means.
type Generator interface {
	// ImagineVariations turns a text prompt into variation URLs.
	ImagineVariations(ctx context.Context, prompt string) ([]string, error)
	// ImageToImage derives variation URLs from an existing image.
	ImageToImage(ctx context.Context, prompt, url string) ([]string, error)
	// SketchToImage derives variation URLs from a sketch.
	SketchToImage(ctx context.Context, prompt, url string) ([]string, error)
	// Upscale returns a single higher resolution URL.
	Upscale(ctx context.Context, url string) (string, error)
}

// Uploader stores an edited image blob and returns its CDN URL.
type Uploader interface {
	Upload(ctx context.Context, data []byte, mime string) (string, error)
}

// StatusError reports a non-2xx response from the proxy.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Status string
	// Message is the proxy's {"error": ...} text when present.
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server %s %s: %s: %s", e.Method, e.Path, e.Status, e.Message)
	}
	return fmt.Sprintf("server %s %s: %s", e.Method, e.Path, e.Status)
}

// Request/response bodies shared with internal/server.

type ImagineRequest struct {
	Prompt         string `json:"prompt"`
	ReplicateToken string `json:"replicateToken,omitempty"`
}

type ImageRequest struct {
	Prompt         string `json:"prompt"`
	URL            string `json:"url"`
	ReplicateToken string `json:"replicateToken,omitempty"`
}

type UpscaleRequest struct {
	URL            string `json:"url"`
	ReplicateToken string `json:"replicateToken,omitempty"`
}

type VariationsResponse struct {
	Variations []string `json:"variations"`
}

type UpscaleResponse struct {
	Upscaled string `json:"upscaled"`
}

type UploadResponse struct {
	CDNURL string `json:"cdnUrl"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// Route paths.
const (
	RouteImagine       = "/imagine-variations"
	RouteImageToImage  = "/image-to-image-variations"
	RouteSketchToImage = "/sketch-to-image-variations"
	RouteUpscale       = "/upscale"
	RouteUpload        = "/upload"
)
