/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package provider turns generation requests into raw image bytes. The proxy
// server uploads whatever a provider returns to the CDN.
package provider

import (
	"context"
	"errors"
)

// Image is one provider output.
type Image struct {
	Data []byte
	MIME string
}

// Provider is implemented by every image backend.
type Provider interface {
	TextToImage(ctx context.Context, prompt string, n int) ([]Image, error)
	ImageToImage(ctx context.Context, prompt, sourceURL string) ([]Image, error)
	SketchToImage(ctx context.Context, prompt, sourceURL string) ([]Image, error)
	Upscale(ctx context.Context, sourceURL string) (Image, error)
}

// Fetcher loads source images by URL.
type Fetcher interface {
	FetchBytes(ctx context.Context, url string) ([]byte, error)
}

// ErrNoImage is returned when a backend answered without image data.
var ErrNoImage = errors.New("provider returned no image")

// ErrMissingAPIKey is returned when a hosted backend has no credentials.
var ErrMissingAPIKey = errors.New("missing generation api key")

// TextToImageOutputs is how many variations a text prompt produces.
const TextToImageOutputs = 4
