/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"infinitecanvas/internal/imgutil"
	applog "infinitecanvas/internal/log"
)

// models is the slice of *genai.Models the Gemini provider calls.
type models interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateImages(ctx context.Context, model, prompt string, config *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error)
	UpscaleImage(ctx context.Context, model string, image *genai.Image, upscaleFactor string, config *genai.UpscaleImageConfig) (*genai.UpscaleImageResponse, error)
}

// GeminiConfig selects backend and models.
type GeminiConfig struct {
	APIKey       string
	Vertex       bool
	Project      string
	Location     string
	TextModel    string
	ImageModel   string
	UpscaleModel string
}

// Gemini implements Provider with the Google Gen AI SDK.
type Gemini struct {
	cfg     GeminiConfig
	models  models
	fetcher Fetcher
}

// NewGemini creates the SDK client. The API key is required for the Gemini
// API backend; Vertex uses application default credentials.
func NewGemini(ctx context.Context, cfg GeminiConfig, fetcher Fetcher) (*Gemini, error) {
	cc := &genai.ClientConfig{Backend: genai.BackendGeminiAPI, APIKey: cfg.APIKey}
	if cfg.Vertex {
		cc = &genai.ClientConfig{Backend: genai.BackendVertexAI, Project: cfg.Project, Location: cfg.Location}
	} else if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newGemini(cfg, client.Models, fetcher), nil
}

func newGemini(cfg GeminiConfig, m models, fetcher Fetcher) *Gemini {
	if fetcher == nil {
		fetcher = imgutil.NewFetcher()
	}
	return &Gemini{cfg: cfg, models: m, fetcher: fetcher}
}

func (g *Gemini) logger(op string) *slog.Logger {
	return applog.WithOperation(applog.WithComponent("provider"), op)
}

func (g *Gemini) TextToImage(ctx context.Context, prompt string, n int) ([]Image, error) {
	if n <= 0 {
		n = TextToImageOutputs
	}
	resp, err := g.models.GenerateImages(ctx, g.cfg.TextModel, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: int32(n),
		OutputMIMEType: "image/png",
	})
	if err != nil {
		return nil, fmt.Errorf("generate images: %w", err)
	}
	var out []Image
	for _, gi := range resp.GeneratedImages {
		if gi == nil || gi.Image == nil || len(gi.Image.ImageBytes) == 0 {
			continue
		}
		out = append(out, toImage(gi.Image))
	}
	if len(out) == 0 {
		return nil, ErrNoImage
	}
	g.logger("text_to_image").Debug("generated", slog.Int("count", len(out)))
	return out, nil
}

func (g *Gemini) ImageToImage(ctx context.Context, prompt, sourceURL string) ([]Image, error) {
	return g.editImage(ctx, prompt, sourceURL)
}

// SketchToImage asks the model to render a finished picture from line art.
func (g *Gemini) SketchToImage(ctx context.Context, prompt, sourceURL string) ([]Image, error) {
	return g.editImage(ctx, "Turn this sketch into a detailed image: "+prompt, sourceURL)
}

func (g *Gemini) editImage(ctx context.Context, prompt, sourceURL string) ([]Image, error) {
	part, err := g.sourcePart(ctx, sourceURL)
	if err != nil {
		return nil, err
	}
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{{Text: prompt}, part}, genai.RoleUser),
	}
	resp, err := g.models.GenerateContent(ctx, g.cfg.ImageModel, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	img, err := parseContent(resp)
	if err != nil {
		return nil, err
	}
	return []Image{img}, nil
}

func (g *Gemini) Upscale(ctx context.Context, sourceURL string) (Image, error) {
	data, err := g.fetcher.FetchBytes(ctx, sourceURL)
	if err != nil {
		return Image{}, fmt.Errorf("fetch source: %w", err)
	}
	src := &genai.Image{ImageBytes: data, MIMEType: http.DetectContentType(data)}
	resp, err := g.models.UpscaleImage(ctx, g.cfg.UpscaleModel, src, "x2", &genai.UpscaleImageConfig{OutputMIMEType: "image/png"})
	if err != nil {
		return Image{}, fmt.Errorf("upscale image: %w", err)
	}
	for _, gi := range resp.GeneratedImages {
		if gi != nil && gi.Image != nil && len(gi.Image.ImageBytes) > 0 {
			return toImage(gi.Image), nil
		}
	}
	return Image{}, ErrNoImage
}

// sourcePart fetches the source, recompresses it as JPEG and wraps it as
// inline data.
func (g *Gemini) sourcePart(ctx context.Context, sourceURL string) (*genai.Part, error) {
	data, err := g.fetcher.FetchBytes(ctx, sourceURL)
	if err != nil {
		return nil, fmt.Errorf("fetch source: %w", err)
	}
	if compressed, cerr := imgutil.CompressToJPEG(data, imgutil.DefaultJPEGQuality); cerr == nil {
		data = compressed
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return nil, fmt.Errorf("source %s is %s, not an image", sourceURL, mime)
	}
	return &genai.Part{InlineData: &genai.Blob{MIMEType: mime, Data: data}}, nil
}

func parseContent(resp *genai.GenerateContentResponse) (Image, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return Image{}, ErrNoImage
	}
	cand := resp.Candidates[0]
	if cand.Content != nil {
		for _, p := range cand.Content.Parts {
			if p != nil && p.InlineData != nil && len(p.InlineData.Data) > 0 {
				return Image{Data: p.InlineData.Data, MIME: p.InlineData.MIMEType}, nil
			}
		}
	}
	if cand.FinishReason != genai.FinishReasonUnspecified && cand.FinishReason != genai.FinishReasonStop {
		return Image{}, fmt.Errorf("%w (finish reason %s)", ErrNoImage, cand.FinishReason)
	}
	return Image{}, ErrNoImage
}

func toImage(img *genai.Image) Image {
	mime := img.MIMEType
	if mime == "" {
		mime = http.DetectContentType(img.ImageBytes)
	}
	return Image{Data: img.ImageBytes, MIME: mime}
}

var _ Provider = (*Gemini)(nil)
