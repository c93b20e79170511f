/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	applog "infinitecanvas/internal/log"
)

// Client is a minimal HTTP client for the generation proxy.
type Client struct {
	BaseURL string
	Token   string // bearer token for proxies with auth enabled
	// APIKey is forwarded as replicateToken so the proxy can use the caller's key.
	APIKey string
	client *http.Client
}

// NewClient creates a client. baseURL may include a trailing slash; it will be
// normalized. A zero timeout means requests only end with their context.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// WithHTTPClient swaps the transport (tests, custom proxies).
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.client = hc
	return c
}

func (c *Client) doJSON(ctx context.Context, path string, body, dest any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return c.do(ctx, path, "application/json", bytes.NewReader(buf), dest)
}

func (c *Client) do(ctx context.Context, path, contentType string, body io.Reader, dest any) error {
	l := applog.WithOperation(applog.WithComponent("generation"), "request").With(slog.String("route", path))
	u, err := url.Parse(c.BaseURL + path)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		l.Warn("request failed", slog.Any("err", err))
		return err
	}
	defer resp.Body.Close()
	l.Debug("response", slog.Int("status", resp.StatusCode), slog.Duration("took", time.Since(start)))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		se := &StatusError{Method: req.Method, Path: u.Path, Code: resp.StatusCode, Status: resp.Status}
		var er ErrorResponse
		if b, rerr := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); rerr == nil && json.Unmarshal(b, &er) == nil {
			se.Message = er.Error
		}
		return se
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

func (c *Client) variations(ctx context.Context, path string, body any) ([]string, error) {
	var out VariationsResponse
	if err := c.doJSON(ctx, path, body, &out); err != nil {
		return nil, err
	}
	if len(out.Variations) == 0 {
		return nil, fmt.Errorf("%s: empty variations", path)
	}
	return out.Variations, nil
}

func (c *Client) ImagineVariations(ctx context.Context, prompt string) ([]string, error) {
	return c.variations(ctx, RouteImagine, ImagineRequest{Prompt: prompt, ReplicateToken: c.APIKey})
}

func (c *Client) ImageToImage(ctx context.Context, prompt, url string) ([]string, error) {
	return c.variations(ctx, RouteImageToImage, ImageRequest{Prompt: prompt, URL: url, ReplicateToken: c.APIKey})
}

func (c *Client) SketchToImage(ctx context.Context, prompt, url string) ([]string, error) {
	return c.variations(ctx, RouteSketchToImage, ImageRequest{Prompt: prompt, URL: url, ReplicateToken: c.APIKey})
}

func (c *Client) Upscale(ctx context.Context, url string) (string, error) {
	var out UpscaleResponse
	if err := c.doJSON(ctx, RouteUpscale, UpscaleRequest{URL: url, ReplicateToken: c.APIKey}, &out); err != nil {
		return "", err
	}
	if out.Upscaled == "" {
		return "", errors.New("upscale: empty url")
	}
	return out.Upscaled, nil
}

// Upload posts data as the multipart "file" field.
func (c *Client) Upload(ctx context.Context, data []byte, mime string) (string, error) {
	if len(data) == 0 {
		return "", errors.New("upload: empty blob")
	}
	if mime == "" {
		mime = http.DetectContentType(data)
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image"`)
	h.Set("Content-Type", mime)
	part, err := mw.CreatePart(h)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}
	var out UploadResponse
	if err := c.do(ctx, RouteUpload, mw.FormDataContentType(), &buf, &out); err != nil {
		return "", err
	}
	if out.CDNURL == "" {
		return "", errors.New("upload: empty cdnUrl")
	}
	return out.CDNURL, nil
}

var (
	_ Generator = (*Client)(nil)
	_ Uploader  = (*Client)(nil)
)
