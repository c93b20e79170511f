/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package upload stores generated and edited images on a CDN and returns
// their public URLs.
package upload

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
	"strings"
	"time"

	"infinitecanvas/internal/imgutil"
	applog "infinitecanvas/internal/log"
)

// Uploader is what the proxy server needs from a CDN.
type Uploader interface {
	UploadBytes(ctx context.Context, data []byte, mime string) (string, error)
	UploadURL(ctx context.Context, url string) (string, error)
}

// Fetcher downloads remote images for UploadURL.
type Fetcher interface {
	FetchBytes(ctx context.Context, url string) ([]byte, error)
}

// Uploadcare defaults.
const (
	DefaultUploadBase = "https://upload.uploadcare.com"
	DefaultCDNBase    = "https://ucarecdn.com"
	DefaultPublicKey  = "037a51a72cf85bf758c7"
)

// HTTPCDN uploads through an Uploadcare-style "base" endpoint.
type HTTPCDN struct {
	UploadBase string
	CDNBase    string
	PublicKey  string
	Client     *http.Client
	Fetcher    Fetcher
}

// NewHTTPCDN fills unset fields with the Uploadcare defaults.
func NewHTTPCDN(uploadBase, publicKey string) *HTTPCDN {
	if uploadBase == "" {
		uploadBase = DefaultUploadBase
	}
	if publicKey == "" {
		publicKey = DefaultPublicKey
	}
	return &HTTPCDN{
		UploadBase: strings.TrimRight(uploadBase, "/"),
		CDNBase:    DefaultCDNBase,
		PublicKey:  publicKey,
		Client:     &http.Client{Timeout: 60 * time.Second},
		Fetcher:    imgutil.NewFetcher(),
	}
}

type baseResponse struct {
	File string `json:"file"`
}

func (c *HTTPCDN) UploadBytes(ctx context.Context, data []byte, mime string) (string, error) {
	l := applog.WithOperation(applog.WithComponent("upload"), "cdn_upload")
	if len(data) == 0 {
		return "", errors.New("upload: empty body")
	}
	if mime == "" {
		mime = http.DetectContentType(data)
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("UPLOADCARE_PUB_KEY", c.PublicKey)
	_ = mw.WriteField("UPLOADCARE_STORE", "1")
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+fileName(mime)+`"`)
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
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.UploadBase+"/base/", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	start := time.Now()
	resp, err := c.Client.Do(req)
	if err != nil {
		l.Warn("upload failed", slog.Any("err", err))
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", fmt.Errorf("cdn upload: %s: %s", resp.Status, strings.TrimSpace(string(b)))
	}
	var out baseResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode cdn response: %w", err)
	}
	if out.File == "" {
		return "", errors.New("cdn upload: missing file id")
	}
	l.Debug("uploaded", slog.String("file", out.File), slog.Duration("took", time.Since(start)))
	return strings.TrimRight(c.CDNBase, "/") + "/" + out.File + "/", nil
}

// UploadURL copies a remote image (for example a provider output) to the CDN.
func (c *HTTPCDN) UploadURL(ctx context.Context, url string) (string, error) {
	return uploadURL(ctx, c.Fetcher, c, url)
}

func uploadURL(ctx context.Context, f Fetcher, u Uploader, url string) (string, error) {
	if f == nil {
		return "", errors.New("upload: no fetcher configured")
	}
	data, err := f.FetchBytes(ctx, url)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	return u.UploadBytes(ctx, data, "")
}

func fileName(mime string) string {
	switch mime {
	case "image/png":
		return "image.png"
	case "image/jpeg":
		return "image.jpg"
	case "image/webp":
		return "image.webp"
	case "image/gif":
		return "image.gif"
	default:
		return "image"
	}
}
