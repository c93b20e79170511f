/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"infinitecanvas/internal/imgutil"
	applog "infinitecanvas/internal/log"
	"infinitecanvas/internal/storage"
)

// PreviewSide is the longest side of -/preview/ renditions.
const PreviewSide = 512

// cdnNamespace seeds the content-addressed ids.
var cdnNamespace = uuid.MustParse("7f1c2f0e-5b8e-4a36-9c7e-2f6d4c1b9a10")

// LocalCDN keeps uploads in a directory and serves them under BaseURL.
// Identical content maps to the same id.
type LocalCDN struct {
	Dir     string
	BaseURL string // e.g. http://localhost:3000/cdn
	Fetcher Fetcher

	mu       sync.Mutex
	previews map[string][]byte
}

func NewLocalCDN(dir, baseURL string) (*LocalCDN, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("cdn dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cdn dir: %w", err)
	}
	return &LocalCDN{
		Dir:      dir,
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Fetcher:  imgutil.NewFetcher(),
		previews: map[string][]byte{},
	}, nil
}

func (c *LocalCDN) UploadBytes(_ context.Context, data []byte, _ string) (string, error) {
	if len(data) == 0 {
		return "", errors.New("upload: empty body")
	}
	id := uuid.NewSHA1(cdnNamespace, data).String()
	path := filepath.Join(c.Dir, id)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := storage.WriteSnapshot(path, data); err != nil {
			return "", fmt.Errorf("store %s: %w", id, err)
		}
		applog.WithComponent("upload").Debug("stored", slog.String("id", id), slog.Int("bytes", len(data)))
	}
	return c.BaseURL + "/" + id + "/", nil
}

func (c *LocalCDN) UploadURL(ctx context.Context, url string) (string, error) {
	return uploadURL(ctx, c.Fetcher, c, url)
}

// ServeHTTP serves "<id>/", "<id>/-/format/auto/" and "<id>/-/preview/".
// Mount it with http.StripPrefix.
func (c *LocalCDN) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/")
	id, variant, _ := strings.Cut(rest, "/")
	if _, err := uuid.Parse(id); err != nil {
		http.NotFound(w, r)
		return
	}
	data, err := os.ReadFile(filepath.Join(c.Dir, id))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	mime := http.DetectContentType(data)
	switch strings.Trim(variant, "/") {
	case "", strings.Trim(imgutil.OptimizedSuffix, "/"):
	case strings.Trim(imgutil.PreviewSuffix, "/"):
		data, mime, err = c.preview(id, data)
		if err != nil {
			http.Error(w, "preview failed", http.StatusUnprocessableEntity)
			return
		}
	default:
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	_, _ = w.Write(data)
}

func (c *LocalCDN) preview(id string, data []byte) ([]byte, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.previews[id]; ok {
		return p, http.DetectContentType(p), nil
	}
	p, mime, err := imgutil.Thumbnail(data, PreviewSide)
	if err != nil {
		return nil, "", err
	}
	c.previews[id] = p
	return p, mime, nil
}

var (
	_ Uploader = (*HTTPCDN)(nil)
	_ Uploader = (*LocalCDN)(nil)
)
