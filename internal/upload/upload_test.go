/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher map[string][]byte

func (f fakeFetcher) FetchBytes(_ context.Context, url string) ([]byte, error) {
	if b, ok := f[url]; ok {
		return b, nil
	}
	return nil, io.ErrUnexpectedEOF
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func TestHTTPCDNUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/base/", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "pub", r.FormValue("UPLOADCARE_PUB_KEY"))
		assert.Equal(t, "1", r.FormValue("UPLOADCARE_STORE"))
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		b, _ := io.ReadAll(f)
		assert.Equal(t, "image.png", hdr.Filename)
		assert.NotEmpty(t, b)
		_ = json.NewEncoder(w).Encode(map[string]string{"file": "abc-123"})
	}))
	defer srv.Close()

	c := NewHTTPCDN(srv.URL+"/", "pub")
	c.CDNBase = "https://cdn.example/"
	img := pngBytes(t, 4, 4)
	c.Fetcher = fakeFetcher{"https://provider/out.png": img}

	u, err := c.UploadBytes(context.Background(), img, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/abc-123/", u)

	u, err = c.UploadURL(context.Background(), "https://provider/out.png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/abc-123/", u)

	_, err = c.UploadURL(context.Background(), "https://provider/missing.png")
	assert.Error(t, err)
}

func TestHTTPCDNErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewHTTPCDN(srv.URL, "")
	assert.Equal(t, DefaultPublicKey, c.PublicKey)
	_, err := c.UploadBytes(context.Background(), []byte("x"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad key")

	_, err = c.UploadBytes(context.Background(), nil, "")
	assert.Error(t, err)
}

func TestLocalCDN(t *testing.T) {
	cdn, err := NewLocalCDN(t.TempDir(), "http://localhost:3000/cdn/")
	require.NoError(t, err)
	img := pngBytes(t, 1024, 512)

	u1, err := cdn.UploadBytes(context.Background(), img, "image/png")
	require.NoError(t, err)
	u2, err := cdn.UploadBytes(context.Background(), img, "image/png")
	require.NoError(t, err)
	assert.Equal(t, u1, u2, "same content, same id")
	require.True(t, strings.HasPrefix(u1, "http://localhost:3000/cdn/"))
	id := strings.Trim(strings.TrimPrefix(u1, "http://localhost:3000/cdn/"), "/")

	srv := httptest.NewServer(http.StripPrefix("/cdn", cdn))
	defer srv.Close()

	get := func(path string) (*http.Response, []byte) {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		return resp, b
	}

	resp, body := get("/cdn/" + id + "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, img, body)

	resp, body = get("/cdn/" + id + "/-/format/auto/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, img, body)

	resp, body = get("/cdn/" + id + "/-/preview/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	prev, err := png.Decode(bytes.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, PreviewSide, PreviewSide/2), prev.Bounds())

	resp, _ = get("/cdn/" + id + "/-/resize/10/")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = get("/cdn/not-a-uuid/")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = get("/cdn/00000000-0000-0000-0000-000000000000/")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestNewLocalCDNRequiresDir(t *testing.T) {
	_, err := NewLocalCDN(" ", "")
	assert.Error(t, err)
}
