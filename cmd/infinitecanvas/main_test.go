/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"infinitecanvas/internal/config"
	"infinitecanvas/internal/generation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	seedVariations = "6ea0d4b3-8bf1-4c3e-9f63-2b1f0c5c4a10"
	seedUpscaled   = "a37e1e95-2d8c-4b7a-b6f1-7c3e9d0a1b20"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(config.EnvConfigPath, filepath.Join(dir, "config.yaml"))
	t.Setenv(config.EnvStoragePath, filepath.Join(dir, "workspace.db"))
	t.Setenv(config.EnvStorageDriver, "sqlite")
	t.Setenv(config.EnvAPIKey, "test-key")
	t.Setenv(config.EnvLogLevel, "error")
	t.Setenv(config.EnvTelemetryOptIn, "")
	return dir
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	require.NoError(t, root.Execute(), "infinitecanvas %s: %s", strings.Join(args, " "), out.String())
	return out.String()
}

func TestVersionCommand(t *testing.T) {
	setupEnv(t)
	assert.Contains(t, execute(t, "version"), "Infinite Canvas")
}

func TestListShowsSeededWorkspace(t *testing.T) {
	setupEnv(t)
	out := execute(t, "ls")
	assert.Contains(t, out, seedVariations)
	assert.Contains(t, out, "variations")

	tree := execute(t, "tree")
	assert.Contains(t, tree, "#1 "+seedUpscaled)
}

func TestCanvasPersistsAcrossInvocations(t *testing.T) {
	setupEnv(t)
	id := strings.TrimSpace(execute(t, "canvas"))
	require.NotEmpty(t, id)

	out := execute(t, "ls")
	assert.Contains(t, out, id)
	assert.Contains(t, out, "canvas")

	execute(t, "delete", id)
	assert.NotContains(t, execute(t, "ls"), id)
}

func TestFocusAndHistory(t *testing.T) {
	setupEnv(t)
	assert.Contains(t, execute(t, "back"), "nothing to go back to")

	out := execute(t, "focus", seedUpscaled)
	assert.Contains(t, out, "editor="+seedUpscaled)
	assert.Contains(t, out, "history=1/1")

	out = execute(t, "focus", "--clear")
	assert.Contains(t, out, "editor=-")

	// with the editor closed, back reopens the current entry
	out = execute(t, "back")
	assert.Contains(t, out, "editor="+seedUpscaled)
	assert.Contains(t, out, "history=1/1")
}

func TestGenerateThroughProxy(t *testing.T) {
	setupEnv(t)
	var gotPath string
	var gotBody generation.ImagineRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(generation.VariationsResponse{Variations: []string{"https://cdn.test/1/", "https://cdn.test/2/", "https://cdn.test/3/", "https://cdn.test/4/"}})
	}))
	defer srv.Close()
	t.Setenv(config.EnvAPIURL, srv.URL)

	out := execute(t, "generate", "a", "red", "fox")
	assert.Equal(t, generation.RouteImagine, gotPath)
	assert.Equal(t, "a red fox", gotBody.Prompt)
	assert.Equal(t, "test-key", gotBody.ReplicateToken)
	assert.Contains(t, out, "ready")
	assert.Contains(t, out, "100%")
	assert.Contains(t, out, "https://cdn.test/4/")
}

func TestGenerateFailureLeavesPendingNode(t *testing.T) {
	setupEnv(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"quota"}`, http.StatusInternalServerError)
	}))
	defer srv.Close()
	t.Setenv(config.EnvAPIURL, srv.URL)

	out := execute(t, "generate", "storm")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "0%")
}

func TestExportAndImport(t *testing.T) {
	dir := setupEnv(t)
	jsonPath := filepath.Join(dir, "snapshot.json")
	pngPath := filepath.Join(dir, "map.png")
	pdfPath := filepath.Join(dir, "sheet.pdf")

	execute(t, "export", "json", jsonPath)
	execute(t, "export", "png", pngPath, "--no-images")
	execute(t, "export", "pdf", pdfPath, "--no-images", "--title", "Seed")
	for _, p := range []string{jsonPath, pngPath, pdfPath} {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Positive(t, info.Size(), p)
	}

	id := strings.TrimSpace(execute(t, "canvas"))
	assert.Contains(t, execute(t, "import", jsonPath), "imported 5 nodes")
	assert.NotContains(t, execute(t, "ls"), id)
}

func TestRejectsBadArguments(t *testing.T) {
	setupEnv(t)
	for _, args := range [][]string{
		{"upscale", seedVariations, "7"},
		{"export", "gif", "x.gif"},
		{"focus"},
		{"delete", "missing"},
	} {
		root := newRootCmd()
		root.SetOut(&bytes.Buffer{})
		root.SetErr(&bytes.Buffer{})
		root.SetArgs(args)
		assert.Error(t, root.Execute(), strings.Join(args, " "))
	}
}
