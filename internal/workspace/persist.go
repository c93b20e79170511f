/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package workspace

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"infinitecanvas/internal/domain"
	"infinitecanvas/internal/selection"
	"infinitecanvas/internal/storage"
)

const (
	// StateKey is the KV key of the durable workspace document.
	StateKey = "generatedImages"
	// StateVersion is bumped whenever the document layout changes; older
	// documents are discarded on load.
	StateVersion = "1"

	saveTimeout = 5 * time.Second
)

//go:embed seed.json
var seedJSON []byte

// Document is the durable subset of the workspace. The working transform and
// the current tool are not part of it.
type Document struct {
	Images          []domain.Node         `json:"images"`
	EditorID        string                `json:"editorId"`
	PrevEditorID    string                `json:"prevEditorId"`
	ActiveImageID   string                `json:"activeImageId"`
	Transform       domain.Transform      `json:"workspaceTransform"`
	WorkspaceImages []string              `json:"workspaceImages"`
	History         []domain.HistoryEntry `json:"history"`
	HistoryIndex    int                   `json:"historyIndex"`
}

// EmptyDocument is the state of a fresh workspace.
func EmptyDocument() Document {
	return Document{
		Images:          []domain.Node{},
		Transform:       domain.InitialTransform,
		WorkspaceImages: []string{},
		History:         []domain.HistoryEntry{},
		HistoryIndex:    -1,
	}
}

// DecodeDocument validates data against the state schema and decodes it.
func DecodeDocument(data []byte) (Document, error) {
	if err := storage.ValidateState(data); err != nil {
		return Document{}, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("decode workspace: %w", err)
	}
	if doc.Transform.Scale == 0 {
		doc.Transform = domain.InitialTransform
	}
	return doc, nil
}

func seedDocument() Document {
	doc, err := DecodeDocument(seedJSON)
	if err != nil {
		// the seed ships with the binary, so this is a build defect
		panic(fmt.Sprintf("workspace: invalid seed: %v", err))
	}
	return doc
}

func (w *Workspace) defaultDocument() Document {
	if w.seedDemo {
		return seedDocument()
	}
	return EmptyDocument()
}

// Document captures the durable state.
func (w *Workspace) Document() Document {
	s := w.sel.Snapshot()
	images := w.graph.Snapshot()
	if images == nil {
		images = []domain.Node{}
	}
	return Document{
		Images:          images,
		EditorID:        s.EditorID,
		PrevEditorID:    s.PrevEditorID,
		ActiveImageID:   s.ActiveID,
		Transform:       w.view.Persisted(),
		WorkspaceImages: s.Visible,
		History:         w.hist.Entries(),
		HistoryIndex:    w.hist.Cursor(),
	}
}

// Load restores the saved document, falling back to the default state when
// nothing was saved, the version changed or the payload fails validation.
func (w *Workspace) Load(ctx context.Context) error {
	l := logger("load")
	doc := w.defaultDocument()
	if w.store == nil {
		w.apply(doc)
		return nil
	}
	data, ver, ok, err := w.store.Get(ctx, StateKey)
	if err != nil {
		return fmt.Errorf("load workspace: %w", err)
	}
	switch {
	case !ok:
		l.Info("no saved workspace, starting fresh", slog.Bool("demo", w.seedDemo))
	case ver != StateVersion:
		l.Warn("state version changed, resetting workspace", slog.String("saved", ver), slog.String("want", StateVersion))
	default:
		saved, err := DecodeDocument(data)
		if err != nil {
			l.Warn("saved workspace is invalid, resetting", slog.Any("err", err))
			break
		}
		doc = saved
	}
	w.apply(doc)
	l.Info("workspace loaded", slog.Int("nodes", w.graph.Len()), slog.Int("history", w.hist.Len()))
	return nil
}

// apply replaces the whole state. Selection ids that name no node are dropped.
func (w *Workspace) apply(doc Document) {
	w.mu.Lock()
	defer w.mu.Unlock()
	known := make(map[string]bool, len(doc.Images))
	for _, n := range doc.Images {
		known[n.ID] = true
	}
	live := func(id string) string {
		if known[id] {
			return id
		}
		return ""
	}
	vis := make([]string, 0, len(doc.WorkspaceImages))
	for _, id := range doc.WorkspaceImages {
		if known[id] {
			vis = append(vis, id)
		}
	}
	w.sel.Restore(selection.State{
		ActiveID:     live(doc.ActiveImageID),
		EditorID:     live(doc.EditorID),
		PrevEditorID: live(doc.PrevEditorID),
		Visible:      vis,
	})
	w.hist.Restore(doc.History, doc.HistoryIndex)
	w.view.Reset(doc.Transform)
	// last, so the save it triggers sees the complete state
	w.graph.Restore(doc.Images)
}

// Save writes the durable state now.
func (w *Workspace) Save(ctx context.Context) error {
	if w.store == nil {
		return nil
	}
	data, err := json.Marshal(w.Document())
	if err != nil {
		return fmt.Errorf("encode workspace: %w", err)
	}
	if err := w.store.Put(ctx, StateKey, StateVersion, data); err != nil {
		return fmt.Errorf("save workspace: %w", err)
	}
	return nil
}

// saveNow is the throttled save. It must not take w.mu: the leading call runs
// synchronously inside mutations.
func (w *Workspace) saveNow() {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := w.Save(ctx); err != nil {
		logger("save").Error("persist failed", slog.Any("err", err))
	}
}

// ExportJSON writes the durable state as indented JSON to path.
func (w *Workspace) ExportJSON(path string) error {
	data, err := json.MarshalIndent(w.Document(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode workspace: %w", err)
	}
	return storage.WriteSnapshot(path, data)
}

// ErrImport wraps failures of ImportJSON.
var ErrImport = errors.New("import workspace")

// ImportJSON replaces the state with the document at path. A corrupt file
// falls back to its backup copy.
func (w *Workspace) ImportJSON(path string) error {
	data, fromBackup, err := storage.ReadSnapshot(path, storage.ValidateState)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrImport, err)
	}
	doc, err := DecodeDocument(data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrImport, err)
	}
	if fromBackup {
		logger("import").Warn("file was corrupt, imported backup", slog.String("path", path))
	}
	w.apply(doc)
	w.markDirty()
	return nil
}

// AutosaveCrash writes an emergency export into dir and returns its path.
func (w *Workspace) AutosaveCrash(dir string) (string, error) {
	path := filepath.Join(dir, fmt.Sprintf("crash-autosave-%s.json", time.Now().Format("20060102-150405")))
	return path, w.ExportJSON(path)
}
