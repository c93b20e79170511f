/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteSnapshot_KeepsBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exports", "workspace.json")
	if err := WriteSnapshot(path, []byte(`{"images":[]}`)); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if _, err := os.Stat(path + BackupSuffix); !os.IsNotExist(err) {
		t.Fatalf("no backup expected on first write: %v", err)
	}
	if err := WriteSnapshot(path, []byte(`{"images":[],"historyIndex":0}`)); err != nil {
		t.Fatalf("second write: %v", err)
	}
	bak, err := os.ReadFile(path + BackupSuffix)
	if err != nil || string(bak) != `{"images":[]}` {
		t.Fatalf("backup = %q, %v", bak, err)
	}
	data, fromBackup, err := ReadSnapshot(path, ValidateState)
	if err != nil || fromBackup {
		t.Fatalf("read: fromBackup=%v err=%v", fromBackup, err)
	}
	if string(data) != `{"images":[],"historyIndex":0}` {
		t.Fatalf("unexpected data %q", data)
	}
	// no temp files left behind
	ents, _ := os.ReadDir(filepath.Dir(path))
	if len(ents) != 2 {
		t.Fatalf("expected snapshot and backup only, got %d entries", len(ents))
	}
}

func TestReadSnapshot_CorruptionFallsBackToBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workspace.json")
	_ = WriteSnapshot(path, []byte(`{"images":[]}`))
	_ = WriteSnapshot(path, []byte(`{"images":[]}`))
	if err := os.WriteFile(path, []byte("THIS IS NOT JSON"), 0o644); err != nil {
		t.Fatalf("corrupt: %v", err)
	}
	data, fromBackup, err := ReadSnapshot(path, ValidateState)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	if !fromBackup || string(data) != `{"images":[]}` {
		t.Fatalf("expected backup content, got %q (fromBackup=%v)", data, fromBackup)
	}
}

func TestReadSnapshot_NothingReadable(t *testing.T) {
	if _, _, err := ReadSnapshot(filepath.Join(t.TempDir(), "missing.json"), nil); err == nil {
		t.Fatalf("expected error")
	}
}

func TestValidateState(t *testing.T) {
	good := `{
		"images": [
			{"id":"a","type":"variations","url":["u1","u2","u3","u4"],"prompt":"fox","percentageDone":100,"parent":null,"children":[{"id":"b","type":"upscaled","position":2}],"transform":{"x":1,"y":2}},
			{"id":"b","type":"upscaled","url":null,"prompt":"fox","percentageDone":0,"parent":{"id":"a","position":2},"children":[],"transform":{"x":900,"y":0}}
		],
		"editorId":"a","prevEditorId":"","activeImageId":"b",
		"workspaceTransform":{"x":0,"y":0,"scale":1},
		"workspaceImages":["a"],
		"history":[{"type":"image-editor","imageId":"a"},{"type":"workspace-transform","transform":{"x":1,"y":1,"scale":2}}],
		"historyIndex":1
	}`
	if err := ValidateState([]byte(good)); err != nil {
		t.Fatalf("valid document rejected: %v", err)
	}
	bad := map[string]string{
		"missing images": `{}`,
		"unknown kind":   `{"images":[{"id":"a","type":"sketch","percentageDone":0,"transform":{"x":0,"y":0}}]}`,
		"progress range": `{"images":[{"id":"a","type":"upscaled","percentageDone":101,"transform":{"x":0,"y":0}}]}`,
		"scale range":    `{"images":[],"workspaceTransform":{"x":0,"y":0,"scale":9}}`,
		"history kind":   `{"images":[],"history":[{"type":"zoom"}]}`,
	}
	for name, doc := range bad {
		err := ValidateState([]byte(doc))
		if !errors.Is(err, ErrInvalidState) {
			t.Fatalf("%s: expected ErrInvalidState, got %v", name, err)
		}
	}
	if err := ValidateState([]byte("not json")); err == nil {
		t.Fatalf("expected error for malformed json")
	}
}
