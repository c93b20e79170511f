/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package crash

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteReport(t *testing.T) {
	dir := t.TempDir()
	path, err := writeReport(dir, "boom", []byte("stacktrace"))
	if err != nil {
		t.Fatalf("writeReport error: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Fatalf("report written to %s, want dir %s", path, dir)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	s := string(b)
	for _, want := range []string{"Infinite Canvas Crash Report", "Panic: boom", "stacktrace"} {
		if !strings.Contains(s, want) {
			t.Fatalf("report missing %q: %s", want, s)
		}
	}
}

func TestReportDirFallsBackToTemp(t *testing.T) {
	if got := reportDir(""); got != os.TempDir() {
		t.Fatalf("reportDir(\"\") = %s", got)
	}
}

func silenceStderr(t *testing.T) {
	t.Helper()
	old := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w
	t.Cleanup(func() {
		_ = w.Close()
		os.Stderr = old
		_, _ = io.Copy(io.Discard, r)
	})
}

func TestRecoverWritesReportAndAutosaves(t *testing.T) {
	silenceStderr(t)
	code := 0
	oldExit := exitFn
	exitFn = func(c int) { code = c }
	defer func() { exitFn = oldExit }()

	dir := t.TempDir()
	var savedIn string
	func() {
		defer Recover(Target{Dir: dir, Autosave: func(d string) (string, error) {
			savedIn = d
			p := filepath.Join(d, "crash-autosave.json")
			return p, os.WriteFile(p, []byte(`{"images":[]}`), 0o644)
		}})
		panic("boom")
	}()

	if code != 2 {
		t.Fatalf("expected exit code 2, got %d", code)
	}
	if savedIn != dir {
		t.Fatalf("autosave dir = %q, want %q", savedIn, dir)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "crash-*.log"))
	if len(matches) == 0 {
		t.Fatalf("expected crash report under %s", dir)
	}
	if _, err := os.Stat(filepath.Join(dir, "crash-autosave.json")); err != nil {
		t.Fatalf("autosave missing: %v", err)
	}
}

func TestRecoverSurvivesFailingAutosave(t *testing.T) {
	silenceStderr(t)
	code := 0
	oldExit := exitFn
	exitFn = func(c int) { code = c }
	defer func() { exitFn = oldExit }()

	func() {
		defer Recover(Target{Dir: t.TempDir(), Autosave: func(string) (string, error) {
			return "", errors.New("disk full")
		}})
		panic("boom")
	}()
	if code != 2 {
		t.Fatalf("expected exit code 2, got %d", code)
	}
}

func TestRecoverWithoutPanicIsNoop(t *testing.T) {
	called := false
	oldExit := exitFn
	exitFn = func(int) { called = true }
	defer func() { exitFn = oldExit }()

	func() { defer Recover(Target{}) }()
	if called {
		t.Fatalf("exit should not be called without a panic")
	}
}
