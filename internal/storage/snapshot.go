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
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
)

// BackupSuffix is appended to a snapshot path for the previous generation.
const BackupSuffix = ".bak"

// WriteSnapshot writes data to path with transactional semantics: the current
// file (if any) is copied to path+".bak", the new content goes to a temp file in
// the same directory and is then renamed over the target.
func WriteSnapshot(path string, data []byte) error {
	if path == "" {
		return errors.New("snapshot path is empty")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure snapshot dir: %w", err)
	}
	if _, statErr := os.Stat(path); statErr == nil {
		if cerr := copyFile(path, path+BackupSuffix); cerr != nil {
			return fmt.Errorf("backup current snapshot: %w", cerr)
		}
	}
	temp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d-%d", filepath.Base(path), os.Getpid(), rand.Int()))
	if werr := writeFileSync(temp, data); werr != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("write temp snapshot: %w", werr)
	}
	// On Windows, replace by removing destination first if needed
	if _, err := os.Stat(path); err == nil {
		_ = os.Remove(path)
	}
	if rerr := os.Rename(temp, path); rerr != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("replace snapshot: %w", rerr)
	}
	return nil
}

// ReadSnapshot reads path and, when valid is non-nil, checks the content with it.
// A missing or rejected primary file falls back to the .bak copy; fromBackup
// reports which one was returned.
func ReadSnapshot(path string, valid func([]byte) error) (data []byte, fromBackup bool, err error) {
	data, err = readChecked(path, valid)
	if err == nil {
		return data, false, nil
	}
	b, berr := readChecked(path+BackupSuffix, valid)
	if berr != nil {
		return nil, false, fmt.Errorf("read snapshot: %w (backup: %v)", err, berr)
	}
	return b, true, nil
}

func readChecked(path string, valid func([]byte) error) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if valid != nil {
		if verr := valid(b); verr != nil {
			return nil, verr
		}
	}
	return b, nil
}

// writeFileSync writes data to a file, ensures it is flushed to disk.
func writeFileSync(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

// copyFile copies a file from src to dst (overwrites dst if exists).
func copyFile(src, dst string) (err error) {
	sf, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sf.Close(); err == nil {
			err = cerr
		}
	}()
	df, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := df.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := io.Copy(df, sf); err != nil {
		return err
	}
	return df.Sync()
}
