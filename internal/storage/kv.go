/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned by helpers that require a key to exist.
var ErrNotFound = errors.New("key not found")

// KV is an opaque durable key-value store. Every value carries the version
// string of the writer so readers can detect incompatible payloads.
type KV interface {
	Get(ctx context.Context, key string) (value []byte, version string, ok bool, err error)
	Put(ctx context.Context, key, version string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// MustGet returns ErrNotFound instead of ok=false.
func MustGet(ctx context.Context, kv KV, key string) ([]byte, string, error) {
	v, ver, ok, err := kv.Get(ctx, key)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return nil, "", ErrNotFound
	}
	return v, ver, nil
}

type memEntry struct {
	version string
	value   []byte
}

// MemKV is an in-memory KV for tests and throwaway sessions.
type MemKV struct {
	mu   sync.Mutex
	data map[string]memEntry
	puts int
}

func NewMemKV() *MemKV { return &MemKV{data: map[string]memEntry{}} }

func (m *MemKV) Get(_ context.Context, key string) ([]byte, string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.data[key]
	if !ok {
		return nil, "", false, nil
	}
	return append([]byte{}, e.value...), e.version, true, nil
}

func (m *MemKV) Put(_ context.Context, key, version string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = memEntry{version: version, value: append([]byte{}, value...)}
	m.puts++
	return nil
}

func (m *MemKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemKV) Close() error { return nil }

// Puts returns how many writes the store has seen.
func (m *MemKV) Puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}
