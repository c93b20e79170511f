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
	"os"
	"testing"
	"time"
)

// openPGKVForTest opens the Postgres KV from ICV_TEST_PG_DSN or skips.
func openPGKVForTest(t *testing.T) *SQLKV {
	t.Helper()
	dsn := os.Getenv("ICV_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("ICV_TEST_PG_DSN not set; skipping Postgres tests")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	kv, err := OpenPostgres(ctx, dsn)
	if err != nil {
		t.Fatalf("OpenPostgres: %v", err)
	}
	return kv
}

func TestPostgresKV(t *testing.T) {
	kv := openPGKVForTest(t)
	defer func() { _ = kv.Close() }()
	_ = kv.Delete(context.Background(), "generatedImages")
	exerciseKV(t, kv)
}

func TestPostgresMigrationsAreIdempotent(t *testing.T) {
	kv := openPGKVForTest(t)
	defer func() { _ = kv.Close() }()
	// second open must not re-run 0001
	again := openPGKVForTest(t)
	defer func() { _ = again.Close() }()
	var n int
	if err := again.DB().QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE version = 1`).Scan(&n); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected migration 1 recorded once, got %d", n)
	}
}

func TestOpenPG_EmptyDSN(t *testing.T) {
	if _, err := OpenPG(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
}
