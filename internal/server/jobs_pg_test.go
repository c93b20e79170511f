/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package server

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infinitecanvas/internal/storage"
)

func TestPGJobs(t *testing.T) {
	dsn := os.Getenv("ICV_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("ICV_TEST_PG_DSN not set; skipping Postgres tests")
	}
	ctx := context.Background()
	db, err := storage.OpenPG(ctx, dsn)
	require.NoError(t, err)
	defer db.Close()

	jobs, err := NewPGJobs(ctx, db)
	require.NoError(t, err)
	// migrations are idempotent
	_, err = NewPGJobs(ctx, db)
	require.NoError(t, err)

	marker := "pg-jobs-" + time.Now().Format(time.RFC3339Nano)
	require.NoError(t, jobs.Record(ctx, Job{
		Route: "/upscale", Prompt: marker, Status: JobOK, DurationMs: 12,
		URLs: []string{"https://cdn.test/a/"}, CreatedAt: time.Now().UTC(),
	}))
	list, err := jobs.List(ctx, 5)
	require.NoError(t, err)
	require.NotEmpty(t, list)
	assert.Equal(t, marker, list[0].Prompt)
	assert.Equal(t, []string{"https://cdn.test/a/"}, list[0].URLs)
}
