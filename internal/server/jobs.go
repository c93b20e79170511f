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
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"infinitecanvas/internal/storage"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Job statuses.
const (
	JobOK     = "ok"
	JobFailed = "failed"
)

// Job is one proxied generation request.
type Job struct {
	ID         int64     `json:"id"`
	Route      string    `json:"route"`
	Prompt     string    `json:"prompt"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	URLs       []string  `json:"urls"`
	CreatedAt  time.Time `json:"created_at"`
}

// JobLog records generation requests, newest first on List.
type JobLog interface {
	Record(ctx context.Context, j Job) error
	List(ctx context.Context, limit int) ([]Job, error)
}

const defaultMemJobs = 200

// MemJobs keeps the last N jobs in memory.
type MemJobs struct {
	mu   sync.Mutex
	size int
	next int64
	jobs []Job
}

func NewMemJobs(capacity int) *MemJobs {
	if capacity <= 0 {
		capacity = defaultMemJobs
	}
	return &MemJobs{size: capacity}
}

func (m *MemJobs) Record(_ context.Context, j Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	j.ID = m.next
	j.URLs = append([]string(nil), j.URLs...)
	m.jobs = append(m.jobs, j)
	if len(m.jobs) > m.size {
		m.jobs = append([]Job(nil), m.jobs[len(m.jobs)-m.size:]...)
	}
	return nil
}

func (m *MemJobs) List(_ context.Context, limit int) ([]Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Job, 0, min(limit, len(m.jobs)))
	for i := len(m.jobs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.jobs[i])
	}
	return out, nil
}

// PGJobs stores jobs in Postgres.
type PGJobs struct {
	db *sql.DB
}

// NewPGJobs applies the job-log migrations to db.
func NewPGJobs(ctx context.Context, db *sql.DB) (*PGJobs, error) {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, err
	}
	if err := storage.ApplyMigrations(ctx, db, sub); err != nil {
		return nil, fmt.Errorf("migrate jobs: %w", err)
	}
	return &PGJobs{db: db}, nil
}

func (p *PGJobs) Record(ctx context.Context, j Job) error {
	if j.URLs == nil {
		j.URLs = []string{}
	}
	urls, err := json.Marshal(j.URLs)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO generation_jobs(route, prompt, status, error, duration_ms, urls, created_at) VALUES($1, $2, $3, $4, $5, $6, $7)`,
		j.Route, j.Prompt, j.Status, j.Error, j.DurationMs, string(urls), j.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (p *PGJobs) List(ctx context.Context, limit int) ([]Job, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, route, prompt, status, error, duration_ms, urls, created_at FROM generation_jobs ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	var out []Job
	for rows.Next() {
		var (
			j    Job
			urls []byte
		)
		if err := rows.Scan(&j.ID, &j.Route, &j.Prompt, &j.Status, &j.Error, &j.DurationMs, &urls, &j.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(urls, &j.URLs); err != nil {
			return nil, fmt.Errorf("decode job %d urls: %w", j.ID, err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
