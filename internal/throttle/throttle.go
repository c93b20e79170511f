/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package throttle implements a leading+trailing call throttle: the first
// call in a quiet period runs immediately, later calls inside the interval
// collapse into one trailing run at the end of it.
package throttle

import (
	"sync"
	"time"
)

// Throttle rate-limits invocations of a single function.
type Throttle struct {
	interval time.Duration
	fn       func()

	mu      sync.Mutex
	timer   *time.Timer
	pending bool
	stopped bool
}

// New returns a throttle running fn at most once per interval.
func New(interval time.Duration, fn func()) *Throttle {
	return &Throttle{interval: interval, fn: fn}
}

// Call requests a run of fn.
func (t *Throttle) Call() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	if t.timer != nil {
		t.pending = true
		t.mu.Unlock()
		return
	}
	t.timer = time.AfterFunc(t.interval, t.tick)
	t.mu.Unlock()
	t.fn()
}

func (t *Throttle) tick() {
	t.mu.Lock()
	if !t.pending || t.stopped {
		t.timer = nil
		t.mu.Unlock()
		return
	}
	t.pending = false
	// the trailing run opens a new interval
	t.timer = time.AfterFunc(t.interval, t.tick)
	t.mu.Unlock()
	t.fn()
}

// Pending reports whether a trailing run is scheduled.
func (t *Throttle) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

// Flush runs a scheduled trailing call now.
func (t *Throttle) Flush() {
	t.mu.Lock()
	if !t.pending {
		t.mu.Unlock()
		return
	}
	t.pending = false
	t.mu.Unlock()
	t.fn()
}

// Stop cancels timers and drops any pending call. Later calls are ignored.
func (t *Throttle) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.pending = false
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
