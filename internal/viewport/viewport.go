/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package viewport owns the canvas pan/zoom transform.
//
// Two copies of the transform exist. The working copy is updated
// synchronously on every gesture tick and is what rendering reads. The
// persisted copy is what the durable store sees: immediate commits write it
// right away, gestures write it through a leading+trailing throttle so a
// drag does not flood persistence. The two may diverge for at most one
// throttle interval.
package viewport

import (
	"log/slog"
	"sync"
	"time"

	"infinitecanvas/internal/domain"
	applog "infinitecanvas/internal/log"
	"infinitecanvas/internal/throttle"
)

const (
	DefaultThrottle = 50 * time.Millisecond
	DefaultSettle   = 420 * time.Millisecond
)

// Partial names the transform fields to overwrite; nil fields are kept.
type Partial struct {
	X, Y, Scale *float64
}

// Full overwrites every field.
func Full(t domain.Transform) Partial { return Partial{X: &t.X, Y: &t.Y, Scale: &t.Scale} }

// XY overwrites the translation only.
func XY(x, y float64) Partial { return Partial{X: &x, Y: &y} }

func (p Partial) apply(t domain.Transform) domain.Transform {
	if p.X != nil {
		t.X = *p.X
	}
	if p.Y != nil {
		t.Y = *p.Y
	}
	if p.Scale != nil {
		t.Scale = *p.Scale
	}
	return t.Clamped()
}

// Options configures a Controller.
type Options struct {
	Throttle time.Duration
	Settle   time.Duration
	// OnPersist receives every persisted-copy update.
	OnPersist func(domain.Transform)
}

// Controller is the single owner of the viewport transform.
type Controller struct {
	mu        sync.Mutex
	working   domain.Transform
	persisted domain.Transform
	animating bool
	settleGen int
	settle    time.Duration
	onPersist func(domain.Transform)
	gesture   *throttle.Throttle
	log       *slog.Logger
}

// New returns a controller whose copies both start at initial.
func New(initial domain.Transform, opts Options) *Controller {
	if opts.Throttle <= 0 {
		opts.Throttle = DefaultThrottle
	}
	if opts.Settle <= 0 {
		opts.Settle = DefaultSettle
	}
	initial = initial.Clamped()
	c := &Controller{
		working:   initial,
		persisted: initial,
		settle:    opts.Settle,
		onPersist: opts.OnPersist,
		log:       applog.WithComponent("viewport"),
	}
	c.gesture = throttle.New(opts.Throttle, c.persistWorking)
	return c
}

// Working returns the render-authoritative transform.
func (c *Controller) Working() domain.Transform {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.working
}

// Persisted returns the last committed transform.
func (c *Controller) Persisted() domain.Transform {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.persisted
}

// Animating reports whether an immediate commit is still settling.
func (c *Controller) Animating() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.animating
}

// Commit writes both copies now and raises the animation flag until the
// settle delay has passed. It is used for replay and snap-to moves.
func (c *Controller) Commit(p Partial) domain.Transform {
	c.mu.Lock()
	c.working = p.apply(c.working)
	c.persisted = c.working
	c.animating = true
	c.settleGen++
	gen := c.settleGen
	t := c.persisted
	c.mu.Unlock()

	time.AfterFunc(c.settle, func() {
		c.mu.Lock()
		if c.settleGen == gen {
			c.animating = false
		}
		c.mu.Unlock()
	})
	c.log.Debug("commit", slog.Float64("x", t.X), slog.Float64("y", t.Y), slog.Float64("scale", t.Scale))
	c.notify(t)
	return t
}

// Gesture writes the working copy now and the persisted copy through the throttle.
func (c *Controller) Gesture(p Partial) domain.Transform {
	c.mu.Lock()
	c.working = p.apply(c.working)
	t := c.working
	c.mu.Unlock()
	c.gesture.Call()
	return t
}

// Reset sets both copies without animation, e.g. after loading saved state.
func (c *Controller) Reset(t domain.Transform) {
	c.mu.Lock()
	c.working = t.Clamped()
	c.persisted = c.working
	c.mu.Unlock()
}

// Flush forces a pending trailing gesture commit.
func (c *Controller) Flush() { c.gesture.Flush() }

// Close flushes and stops the throttle timers.
func (c *Controller) Close() {
	c.gesture.Flush()
	c.gesture.Stop()
}

func (c *Controller) persistWorking() {
	c.mu.Lock()
	c.persisted = c.working
	t := c.persisted
	c.mu.Unlock()
	c.notify(t)
}

func (c *Controller) notify(t domain.Transform) {
	if c.onPersist != nil {
		c.onPersist(t)
	}
}
