/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package placement finds free canvas space for new nodes.
//
// The search is Monte-Carlo: points are sampled uniformly inside a square
// window around the requested center, and the window grows after every
// rejected sample. There is no attempt bound; the growing window guarantees
// that a free spot is eventually reached on any finite canvas.
package placement

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"infinitecanvas/internal/domain"
	"infinitecanvas/internal/vector"
)

const (
	// Gap is the minimum spacing kept between node footprints.
	Gap = 20
	// InitialBoundary is the starting half-width of the sampling window.
	InitialBoundary = 500
	// BoundaryStep widens the window after every failed sample.
	BoundaryStep = 30
)

// Finder samples candidate positions from an injectable random source.
// Build one with New or Seeded and share it by pointer.
type Finder struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// New returns a finder drawing from r (nil means time-seeded).
func New(r *rand.Rand) *Finder {
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Finder{rnd: r}
}

// Seeded returns a deterministic finder.
func Seeded(seed int64) *Finder { return New(rand.New(rand.NewSource(seed))) }

// Float64 draws one value in [0, 1) from the finder's source.
func (f *Finder) Float64() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rnd.Float64()
}

// FindEmptyArea returns a point near (cx, cy) whose gap-padded footprint does
// not overlap any of nodes.
func (f *Finder) FindEmptyArea(cx, cy float64, nodes []domain.Node) vector.Pt {
	boundary := float64(InitialBoundary)
	for {
		x := math.Floor(f.Float64()*(2*boundary)-boundary) + cx
		y := math.Floor(f.Float64()*(2*boundary)-boundary) + cy
		p := vector.Pt{X: x, Y: y}
		if !Overlaps(p, nodes) {
			return p
		}
		boundary += BoundaryStep
	}
}

// Overlaps reports whether a node placed at p would overlap or come closer
// than Gap to any of nodes.
func Overlaps(p vector.Pt, nodes []domain.Node) bool {
	candidate := vector.Square(p, domain.NodeSize).Grow(Gap)
	for _, n := range nodes {
		if candidate.Intersects(n.Bounds().Grow(Gap)) {
			return true
		}
	}
	return false
}
