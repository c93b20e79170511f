/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package graph is the flat image-node store. Nodes form a forest through
// weak parent references and ordered child references.
//
// Every mutation runs inside a batch: listeners observe either all of a
// batch's effects or none of them. A mutation naming a missing node is
// logged, reported as ErrNotFound and rolls the batch back, which lets late
// generation responses for deleted nodes fall through harmlessly.
package graph

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"infinitecanvas/internal/domain"
	applog "infinitecanvas/internal/log"
)

var (
	ErrNotFound  = errors.New("node not found")
	ErrDuplicate = errors.New("node already exists")
)

// Change describes one committed batch.
type Change struct {
	// IDs lists every node added, removed or modified, in first-touch order.
	IDs []string
}

// Store holds nodes keyed by id in insertion order.
type Store struct {
	mu        sync.RWMutex
	nodes     map[string]*domain.Node
	order     []string
	listeners map[int]func(Change)
	nextSub   int
}

// New returns an empty store.
func New() *Store {
	return &Store{nodes: map[string]*domain.Node{}, listeners: map[int]func(Change){}}
}

func logger(op string) *slog.Logger { return applog.WithOperation(applog.WithComponent("graph"), op) }

// Subscribe registers fn to be called once per committed batch. The returned
// function removes the listener.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Batch applies fn atomically. If fn returns an error every mutation it made
// is undone and no listener is notified.
func (s *Store) Batch(fn func(tx *Tx) error) error {
	s.mu.Lock()
	tx := &Tx{s: s, saved: map[string]*domain.Node{}}
	if err := fn(tx); err != nil {
		tx.rollback()
		s.mu.Unlock()
		return err
	}
	ch := Change{IDs: tx.changed}
	var ls []func(Change)
	if len(ch.IDs) > 0 {
		for _, l := range s.listeners {
			ls = append(ls, l)
		}
	}
	s.mu.Unlock()
	for _, l := range ls {
		l(ch)
	}
	return nil
}

// Add inserts a new node.
func (s *Store) Add(n domain.Node) error {
	return s.Batch(func(tx *Tx) error { return tx.Add(n) })
}

// Remove deletes id and strips every child reference to it. Descendants stay.
func (s *Store) Remove(id string) (domain.Node, error) {
	var removed domain.Node
	err := s.Batch(func(tx *Tx) error {
		var err error
		removed, err = tx.Remove(id)
		return err
	})
	return removed, err
}

func (s *Store) SetURLs(id string, urls []string) error {
	return s.Batch(func(tx *Tx) error { return tx.SetURLs(id, urls) })
}

func (s *Store) SetProgress(id string, pct int) error {
	return s.Batch(func(tx *Tx) error { return tx.SetProgress(id, pct) })
}

func (s *Store) AppendChild(parentID string, ref domain.ChildRef) error {
	return s.Batch(func(tx *Tx) error { return tx.AppendChild(parentID, ref) })
}

func (s *Store) RemoveChild(parentID, childID string) error {
	return s.Batch(func(tx *Tx) error { return tx.RemoveChild(parentID, childID) })
}

// MoveNode translates id by (dx, dy); moves accumulate.
func (s *Store) MoveNode(id string, dx, dy float64) error {
	return s.Batch(func(tx *Tx) error { return tx.MoveNode(id, dx, dy) })
}

// Get returns a copy of the node.
func (s *Store) Get(id string) (domain.Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return domain.Node{}, false
	}
	return n.Clone(), true
}

func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.nodes[id]
	return ok
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// All returns copies of every node in insertion order.
func (s *Store) All() []domain.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Node, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.nodes[id].Clone())
	}
	return out
}

// Snapshot is All under the name used by persistence.
func (s *Store) Snapshot() []domain.Node { return s.All() }

// Restore replaces the whole store content. Invalid nodes and dangling child
// references are dropped so the restored forest keeps its invariants.
func (s *Store) Restore(nodes []domain.Node) {
	l := logger("restore")
	s.mu.Lock()
	s.nodes = make(map[string]*domain.Node, len(nodes))
	s.order = s.order[:0]
	for _, n := range nodes {
		if err := n.Validate(); err != nil {
			l.Warn("skipping invalid node", slog.Any("err", err))
			continue
		}
		if _, dup := s.nodes[n.ID]; dup {
			l.Warn("skipping duplicate node", slog.String("id", n.ID))
			continue
		}
		c := n.Clone()
		s.nodes[n.ID] = &c
		s.order = append(s.order, n.ID)
	}
	for _, n := range s.nodes {
		kept := n.Children[:0]
		for _, ch := range n.Children {
			if _, ok := s.nodes[ch.ID]; ok {
				kept = append(kept, ch)
			}
		}
		n.Children = kept
	}
	ids := append([]string{}, s.order...)
	var ls []func(Change)
	for _, fn := range s.listeners {
		ls = append(ls, fn)
	}
	s.mu.Unlock()
	for _, fn := range ls {
		fn(Change{IDs: ids})
	}
}

// Roots returns nodes without a live parent, in insertion order.
func (s *Store) Roots() []domain.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Node
	for _, id := range s.order {
		n := s.nodes[id]
		if n.Parent == nil {
			out = append(out, n.Clone())
			continue
		}
		if _, ok := s.nodes[n.Parent.ID]; !ok {
			out = append(out, n.Clone())
		}
	}
	return out
}

// Descendants returns every node reachable from id through child references,
// breadth first. The node itself is not included.
func (s *Store) Descendants(id string) []domain.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	root, ok := s.nodes[id]
	if !ok {
		return nil
	}
	seen := map[string]bool{id: true}
	queue := append([]domain.ChildRef{}, root.Children...)
	var out []domain.Node
	for len(queue) > 0 {
		ref := queue[0]
		queue = queue[1:]
		if seen[ref.ID] {
			continue
		}
		seen[ref.ID] = true
		n, ok := s.nodes[ref.ID]
		if !ok {
			continue
		}
		out = append(out, n.Clone())
		queue = append(queue, n.Children...)
	}
	return out
}

// UpscaledChildren maps each image slot of id to its live upscaled child.
// Later children win when a slot was upscaled more than once.
func (s *Store) UpscaledChildren(id string) map[int]domain.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := map[int]domain.Node{}
	n, ok := s.nodes[id]
	if !ok {
		return out
	}
	for _, ch := range n.Children {
		if ch.Kind != domain.KindUpscaled || ch.Position == nil {
			continue
		}
		if c, ok := s.nodes[ch.ID]; ok {
			out[*ch.Position] = c.Clone()
		}
	}
	return out
}

// Tx is the mutation handle passed to Batch. It must not escape the callback.
type Tx struct {
	s          *Store
	saved      map[string]*domain.Node // pre-batch copy; nil marks "did not exist"
	savedOrder []string
	changed    []string
}

func (tx *Tx) touch(id string) {
	if _, ok := tx.saved[id]; ok {
		return
	}
	if n, ok := tx.s.nodes[id]; ok {
		c := n.Clone()
		tx.saved[id] = &c
	} else {
		tx.saved[id] = nil
	}
	tx.changed = append(tx.changed, id)
}

func (tx *Tx) saveOrder() {
	if tx.savedOrder == nil {
		tx.savedOrder = append([]string{}, tx.s.order...)
	}
}

func (tx *Tx) rollback() {
	for id, n := range tx.saved {
		if n == nil {
			delete(tx.s.nodes, id)
		} else {
			tx.s.nodes[id] = n
		}
	}
	if tx.savedOrder != nil {
		tx.s.order = tx.savedOrder
	}
}

func (tx *Tx) lookup(op, id string) (*domain.Node, error) {
	n, ok := tx.s.nodes[id]
	if !ok {
		logger(op).Warn("node not found", slog.String("id", id))
		return nil, fmt.Errorf("%s %s: %w", op, id, ErrNotFound)
	}
	return n, nil
}

// Get reads a node inside the batch.
func (tx *Tx) Get(id string) (domain.Node, bool) {
	n, ok := tx.s.nodes[id]
	if !ok {
		return domain.Node{}, false
	}
	return n.Clone(), true
}

func (tx *Tx) Add(n domain.Node) error {
	if err := n.Validate(); err != nil {
		return fmt.Errorf("add: %w", err)
	}
	if _, exists := tx.s.nodes[n.ID]; exists {
		return fmt.Errorf("add %s: %w", n.ID, ErrDuplicate)
	}
	tx.touch(n.ID)
	tx.saveOrder()
	c := n.Clone()
	if c.Children == nil {
		c.Children = []domain.ChildRef{}
	}
	tx.s.nodes[n.ID] = &c
	tx.s.order = append(tx.s.order, n.ID)
	return nil
}

func (tx *Tx) Remove(id string) (domain.Node, error) {
	n, err := tx.lookup("remove", id)
	if err != nil {
		return domain.Node{}, err
	}
	removed := n.Clone()
	for _, other := range tx.s.order {
		if other == id {
			continue
		}
		if containsChild(tx.s.nodes[other].Children, id) {
			tx.touch(other)
			p := tx.s.nodes[other]
			p.Children = withoutChild(p.Children, id)
		}
	}
	tx.touch(id)
	tx.saveOrder()
	delete(tx.s.nodes, id)
	for i, oid := range tx.s.order {
		if oid == id {
			tx.s.order = append(tx.s.order[:i:i], tx.s.order[i+1:]...)
			break
		}
	}
	return removed, nil
}

func (tx *Tx) SetURLs(id string, urls []string) error {
	n, err := tx.lookup("set_urls", id)
	if err != nil {
		return err
	}
	tx.touch(id)
	if urls == nil {
		n.URLs = nil
	} else {
		n.URLs = append([]string{}, urls...)
	}
	return nil
}

// SetProgress stores pct clamped to [0, 100].
func (tx *Tx) SetProgress(id string, pct int) error {
	n, err := tx.lookup("set_progress", id)
	if err != nil {
		return err
	}
	tx.touch(id)
	n.Progress = min(max(pct, 0), 100)
	return nil
}

func (tx *Tx) AppendChild(parentID string, ref domain.ChildRef) error {
	n, err := tx.lookup("append_child", parentID)
	if err != nil {
		return err
	}
	tx.touch(parentID)
	n.Children = append(n.Children, ref)
	return nil
}

// RemoveChild drops the first reference to childID; a missing reference is not an error.
func (tx *Tx) RemoveChild(parentID, childID string) error {
	n, err := tx.lookup("remove_child", parentID)
	if err != nil {
		return err
	}
	for i, ch := range n.Children {
		if ch.ID == childID {
			tx.touch(parentID)
			n.Children = append(n.Children[:i:i], n.Children[i+1:]...)
			break
		}
	}
	return nil
}

func (tx *Tx) MoveNode(id string, dx, dy float64) error {
	n, err := tx.lookup("move", id)
	if err != nil {
		return err
	}
	tx.touch(id)
	n.Position.X += dx
	n.Position.Y += dy
	return nil
}

func containsChild(refs []domain.ChildRef, id string) bool {
	for _, r := range refs {
		if r.ID == id {
			return true
		}
	}
	return false
}

func withoutChild(refs []domain.ChildRef, id string) []domain.ChildRef {
	out := make([]domain.ChildRef, 0, len(refs))
	for _, r := range refs {
		if r.ID != id {
			out = append(out, r)
		}
	}
	return out
}
