/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package graph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infinitecanvas/internal/domain"
)

func variations(id string, urls ...string) domain.Node {
	n := domain.Node{ID: id, Kind: domain.KindVariations, Prompt: "p"}
	if len(urls) > 0 {
		n.URLs = urls
		n.Progress = 100
	}
	return n
}

func upscaled(id, parent string, pos int) domain.Node {
	return domain.Node{ID: id, Kind: domain.KindUpscaled, Parent: &domain.ParentRef{ID: parent, Position: pos}}
}

func TestMutationsOnMissingIDsDoNotMutate(t *testing.T) {
	s := New()
	require.NoError(t, s.Add(variations("a")))
	before := s.All()
	calls := 0
	s.Subscribe(func(Change) { calls++ })

	assert.ErrorIs(t, s.SetURLs("ghost", []string{"u"}), ErrNotFound)
	assert.ErrorIs(t, s.SetProgress("ghost", 100), ErrNotFound)
	assert.ErrorIs(t, s.AppendChild("ghost", domain.VariationsChild("a")), ErrNotFound)
	assert.ErrorIs(t, s.RemoveChild("ghost", "a"), ErrNotFound)
	assert.ErrorIs(t, s.MoveNode("ghost", 1, 1), ErrNotFound)
	_, err := s.Remove("ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, before, s.All())
	assert.Zero(t, calls)
}

func TestBatchIsAtomic(t *testing.T) {
	s := New()
	require.NoError(t, s.Add(variations("p", "u1", "u2")))
	var seen []Change
	s.Subscribe(func(c Change) { seen = append(seen, c) })

	err := s.Batch(func(tx *Tx) error {
		if err := tx.Add(upscaled("c", "p", 1)); err != nil {
			return err
		}
		return tx.AppendChild("p", domain.UpscaledChild("c", 1))
	})
	require.NoError(t, err)
	require.Len(t, seen, 1)
	assert.Equal(t, []string{"c", "p"}, seen[0].IDs)

	boom := errors.New("boom")
	err = s.Batch(func(tx *Tx) error {
		require.NoError(t, tx.Add(upscaled("d", "p", 0)))
		require.NoError(t, tx.AppendChild("p", domain.UpscaledChild("d", 0)))
		require.NoError(t, tx.MoveNode("p", 10, 10))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, s.Has("d"))
	p, _ := s.Get("p")
	assert.Len(t, p.Children, 1)
	assert.Zero(t, p.Position.X)
	assert.Len(t, seen, 1, "rolled back batch must not notify")
	assert.Equal(t, []string{"p", "c"}, ids(s.All()))
}

func TestRemoveStripsParentButKeepsGrandchildren(t *testing.T) {
	s := New()
	require.NoError(t, s.Add(variations("root", "u1", "u2")))
	require.NoError(t, s.Batch(func(tx *Tx) error {
		_ = tx.Add(upscaled("mid", "root", 0))
		return tx.AppendChild("root", domain.UpscaledChild("mid", 0))
	}))
	require.NoError(t, s.Batch(func(tx *Tx) error {
		_ = tx.Add(upscaled("leaf", "mid", 0))
		return tx.AppendChild("mid", domain.VariationsChild("leaf"))
	}))

	removed, err := s.Remove("mid")
	require.NoError(t, err)
	assert.Equal(t, "mid", removed.ID)
	root, _ := s.Get("root")
	assert.Empty(t, root.Children)
	assert.True(t, s.Has("leaf"), "deletion does not cascade")
	assert.Equal(t, []string{"root", "leaf"}, ids(s.Roots()), "leaf lost its live parent")
}

func TestSetURLsProgressAndMove(t *testing.T) {
	s := New()
	require.NoError(t, s.Add(variations("a")))
	require.NoError(t, s.Batch(func(tx *Tx) error {
		if err := tx.SetURLs("a", []string{"u1", "u2", "u3", "u4"}); err != nil {
			return err
		}
		return tx.SetProgress("a", 140)
	}))
	require.NoError(t, s.MoveNode("a", 5, -5))
	require.NoError(t, s.MoveNode("a", 5, -5))
	a, _ := s.Get("a")
	assert.Equal(t, []string{"u1", "u2", "u3", "u4"}, a.URLs)
	assert.Equal(t, 100, a.Progress)
	assert.Equal(t, 10.0, a.Position.X)
	assert.Equal(t, -10.0, a.Position.Y)
	assert.True(t, a.Ready())
}

func TestAddRejectsDuplicatesAndInvalid(t *testing.T) {
	s := New()
	require.NoError(t, s.Add(variations("a")))
	assert.ErrorIs(t, s.Add(variations("a")), ErrDuplicate)
	assert.ErrorIs(t, s.Add(domain.Node{ID: "x", Kind: domain.KindVariations, IsCanvas: true}), domain.ErrCanvasVariation)
}

func TestUpscaledChildrenAndDescendants(t *testing.T) {
	s := New()
	require.NoError(t, s.Add(variations("p", "u0", "u1", "u2", "u3")))
	for _, c := range []struct {
		id  string
		pos int
	}{{"c2", 2}, {"c0", 0}} {
		c := c
		require.NoError(t, s.Batch(func(tx *Tx) error {
			_ = tx.Add(upscaled(c.id, "p", c.pos))
			return tx.AppendChild("p", domain.UpscaledChild(c.id, c.pos))
		}))
	}
	require.NoError(t, s.Batch(func(tx *Tx) error {
		_ = tx.Add(upscaled("v", "p", 1))
		return tx.AppendChild("p", domain.VariationsChild("v"))
	}))

	m := s.UpscaledChildren("p")
	require.Len(t, m, 2)
	assert.Equal(t, "c2", m[2].ID)
	assert.Equal(t, "c0", m[0].ID)
	assert.Equal(t, []string{"c2", "c0", "v"}, ids(s.Descendants("p")))
	assert.Empty(t, s.UpscaledChildren("ghost"))
}

func TestRestoreDropsDanglingChildren(t *testing.T) {
	s := New()
	p := variations("p", "u")
	p.Children = []domain.ChildRef{domain.VariationsChild("gone"), domain.VariationsChild("c")}
	s.Restore([]domain.Node{p, upscaled("c", "p", 0), {ID: "bad", Kind: "nope"}})
	assert.Equal(t, 2, s.Len())
	got, _ := s.Get("p")
	require.Len(t, got.Children, 1)
	assert.Equal(t, "c", got.Children[0].ID)
}

func ids(nodes []domain.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ID)
	}
	return out
}
