/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package workspace is the orchestrator of the infinite canvas. It owns the
// image graph, the viewport controller, navigation history, selection and
// placement, talks to the generation collaborators and persists the durable
// subset of its state.
//
// All mutations are serialized by one mutex. Remote calls run in goroutines
// and reconcile through conditional graph batches, so a response for a node
// that was deleted in the meantime is logged and dropped.
package workspace

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"infinitecanvas/internal/domain"
	"infinitecanvas/internal/generation"
	"infinitecanvas/internal/graph"
	"infinitecanvas/internal/history"
	"infinitecanvas/internal/imgutil"
	applog "infinitecanvas/internal/log"
	"infinitecanvas/internal/placement"
	"infinitecanvas/internal/selection"
	"infinitecanvas/internal/storage"
	"infinitecanvas/internal/throttle"
	"infinitecanvas/internal/viewport"
)

// BlankCanvasURL is the white placeholder image used by new canvases.
const BlankCanvasURL = "https://ucarecdn.com/1b9e1cef-ed30-450d-a88f-ded57eb6ec35/"

// BlankCanvasPrompt is the prompt stored on new canvases.
const BlankCanvasPrompt = "white background"

// EmptyPrompt is the magic prompt that adds a blank canvas instead of generating.
const EmptyPrompt = "empty"

// DefaultPersistThrottle bounds how often the durable state is written.
const DefaultPersistThrottle = time.Second

var (
	// ErrSourceNotReady is returned when a source node is missing, pending or
	// has no image at the requested position.
	ErrSourceNotReady = errors.New("source image is not ready")
	// ErrNoGenerator is returned by generation operations without a collaborator.
	ErrNoGenerator = errors.New("no generation collaborator configured")
	// ErrNoUploader is returned by SaveEditedImage without a collaborator.
	ErrNoUploader = errors.New("no upload collaborator configured")
	// ErrEmptyPrompt rejects blank prompts.
	ErrEmptyPrompt = errors.New("prompt is empty")
	// ErrNotEditable is returned when saving pixels into a variations node.
	ErrNotEditable = errors.New("only upscaled images can be edited")
)

// EventSink receives anonymous usage events (telemetry.Client implements it).
type EventSink interface {
	Event(name string, props map[string]any)
}

// Options wires collaborators and tunables into a Workspace.
type Options struct {
	Generator generation.Generator
	Uploader  generation.Uploader
	// Store persists the durable state; nil keeps the workspace in memory.
	Store  storage.KV
	Finder *placement.Finder
	Events EventSink

	ViewWidth, ViewHeight float64

	ViewportThrottle time.Duration
	ViewportSettle   time.Duration
	PersistThrottle  time.Duration
	// RequestTimeout bounds each generation call; zero means unbounded.
	RequestTimeout time.Duration
	// SeedDemo loads the bundled demo graph when nothing was saved yet.
	SeedDemo   bool
	HistoryCap int

	// NewID allocates node ids (uuid v4 by default).
	NewID func() string
}

// Workspace is the single logical owner of the canvas state.
type Workspace struct {
	mu sync.Mutex

	graph     *graph.Store
	view      *viewport.Controller
	hist      *history.Manager
	sel       *selection.Manager
	finder    *placement.Finder
	urls      *imgutil.URLCache
	gen       generation.Generator
	uploader  generation.Uploader
	store     storage.KV
	events    EventSink
	newID     func() string
	timeout   time.Duration
	seedDemo  bool
	viewW     float64
	viewH     float64
	persist   *throttle.Throttle
	unsub     func()
	inflight  sync.WaitGroup
	reqMu     sync.Mutex
	requests  map[string]RequestState
	closeOnce sync.Once
}

// New builds a workspace with default state. Call Load to restore saved state.
func New(opts Options) *Workspace {
	if opts.Finder == nil {
		opts.Finder = placement.New(nil)
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.ViewWidth <= 0 || opts.ViewHeight <= 0 {
		opts.ViewWidth, opts.ViewHeight = 1500, 1000
	}
	if opts.PersistThrottle <= 0 {
		opts.PersistThrottle = DefaultPersistThrottle
	}
	w := &Workspace{
		graph:    graph.New(),
		hist:     history.NewManager(history.Config{MaxEntries: opts.HistoryCap}),
		sel:      selection.New(),
		finder:   opts.Finder,
		urls:     imgutil.NewURLCache(),
		gen:      opts.Generator,
		uploader: opts.Uploader,
		store:    opts.Store,
		events:   opts.Events,
		newID:    opts.NewID,
		timeout:  opts.RequestTimeout,
		seedDemo: opts.SeedDemo,
		viewW:    opts.ViewWidth,
		viewH:    opts.ViewHeight,
		requests: map[string]RequestState{},
	}
	w.persist = throttle.New(opts.PersistThrottle, w.saveNow)
	w.view = viewport.New(domain.InitialTransform, viewport.Options{
		Throttle:  opts.ViewportThrottle,
		Settle:    opts.ViewportSettle,
		OnPersist: func(domain.Transform) { w.markDirty() },
	})
	w.unsub = w.graph.Subscribe(func(graph.Change) { w.markDirty() })
	return w
}

func logger(op string) *slog.Logger {
	return applog.WithOperation(applog.WithComponent("workspace"), op)
}

// markDirty schedules a durable save.
func (w *Workspace) markDirty() {
	if w.store != nil {
		w.persist.Call()
	}
}

// Wait blocks until every in-flight generation request has finished.
func (w *Workspace) Wait() { w.inflight.Wait() }

// Close waits for in-flight requests, flushes pending writes and stops timers.
// It does not close the Store.
func (w *Workspace) Close() {
	w.closeOnce.Do(func() {
		w.Wait()
		w.view.Close()
		w.persist.Flush()
		w.persist.Stop()
		w.unsub()
	})
}

// SetViewportSize records the viewport dimensions used for zoom anchoring and
// editor framing.
func (w *Workspace) SetViewportSize(width, height float64) {
	if width <= 0 || height <= 0 {
		return
	}
	w.mu.Lock()
	w.viewW, w.viewH = width, height
	w.mu.Unlock()
}

// Read accessors.

func (w *Workspace) Node(id string) (domain.Node, bool) { return w.graph.Get(id) }
func (w *Workspace) Nodes() []domain.Node               { return w.graph.All() }
func (w *Workspace) Roots() []domain.Node               { return w.graph.Roots() }
func (w *Workspace) Len() int                           { return w.graph.Len() }

// UpscaledChildren maps positions of id to their live upscaled children.
func (w *Workspace) UpscaledChildren(id string) map[int]domain.Node {
	return w.graph.UpscaledChildren(id)
}

// Children returns the live children of id in link order.
func (w *Workspace) Children(id string) []domain.Node {
	n, ok := w.graph.Get(id)
	if !ok {
		return nil
	}
	out := make([]domain.Node, 0, len(n.Children))
	for _, ref := range n.Children {
		if c, ok := w.graph.Get(ref.ID); ok {
			out = append(out, c)
		}
	}
	return out
}

func (w *Workspace) Transform() domain.Transform          { return w.view.Working() }
func (w *Workspace) PersistedTransform() domain.Transform { return w.view.Persisted() }
func (w *Workspace) Animating() bool                      { return w.view.Animating() }
func (w *Workspace) Selection() selection.State           { return w.sel.Snapshot() }
func (w *Workspace) Tool() domain.Tool                    { return w.sel.Tool() }
func (w *Workspace) History() []domain.HistoryEntry       { return w.hist.Entries() }
func (w *Workspace) HistoryCursor() int                   { return w.hist.Cursor() }

// OptimizedURL returns the CDN URL asking for the best format, memoized.
func (w *Workspace) OptimizedURL(url string) string { return w.urls.OptimizedURL(url) }

// RequestState tracks a generation request per node.
type RequestState int

const (
	RequestNone RequestState = iota
	RequestPending
	RequestReady
	RequestFailed
)

func (s RequestState) String() string {
	switch s {
	case RequestPending:
		return "pending"
	case RequestReady:
		return "ready"
	case RequestFailed:
		return "failed"
	default:
		return "none"
	}
}

// Request reports the state of the last generation request for node id.
func (w *Workspace) Request(id string) RequestState {
	w.reqMu.Lock()
	defer w.reqMu.Unlock()
	return w.requests[id]
}

func (w *Workspace) setRequest(id string, s RequestState) {
	w.reqMu.Lock()
	w.requests[id] = s
	w.reqMu.Unlock()
}

func (w *Workspace) event(name string, props map[string]any) {
	if w.events != nil {
		w.events.Event(name, props)
	}
}

// dispatch runs call in the background with a detached, optionally bounded
// context and reconciles the result into node id.
func (w *Workspace) dispatch(ctx context.Context, id, route string, call func(ctx context.Context) ([]string, error)) {
	w.setRequest(id, RequestPending)
	w.inflight.Add(1)
	w.event("generation_started", map[string]any{"route": route})
	go func() {
		defer w.inflight.Done()
		l := logger("reconcile").With(slog.String("node", id), slog.String("route", route))
		rctx := context.WithoutCancel(ctx)
		if w.timeout > 0 {
			var cancel context.CancelFunc
			rctx, cancel = context.WithTimeout(rctx, w.timeout)
			defer cancel()
		}
		start := time.Now()
		urls, err := call(rctx)
		took := time.Since(start)
		if err != nil {
			// the node stays pending; there is no retry
			l.Error("generation failed", slog.Any("err", err), slog.Duration("took", took))
			w.setRequest(id, RequestFailed)
			w.event("generation_failed", map[string]any{"route": route, "ms": took.Milliseconds()})
			return
		}
		if err := w.reconcile(id, urls); err != nil {
			l.Warn("dropping late response", slog.Any("err", err))
			w.setRequest(id, RequestFailed)
			return
		}
		l.Info("generation finished", slog.Int("urls", len(urls)), slog.Duration("took", took))
		w.setRequest(id, RequestReady)
		w.event("generation_finished", map[string]any{"route": route, "ms": took.Milliseconds(), "count": len(urls)})
	}()
}

// reconcile stores urls on id and marks it done, if id still exists.
func (w *Workspace) reconcile(id string, urls []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.graph.Batch(func(tx *graph.Tx) error {
		n, ok := tx.Get(id)
		if !ok {
			return graph.ErrNotFound
		}
		if urls == nil {
			urls = []string{}
		}
		if n.Kind == domain.KindUpscaled && len(urls) > 1 {
			urls = urls[:1]
		}
		if err := tx.SetURLs(id, urls); err != nil {
			return err
		}
		return tx.SetProgress(id, 100)
	})
}
