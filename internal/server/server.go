/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package server is the generation proxy: it turns canvas requests into
// provider calls, stores the outputs on the CDN and answers with their URLs.
// It also serves the single-page client and, optionally, locally stored CDN
// files.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"infinitecanvas/internal/generation"
	applog "infinitecanvas/internal/log"
	"infinitecanvas/internal/provider"
	"infinitecanvas/internal/upload"
	"infinitecanvas/internal/version"
)

// Config holds the HTTP-level settings.
type Config struct {
	// StaticDir holds the built client; index.html answers unknown paths.
	StaticDir string
	// AuthSecret enables bearer auth on the API routes when set.
	AuthSecret string
	// RatePerMinute and RateBurst bound generation calls per client; zero
	// disables limiting.
	RatePerMinute int
	RateBurst     int
	// MaxUploadBytes caps /upload bodies.
	MaxUploadBytes int64
}

// DefaultMaxUpload is the /upload cap when Config leaves it unset.
const DefaultMaxUpload = 20 << 20

// Deps are the collaborators of the server.
type Deps struct {
	// Provider serves every request when set; the server-side key wins over
	// request tokens.
	Provider provider.Provider
	// NewProvider builds a provider from a request's replicateToken.
	NewProvider func(ctx context.Context, apiKey string) (provider.Provider, error)
	Uploader    upload.Uploader
	// CDN serves locally stored uploads under /cdn/.
	CDN  http.Handler
	Jobs JobLog
	// DB is pinged by /readyz when set.
	DB *sql.DB
}

// Server wires the routes.
type Server struct {
	cfg     Config
	deps    Deps
	limiter *limiter
	log     *slog.Logger
}

func New(cfg Config, deps Deps) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUpload
	}
	if deps.Jobs == nil {
		deps.Jobs = NewMemJobs(defaultMemJobs)
	}
	return &Server{
		cfg:     cfg,
		deps:    deps,
		limiter: newLimiter(cfg.RatePerMinute, cfg.RateBurst),
		log:     applog.WithComponent("server"),
	}
}

// Handler returns the root handler with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(version.String()))
	})
	mux.HandleFunc("POST /api/auth/token", s.handleToken)
	mux.Handle("GET /api/jobs", s.guard(false, s.handleJobs))

	mux.Handle("POST "+generation.RouteImagine, s.guard(true, s.handleImagine))
	mux.Handle("POST "+generation.RouteImageToImage, s.guard(true, s.handleImageVariations(generation.RouteImageToImage)))
	mux.Handle("POST "+generation.RouteSketchToImage, s.guard(true, s.handleImageVariations(generation.RouteSketchToImage)))
	mux.Handle("POST "+generation.RouteUpscale, s.guard(true, s.handleUpscale))
	mux.Handle("POST "+generation.RouteUpload, s.guard(true, s.handleUpload))

	if s.deps.CDN != nil {
		mux.Handle("GET /cdn/", http.StripPrefix("/cdn", s.deps.CDN))
	}
	if s.cfg.StaticDir != "" {
		mux.Handle("GET /", spa(s.cfg.StaticDir))
	}
	return s.logRequests(mux)
}

// guard applies auth and, for generation routes, the rate limit.
func (s *Server) guard(limited bool, next http.HandlerFunc) http.Handler {
	h := http.Handler(next)
	if limited {
		h = s.limiter.wrap(h)
	}
	if s.cfg.AuthSecret != "" {
		h = withAuth(s.cfg.AuthSecret, h)
	}
	return h
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Uploader == nil {
		http.Error(w, "no uploader", http.StatusServiceUnavailable)
		return
	}
	if s.deps.Provider == nil && s.deps.NewProvider == nil {
		http.Error(w, "no provider", http.StatusServiceUnavailable)
		return
	}
	if s.deps.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.DB.PingContext(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
	}
	_, _ = w.Write([]byte("ready"))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := applog.ContextWith(r.Context(),
			slog.String("req", uuid.NewString()),
			slog.String("path", r.URL.Path),
		)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))
		level := slog.LevelDebug
		if strings.HasPrefix(r.URL.Path, "/api/") || isGenerationRoute(r.URL.Path) {
			level = slog.LevelInfo
		}
		if rec.status >= 500 {
			level = slog.LevelError
		}
		s.log.Log(ctx, level, "request",
			slog.String("method", r.Method),
			slog.Int("status", rec.status),
			slog.Duration("took", time.Since(start)))
	})
}

func isGenerationRoute(p string) bool {
	switch p {
	case generation.RouteImagine, generation.RouteImageToImage, generation.RouteSketchToImage,
		generation.RouteUpscale, generation.RouteUpload:
		return true
	}
	return false
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Info("listening", slog.String("addr", addr), slog.String("version", version.String()))
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	s.log.Info("shutting down")
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
