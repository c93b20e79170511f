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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"infinitecanvas/internal/generation"
	applog "infinitecanvas/internal/log"
	"infinitecanvas/internal/provider"
)

const maxJSONBody = 1 << 20

var errBadRequest = errors.New("bad request")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, generation.ErrorResponse{Error: err.Error()})
}

// fail maps an error to a response: request problems are 400, the rest 500.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, errBadRequest) {
		status = http.StatusBadRequest
	}
	s.log.WarnContext(r.Context(), "request failed", slog.Any("err", err), slog.Int("status", status))
	writeError(w, status, err)
}

func decode(r *http.Request, dest any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(dest); err != nil {
		return fmt.Errorf("%w: invalid json: %v", errBadRequest, err)
	}
	return nil
}

func required(name, v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("%w: %s is required", errBadRequest, name)
	}
	return nil
}

// providerFor picks the configured provider, or builds one from the
// request token when the server has no key of its own.
func (s *Server) providerFor(ctx context.Context, token string) (provider.Provider, error) {
	if s.deps.Provider != nil {
		return s.deps.Provider, nil
	}
	if token != "" && s.deps.NewProvider != nil {
		return s.deps.NewProvider(ctx, token)
	}
	return nil, provider.ErrMissingAPIKey
}

// store uploads every image in parallel, keeping the provider order.
func (s *Server) store(ctx context.Context, imgs []provider.Image) ([]string, error) {
	if len(imgs) == 0 {
		return nil, provider.ErrNoImage
	}
	urls := make([]string, len(imgs))
	g, gctx := errgroup.WithContext(ctx)
	for i, img := range imgs {
		g.Go(func() error {
			u, err := s.deps.Uploader.UploadBytes(gctx, img.Data, img.MIME)
			if err != nil {
				return fmt.Errorf("upload output %d: %w", i, err)
			}
			urls[i] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return urls, nil
}

// track records a finished request in the job log.
func (s *Server) track(ctx context.Context, route, prompt string, start time.Time, urls []string, err error) {
	j := Job{
		Route:      route,
		Prompt:     prompt,
		Status:     JobOK,
		DurationMs: time.Since(start).Milliseconds(),
		URLs:       urls,
		CreatedAt:  start.UTC(),
	}
	if err != nil {
		j.Status, j.Error = JobFailed, err.Error()
	}
	if rerr := s.deps.Jobs.Record(context.WithoutCancel(ctx), j); rerr != nil {
		s.log.WarnContext(ctx, "job log write failed", slog.Any("err", rerr))
	}
}

func (s *Server) handleImagine(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req generation.ImagineRequest
	err := decode(r, &req)
	if err == nil {
		err = required("prompt", req.Prompt)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ctx := applog.ContextWith(r.Context(), slog.String("route", generation.RouteImagine))
	urls, err := s.imagine(ctx, req)
	s.track(ctx, generation.RouteImagine, req.Prompt, start, urls, err)
	if err != nil {
		s.fail(w, r.WithContext(ctx), err)
		return
	}
	writeJSON(w, http.StatusOK, generation.VariationsResponse{Variations: urls})
}

func (s *Server) imagine(ctx context.Context, req generation.ImagineRequest) ([]string, error) {
	p, err := s.providerFor(ctx, req.ReplicateToken)
	if err != nil {
		return nil, err
	}
	imgs, err := p.TextToImage(ctx, req.Prompt, provider.TextToImageOutputs)
	if err != nil {
		return nil, err
	}
	return s.store(ctx, imgs)
}

func (s *Server) handleImageVariations(route string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		var req generation.ImageRequest
		err := decode(r, &req)
		if err == nil {
			err = errors.Join(required("prompt", req.Prompt), required("url", req.URL))
		}
		if err != nil {
			s.fail(w, r, err)
			return
		}
		ctx := applog.ContextWith(r.Context(), slog.String("route", route))
		urls, err := s.variations(ctx, route, req)
		s.track(ctx, route, req.Prompt, start, urls, err)
		if err != nil {
			s.fail(w, r.WithContext(ctx), err)
			return
		}
		writeJSON(w, http.StatusOK, generation.VariationsResponse{Variations: urls})
	}
}

func (s *Server) variations(ctx context.Context, route string, req generation.ImageRequest) ([]string, error) {
	p, err := s.providerFor(ctx, req.ReplicateToken)
	if err != nil {
		return nil, err
	}
	call := p.ImageToImage
	if route == generation.RouteSketchToImage {
		call = p.SketchToImage
	}
	imgs, err := call(ctx, req.Prompt, req.URL)
	if err != nil {
		return nil, err
	}
	return s.store(ctx, imgs)
}

func (s *Server) handleUpscale(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req generation.UpscaleRequest
	err := decode(r, &req)
	if err == nil {
		err = required("url", req.URL)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ctx := applog.ContextWith(r.Context(), slog.String("route", generation.RouteUpscale))
	urls, err := s.upscale(ctx, req)
	s.track(ctx, generation.RouteUpscale, "", start, urls, err)
	if err != nil {
		s.fail(w, r.WithContext(ctx), err)
		return
	}
	writeJSON(w, http.StatusOK, generation.UpscaleResponse{Upscaled: urls[0]})
}

func (s *Server) upscale(ctx context.Context, req generation.UpscaleRequest) ([]string, error) {
	p, err := s.providerFor(ctx, req.ReplicateToken)
	if err != nil {
		return nil, err
	}
	img, err := p.Upscale(ctx, req.URL)
	if err != nil {
		return nil, err
	}
	return s.store(ctx, []provider.Image{img})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	f, hdr, err := r.FormFile("file")
	if err != nil {
		s.fail(w, r, fmt.Errorf("%w: file: %v", errBadRequest, err))
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		s.fail(w, r, fmt.Errorf("%w: read file: %v", errBadRequest, err))
		return
	}
	mime := hdr.Header.Get("Content-Type")
	if mime == "" || mime == "application/octet-stream" {
		mime = http.DetectContentType(data)
	}
	url, err := s.deps.Uploader.UploadBytes(r.Context(), data, mime)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, generation.UploadResponse{CDNURL: url})
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.fail(w, r, fmt.Errorf("%w: invalid limit", errBadRequest))
			return
		}
		limit = min(n, 500)
	}
	jobs, err := s.deps.Jobs.List(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}
