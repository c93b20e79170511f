/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"infinitecanvas/internal/config"
	"infinitecanvas/internal/imgutil"
	applog "infinitecanvas/internal/log"
	"infinitecanvas/internal/provider"
	"infinitecanvas/internal/server"
	"infinitecanvas/internal/storage"
	"infinitecanvas/internal/upload"

	"github.com/spf13/cobra"
)

func newServeCmd(st *state) *cobra.Command {
	var addr, backend string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the generation proxy and serve the web client",
		Long: `Serve exposes the *-variations generation routes, /upscale and /upload,
serves the built client from server.static_dir and, with server.cdn_dir set, stores
uploads locally under /cdn/.

Backends: gemini (API key from the keychain, ICV_API_KEY or each request's
replicateToken), vertex (GOOGLE_CLOUD_PROJECT / GOOGLE_CLOUD_LOCATION with
application default credentials) and offline (placeholder images, no credentials).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sc := st.cfg.Server
			if addr != "" {
				sc.Addr = addr
			}
			if backend != "" {
				sc.Backend = strings.ToLower(backend)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, sc, st.apiKey)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	cmd.Flags().StringVar(&backend, "backend", "", "image backend: gemini, vertex or offline")
	return cmd
}

func serve(ctx context.Context, sc config.ServerConfig, apiKey string) error {
	l := applog.WithOperation(applog.WithComponent("cli"), "serve")
	fetcher := imgutil.NewFetcher()

	var deps server.Deps
	switch {
	case sc.CDNDir != "":
		base := sc.PublicBaseURL
		if base == "" {
			base = "http://localhost" + sc.Addr
			if !strings.HasPrefix(sc.Addr, ":") {
				base = "http://" + sc.Addr
			}
		}
		cdn, err := upload.NewLocalCDN(sc.CDNDir, strings.TrimRight(base, "/")+"/cdn")
		if err != nil {
			return err
		}
		// providers read back what the local CDN stored
		fetcher.AllowPrivate = true
		cdn.Fetcher = fetcher
		deps.Uploader = cdn
		deps.CDN = cdn
	case sc.CDNPublicKey != "":
		deps.Uploader = upload.NewHTTPCDN(sc.UploadBaseURL, sc.CDNPublicKey)
	default:
		l.Warn("no CDN configured; generation requests will fail until server.cdn_dir or server.cdn_public_key is set")
	}

	newGemini := func(ctx context.Context, key string) (provider.Provider, error) {
		return provider.NewGemini(ctx, geminiConfig(sc, key), fetcher)
	}
	switch sc.Backend {
	case "offline":
		deps.Provider = provider.Offline{Fetcher: fetcher}
	case "vertex":
		p, err := newGemini(ctx, "")
		if err != nil {
			return fmt.Errorf("vertex backend: %w", err)
		}
		deps.Provider = p
	case "", "gemini":
		if apiKey != "" {
			p, err := newGemini(ctx, apiKey)
			if err != nil {
				return fmt.Errorf("gemini backend: %w", err)
			}
			deps.Provider = p
		}
		deps.NewProvider = newGemini
	default:
		return fmt.Errorf("unknown backend %q", sc.Backend)
	}

	if sc.DatabaseURL != "" {
		db, err := storage.OpenPG(ctx, sc.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open job database: %w", err)
		}
		defer db.Close()
		jobs, err := server.NewPGJobs(ctx, db)
		if err != nil {
			return fmt.Errorf("job log: %w", err)
		}
		deps.DB = db
		deps.Jobs = jobs
	}

	srv := server.New(server.Config{
		StaticDir:     sc.StaticDir,
		AuthSecret:    sc.AuthSecret,
		RatePerMinute: sc.RatePerMinute,
		RateBurst:     sc.RateBurst,
	}, deps)
	l.Info("serving", slog.String("addr", sc.Addr), slog.String("backend", sc.Backend), slog.Bool("local_cdn", sc.CDNDir != ""))
	return srv.ListenAndServe(ctx, sc.Addr)
}

func geminiConfig(sc config.ServerConfig, key string) provider.GeminiConfig {
	return provider.GeminiConfig{
		APIKey:       key,
		Vertex:       sc.Backend == "vertex",
		Project:      os.Getenv("GOOGLE_CLOUD_PROJECT"),
		Location:     os.Getenv("GOOGLE_CLOUD_LOCATION"),
		TextModel:    sc.TextModel,
		ImageModel:   sc.ImageModel,
		UpscaleModel: sc.UpscaleModel,
	}
}
