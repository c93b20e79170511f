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
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"infinitecanvas/internal/config"
	"infinitecanvas/internal/generation"
	applog "infinitecanvas/internal/log"
	"infinitecanvas/internal/storage"
	"infinitecanvas/internal/telemetry"
	"infinitecanvas/internal/version"
	"infinitecanvas/internal/workspace"

	"github.com/spf13/cobra"
)

// state is shared by the subcommands of one invocation.
type state struct {
	configPath string
	logLevel   string
	token      string

	cfg    config.AppConfig
	apiKey string
}

func newRootCmd() *cobra.Command {
	st := &state{}
	root := &cobra.Command{
		Use:   "infinitecanvas",
		Short: "Infinite canvas of AI generated images",
		Long: `Infinite Canvas keeps a graph of generated images on an unbounded 2D canvas.
Every node is a set of four prompt variations or a single upscaled image derived
from one of them. The CLI edits the same workspace the web client uses and can run
the generation proxy that serves that client.

Examples:
  infinitecanvas serve                          # proxy + client on :3000
  infinitecanvas generate "a lighthouse at dusk" # four variations
  infinitecanvas upscale <id> 2                 # upscale the third variation
  infinitecanvas tree                           # show the graph
  infinitecanvas export png canvas.png          # render a map of the canvas`,
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return st.init()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			telemetry.Default().Flush(ctx)
		},
	}
	root.PersistentFlags().StringVar(&st.configPath, "config", "", "config file (default: per-user config dir)")
	root.PersistentFlags().StringVar(&st.logLevel, "log-level", "", "override the log level (debug|info|warn|error)")
	root.PersistentFlags().StringVar(&st.token, "token", os.Getenv("ICV_TOKEN"), "bearer token for a proxy with auth enabled")

	root.AddCommand(
		newVersionCmd(),
		newServeCmd(st),
		newGenerateCmd(st),
		newVariationCmd(st),
		newUpscaleCmd(st),
		newCanvasCmd(st),
		newPromoteCmd(st),
		newEditCmd(st),
		newDeleteCmd(st),
		newListCmd(st),
		newTreeCmd(st),
		newFocusCmd(st),
		newHistoryCmd(st, "back", -1),
		newHistoryCmd(st, "forward", 1),
		newBookmarkCmd(st),
		newCenterCmd(st),
		newExportCmd(st),
		newImportCmd(st),
		newConfigCmd(st),
	)
	return root
}

func (st *state) init() error {
	if st.configPath != "" {
		if err := os.Setenv(config.EnvConfigPath, st.configPath); err != nil {
			return err
		}
	}
	cfg, key, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	st.cfg, st.apiKey = cfg, key

	opts := applog.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.Source,
		File:      cfg.Logging.File,
	}
	if st.logLevel != "" {
		opts.Level = st.logLevel
	}
	applog.Init(opts)

	tcfg := telemetry.FromEnv()
	tcfg.OptIn = tcfg.OptIn || cfg.General.TelemetryOptIn
	telemetry.NewDefault(tcfg)
	applog.WithComponent("cli").Debug("config loaded", slog.String("backend", cfg.Server.Backend), slog.String("storage", cfg.Storage.Driver))
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "Infinite Canvas", version.String())
		},
	}
}

// current is the open workspace, for the crash autosave.
var (
	currentMu sync.Mutex
	current   *workspace.Workspace
)

func setCurrent(ws *workspace.Workspace) {
	currentMu.Lock()
	current = ws
	currentMu.Unlock()
}

var errNoWorkspace = errors.New("no workspace open")

func autosave(dir string) (string, error) {
	currentMu.Lock()
	ws := current
	currentMu.Unlock()
	if ws == nil {
		return "", errNoWorkspace
	}
	return ws.AutosaveCrash(dir)
}

func openStore(ctx context.Context, sc config.StorageConfig) (storage.KV, error) {
	switch strings.ToLower(sc.Driver) {
	case "postgres", "pg":
		if sc.DSN == "" {
			return nil, errors.New("storage.dsn is required for the postgres driver")
		}
		return storage.OpenPostgres(ctx, sc.DSN)
	case "memory":
		return storage.NewMemKV(), nil
	case "", "sqlite":
		path := sc.Path
		if path == "" {
			dir, err := config.DataDir()
			if err != nil {
				return nil, err
			}
			path = filepath.Join(dir, "workspace.db")
		}
		return storage.OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", sc.Driver)
	}
}

// openWorkspace loads the saved workspace. The returned close func waits for
// in-flight generation, saves and releases the store.
func (st *state) openWorkspace(ctx context.Context) (*workspace.Workspace, func(), error) {
	kv, err := openStore(ctx, st.cfg.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("open storage: %w", err)
	}
	client := generation.NewClient(st.cfg.Generation.APIURL, 0)
	client.APIKey = st.apiKey
	client.Token = st.token

	ws := workspace.New(workspace.Options{
		Generator:        client,
		Uploader:         client,
		Store:            kv,
		Events:           telemetry.Default(),
		ViewWidth:        float64(st.cfg.Viewport.Width),
		ViewHeight:       float64(st.cfg.Viewport.Height),
		ViewportThrottle: st.cfg.Viewport.Throttle(),
		ViewportSettle:   st.cfg.Viewport.Settle(),
		PersistThrottle:  st.cfg.Workspace.PersistThrottle(),
		RequestTimeout:   st.cfg.Generation.Timeout(),
		SeedDemo:         st.cfg.Workspace.SeedDemo,
	})
	if err := ws.Load(ctx); err != nil {
		ws.Close()
		_ = kv.Close()
		return nil, nil, fmt.Errorf("load workspace: %w", err)
	}
	setCurrent(ws)
	closeFn := func() {
		ws.Wait()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := ws.Save(sctx); err != nil {
			applog.WithComponent("cli").Error("save failed", slog.Any("err", err))
		}
		ws.Close()
		setCurrent(nil)
		_ = kv.Close()
	}
	return ws, closeFn, nil
}

// withWorkspace runs fn against the open workspace and always saves.
func (st *state) withWorkspace(cmd *cobra.Command, fn func(ws *workspace.Workspace) error) error {
	ws, closeFn, err := st.openWorkspace(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(ws)
}
