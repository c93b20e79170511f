/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package log provides centralized slog-based logging for infinitecanvas.
// Records go to a console handler (one line per record, or JSON) and,
// optionally, to a rotated JSON file. Attributes stored in a context with
// ContextWith (request id, node id, route) are added to every record logged
// with that context.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"infinitecanvas/internal/version"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Options controls logger initialization.
// Values can be provided directly or via environment variables:
//   - ICV_LOG_LEVEL=debug|info|warn|error
//   - ICV_LOG_FORMAT=console|json
//   - ICV_LOG_FILE=<path> (enables file logging with rotation)
//   - ICV_LOG_SOURCE=true|false (include source)
//
// Defaults: INFO level, console format, no source, stderr.
type Options struct {
	Level     string
	Format    string // "console" or "json"
	AddSource bool
	File      string // optional path for file logging (rotated)
	// Console overrides the console destination (stderr when nil).
	Console io.Writer
}

var current atomic.Pointer[slog.Logger]

// L returns the default application logger, initializing from env if needed.
func L() *slog.Logger {
	if l := current.Load(); l != nil {
		return l
	}
	Init(FromEnv())
	return current.Load()
}

// Init installs the logger built from opts and makes it the slog default.
func Init(opts Options) {
	l := slog.New(NewHandler(opts)).With(
		slog.String("app", "infinitecanvas"),
		slog.String("ver", version.String()),
		slog.Time("ts_init", time.Now()),
	)
	current.Store(l)
	slog.SetDefault(l)
}

// NewHandler builds the handler chain Init installs.
func NewHandler(opts Options) slog.Handler {
	level := parseLevel(opts.Level)
	out := opts.Console
	if out == nil {
		out = os.Stderr
	}
	var hs fanout
	if strings.EqualFold(strings.TrimSpace(opts.Format), "json") {
		hs = append(hs, slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level, AddSource: opts.AddSource}))
	} else {
		hs = append(hs, newConsoleHandler(out, level, opts.AddSource))
	}
	if file := strings.TrimSpace(opts.File); file != "" {
		w := &lj.Logger{Filename: file, MaxSize: 10, MaxBackups: 3, MaxAge: 28, Compress: true}
		hs = append(hs, slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level, AddSource: opts.AddSource}))
	}
	if len(hs) == 1 {
		return contextAttrs{hs[0]}
	}
	return contextAttrs{hs}
}

// FromEnv builds Options from environment variables.
func FromEnv() Options {
	src, _ := strconv.ParseBool(strings.TrimSpace(os.Getenv("ICV_LOG_SOURCE")))
	return Options{
		Level:     getenv("ICV_LOG_LEVEL", "info"),
		Format:    getenv("ICV_LOG_FORMAT", "console"),
		AddSource: src,
		File:      strings.TrimSpace(os.Getenv("ICV_LOG_FILE")),
	}
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithComponent returns a logger with the component attribute pre-set.
func WithComponent(name string) *slog.Logger { return L().With(slog.String("component", name)) }

// WithOperation annotates the logger with an operation name.
func WithOperation(l *slog.Logger, op string) *slog.Logger { return l.With(slog.String("op", op)) }

type ctxKey struct{}

// ContextWith returns a context carrying attrs that every record logged with
// that context (InfoContext, WarnContext, ...) will include.
func ContextWith(ctx context.Context, attrs ...slog.Attr) context.Context {
	if len(attrs) == 0 {
		return ctx
	}
	prev := AttrsFrom(ctx)
	merged := make([]slog.Attr, 0, len(prev)+len(attrs))
	merged = append(append(merged, prev...), attrs...)
	return context.WithValue(ctx, ctxKey{}, merged)
}

// AttrsFrom returns the attributes stored by ContextWith.
func AttrsFrom(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	attrs, _ := ctx.Value(ctxKey{}).([]slog.Attr)
	return attrs
}
