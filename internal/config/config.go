/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are treated as read-only overrides at runtime.
//
// config_version: bump when the structure changes in a backward-incompatible way.
// Unknown fields are ignored on unmarshal.

type GeneralConfig struct {
	TelemetryOptIn bool `yaml:"telemetry_opt_in"`
}

// GenerationConfig points the workspace at the proxy server.
type GenerationConfig struct {
	APIURL    string `yaml:"api_url"`
	TimeoutMs int    `yaml:"timeout_ms"` // 0 keeps requests unbounded
	// The API key is not stored on disk; it lives in the OS keychain.
}

type ServerConfig struct {
	Addr          string `yaml:"addr"`
	StaticDir     string `yaml:"static_dir"`
	CDNDir        string `yaml:"cdn_dir"`
	PublicBaseURL string `yaml:"public_base_url"`
	UploadBaseURL string `yaml:"upload_base_url"`
	CDNPublicKey  string `yaml:"cdn_public_key"`
	DatabaseURL   string `yaml:"database_url"`
	AuthSecret    string `yaml:"auth_secret"`
	RatePerMinute int    `yaml:"rate_per_minute"`
	RateBurst     int    `yaml:"rate_burst"`
	Backend       string `yaml:"backend"` // "gemini" | "vertex" | "offline"
	TextModel     string `yaml:"text_model"`
	ImageModel    string `yaml:"image_model"`
	UpscaleModel  string `yaml:"upscale_model"`
}

type StorageConfig struct {
	Driver string `yaml:"driver"` // "sqlite" | "postgres"
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

type ViewportConfig struct {
	ThrottleMs int `yaml:"throttle_ms"`
	SettleMs   int `yaml:"settle_ms"`
	Width      int `yaml:"width"`
	Height     int `yaml:"height"`
}

type WorkspaceConfig struct {
	PersistThrottleMs int  `yaml:"persist_throttle_ms"`
	SeedDemo          bool `yaml:"seed_demo"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

type AppConfig struct {
	ConfigVersion int              `yaml:"config_version"`
	General       GeneralConfig    `yaml:"general"`
	Generation    GenerationConfig `yaml:"generation"`
	Server        ServerConfig     `yaml:"server"`
	Storage       StorageConfig    `yaml:"storage"`
	Viewport      ViewportConfig   `yaml:"viewport"`
	Workspace     WorkspaceConfig  `yaml:"workspace"`
	Logging       LoggingConfig    `yaml:"logging"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		General:       GeneralConfig{TelemetryOptIn: false},
		Generation:    GenerationConfig{APIURL: "http://localhost:3000", TimeoutMs: 0},
		Server: ServerConfig{
			Addr:          ":3000",
			StaticDir:     "dist",
			CDNDir:        "",
			UploadBaseURL: "https://upload.uploadcare.com",
			RatePerMinute: 30,
			RateBurst:     5,
			Backend:       "gemini",
			TextModel:     "imagen-4.0-generate-001",
			ImageModel:    "gemini-2.5-flash-image",
			UpscaleModel:  "imagen-4.0-upscale-preview",
		},
		Storage:   StorageConfig{Driver: "sqlite"},
		Viewport:  ViewportConfig{ThrottleMs: 50, SettleMs: 420, Width: 1500, Height: 1000},
		Workspace: WorkspaceConfig{PersistThrottleMs: 1000, SeedDemo: true},
		Logging:   LoggingConfig{Level: "info", Format: "console"},
	}
}

// Env var names used as overrides.
const (
	EnvConfigPath     = "ICV_CONFIG"
	EnvAPIURL         = "ICV_API_URL"
	EnvAPITimeoutMs   = "ICV_API_TIMEOUT_MS"
	EnvAPIKey         = "ICV_API_KEY"
	EnvServerAddr     = "ICV_ADDR"
	EnvStaticDir      = "ICV_STATIC_DIR"
	EnvCDNDir         = "ICV_CDN_DIR"
	EnvCDNPublicKey   = "ICV_CDN_PUBLIC_KEY"
	EnvPublicBaseURL  = "ICV_PUBLIC_BASE_URL"
	EnvDatabaseURL    = "ICV_DATABASE_URL"
	EnvAuthSecret     = "ICV_AUTH_SECRET"
	EnvBackend        = "ICV_BACKEND"
	EnvStorageDriver  = "ICV_STORAGE_DRIVER"
	EnvStoragePath    = "ICV_STORAGE_PATH"
	EnvStorageDSN     = "ICV_STORAGE_DSN"
	EnvTelemetryOptIn = "ICV_TELEMETRY_OPT_IN"
	EnvSeedDemo       = "ICV_SEED_DEMO"
	EnvLogLevel       = "ICV_LOG_LEVEL"
	EnvLogFormat      = "ICV_LOG_FORMAT"
	EnvLogSource      = "ICV_LOG_SOURCE"
	EnvLogFile        = "ICV_LOG_FILE"
	EnvPort           = "PORT"
)

// Service/keys for OS keyring.
const (
	keyringService = "InfiniteCanvas"
	keyringAPIKey  = "generation_api_key"
)

// tokenStore abstracts keyring, so we can stub in tests.
var tokenStore TokenStore = osKeyring{}

type TokenStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

// SetTokenStore swaps the keyring backend and returns the previous one.
func SetTokenStore(ts TokenStore) TokenStore {
	prev := tokenStore
	tokenStore = ts
	return prev
}

// ConfigPath returns the per-user config file path.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p, nil
	}
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "InfiniteCanvas")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "InfiniteCanvas")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = filepath.Join(xdg, "infinitecanvas")
		} else {
			base = filepath.Join(os.Getenv("HOME"), ".config", "infinitecanvas")
		}
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// DataDir returns the directory holding the workspace database next to the config file.
func DataDir() (string, error) {
	p, err := ConfigPath()
	if err != nil {
		return "", err
	}
	return filepath.Dir(p), nil
}

// Load reads the user config file (if present), applies defaults, and merges environment overrides.
// The generation API key is read from ICV_API_KEY or, failing that, from the keyring.
func Load() (AppConfig, string, error) {
	path, err := ConfigPath()
	if err != nil {
		return Defaults(), "", err
	}
	cfg, err := LoadFrom(path)
	if err != nil {
		return cfg, "", err
	}
	return cfg, APIKey(), nil
}

// LoadFrom reads the config at path; a missing file yields defaults plus env overrides.
func LoadFrom(path string) (AppConfig, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
		mergeInto(&cfg, &fileCfg)
	case !errors.Is(err, os.ErrNotExist):
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// APIKey returns the generation API key from the environment or the keyring ("" when unset).
func APIKey() string {
	if v := strings.TrimSpace(os.Getenv(EnvAPIKey)); v != "" {
		return v
	}
	tok, _ := tokenStore.Get(keyringService, keyringAPIKey)
	return tok
}

// SetAPIKey stores the key in the keyring; an empty key deletes it.
func SetAPIKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return tokenStore.Delete(keyringService, keyringAPIKey)
	}
	return tokenStore.Set(keyringService, keyringAPIKey, key)
}

// Save writes the user config YAML and persists the API key into the OS keyring (if non-empty).
func Save(cfg AppConfig, apiKey string) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := SaveTo(path, cfg); err != nil {
		return err
	}
	if apiKey != "" {
		if err := SetAPIKey(apiKey); err != nil {
			return fmt.Errorf("store api key: %w", err)
		}
	}
	return nil
}

// SaveTo writes cfg as YAML to path.
func SaveTo(path string, cfg AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	// booleans: copy directly from src (file) so user preferences persist
	dst.General.TelemetryOptIn = src.General.TelemetryOptIn
	dst.Workspace.SeedDemo = src.Workspace.SeedDemo

	setStr(&dst.Generation.APIURL, src.Generation.APIURL)
	setInt(&dst.Generation.TimeoutMs, src.Generation.TimeoutMs)

	setStr(&dst.Server.Addr, src.Server.Addr)
	setStr(&dst.Server.StaticDir, src.Server.StaticDir)
	setStr(&dst.Server.CDNDir, src.Server.CDNDir)
	setStr(&dst.Server.PublicBaseURL, src.Server.PublicBaseURL)
	setStr(&dst.Server.UploadBaseURL, src.Server.UploadBaseURL)
	setStr(&dst.Server.CDNPublicKey, src.Server.CDNPublicKey)
	setStr(&dst.Server.DatabaseURL, src.Server.DatabaseURL)
	setStr(&dst.Server.AuthSecret, src.Server.AuthSecret)
	setInt(&dst.Server.RatePerMinute, src.Server.RatePerMinute)
	setInt(&dst.Server.RateBurst, src.Server.RateBurst)
	setStr(&dst.Server.Backend, strings.ToLower(src.Server.Backend))
	setStr(&dst.Server.TextModel, src.Server.TextModel)
	setStr(&dst.Server.ImageModel, src.Server.ImageModel)
	setStr(&dst.Server.UpscaleModel, src.Server.UpscaleModel)

	setStr(&dst.Storage.Driver, strings.ToLower(src.Storage.Driver))
	setStr(&dst.Storage.Path, src.Storage.Path)
	setStr(&dst.Storage.DSN, src.Storage.DSN)

	setInt(&dst.Viewport.ThrottleMs, src.Viewport.ThrottleMs)
	setInt(&dst.Viewport.SettleMs, src.Viewport.SettleMs)
	setInt(&dst.Viewport.Width, src.Viewport.Width)
	setInt(&dst.Viewport.Height, src.Viewport.Height)
	setInt(&dst.Workspace.PersistThrottleMs, src.Workspace.PersistThrottleMs)

	setStr(&dst.Logging.Level, strings.ToLower(src.Logging.Level))
	setStr(&dst.Logging.Format, strings.ToLower(src.Logging.Format))
	dst.Logging.Source = src.Logging.Source
	setStr(&dst.Logging.File, src.Logging.File)
}

func setStr(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func parseBool(v string) bool {
	lv := strings.ToLower(strings.TrimSpace(v))
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

func applyEnvOverrides(cfg *AppConfig) {
	env := func(key string) (string, bool) {
		v := strings.TrimSpace(os.Getenv(key))
		return v, v != ""
	}
	if v, ok := env(EnvAPIURL); ok {
		cfg.Generation.APIURL = v
	}
	if v, ok := env(EnvAPITimeoutMs); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Generation.TimeoutMs = n
		}
	}
	if v, ok := env(EnvPort); ok {
		cfg.Server.Addr = ":" + v
	}
	if v, ok := env(EnvServerAddr); ok {
		cfg.Server.Addr = v
	}
	if v, ok := env(EnvBackend); ok {
		cfg.Server.Backend = strings.ToLower(v)
	}
	if v, ok := env(EnvStaticDir); ok {
		cfg.Server.StaticDir = v
	}
	if v, ok := env(EnvCDNDir); ok {
		cfg.Server.CDNDir = v
	}
	if v, ok := env(EnvCDNPublicKey); ok {
		cfg.Server.CDNPublicKey = v
	}
	if v, ok := env(EnvPublicBaseURL); ok {
		cfg.Server.PublicBaseURL = v
	}
	if v, ok := env(EnvDatabaseURL); ok {
		cfg.Server.DatabaseURL = v
	}
	if v, ok := env(EnvAuthSecret); ok {
		cfg.Server.AuthSecret = v
	}
	if v, ok := env(EnvStorageDriver); ok {
		cfg.Storage.Driver = strings.ToLower(v)
	}
	if v, ok := env(EnvStoragePath); ok {
		cfg.Storage.Path = v
	}
	if v, ok := env(EnvStorageDSN); ok {
		cfg.Storage.DSN = v
	}
	if v, ok := env(EnvTelemetryOptIn); ok {
		cfg.General.TelemetryOptIn = parseBool(v)
	}
	if v, ok := env(EnvSeedDemo); ok {
		cfg.Workspace.SeedDemo = parseBool(v)
	}
	if v, ok := env(EnvLogLevel); ok {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v, ok := env(EnvLogFormat); ok {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v, ok := env(EnvLogSource); ok {
		cfg.Logging.Source = parseBool(v)
	}
	if v, ok := env(EnvLogFile); ok {
		cfg.Logging.File = v
	}
}

var envByKey = map[string][]string{
	"generation.api_url":       {EnvAPIURL},
	"generation.timeout_ms":    {EnvAPITimeoutMs},
	"generation.api_key":       {EnvAPIKey},
	"server.addr":              {EnvServerAddr, EnvPort},
	"server.static_dir":        {EnvStaticDir},
	"server.cdn_dir":           {EnvCDNDir},
	"server.cdn_public_key":    {EnvCDNPublicKey},
	"server.public_base_url":   {EnvPublicBaseURL},
	"server.database_url":      {EnvDatabaseURL},
	"server.auth_secret":       {EnvAuthSecret},
	"server.backend":           {EnvBackend},
	"storage.driver":           {EnvStorageDriver},
	"storage.path":             {EnvStoragePath},
	"storage.dsn":              {EnvStorageDSN},
	"general.telemetry_opt_in": {EnvTelemetryOptIn},
	"workspace.seed_demo":      {EnvSeedDemo},
	"logging.level":            {EnvLogLevel},
	"logging.format":           {EnvLogFormat},
	"logging.source":           {EnvLogSource},
	"logging.file":             {EnvLogFile},
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	for _, name := range envByKey[key] {
		if os.Getenv(name) != "" {
			return name, true
		}
	}
	return "", false
}

// Timeout returns the request timeout; zero means no timeout.
func (g GenerationConfig) Timeout() time.Duration {
	if g.TimeoutMs <= 0 {
		return 0
	}
	return time.Duration(g.TimeoutMs) * time.Millisecond
}

// Throttle returns the gestural commit interval.
func (v ViewportConfig) Throttle() time.Duration {
	if v.ThrottleMs <= 0 {
		return time.Duration(Defaults().Viewport.ThrottleMs) * time.Millisecond
	}
	return time.Duration(v.ThrottleMs) * time.Millisecond
}

// Settle returns how long an immediate commit is reported as animating.
func (v ViewportConfig) Settle() time.Duration {
	if v.SettleMs <= 0 {
		return time.Duration(Defaults().Viewport.SettleMs) * time.Millisecond
	}
	return time.Duration(v.SettleMs) * time.Millisecond
}

// PersistThrottle returns the interval between durable workspace writes.
func (w WorkspaceConfig) PersistThrottle() time.Duration {
	if w.PersistThrottleMs <= 0 {
		return time.Duration(Defaults().Workspace.PersistThrottleMs) * time.Millisecond
	}
	return time.Duration(w.PersistThrottleMs) * time.Millisecond
}
