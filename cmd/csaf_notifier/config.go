// This file is Free Software under the MIT License
// without warranty, see README.md and LICENSES/MIT.txt for details.
//
// SPDX-License-Identifier: MIT
//
// SPDX-FileCopyrightText: 2024 German Federal Office for Information Security (BSI) <https://www.bsi.bund.de>
// Software-Engineering: 2024 Intevation GmbH <https://intevation.de>

package main

import (
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/csaf-poc/csaf_harvester/internal/dedupe"
	"github.com/csaf-poc/csaf_harvester/internal/metrics"
	"github.com/csaf-poc/csaf_harvester/internal/options"
)

const (
	defaultOutput   = "output"
	defaultCacheTTL = int(dedupe.DefaultTTL / (24 * time.Hour))
)

type config struct {
	Output string `short:"o" long:"output" description:"DIRectory containing the daily reports" value-name:"DIR" toml:"output"`

	TelegramToken  string `long:"telegram_token" env:"TELEGRAM_BOT_TOKEN" description:"TOKEN of the Telegram bot" value-name:"TOKEN" toml:"telegram_token"`
	TelegramChatID string `long:"telegram_chat_id" env:"TELEGRAM_CHAT_ID" description:"ID of the Telegram chat to notify" value-name:"ID" toml:"telegram_chat_id"`
	TelegramAPI    string `long:"telegram_api" description:"BASE URL of the Telegram Bot API" value-name:"BASE" toml:"telegram_api"`

	TeamsWebhook string         `long:"teams_webhook" env:"TEAMS_WEBHOOK_URL" description:"URL of the Microsoft Teams incoming webhook" value-name:"URL" toml:"teams_webhook"`
	EnableTeams  options.Toggle `long:"enable_teams" env:"ENABLE_TEAMS" description:"Post to Microsoft Teams (1/0, true/false, yes/no, on/off)" optional:"yes" optional-value:"true" toml:"enable_teams"`
	TeamsStatus  options.Toggle `long:"teams_status" env:"TEAMS_STATUS" description:"Post a status card to Teams if there are no new high-risk advisories" optional:"yes" optional-value:"true" toml:"teams_status"`
	RunURL       string         `long:"run_url" env:"RUN_URL" description:"URL of the pipeline run linked in Teams cards" value-name:"URL" toml:"run_url"`

	NoDedupe     options.Toggle `long:"no_dedupe" env:"NO_DEDUPE" description:"Send all high-risk advisories and record nothing" optional:"yes" optional-value:"true" toml:"no_dedupe"`
	CacheBackend dedupe.Backend `long:"cache_backend" description:"BACKEND of the sent-cache" choice:"json" choice:"bolt" choice:"redis" value-name:"BACKEND" toml:"cache_backend"`
	CacheFile    string         `long:"cache_file" description:"FILE of the json or bolt sent-cache (defaults to a file in the output directory)" value-name:"FILE" toml:"cache_file"`
	CacheTTL     int            `long:"cache_ttl" description:"DAYS sent advisories are remembered" value-name:"DAYS" toml:"cache_ttl"`
	RedisURL     string         `long:"redis_url" env:"REDIS_URL" description:"URL of the redis sent-cache" value-name:"URL" toml:"redis_url"`
	RedisPrefix  string         `long:"redis_prefix" description:"PREFIX of the redis keys" value-name:"PREFIX" toml:"redis_prefix"`

	LogLevel    *options.LogLevel `long:"log_level" description:"LEVEL of logging details" value-name:"LEVEL" choice:"debug" choice:"info" choice:"warn" choice:"error" toml:"log_level"`
	LogFormat   options.LogFormat `long:"log_format" description:"FORMAT of the log output" value-name:"FORMAT" choice:"text" choice:"json" toml:"log_format"`
	Debug       options.Toggle    `long:"debug" env:"DEBUG" description:"Log debug messages" optional:"yes" optional-value:"true" toml:"debug"`
	LockFile    string            `long:"lock_file" description:"FILE to lock to prevent concurrent runs" value-name:"FILE" toml:"lock_file"`
	MetricsFile string            `long:"metrics_file" description:"FILE to write run metrics to in Prometheus text format" value-name:"FILE" toml:"metrics_file"`

	Version bool   `long:"version" description:"Display version of the binary" toml:"-"`
	Config  string `short:"c" long:"config" description:"Path to config TOML file" value-name:"TOML-FILE" toml:"-"`

	logger  *slog.Logger
	metrics *metrics.Run
}

// configPaths are the potential file locations of the config file.
var configPaths = []string{
	"~/.config/csaf/notifier.toml",
	"~/.csaf_notifier.toml",
	"csaf_notifier.toml",
}

// setDefaults pre-inits the configuration.
func setDefaults(cfg *config) {
	cfg.Output = defaultOutput
	cfg.EnableTeams = options.NewToggle(true)
	cfg.CacheBackend = dedupe.BackendJSON
	cfg.CacheTTL = defaultCacheTTL
	cfg.RedisPrefix = dedupe.DefaultRedisPrefix
	cfg.LogFormat = options.TextLogFormat
}

// ensureDefaults re-establishes default values if not set.
func ensureDefaults(cfg *config) {
	if cfg.Output == "" {
		cfg.Output = defaultOutput
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = dedupe.BackendJSON
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.RedisPrefix == "" {
		cfg.RedisPrefix = dedupe.DefaultRedisPrefix
	}
}

// parseArgsConfig parses the command line and if need a config file.
func parseArgsConfig() ([]string, *config, error) {
	p := options.Parser[config]{
		DefaultConfigLocations: configPaths,
		ConfigLocation:         func(cfg *config) string { return cfg.Config },
		Usage:                  "[OPTIONS]",
		HasVersion:             func(cfg *config) bool { return cfg.Version },
		SetDefaults:            setDefaults,
		EnsureDefaults:         ensureDefaults,
	}
	return p.Parse()
}

// cacheFile returns the file of the sent-cache.
func (cfg *config) cacheFile() string {
	if cfg.CacheFile != "" {
		return cfg.CacheFile
	}
	if cfg.CacheBackend == dedupe.BackendBolt {
		return filepath.Join(cfg.Output, "sent_cache.db")
	}
	return filepath.Join(cfg.Output, "sent_cache.json")
}

// prepareLogging sets up the structured logging.
func (cfg *config) prepareLogging(w io.Writer) {
	cfg.logger = options.NewLogger(w, cfg.LogFormat, cfg.LogLevel, cfg.Debug.Enabled())
	slog.SetDefault(cfg.logger)
}

// prepare prepares internal state of a loaded configuration.
func (cfg *config) prepare() error {
	if cfg.MetricsFile != "" {
		cfg.metrics = metrics.NewRun("csaf_notifier")
	}
	return nil
}
