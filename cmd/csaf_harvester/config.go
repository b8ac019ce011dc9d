// This file is Free Software under the MIT License
// without warranty, see README.md and LICENSES/MIT.txt for details.
//
// SPDX-License-Identifier: MIT
//
// SPDX-FileCopyrightText: 2024 German Federal Office for Information Security (BSI) <https://www.bsi.bund.de>
// Software-Engineering: 2024 Intevation GmbH <https://intevation.de>

package main

import (
	"crypto/tls"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/csaf-poc/csaf_harvester/internal/certs"
	"github.com/csaf-poc/csaf_harvester/internal/filter"
	"github.com/csaf-poc/csaf_harvester/internal/metrics"
	"github.com/csaf-poc/csaf_harvester/internal/models"
	"github.com/csaf-poc/csaf_harvester/internal/options"
	"github.com/csaf-poc/csaf_harvester/lib/harvester"
)

const (
	defaultWorker  = harvester.DefaultWorker
	defaultTimeout = int(harvester.DefaultTimeout / time.Second)
)

type config struct {
	Provider         string                   `short:"p" long:"provider" description:"URL of the provider-metadata.json or DOMAIN of the provider" value-name:"URL|DOMAIN" toml:"provider"`
	Output           string                   `short:"o" long:"output" description:"DIRectory to write the reports to" value-name:"DIR" toml:"output"`
	Year             int                      `short:"y" long:"year" description:"YEAR of the advisories to harvest (defaults to the current year)" value-name:"YEAR" toml:"year"`
	BatchLimit       int                      `short:"n" long:"batch_limit" env:"BATCH_LIMIT" description:"Harvest the NUMber of newest advisories, 0 for all" value-name:"NUM" toml:"batch_limit"`
	Insecure         bool                     `long:"insecure" description:"Do not check TLS certificates from provider" toml:"insecure"`
	ClientCert       string                   `long:"client_cert" description:"TLS client certificate file (PEM encoded data)" value-name:"CERT-FILE" toml:"client_cert"`
	ClientKey        string                   `long:"client_key" description:"TLS client private key file (PEM encoded data)" value-name:"KEY-FILE" toml:"client_key"`
	ClientPassphrase string                   `long:"client_passphrase" description:"Optional passphrase for the client cert (limited, experimental, see doc)" value-name:"PASSPHRASE" toml:"client_passphrase"`
	Rate             *float64                 `long:"rate" short:"r" description:"The average upper limit of https operations per second (defaults to unlimited)" toml:"rate"`
	Worker           int                      `long:"worker" short:"w" description:"NUMber of concurrent downloads" value-name:"NUM" toml:"worker"`
	Timeout          int                      `long:"timeout" description:"SECONDS to wait for a HTTP response" value-name:"SECONDS" toml:"timeout"`
	UserAgent        string                   `long:"user_agent" description:"User-Agent sent with every request" value-name:"AGENT" toml:"user_agent"`
	Range            *models.TimeRange        `long:"timerange" short:"t" description:"RANGE of time from which advisories to harvest" value-name:"RANGE" toml:"timerange"`
	IgnorePattern    []string                 `long:"ignorepattern" short:"i" description:"Do not download files if their URLs match any of the given PATTERNs" value-name:"PATTERN" toml:"ignorepattern"`
	ValidationMode   harvester.ValidationMode `long:"validationmode" short:"m" choice:"strict" choice:"unsafe" description:"MODE how strict the validation is" value-name:"MODE" toml:"validation_mode"`
	VerifyChecksums  bool                     `long:"verify_checksums" description:"Compare advisories with their published SHA256/SHA512 sums" toml:"verify_checksums"`
	VerifySignatures bool                     `long:"verify_signatures" description:"Check the OpenPGP signatures of the advisories" toml:"verify_signatures"`
	HTMLBase         string                   `long:"html_base" description:"BASE URL of the HTML renditions of NCSC advisories" value-name:"BASE" toml:"html_base"`

	ExtraHeader http.Header `long:"header" short:"H" description:"One or more extra HTTP header fields" toml:"header"`

	LogLevel    *options.LogLevel `long:"log_level" description:"LEVEL of logging details" value-name:"LEVEL" choice:"debug" choice:"info" choice:"warn" choice:"error" toml:"log_level"`
	LogFormat   options.LogFormat `long:"log_format" description:"FORMAT of the log output" value-name:"FORMAT" choice:"text" choice:"json" toml:"log_format"`
	Debug       options.Toggle    `long:"debug" env:"DEBUG" description:"Log debug messages" optional:"yes" optional-value:"true" toml:"debug"`
	LockFile    string            `long:"lock_file" description:"FILE to lock to prevent concurrent runs" value-name:"FILE" toml:"lock_file"`
	MetricsFile string            `long:"metrics_file" description:"FILE to write run metrics to in Prometheus text format" value-name:"FILE" toml:"metrics_file"`

	Version bool   `long:"version" description:"Display version of the binary" toml:"-"`
	Config  string `short:"c" long:"config" description:"Path to config TOML file" value-name:"TOML-FILE" toml:"-"`

	ignorePattern filter.PatternMatcher
	clientCerts   []tls.Certificate
	logger        *slog.Logger
	metrics       *metrics.Run
}

// configPaths are the potential file locations of the config file.
var configPaths = []string{
	"~/.config/csaf/harvester.toml",
	"~/.csaf_harvester.toml",
	"csaf_harvester.toml",
}

// setDefaults pre-inits the configuration.
func setDefaults(cfg *config) {
	cfg.Provider = harvester.DefaultProvider
	cfg.Output = harvester.DefaultOutputDir
	cfg.BatchLimit = harvester.DefaultBatchLimit
	cfg.Worker = defaultWorker
	cfg.Timeout = defaultTimeout
	cfg.UserAgent = harvester.DefaultUserAgent
	cfg.ValidationMode = harvester.ValidationStrict
	cfg.HTMLBase = harvester.DefaultHTMLBase
	cfg.LogFormat = options.TextLogFormat
}

// ensureDefaults re-establishes default values if not set.
func ensureDefaults(cfg *config) {
	if cfg.Provider == "" {
		cfg.Provider = harvester.DefaultProvider
	}
	if cfg.Output == "" {
		cfg.Output = harvester.DefaultOutputDir
	}
	if cfg.Worker == 0 {
		cfg.Worker = defaultWorker
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = harvester.DefaultUserAgent
	}
	if cfg.ValidationMode == "" {
		cfg.ValidationMode = harvester.ValidationStrict
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

// compileIgnorePatterns compiles the configure patterns to be ignored.
func (cfg *config) compileIgnorePatterns() error {
	pm, err := filter.NewPatternMatcher(cfg.IgnorePattern)
	if err != nil {
		return err
	}
	cfg.ignorePattern = pm
	return nil
}

// prepareLogging sets up the structured logging.
func (cfg *config) prepareLogging(w io.Writer) {
	cfg.logger = options.NewLogger(w, cfg.LogFormat, cfg.LogLevel, cfg.Debug.Enabled())
	slog.SetDefault(cfg.logger)
}

// prepare prepares internal state of a loaded configuration.
func (cfg *config) prepare() error {
	if cfg.MetricsFile != "" {
		cfg.metrics = metrics.NewRun("csaf_harvester")
	}
	clientCerts, err := certs.LoadCertificate(
		cfg.ClientCert, cfg.ClientKey, cfg.ClientPassphrase)
	if err != nil {
		return err
	}
	cfg.clientCerts = clientCerts
	return cfg.compileIgnorePatterns()
}

// harvesterConfig converts the command line configuration
// into the configuration of the harvest run.
func (cfg *config) harvesterConfig() *harvester.Config {
	return &harvester.Config{
		Provider:         cfg.Provider,
		OutputDir:        cfg.Output,
		Year:             cfg.Year,
		BatchLimit:       cfg.BatchLimit,
		Worker:           cfg.Worker,
		Rate:             cfg.Rate,
		UserAgent:        cfg.UserAgent,
		ExtraHeader:      cfg.ExtraHeader,
		Insecure:         cfg.Insecure,
		ClientCerts:      cfg.clientCerts,
		Timeout:          time.Duration(cfg.Timeout) * time.Second,
		IgnorePattern:    cfg.ignorePattern,
		Range:            cfg.Range,
		ValidationMode:   cfg.ValidationMode,
		VerifyChecksums:  cfg.VerifyChecksums,
		VerifySignatures: cfg.VerifySignatures,
		HTMLBase:         cfg.HTMLBase,
		Logger:           cfg.logger,
		Metrics:          cfg.metrics,
	}
}
