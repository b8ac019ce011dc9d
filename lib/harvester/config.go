// This file is Free Software under the Apache-2.0 License
// without warranty, see README.md and LICENSES/Apache-2.0.txt for details.
//
// SPDX-License-Identifier: Apache-2.0
//
// SPDX-FileCopyrightText: 2024 German Federal Office for Information Security (BSI) <https://www.bsi.bund.de>
// Software-Engineering: 2024 Intevation GmbH <https://intevation.de>

package harvester

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/csaf-poc/csaf_harvester/internal/filter"
	"github.com/csaf-poc/csaf_harvester/internal/metrics"
	"github.com/csaf-poc/csaf_harvester/internal/models"
	"github.com/csaf-poc/csaf_harvester/util"
)

// Defaults of the harvest configuration.
const (
	DefaultProvider   = "https://advisories.ncsc.nl/.well-known/csaf/provider-metadata.json"
	DefaultOutputDir  = "output"
	DefaultBatchLimit = 200
	DefaultWorker     = 2
	DefaultUserAgent  = "NCSC-CSAF-Harvester/1.0"
	DefaultTimeout    = 30 * time.Second
	DefaultHTMLBase   = "https://advisories.ncsc.nl"
)

// ValidationMode specifies the strict the validation is.
type ValidationMode string

const (
	// ValidationStrict skips advisories with failed validation.
	ValidationStrict = ValidationMode("strict")
	// ValidationUnsafe allows advisories with failed validation.
	ValidationUnsafe = ValidationMode("unsafe")
)

// Config provides the harvest configuration.
type Config struct {
	// Provider is the URL of a provider-metadata.json or a domain.
	Provider string
	// OutputDir is the directory the reports are written to.
	OutputDir string
	// Year selects the advisory directory. Zero means the current year.
	Year int
	// BatchLimit is the number of newest advisories fetched.
	// Zero or less means all.
	BatchLimit int
	Worker     int
	Rate       *float64
	UserAgent  string
	// ExtraHeader is added to every request.
	ExtraHeader http.Header
	Insecure    bool
	// ClientCerts are presented to the provider for TLS client authentication.
	ClientCerts   []tls.Certificate
	Timeout       time.Duration
	IgnorePattern filter.PatternMatcher
	// Range filters the advisories by their current release date.
	Range *models.TimeRange

	ValidationMode   ValidationMode
	VerifyChecksums  bool
	VerifySignatures bool

	// HTMLBase is the base URL of the HTML renditions of NCSC advisories.
	HTMLBase string

	// Client replaces the default HTTP client if set.
	Client util.Client
	// Now returns the current time. Defaults to [time.Now].
	Now func() time.Time

	Logger  *slog.Logger
	Metrics *metrics.Run
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (vm *ValidationMode) UnmarshalText(text []byte) error {
	switch m := ValidationMode(text); m {
	case ValidationStrict, ValidationUnsafe:
		*vm = m
	default:
		return fmt.Errorf(`invalid value %q (expected "strict" or "unsafe")`, m)
	}
	return nil
}

// UnmarshalFlag implements [flags.UnmarshalFlag].
func (vm *ValidationMode) UnmarshalFlag(value string) error {
	var v ValidationMode
	if err := v.UnmarshalText([]byte(value)); err != nil {
		return err
	}
	*vm = v
	return nil
}

// applyDefaults fills the unset fields of the configuration.
func (cfg *Config) applyDefaults() {
	if cfg.Provider == "" {
		cfg.Provider = DefaultProvider
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = DefaultOutputDir
	}
	if cfg.Worker < 1 {
		cfg.Worker = 1
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ValidationMode == "" {
		cfg.ValidationMode = ValidationStrict
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
}

// ignoreURL returns true if the given URL should not be downloaded.
func (cfg *Config) ignoreURL(u string) bool {
	return cfg.IgnorePattern.Matches(u)
}

// verbose is considered a log level equal or less debug.
func (cfg *Config) verbose() bool {
	return cfg.Logger.Enabled(context.Background(), slog.LevelDebug)
}
