// This file is Free Software under the MIT License
// without warranty, see README.md and LICENSES/MIT.txt for details.
//
// SPDX-License-Identifier: MIT
//
// SPDX-FileCopyrightText: 2024 German Federal Office for Information Security (BSI) <https://www.bsi.bund.de>
// Software-Engineering: 2024 Intevation GmbH <https://intevation.de>

package options

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// LogLevel implements a helper type to be used in configurations.
type LogLevel struct{ slog.Level }

// MarshalFlag implements [flags.Marshaler].
func (ll LogLevel) MarshalFlag() (string, error) {
	t, err := ll.MarshalText()
	return strings.ToLower(string(t)), err
}

// UnmarshalFlag implements [flags.Unmarshaler].
func (ll *LogLevel) UnmarshalFlag(value string) error {
	var l slog.Level
	if err := l.UnmarshalText([]byte(value)); err != nil {
		return err
	}
	*ll = LogLevel{Level: l}
	return nil
}

// UnmarshalText implements [encoding.TextUnmarshaler] for TOML.
func (ll *LogLevel) UnmarshalText(text []byte) error {
	return ll.UnmarshalFlag(string(text))
}

// LogFormat selects the slog handler.
type LogFormat string

const (
	// TextLogFormat selects [slog.TextHandler].
	TextLogFormat = LogFormat("text")
	// JSONLogFormat selects [slog.JSONHandler].
	JSONLogFormat = LogFormat("json")
)

// UnmarshalFlag implements [flags.Unmarshaler].
func (lf *LogFormat) UnmarshalFlag(value string) error {
	switch f := LogFormat(strings.ToLower(value)); f {
	case TextLogFormat, JSONLogFormat:
		*lf = f
		return nil
	default:
		return fmt.Errorf(`invalid log format %q (expected "text" or "json")`, value)
	}
}

// UnmarshalText implements [encoding.TextUnmarshaler] for TOML.
func (lf *LogFormat) UnmarshalText(text []byte) error {
	return lf.UnmarshalFlag(string(text))
}

// NewLogger creates a structured logger writing to w.
// If debug is true the level is lowered to debug regardless of level.
func NewLogger(w io.Writer, format LogFormat, level *LogLevel, debug bool) *slog.Logger {
	var lvl slog.Level = slog.LevelInfo
	if level != nil {
		lvl = level.Level
	}
	if debug {
		lvl = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	if format == JSONLogFormat {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}
