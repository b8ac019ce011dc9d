// This file is Free Software under the MIT License
// without warranty, see README.md and LICENSES/MIT.txt for details.
//
// SPDX-License-Identifier: MIT
//
// SPDX-FileCopyrightText: 2024 German Federal Office for Information Security (BSI) <https://www.bsi.bund.de>
// Software-Engineering: 2024 Intevation GmbH <https://intevation.de>

package options

import "strings"

// Toggle is a boolean switch which accepts the spellings commonly
// found in environment variables: 1, true, yes and on switch it on.
// Every other value including the empty string switches it off.
// In contrast to a plain bool it takes an explicit argument on the
// command line, so it can be switched off there, too.
type Toggle struct{ on bool }

// NewToggle returns a toggle in the given state.
func NewToggle(on bool) Toggle { return Toggle{on: on} }

// Enabled returns true if the switch is on.
func (t Toggle) Enabled() bool { return t.on }

// UnmarshalFlag implements [flags.Unmarshaler].
func (t *Toggle) UnmarshalFlag(value string) error {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		t.on = true
	default:
		t.on = false
	}
	return nil
}

// MarshalFlag implements [flags.Marshaler].
func (t Toggle) MarshalFlag() (string, error) {
	if t.on {
		return "true", nil
	}
	return "false", nil
}

// UnmarshalText implements [encoding.TextUnmarshaler] for TOML.
func (t *Toggle) UnmarshalText(text []byte) error {
	return t.UnmarshalFlag(string(text))
}
