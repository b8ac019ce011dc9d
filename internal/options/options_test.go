// This file is Free Software under the Apache-2.0 License
// without warranty, see README.md and LICENSES/Apache-2.0.txt for details.
//
// SPDX-License-Identifier: Apache-2.0
//
// SPDX-FileCopyrightText: 2024 German Federal Office for Information Security (BSI) <https://www.bsi.bund.de>
// Software-Engineering: 2024 Intevation GmbH <https://intevation.de>

package options

import (
	"os"
	"path/filepath"
	"testing"
)

type config struct {
	Name        string `long:"name" description:"Name" toml:"name"`
	Batch       int    `long:"batch" env:"TEST_OPTIONS_BATCH" description:"Batch" toml:"batch"`
	EnableTeams Toggle `long:"enable_teams" env:"TEST_OPTIONS_ENABLE_TEAMS" description:"Teams" toml:"enable_teams"`
	Config      string `long:"config" description:"Config" toml:"-"`
}

func newTestParser() *Parser[config] {
	return &Parser[config]{
		ConfigLocation: func(cfg *config) string { return cfg.Config },
		SetDefaults: func(cfg *config) {
			cfg.EnableTeams = NewToggle(true)
		},
		EnsureDefaults: func(cfg *config) {
			if cfg.Batch == 0 {
				cfg.Batch = 200
			}
		},
	}
}

func withArgs(t *testing.T, args ...string) {
	t.Helper()
	orig := os.Args
	os.Args = append([]string{"cmd"}, args...)
	t.Cleanup(func() { os.Args = orig })
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseDefaults(t *testing.T) {
	withArgs(t)
	_, cfg, err := newTestParser().Parse()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Batch != 200 {
		t.Errorf("batch: got %d expected 200", cfg.Batch)
	}
	if !cfg.EnableTeams.Enabled() {
		t.Error("teams should be enabled by default")
	}
}

func TestParseConfigFile(t *testing.T) {
	path := writeFile(t, "cfg.toml", "name = \"from-file\"\nbatch = 5\nenable_teams = false\n")
	withArgs(t, "--config", path, "--name", "from-cmdline")
	_, cfg, err := newTestParser().Parse()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Name != "from-cmdline" {
		t.Errorf("command line should win: got %q", cfg.Name)
	}
	if cfg.Batch != 5 {
		t.Errorf("batch: got %d expected 5", cfg.Batch)
	}
	if cfg.EnableTeams.Enabled() {
		t.Error("teams should be disabled by config file")
	}
}

func TestParseEnv(t *testing.T) {
	t.Setenv("TEST_OPTIONS_BATCH", "7")
	t.Setenv("TEST_OPTIONS_ENABLE_TEAMS", "off")
	withArgs(t)
	_, cfg, err := newTestParser().Parse()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Batch != 7 {
		t.Errorf("batch: got %d expected 7", cfg.Batch)
	}
	if cfg.EnableTeams.Enabled() {
		t.Error("teams should be disabled by environment")
	}
}

func TestParseErrors(t *testing.T) {
	withArgs(t, "--invalid")
	if _, _, err := newTestParser().Parse(); err == nil {
		t.Error("parsed invalid flag")
	}

	surplus := writeFile(t, "surplus.toml", "surplus = 1\n")
	withArgs(t, "--config", surplus)
	if _, _, err := newTestParser().Parse(); err == nil {
		t.Error("parsed config file with unknown key")
	}

	withArgs(t, "--config", "~~")
	if _, _, err := newTestParser().Parse(); err == nil {
		t.Error("invalid path expanded")
	}
}

func TestFindConfigFile(t *testing.T) {
	path := writeFile(t, "found.toml", "")
	if got := findConfigFile([]string{"does-not-exist.toml", path}); got != path {
		t.Errorf("got %q expected %q", got, path)
	}
	if got := findConfigFile([]string{"~~", "does-not-exist.toml"}); got != "" {
		t.Errorf("expected no config file, got %q", got)
	}
}
