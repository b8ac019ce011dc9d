// This file is Free Software under the MIT License
// without warranty, see README.md and LICENSES/MIT.txt for details.
//
// SPDX-License-Identifier: MIT
//
// SPDX-FileCopyrightText: 2024 German Federal Office for Information Security (BSI) <https://www.bsi.bund.de>
// Software-Engineering: 2024 Intevation GmbH <https://intevation.de>

// Package main implements the csaf_harvester tool.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/csaf-poc/csaf_harvester/internal/misc"
	"github.com/csaf-poc/csaf_harvester/internal/options"
	"github.com/csaf-poc/csaf_harvester/lib/harvester"
)

func run(cfg *config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	h := harvester.New(cfg.harvesterConfig())

	res, err := h.Run(ctx)
	if err != nil {
		return err
	}
	cfg.logger.Info("Harvest run finished",
		"run_id", res.RunID,
		"count", res.Count,
		"failed", res.Failed,
		"csv", res.CSVPath)

	if cfg.MetricsFile != "" {
		return cfg.metrics.WriteToTextfile(cfg.MetricsFile)
	}
	return nil
}

func main() {
	_, cfg, err := parseArgsConfig()
	options.ErrorCheck(err)
	cfg.prepareLogging(os.Stderr)
	options.ErrorCheck(cfg.prepare())
	options.ErrorCheck(misc.WithLock(cfg.LockFile, func() error { return run(cfg) }))
}
