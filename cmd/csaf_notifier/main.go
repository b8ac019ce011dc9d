// This file is Free Software under the MIT License
// without warranty, see README.md and LICENSES/MIT.txt for details.
//
// SPDX-License-Identifier: MIT
//
// SPDX-FileCopyrightText: 2024 German Federal Office for Information Security (BSI) <https://www.bsi.bund.de>
// Software-Engineering: 2024 Intevation GmbH <https://intevation.de>

// Package main implements the csaf_notifier tool.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"time"

	"github.com/csaf-poc/csaf_harvester/internal/misc"
	"github.com/csaf-poc/csaf_harvester/internal/options"
)

func run(cfg *config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	start := time.Now()

	p, err := newProcessor(cfg)
	if err != nil {
		return err
	}
	err = p.process(ctx)
	err = errors.Join(err, p.close())

	cfg.metrics.Finish(start, time.Now(), err == nil)
	if cfg.MetricsFile != "" {
		err = errors.Join(err, cfg.metrics.WriteToTextfile(cfg.MetricsFile))
	}
	return err
}

func main() {
	_, cfg, err := parseArgsConfig()
	options.ErrorCheck(err)
	cfg.prepareLogging(os.Stderr)
	options.ErrorCheck(cfg.prepare())
	options.ErrorCheck(misc.WithLock(cfg.LockFile, func() error { return run(cfg) }))
}
