// This file is Free Software under the MIT License
// without warranty, see README.md and LICENSES/MIT.txt for details.
//
// SPDX-License-Identifier: MIT
//
// SPDX-FileCopyrightText: 2024 German Federal Office for Information Security (BSI) <https://www.bsi.bund.de>
// Software-Engineering: 2024 Intevation GmbH <https://intevation.de>

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/csaf-poc/csaf_harvester/internal/dedupe"
	"github.com/csaf-poc/csaf_harvester/internal/metrics"
	"github.com/csaf-poc/csaf_harvester/internal/notify"
	"github.com/csaf-poc/csaf_harvester/internal/report"
)

var (
	highRiskRe   = regexp.MustCompile(`(?i)(\[?(H/H|M/H|H/M)\]?|High/High|Med/High|High/Med)`)
	mediumRiskRe = regexp.MustCompile(`(?i)(\[?(M/M|L/H|H/L)\]?|Med/Med|Low/High|High/Low)`)
)

type processor struct {
	cfg      *config
	log      *slog.Logger
	metrics  *metrics.Run
	telegram *notify.Telegram
	teams    *notify.Teams
	// deduper is nil if deduplication is switched off.
	deduper *dedupe.Deduper
}

// newProcessor creates the channels and opens the sent-cache.
func newProcessor(cfg *config) (*processor, error) {
	log := cfg.logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("run_id", uuid.NewString())

	teams := notify.NewTeams(cfg.TeamsWebhook)
	teams.Enabled = cfg.EnableTeams.Enabled()
	teams.Logger = log

	p := &processor{
		cfg:     cfg,
		log:     log,
		metrics: cfg.metrics,
		telegram: &notify.Telegram{
			Token:   cfg.TelegramToken,
			ChatID:  cfg.TelegramChatID,
			APIBase: cfg.TelegramAPI,
		},
		teams: teams,
	}

	if !cfg.NoDedupe.Enabled() {
		store, err := dedupe.OpenStore(
			cfg.CacheBackend, cfg.cacheFile(), cfg.RedisURL, cfg.RedisPrefix)
		if err != nil {
			return nil, fmt.Errorf("opening sent-cache failed: %w", err)
		}
		p.deduper = dedupe.New(store, log)
		p.deduper.TTL = time.Duration(cfg.CacheTTL) * 24 * time.Hour
	}
	return p, nil
}

// close releases the sent-cache.
func (p *processor) close() error {
	if p.deduper == nil {
		return nil
	}
	return p.deduper.Close()
}

// classify splits the rows into high and medium risk.
func classify(recs []report.Record) (high, medium []report.Record) {
	for _, rec := range recs {
		sev := rec.Get(report.ColumnSeverity)
		switch {
		case highRiskRe.MatchString(sev):
			high = append(high, rec)
		case mediumRiskRe.MatchString(sev):
			medium = append(medium, rec)
		}
	}
	return high, medium
}

// process runs the notification over the latest daily report.
func (p *processor) process(ctx context.Context) error {
	latest, err := report.LatestCSV(report.DailyDir(p.cfg.Output))
	if err != nil {
		return fmt.Errorf("looking for daily reports failed: %w", err)
	}
	if latest == "" {
		p.log.Info("No CSV input found", "dir", report.DailyDir(p.cfg.Output))
		return nil
	}

	recs, err := report.ReadCSVFile(latest)
	if err != nil {
		return fmt.Errorf("reading %s failed: %w", latest, err)
	}
	p.log.Info("Rows in report", "csv", latest, "count", len(recs))

	high, medium := classify(recs)
	p.log.Info("Severity filter applied",
		"high", len(high),
		"medium", len(medium))
	p.metrics.Count("high", len(high))
	p.metrics.Count("medium", len(medium))

	if len(high) == 0 {
		p.log.Info("No high-risk advisories found")
		p.status(ctx, medium, len(recs))
		return nil
	}

	toSend, keys := high, []string(nil)
	if p.deduper == nil {
		p.log.Warn("Deduplication switched off")
	} else {
		toSend, keys = p.deduper.FilterNew(ctx, high)
		p.log.Info("Deduplication applied", "new", len(toSend))
	}

	if len(toSend) == 0 {
		p.log.Info("No new high-risk advisories, nothing to send")
		p.status(ctx, medium, len(recs))
		return nil
	}

	message := notify.BuildUrgentMessage(toSend)

	if p.deduper != nil && p.deduper.IsSameMessage(ctx, message) {
		p.log.Info("Message equals the last sent one, skipping")
		return nil
	}

	card := notify.TeamsBrief(toSend, medium, len(recs), p.cfg.RunURL)
	if p.deliver(ctx, message, card) == 0 {
		p.log.Warn("Message not delivered to any channel")
		return nil
	}
	p.metrics.Count("sent", len(toSend))

	if p.deduper == nil {
		return nil
	}
	if err := p.deduper.MarkSent(ctx, keys, message); err != nil {
		return fmt.Errorf("recording sent advisories failed: %w", err)
	}
	return nil
}

// status posts the status card to Teams if requested.
func (p *processor) status(ctx context.Context, medium []report.Record, total int) {
	if !p.cfg.TeamsStatus.Enabled() {
		return
	}
	p.sendTeams(ctx, notify.TeamsBrief(nil, medium, total, p.cfg.RunURL))
}

// deliver sends the message to all configured channels and
// returns the number of successful deliveries.
func (p *processor) deliver(ctx context.Context, message string, card *notify.Card) int {
	var sent int

	if !p.telegram.Configured() {
		p.log.Warn("Telegram not configured, skipping")
	} else if err := p.telegram.Send(ctx, message); err != nil {
		p.metrics.Delivery("telegram", false)
		p.log.Error("Telegram delivery failed", "error", err)
	} else {
		p.metrics.Delivery("telegram", true)
		p.log.Info("Telegram message sent")
		sent++
	}

	if p.sendTeams(ctx, card) {
		sent++
	}
	return sent
}

// sendTeams posts card to Teams and reports the success.
func (p *processor) sendTeams(ctx context.Context, card *notify.Card) bool {
	err := p.teams.Send(ctx, card)
	switch {
	case errors.Is(err, notify.ErrDisabled):
		p.log.Info("Teams disabled, skipping")
		return false
	case errors.Is(err, notify.ErrNotConfigured):
		p.log.Info("Teams not configured, skipping")
		return false
	case err != nil:
		p.metrics.Delivery("teams", false)
		p.log.Error("Teams delivery failed", "error", err)
		return false
	}
	p.metrics.Delivery("teams", true)
	p.log.Info("Teams card sent")
	return true
}
