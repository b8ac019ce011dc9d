// This file is Free Software under the MIT License
// without warranty, see README.md and LICENSES/MIT.txt for details.
//
// SPDX-License-Identifier: MIT
//
// SPDX-FileCopyrightText: 2024 German Federal Office for Information Security (BSI) <https://www.bsi.bund.de>
// Software-Engineering: 2024 Intevation GmbH <https://intevation.de>

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/csaf-poc/csaf_harvester/util"
)

// Defaults of the Teams channel.
const (
	DefaultTeamsRetries = 3
	DefaultTeamsBackoff = 2 * time.Second
	DefaultTeamsTimeout = 10 * time.Second
)

// Teams posts MessageCards to a Microsoft Teams incoming webhook.
type Teams struct {
	WebhookURL string
	Enabled    bool
	// MaxRetries is the number of attempts.
	MaxRetries int
	// Backoff times the attempt number is waited after a failure.
	Backoff time.Duration
	// Timeout limits a single attempt.
	Timeout time.Duration
	Client  util.Client
	Logger  *slog.Logger
}

// NewTeams returns an enabled Teams channel with default settings.
func NewTeams(webhookURL string) *Teams {
	return &Teams{
		WebhookURL: webhookURL,
		Enabled:    true,
		MaxRetries: DefaultTeamsRetries,
		Backoff:    DefaultTeamsBackoff,
		Timeout:    DefaultTeamsTimeout,
	}
}

// Configured checks if the channel is enabled and has a webhook.
func (tm *Teams) Configured() bool {
	return tm != nil && tm.Enabled && tm.WebhookURL != ""
}

func (tm *Teams) logger() *slog.Logger {
	if tm.Logger != nil {
		return tm.Logger
	}
	return slog.Default()
}

// Send posts card to the webhook. Transport errors and non-200
// answers are retried with a growing pause. The webhook URL is
// never part of the returned errors.
func (tm *Teams) Send(ctx context.Context, card *Card) error {
	if tm == nil || !tm.Enabled {
		return fmt.Errorf("teams: %w", ErrDisabled)
	}
	if tm.WebhookURL == "" {
		return fmt.Errorf("teams: %w", ErrNotConfigured)
	}

	body, err := json.Marshal(card.truncated())
	if err != nil {
		return err
	}

	retries := max(tm.MaxRetries, 1)
	timeout := tm.Timeout
	if timeout <= 0 {
		timeout = DefaultTeamsTimeout
	}
	client := defaultClient(tm.Client, timeout)

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		if attempt > 1 {
			t := time.NewTimer(tm.Backoff * time.Duration(attempt-1))
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		if lastErr = tm.post(ctx, client, timeout, body); lastErr == nil {
			return nil
		}
		tm.logger().Warn("Teams post failed",
			"attempt", attempt,
			"max_retries", retries,
			"error", lastErr)
	}
	return fmt.Errorf("teams: giving up after %d attempts: %w", retries, lastErr)
}

func (tm *Teams) post(
	ctx context.Context,
	client util.Client,
	timeout time.Duration,
	body []byte,
) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, tm.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request failed")
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := client.Do(req)
	if err != nil {
		return hideURL(err, "<teams webhook>")
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return newStatusError("teams", res)
	}
	return nil
}
