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
	"net/http"
	"strings"
	"time"

	"github.com/csaf-poc/csaf_harvester/util"
)

// DefaultTelegramAPI is the base URL of the Telegram Bot API.
const DefaultTelegramAPI = "https://api.telegram.org"

// DefaultTelegramTimeout is the default timeout of a send.
const DefaultTelegramTimeout = 20 * time.Second

// Telegram sends HTML messages through the Telegram Bot API.
type Telegram struct {
	Token   string
	ChatID  string
	APIBase string
	Timeout time.Duration
	Client  util.Client
}

type telegramMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// Configured checks if token and chat id are given.
func (tg *Telegram) Configured() bool {
	return tg != nil && tg.Token != "" && tg.ChatID != ""
}

func (tg *Telegram) endpoint() string {
	base := tg.APIBase
	if base == "" {
		base = DefaultTelegramAPI
	}
	return strings.TrimRight(base, "/") + "/bot" + tg.Token + "/sendMessage"
}

// Send posts text as an HTML message to the configured chat.
// The token is never part of the returned errors.
func (tg *Telegram) Send(ctx context.Context, text string) error {
	if !tg.Configured() {
		return fmt.Errorf("telegram: %w", ErrNotConfigured)
	}
	timeout := tg.Timeout
	if timeout <= 0 {
		timeout = DefaultTelegramTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(&telegramMessage{
		ChatID:    tg.ChatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, tg.endpoint(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: creating request failed")
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := defaultClient(tg.Client, timeout).Do(req)
	if err != nil {
		return fmt.Errorf("telegram: %w",
			hideURL(err, util.RedactURL(tg.endpoint())))
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return newStatusError("telegram", res)
	}
	return nil
}
