// This file is Free Software under the MIT License
// without warranty, see README.md and LICENSES/MIT.txt for details.
//
// SPDX-License-Identifier: MIT
//
// SPDX-FileCopyrightText: 2024 German Federal Office for Information Security (BSI) <https://www.bsi.bund.de>
// Software-Engineering: 2024 Intevation GmbH <https://intevation.de>

// Package notify delivers advisory notifications to Telegram
// and Microsoft Teams.
package notify

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/csaf-poc/csaf_harvester/util"
)

// ErrNotConfigured is returned by channels missing their credentials.
var ErrNotConfigured = errors.New("channel not configured")

// ErrDisabled is returned by channels switched off.
var ErrDisabled = errors.New("channel disabled")

// maxErrorBody limits the response body kept in errors.
const maxErrorBody = 512

// StatusError is a non-200 answer of a channel endpoint.
type StatusError struct {
	Channel    string
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (se *StatusError) Error() string {
	return fmt.Sprintf("%s error %d: %s", se.Channel, se.StatusCode, se.Body)
}

func newStatusError(channel string, res *http.Response) *StatusError {
	var msg bytes.Buffer
	io.Copy(&msg, io.LimitReader(res.Body, maxErrorBody))
	body := msg.String()
	if msg.Len() >= maxErrorBody {
		body += "..."
	}
	return &StatusError{
		Channel:    channel,
		StatusCode: res.StatusCode,
		Body:       body,
	}
}

// hideURL replaces the URL in transport errors as it
// carries the credentials of the channel.
func hideURL(err error, replacement string) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		ue.URL = replacement
	}
	return err
}

// defaultClient returns client or a plain client with timeout.
func defaultClient(client util.Client, timeout time.Duration) util.Client {
	if client != nil {
		return client
	}
	return &http.Client{Timeout: timeout}
}
