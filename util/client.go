// This file is Free Software under the MIT License
// without warranty, see README.md and LICENSES/MIT.txt for details.
//
// SPDX-License-Identifier: MIT
//
// SPDX-FileCopyrightText: 2024 German Federal Office for Information Security (BSI) <https://www.bsi.bund.de>
// Software-Engineering: 2024 Intevation GmbH <https://intevation.de>

package util

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"

	"golang.org/x/time/rate"
)

// Client is an interface to abstract http.Client.
type Client interface {
	Do(req *http.Request) (*http.Response, error)
	Get(url string) (*http.Response, error)
	Post(url, contentType string, body io.Reader) (*http.Response, error)
}

// LoggingClient is a client that logs called URLs.
// Secrets embedded in the URLs are redacted before logging.
type LoggingClient struct {
	Client
	Log func(method, url string)
}

// LimitingClient is a Client implementing rate throttling.
type LimitingClient struct {
	Client
	Limiter *rate.Limiter
}

// HeaderClient adds extra HTTP header fields to requests.
type HeaderClient struct {
	Client
	Header http.Header
}

// Do implements the respective method of the [Client] interface.
func (hc *HeaderClient) Do(req *http.Request) (*http.Response, error) {
	orig := req.Header
	defer func() { req.Header = orig }()

	// Work on a copy.
	req.Header = req.Header.Clone()
	if req.Header == nil {
		req.Header = http.Header{}
	}

	for key, values := range hc.Header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	return hc.Client.Do(req)
}

// Get implements the respective method of the [Client] interface.
func (hc *HeaderClient) Get(url string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return hc.Do(req)
}

// Post implements the respective method of the [Client] interface.
func (hc *HeaderClient) Post(url, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return hc.Do(req)
}

func (lc *LoggingClient) log(method, url string) {
	url = RedactURL(url)
	if lc.Log != nil {
		lc.Log(method, url)
	} else {
		slog.Debug("http", "method", method, "url", url)
	}
}

// Do implements the respective method of the [Client] interface.
func (lc *LoggingClient) Do(req *http.Request) (*http.Response, error) {
	lc.log(req.Method, req.URL.String())
	return lc.Client.Do(req)
}

// Get implements the respective method of the [Client] interface.
func (lc *LoggingClient) Get(url string) (*http.Response, error) {
	lc.log(http.MethodGet, url)
	return lc.Client.Get(url)
}

// Post implements the respective method of the [Client] interface.
func (lc *LoggingClient) Post(url, contentType string, body io.Reader) (*http.Response, error) {
	lc.log(http.MethodPost, url)
	return lc.Client.Post(url, contentType, body)
}

// Do implements the respective method of the [Client] interface.
func (lc *LimitingClient) Do(req *http.Request) (*http.Response, error) {
	if err := lc.Limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return lc.Client.Do(req)
}

// Get implements the respective method of the [Client] interface.
func (lc *LimitingClient) Get(url string) (*http.Response, error) {
	if err := lc.Limiter.Wait(context.Background()); err != nil {
		return nil, err
	}
	return lc.Client.Get(url)
}

// Post implements the respective method of the [Client] interface.
func (lc *LimitingClient) Post(url, contentType string, body io.Reader) (*http.Response, error) {
	if err := lc.Limiter.Wait(context.Background()); err != nil {
		return nil, err
	}
	return lc.Client.Post(url, contentType, body)
}

var botTokenRe = regexp.MustCompile(`/bot[^/]+`)

// RedactURL removes credentials from a URL so that it can be logged.
// User info, query parameters and Telegram style /bot<token> path
// segments are replaced.
func RedactURL(s string) string {
	u, err := url.Parse(s)
	if err != nil {
		return "<unparsable URL>"
	}
	if u.User != nil {
		u.User = url.User("REDACTED")
	}
	if u.RawQuery != "" {
		u.RawQuery = "REDACTED"
	}
	u.Path = botTokenRe.ReplaceAllString(u.Path, "/botREDACTED")
	u.RawPath = ""
	return u.String()
}

// GetContext issues a GET request bound to ctx with client.
func GetContext(ctx context.Context, client Client, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return client.Do(req)
}
