// This file is Free Software under the MIT License
// without warranty, see README.md and LICENSES/MIT.txt for details.
//
// SPDX-License-Identifier: MIT
//
// SPDX-FileCopyrightText: 2024 German Federal Office for Information Security (BSI) <https://www.bsi.bund.de>
// Software-Engineering: 2024 Intevation GmbH <https://intevation.de>

package util

import (
	"net/url"
	"strings"
)

// BaseURL returns the base URL for a given URL p.
func BaseURL(u *url.URL) (string, error) {
	ep := u.EscapedPath()
	if idx := strings.LastIndexByte(ep, '/'); idx != -1 {
		ep = ep[:idx+1]
	}
	user := u.User.String()
	if user != "" {
		user += "@"
	}
	if !strings.HasPrefix(ep, "/") {
		ep = "/" + ep
	}
	return u.Scheme + "://" + user + u.Host + ep, nil
}

// JoinURL appends the path elements to base separated by
// exactly one slash. A trailing slash of the last element is kept.
func JoinURL(base string, elems ...string) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(base, "/"))
	for _, e := range elems {
		if e = strings.TrimLeft(e, "/"); e == "" {
			continue
		}
		if !strings.HasSuffix(b.String(), "/") {
			b.WriteByte('/')
		}
		b.WriteString(e)
	}
	return b.String()
}
