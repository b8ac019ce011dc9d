// This file is Free Software under the MIT License
// without warranty, see README.md and LICENSES/MIT.txt for details.
//
// SPDX-License-Identifier: MIT
//
// SPDX-FileCopyrightText: 2024 German Federal Office for Information Security (BSI) <https://www.bsi.bund.de>
// Software-Engineering: 2024 Intevation GmbH <https://intevation.de>

package csaf

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/csaf-poc/csaf_harvester/util"
)

// LinksOnPage calls visit for the href of every anchor in
// the HTML document read from r. The first error returned
// by visit stops the iteration.
func LinksOnPage(r io.Reader, visit func(string) error) error {

	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return err
	}

	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		if err != nil {
			return
		}
		if link, ok := s.Attr("href"); ok {
			err = visit(link)
		}
	})

	return err
}

// ListDirectory loads the HTML directory listing at dirURL and returns
// the names of the advisories of the given year it links to.
// The names are normalized with [NormalizeListing] but not sorted.
func ListDirectory(
	ctx context.Context,
	client util.Client,
	dirURL string,
	year int,
) ([]string, error) {
	res, err := util.GetContext(ctx, client, dirURL)
	if err != nil {
		return nil, fmt.Errorf("fetching directory listing %s failed: %w", dirURL, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching directory listing %s failed: %s",
			dirURL, res.Status)
	}

	var links []string
	if err := LinksOnPage(res.Body, func(link string) error {
		if strings.HasSuffix(strings.ToLower(link), ".json") {
			links = append(links, link)
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("parsing directory listing %s failed: %w", dirURL, err)
	}

	return NormalizeListing(links, year), nil
}
