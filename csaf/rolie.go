// This file is Free Software under the MIT License
// without warranty, see README.md and LICENSES/MIT.txt for details.
//
// SPDX-License-Identifier: MIT
//
// SPDX-FileCopyrightText: 2024 German Federal Office for Information Security (BSI) <https://www.bsi.bund.de>
// Software-Engineering: 2024 Intevation GmbH <https://intevation.de>

package csaf

import (
	"encoding/json"
	"io"
	"net/url"
	"strings"
)

// Link for ROLIE.
type Link struct {
	Rel  string `json:"rel"`
	HRef string `json:"href"`
}

// ROLIECategory for ROLIE.
type ROLIECategory struct {
	Scheme string `json:"scheme"`
	Term   string `json:"term"`
}

// Summary for ROLIE.
type Summary struct {
	Content string `json:"content"`
}

// Content for ROLIE.
type Content struct {
	Type string `json:"type"`
	Src  string `json:"src"`
}

// Format for ROLIE.
type Format struct {
	Schema  string `json:"schema"`
	Version string `json:"version"`
}

// Entry for ROLIE.
type Entry struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Link      []Link    `json:"link"`
	Published TimeStamp `json:"published"`
	Updated   TimeStamp `json:"updated"`
	Summary   *Summary  `json:"summary,omitempty"`
	Content   Content   `json:"content"`
	Format    Format    `json:"format"`
}

// FeedData is the content of a ROLIE feed.
type FeedData struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Link     []Link          `json:"link,omitempty"`
	Category []ROLIECategory `json:"category,omitempty"`
	Updated  TimeStamp       `json:"updated"`
	Entry    []*Entry        `json:"entry,omitempty"`
}

// ROLIEFeed is a ROLIE feed.
type ROLIEFeed struct {
	Feed FeedData `json:"feed"`
}

// LoadROLIEFeed loads a ROLIE feed from a reader.
func LoadROLIEFeed(r io.Reader) (*ROLIEFeed, error) {
	dec := json.NewDecoder(r)
	var rf ROLIEFeed
	if err := dec.Decode(&rf); err != nil {
		return nil, err
	}
	return &rf, nil
}

// Files returns the advisories referenced by the entries of the feed.
// Relative links are resolved against base. Entries without
// a self link are ignored.
func (rf *ROLIEFeed) Files(base *url.URL) []AdvisoryFile {
	resolve := func(u string) string {
		if u == "" {
			return ""
		}
		p, err := url.Parse(u)
		if err != nil {
			return ""
		}
		if base == nil {
			return p.String()
		}
		return base.ResolveReference(p).String()
	}

	var files []AdvisoryFile
	for _, entry := range rf.Feed.Entry {
		if entry == nil {
			continue
		}
		var self, sha256, sha512, sign string
		for i := range entry.Link {
			link := &entry.Link[i]
			lower := strings.ToLower(link.HRef)
			switch link.Rel {
			case "self":
				self = resolve(link.HRef)
			case "signature":
				sign = resolve(link.HRef)
			case "hash":
				switch {
				case strings.HasSuffix(lower, ".sha256"):
					sha256 = resolve(link.HRef)
				case strings.HasSuffix(lower, ".sha512"):
					sha512 = resolve(link.HRef)
				}
			}
		}
		if self == "" {
			self = resolve(entry.Content.Src)
		}
		if self == "" {
			continue
		}
		if sha256 != "" || sha512 != "" || sign != "" {
			files = append(files, HashedAdvisoryFile{self, sha256, sha512, sign})
		} else {
			files = append(files, PlainAdvisoryFile(self))
		}
	}
	return files
}
