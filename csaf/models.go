// This file is Free Software under the MIT License
// without warranty, see README.md and LICENSES/MIT.txt for details.
//
// SPDX-License-Identifier: MIT
//
// SPDX-FileCopyrightText: 2024 German Federal Office for Information Security (BSI) <https://www.bsi.bund.de>
// Software-Engineering: 2024 Intevation GmbH <https://intevation.de>

package csaf

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// TLPLabel is the traffic light protocol label of a feed.
type TLPLabel string

// Known TLP labels. CLEAR is the TLP 2.0 name of WHITE.
const (
	TLPLabelUnlabeled TLPLabel = "UNLABELED"
	TLPLabelWhite     TLPLabel = "WHITE"
	TLPLabelClear     TLPLabel = "CLEAR"
	TLPLabelGreen     TLPLabel = "GREEN"
	TLPLabelAmber     TLPLabel = "AMBER"
	TLPLabelRed       TLPLabel = "RED"
)

var tlpLabelPattern = alternativesUnmarshal(
	string(TLPLabelUnlabeled),
	string(TLPLabelWhite),
	string(TLPLabelClear),
	string(TLPLabelGreen),
	string(TLPLabelAmber),
	string(TLPLabelRed))

// Feed is a ROLIE feed announced in the provider metadata.
type Feed struct {
	Summary  string   `json:"summary,omitempty"`
	TLPLabel TLPLabel `json:"tlp_label"` // required
	URL      string   `json:"url"`       // required
}

// ROLIE groups the ROLIE feeds of a distribution.
type ROLIE struct {
	Categories []string `json:"categories,omitempty"`
	Feeds      []Feed   `json:"feeds"` // required
	Services   []string `json:"services,omitempty"`
}

// Distribution is a way a provider publishes its advisories.
type Distribution struct {
	DirectoryURL string `json:"directory_url,omitempty"`
	Rolie        *ROLIE `json:"rolie,omitempty"`
}

// TimeStamp is a RFC 3339 encoded time.
type TimeStamp time.Time

// Fingerprint is the hex encoded fingerprint of an OpenPGP key.
type Fingerprint string

var fingerprintPattern = patternUnmarshal(`^[0-9a-fA-F]{40,}$`)

// PGPKey is a public OpenPGP key of the provider.
type PGPKey struct {
	Fingerprint Fingerprint `json:"fingerprint,omitempty"`
	URL         string      `json:"url"` // required
}

// Publisher is the publisher of the provider metadata.
type Publisher struct {
	Category         string `json:"category"`  // required
	Name             string `json:"name"`      // required
	Namespace        string `json:"namespace"` // required
	ContactDetails   string `json:"contact_details,omitempty"`
	IssuingAuthority string `json:"issuing_authority,omitempty"`
}

// ProviderMetadata is the parts of a provider-metadata.json
// needed to find the advisories of a provider.
type ProviderMetadata struct {
	CanonicalURL    string         `json:"canonical_url"` // required
	Distributions   []Distribution `json:"distributions,omitempty"`
	LastUpdated     *TimeStamp     `json:"last_updated,omitempty"`
	MetadataVersion string         `json:"metadata_version,omitempty"`
	PGPKeys         []PGPKey       `json:"public_openpgp_keys,omitempty"`
	Publisher       *Publisher     `json:"publisher,omitempty"`
	Role            string         `json:"role,omitempty"`
	// BaseURL is not part of the standard but published by some
	// providers instead of a directory distribution.
	BaseURL string `json:"base_url,omitempty"`
}

func patternUnmarshal(pattern string) func([]byte) (string, error) {
	r := regexp.MustCompile(pattern)
	return func(data []byte) (string, error) {
		s := string(data)
		if !r.MatchString(s) {
			return "", fmt.Errorf("%s does not match %v", s, r)
		}
		return s, nil
	}
}

func alternativesUnmarshal(alternatives ...string) func([]byte) (string, error) {
	return func(data []byte) (string, error) {
		s := string(data)
		for _, alt := range alternatives {
			if alt == s {
				return s, nil
			}
		}
		return "", fmt.Errorf("%s not in [%s]", s, strings.Join(alternatives, "|"))
	}
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (ts *TimeStamp) UnmarshalText(data []byte) error {
	t, err := time.Parse(time.RFC3339, string(data))
	if err != nil {
		return err
	}
	*ts = TimeStamp(t)
	return nil
}

// MarshalText implements [encoding.TextMarshaler].
func (ts TimeStamp) MarshalText() ([]byte, error) {
	return []byte(time.Time(ts).Format(time.RFC3339)), nil
}

// Validate checks the mandatory fields of a feed.
func (f *Feed) Validate() error {
	switch {
	case f.URL == "":
		return errors.New("feed[].url is mandatory")
	case f.TLPLabel == "":
		return errors.New("feed[].tlp_label is mandatory")
	}
	_, err := tlpLabelPattern([]byte(f.TLPLabel))
	return err
}

// Validate checks the mandatory fields of a key.
func (pk *PGPKey) Validate() error {
	if pk.URL == "" {
		return errors.New("public_openpgp_keys[].url is mandatory")
	}
	if pk.Fingerprint != "" {
		if _, err := fingerprintPattern([]byte(pk.Fingerprint)); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks the mandatory fields of the provider metadata.
// All problems found are returned joined.
func (pmd *ProviderMetadata) Validate() error {
	var errs []error
	if pmd.CanonicalURL == "" {
		errs = append(errs, errors.New("canonical_url is mandatory"))
	}
	for i := range pmd.PGPKeys {
		if err := pmd.PGPKeys[i].Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, d := range pmd.Distributions {
		if d.Rolie == nil {
			continue
		}
		for i := range d.Rolie.Feeds {
			if err := d.Rolie.Feeds[i].Validate(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// DirectoryURL returns the URL of the first directory based
// distribution without a trailing slash. If there is none
// the non-standard base_url is used. Empty if neither is found.
func (pmd *ProviderMetadata) DirectoryURL() string {
	for _, d := range pmd.Distributions {
		if u := strings.TrimRight(d.DirectoryURL, "/"); u != "" {
			return u
		}
	}
	return strings.TrimRight(pmd.BaseURL, "/")
}

// FeedURLs returns the URLs of all ROLIE feeds.
func (pmd *ProviderMetadata) FeedURLs() []string {
	var urls []string
	for _, d := range pmd.Distributions {
		if d.Rolie == nil {
			continue
		}
		for _, f := range d.Rolie.Feeds {
			if f.URL != "" {
				urls = append(urls, f.URL)
			}
		}
	}
	return urls
}

// KeyURLs returns the URLs of the public OpenPGP keys.
func (pmd *ProviderMetadata) KeyURLs() []string {
	var urls []string
	for _, k := range pmd.PGPKeys {
		if k.URL != "" {
			urls = append(urls, k.URL)
		}
	}
	return urls
}
