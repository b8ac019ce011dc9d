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
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/csaf-poc/csaf_harvester/util"
)

// ProviderMetadataLoader helps load provider-metadata.json from
// the various locations.
type ProviderMetadataLoader struct {
	client util.Client
	logger *slog.Logger
}

// ProviderMetadataLoadMessageType is the type of the message.
type ProviderMetadataLoadMessageType int

const (
	// HTTPFailed indicates a transport problem or a bad status code.
	HTTPFailed ProviderMetadataLoadMessageType = iota
	// JSONDecodingFailed indicates problems with JSON decoding
	JSONDecodingFailed
	// SchemaValidationFailed indicates a general problem with schema validation.
	SchemaValidationFailed
	// SchemaValidationFailedDetail is a failure detail in schema validation.
	SchemaValidationFailedDetail
)

// String implements [fmt.Stringer].
func (t ProviderMetadataLoadMessageType) String() string {
	switch t {
	case HTTPFailed:
		return "http failed"
	case JSONDecodingFailed:
		return "json decoding failed"
	case SchemaValidationFailed:
		return "schema validation failed"
	case SchemaValidationFailedDetail:
		return "schema validation failed detail"
	default:
		return fmt.Sprintf("unknown message type %d", int(t))
	}
}

// ProviderMetadataLoadMessage is a message generated while loading
// a provider meta data file.
type ProviderMetadataLoadMessage struct {
	Type    ProviderMetadataLoadMessageType
	Message string
}

// ProviderMetadataLoadMessages is a list of loading messages.
type ProviderMetadataLoadMessages []ProviderMetadataLoadMessage

// LoadedProviderMetadata represents a loaded provider metadata.
type LoadedProviderMetadata struct {
	// URL is location where the document was found.
	URL string
	// Document is the de-serialized JSON document.
	Document any
	// Metadata is the typed version of Document.
	Metadata *ProviderMetadata
	// Hash is a SHA256 sum over the document.
	Hash []byte
	// Messages are the error message happened while loading.
	Messages ProviderMetadataLoadMessages
}

// Add appends a message to the list of loading messages.
func (pmlm *ProviderMetadataLoadMessages) Add(
	typ ProviderMetadataLoadMessageType,
	msg string,
) {
	*pmlm = append(*pmlm, ProviderMetadataLoadMessage{
		Type:    typ,
		Message: msg,
	})
}

// AppendUnique appends unique messages from a second list.
func (pmlm *ProviderMetadataLoadMessages) AppendUnique(other ProviderMetadataLoadMessages) {
next:
	for _, o := range other {
		for _, m := range *pmlm {
			if m == o {
				continue next
			}
		}
		*pmlm = append(*pmlm, o)
	}
}

// Valid returns true if the loaded document is valid.
func (lpm *LoadedProviderMetadata) Valid() bool {
	return lpm != nil && lpm.Document != nil && lpm.Metadata != nil && lpm.Hash != nil
}

// NewProviderMetadataLoader create a new loader.
// If logger is nil the default logger is used.
func NewProviderMetadataLoader(
	client util.Client,
	logger *slog.Logger,
) *ProviderMetadataLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProviderMetadataLoader{
		client: client,
		logger: logger,
	}
}

// Load loads a provider metadata for a given path.
// If the path starts with `https://` it only attempts to load
// the data from that URL. Otherwise the path is taken as a domain
// and the well-known location, the security.txt and the DNS path
// are tried in this order. The result is never nil but may be
// invalid. The messages collect the problems of all attempts.
// The requests are bound to ctx.
func (pmdl *ProviderMetadataLoader) Load(ctx context.Context, path string) *LoadedProviderMetadata {

	// check direct path
	lower := strings.ToLower(path)
	if strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "http://") {
		return pmdl.loadFromURL(ctx, path)
	}

	domain := strings.TrimRight(path, "/")
	var messages ProviderMetadataLoadMessages

	// First try the well-known path.
	wellknownURL := "https://" + domain + "/.well-known/csaf/provider-metadata.json"
	wellknown := pmdl.loadFromURL(ctx, wellknownURL)
	if wellknown.Valid() {
		return wellknown
	}
	messages.AppendUnique(wellknown.Messages)

	// Next load the PMDs from security.txt
	secURL := "https://" + domain + "/.well-known/security.txt"
	for _, u := range pmdl.loadFromSecurity(ctx, secURL, &messages) {
		lpmd := pmdl.loadFromURL(ctx, u)
		if lpmd.Valid() {
			return lpmd
		}
		messages.AppendUnique(lpmd.Messages)
	}

	// Last resort: the DNS path.
	dnsURL := "https://csaf.data.security." + domain + "/.well-known/csaf/provider-metadata.json"
	dns := pmdl.loadFromURL(ctx, dnsURL)
	if dns.Valid() {
		return dns
	}
	messages.AppendUnique(dns.Messages)

	return &LoadedProviderMetadata{
		URL:      wellknownURL,
		Messages: messages,
	}
}

// loadFromSecurity returns the provider metadata URLs
// announced in a security.txt.
func (pmdl *ProviderMetadataLoader) loadFromSecurity(
	ctx context.Context,
	path string,
	messages *ProviderMetadataLoadMessages,
) []string {
	res, err := util.GetContext(ctx, pmdl.client, path)
	if err != nil {
		messages.Add(HTTPFailed,
			fmt.Sprintf("fetching %q failed: %v", path, err))
		return nil
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		messages.Add(HTTPFailed,
			fmt.Sprintf("fetching %q failed: %s (%d)", path, res.Status, res.StatusCode))
		return nil
	}
	urls, err := ExtractProviderURL(res.Body, true)
	if err != nil {
		messages.Add(HTTPFailed,
			fmt.Sprintf("reading %q failed: %v", path, err))
		return nil
	}
	pmdl.logger.Debug("security.txt", "url", path, "found", len(urls))
	return urls
}

// loadFromURL loads a provider metadata from a given URL.
func (pmdl *ProviderMetadataLoader) loadFromURL(
	ctx context.Context,
	path string,
) *LoadedProviderMetadata {

	result := LoadedProviderMetadata{URL: path}

	res, err := util.GetContext(ctx, pmdl.client, path)
	if err != nil {
		result.Messages.Add(HTTPFailed,
			fmt.Sprintf("fetching %q failed: %v", path, err))
		return &result
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		result.Messages.Add(HTTPFailed,
			fmt.Sprintf("fetching %q failed: %s (%d)", path, res.Status, res.StatusCode))
		return &result
	}

	// Calculate checksum for later comparison.
	hash := sha256.New()
	tee := io.TeeReader(res.Body, hash)

	var doc any
	if err := json.NewDecoder(tee).Decode(&doc); err != nil {
		result.Messages.Add(JSONDecodingFailed,
			fmt.Sprintf("JSON decoding of %q failed: %v", path, err))
		return &result
	}

	var pmd ProviderMetadata
	if err := util.ReMarshalJSON(&pmd, doc); err != nil {
		result.Messages.Add(JSONDecodingFailed,
			fmt.Sprintf("%q is not a provider metadata: %v", path, err))
		return &result
	}

	if err := pmd.Validate(); err != nil {
		result.Messages.Add(SchemaValidationFailed,
			fmt.Sprintf("%q has invalid fields", path))
		for _, line := range strings.Split(err.Error(), "\n") {
			result.Messages.Add(SchemaValidationFailedDetail, line)
		}
	}

	result.Document = doc
	result.Metadata = &pmd
	result.Hash = hash.Sum(nil)
	return &result
}
