// This file is Free Software under the MIT License
// without warranty, see README.md and LICENSES/MIT.txt for details.
//
// SPDX-License-Identifier: MIT
//
// SPDX-FileCopyrightText: 2024 German Federal Office for Information Security (BSI) <https://www.bsi.bund.de>
// Software-Engineering: 2024 Intevation GmbH <https://intevation.de>

package dedupe

import (
	"regexp"
	"strings"

	"github.com/csaf-poc/csaf_harvester/internal/report"
	"github.com/csaf-poc/csaf_harvester/util"
)

var (
	// idColumns are the columns holding an advisory id.
	idColumns = []string{
		"AdvisoryID", "TrackingID", "ID", "CsafID", "Tracking.Id", "tracking.id",
	}
	// textColumns are searched for an embedded advisory id.
	textColumns = []string{"Description", "Title", "Naam", "Name"}
	// signatureColumns build the fallback signature.
	signatureColumns = []string{"Title", "Description", "Vendor", "Product", "CVE", "URL"}
)

var advisoryIDRe = regexp.MustCompile(`(?i)NCSC-\d{4}-\d{4}`)

// AdvisoryKey returns a stable key for a report row.
// The first non-empty id column is used. Without one the first
// NCSC id found in the text columns is taken in upper case.
// Otherwise the key is a hash over the signature columns.
func AdvisoryKey(rec report.Record) string {
	for _, col := range idColumns {
		if v := strings.TrimSpace(rec[col]); v != "" {
			return v
		}
	}
	for _, col := range textColumns {
		if m := advisoryIDRe.FindString(rec[col]); m != "" {
			return strings.ToUpper(m)
		}
	}
	sig := make([]string, len(signatureColumns))
	for i, col := range signatureColumns {
		sig[i] = strings.TrimSpace(rec[col])
	}
	return "HASH:" + util.SHA256Hex(strings.Join(sig, "|"))[:16]
}
