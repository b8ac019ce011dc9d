// This file is Free Software under the Apache-2.0 License
// without warranty, see README.md and LICENSES/Apache-2.0.txt for details.
//
// SPDX-License-Identifier: Apache-2.0
//
// SPDX-FileCopyrightText: 2024 German Federal Office for Information Security (BSI) <https://www.bsi.bund.de>
// Software-Engineering: 2024 Intevation GmbH <https://intevation.de>

package harvester

import (
	"log/slog"

	"github.com/csaf-poc/csaf_harvester/internal/metrics"
)

// stats contains counters of the downloads.
type stats struct {
	downloadFailed  int
	schemaFailed    int
	sha256Failed    int
	sha512Failed    int
	signatureFailed int
	filtered        int
	succeeded       int
}

// add adds other stats to this.
func (st *stats) add(o *stats) {
	st.downloadFailed += o.downloadFailed
	st.schemaFailed += o.schemaFailed
	st.sha256Failed += o.sha256Failed
	st.sha512Failed += o.sha512Failed
	st.signatureFailed += o.signatureFailed
	st.filtered += o.filtered
	st.succeeded += o.succeeded
}

func (st *stats) totalFailed() int {
	return st.downloadFailed +
		st.schemaFailed +
		st.sha256Failed +
		st.sha512Failed +
		st.signatureFailed
}

// log logs the collected stats.
func (st *stats) log(logger *slog.Logger) {
	logger.Info("Harvest statistics",
		"succeeded", st.succeeded,
		"total_failed", st.totalFailed(),
		"download_failed", st.downloadFailed,
		"schema_failed", st.schemaFailed,
		"sha256_failed", st.sha256Failed,
		"sha512_failed", st.sha512Failed,
		"signature_failed", st.signatureFailed,
		"filtered", st.filtered)
}

// record adds the stats to the run metrics.
func (st *stats) record(m *metrics.Run) {
	m.Count("succeeded", st.succeeded)
	m.Count("download_failed", st.downloadFailed)
	m.Count("schema_failed", st.schemaFailed)
	m.Count("sha256_failed", st.sha256Failed)
	m.Count("sha512_failed", st.sha512Failed)
	m.Count("signature_failed", st.signatureFailed)
	m.Count("filtered", st.filtered)
}
