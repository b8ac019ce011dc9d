// This file is Free Software under the MIT License
// without warranty, see README.md and LICENSES/MIT.txt for details.
//
// SPDX-License-Identifier: MIT
//
// SPDX-FileCopyrightText: 2024 German Federal Office for Information Security (BSI) <https://www.bsi.bund.de>
// Software-Engineering: 2024 Intevation GmbH <https://intevation.de>

package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/csaf-poc/csaf_harvester/util"
)

// LastRun is the record of the last harvest run.
type LastRun struct {
	NewCount    int       `json:"new_count"`
	CSVPath     string    `json:"csv_path"`
	LastRunAt   time.Time `json:"last_run_at"`
	TodaysCount int       `json:"todays_count"`
}

// LastRunPath returns the path of the run record below dir.
func LastRunPath(dir string) string {
	return filepath.Join(dir, "last_run.json")
}

// WriteLastRun stores lr as JSON in fname. Missing parent
// directories are created.
func WriteLastRun(fname string, lr *LastRun) error {
	return util.WriteJSONToFile(fname, lr)
}

// ReadLastRun loads a run record from fname.
func ReadLastRun(fname string) (*LastRun, error) {
	data, err := os.ReadFile(fname)
	if err != nil {
		return nil, err
	}
	var lr LastRun
	if err := json.Unmarshal(data, &lr); err != nil {
		return nil, err
	}
	return &lr, nil
}
