// This file is Free Software under the MIT License
// without warranty, see README.md and LICENSES/MIT.txt for details.
//
// SPDX-License-Identifier: MIT
//
// SPDX-FileCopyrightText: 2024 German Federal Office for Information Security (BSI) <https://www.bsi.bund.de>
// Software-Engineering: 2024 Intevation GmbH <https://intevation.de>

// Package report contains the daily CSV reports and run records
// shared by the harvester and the notifier.
package report

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/csaf-poc/csaf_harvester/util"
)

// Column names of the daily CSV.
const (
	ColumnAdvisoryID  = "AdvisoryID"
	ColumnVersion     = "Version"
	ColumnSeverity    = "Severity"
	ColumnDescription = "Description"
	ColumnLink        = "Link"
)

// Header is the header line of the daily CSV.
var Header = []string{
	ColumnAdvisoryID,
	ColumnVersion,
	ColumnSeverity,
	ColumnDescription,
	ColumnLink,
}

// Advisory is a row of the daily CSV.
type Advisory struct {
	ID          string
	Version     string
	Severity    string
	Description string
	Link        string
}

// Fields returns the row in the order of [Header].
func (a *Advisory) Fields() []string {
	return []string{a.ID, a.Version, a.Severity, a.Description, a.Link}
}

// Record is a CSV row keyed by the column names of the header.
type Record map[string]string

// Get returns the first non-empty value of the given columns.
// Surrounding white space is not trimmed.
func (r Record) Get(keys ...string) string {
	for _, k := range keys {
		if v := r[k]; v != "" {
			return v
		}
	}
	return ""
}

// Record converts the advisory into a record.
func (a *Advisory) Record() Record {
	rec := make(Record, len(Header))
	for i, v := range a.Fields() {
		rec[Header[i]] = v
	}
	return rec
}

// WriteCSV writes the header and the rows fully quoted to w.
func WriteCSV(w io.Writer, rows []Advisory) error {
	out := util.NewFullyQuotedCSVWriter(w)
	records := make([][]string, 0, len(rows)+1)
	records = append(records, Header)
	for i := range rows {
		records = append(records, rows[i].Fields())
	}
	return out.WriteAll(records)
}

// WriteCSVFile writes the rows as CSV into the file fname.
func WriteCSVFile(fname string, rows []Advisory) error {
	return util.WriteToFile(fname, util.WriterToFunc(func(w io.Writer) error {
		return WriteCSV(w, rows)
	}))
}

// ReadCSV reads a CSV with a header line from r.
// Every column found in the header is accepted.
func ReadCSV(r io.Reader) ([]Record, error) {
	br := bufio.NewReader(r)
	// Skip a UTF-8 byte order mark.
	if bom, err := br.Peek(3); err == nil && string(bom) == "\xef\xbb\xbf" {
		br.Discard(3)
	}
	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading CSV header failed: %w", err)
	}

	var records []Record
	for {
		line, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV failed: %w", err)
		}
		rec := make(Record, len(header))
		for i, h := range header {
			if i < len(line) {
				rec[h] = line[i]
			} else {
				rec[h] = ""
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// ReadCSVFile reads the CSV file fname.
func ReadCSVFile(fname string) ([]Record, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f)
}

// LatestCSV returns the lexicographically greatest *.csv file in dir.
// An empty string is returned if there is none or dir does not exist.
func LatestCSV(dir string) (string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", nil
	}
	sort.Strings(files)
	return files[len(files)-1], nil
}

// DailyDir returns the directory of the daily reports below dir.
func DailyDir(dir string) string {
	return filepath.Join(dir, "daily")
}

// DailyPath returns the path of the daily report of day t below dir.
func DailyPath(dir string, t time.Time) string {
	return filepath.Join(DailyDir(dir), t.Format(time.DateOnly)+".csv")
}
