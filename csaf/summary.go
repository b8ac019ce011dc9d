// This file is Free Software under the MIT License
// without warranty, see README.md and LICENSES/MIT.txt for details.
//
// SPDX-License-Identifier: MIT
//
// SPDX-FileCopyrightText: 2024 German Federal Office for Information Security (BSI) <https://www.bsi.bund.de>
// Software-Engineering: 2024 Intevation GmbH <https://intevation.de>

package csaf

import (
	"regexp"
	"strings"
	"time"

	"github.com/csaf-poc/csaf_harvester/util"
)

const (
	idExpr                 = `$.document.tracking.id`
	versionExpr            = `$.document.tracking.version`
	titleExpr              = `$.document.title`
	aggregateSeverityExpr  = `$.document.aggregate_severity`
	severityExpr           = `$.document.severity`
	initialReleaseDateExpr = `$.document.tracking.initial_release_date`
	currentReleaseDateExpr = `$.document.tracking.current_release_date`
	tlpLabelExpr           = `$.document.distribution.tlp.label`
)

// titleSeverityRe matches severity tokens like [H/M] in titles.
var titleSeverityRe = regexp.MustCompile(`(?i)\[[HML]/[HML]\]`)

// AdvisorySummary is a summary of some essentials of an CSAF advisory.
type AdvisorySummary struct {
	ID                 string
	Version            string
	Title              string
	Severity           string
	InitialReleaseDate time.Time
	CurrentReleaseDate time.Time
	TLPLabel           string
}

// NewAdvisorySummary creates a summary from an advisory doc
// with the help of an expression evaluator pe.
// All fields are optional. Missing or malformed values stay empty.
func NewAdvisorySummary(pe *util.PathEval, doc any) (*AdvisorySummary, error) {

	e := new(AdvisorySummary)

	for _, x := range []struct {
		expr   string
		action func(any) error
	}{
		{idExpr, util.StringMatcher(&e.ID)},
		{versionExpr, util.StringMatcher(&e.Version)},
		{titleExpr, util.StringMatcher(&e.Title)},
		{aggregateSeverityExpr, severityMatcher(&e.Severity)},
		{initialReleaseDateExpr, util.TimeMatcher(&e.InitialReleaseDate, time.RFC3339)},
		{currentReleaseDateExpr, util.TimeMatcher(&e.CurrentReleaseDate, time.RFC3339)},
		{tlpLabelExpr, util.StringMatcher(&e.TLPLabel)},
	} {
		if err := pe.Extract(x.expr, x.action, true, doc); err != nil {
			return nil, err
		}
	}

	if e.Severity == "" {
		if err := pe.Extract(severityExpr, util.StringMatcher(&e.Severity), true, doc); err != nil {
			return nil, err
		}
	}
	if e.Severity == "" {
		e.Severity = titleSeverityRe.FindString(e.Title)
	}

	e.ID = strings.TrimSpace(e.ID)
	e.InitialReleaseDate = e.InitialReleaseDate.UTC()
	e.CurrentReleaseDate = e.CurrentReleaseDate.UTC()

	return e, nil
}

// severityMatcher accepts the aggregate severity as an object
// with a text field or as a plain string.
func severityMatcher(dst *string) func(any) error {
	return func(x any) error {
		switch v := x.(type) {
		case string:
			*dst = strings.TrimSpace(v)
		case map[string]any:
			if text, ok := v["text"].(string); ok {
				*dst = strings.TrimSpace(text)
			}
		}
		return nil
	}
}
