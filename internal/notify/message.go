// This file is Free Software under the MIT License
// without warranty, see README.md and LICENSES/MIT.txt for details.
//
// SPDX-License-Identifier: MIT
//
// SPDX-FileCopyrightText: 2024 German Federal Office for Information Security (BSI) <https://www.bsi.bund.de>
// Software-Engineering: 2024 Intevation GmbH <https://intevation.de>

package notify

import (
	"fmt"
	"html"
	"strconv"
	"strings"
	"unicode"

	"github.com/csaf-poc/csaf_harvester/internal/report"
)

// Limits of the generated messages.
const (
	maxTelegramMessage = 3900
	maxDescription     = 300
	maxSeverity        = 50
	maxCardTitle       = 250
	maxCardText        = 7000
	maxCardSections    = 5
	maxBriefLines      = 10
)

// Severities of a card.
const (
	SeverityHigh   = "High"
	SeverityMedium = "Medium"
	SeverityLow    = "Low"
	SeverityInfo   = "Info"
)

var themeColors = map[string]string{
	SeverityHigh:   "ff0000",
	SeverityMedium: "ffa500",
	SeverityLow:    "2eb886",
	SeverityInfo:   "0078d7",
}

// Fact is a name/value pair shown in a card section.
type Fact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Section is a section of a card.
type Section struct {
	Text  string `json:"text,omitempty"`
	Facts []Fact `json:"facts,omitempty"`
}

// Card is a legacy actionable MessageCard understood by
// Teams incoming webhooks.
type Card struct {
	Type       string    `json:"@type"`
	Context    string    `json:"@context"`
	ThemeColor string    `json:"themeColor"`
	Summary    string    `json:"summary"`
	Title      string    `json:"title"`
	Text       string    `json:"text"`
	Sections   []Section `json:"sections,omitempty"`
}

// NewCard creates a card. The colour follows the severity.
// An empty title defaults to one naming the severity.
func NewCard(message, severity, title string, sections []Section) *Card {
	color, ok := themeColors[severity]
	if !ok {
		color = themeColors[SeverityInfo]
	}
	if title == "" {
		title = "NCSC CSAF Harvester (" + severity + ")"
	}
	return &Card{
		Type:       "MessageCard",
		Context:    "http://schema.org/extensions",
		ThemeColor: color,
		Summary:    title,
		Title:      title,
		Text:       message,
		Sections:   sections,
	}
}

// truncated returns a copy of the card within the size limits
// of the webhook.
func (c *Card) truncated() *Card {
	t := *c
	t.Summary = truncate(t.Summary, maxCardTitle)
	t.Title = truncate(t.Title, maxCardTitle)
	t.Text = truncate(t.Text, maxCardText)
	if len(t.Sections) > maxCardSections {
		t.Sections = t.Sections[:maxCardSections]
	}
	return &t
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-3]) + "..."
}

// BuildUrgentMessage renders the rows as an HTML message for Telegram.
// Descriptions are cut at 300 characters. Rows not fitting into
// the message size limit are left out.
func BuildUrgentMessage(recs []report.Record) string {
	const header = "🚨😡 <b>URGENT</b>\n\nDetails:\n"

	var b strings.Builder
	b.WriteString(header)
	size := len([]rune(header))

	for i, rec := range recs {
		sev := rec.Get(report.ColumnSeverity)
		if sev == "" {
			sev = "?"
		}
		desc := rec.Get(report.ColumnDescription)
		if desc == "" {
			desc = "Unknown advisory"
		}
		if r := []rune(desc); len(r) > maxDescription {
			desc = strings.TrimRightFunc(string(r[:maxDescription]), unicode.IsSpace) + "…"
		}
		line := "• <b>[" + html.EscapeString(sev) + "]</b> — " + html.EscapeString(desc)
		if link := rec.Get(report.ColumnLink, "AdvisoryURL", "URL"); link != "" {
			line += "\n  🔗 <a href='" + html.EscapeString(link) + "'>View advisory</a>"
		}
		if i > 0 {
			line = "\n" + line
		}
		n := len([]rune(line))
		if size+n > maxTelegramMessage {
			if i == 0 {
				// Not even one row fits. Drop the link and shorten the texts.
				b.WriteString(fitRow(sev, desc, maxTelegramMessage-size))
			}
			break
		}
		b.WriteString(line)
		size += n
	}
	return b.String()
}

// fitRow renders a row without its link in at most limit runes.
// The texts are cut before escaping so the markup stays intact.
func fitRow(sev, desc string, limit int) string {
	const open, mid = "• <b>[", "]</b> — "
	limit -= len([]rune(open + mid))
	sev = escapeWithin(sev, min(limit, maxSeverity))
	limit -= len([]rune(sev))
	return open + sev + mid + escapeWithin(desc, limit)
}

// escapeWithin HTML-escapes the longest prefix of s whose
// escaped form has at most limit runes.
func escapeWithin(s string, limit int) string {
	var b strings.Builder
	n := 0
	for _, r := range s {
		e := html.EscapeString(string(r))
		k := len([]rune(e))
		if n+k > limit {
			break
		}
		b.WriteString(e)
		n += k
	}
	return b.String()
}

func briefLine(rec report.Record) string {
	var parts []string
	if id := rec.Get(report.ColumnAdvisoryID, "id"); id != "" {
		parts = append(parts, "**"+id+"**")
	}
	if title := rec.Get(report.ColumnDescription, "Title", "title"); title != "" {
		parts = append(parts, title)
	}
	if link := rec.Get(report.ColumnLink, "URL", "url"); link != "" {
		parts = append(parts, "[link]("+link+")")
	}
	if cvss := rec.Get("CVSS", "cvss"); cvss != "" {
		parts = append(parts, "(CVSS: "+cvss+")")
	}
	if len(parts) == 0 {
		return "New advisory"
	}
	return strings.Join(parts, " — ")
}

// TeamsBrief summarizes a notification run as a card.
// runURL optionally links the pipeline run.
func TeamsBrief(high, medium []report.Record, totalNew int, runURL string) *Card {
	if len(high) == 0 {
		return NewCard(
			fmt.Sprintf("No new high-risk CSAF advisories were found. Total new: %d.", totalNew),
			SeverityInfo,
			"No new high-risk advisories",
			[]Section{{Facts: []Fact{
				{Name: "High", Value: "0"},
				{Name: "Medium", Value: strconv.Itoa(len(medium))},
			}}})
	}

	var b strings.Builder
	for i, rec := range high {
		if i == maxBriefLines {
			b.WriteString("\n… (more items in log/artifact)")
			break
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- " + briefLine(rec))
	}
	if runURL != "" {
		b.WriteString("\n\n[Pipeline run](" + runURL + ")")
	}

	return NewCard(
		b.String(),
		SeverityHigh,
		fmt.Sprintf("%d new HIGH-risk CSAF advisories", len(high)),
		[]Section{{Facts: []Fact{
			{Name: "Total new", Value: strconv.Itoa(totalNew)},
			{Name: "High", Value: strconv.Itoa(len(high))},
			{Name: "Medium", Value: strconv.Itoa(len(medium))},
		}}})
}
