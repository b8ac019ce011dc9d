// This file is Free Software under the MIT License
// without warranty, see README.md and LICENSES/MIT.txt for details.
//
// SPDX-License-Identifier: MIT
//
// SPDX-FileCopyrightText: 2024 German Federal Office for Information Security (BSI) <https://www.bsi.bund.de>
// Software-Engineering: 2024 Intevation GmbH <https://intevation.de>

package csaf

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/csaf-poc/csaf_harvester/util"
)

// AdvisoryFile constructs the urls of a remote file.
type AdvisoryFile interface {
	URL() string
	SHA256URL() string
	SHA512URL() string
	SignURL() string
}

// PlainAdvisoryFile is a simple implementation of AdvisoryFile.
// The hash and signature files are directly constructed by extending
// the file name.
type PlainAdvisoryFile string

// URL returns the URL of this advisory.
func (paf PlainAdvisoryFile) URL() string { return string(paf) }

// SHA256URL returns the URL of SHA256 hash file of this advisory.
func (paf PlainAdvisoryFile) SHA256URL() string { return string(paf) + ".sha256" }

// SHA512URL returns the URL of SHA512 hash file of this advisory.
func (paf PlainAdvisoryFile) SHA512URL() string { return string(paf) + ".sha512" }

// SignURL returns the URL of signature file of this advisory.
func (paf PlainAdvisoryFile) SignURL() string { return string(paf) + ".asc" }

// HashedAdvisoryFile is an AdvisoryFile where each component
// can be given explicitly, as ROLIE feeds do.
// If a component is not given it is constructed by
// extending the first component.
type HashedAdvisoryFile [4]string

func (haf HashedAdvisoryFile) name(i int, ext string) string {
	if haf[i] != "" {
		return haf[i]
	}
	return haf[0] + ext
}

// URL returns the URL of this advisory.
func (haf HashedAdvisoryFile) URL() string { return haf[0] }

// SHA256URL returns the URL of SHA256 hash file of this advisory.
func (haf HashedAdvisoryFile) SHA256URL() string { return haf.name(1, ".sha256") }

// SHA512URL returns the URL of SHA512 hash file of this advisory.
func (haf HashedAdvisoryFile) SHA512URL() string { return haf.name(2, ".sha512") }

// SignURL returns the URL of signature file of this advisory.
func (haf HashedAdvisoryFile) SignURL() string { return haf.name(3, ".asc") }

// advisoryNameRe matches advisory file names like ncsc-2024-0001.json.
var advisoryNameRe = regexp.MustCompile(`(?i)([a-z][a-z0-9]*)-(\d{4})-(\d+)\.json$`)

// ncscIDRe matches tracking ids like NCSC-2024-0001.
var ncscIDRe = regexp.MustCompile(`(?i)^NCSC-(\d{4})-(\d{4})`)

// ParseAdvisoryName extracts year and sequence number from
// an advisory file name. ok is false if the name does not
// carry an advisory id.
func ParseAdvisoryName(name string) (year, seq int, ok bool) {
	m := advisoryNameRe.FindStringSubmatch(name)
	if m == nil {
		return 0, 0, false
	}
	y, err1 := strconv.Atoi(m[2])
	s, err2 := strconv.Atoi(m[3])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return y, s, true
}

// NormalizeListing turns the hrefs of a directory listing of a given
// year into file names relative to the year directory. Absolute URLs
// keep the part after the last /<year>/ path element. Relative
// names lose leading dots and slashes and a leading <year>/.
// Entries which do not carry an advisory id are dropped.
func NormalizeListing(links []string, year int) []string {
	y := strconv.Itoa(year)
	var names []string
	for _, link := range links {
		f := strings.TrimSpace(link)
		if f == "" {
			continue
		}
		lower := strings.ToLower(f)
		if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
			idx := strings.LastIndex(f, "/"+y+"/")
			if idx < 0 {
				continue
			}
			f = f[idx+len(y)+2:]
		}
		f = strings.TrimLeft(f, "./")
		f = strings.TrimPrefix(f, y+"/")
		if advisoryNameRe.MatchString(f) {
			names = append(names, f)
		}
	}
	return names
}

type advisoryKey struct {
	year, seq int
	name      string
}

func newAdvisoryKey(name string) advisoryKey {
	year, seq, _ := ParseAdvisoryName(name)
	return advisoryKey{year: year, seq: seq, name: strings.ToLower(name)}
}

func (a advisoryKey) less(b advisoryKey) bool {
	switch {
	case a.year != b.year:
		return a.year < b.year
	case a.seq != b.seq:
		return a.seq < b.seq
	}
	return a.name < b.name
}

// SortAdvisoryFiles de-duplicates the given files by URL and sorts them
// by year, sequence number and lower cased base name of the URLs.
// Files without an advisory id sort first.
func SortAdvisoryFiles(files []AdvisoryFile) []AdvisoryFile {
	seen := util.Set[string]{}
	unique := make([]AdvisoryFile, 0, len(files))
	for _, f := range files {
		if seen.Contains(f.URL()) {
			continue
		}
		seen.Add(f.URL())
		unique = append(unique, f)
	}
	keys := make([]advisoryKey, len(unique))
	for i, f := range unique {
		keys[i] = newAdvisoryKey(path.Base(f.URL()))
	}
	idx := make([]int, len(unique))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return keys[idx[i]].less(keys[idx[j]])
	})
	sorted := make([]AdvisoryFile, len(unique))
	for i, k := range idx {
		sorted[i] = unique[k]
	}
	return sorted
}

// AdvisoryLink returns the link to the HTML rendition of an advisory
// at htmlBase if id is an NCSC tracking id. Otherwise fallback is returned.
func AdvisoryLink(id, htmlBase, fallback string) string {
	m := ncscIDRe.FindStringSubmatch(id)
	if m == nil || htmlBase == "" {
		return fallback
	}
	return fmt.Sprintf("%s/%s/ncsc-%s-%s.html",
		strings.TrimRight(htmlBase, "/"), m[1], m[1], m[2])
}
