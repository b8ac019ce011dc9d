// This file is Free Software under the Apache-2.0 License
// without warranty, see README.md and LICENSES/Apache-2.0.txt for details.
//
// SPDX-License-Identifier: Apache-2.0
//
// SPDX-FileCopyrightText: 2024 German Federal Office for Information Security (BSI) <https://www.bsi.bund.de>
// Software-Engineering: 2024 Intevation GmbH <https://intevation.de>

package harvester

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/ProtonMail/gopenpgp/v2/crypto"

	"github.com/csaf-poc/csaf_harvester/internal/filter"
	"github.com/csaf-poc/csaf_harvester/internal/metrics"
	"github.com/csaf-poc/csaf_harvester/internal/models"
	"github.com/csaf-poc/csaf_harvester/internal/report"
)

const pmdPath = "/.well-known/csaf/provider-metadata.json"

// testNow is the fixed time of the test runs.
var testNow = time.Date(2024, time.May, 6, 7, 8, 9, 0, time.UTC)

// newTestProvider starts a server delivering the registered files.
// Paths not registered are answered with 404.
func newTestProvider(t *testing.T) (*httptest.Server, map[string]string) {
	t.Helper()
	files := map[string]string{}
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		switch {
		case strings.HasSuffix(r.URL.Path, ".json"):
			w.Header().Set("Content-Type", "application/json")
		case strings.HasSuffix(r.URL.Path, "/"):
			w.Header().Set("Content-Type", "text/html")
		default:
			w.Header().Set("Content-Type", "text/plain")
		}
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, files
}

func directoryPMD(base, extra string) string {
	return fmt.Sprintf(`{
  "canonical_url": "%[1]s%[2]s",
  "distributions": [{"directory_url": "%[1]s/csaf/v2/"}],
  "role": "csaf_provider"%[3]s
}`, base, pmdPath, extra)
}

func listing(links ...string) string {
	var b strings.Builder
	b.WriteString("<html><body><pre>\n")
	b.WriteString(`<a href="../">../</a>` + "\n")
	b.WriteString(`<a href="?C=N;O=D">Name</a>` + "\n")
	for _, l := range links {
		fmt.Fprintf(&b, "<a href=%q>%s</a>\n", l, l)
	}
	b.WriteString("</pre></body></html>\n")
	return b.String()
}

func advisory(id, title, severity, released string) string {
	var fields []string
	if title != "" {
		fields = append(fields, fmt.Sprintf(`"title": %q`, title))
	}
	if severity != "" {
		fields = append(fields,
			fmt.Sprintf(`"aggregate_severity": {"namespace": "https://www.ncsc.nl/", "text": %q}`, severity))
	}
	var tracking []string
	if id != "" {
		tracking = append(tracking, fmt.Sprintf(`"id": %q, "version": "1.0.0"`, id))
	}
	if released != "" {
		tracking = append(tracking, fmt.Sprintf(`"current_release_date": %q`, released))
	}
	fields = append(fields, `"tracking": {`+strings.Join(tracking, ", ")+`}`)
	return `{"document": {` + strings.Join(fields, ", ") + `}}`
}

func testConfig(t *testing.T, srv *httptest.Server) *Config {
	t.Helper()
	return &Config{
		Provider:       srv.URL + pmdPath,
		OutputDir:      t.TempDir(),
		BatchLimit:     DefaultBatchLimit,
		Worker:         3,
		HTMLBase:       DefaultHTMLBase,
		ValidationMode: ValidationStrict,
		Client:         srv.Client(),
		Now:            func() time.Time { return testNow },
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func readRows(t *testing.T, fname string) []report.Record {
	t.Helper()
	recs, err := report.ReadCSVFile(fname)
	if err != nil {
		t.Fatalf("reading %s failed: %v", fname, err)
	}
	return recs
}

func checkIDs(t *testing.T, recs []report.Record, ids ...string) {
	t.Helper()
	got := make([]string, len(recs))
	for i, rec := range recs {
		got[i] = rec[report.ColumnAdvisoryID]
	}
	if strings.Join(got, ",") != strings.Join(ids, ",") {
		t.Errorf("advisory ids: got %q expected %q", got, ids)
	}
}

func TestRunDirectoryListing(t *testing.T) {
	srv, files := newTestProvider(t)
	files[pmdPath] = directoryPMD(srv.URL, "")
	files["/csaf/v2/2024/"] = listing(
		"ncsc-2024-0010.json",
		"./ncsc-2024-0002.json",
		srv.URL+"/csaf/v2/2024/ncsc-2024-0003.json",
		"ncsc-2024-0001.json",
		"ncsc-2024-0001.json.sha256",
		"index.json",
	)
	files["/csaf/v2/2024/ncsc-2024-0001.json"] = advisory("NCSC-2024-0001", "Oud", "Low/Low", "")
	files["/csaf/v2/2024/ncsc-2024-0002.json"] = advisory(
		"NCSC-2024-0002", "Kwetsbaarheden verholpen in Product", "High/High", "")
	files["/csaf/v2/2024/ncsc-2024-0003.json"] = `{"document": {}}`
	files["/csaf/v2/2024/ncsc-2024-0010.json"] = advisory("ACME-2024-0010", "Other", "", "")

	cfg := testConfig(t, srv)
	cfg.BatchLimit = 3
	cfg.Metrics = metrics.NewRun("csaf_harvester")

	res, err := New(cfg).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.Written || res.Count != 3 || res.Listed != 3 || res.Failed != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.RunID == "" {
		t.Error("run id missing")
	}
	want := filepath.Join(cfg.OutputDir, "daily", "2024-05-06.csv")
	if res.CSVPath != want {
		t.Errorf("csv path: got %q expected %q", res.CSVPath, want)
	}

	recs := readRows(t, res.CSVPath)
	checkIDs(t, recs, "NCSC-2024-0002", "ncsc-2024-0003", "ACME-2024-0010")

	first := recs[0]
	for col, want := range map[string]string{
		report.ColumnVersion:     "1.0.0",
		report.ColumnSeverity:    "High/High",
		report.ColumnDescription: "Kwetsbaarheden verholpen in Product",
		report.ColumnLink:        "https://advisories.ncsc.nl/2024/ncsc-2024-0002.html",
	} {
		if got := first[col]; got != want {
			t.Errorf("%s: got %q expected %q", col, got, want)
		}
	}
	if got := recs[1][report.ColumnDescription]; got != unknownTitle {
		t.Errorf("missing title: got %q", got)
	}
	if got, want := recs[2][report.ColumnLink], srv.URL+"/csaf/v2/2024/ncsc-2024-0010.json"; got != want {
		t.Errorf("fallback link: got %q expected %q", got, want)
	}

	lr, err := report.ReadLastRun(report.LastRunPath(cfg.OutputDir))
	if err != nil {
		t.Fatalf("reading run record failed: %v", err)
	}
	if lr.NewCount != 3 || lr.TodaysCount != 3 || lr.CSVPath != res.CSVPath {
		t.Errorf("unexpected run record: %+v", lr)
	}
	if !lr.LastRunAt.Equal(testNow) {
		t.Errorf("last run at: got %v expected %v", lr.LastRunAt, testNow)
	}

	mfile := filepath.Join(cfg.OutputDir, "metrics.prom")
	if err := cfg.Metrics.WriteToTextfile(mfile); err != nil {
		t.Fatalf("writing metrics failed: %v", err)
	}
	data, err := os.ReadFile(mfile)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `csaf_harvester_items_total{result="succeeded"} 3`) {
		t.Errorf("succeeded counter missing in:\n%s", data)
	}
}

func TestRunOrderWithManyWorkers(t *testing.T) {
	srv, files := newTestProvider(t)
	files[pmdPath] = directoryPMD(srv.URL, "")
	var (
		links []string
		ids   []string
	)
	for i := 20; i >= 1; i-- {
		name := fmt.Sprintf("ncsc-2024-%04d.json", i)
		links = append(links, name)
		files["/csaf/v2/2024/"+name] = advisory(
			fmt.Sprintf("NCSC-2024-%04d", i), "T", "Medium/Medium", "")
	}
	for i := 1; i <= 20; i++ {
		ids = append(ids, fmt.Sprintf("NCSC-2024-%04d", i))
	}
	files["/csaf/v2/2024/"] = listing(links...)

	cfg := testConfig(t, srv)
	cfg.Worker = 8
	cfg.BatchLimit = 0

	res, err := New(cfg).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	checkIDs(t, readRows(t, res.CSVPath), ids...)
}

func TestRunFailures(t *testing.T) {
	srv, files := newTestProvider(t)
	files[pmdPath] = directoryPMD(srv.URL, "")
	files["/csaf/v2/2024/"] = listing(
		"ncsc-2024-0001.json",
		"ncsc-2024-0002.json",
		"ncsc-2024-0003.json",
		"ncsc-2024-0004.json",
	)
	// ncsc-2024-0001.json is missing.
	files["/csaf/v2/2024/ncsc-2024-0002.json"] = `{"document": `
	files["/csaf/v2/2024/ncsc-2024-0003.json"] = `{"document": {"title": 42}}`
	files["/csaf/v2/2024/ncsc-2024-0004.json"] = advisory("NCSC-2024-0004", "Fine", "", "")

	t.Run("strict", func(t *testing.T) {
		cfg := testConfig(t, srv)
		res, err := New(cfg).Run(context.Background())
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if res.Count != 1 || res.Failed != 3 {
			t.Errorf("unexpected result: %+v", res)
		}
		checkIDs(t, readRows(t, res.CSVPath), "NCSC-2024-0004")
	})

	t.Run("unsafe", func(t *testing.T) {
		cfg := testConfig(t, srv)
		cfg.ValidationMode = ValidationUnsafe
		res, err := New(cfg).Run(context.Background())
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		recs := readRows(t, res.CSVPath)
		checkIDs(t, recs, "ncsc-2024-0003", "NCSC-2024-0004")
		if got := recs[0][report.ColumnDescription]; got != unknownTitle {
			t.Errorf("description: got %q expected %q", got, unknownTitle)
		}
	})
}

func TestRunProviderFailure(t *testing.T) {
	srv, _ := newTestProvider(t)
	cfg := testConfig(t, srv)

	res, err := New(cfg).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Written || res.Count != 0 {
		t.Errorf("unexpected result: %+v", res)
	}
	if _, err := os.Stat(res.CSVPath); !os.IsNotExist(err) {
		t.Errorf("report should not exist: %v", err)
	}
	lr, err := report.ReadLastRun(report.LastRunPath(cfg.OutputDir))
	if err != nil {
		t.Fatalf("reading run record failed: %v", err)
	}
	if lr.NewCount != 0 || lr.TodaysCount != 0 {
		t.Errorf("unexpected run record: %+v", lr)
	}
}

func TestRunListingFailure(t *testing.T) {
	srv, files := newTestProvider(t)
	files[pmdPath] = directoryPMD(srv.URL, "")
	cfg := testConfig(t, srv)

	res, err := New(cfg).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Written {
		t.Errorf("report written without listing: %+v", res)
	}
}

func TestRunEmptyListing(t *testing.T) {
	srv, files := newTestProvider(t)
	files[pmdPath] = directoryPMD(srv.URL, "")
	files["/csaf/v2/2024/"] = listing()
	cfg := testConfig(t, srv)

	res, err := New(cfg).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.Written || res.Count != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	data, err := os.ReadFile(res.CSVPath)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(string(data)); got != `"AdvisoryID","Version","Severity","Description","Link"` {
		t.Errorf("expected header only, got %q", got)
	}
}

func TestRunIgnoreAndBatch(t *testing.T) {
	srv, files := newTestProvider(t)
	files[pmdPath] = directoryPMD(srv.URL, "")
	files["/csaf/v2/2024/"] = listing(
		"ncsc-2024-0001.json",
		"ncsc-2024-0002.json",
		"ncsc-2024-0003.json",
	)
	for _, id := range []string{"0001", "0002", "0003"} {
		files["/csaf/v2/2024/ncsc-2024-"+id+".json"] = advisory("NCSC-2024-"+id, "T", "", "")
	}
	cfg := testConfig(t, srv)
	cfg.BatchLimit = 2
	pm, err := filter.NewPatternMatcher([]string{`-0003\.json$`})
	if err != nil {
		t.Fatal(err)
	}
	cfg.IgnorePattern = pm

	res, err := New(cfg).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	checkIDs(t, readRows(t, res.CSVPath), "NCSC-2024-0001", "NCSC-2024-0002")
}

func TestRunTimeRange(t *testing.T) {
	srv, files := newTestProvider(t)
	files[pmdPath] = directoryPMD(srv.URL, "")
	files["/csaf/v2/2024/"] = listing(
		"ncsc-2024-0001.json",
		"ncsc-2024-0002.json",
		"ncsc-2024-0003.json",
	)
	files["/csaf/v2/2024/ncsc-2024-0001.json"] = advisory("NCSC-2024-0001", "T", "", "2024-01-15T10:00:00Z")
	files["/csaf/v2/2024/ncsc-2024-0002.json"] = advisory("NCSC-2024-0002", "T", "", "2024-03-15T10:00:00Z")
	files["/csaf/v2/2024/ncsc-2024-0003.json"] = advisory("NCSC-2024-0003", "T", "", "")

	cfg := testConfig(t, srv)
	tr := models.NewTimeInterval(
		time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC))
	cfg.Range = &tr

	res, err := New(cfg).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	checkIDs(t, readRows(t, res.CSVPath), "NCSC-2024-0002")
	if res.Failed != 0 {
		t.Errorf("filtered advisories are no failures: %+v", res)
	}
}

func TestRunChecksums(t *testing.T) {
	srv, files := newTestProvider(t)
	files[pmdPath] = directoryPMD(srv.URL, "")
	files["/csaf/v2/2024/"] = listing(
		"ncsc-2024-0001.json",
		"ncsc-2024-0002.json",
		"ncsc-2024-0003.json",
	)
	sum := func(s, name string) string {
		h := sha256.Sum256([]byte(s))
		return hex.EncodeToString(h[:]) + "  " + name + "\n"
	}
	a1 := advisory("NCSC-2024-0001", "T", "", "")
	a2 := advisory("NCSC-2024-0002", "T", "", "")
	a3 := advisory("NCSC-2024-0003", "T", "", "")
	files["/csaf/v2/2024/ncsc-2024-0001.json"] = a1
	files["/csaf/v2/2024/ncsc-2024-0001.json.sha256"] = sum(a1, "ncsc-2024-0001.json")
	files["/csaf/v2/2024/ncsc-2024-0002.json"] = a2
	files["/csaf/v2/2024/ncsc-2024-0002.json.sha256"] = sum(a1, "ncsc-2024-0002.json")
	files["/csaf/v2/2024/ncsc-2024-0003.json"] = a3

	cfg := testConfig(t, srv)
	cfg.VerifyChecksums = true

	res, err := New(cfg).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	checkIDs(t, readRows(t, res.CSVPath), "NCSC-2024-0001", "NCSC-2024-0003")
	if res.Failed != 1 {
		t.Errorf("expected one failure: %+v", res)
	}
}

func TestRunSignatures(t *testing.T) {
	key, err := crypto.GenerateKey("Harvester Test", "test@example.com", "x25519", 0)
	if err != nil {
		t.Fatalf("generating key failed: %v", err)
	}
	pub, err := key.GetArmoredPublicKey()
	if err != nil {
		t.Fatal(err)
	}
	ring, err := crypto.NewKeyRing(key)
	if err != nil {
		t.Fatal(err)
	}
	sign := func(data string) string {
		sig, err := ring.SignDetached(crypto.NewPlainMessage([]byte(data)))
		if err != nil {
			t.Fatal(err)
		}
		armored, err := sig.GetArmored()
		if err != nil {
			t.Fatal(err)
		}
		return armored
	}

	srv, files := newTestProvider(t)
	files[pmdPath] = directoryPMD(srv.URL, fmt.Sprintf(`,
  "public_openpgp_keys": [{"fingerprint": %q, "url": "%s/openpgp/key.asc"}]`,
		key.GetFingerprint(), srv.URL))
	files["/openpgp/key.asc"] = pub
	files["/csaf/v2/2024/"] = listing(
		"ncsc-2024-0001.json",
		"ncsc-2024-0002.json",
		"ncsc-2024-0003.json",
	)
	a1 := advisory("NCSC-2024-0001", "T", "", "")
	a2 := advisory("NCSC-2024-0002", "T", "", "")
	files["/csaf/v2/2024/ncsc-2024-0001.json"] = a1
	files["/csaf/v2/2024/ncsc-2024-0001.json.asc"] = sign(a1)
	files["/csaf/v2/2024/ncsc-2024-0002.json"] = a2
	files["/csaf/v2/2024/ncsc-2024-0002.json.asc"] = sign(a1)
	files["/csaf/v2/2024/ncsc-2024-0003.json"] = advisory("NCSC-2024-0003", "T", "", "")

	t.Run("verify", func(t *testing.T) {
		cfg := testConfig(t, srv)
		cfg.VerifySignatures = true
		res, err := New(cfg).Run(context.Background())
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		checkIDs(t, readRows(t, res.CSVPath), "NCSC-2024-0001")
	})

	t.Run("no verify", func(t *testing.T) {
		cfg := testConfig(t, srv)
		res, err := New(cfg).Run(context.Background())
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		checkIDs(t, readRows(t, res.CSVPath),
			"NCSC-2024-0001", "NCSC-2024-0002", "NCSC-2024-0003")
	})
}

func TestRunROLIEFallback(t *testing.T) {
	srv, files := newTestProvider(t)
	files[pmdPath] = fmt.Sprintf(`{
  "canonical_url": "%[1]s%[2]s",
  "distributions": [{"rolie": {"feeds": [
    {"summary": "WHITE advisories", "tlp_label": "WHITE", "url": "%[1]s/rolie/white.json"}
  ]}}],
  "role": "csaf_provider"
}`, srv.URL, pmdPath)
	files["/rolie/white.json"] = `{"feed": {
  "id": "white",
  "title": "WHITE advisories",
  "updated": "2024-05-01T00:00:00Z",
  "entry": [
    {"id": "NCSC-2024-0002", "title": "B", "updated": "2024-05-01T00:00:00Z",
     "link": [{"rel": "self", "href": "../data/2024/ncsc-2024-0002.json"}],
     "content": {"type": "application/json", "src": "../data/2024/ncsc-2024-0002.json"}},
    {"id": "NCSC-2023-0099", "title": "Old", "updated": "2023-05-01T00:00:00Z",
     "link": [{"rel": "self", "href": "../data/2023/ncsc-2023-0099.json"}],
     "content": {"type": "application/json", "src": "../data/2023/ncsc-2023-0099.json"}},
    {"id": "NCSC-2024-0001", "title": "A", "updated": "2024-04-01T00:00:00Z",
     "link": [], "content": {"type": "application/json", "src": "../data/2024/ncsc-2024-0001.json"}}
  ]
}}`
	files["/data/2024/ncsc-2024-0001.json"] = advisory("NCSC-2024-0001", "A", "High/Medium", "")
	files["/data/2024/ncsc-2024-0002.json"] = advisory("NCSC-2024-0002", "B", "", "")
	files["/data/2023/ncsc-2023-0099.json"] = advisory("NCSC-2023-0099", "Old", "", "")

	cfg := testConfig(t, srv)
	res, err := New(cfg).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	checkIDs(t, readRows(t, res.CSVPath), "NCSC-2024-0001", "NCSC-2024-0002")
}

func TestRunUserAgent(t *testing.T) {
	var agents []string
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents = append(agents, r.Header.Get("User-Agent"))
		http.NotFound(w, r)
	}))
	defer srv.Close()

	cfg := &Config{
		Provider:  srv.URL + pmdPath,
		OutputDir: t.TempDir(),
		Client:    srv.Client(),
		Now:       func() time.Time { return testNow },
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if _, err := New(cfg).Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(agents) != 1 || agents[0] != DefaultUserAgent {
		t.Errorf("user agents: got %q expected [%q]", agents, DefaultUserAgent)
	}
}

func TestRunLogsRunID(t *testing.T) {
	srv, _ := newTestProvider(t)
	var out strings.Builder
	cfg := testConfig(t, srv)
	cfg.Logger = slog.New(slog.NewTextHandler(&out, nil))

	res, err := New(cfg).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	re := regexp.MustCompile(`run_id=` + regexp.QuoteMeta(res.RunID))
	if !re.MatchString(out.String()) {
		t.Errorf("run id %s not logged:\n%s", res.RunID, out.String())
	}
}

func TestRunCanceled(t *testing.T) {
	srv, files := newTestProvider(t)
	files[pmdPath] = directoryPMD(srv.URL, "")
	files["/csaf/v2/2024/"] = listing("ncsc-2024-0001.json")
	files["/csaf/v2/2024/ncsc-2024-0001.json"] = advisory("NCSC-2024-0001", "T", "", "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := testConfig(t, srv)
	if _, err := New(cfg).Run(ctx); err == nil {
		t.Error("expected error on canceled context")
	}
}

func TestValidationModeUnmarshal(t *testing.T) {
	var vm ValidationMode
	if err := vm.UnmarshalFlag("unsafe"); err != nil || vm != ValidationUnsafe {
		t.Errorf("unsafe: got %q, %v", vm, err)
	}
	if err := vm.UnmarshalFlag("lenient"); err == nil {
		t.Error("expected error for invalid mode")
	}
	if vm != ValidationUnsafe {
		t.Errorf("value changed on error: %q", vm)
	}
}
