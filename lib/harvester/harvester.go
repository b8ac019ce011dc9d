// This file is Free Software under the Apache-2.0 License
// without warranty, see README.md and LICENSES/Apache-2.0.txt for details.
//
// SPDX-License-Identifier: Apache-2.0
//
// SPDX-FileCopyrightText: 2024 German Federal Office for Information Security (BSI) <https://www.bsi.bund.de>
// Software-Engineering: 2024 Intevation GmbH <https://intevation.de>

// Package harvester implements the harvest run: it loads the provider
// metadata, lists the advisories of a year, downloads the newest of
// them and writes the daily report.
package harvester

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/ProtonMail/gopenpgp/v2/crypto"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/csaf-poc/csaf_harvester/csaf"
	"github.com/csaf-poc/csaf_harvester/internal/report"
	"github.com/csaf-poc/csaf_harvester/util"
)

// unknownTitle is the description of advisories without a title.
const unknownTitle = "Unknown"

// Harvester provides the harvest run.
type Harvester struct {
	cfg     *Config
	logger  *slog.Logger
	client  util.Client
	keys    *crypto.KeyRing
	statsMu sync.Mutex
	stats   stats
}

// Result is the outcome of a harvest run.
type Result struct {
	// RunID identifies the run in the logs.
	RunID string
	// Count is the number of rows written to the report.
	Count int
	// Listed is the number of advisories selected for download.
	Listed int
	// Failed is the number of selected advisories which were skipped.
	Failed int
	// CSVPath is the path of the daily report.
	CSVPath string
	// Written is true if the report was written.
	Written bool
}

// New constructs a new harvester given the configuration.
func New(cfg *Config) *Harvester {
	cfg.applyDefaults()
	return &Harvester{cfg: cfg, logger: cfg.Logger}
}

// addStats add stats to total stats
func (h *Harvester) addStats(o *stats) {
	h.statsMu.Lock()
	defer h.statsMu.Unlock()
	h.stats.add(o)
}

// logRedirect logs redirects of the http client.
func logRedirect(logger *slog.Logger) func(req *http.Request, via []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		vs := make([]string, len(via))
		for i, v := range via {
			vs[i] = util.RedactURL(v.URL.String())
		}
		logger.Debug("Redirecting",
			"to", util.RedactURL(req.URL.String()),
			"via", strings.Join(vs, " -> "))
		return nil
	}
}

func (h *Harvester) httpClient() util.Client {

	var client util.Client

	if h.cfg.Client != nil {
		client = h.cfg.Client
	} else {
		hClient := http.Client{Timeout: h.cfg.Timeout}

		if h.cfg.verbose() {
			hClient.CheckRedirect = logRedirect(h.logger)
		}

		var tlsConfig tls.Config
		if h.cfg.Insecure {
			tlsConfig.InsecureSkipVerify = true
		}
		if len(h.cfg.ClientCerts) != 0 {
			tlsConfig.Certificates = h.cfg.ClientCerts
		}

		hClient.Transport = &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: &tlsConfig,
		}
		client = &hClient
	}

	// Add user agent and extra headers.
	header := h.cfg.ExtraHeader.Clone()
	if header == nil {
		header = http.Header{}
	}
	if header.Get("User-Agent") == "" {
		header.Set("User-Agent", h.cfg.UserAgent)
	}
	client = &util.HeaderClient{
		Client: client,
		Header: header,
	}

	// Add optional URL logging.
	if h.cfg.verbose() {
		client = &util.LoggingClient{
			Client: client,
			Log:    httpLog("harvester", h.logger),
		}
	}

	// Add optional rate limiting.
	if h.cfg.Rate != nil {
		client = &util.LimitingClient{
			Client:  client,
			Limiter: rate.NewLimiter(rate.Limit(*h.cfg.Rate), 1),
		}
	}

	return client
}

// httpLog does structured logging in a [util.LoggingClient].
func httpLog(who string, logger *slog.Logger) func(string, string) {
	return func(method, url string) {
		logger.Debug("http",
			"who", who,
			"method", method,
			"url", url)
	}
}

// get issues a GET request bound to ctx.
func (h *Harvester) get(ctx context.Context, u string) (*http.Response, error) {
	return util.GetContext(ctx, h.client, u)
}

// Run performs the harvest. Problems with the provider or the listing
// are logged and result in an empty run without a report. The run
// record is written in any case. Errors are returned if the
// context is canceled or the output cannot be written.
func (h *Harvester) Run(ctx context.Context) (*Result, error) {
	runID := uuid.NewString()
	h.logger = h.cfg.Logger.With("run_id", runID)
	h.client = h.httpClient()
	h.stats = stats{}

	start := h.cfg.Now()
	year := h.cfg.Year
	if year == 0 {
		year = start.Year()
	}

	result := &Result{
		RunID:   runID,
		CSVPath: report.DailyPath(h.cfg.OutputDir, start),
	}

	h.logger.Info("Starting harvest run",
		"provider", h.cfg.Provider,
		"year", year,
		"batch_limit", h.cfg.BatchLimit)

	rows, listed, err := h.harvest(ctx, year)
	if err != nil {
		h.stats.log(h.logger)
		return result, err
	}
	result.Count = len(rows)
	result.Listed = max(listed, 0)
	result.Failed = h.stats.totalFailed()

	var errs []error

	if listed >= 0 {
		if err := report.WriteCSVFile(result.CSVPath, rows); err != nil {
			errs = append(errs, fmt.Errorf("writing report failed: %w", err))
		} else {
			result.Written = true
			h.logger.Info("Report written",
				"path", result.CSVPath,
				"count", result.Count)
		}
	}

	lr := report.LastRun{
		NewCount:    result.Count,
		CSVPath:     result.CSVPath,
		LastRunAt:   h.cfg.Now().UTC(),
		TodaysCount: result.Count,
	}
	if err := report.WriteLastRun(report.LastRunPath(h.cfg.OutputDir), &lr); err != nil {
		errs = append(errs, fmt.Errorf("writing run record failed: %w", err))
	}

	h.stats.log(h.logger)
	h.stats.record(h.cfg.Metrics)
	h.cfg.Metrics.Finish(start, h.cfg.Now(), result.Written && len(errs) == 0)

	return result, errors.Join(errs...)
}

// harvest returns the rows of the downloaded advisories and the
// number of advisories selected for download. A negative number
// means that no listing was available.
func (h *Harvester) harvest(ctx context.Context, year int) ([]report.Advisory, int, error) {

	loader := csaf.NewProviderMetadataLoader(h.client, h.logger)

	lpmd := loader.Load(ctx, h.cfg.Provider)

	if !lpmd.Valid() {
		for i := range lpmd.Messages {
			h.logger.Error("Loading provider-metadata.json",
				"provider", h.cfg.Provider,
				"message", lpmd.Messages[i].Message)
		}
		h.logger.Error("No valid provider-metadata.json found",
			"provider", h.cfg.Provider)
		return nil, -1, ctx.Err()
	} else if h.cfg.verbose() {
		for i := range lpmd.Messages {
			h.logger.Debug("Loading provider-metadata.json",
				"provider", h.cfg.Provider,
				"message", lpmd.Messages[i].Message)
		}
	}

	files, err := h.advisoryFiles(ctx, lpmd, year)
	if err != nil {
		h.logger.Error("Listing advisories failed", "error", err)
		return nil, -1, ctx.Err()
	}

	files = h.selectFiles(files)

	if h.cfg.VerifySignatures {
		base, err := url.Parse(lpmd.URL)
		if err != nil {
			return nil, -1, fmt.Errorf("invalid URL '%s': %v", lpmd.URL, err)
		}
		h.loadOpenPGPKeys(ctx, lpmd.Document, base, util.NewPathEval())
	}

	rows, err := h.downloadFiles(ctx, files)
	if err != nil {
		return nil, len(files), err
	}
	return rows, len(files), nil
}

// advisoryFiles returns the sorted advisories of the given year.
// The directory listing is preferred over the ROLIE feeds.
func (h *Harvester) advisoryFiles(
	ctx context.Context,
	lpmd *csaf.LoadedProviderMetadata,
	year int,
) ([]csaf.AdvisoryFile, error) {

	if dir := lpmd.Metadata.DirectoryURL(); dir != "" {
		dirURL := util.JoinURL(dir, strconv.Itoa(year)) + "/"
		h.logger.Info("Using directory listing", "url", dirURL)
		names, err := csaf.ListDirectory(ctx, h.client, dirURL, year)
		if err != nil {
			return nil, err
		}
		files := make([]csaf.AdvisoryFile, len(names))
		for i, name := range names {
			files[i] = csaf.PlainAdvisoryFile(util.JoinURL(dirURL, name))
		}
		return csaf.SortAdvisoryFiles(files), nil
	}

	feeds := lpmd.Metadata.FeedURLs()
	if len(feeds) == 0 {
		return nil, errors.New("no directory_url or ROLIE feed in provider metadata")
	}

	base, err := url.Parse(lpmd.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL '%s': %v", lpmd.URL, err)
	}

	var (
		files  []csaf.AdvisoryFile
		errs   []error
		loaded int
	)
	for _, feed := range feeds {
		fu, err := url.Parse(feed)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid feed URL '%s': %w", feed, err))
			continue
		}
		fu = base.ResolveReference(fu)
		h.logger.Info("Using ROLIE feed", "url", fu.String())
		rf, err := h.loadFeed(ctx, fu.String())
		if err != nil {
			h.logger.Warn("Loading ROLIE feed failed",
				"url", fu.String(),
				"error", err)
			errs = append(errs, err)
			continue
		}
		loaded++
		for _, file := range rf.Files(fu) {
			// Keep advisories of other years out if the name tells.
			if y, _, ok := csaf.ParseAdvisoryName(path.Base(file.URL())); ok && y != year {
				continue
			}
			files = append(files, file)
		}
	}
	if loaded == 0 {
		return nil, errors.Join(errs...)
	}
	return csaf.SortAdvisoryFiles(files), nil
}

func (h *Harvester) loadFeed(ctx context.Context, feed string) (*csaf.ROLIEFeed, error) {
	res, err := h.get(ctx, feed)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf(
			"fetching ROLIE feed from '%s' failed: %s (%d)", feed, res.Status, res.StatusCode)
	}
	return csaf.LoadROLIEFeed(res.Body)
}

// selectFiles drops the ignored files and keeps the newest
// of the sorted files up to the batch limit.
func (h *Harvester) selectFiles(files []csaf.AdvisoryFile) []csaf.AdvisoryFile {
	kept := make([]csaf.AdvisoryFile, 0, len(files))
	for _, file := range files {
		if h.cfg.ignoreURL(file.URL()) {
			h.logger.Debug("Ignoring URL", "url", file.URL())
			continue
		}
		kept = append(kept, file)
	}
	if limit := h.cfg.BatchLimit; limit > 0 && len(kept) > limit {
		kept = kept[len(kept)-limit:]
	}
	h.logger.Info("Selected advisories",
		"available", len(files),
		"selected", len(kept))
	return kept
}

// job is an advisory to download together with its
// position in the listing.
type job struct {
	idx  int
	file csaf.AdvisoryFile
}

// downloadFiles downloads the files with a pool of workers.
// The rows are returned in the order of the files.
func (h *Harvester) downloadFiles(
	ctx context.Context,
	files []csaf.AdvisoryFile,
) ([]report.Advisory, error) {
	var (
		jobs    = make(chan job)
		results = make([]*report.Advisory, len(files))
		wg      sync.WaitGroup
	)

	n := h.cfg.Worker
	if n > len(files) {
		n = len(files)
	}

	for i := 0; i < n; i++ {
		wg.Add(1)
		go h.downloadWorker(ctx, &wg, jobs, results)
	}

allFiles:
	for i, file := range files {
		select {
		case jobs <- job{idx: i, file: file}:
		case <-ctx.Done():
			break allFiles
		}
	}

	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows := make([]report.Advisory, 0, len(results))
	for _, row := range results {
		if row != nil {
			rows = append(rows, *row)
		}
	}
	return rows, nil
}

func (h *Harvester) loadOpenPGPKeys(
	ctx context.Context,
	doc any,
	base *url.URL,
	expr *util.PathEval,
) {
	src, err := expr.Eval("$.public_openpgp_keys", doc)
	if err != nil {
		h.logger.Warn("No public OpenPGP keys in provider metadata")
		return
	}

	var keys []csaf.PGPKey
	if err := util.ReMarshalJSON(&keys, src); err != nil {
		h.logger.Warn("Invalid public OpenPGP keys", "error", err)
		return
	}

	for i := range keys {
		key := &keys[i]
		if key.URL == "" {
			continue
		}
		up, err := url.Parse(key.URL)
		if err != nil {
			h.logger.Warn("Invalid URL",
				"url", key.URL,
				"error", err)
			continue
		}

		u := base.ResolveReference(up).String()

		res, err := h.get(ctx, u)
		if err != nil {
			h.logger.Warn(
				"Fetching public OpenPGP key failed",
				"url", u,
				"error", err)
			continue
		}
		if res.StatusCode != http.StatusOK {
			res.Body.Close()
			h.logger.Warn(
				"Fetching public OpenPGP key failed",
				"url", u,
				"status_code", res.StatusCode,
				"status", res.Status)
			continue
		}

		ckey, err := func() (*crypto.Key, error) {
			defer res.Body.Close()
			return crypto.NewKeyFromArmoredReader(res.Body)
		}()
		if err != nil {
			h.logger.Warn(
				"Reading public OpenPGP key failed",
				"url", u,
				"error", err)
			continue
		}

		if key.Fingerprint != "" &&
			!strings.EqualFold(ckey.GetFingerprint(), string(key.Fingerprint)) {
			h.logger.Warn(
				"Fingerprint of public OpenPGP key does not match remotely loaded",
				"url", u)
			continue
		}
		if h.keys == nil {
			if keyring, err := crypto.NewKeyRing(ckey); err != nil {
				h.logger.Warn(
					"Creating store for public OpenPGP key failed",
					"url", u,
					"error", err)
			} else {
				h.keys = keyring
			}
		} else if err := h.keys.AddKey(ckey); err != nil {
			h.logger.Warn(
				"Adding public OpenPGP key failed",
				"url", u,
				"error", err)
		}
	}
	if h.keys == nil {
		h.logger.Warn("No public OpenPGP key loaded, signatures are not checked")
	}
}

// logValidationIssues logs the issues reported by the advisory schema validation.
func (h *Harvester) logValidationIssues(url string, errors []string, err error) {
	if err != nil {
		h.logger.Error("Failed to validate",
			"url", url,
			"error", err)
		return
	}
	if len(errors) > 0 {
		if h.cfg.verbose() {
			h.logger.Error("Advisory has validation errors",
				"url", url,
				"error", strings.Join(errors, ", "))
		} else {
			h.logger.Error("Advisory has validation errors",
				"url", url,
				"count", len(errors))
		}
	}
}

func (h *Harvester) downloadWorker(
	ctx context.Context,
	wg *sync.WaitGroup,
	jobs <-chan job,
	results []*report.Advisory,
) {
	defer wg.Done()

	var (
		data  bytes.Buffer
		stats = stats{}
		expr  = util.NewPathEval()
	)

	// Add collected stats back to total.
	defer h.addStats(&stats)

	for {
		var j job
		var ok bool
		select {
		case j, ok = <-jobs:
			if !ok {
				return
			}
		case <-ctx.Done():
			return
		}
		if row := h.downloadAdvisory(ctx, j.file, &data, expr, &stats); row != nil {
			results[j.idx] = row
			stats.succeeded++
		}
	}
}

// downloadAdvisory downloads and checks a single advisory.
// It returns nil if the advisory is skipped.
func (h *Harvester) downloadAdvisory(
	ctx context.Context,
	file csaf.AdvisoryFile,
	data *bytes.Buffer,
	expr *util.PathEval,
	stats *stats,
) *report.Advisory {

	resp, err := h.get(ctx, file.URL())
	if err != nil {
		stats.downloadFailed++
		h.logger.Warn("Cannot GET",
			"url", file.URL(),
			"error", err)
		return nil
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		stats.downloadFailed++
		h.logger.Warn("Cannot load",
			"url", file.URL(),
			"status", resp.Status,
			"status_code", resp.StatusCode)
		return nil
	}

	// Note if we do not get JSON.
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		h.logger.Debug("Content type is not 'application/json'",
			"url", file.URL(),
			"content_type", ct)
	}

	var (
		writers                    []io.Writer
		s256, s512                 hash.Hash
		remoteSHA256, remoteSHA512 []byte
	)

	// Only hash when we have a remote counter part we can compare it with.
	if h.cfg.VerifyChecksums {
		if remoteSHA256, err = h.loadHash(ctx, file.SHA256URL()); err != nil {
			h.logger.Warn("Cannot fetch SHA256",
				"url", file.SHA256URL(),
				"error", err)
		} else {
			s256 = sha256.New()
			writers = append(writers, s256)
		}

		if remoteSHA512, err = h.loadHash(ctx, file.SHA512URL()); err != nil {
			h.logger.Debug("Cannot fetch SHA512",
				"url", file.SHA512URL(),
				"error", err)
		} else {
			s512 = sha512.New()
			writers = append(writers, s512)
		}
	}

	// Remember the data for the signature check.
	data.Reset()
	writers = append(writers, data)

	// Download the advisory and hash it.
	hasher := io.MultiWriter(writers...)

	var doc any

	if err := func() error {
		defer resp.Body.Close()
		tee := io.TeeReader(resp.Body, hasher)
		return json.NewDecoder(tee).Decode(&doc)
	}(); err != nil {
		stats.downloadFailed++
		h.logger.Warn("Downloading failed",
			"url", file.URL(),
			"error", err)
		return nil
	}

	// Compare the checksums.
	s256Check := func() error {
		if s256 != nil && !bytes.Equal(s256.Sum(nil), remoteSHA256) {
			stats.sha256Failed++
			return fmt.Errorf("SHA256 checksum of %s does not match", file.URL())
		}
		return nil
	}

	s512Check := func() error {
		if s512 != nil && !bytes.Equal(s512.Sum(nil), remoteSHA512) {
			stats.sha512Failed++
			return fmt.Errorf("SHA512 checksum of %s does not match", file.URL())
		}
		return nil
	}

	// Validate OpenPGP signature.
	keysCheck := func() error {
		// Only check signature if we have loaded keys.
		if !h.cfg.VerifySignatures || h.keys == nil {
			return nil
		}
		sign, err := h.loadSignature(ctx, file.SignURL())
		if err != nil {
			stats.signatureFailed++
			return fmt.Errorf("downloading signature for %s failed: %w", file.URL(), err)
		}
		if err := h.checkSignature(data.Bytes(), sign); err != nil {
			stats.signatureFailed++
			return fmt.Errorf("cannot verify signature for %s: %v", file.URL(), err)
		}
		return nil
	}

	// Validate against the advisory schema.
	schemaCheck := func() error {
		if errs, err := csaf.ValidateAdvisory(doc); err != nil || len(errs) > 0 {
			stats.schemaFailed++
			h.logValidationIssues(file.URL(), errs, err)
			return fmt.Errorf("schema validation for %q failed", file.URL())
		}
		return nil
	}

	// Run all the validations.
	for _, check := range []func() error{
		s256Check,
		s512Check,
		keysCheck,
		schemaCheck,
	} {
		if err := check(); err != nil {
			h.logger.Error("Validation check failed", "error", err)
			if h.cfg.ValidationMode == ValidationStrict {
				return nil
			}
		}
	}

	sum, err := csaf.NewAdvisorySummary(expr, doc)
	if err != nil {
		stats.schemaFailed++
		h.logger.Warn("Extracting advisory fields failed",
			"url", file.URL(),
			"error", err)
		return nil
	}

	// Filter by release date if requested.
	if h.cfg.Range != nil {
		released := sum.CurrentReleaseDate
		if released.IsZero() {
			released = sum.InitialReleaseDate
		}
		if released.IsZero() || !h.cfg.Range.Contains(released) {
			stats.filtered++
			h.logger.Debug("Advisory outside of time range",
				"url", file.URL(),
				"released", released)
			return nil
		}
	}

	return h.row(file, sum)
}

// row maps an advisory summary to a report row.
func (h *Harvester) row(file csaf.AdvisoryFile, sum *csaf.AdvisorySummary) *report.Advisory {
	id := sum.ID
	if id == "" {
		id = strings.TrimSuffix(path.Base(file.URL()), ".json")
	}
	title := strings.TrimSpace(sum.Title)
	if title == "" {
		title = unknownTitle
	}
	return &report.Advisory{
		ID:          id,
		Version:     sum.Version,
		Severity:    sum.Severity,
		Description: title,
		Link:        csaf.AdvisoryLink(id, h.cfg.HTMLBase, file.URL()),
	}
}

func (h *Harvester) checkSignature(data []byte, sign *crypto.PGPSignature) error {
	pm := crypto.NewPlainMessage(data)
	t := crypto.GetUnixTime()
	return h.keys.VerifyDetached(pm, sign, t)
}

func (h *Harvester) loadSignature(ctx context.Context, p string) (*crypto.PGPSignature, error) {
	resp, err := h.get(ctx, p)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf(
			"fetching signature from '%s' failed: %s (%d)", p, resp.Status, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return crypto.NewPGPSignatureFromArmored(string(data))
}

func (h *Harvester) loadHash(ctx context.Context, p string) ([]byte, error) {
	resp, err := h.get(ctx, p)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf(
			"fetching hash from '%s' failed: %s (%d)", p, resp.Status, resp.StatusCode)
	}
	return util.HashFromReader(resp.Body)
}
