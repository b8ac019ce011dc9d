// This file is Free Software under the MIT License
// without warranty, see README.md and LICENSES/MIT.txt for details.
//
// SPDX-License-Identifier: MIT
//
// SPDX-FileCopyrightText: 2024 German Federal Office for Information Security (BSI) <https://www.bsi.bund.de>
// Software-Engineering: 2024 Intevation GmbH <https://intevation.de>

// Package dedupe remembers the advisories already sent so that
// notifications are not repeated.
package dedupe

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/csaf-poc/csaf_harvester/internal/report"
)

// Backend names the kind of [Store].
type Backend string

// Supported backends.
const (
	BackendJSON  Backend = "json"
	BackendBolt  Backend = "bolt"
	BackendRedis Backend = "redis"
)

// UnmarshalFlag implements [github.com/jessevdk/go-flags.Unmarshaler].
func (b *Backend) UnmarshalFlag(value string) error {
	switch v := Backend(strings.ToLower(value)); v {
	case BackendJSON, BackendBolt, BackendRedis:
		*b = v
		return nil
	}
	return fmt.Errorf("unknown sent-cache backend %q", value)
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (b *Backend) UnmarshalText(text []byte) error {
	return b.UnmarshalFlag(string(text))
}

// OpenStore opens a store of the given backend. path is the
// file of the json and bolt backends. url and prefix configure
// the redis backend.
func OpenStore(backend Backend, path, url, prefix string) (Store, error) {
	switch backend {
	case BackendJSON, "":
		return NewJSONStore(path), nil
	case BackendBolt:
		return OpenBoltStore(path)
	case BackendRedis:
		return OpenRedisStore(url, prefix)
	}
	return nil, fmt.Errorf("unknown sent-cache backend %q", backend)
}

// Deduper filters already sent advisories.
type Deduper struct {
	store  Store
	logger *slog.Logger
	// TTL is the time sent advisories are remembered.
	TTL time.Duration
	// Now returns the current time.
	Now func() time.Time
}

// New creates a Deduper on top of store.
// If logger is nil the default logger is used.
func New(store Store, logger *slog.Logger) *Deduper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deduper{
		store:  store,
		logger: logger,
		TTL:    DefaultTTL,
		Now:    time.Now,
	}
}

// load returns the stored cache. Broken caches are
// treated as empty.
func (d *Deduper) load(ctx context.Context) *Cache {
	cache, err := d.store.Load(ctx)
	if err != nil {
		d.logger.Warn("Loading sent-cache failed, starting empty", "error", err)
		return NewCache()
	}
	return cache
}

// FilterNew returns the records not sent before and the keys
// of all records.
func (d *Deduper) FilterNew(ctx context.Context, recs []report.Record) ([]report.Record, []string) {
	cache := d.load(ctx)
	var (
		fresh []report.Record
		keys  = make([]string, 0, len(recs))
	)
	for _, rec := range recs {
		key := AdvisoryKey(rec)
		keys = append(keys, key)
		if !cache.Contains(key) {
			fresh = append(fresh, rec)
		}
	}
	return fresh, keys
}

// MarkSent records keys as sent now together with the hash of
// message. Entries older than the TTL are dropped.
func (d *Deduper) MarkSent(ctx context.Context, keys []string, message string) error {
	cache := d.load(ctx)
	now := d.Now().Unix()
	for _, k := range keys {
		if k != "" {
			cache.AdvisoryIDs[k] = now
		}
	}
	cache.setMessage(message)
	cache.prune(now - int64(d.TTL/time.Second))
	return d.store.Save(ctx, cache)
}

// IsSameMessage checks if message equals the last sent message.
func (d *Deduper) IsSameMessage(ctx context.Context, message string) bool {
	return d.load(ctx).SameMessage(message)
}

// Close closes the underlying store.
func (d *Deduper) Close() error {
	return d.store.Close()
}
