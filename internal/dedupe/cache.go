// This file is Free Software under the MIT License
// without warranty, see README.md and LICENSES/MIT.txt for details.
//
// SPDX-License-Identifier: MIT
//
// SPDX-FileCopyrightText: 2024 German Federal Office for Information Security (BSI) <https://www.bsi.bund.de>
// Software-Engineering: 2024 Intevation GmbH <https://intevation.de>

package dedupe

import (
	"time"

	"github.com/csaf-poc/csaf_harvester/util"
)

// CacheVersion is the version of the cache format.
const CacheVersion = 1

// DefaultTTL is the time sent advisories are remembered.
const DefaultTTL = 30 * 24 * time.Hour

// Cache is the state of already sent advisories.
type Cache struct {
	// AdvisoryIDs maps advisory keys to the unix time they were sent.
	AdvisoryIDs map[string]int64 `json:"advisory_ids"`
	// LastMessageHash is the hex encoded SHA256 of the last sent message.
	LastMessageHash *string `json:"last_message_hash"`
	Version         int     `json:"version"`
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{
		AdvisoryIDs: map[string]int64{},
		Version:     CacheVersion,
	}
}

func (c *Cache) normalize() *Cache {
	if c.AdvisoryIDs == nil {
		c.AdvisoryIDs = map[string]int64{}
	}
	if c.Version == 0 {
		c.Version = CacheVersion
	}
	return c
}

// Contains checks if key was already sent.
func (c *Cache) Contains(key string) bool {
	_, ok := c.AdvisoryIDs[key]
	return ok
}

// prune removes all entries sent before cutoff.
func (c *Cache) prune(cutoff int64) {
	for k, ts := range c.AdvisoryIDs {
		if ts < cutoff {
			delete(c.AdvisoryIDs, k)
		}
	}
}

// SameMessage checks if message is the last sent message.
func (c *Cache) SameMessage(message string) bool {
	return c.LastMessageHash != nil && *c.LastMessageHash == util.SHA256Hex(message)
}

func (c *Cache) setMessage(message string) {
	h := util.SHA256Hex(message)
	c.LastMessageHash = &h
}
