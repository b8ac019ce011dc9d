// This file is Free Software under the MIT License
// without warranty, see README.md and LICENSES/MIT.txt for details.
//
// SPDX-License-Identifier: MIT
//
// SPDX-FileCopyrightText: 2024 German Federal Office for Information Security (BSI) <https://www.bsi.bund.de>
// Software-Engineering: 2024 Intevation GmbH <https://intevation.de>

package dedupe

import (
	"context"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/csaf-poc/csaf_harvester/util"
)

var (
	sentBucket = []byte("advisory_ids")
	metaBucket = []byte("meta")

	versionKey     = []byte("version")
	messageHashKey = []byte("last_message_hash")
)

// BoltStore keeps the cache in a bbolt database.
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens or creates the bbolt database at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	if err := util.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening sent-cache %q failed: %w", path, err)
	}
	return &BoltStore{db: db}, nil
}

// Load implements [Store].
func (bs *BoltStore) Load(context.Context) (*Cache, error) {
	cache := NewCache()
	err := bs.db.View(func(tx *bolt.Tx) error {
		if meta := tx.Bucket(metaBucket); meta != nil {
			if v := meta.Get(versionKey); v != nil {
				version, err := strconv.Atoi(string(v))
				if err != nil {
					return fmt.Errorf("invalid cache version %q", v)
				}
				cache.Version = version
			}
			if h := meta.Get(messageHashKey); h != nil {
				hash := string(h)
				cache.LastMessageHash = &hash
			}
		}
		sent := tx.Bucket(sentBucket)
		if sent == nil {
			return nil
		}
		return sent.ForEach(func(k, v []byte) error {
			if len(v) != 8 {
				return fmt.Errorf("invalid timestamp for %q", k)
			}
			cache.AdvisoryIDs[string(k)] = int64(binary.BigEndian.Uint64(v))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return cache, nil
}

// Save implements [Store].
func (bs *BoltStore) Save(_ context.Context, cache *Cache) error {
	return bs.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{sentBucket, metaBucket} {
			if tx.Bucket(name) != nil {
				if err := tx.DeleteBucket(name); err != nil {
					return err
				}
			}
		}
		sent, err := tx.CreateBucket(sentBucket)
		if err != nil {
			return err
		}
		for k, ts := range cache.AdvisoryIDs {
			var v [8]byte
			binary.BigEndian.PutUint64(v[:], uint64(ts))
			if err := sent.Put([]byte(k), v[:]); err != nil {
				return err
			}
		}
		meta, err := tx.CreateBucket(metaBucket)
		if err != nil {
			return err
		}
		if err := meta.Put(versionKey, []byte(strconv.Itoa(cache.Version))); err != nil {
			return err
		}
		if cache.LastMessageHash != nil {
			return meta.Put(messageHashKey, []byte(*cache.LastMessageHash))
		}
		return nil
	})
}

// Close implements [Store].
func (bs *BoltStore) Close() error {
	return bs.db.Close()
}
