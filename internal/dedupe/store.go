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
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/csaf-poc/csaf_harvester/util"
)

// Store persists the cache.
type Store interface {
	// Load returns the stored cache. A missing cache is
	// returned as an empty one.
	Load(ctx context.Context) (*Cache, error)
	// Save replaces the stored cache.
	Save(ctx context.Context, cache *Cache) error
	// Close releases the resources of the store.
	Close() error
}

// JSONStore keeps the cache in a JSON file.
type JSONStore struct {
	Path string
}

// NewJSONStore returns a store backed by the JSON file path.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{Path: path}
}

// Load implements [Store].
func (js *JSONStore) Load(context.Context) (*Cache, error) {
	data, err := os.ReadFile(js.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewCache(), nil
	}
	if err != nil {
		return nil, err
	}
	cache := new(Cache)
	if err := json.Unmarshal(data, cache); err != nil {
		return nil, fmt.Errorf("decoding sent-cache %q failed: %w", js.Path, err)
	}
	return cache.normalize(), nil
}

// Save implements [Store].
func (js *JSONStore) Save(_ context.Context, cache *Cache) error {
	return util.WriteJSONToFile(js.Path, cache)
}

// Close implements [Store].
func (js *JSONStore) Close() error { return nil }
