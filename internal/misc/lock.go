// This file is Free Software under the MIT License
// without warranty, see README.md and LICENSES/MIT.txt for details.
//
// SPDX-License-Identifier: MIT
//
// SPDX-FileCopyrightText: 2024 German Federal Office for Information Security (BSI) <https://www.bsi.bund.de>
// Software-Engineering: 2024 Intevation GmbH <https://intevation.de>

// Package misc contains helpers shared by the command line tools.
package misc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLocked is wrapped by the error returned from [WithLock]
// if the lock is held by another process.
var ErrLocked = errors.New("lock is held by another process")

// WithLock calls fn while holding an exclusive lock on lockFile.
// An empty lockFile disables the locking. Missing parent
// directories of the lock file are created.
func WithLock(lockFile string, fn func() error) error {
	if lockFile == "" {
		// No locking configured.
		return fn()
	}

	if err := os.MkdirAll(filepath.Dir(lockFile), 0700); err != nil {
		return fmt.Errorf("file locking failed: %w", err)
	}

	fl := flock.New(lockFile)
	locked, err := fl.TryLock()
	if err != nil {
		return fmt.Errorf("file locking failed: %w", err)
	}

	if !locked {
		return fmt.Errorf("cannot acquire file lock at %s: %w", lockFile, ErrLocked)
	}
	defer fl.Unlock()
	return fn()
}
