// This file is Free Software under the MIT License
// without warranty, see README.md and LICENSES/MIT.txt for details.
//
// SPDX-License-Identifier: MIT
//
// SPDX-FileCopyrightText: 2024 German Federal Office for Information Security (BSI) <https://www.bsi.bund.de>
// Software-Engineering: 2024 Intevation GmbH <https://intevation.de>

package util

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"regexp"
)

var hexRe = regexp.MustCompile(`^([[:xdigit:]]+)`)

// HashFromReader reads a base 16 coded hash sum from a reader.
// This is the format of the .sha256 and .sha512 files
// next to the advisories.
func HashFromReader(r io.Reader) ([]byte, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if m := hexRe.FindStringSubmatch(scanner.Text()); m != nil {
			return hex.DecodeString(m[1])
		}
	}
	return nil, scanner.Err()
}

// SHA256Hex returns the lower case hex encoded SHA256 sum of s.
func SHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
