// This file is Free Software under the MIT License
// without warranty, see README.md and LICENSES/MIT.txt for details.
//
// SPDX-License-Identifier: MIT
//
// SPDX-FileCopyrightText: 2024 German Federal Office for Information Security (BSI) <https://www.bsi.bund.de>
// Software-Engineering: 2024 Intevation GmbH <https://intevation.de>

package util

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
)

// EnsureDir creates the directory dir and all its parents
// if it does not exist.
func EnsureDir(dir string) error {
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return os.MkdirAll(dir, 0755)
		}
		return err
	}
	return nil
}

// WriterToFunc adapts a function to the [io.WriterTo] interface.
type WriterToFunc func(io.Writer) error

// WriteTo implements [io.WriterTo].
func (wtf WriterToFunc) WriteTo(w io.Writer) (int64, error) {
	nw := NWriter{Writer: w}
	err := wtf(&nw)
	return nw.N, err
}

// NWriter is an io.Writer counting the bytes copied through it.
type NWriter struct {
	io.Writer
	N int64
}

// Write implements the Write method of io.Writer.
func (nw *NWriter) Write(p []byte) (int, error) {
	n, err := nw.Writer.Write(p)
	nw.N += int64(n)
	return n, err
}

// WriteToFile saves the content of wt into a file named fname.
// The data is written to a temporary file in the same directory
// first which is renamed to fname afterwards so readers never
// see a partially written file. Missing parent directories
// are created.
func WriteToFile(fname string, wt io.WriterTo) error {
	dir := filepath.Dir(fname)
	if err := EnsureDir(dir); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(fname)+".tmp*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	_, err1 := wt.WriteTo(f)
	err2 := f.Close()
	if err1 == nil {
		err1 = err2
	}
	if err1 == nil {
		err1 = os.Chmod(tmp, 0644)
	}
	if err1 == nil {
		err1 = os.Rename(tmp, fname)
	}
	if err1 != nil {
		os.Remove(tmp)
	}
	return err1
}

// WriteJSONToFile stores v indented as JSON into fname.
func WriteJSONToFile(fname string, v any) error {
	return WriteToFile(fname, WriterToFunc(func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(v)
	}))
}
