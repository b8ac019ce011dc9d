// This file is Free Software under the MIT License
// without warranty, see README.md and LICENSES/MIT.txt for details.
//
// SPDX-License-Identifier: MIT
//
// SPDX-FileCopyrightText: 2024 German Federal Office for Information Security (BSI) <https://www.bsi.bund.de>
// Software-Engineering: 2024 Intevation GmbH <https://intevation.de>

// Package certs implements helpers to load TLS client certificates.
package certs

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// LoadCertificate loads a client certificate and its key from
// PEM files. The key may be encrypted with passphrase.
// Empty file names mean no certificate, in which case nil is returned.
func LoadCertificate(certFile, keyFile, passphrase string) ([]tls.Certificate, error) {

	switch hasCert, hasKey := certFile != "", keyFile != ""; {

	case hasCert != hasKey:
		return nil, errors.New(
			"both client key and client certificate must be given for authentication")

	case !hasCert:
		return nil, nil
	}

	if passphrase == "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, err
		}
		return []tls.Certificate{cert}, nil
	}

	keyData, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, err
	}
	keyBlock, _ := pem.Decode(keyData)
	if keyBlock == nil {
		return nil, fmt.Errorf("no PEM data found in %s", keyFile)
	}

	//lint:ignore SA1019 Legacy PEM encryption is what the key files use.
	keyDER, err := x509.DecryptPEMBlock(keyBlock, []byte(passphrase))
	if err != nil {
		return nil, err
	}
	// Re-encode the plain key for tls.X509KeyPair.
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: keyBlock.Type, Bytes: keyDER})

	certData, err := os.ReadFile(certFile)
	if err != nil {
		return nil, err
	}
	cert, err := tls.X509KeyPair(certData, keyPEM)
	if err != nil {
		return nil, err
	}
	return []tls.Certificate{cert}, nil
}
