// This file is Free Software under the Apache-2.0 License
// without warranty, see README.md and LICENSES/Apache-2.0.txt for details.
//
// SPDX-License-Identifier: Apache-2.0
//
// SPDX-FileCopyrightText: 2024 German Federal Office for Information Security (BSI) <https://www.bsi.bund.de>
// Software-Engineering: 2024 Intevation GmbH <https://intevation.de>

package certs

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const passphrase = "qwer"

// writeTestCertificate creates a self-signed client certificate and
// stores it together with its key. If pass is not empty the key
// is encrypted.
func writeTestCertificate(t *testing.T, dir, pass string) (string, string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "harvester test client"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	keyBlock := &pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}
	if pass != "" {
		//lint:ignore SA1019 Legacy PEM encryption is what the key files use.
		if keyBlock, err = x509.EncryptPEMBlock(
			rand.Reader, keyBlock.Type, keyDER, []byte(pass), x509.PEMCipherAES256); err != nil {
			t.Fatal(err)
		}
	}
	certFile := filepath.Join(dir, "client.crt")
	keyFile := filepath.Join(dir, "client.pem")
	if err := os.WriteFile(certFile,
		pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, pem.EncodeToMemory(keyBlock), 0600); err != nil {
		t.Fatal(err)
	}
	return certFile, keyFile
}

func TestLoadCertificate(t *testing.T) {
	plainCert, plainKey := writeTestCertificate(t, t.TempDir(), "")
	encCert, encKey := writeTestCertificate(t, t.TempDir(), passphrase)
	missing := filepath.Join(t.TempDir(), "missing.pem")

	for _, x := range []struct {
		name                string
		cert, key, passwd   string
		wantCert, wantError bool
	}{
		{"none", "", "", "", false, false},
		{"plain", plainCert, plainKey, "", true, false},
		{"key only", "", plainKey, "", false, true},
		{"cert only", plainCert, "", "", false, true},
		{"missing key", plainCert, missing, "", false, true},
		{"passphrase for plain key", plainCert, plainKey, passphrase, false, true},
		{"missing key with passphrase", plainCert, missing, passphrase, false, true},
		{"encrypted", encCert, encKey, passphrase, true, false},
		{"wrong passphrase", encCert, encKey, "wrong", false, true},
		{"mismatching cert", plainCert, encKey, passphrase, false, true},
		{"no PEM in key", plainCert, plainCert + ".none", passphrase, false, true},
	} {
		certs, err := LoadCertificate(x.cert, x.key, x.passwd)
		if (err != nil) != x.wantError {
			t.Errorf("%s: unexpected error state: %v", x.name, err)
		}
		if (len(certs) != 0) != x.wantCert {
			t.Errorf("%s: got %d certificates", x.name, len(certs))
		}
	}
}
