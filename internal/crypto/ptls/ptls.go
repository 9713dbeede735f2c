// Copyright 2021-2026 the Loginrelay contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package ptls holds the TLS client configurations used to reach directory servers.
package ptls

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"go.loginrelay.dev/internal/constable"
)

const ErrNoCertificates = constable.Error("no PEM certificates found")

type ConfigFunc func(*x509.CertPool) *tls.Config

func Default(rootCAs *x509.CertPool) *tls.Config {
	return &tls.Config{
		// Can't use SSLv3 because of POODLE and BEAST
		// Can't use TLSv1.0 because of POODLE and BEAST using CBC cipher
		// Can't use TLSv1.1 because of RC4 cipher usage
		MinVersion: tls.VersionTLS12,

		// the order does not matter in go 1.17+ https://go.dev/blog/tls-cipher-suites
		// we match crypto/tls.cipherSuitesPreferenceOrder because it makes unit tests easier to write
		// this list is ignored when TLS 1.3 is used
		CipherSuites: []uint16{
			// these are all AEADs with ECDHE, some use ChaCha20Poly1305 while others use AES-GCM
			// this provides forward secrecy, confidentiality and authenticity of data
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256, tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384, tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305, tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
		},

		// optional root CAs, nil means use the host's root CA set
		RootCAs: rootCAs,
	}
}

func DefaultLDAP(rootCAs *x509.CertPool) *tls.Config {
	c := Default(rootCAs)
	// add less secure ciphers to support the default AWS Active Directory config
	c.CipherSuites = append(c.CipherSuites,
		// CBC with ECDHE
		// this provides forward secrecy and confidentiality of data but not authenticity
		// MAC-then-Encrypt CBC ciphers are susceptible to padding oracle attacks
		// See https://crypto.stackexchange.com/a/205 and https://crypto.stackexchange.com/a/224
		tls.TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA, tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA,
		tls.TLS_ECDHE_ECDSA_WITH_AES_256_CBC_SHA, tls.TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA,
	)
	return c
}

// LDAPClient returns the config for a single directory server, verified against serverName.
func LDAPClient(serverName string, rootCAs *x509.CertPool) *tls.Config {
	c := DefaultLDAP(rootCAs)
	c.ServerName = serverName
	return c
}

// CertPoolFromPEM builds a pool from PEM data. Nil or empty data returns a nil pool,
// which means the host's root CA set.
func CertPoolFromPEM(pemData []byte) (*x509.CertPool, error) {
	if len(pemData) == 0 {
		return nil, nil
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pemData) {
		return nil, ErrNoCertificates
	}
	return pool, nil
}

// CertPoolFromFile is CertPoolFromPEM for the contents of path. An empty path returns a nil pool.
func CertPoolFromFile(path string) (*x509.CertPool, error) {
	if len(path) == 0 {
		return nil, nil
	}
	pemData, err := os.ReadFile(path) //nolint:gosec // path comes from the operator's configuration
	if err != nil {
		return nil, fmt.Errorf("could not read CA bundle: %w", err)
	}
	pool, err := CertPoolFromPEM(pemData)
	if err != nil {
		return nil, fmt.Errorf("could not load CA bundle %q: %w", path, err)
	}
	return pool, nil
}
