// Copyright 2026 the Loginrelay contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package backendconfig

import (
	"fmt"
	"strconv"
	"time"

	"github.com/go-ldap/ldap/v3"

	"go.loginrelay.dev/internal/configerr"
	"go.loginrelay.dev/internal/endpointaddr"
)

// Connection keys.
const (
	KeyURI        = "uri"
	KeyBind       = "bind"
	KeyPasswd     = "passwd"
	KeyPoolSize   = "pool_size"
	KeyRetryMax   = "retry_max"
	KeyRetryDelay = "retry_delay"
	KeyUseTLS     = "use_tls"
	KeyTimeout    = "timeout"
	KeyUsePool    = "use_pool"
	KeyCAFile     = "ca_file"
)

// NoTimeout disables the deadline on connection acquisition and directory operations.
const NoTimeout time.Duration = -1

const noTimeoutValue = "none"

const (
	DefaultPoolSize   = 10
	DefaultRetryMax   = 3
	DefaultRetryDelay = 100 * time.Millisecond
	DefaultTimeout    = NoTimeout
	DefaultUsePool    = true
	DefaultUseTLS     = false
)

// ConnectionConfig describes how to reach and authenticate to a directory server.
// It is immutable once returned by ValidateConnection.
type ConnectionConfig struct {
	// URI is the zero value when no uri was configured.
	URI endpointaddr.LDAPURI

	// BindDN and BindPassword are the service account. An empty BindDN means anonymous.
	BindDN       string
	BindPassword string

	PoolSize   int
	RetryMax   int
	RetryDelay time.Duration

	// UseTLS upgrades an ldap:// connection with StartTLS. ldaps:// always uses TLS.
	UseTLS bool

	// Timeout bounds connection acquisition and each directory operation. NoTimeout disables it.
	Timeout time.Duration

	UsePool bool

	// CAFile is an optional PEM bundle used instead of the host's roots.
	CAFile string
}

// HasURI reports whether a uri was configured.
func (c ConnectionConfig) HasURI() bool {
	return len(c.URI.Host) > 0
}

// HasTimeout reports whether Timeout is a real deadline.
func (c ConnectionConfig) HasTimeout() bool {
	return c.Timeout > 0
}

// Attempts is the total number of connection attempts, the first one plus RetryMax retries.
func (c ConnectionConfig) Attempts() int {
	return c.RetryMax + 1
}

// ValidateConnection converts a raw connection mapping into a ConnectionConfig. Absent keys take their
// defaults. Every problem is recorded, and the first one is returned as a *configerr.Error.
func ValidateConnection(raw map[string]string) (ConnectionConfig, error) {
	config, errs := validateConnection(raw)
	if len(errs) > 0 {
		return ConnectionConfig{}, errs[0]
	}
	return config, nil
}

// ConnectionProblems is like ValidateConnection but returns every problem found.
func ConnectionProblems(raw map[string]string) []error {
	_, errs := validateConnection(raw)
	return errs
}

func validateConnection(raw map[string]string) (ConnectionConfig, []error) {
	f := newFields(raw)

	config := ConnectionConfig{
		BindDN:       f.string(KeyBind, ""),
		BindPassword: f.string(KeyPasswd, ""),
		PoolSize:     f.integer(KeyPoolSize, DefaultPoolSize, 1),
		RetryMax:     f.integer(KeyRetryMax, DefaultRetryMax, 0),
		RetryDelay:   f.duration(KeyRetryDelay, DefaultRetryDelay),
		UseTLS:       f.boolean(KeyUseTLS, DefaultUseTLS),
		Timeout:      timeout(f),
		UsePool:      f.boolean(KeyUsePool, DefaultUsePool),
		CAFile:       f.string(KeyCAFile, ""),
	}

	if v, ok := f.lookup(KeyURI); ok {
		uri, err := endpointaddr.ParseURI(v)
		if err != nil {
			f.fail(configerr.TypeCoercionFailure, KeyURI, err)
		} else {
			config.URI = uri
		}
	}

	if len(config.BindDN) > 0 {
		if _, err := ldap.ParseDN(config.BindDN); err != nil {
			f.coercionFailed(KeyBind, config.BindDN, fmt.Errorf("not a distinguished name: %w", err))
		}
	}
	if len(config.BindPassword) > 0 && len(config.BindDN) == 0 {
		f.fail(configerr.MissingField, KeyBind, fmt.Errorf("required when %s is set", KeyPasswd))
	}

	f.unknown(nil)

	return config, f.allErrs()
}

func timeout(f *fields) time.Duration {
	v, ok := f.lookup(KeyTimeout)
	if !ok {
		return DefaultTimeout
	}
	switch v {
	case noTimeoutValue, "-1":
		return NoTimeout
	}
	d, err := parseDuration(v)
	if err != nil {
		f.coercionFailed(KeyTimeout, v, err)
		return DefaultTimeout
	}
	if d == 0 {
		return NoTimeout
	}
	return d
}

// Raw renders the config back to the raw mapping accepted by ValidateConnection.
func (c ConnectionConfig) Raw() map[string]string {
	raw := map[string]string{
		KeyPoolSize:   strconv.Itoa(c.PoolSize),
		KeyRetryMax:   strconv.Itoa(c.RetryMax),
		KeyRetryDelay: c.RetryDelay.String(),
		KeyUseTLS:     formatBool(c.UseTLS),
		KeyUsePool:    formatBool(c.UsePool),
		KeyTimeout:    noTimeoutValue,
	}
	if c.HasTimeout() {
		raw[KeyTimeout] = c.Timeout.String()
	}
	if c.HasURI() {
		raw[KeyURI] = c.URI.String()
	}
	if len(c.BindDN) > 0 {
		raw[KeyBind] = c.BindDN
	}
	if len(c.BindPassword) > 0 {
		raw[KeyPasswd] = c.BindPassword
	}
	if len(c.CAFile) > 0 {
		raw[KeyCAFile] = c.CAFile
	}
	return raw
}

// String omits the bind password.
func (c ConnectionConfig) String() string {
	uri := "<unset>"
	if c.HasURI() {
		uri = c.URI.String()
	}
	return fmt.Sprintf("uri=%s bind=%q pool_size=%d use_pool=%t retry_max=%d retry_delay=%s use_tls=%t timeout=%s",
		uri, c.BindDN, c.PoolSize, c.UsePool, c.RetryMax, c.RetryDelay, c.UseTLS, c.timeoutString())
}

func (c ConnectionConfig) timeoutString() string {
	if c.HasTimeout() {
		return c.Timeout.String()
	}
	return noTimeoutValue
}
