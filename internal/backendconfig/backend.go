// Copyright 2026 the Loginrelay contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package backendconfig

import (
	"errors"
	"strings"

	"go.loginrelay.dev/internal/authn"
	"go.loginrelay.dev/internal/configerr"
)

// Recognized keys of a backend section.
const (
	KeyKind              = "kind"
	KeyUserID            = "userid"
	KeyPassword          = "password"
	KeyPasswordHash      = "password_hash"
	KeyReason            = "reason"
	KeyAttributeMappings = "attribute_mappings"

	// SectionConnection and SectionQuery hold the raw connection and query mappings of an ldap backend.
	SectionConnection = "connection"
	SectionQuery      = "query"
)

// BackendConfig is one validated backend section. Only the fields of its Kind are set.
type BackendConfig struct {
	Kind authn.Kind

	// fixed
	UserID       string
	Password     string
	PasswordHash string

	// always_deny
	Reason string

	// ldap
	Connection        ConnectionConfig
	Query             QueryConfig
	AttributeMappings string
}

// ValidateBackend converts a raw backend section into a BackendConfig. Keys of the nested connection and
// query sections are reported with their section prefix, e.g. "connection.pool_size".
func ValidateBackend(raw map[string]string) (BackendConfig, error) {
	config, errs := validateBackend(raw)
	if len(errs) > 0 {
		return BackendConfig{}, errs[0]
	}
	return config, nil
}

// BackendProblems is like ValidateBackend but returns every problem found.
func BackendProblems(raw map[string]string) []error {
	_, errs := validateBackend(raw)
	return errs
}

func validateBackend(raw map[string]string) (BackendConfig, []error) {
	f := newFields(raw)

	v, ok := f.lookup(KeyKind)
	if !ok {
		f.fail(configerr.MissingField, KeyKind, nil)
		return BackendConfig{}, f.allErrs()
	}
	kind, err := authn.ParseKind(strings.ToLower(v))
	if err != nil {
		f.fail(configerr.TypeCoercionFailure, KeyKind, err)
		return BackendConfig{}, f.allErrs()
	}

	config := BackendConfig{Kind: kind}
	var nested func(key string) bool

	switch kind {
	case authn.KindAlwaysAllow:
	case authn.KindAlwaysDeny:
		config.Reason = f.string(KeyReason, "")
	case authn.KindFixed:
		config.UserID = f.string(KeyUserID, "")
		if len(config.UserID) == 0 {
			f.fail(configerr.MissingField, KeyUserID, nil)
		}
		config.Password = f.string(KeyPassword, "")
		config.PasswordHash = f.string(KeyPasswordHash, "")
		switch {
		case len(config.Password) > 0 && len(config.PasswordHash) > 0:
			f.fail(configerr.TypeCoercionFailure, KeyPasswordHash, errors.New("must not be set together with password"))
		case len(config.Password) == 0 && len(config.PasswordHash) == 0:
			f.fail(configerr.MissingField, KeyPassword, errors.New("password or password_hash is required"))
		}
	case authn.KindLDAP:
		config.AttributeMappings = f.string(KeyAttributeMappings, "")

		var connErrs, queryErrs []error
		config.Connection, connErrs = validateConnection(section(raw, SectionConnection))
		config.Query, queryErrs = validateQuery(section(raw, SectionQuery))
		f.addPrefixed(SectionConnection, connErrs)
		f.addPrefixed(SectionQuery, queryErrs)
		if len(connErrs) == 0 && !config.Connection.HasURI() {
			f.fail(configerr.MissingField, SectionConnection+"."+KeyURI, errors.New("required for an ldap backend"))
		}

		nested = func(key string) bool {
			return strings.HasPrefix(key, SectionConnection+".") || strings.HasPrefix(key, SectionQuery+".")
		}
	}

	f.unknown(nested)
	return config, f.allErrs()
}

// section returns the keys of raw under name, without the "name." prefix.
func section(raw map[string]string, name string) map[string]string {
	out := map[string]string{}
	for key, value := range raw {
		if rest, ok := strings.CutPrefix(key, name+"."); ok {
			out[rest] = value
		}
	}
	return out
}

func (f *fields) addPrefixed(prefix string, errs []error) {
	for _, err := range errs {
		var cerr *configerr.Error
		if errors.As(err, &cerr) {
			f.errs = append(f.errs, cerr.WithPrefix(prefix))
			continue
		}
		f.errs = append(f.errs, configerr.New(configerr.TypeCoercionFailure, prefix, err))
	}
}
