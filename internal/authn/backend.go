// Copyright 2026 the Loginrelay contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package authn

import (
	"context"
	"fmt"
)

// Kind is the closed set of backend implementations.
type Kind string

const (
	KindAlwaysAllow Kind = "always_allow"
	KindAlwaysDeny  Kind = "always_deny"
	KindFixed       Kind = "fixed"
	KindLDAP        Kind = "ldap"
)

// ParseKind accepts the canonical kind names.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindAlwaysAllow, KindAlwaysDeny, KindFixed, KindLDAP:
		return k, nil
	default:
		return "", fmt.Errorf("unknown backend kind %q: must be one of %s, %s, %s, %s",
			s, KindAlwaysAllow, KindAlwaysDeny, KindFixed, KindLDAP)
	}
}

// Backend verifies credentials.
//
// Implementations must be safe for concurrent use and must never modify their configuration.
// Authenticate always returns a non-nil *Result; failures are denials, not errors.
type Backend interface {
	Kind() Kind
	Authenticate(ctx context.Context, credentials Credentials) *Result
}

// Closer is implemented by backends that hold resources, such as pooled connections.
type Closer interface {
	Close() error
}
