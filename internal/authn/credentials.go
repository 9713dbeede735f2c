// Copyright 2026 the Loginrelay contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package authn

import "fmt"

// Credentials are the transient inputs of a single login attempt.
type Credentials struct {
	UserID   string
	Password string
}

// Incomplete reports whether either part is empty. Such credentials are never sent to a directory,
// where an empty password would be an unauthenticated bind.
func (c Credentials) Incomplete() bool {
	return len(c.UserID) == 0 || len(c.Password) == 0
}

// String never includes the password.
func (c Credentials) String() string {
	return fmt.Sprintf("userid=%q password=<redacted>", c.UserID)
}

// GoString never includes the password, including when formatted with %#v.
func (c Credentials) GoString() string {
	return fmt.Sprintf("authn.Credentials{UserID:%q, Password:<redacted>}", c.UserID)
}
