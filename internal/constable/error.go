// Copyright 2020-2026 the Loginrelay contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package constable provides an error type that can be declared as a constant,
// so sentinel errors cannot be reassigned by other packages.
package constable

var _ error = Error("")

// Error is a string that satisfies the error interface.
//
//	const errBadThing = constable.Error("bad thing happened")
type Error string

func (e Error) Error() string {
	return string(e)
}
