// Copyright 2026 the Loginrelay contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package authn contains the credential backend contract, the simple backends, and the registry that
// maps backend names to backends.
//
// A Backend never returns an error. Every outcome of an attempt, including an unreachable directory, is a
// *Result, which is either a success carrying the user's profile or a denial carrying a Reason.
package authn
