// Copyright 2026 the Loginrelay contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package backendconfig turns raw string settings into typed, validated backend configuration.
//
// Raw configuration is a flat map of keys to strings, usually the keys under one backend's prefix in a
// Settings file. Values are trimmed, and an empty value is treated the same as an absent key, which takes
// the documented default. Every coercion problem is collected and the first one is returned as a
// *configerr.Error naming the offending key. Validation is atomic: callers receive either a complete
// config or an error.
package backendconfig
