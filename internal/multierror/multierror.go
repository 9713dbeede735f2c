// Copyright 2020-2026 the Loginrelay contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package multierror provides a type that can translate multiple errors into a Go error interface.
//
// A common use of this package is as follows.
//
//	errs := multierror.New()
//	for _, name := range backendNames {
//	  errs.Add(buildBackend(name))
//	}
//	return errs.ErrOrNil()
package multierror

import (
	"fmt"
	"strings"
)

// MultiError holds a list of errors, that could potentially be empty.
//
// Use New() to create a MultiError.
type MultiError []error

// New returns an empty MultiError.
func New() MultiError {
	return make([]error, 0)
}

// Add adds an error to the MultiError. Nil errors are ignored so callers can pass results directly.
func (m *MultiError) Add(err error) {
	if err == nil {
		return
	}
	*m = append(*m, err)
}

// Error implements the error.Error() interface method.
func (m MultiError) Error() string {
	sb := strings.Builder{}
	_, _ = fmt.Fprintf(&sb, "%d error(s):", len(m))
	for _, err := range m {
		_, _ = fmt.Fprintf(&sb, "\n- %s", err.Error())
	}
	return sb.String()
}

// Unwrap allows errors.Is and errors.As to inspect every collected error.
func (m MultiError) Unwrap() []error {
	return m
}

// ErrOrNil returns either nil, if there are no errors in this MultiError, or an error, otherwise.
func (m MultiError) ErrOrNil() error {
	if len(m) > 0 {
		return m
	}
	return nil
}
