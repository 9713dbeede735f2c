// Copyright 2026 the Loginrelay contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package configerr defines the configuration errors that are fatal at startup.
package configerr

import (
	"errors"
	"fmt"

	"go.loginrelay.dev/internal/constable"
)

// Kind identifies the class of a configuration error.
type Kind string

const (
	UnknownField            Kind = "UnknownField"
	TypeCoercionFailure     Kind = "TypeCoercionFailure"
	MissingField            Kind = "MissingField"
	TemplateFieldUndeclared Kind = "TemplateFieldUndeclared"
	DuplicateName           Kind = "DuplicateName"
)

// ErrConfig is matched by every *Error with errors.Is.
const ErrConfig = constable.Error("configuration error")

// Error is a configuration problem attributed to a single field.
type Error struct {
	Kind  Kind
	Field string
	Err   error
}

func New(kind Kind, field string, err error) *Error {
	return &Error{Kind: kind, Field: field, Err: err}
}

// Newf is like New with a formatted cause.
func Newf(kind Kind, field string, format string, args ...any) *Error {
	return &Error{Kind: kind, Field: field, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Field)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Err.Error())
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == ErrConfig //nolint:errorlint // sentinel comparison
}

// WithPrefix returns a copy of e whose field is qualified by prefix, e.g. "backend.corp.connection".
func (e *Error) WithPrefix(prefix string) *Error {
	if len(prefix) == 0 {
		return e
	}
	out := *e
	if len(out.Field) == 0 {
		out.Field = prefix
	} else {
		out.Field = prefix + "." + out.Field
	}
	return &out
}

// KindOf returns the Kind of the first *Error in err's chain, and false if there is none.
func KindOf(err error) (Kind, bool) {
	var cerr *Error
	if !errors.As(err, &cerr) {
		return "", false
	}
	return cerr.Kind, true
}

// FieldOf returns the Field of the first *Error in err's chain.
func FieldOf(err error) string {
	var cerr *Error
	if !errors.As(err, &cerr) {
		return ""
	}
	return cerr.Field
}
