// Copyright 2026 the Loginrelay contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package authn

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// AlwaysAllow accepts every attempt with an empty profile.
type AlwaysAllow struct{}

var _ Backend = AlwaysAllow{}

func (AlwaysAllow) Kind() Kind { return KindAlwaysAllow }

func (AlwaysAllow) Authenticate(_ context.Context, credentials Credentials) *Result {
	return Success(KindAlwaysAllow, nil, map[string]string{CredentialUserID: credentials.UserID})
}

// AlwaysDeny rejects every attempt. Reason is returned as the Result's Message.
type AlwaysDeny struct {
	Reason string
}

var _ Backend = AlwaysDeny{}

func (AlwaysDeny) Kind() Kind { return KindAlwaysDeny }

func (d AlwaysDeny) Authenticate(_ context.Context, _ Credentials) *Result {
	return Denied(KindAlwaysDeny, ReasonBadCredentials, d.Reason)
}

// FixedCredential accepts exactly one userid and password. Both comparisons are case-sensitive and
// take constant time with respect to the password's content.
type FixedCredential struct {
	userID       string
	password     []byte
	passwordHash []byte
}

var _ Backend = (*FixedCredential)(nil)

// NewFixedCredential accepts userid with the plaintext password.
func NewFixedCredential(userID, password string) (*FixedCredential, error) {
	if len(userID) == 0 {
		return nil, errors.New("userid must not be empty")
	}
	if len(password) == 0 {
		return nil, errors.New("password must not be empty")
	}
	return &FixedCredential{userID: userID, password: []byte(password)}, nil
}

// NewFixedCredentialFromHash accepts userid with any password that matches the bcrypt hash.
func NewFixedCredentialFromHash(userID, hash string) (*FixedCredential, error) {
	if len(userID) == 0 {
		return nil, errors.New("userid must not be empty")
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("invalid bcrypt password hash: %w", err)
	}
	return &FixedCredential{userID: userID, passwordHash: []byte(hash)}, nil
}

func (*FixedCredential) Kind() Kind { return KindFixed }

func (f *FixedCredential) Authenticate(_ context.Context, credentials Credentials) *Result {
	userMatches := subtle.ConstantTimeCompare([]byte(credentials.UserID), []byte(f.userID)) == 1

	var passwordMatches bool
	if f.passwordHash != nil {
		passwordMatches = bcrypt.CompareHashAndPassword(f.passwordHash, []byte(credentials.Password)) == nil
	} else {
		passwordMatches = subtle.ConstantTimeCompare([]byte(credentials.Password), f.password) == 1
	}

	if !userMatches || !passwordMatches {
		return Denied(KindFixed, ReasonBadCredentials, "")
	}
	return Success(KindFixed, map[string]string{CredentialUserID: f.userID}, map[string]string{CredentialUserID: f.userID})
}
