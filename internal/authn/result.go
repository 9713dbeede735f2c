// Copyright 2026 the Loginrelay contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package authn

import "maps"

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeDenied  Outcome = "denied"
)

// Reason explains a denial.
type Reason string

const (
	// ReasonBadCredentials means the userid or password was not accepted.
	ReasonBadCredentials Reason = "BAD_CREDENTIALS"
	// ReasonConfigError means the backend is misconfigured, e.g. its service account was rejected.
	ReasonConfigError Reason = "CONFIG_ERROR"
	// ReasonBackendUnavailable means the backend could not be reached after all retries.
	ReasonBackendUnavailable Reason = "BACKEND_UNAVAILABLE"
)

// CredentialUserID and CredentialDN are the keys of Result.Credentials.
const (
	CredentialUserID = "userid"
	CredentialDN     = "dn"
)

// Result is the uniform outcome of an authentication attempt.
type Result struct {
	Outcome Outcome `json:"outcome"`

	// Reason is set only when Outcome is OutcomeDenied.
	Reason Reason `json:"reason,omitempty"`

	// Message is optional human readable detail. It never contains credentials.
	Message string `json:"message,omitempty"`

	// Profile is the mapped user information, set only on success.
	Profile map[string]string `json:"profile,omitempty"`

	// Credentials identify the authenticated principal. They never contain the password.
	Credentials map[string]string `json:"credentials,omitempty"`

	BackendName string `json:"backendName,omitempty"`
	BackendKind Kind   `json:"backendKind"`
}

// Success returns a successful result. A nil profile becomes an empty profile.
func Success(kind Kind, profile, credentials map[string]string) *Result {
	if profile == nil {
		profile = map[string]string{}
	}
	return &Result{
		Outcome:     OutcomeSuccess,
		Profile:     profile,
		Credentials: credentials,
		BackendKind: kind,
	}
}

// Denied returns a denial for reason with an optional message.
func Denied(kind Kind, reason Reason, message string) *Result {
	return &Result{
		Outcome:     OutcomeDenied,
		Reason:      reason,
		Message:     message,
		BackendKind: kind,
	}
}

func (r *Result) Succeeded() bool {
	return r != nil && r.Outcome == OutcomeSuccess
}

// WithBackendName returns a copy of r attributed to the named backend.
func (r *Result) WithBackendName(name string) *Result {
	out := *r
	out.BackendName = name
	out.Profile = maps.Clone(r.Profile)
	out.Credentials = maps.Clone(r.Credentials)
	return &out
}
