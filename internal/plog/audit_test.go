// Copyright 2024-2026 the Loginrelay contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package plog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"go.loginrelay.dev/internal/here"
)

func TestAudit(t *testing.T) {
	tests := []struct {
		name      string
		redactPII bool
		run       func(AuditLogger)
		want      string
	}{
		{
			name: "only message, with both nil and empty audit params",
			run: func(a AuditLogger) {
				a.Audit(AuditEventBackendRegistered, nil)
				a.Audit(AuditEventBackendRegistered, &AuditParams{})
			},
			want: here.Doc(`
				{"level":"info","timestamp":"2099-08-08T13:57:36.123456Z","caller":"plog/audit_test.go:<line>$plog.TestAudit.func1","message":"Backend Registered","auditEvent":true}
				{"level":"info","timestamp":"2099-08-08T13:57:36.123456Z","caller":"plog/audit_test.go:<line>$plog.TestAudit.func1","message":"Backend Registered","auditEvent":true}
			`),
		},
		{
			name: "with attempt ID and PII",
			run: func(a AuditLogger) {
				a.Audit(AuditEventAuthenticationDenied, &AuditParams{
					AttemptID:        "fake-attempt-id",
					PIIKeysAndValues: []any{"userid", "alice"},
					KeysAndValues:    []any{"reason", "BAD_CREDENTIALS"},
				})
			},
			want: here.Doc(`
				{"level":"info","timestamp":"2099-08-08T13:57:36.123456Z","caller":"plog/audit_test.go:<line>$plog.TestAudit.func2","message":"Authentication Denied","auditEvent":true,"attemptID":"fake-attempt-id","personalInfo":{"userid":"alice"},"reason":"BAD_CREDENTIALS"}
			`),
		},
		{
			name:      "with PII configured to be redacted",
			redactPII: true,
			run: func(a AuditLogger) {
				a.Audit(AuditEventAuthenticationSucceeded, &AuditParams{
					PIIKeysAndValues: []any{"userid", "alice", "dn", "uid=alice,dc=example,dc=com"},
				})
			},
			want: here.Doc(`
				{"level":"info","timestamp":"2099-08-08T13:57:36.123456Z","caller":"plog/audit_test.go:<line>$plog.TestAudit.func3","message":"Authentication Succeeded","auditEvent":true,"personalInfo":{"dn":"redacted","userid":"redacted"}}
			`),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, buf := TestAuditLogger(t)
			if tt.redactPII {
				a.(*auditLogger).cfg.LogUserIDs = false
			}
			tt.run(a)
			require.Equal(t, tt.want, buf.String())
		})
	}
}
