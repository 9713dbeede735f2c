// Copyright 2024-2026 the Loginrelay contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package plog

import "fmt"

type AuditEventMessage string

const (
	AuditEventBackendRegistered         AuditEventMessage = "Backend Registered"
	AuditEventAuthenticationAttempted   AuditEventMessage = "Authentication Attempted"
	AuditEventAuthenticationSucceeded   AuditEventMessage = "Authentication Succeeded"
	AuditEventAuthenticationDenied      AuditEventMessage = "Authentication Denied"
	AuditEventBackendUnavailable        AuditEventMessage = "Backend Unavailable"
	AuditEventSearchResultCacheAccessed AuditEventMessage = "Search Result Cache Accessed"
)

// AuditLogConfig controls how personal information is written into audit events.
type AuditLogConfig struct {
	// LogUserIDs causes userids and directory DNs to be logged as-is instead of redacted.
	LogUserIDs bool
}

// AuditParams are the optional values of an audit event.
type AuditParams struct {
	// AttemptID correlates all events of a single authentication attempt.
	AttemptID string
	// PIIKeysAndValues are nested under "personalInfo" and redacted unless AuditLogConfig.LogUserIDs is set.
	PIIKeysAndValues []any
	// KeysAndValues are logged without any redaction. Never put credentials here.
	KeysAndValues []any
}

type AuditLogger interface {
	Audit(msg AuditEventMessage, p *AuditParams)
}

type auditLogger struct {
	logger Logger
	cfg    AuditLogConfig
}

func NewAuditLogger(cfg AuditLogConfig) AuditLogger {
	return &auditLogger{logger: New().withDepth(1), cfg: cfg}
}

func (a *auditLogger) Audit(msg AuditEventMessage, p *AuditParams) {
	if p == nil {
		p = &AuditParams{}
	}

	keysAndValues := []any{"auditEvent", true}

	if len(p.AttemptID) > 0 {
		keysAndValues = append(keysAndValues, "attemptID", p.AttemptID)
	}

	if len(p.PIIKeysAndValues) > 0 {
		keysAndValues = append(keysAndValues, "personalInfo", a.personalInfo(p.PIIKeysAndValues))
	}

	keysAndValues = append(keysAndValues, p.KeysAndValues...)

	a.logger.Always(string(msg), keysAndValues...)
}

func (a *auditLogger) personalInfo(keysAndValues []any) map[string]any {
	if len(keysAndValues)%2 != 0 {
		a.logger.Error("audit event has odd number of PII keys and values", nil, "count", len(keysAndValues))
		keysAndValues = keysAndValues[:len(keysAndValues)-1]
	}

	out := make(map[string]any, len(keysAndValues)/2)
	for i := 0; i < len(keysAndValues); i += 2 {
		key := fmt.Sprint(keysAndValues[i])
		if a.cfg.LogUserIDs {
			out[key] = keysAndValues[i+1]
			continue
		}
		out[key] = "redacted"
	}
	return out
}
