// Copyright 2026 the Loginrelay contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package authn

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"go.loginrelay.dev/internal/configerr"
	"go.loginrelay.dev/internal/plog"
)

type recordedEvent struct {
	msg    plog.AuditEventMessage
	params plog.AuditParams
}

type recordingAuditLogger struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingAuditLogger) Audit(msg plog.AuditEventMessage, p *plog.AuditParams) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{msg: msg, params: *p})
}

func (r *recordingAuditLogger) messages() []plog.AuditEventMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]plog.AuditEventMessage, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.msg)
	}
	return out
}

type closingBackend struct {
	AlwaysAllow
	closed bool
	err    error
}

func (c *closingBackend) Close() error {
	c.closed = true
	return c.err
}

type staticBackend struct {
	result *Result
}

func (s staticBackend) Kind() Kind { return KindLDAP }

func (s staticBackend) Authenticate(context.Context, Credentials) *Result { return s.result }

func TestRegistryRegisterAndLookup(t *testing.T) {
	audit := &recordingAuditLogger{}
	registry := NewRegistry(audit)

	require.NoError(t, registry.Register("allow", AlwaysAllow{}))
	require.NoError(t, registry.Register("deny", AlwaysDeny{}))

	err := registry.Register("allow", AlwaysDeny{})
	require.ErrorIs(t, err, configerr.ErrConfig)
	kind, _ := configerr.KindOf(err)
	require.Equal(t, configerr.DuplicateName, kind)
	require.Equal(t, "allow", configerr.FieldOf(err))

	backend, err := registry.Lookup("allow")
	require.NoError(t, err)
	require.Equal(t, KindAlwaysAllow, backend.Kind(), "the first registration wins")

	_, err = registry.Lookup("nope")
	require.ErrorIs(t, err, ErrNotFound)
	require.EqualError(t, err, `backend not found: "nope"`)

	require.Equal(t, []string{"allow", "deny"}, registry.Names())
	require.Equal(t, []plog.AuditEventMessage{
		plog.AuditEventBackendRegistered,
		plog.AuditEventBackendRegistered,
	}, audit.messages())
}

func TestRegistryRejectsInvalidRegistrations(t *testing.T) {
	registry := NewRegistry(nil)

	err := registry.Register("", AlwaysAllow{})
	kind, _ := configerr.KindOf(err)
	require.Equal(t, configerr.MissingField, kind)

	err = registry.Register("nil", nil)
	kind, _ = configerr.KindOf(err)
	require.Equal(t, configerr.MissingField, kind)

	registry.Seal()
	err = registry.Register("late", AlwaysAllow{})
	require.ErrorIs(t, err, ErrSealed)
	require.Empty(t, registry.Names())
}

func TestNamedBackendStampsAndAudits(t *testing.T) {
	audit := &recordingAuditLogger{}
	registry := NewRegistry(audit)
	registry.attemptID = func() string { return "fake-attempt-id" }

	fixed, err := NewFixedCredential("alice", "pw")
	require.NoError(t, err)
	require.NoError(t, registry.Register("demo", fixed))
	require.NoError(t, registry.Register("down", staticBackend{result: Denied(KindLDAP, ReasonBackendUnavailable, "")}))
	require.NoError(t, registry.Register("broken", staticBackend{}))
	audit.events = nil

	demo, err := registry.Lookup("demo")
	require.NoError(t, err)

	result := demo.Authenticate(context.Background(), Credentials{UserID: "alice", Password: "pw"})
	require.True(t, result.Succeeded())
	require.Equal(t, "demo", result.BackendName)
	require.Equal(t, KindFixed, result.BackendKind)

	result = demo.Authenticate(context.Background(), Credentials{UserID: "alice", Password: "nope"})
	require.Equal(t, ReasonBadCredentials, result.Reason)
	require.Equal(t, "demo", result.BackendName)

	down, err := registry.Lookup("down")
	require.NoError(t, err)
	result = down.Authenticate(context.Background(), Credentials{UserID: "bob", Password: "pw"})
	require.Equal(t, ReasonBackendUnavailable, result.Reason)
	require.Equal(t, "down", result.BackendName)

	broken, err := registry.Lookup("broken")
	require.NoError(t, err)
	result = broken.Authenticate(context.Background(), Credentials{UserID: "bob", Password: "pw"})
	require.Equal(t, ReasonConfigError, result.Reason)

	require.Equal(t, []plog.AuditEventMessage{
		plog.AuditEventAuthenticationAttempted,
		plog.AuditEventAuthenticationSucceeded,
		plog.AuditEventAuthenticationAttempted,
		plog.AuditEventAuthenticationDenied,
		plog.AuditEventAuthenticationAttempted,
		plog.AuditEventBackendUnavailable,
		plog.AuditEventAuthenticationAttempted,
		plog.AuditEventAuthenticationDenied,
	}, audit.messages())

	for _, e := range audit.events {
		require.Equal(t, "fake-attempt-id", e.params.AttemptID)
		require.NotContains(t, e.params.PIIKeysAndValues, "pw", "passwords are never audited")
		require.NotContains(t, e.params.KeysAndValues, "pw", "passwords are never audited")
	}
	require.Equal(t, []any{"userid", "alice", "dn", ""}, audit.events[1].params.PIIKeysAndValues)
	require.Equal(t, []any{"backendName", "demo", "backendKind", KindFixed, "reason", ReasonBadCredentials},
		audit.events[3].params.KeysAndValues)
}

func TestNamedBackendDoesNotShareResults(t *testing.T) {
	shared := Success(KindLDAP, map[string]string{"cn": "Alice"}, map[string]string{"userid": "alice"})
	registry := NewRegistry(nil)
	require.NoError(t, registry.Register("a", staticBackend{result: shared}))

	backend, err := registry.Lookup("a")
	require.NoError(t, err)
	result := backend.Authenticate(context.Background(), Credentials{UserID: "alice", Password: "x"})
	result.Profile["cn"] = "Mallory"

	require.Equal(t, "Alice", shared.Profile["cn"])
	require.Empty(t, shared.BackendName)
}

func TestRegistryClose(t *testing.T) {
	registry := NewRegistry(nil)
	ok := &closingBackend{}
	failing := &closingBackend{err: errors.New("pool still busy")}
	require.NoError(t, registry.Register("ok", ok))
	require.NoError(t, registry.Register("plain", AlwaysDeny{}))
	require.NoError(t, registry.Register("failing", failing))

	err := registry.Close()
	require.EqualError(t, err, "1 error(s):\n- close backend \"failing\": pool still busy")
	require.True(t, ok.closed)
	require.True(t, failing.closed)
}

func TestRegistryConcurrentLookups(t *testing.T) {
	registry := NewRegistry(&recordingAuditLogger{})
	require.NoError(t, registry.Register("allow", AlwaysAllow{}))
	registry.Seal()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			backend, err := registry.Lookup("allow")
			if err != nil {
				t.Error(err)
				return
			}
			if !backend.Authenticate(context.Background(), Credentials{UserID: "u", Password: "p"}).Succeeded() {
				t.Error("expected success")
			}
		}()
	}
	wg.Wait()
}
