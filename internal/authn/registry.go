// Copyright 2026 the Loginrelay contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package authn

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"go.loginrelay.dev/internal/configerr"
	"go.loginrelay.dev/internal/constable"
	"go.loginrelay.dev/internal/multierror"
	"go.loginrelay.dev/internal/plog"
)

const (
	ErrNotFound = constable.Error("backend not found")
	ErrSealed   = constable.Error("registry is sealed")
)

// Registry maps backend names to backends. It is populated at startup, sealed, and then only read.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
	order    []string
	sealed   bool

	audit     plog.AuditLogger
	attemptID func() string
}

// NewRegistry returns an empty Registry which writes an audit event for every attempt made through
// a looked-up backend. A nil audit logger disables audit events.
func NewRegistry(audit plog.AuditLogger) *Registry {
	return &Registry{
		backends:  map[string]Backend{},
		audit:     audit,
		attemptID: uuid.NewString,
	}
}

// Register adds backend under name. A name that is already registered is a DuplicateName configuration error.
func (r *Registry) Register(name string, backend Backend) error {
	if len(name) == 0 {
		return configerr.New(configerr.MissingField, "name", errors.New("backend name must not be empty"))
	}
	if backend == nil {
		return configerr.New(configerr.MissingField, name, errors.New("backend must not be nil"))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("cannot register %q: %w", name, ErrSealed)
	}
	if _, ok := r.backends[name]; ok {
		return configerr.New(configerr.DuplicateName, name, fmt.Errorf("backend %q is already registered", name))
	}

	r.backends[name] = backend
	r.order = append(r.order, name)

	r.auditEvent(plog.AuditEventBackendRegistered, &plog.AuditParams{
		KeysAndValues: []any{"backendName", name, "backendKind", backend.Kind()},
	})
	return nil
}

// Seal makes the registry read-only. Register fails afterwards.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// Lookup returns the backend registered under name, or ErrNotFound. The returned backend stamps the
// name onto every result and audits every attempt.
func (r *Registry) Lookup(name string) (Backend, error) {
	r.mu.RLock()
	backend, ok := r.backends[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return &namedBackend{name: name, backend: backend, registry: r}, nil
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Close closes every backend that holds resources and returns all failures.
func (r *Registry) Close() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	errs := multierror.New()
	for _, name := range r.order {
		if closer, ok := r.backends[name].(Closer); ok {
			if err := closer.Close(); err != nil {
				errs.Add(fmt.Errorf("close backend %q: %w", name, err))
			}
		}
	}
	return errs.ErrOrNil()
}

func (r *Registry) auditEvent(msg plog.AuditEventMessage, p *plog.AuditParams) {
	if r.audit == nil {
		return
	}
	r.audit.Audit(msg, p)
}

type namedBackend struct {
	name     string
	backend  Backend
	registry *Registry
}

var _ Backend = (*namedBackend)(nil)

func (n *namedBackend) Kind() Kind {
	return n.backend.Kind()
}

func (n *namedBackend) Authenticate(ctx context.Context, credentials Credentials) *Result {
	attemptID := n.registry.attemptID()
	kv := []any{"backendName", n.name, "backendKind", n.backend.Kind()}

	n.registry.auditEvent(plog.AuditEventAuthenticationAttempted, &plog.AuditParams{
		AttemptID:        attemptID,
		PIIKeysAndValues: []any{"userid", credentials.UserID},
		KeysAndValues:    kv,
	})

	result := n.backend.Authenticate(ctx, credentials)
	if result == nil {
		// Backends must not do this. Treat it as a broken backend rather than a login.
		plog.Error("backend returned no result", nil, "backendName", n.name)
		result = Denied(n.backend.Kind(), ReasonConfigError, "backend returned no result")
	}
	result = result.WithBackendName(n.name)

	if result.Succeeded() {
		n.registry.auditEvent(plog.AuditEventAuthenticationSucceeded, &plog.AuditParams{
			AttemptID:        attemptID,
			PIIKeysAndValues: []any{"userid", credentials.UserID, "dn", result.Credentials[CredentialDN]},
			KeysAndValues:    kv,
		})
		return result
	}

	msg := plog.AuditEventAuthenticationDenied
	if result.Reason == ReasonBackendUnavailable {
		msg = plog.AuditEventBackendUnavailable
	}
	n.registry.auditEvent(msg, &plog.AuditParams{
		AttemptID:        attemptID,
		PIIKeysAndValues: []any{"userid", credentials.UserID},
		KeysAndValues:    append(kv, "reason", result.Reason),
	})
	return result
}
