// Copyright 2026 the Loginrelay contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package upstreamldap

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"go.loginrelay.dev/internal/constable"
	"go.loginrelay.dev/internal/endpointaddr"
	"go.loginrelay.dev/internal/multierror"
)

const errPoolClosed = constable.Error("connection pool is closed")

// pool bounds the number of connections in use and keeps released healthy connections for reuse.
// When reuse is disabled every get dials a new connection and every put closes it.
type pool struct {
	dialer LDAPDialer
	uri    endpointaddr.LDAPURI
	reuse  bool

	// sem is nil when reuse is disabled.
	sem *semaphore.Weighted

	mu     sync.Mutex
	idle   []Conn
	closed bool
}

func newPool(dialer LDAPDialer, uri endpointaddr.LDAPURI, size int, reuse bool) *pool {
	p := &pool{dialer: dialer, uri: uri, reuse: reuse}
	if reuse {
		p.sem = semaphore.NewWeighted(int64(size))
	}
	return p
}

// get returns an idle connection or dials a new one. It blocks while size connections are in use,
// until ctx is done.
func (p *pool) get(ctx context.Context) (Conn, error) {
	if p.sem != nil {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.release()
		return nil, errPoolClosed
	}
	if n := len(p.idle); n > 0 {
		conn := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return conn, nil
	}
	p.mu.Unlock()

	conn, err := p.dialer.Dial(ctx, p.uri)
	if err != nil {
		p.release()
		return nil, err
	}
	return conn, nil
}

// put returns conn to the pool. Unhealthy connections are closed instead of being reused.
func (p *pool) put(conn Conn, healthy bool) {
	defer p.release()

	p.mu.Lock()
	if healthy && p.reuse && !p.closed {
		p.idle = append(p.idle, conn)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	_ = conn.Close()
}

func (p *pool) release() {
	if p.sem != nil {
		p.sem.Release(1)
	}
}

// idleCount is the number of connections waiting for reuse.
func (p *pool) idleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// close closes the idle connections. Connections in use are closed when they are put back.
func (p *pool) close() error {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.closed = true
	p.mu.Unlock()

	errs := multierror.New()
	for _, conn := range idle {
		errs.Add(conn.Close())
	}
	return errs.ErrOrNil()
}
