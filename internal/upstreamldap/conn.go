// Copyright 2021-2026 the Loginrelay contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package upstreamldap

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/go-ldap/ldap/v3"

	"go.loginrelay.dev/internal/endpointaddr"
)

// Conn abstracts the directory protocol (mostly for testing).
type Conn interface {
	Bind(username, password string) error

	UnauthenticatedBind(username string) error

	Search(searchRequest *ldap.SearchRequest) (*ldap.SearchResult, error)

	Close() error
}

// LDAPDialer is a factory of Conn, and the resulting Conn can then be used to interact with a directory server.
type LDAPDialer interface {
	Dial(ctx context.Context, uri endpointaddr.LDAPURI) (Conn, error)
}

// LDAPDialerFunc makes it easy to use a func as an LDAPDialer.
type LDAPDialerFunc func(ctx context.Context, uri endpointaddr.LDAPURI) (Conn, error)

var _ LDAPDialer = LDAPDialerFunc(nil)

func (f LDAPDialerFunc) Dial(ctx context.Context, uri endpointaddr.LDAPURI) (Conn, error) {
	return f(ctx, uri)
}

// ldapConn adapts *ldap.Conn to Conn.
type ldapConn struct {
	*ldap.Conn
}

func (c ldapConn) Close() error {
	return c.Conn.Close()
}

// tlsDialer is the default LDAPDialer. The go-ldap library does not support dialing with a
// context.Context, so we implement it ourselves, heavily inspired by ldap.DialURL.
type tlsDialer struct {
	tlsConfig *tls.Config
	startTLS  bool
	timeout   time.Duration
}

var _ LDAPDialer = (*tlsDialer)(nil)

func (d *tlsDialer) Dial(ctx context.Context, uri endpointaddr.LDAPURI) (Conn, error) {
	netDialer := &net.Dialer{}
	if d.timeout > 0 {
		netDialer.Timeout = d.timeout
	}

	var (
		c   net.Conn
		err error
	)
	if uri.ImplicitTLS() {
		tlsDialer := &tls.Dialer{NetDialer: netDialer, Config: d.tlsConfig}
		c, err = tlsDialer.DialContext(ctx, "tcp", uri.Endpoint())
	} else {
		c, err = netDialer.DialContext(ctx, "tcp", uri.Endpoint())
	}
	if err != nil {
		return nil, ldap.NewError(ldap.ErrorNetwork, err)
	}

	conn := ldap.NewConn(c, uri.ImplicitTLS())
	conn.Start()
	if d.timeout > 0 {
		conn.SetTimeout(d.timeout)
	}

	if d.startTLS && !uri.ImplicitTLS() {
		if err := conn.StartTLS(d.tlsConfig); err != nil {
			conn.Close()
			return nil, ldap.NewError(ldap.ErrorNetwork, err)
		}
	}

	return ldapConn{Conn: conn}, nil
}
