// Copyright 2021-2026 the Loginrelay contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package upstreamldap implements a credential backend that verifies passwords against a directory server.
package upstreamldap

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-ldap/ldap/v3"
	"k8s.io/utils/clock"

	"go.loginrelay.dev/internal/authn"
	"go.loginrelay.dev/internal/backendconfig"
	"go.loginrelay.dev/internal/backoff"
	"go.loginrelay.dev/internal/configerr"
	"go.loginrelay.dev/internal/constable"
	"go.loginrelay.dev/internal/crypto/ptls"
	"go.loginrelay.dev/internal/plog"
)

const (
	// readProfileFilter matches any entry. It is used to read the bound entry in direct bind mode.
	readProfileFilter = "(objectClass=*)"

	errAmbiguousUser = constable.Error("more than one entry matched")
)

// Config is everything needed to construct a Backend.
type Config struct {
	// Name is the registered name of the backend, used only for logging.
	Name string

	Connection backendconfig.ConnectionConfig
	Query      backendconfig.QueryConfig

	// Profile maps entry attributes to the result profile. Nil means DefaultProfile.
	Profile ProfileFunc

	// Dialer exists to enable testing. When nil, will use a default appropriate for production use.
	Dialer LDAPDialer

	// Clock drives cache expiry. When nil, the real clock is used.
	Clock clock.Clock
}

// Backend authenticates users against a directory server. It is safe for concurrent use.
type Backend struct {
	name       string
	connection backendconfig.ConnectionConfig
	query      backendconfig.QueryConfig
	profile    ProfileFunc

	pool   *pool
	cache  *searchCache
	logger plog.Logger
}

var (
	_ authn.Backend = (*Backend)(nil)
	_ authn.Closer  = (*Backend)(nil)
)

// New validates that the configuration is complete and prepares the connection pool.
// It does not contact the directory.
func New(config Config) (*Backend, error) {
	if !config.Connection.HasURI() {
		return nil, configerr.New(configerr.MissingField, backendconfig.KeyURI, errors.New("required for an ldap backend"))
	}

	dialer := config.Dialer
	if dialer == nil {
		rootCAs, err := ptls.CertPoolFromFile(config.Connection.CAFile)
		if err != nil {
			return nil, configerr.New(configerr.TypeCoercionFailure, backendconfig.KeyCAFile, err)
		}
		d := &tlsDialer{
			tlsConfig: ptls.LDAPClient(config.Connection.URI.Host, rootCAs),
			startTLS:  config.Connection.UseTLS,
		}
		if config.Connection.HasTimeout() {
			d.timeout = config.Connection.Timeout
		}
		dialer = d
	}

	profile := config.Profile
	if profile == nil {
		profile = DefaultProfile
	}

	clk := config.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}

	return &Backend{
		name:       config.Name,
		connection: config.Connection,
		query:      config.Query,
		profile:    profile,
		pool:       newPool(dialer, config.Connection.URI, config.Connection.PoolSize, config.Connection.UsePool),
		cache:      newSearchCache(clk, config.Query.CachePeriod),
		logger:     plog.New().WithName("upstreamldap").WithValues("backendName", config.Name, "uri", config.Connection.URI.String()),
	}, nil
}

func (b *Backend) Kind() authn.Kind {
	return authn.KindLDAP
}

// Close closes the idle pooled connections.
func (b *Backend) Close() error {
	return b.pool.close()
}

// Authenticate verifies the credentials. Bad credentials, an unexpected number of matching entries and
// a rejected password are all BAD_CREDENTIALS, while a directory that cannot be reached within the retry
// policy is BACKEND_UNAVAILABLE.
func (b *Backend) Authenticate(ctx context.Context, credentials authn.Credentials) *authn.Result {
	if credentials.Incomplete() {
		// An empty password would be an unauthenticated bind, which directories accept.
		return b.denied(authn.ReasonBadCredentials, "userid and password are required")
	}

	if b.connection.HasTimeout() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.connection.Timeout)
		defer cancel()
	}

	if b.query.SearchAfterBind {
		return b.searchAndBind(ctx, credentials)
	}
	return b.directBind(ctx, credentials)
}

func (b *Backend) searchAndBind(ctx context.Context, credentials authn.Credentials) *authn.Result {
	filter, err := b.query.RenderFilter(credentials.UserID)
	if err != nil {
		b.logger.Error("could not render user search filter", err)
		return b.denied(authn.ReasonConfigError, "could not render user search filter")
	}
	key := searchKey{filter: filter, scope: b.query.Scope}

	entries, cached := b.cache.get(key)
	if cached {
		b.logger.Trace("using cached search result", "entries", len(entries))
	}

	return b.withConnection(ctx, !cached, func(conn *lease) (*authn.Result, error) {
		if !cached {
			found, err := b.search(conn, b.query.BaseDN, b.query.Scope.LDAPScope(), filter)
			if errors.Is(err, errAmbiguousUser) {
				b.logger.Debug("user search found more than one entry", "userid", credentials.UserID)
				return b.denied(authn.ReasonBadCredentials, ""), nil
			}
			if err != nil {
				if conn.unavailable(err) {
					return nil, err
				}
				return b.searchFailed(err), nil
			}
			b.cache.set(key, found)
			entries = found
		}

		if len(entries) != 1 {
			b.logger.Debug("user search did not find exactly one entry (if this userid is valid, please check the query configuration)",
				"userid", credentials.UserID, "entries", len(entries))
			return b.denied(authn.ReasonBadCredentials, ""), nil
		}
		userEntry := entries[0]
		if len(userEntry.DN) == 0 {
			b.logger.Error("user search returned an entry without a DN", nil, "userid", credentials.UserID)
			return b.denied(authn.ReasonConfigError, "user search returned an entry without a DN"), nil
		}

		// Caution: any other commands on conn after this bind run as the user instead of the service account.
		if err := conn.Bind(userEntry.DN, credentials.Password); err != nil {
			if conn.unavailable(err) {
				return nil, err
			}
			return b.userBindFailed(err, credentials.UserID, userEntry.DN), nil
		}

		return b.success(credentials.UserID, userEntry), nil
	})
}

func (b *Backend) directBind(ctx context.Context, credentials authn.Credentials) *authn.Result {
	dn, err := b.query.RenderBindDN(credentials.UserID)
	if err != nil {
		b.logger.Error("could not render bind DN", err)
		return b.denied(authn.ReasonConfigError, "could not render bind DN")
	}

	return b.withConnection(ctx, false, func(conn *lease) (*authn.Result, error) {
		if err := conn.Bind(dn, credentials.Password); err != nil {
			if conn.unavailable(err) {
				return nil, err
			}
			return b.userBindFailed(err, credentials.UserID, dn), nil
		}
		return b.success(credentials.UserID, b.readBoundEntry(conn, dn)), nil
	})
}

// readBoundEntry reads the entry as the user. The password was already accepted, so a failure here only
// loses attributes.
func (b *Backend) readBoundEntry(conn *lease, dn string) entry {
	key := searchKey{filter: dn, scope: backendconfig.ScopeBase}
	if entries, ok := b.cache.get(key); ok && len(entries) == 1 {
		return entries[0]
	}

	entries, err := b.search(conn, dn, ldap.ScopeBaseObject, readProfileFilter)
	switch {
	case err != nil:
		conn.unavailable(err)
		b.logger.DebugErr("could not read the bound entry, continuing with its DN only", err, "dn", dn)
	case len(entries) == 1 && len(entries[0].DN) > 0:
		b.cache.set(key, entries)
		return entries[0]
	}
	return entry{DN: dn, Attributes: map[string][]string{}}
}

// lease is a pooled connection used by a single attempt.
type lease struct {
	Conn
	broken bool
}

// unavailable reports whether err means the directory could not serve the request. The connection is then
// closed instead of being returned to the pool.
func (l *lease) unavailable(err error) bool {
	if isUnavailable(err) {
		l.broken = true
		return true
	}
	return false
}

// withConnection runs op within the retry policy. Every attempt takes a connection from the pool, binds it
// as the service account when serviceBind is set, and then runs op on it. Dial failures and unavailable
// errors from the service bind or from op discard the connection and are retried, so an idle connection
// that the server dropped costs one attempt. op returns a non-nil error only for such unavailable errors.
func (b *Backend) withConnection(ctx context.Context, serviceBind bool, op func(conn *lease) (*authn.Result, error)) *authn.Result {
	var (
		result  *authn.Result
		lastErr error
	)

	attempts := 0
	err := backoff.WithAttempts(ctx, b.connection.Attempts(), backoff.Fixed{Delay: b.connection.RetryDelay},
		func(ctx context.Context) (bool, error) {
			attempts++
			c, err := b.pool.get(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, errPoolClosed) {
					return false, err
				}
				lastErr = err
				b.logger.DebugErr("could not connect to directory", err, "attempt", attempts)
				return false, nil
			}

			conn := &lease{Conn: c}
			defer func() { b.pool.put(c, !conn.broken) }()

			if serviceBind {
				if err := b.bindServiceAccount(c); err != nil {
					if conn.unavailable(err) {
						lastErr = err
						b.logger.DebugErr("directory unavailable during service account bind", err, "attempt", attempts)
						return false, nil
					}
					result = b.serviceBindFailed(err)
					return true, nil
				}
			}

			r, err := op(conn)
			if err != nil {
				conn.broken = true
				lastErr = err
				b.logger.DebugErr("directory unavailable", err, "attempt", attempts)
				return false, nil
			}
			result = r
			return true, nil
		})

	if err == nil {
		return result
	}
	if lastErr == nil {
		lastErr = err
	}
	b.logger.WarningErr("directory unavailable", lastErr, "attempts", attempts)
	return b.denied(authn.ReasonBackendUnavailable, "directory unavailable")
}

func (b *Backend) bindServiceAccount(conn Conn) error {
	if len(b.connection.BindDN) == 0 {
		return conn.UnauthenticatedBind("")
	}
	return conn.Bind(b.connection.BindDN, b.connection.BindPassword)
}

func (b *Backend) search(conn Conn, baseDN string, scope int, filter string) ([]entry, error) {
	result, err := conn.Search(b.searchRequest(baseDN, scope, filter))
	if ldap.IsErrorWithCode(err, ldap.LDAPResultSizeLimitExceeded) {
		// More entries matched than the size limit allows.
		return nil, errAmbiguousUser
	}
	if err != nil {
		return nil, err
	}
	return copyEntries(result.Entries), nil
}

func (b *Backend) searchRequest(baseDN string, scope int, filter string) *ldap.SearchRequest {
	// See https://ldap.com/the-ldap-search-operation for general documentation of LDAP search options.
	timeLimit := 0
	if b.connection.HasTimeout() {
		timeLimit = int(b.connection.Timeout.Seconds()) + 1
	}
	return &ldap.SearchRequest{
		BaseDN:       baseDN,
		Scope:        scope,
		DerefAliases: ldap.NeverDerefAliases,
		SizeLimit:    2, // we only care whether there is exactly one match
		TimeLimit:    timeLimit,
		TypesOnly:    false,
		Filter:       filter,
		Attributes:   b.query.Attributes,
		Controls:     nil, // this could be used to enable paging, but we're already limiting the result max size
	}
}

func copyEntries(in []*ldap.Entry) []entry {
	out := make([]entry, 0, len(in))
	for _, e := range in {
		if e == nil {
			// Kept so that it still counts as a match. Its empty DN is rejected by the caller.
			out = append(out, entry{})
			continue
		}
		attrs := make(map[string][]string, len(e.Attributes))
		for _, a := range e.Attributes {
			attrs[a.Name] = append([]string(nil), a.Values...)
		}
		out = append(out, entry{DN: e.DN, Attributes: attrs})
	}
	return out
}

func (b *Backend) success(userID string, e entry) *authn.Result {
	attrs := make(map[string][]string, len(e.Attributes)+1)
	for name, values := range e.Attributes {
		attrs[name] = values
	}
	attrs[distinguishedNameAttributeName] = []string{e.DN}

	return authn.Success(authn.KindLDAP, b.profile(attrs), map[string]string{
		authn.CredentialUserID: userID,
		authn.CredentialDN:     e.DN,
	})
}

func (b *Backend) denied(reason authn.Reason, message string) *authn.Result {
	return authn.Denied(authn.KindLDAP, reason, message)
}

func (b *Backend) searchFailed(err error) *authn.Result {
	// e.g. a base DN that does not exist or a filter the server rejects
	b.logger.Error("user search failed (please check the query configuration)", err)
	return b.denied(authn.ReasonConfigError, "user search failed")
}

func (b *Backend) userBindFailed(err error, userID, dn string) *authn.Result {
	if ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials) {
		b.logger.Debug("user bind rejected (if this is not the expected dn for this userid, please check the query configuration)",
			"userid", userID, "dn", dn)
		return b.denied(authn.ReasonBadCredentials, "")
	}
	// e.g. an account that is locked or whose password expired
	b.logger.DebugErr("user bind failed", err, "userid", userID, "dn", dn)
	return b.denied(authn.ReasonBadCredentials, "")
}

func (b *Backend) serviceBindFailed(err error) *authn.Result {
	b.logger.Error("service account bind failed (please check the connection configuration)", err,
		"bind", b.connection.BindDN)
	return b.denied(authn.ReasonConfigError, fmt.Sprintf("could not bind as the service account %q", b.connection.BindDN))
}

// isUnavailable reports whether err means the directory could not serve the request, as opposed to
// rejecting it.
func isUnavailable(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		ldap.IsErrorAnyOf(err, ldap.ErrorNetwork, ldap.LDAPResultBusy, ldap.LDAPResultUnavailable,
			ldap.LDAPResultServerDown, ldap.LDAPResultConnectError, ldap.LDAPResultTimeout, ldap.LDAPResultTimeLimitExceeded)
}
