// Copyright 2021-2026 the Loginrelay contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package endpointaddr implements parsing and validation of "<host>[:<port>]" strings and LDAP URIs.
package endpointaddr

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"k8s.io/apimachinery/pkg/util/validation"
)

const (
	SchemeLDAP  = "ldap"
	SchemeLDAPS = "ldaps"

	DefaultLDAPPort  uint16 = 389
	DefaultLDAPSPort uint16 = 636
)

type HostPort struct {
	// Host is the validated host part of the input, which may be a hostname or IP.
	Host string

	// Port is the validated port number, which may be defaulted.
	Port uint16
}

// Endpoint is the host:port validated from the input, where port may be a default value.
//
// This string can be passed to net.Dial.
func (h *HostPort) Endpoint() string {
	return net.JoinHostPort(h.Host, strconv.Itoa(int(h.Port)))
}

// Parse an "endpoint address" string, providing a default port. The input can be in several valid formats:
//
// - "<hostname>"        (DNS hostname)
// - "<IPv4>"            (IPv4 address)
// - "<IPv6>"            (IPv6 address)
// - "<hostname>:<port>" (DNS hostname with port)
// - "<IPv4>:<port>"     (IPv4 address with port)
// - "[<IPv6>]:<port>"   (IPv6 address with port, brackets are required)
//
// If the input does not not specify a port number, then defaultPort will be used.
func Parse(endpoint string, defaultPort uint16) (HostPort, error) {
	host, port, err := net.SplitHostPort(endpoint)

	// If we got an error parsing the raw input, try adding the default port.
	if err != nil {
		host, port, err = net.SplitHostPort(net.JoinHostPort(endpoint, strconv.Itoa(int(defaultPort))))
	}

	if err != nil {
		return HostPort{}, err
	}

	return newHostPort(host, port)
}

// newHostPort validates an already split host, which must not be bracketed, and port.
func newHostPort(host, port string) (HostPort, error) {
	integerPort, _ := strconv.Atoi(port)
	if len(validation.IsValidPortNum(integerPort)) > 0 {
		return HostPort{}, fmt.Errorf("invalid port %q", port)
	}

	// Check if the host part is a IPv4 or IPv6 address or a valid hostname according to RFC 1123.
	switch {
	case len(validation.IsValidIP(nil, host)) == 0:
	case len(validation.IsDNS1123Subdomain(host)) == 0:
	default:
		return HostPort{}, fmt.Errorf("host %q is not a valid hostname or IP address", host)
	}

	return HostPort{Host: host, Port: uint16(integerPort)}, nil
}

// LDAPURI is a validated "ldap://" or "ldaps://" address.
type LDAPURI struct {
	HostPort

	// Scheme is SchemeLDAP or SchemeLDAPS.
	Scheme string
}

// String renders the URI with its explicit or defaulted port.
func (u LDAPURI) String() string {
	return u.Scheme + "://" + u.Endpoint()
}

// ImplicitTLS reports whether the connection is TLS from the first byte (ldaps).
func (u LDAPURI) ImplicitTLS() bool {
	return u.Scheme == SchemeLDAPS
}

// ParseURI parses an LDAP URI. The scheme is required and must be ldap or ldaps, and the port defaults to
// 389 or 636 respectively. A path, query, fragment or userinfo is rejected, since base DNs and credentials
// are configured separately.
func ParseURI(raw string) (LDAPURI, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return LDAPURI{}, fmt.Errorf("invalid URI %q: %w", raw, err)
	}

	var defaultPort uint16
	switch scheme := strings.ToLower(parsed.Scheme); scheme {
	case SchemeLDAP:
		defaultPort = DefaultLDAPPort
	case SchemeLDAPS:
		defaultPort = DefaultLDAPSPort
	default:
		return LDAPURI{}, fmt.Errorf("unsupported scheme %q in URI %q: must be ldap or ldaps", parsed.Scheme, raw)
	}

	if parsed.User != nil || (len(parsed.Path) > 0 && parsed.Path != "/") || len(parsed.RawQuery) > 0 || len(parsed.Fragment) > 0 {
		return LDAPURI{}, fmt.Errorf("URI %q must only contain a scheme, host and optional port", raw)
	}
	if len(parsed.Host) == 0 {
		return LDAPURI{}, fmt.Errorf("URI %q has no host", raw)
	}

	// Hostname strips the brackets of an IPv6 literal, which JoinHostPort would otherwise add again.
	port := parsed.Port()
	if len(port) == 0 {
		port = strconv.Itoa(int(defaultPort))
	}
	hostPort, err := newHostPort(parsed.Hostname(), port)
	if err != nil {
		return LDAPURI{}, fmt.Errorf("invalid URI %q: %w", raw, err)
	}
	return LDAPURI{HostPort: hostPort, Scheme: strings.ToLower(parsed.Scheme)}, nil
}
