// Copyright 2026 the Loginrelay contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package backendconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"go.loginrelay.dev/internal/here"
)

func TestFromYAML(t *testing.T) {
	settings, err := FromYAML([]byte(here.Doc(`
		loginrelay:
		  log_level: debug
		  backends: [corp, demo]
		  backend:
		    demo:
		      kind: fixed
		      userid: admin
		      password: s3cret
		    corp:
		      kind: ldap
		      connection:
		        uri: ldaps://ldap.example.com
		        pool_size: 5
		        use_tls: true
		        retry_delay: 0.25
		        timeout: ~
		      query:
		        filter_tmpl: "(uid={userid})"
		loginrelay.extra.dotted: value
	`)))
	require.NoError(t, err)

	require.Equal(t, Settings{
		"loginrelay.log_level":                           "debug",
		"loginrelay.backends":                            "corp,demo",
		"loginrelay.backend.demo.kind":                   "fixed",
		"loginrelay.backend.demo.userid":                 "admin",
		"loginrelay.backend.demo.password":               "s3cret",
		"loginrelay.backend.corp.kind":                   "ldap",
		"loginrelay.backend.corp.connection.uri":         "ldaps://ldap.example.com",
		"loginrelay.backend.corp.connection.pool_size":   "5",
		"loginrelay.backend.corp.connection.use_tls":     "true",
		"loginrelay.backend.corp.connection.retry_delay": "0.25",
		"loginrelay.backend.corp.connection.timeout":     "",
		"loginrelay.backend.corp.query.filter_tmpl":      "(uid={userid})",
		"loginrelay.extra.dotted":                        "value",
	}, settings)

	require.Equal(t, []string{"corp", "demo"}, settings.Children("loginrelay.backend"))
	require.Equal(t, map[string]string{
		"uri":         "ldaps://ldap.example.com",
		"pool_size":   "5",
		"use_tls":     "true",
		"retry_delay": "0.25",
		"timeout":     "",
	}, settings.Sub("loginrelay.backend.corp.connection."))

	v, ok := settings.Get("loginrelay.log_level")
	require.True(t, ok)
	require.Equal(t, "debug", v)
	_, ok = settings.Get("loginrelay.backend.corp.connection.timeout")
	require.False(t, ok)
}

func TestFromYAMLErrors(t *testing.T) {
	_, err := FromYAML([]byte("a: [b: 1]"))
	require.EqualError(t, err, "decode yaml: a[0]: lists may only contain scalar values")

	_, err = FromYAML([]byte("a: {"))
	require.ErrorContains(t, err, "decode yaml: ")

	settings, err := FromYAML(nil)
	require.NoError(t, err)
	require.Empty(t, settings)
}

func TestFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("loginrelay:\n  backends: demo\n"), 0o600))

	settings, err := FromPath(path)
	require.NoError(t, err)
	require.Equal(t, Settings{"loginrelay.backends": "demo"}, settings)

	_, err = FromPath(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read file: ")
}

func TestSplitList(t *testing.T) {
	require.Equal(t, []string{"a", "b", "c"}, SplitList(" a, b ,,c "))
	require.Equal(t, []string{"a", "b"}, SplitList("a b"))
	require.Nil(t, SplitList(" , "))
}
