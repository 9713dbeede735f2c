// Copyright 2026 the Loginrelay contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package backendconfig

import (
	"math/rand"
	"testing"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/google/go-cmp/cmp"
	fuzz "github.com/google/gofuzz"
	"github.com/stretchr/testify/require"

	"go.loginrelay.dev/internal/configerr"
	"go.loginrelay.dev/internal/interpolate"
)

//nolint:gochecknoglobals // test option
var compareTemplates = cmp.Comparer(func(a, b *interpolate.Template) bool {
	if a.Empty() || b.Empty() {
		return a.Empty() == b.Empty()
	}
	return a.String() == b.String() && a.Syntax() == b.Syntax()
})

func TestValidateQuery(t *testing.T) {
	tests := []struct {
		name      string
		raw       map[string]string
		want      QueryConfig
		wantKind  configerr.Kind
		wantField string
		wantErr   string
	}{
		{
			name: "direct bind with defaults",
			raw:  map[string]string{"bind_tmpl": "uid={userid},ou=people,dc=example,dc=com"},
			want: QueryConfig{
				BindTemplate: interpolate.MustParse("uid={userid},ou=people,dc=example,dc=com"),
				Scope:        ScopeOneLevel,
				Templater:    interpolate.SyntaxFormat,
				Context:      map[string]string{},
			},
		},
		{
			name: "search after bind",
			raw: map[string]string{
				"base_dn":           "ou=people,dc=example,dc=com",
				"filter_tmpl":       "(&(objectClass={class})(uid={userid}))",
				"scope":             "SCOPE_SUBTREE",
				"cache_period":      "30s",
				"search_after_bind": "yes",
				"attributes":        "cn, mail,uid",
				"context.class":     "inetOrgPerson",
			},
			want: QueryConfig{
				BaseDN:          "ou=people,dc=example,dc=com",
				FilterTemplate:  interpolate.MustParse("(&(objectClass={class})(uid={userid}))"),
				Scope:           ScopeSubtree,
				CachePeriod:     30 * time.Second,
				SearchAfterBind: true,
				Templater:       interpolate.SyntaxFormat,
				Attributes:      []string{"cn", "mail", "uid"},
				Context:         map[string]string{"class": "inetOrgPerson"},
			},
		},
		{
			name: "template syntax",
			raw: map[string]string{
				"templater":  "template",
				"bind_tmpl":  "uid=${userid},${ou}",
				"context.ou": "ou=people,dc=example,dc=com",
			},
			want: QueryConfig{
				BindTemplate: func() *interpolate.Template {
					tmpl, _ := interpolate.ParseWithSyntax("uid=${userid},${ou}", interpolate.SyntaxTemplate)
					return tmpl
				}(),
				Scope:     ScopeOneLevel,
				Templater: interpolate.SyntaxTemplate,
				Context:   map[string]string{"ou": "ou=people,dc=example,dc=com"},
			},
		},
		{
			name:      "filter references an undeclared field",
			raw:       map[string]string{"search_after_bind": "true", "base_dn": "dc=example,dc=com", "filter_tmpl": "(mail={email})"},
			wantKind:  configerr.TemplateFieldUndeclared,
			wantField: "filter_tmpl",
			wantErr:   `TemplateFieldUndeclared: filter_tmpl: missing field "email" (declared fields: userid)`,
		},
		{
			name:      "positional placeholder cannot be satisfied",
			raw:       map[string]string{"bind_tmpl": "uid={},dc=example,dc=com"},
			wantKind:  configerr.TemplateFieldUndeclared,
			wantField: "bind_tmpl",
		},
		{
			name:      "template syntax error",
			raw:       map[string]string{"bind_tmpl": "uid={userid,dc=example"},
			wantKind:  configerr.TypeCoercionFailure,
			wantField: "bind_tmpl",
		},
		{
			name:      "bind template that is not a DN",
			raw:       map[string]string{"bind_tmpl": "{userid}"},
			wantKind:  configerr.TypeCoercionFailure,
			wantField: "bind_tmpl",
		},
		{
			name:      "direct bind needs a bind template",
			raw:       map[string]string{"base_dn": "dc=example,dc=com"},
			wantKind:  configerr.MissingField,
			wantField: "bind_tmpl",
			wantErr:   "MissingField: bind_tmpl: required when search_after_bind is false",
		},
		{
			name:      "search needs a filter",
			raw:       map[string]string{"search_after_bind": "1", "base_dn": "dc=example,dc=com"},
			wantKind:  configerr.MissingField,
			wantField: "filter_tmpl",
		},
		{
			name:      "search needs a base DN",
			raw:       map[string]string{"search_after_bind": "1", "filter_tmpl": "(uid={userid})"},
			wantKind:  configerr.MissingField,
			wantField: "base_dn",
		},
		{
			name:      "bad scope",
			raw:       map[string]string{"scope": "everywhere", "bind_tmpl": "uid={userid}"},
			wantKind:  configerr.TypeCoercionFailure,
			wantField: "scope",
		},
		{
			name:      "bad templater",
			raw:       map[string]string{"templater": "jinja", "bind_tmpl": "uid={userid}"},
			wantKind:  configerr.TypeCoercionFailure,
			wantField: "templater",
		},
		{
			name:      "bad cache period",
			raw:       map[string]string{"cache_period": "forever", "bind_tmpl": "uid={userid}"},
			wantKind:  configerr.TypeCoercionFailure,
			wantField: "cache_period",
		},
		{
			name:      "context field cannot shadow userid",
			raw:       map[string]string{"context.userid": "root", "bind_tmpl": "uid={userid}"},
			wantKind:  configerr.DuplicateName,
			wantField: "context.userid",
		},
		{
			name:      "context field must be a valid name",
			raw:       map[string]string{"context.my-ou": "x", "bind_tmpl": "uid={userid}"},
			wantKind:  configerr.TypeCoercionFailure,
			wantField: "context.my-ou",
		},
		{
			name:      "unknown field",
			raw:       map[string]string{"bind_tmpl": "uid={userid}", "filter": "(uid=*)"},
			wantKind:  configerr.UnknownField,
			wantField: "filter",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateQuery(tt.raw)
			if len(tt.wantKind) > 0 {
				require.Error(t, err)
				kind, _ := configerr.KindOf(err)
				require.Equal(t, tt.wantKind, kind, err.Error())
				require.Equal(t, tt.wantField, configerr.FieldOf(err))
				if len(tt.wantErr) > 0 {
					require.EqualError(t, err, tt.wantErr)
				}
				return
			}
			require.NoError(t, err)
			require.Empty(t, cmp.Diff(tt.want, got, compareTemplates))
		})
	}
}

func TestQueryRendering(t *testing.T) {
	q, err := ValidateQuery(map[string]string{
		"search_after_bind": "true",
		"base_dn":           "dc=example,dc=com",
		"filter_tmpl":       "(&{extra}(uid={userid}))",
		"bind_tmpl":         "uid={userid},ou=people,dc=example,dc=com",
		"context.extra":     "(objectClass=person)",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"userid", "extra"}, q.DeclaredFields())

	filter, err := q.RenderFilter("al*ce)")
	require.NoError(t, err)
	require.Equal(t, `(&(objectClass=person)(uid=al\2ace\29))`, filter)

	dn, err := q.RenderBindDN("smith, john")
	require.NoError(t, err)
	require.Equal(t, `uid=smith\, john,ou=people,dc=example,dc=com`, dn)

	direct, err := ValidateQuery(map[string]string{"bind_tmpl": "uid={userid},dc=example,dc=com"})
	require.NoError(t, err)
	_, err = direct.RenderFilter("alice")
	require.EqualError(t, err, "template is not configured")
}

func TestParseScope(t *testing.T) {
	for input, want := range map[string]Scope{
		"base":           ScopeBase,
		"SCOPE_BASE":     ScopeBase,
		"one_level":      ScopeOneLevel,
		"ONELEVEL":       ScopeOneLevel,
		"scope_onelevel": ScopeOneLevel,
		"subtree":        ScopeSubtree,
		"sub":            ScopeSubtree,
	} {
		got, err := ParseScope(input)
		require.NoError(t, err, input)
		require.Equal(t, want, got, input)
	}

	_, err := ParseScope("children")
	require.ErrorIs(t, err, errUnknownOption)

	require.Equal(t, ldap.ScopeBaseObject, ScopeBase.LDAPScope())
	require.Equal(t, ldap.ScopeSingleLevel, ScopeOneLevel.LDAPScope())
	require.Equal(t, ldap.ScopeWholeSubtree, ScopeSubtree.LDAPScope())
}

func TestQueryRawRoundTrip(t *testing.T) {
	for _, raw := range []map[string]string{
		{"bind_tmpl": "uid={userid},dc=example,dc=com"},
		{
			"search_after_bind": "on",
			"base_dn":           "ou=people,dc=example,dc=com",
			"filter_tmpl":       "(|(uid={userid})(mail={userid}))",
			"scope":             "sub",
			"cache_period":      "0.25",
			"attributes":        "uid cn mail",
			"context.tenant":    "blue",
			"bind_tmpl":         "uid={userid},ou={tenant},dc=example,dc=com",
		},
		{"templater": "TEMPLATE", "bind_tmpl": "cn=$userid,dc=example,dc=com"},
	} {
		first, err := ValidateQuery(raw)
		require.NoError(t, err)

		second, err := ValidateQuery(first.Raw())
		require.NoError(t, err)
		require.Empty(t, cmp.Diff(first, second, compareTemplates))
		require.Equal(t, first, second)
		require.Equal(t, first.Raw(), second.Raw())
	}
}

func TestRenderedFilterCannotBeInjected(t *testing.T) {
	for _, tmpl := range []string{"(uid={userid})", "(uid=${userid})"} {
		templater := "format"
		if tmpl[5] == '$' {
			templater = "template"
		}
		config, err := ValidateQuery(map[string]string{
			"search_after_bind": "true",
			"base_dn":           "dc=example,dc=com",
			"filter_tmpl":       tmpl,
			"templater":         templater,
		})
		require.NoError(t, err)

		// deterministic fuzzing of the userid, plus the classic injection attempts
		f := fuzz.New().RandSource(rand.NewSource(1)).NilChance(0)
		userids := []string{"*", "*)(uid=*", `\`, "a\x00b", ")(|(objectClass=*"}
		for i := 0; i < 500; i++ {
			var userid string
			f.Fuzz(&userid)
			userids = append(userids, userid)
		}

		for _, userid := range userids {
			filter, err := config.RenderFilter(userid)
			require.NoError(t, err)

			packet, err := ldap.CompileFilter(filter)
			require.NoError(t, err, "userid %q rendered an invalid filter %q", userid, filter)
			require.Equal(t, ldap.FilterEqualityMatch, int(packet.Tag), "userid %q changed the filter structure: %q", userid, filter)
			require.Len(t, packet.Children, 2)
		}
	}
}
