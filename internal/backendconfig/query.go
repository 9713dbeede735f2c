// Copyright 2026 the Loginrelay contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package backendconfig

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"k8s.io/apimachinery/pkg/util/sets"

	"go.loginrelay.dev/internal/configerr"
	"go.loginrelay.dev/internal/interpolate"
)

// Query keys.
const (
	KeyBaseDN          = "base_dn"
	KeyFilterTmpl      = "filter_tmpl"
	KeyBindTmpl        = "bind_tmpl"
	KeyScope           = "scope"
	KeyCachePeriod     = "cache_period"
	KeySearchAfterBind = "search_after_bind"
	KeyTemplater       = "templater"
	KeyAttributes      = "attributes"

	// ContextPrefix introduces a static field that templates may reference, e.g. "context.ou".
	ContextPrefix = "context."
)

// FieldUserID is the field every template may reference. It holds the login name being authenticated.
const FieldUserID = "userid"

type Scope string

const (
	ScopeBase     Scope = "base"
	ScopeOneLevel Scope = "one_level"
	ScopeSubtree  Scope = "subtree"
)

const (
	DefaultScope           = ScopeOneLevel
	DefaultCachePeriod     = time.Duration(0)
	DefaultSearchAfterBind = false
	DefaultTemplater       = interpolate.SyntaxFormat
)

// LDAPScope returns the go-ldap search scope constant.
func (s Scope) LDAPScope() int {
	switch s {
	case ScopeBase:
		return ldap.ScopeBaseObject
	case ScopeSubtree:
		return ldap.ScopeWholeSubtree
	default:
		return ldap.ScopeSingleLevel
	}
}

// ParseScope accepts the canonical names and the usual directory spellings, case-insensitively,
// e.g. "subtree", "sub", "SCOPE_SUBTREE", "onelevel", "one".
func ParseScope(v string) (Scope, error) {
	normalized := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(v)), "scope_")
	switch normalized {
	case "base", "baseobject", "base_object":
		return ScopeBase, nil
	case "one_level", "onelevel", "one", "single_level", "singlelevel":
		return ScopeOneLevel, nil
	case "subtree", "sub", "whole_subtree", "wholesubtree":
		return ScopeSubtree, nil
	default:
		return "", fmt.Errorf("%w %q: must be one of %s, %s, %s", errUnknownOption, v, ScopeBase, ScopeOneLevel, ScopeSubtree)
	}
}

// QueryConfig describes how a login name is turned into a directory entry.
// It is immutable once returned by ValidateQuery.
type QueryConfig struct {
	BaseDN string

	// FilterTemplate locates the entry when SearchAfterBind is true. It may be nil otherwise.
	FilterTemplate *interpolate.Template

	// BindTemplate computes the entry DN when SearchAfterBind is false. It may be nil otherwise.
	BindTemplate *interpolate.Template

	Scope Scope

	// CachePeriod is how long search results are reused. Zero disables the cache.
	CachePeriod time.Duration

	SearchAfterBind bool

	Templater interpolate.Syntax

	// Attributes limits the attributes read from the entry. Empty means all user attributes.
	Attributes []string

	// Context holds the static fields available to templates in addition to FieldUserID.
	Context map[string]string
}

// DeclaredFields returns the fields templates may reference, sorted, with FieldUserID first.
func (q QueryConfig) DeclaredFields() []string {
	return declaredFields(q.Context)
}

func declaredFields(context map[string]string) []string {
	out := []string{FieldUserID}
	return append(out, sets.List(sets.KeySet(context))...)
}

// RenderFilter renders the filter template for userid. The userid is escaped for use in a search filter.
// Context values are trusted configuration and are substituted verbatim.
func (q QueryConfig) RenderFilter(userid string) (string, error) {
	return render(q.FilterTemplate, q.values(ldap.EscapeFilter(userid)))
}

// RenderBindDN renders the bind template for userid. The userid is escaped as a DN attribute value.
func (q QueryConfig) RenderBindDN(userid string) (string, error) {
	return render(q.BindTemplate, q.values(ldap.EscapeDN(userid)))
}

func render(tmpl *interpolate.Template, values map[string]string) (string, error) {
	if tmpl.Empty() {
		return "", errors.New("template is not configured")
	}
	return tmpl.Render(values)
}

func (q QueryConfig) values(userid string) map[string]string {
	values := make(map[string]string, len(q.Context)+1)
	for k, v := range q.Context {
		values[k] = v
	}
	values[FieldUserID] = userid
	return values
}

// ValidateQuery converts a raw query mapping into a QueryConfig. Templates are parsed and probed with
// the declared fields, so a template that references anything else fails here and never at login time.
func ValidateQuery(raw map[string]string) (QueryConfig, error) {
	config, errs := validateQuery(raw)
	if len(errs) > 0 {
		return QueryConfig{}, errs[0]
	}
	return config, nil
}

// QueryProblems is like ValidateQuery but returns every problem found.
func QueryProblems(raw map[string]string) []error {
	_, errs := validateQuery(raw)
	return errs
}

func validateQuery(raw map[string]string) (QueryConfig, []error) {
	f := newFields(raw)

	config := QueryConfig{
		BaseDN:          f.string(KeyBaseDN, ""),
		Scope:           DefaultScope,
		CachePeriod:     f.duration(KeyCachePeriod, DefaultCachePeriod),
		SearchAfterBind: f.boolean(KeySearchAfterBind, DefaultSearchAfterBind),
		Templater:       DefaultTemplater,
		Attributes:      f.list(KeyAttributes),
		Context:         contextFields(f),
	}

	if v, ok := f.lookup(KeyScope); ok {
		scope, err := ParseScope(v)
		if err != nil {
			f.fail(configerr.TypeCoercionFailure, KeyScope, err)
		} else {
			config.Scope = scope
		}
	}

	if v, ok := f.lookup(KeyTemplater); ok {
		switch syntax := interpolate.Syntax(strings.ToLower(v)); syntax {
		case interpolate.SyntaxFormat, interpolate.SyntaxTemplate:
			config.Templater = syntax
		default:
			f.coercionFailed(KeyTemplater, v, fmt.Errorf("%w: must be %s or %s", errUnknownOption, interpolate.SyntaxFormat, interpolate.SyntaxTemplate))
		}
	}

	if len(config.BaseDN) > 0 {
		if _, err := ldap.ParseDN(config.BaseDN); err != nil {
			f.coercionFailed(KeyBaseDN, config.BaseDN, fmt.Errorf("not a distinguished name: %w", err))
		}
	}

	config.FilterTemplate = templateField(f, KeyFilterTmpl, config.Templater, config.Context, nil)
	config.BindTemplate = templateField(f, KeyBindTmpl, config.Templater, config.Context, func(probed string) error {
		if _, err := ldap.ParseDN(probed); err != nil {
			return fmt.Errorf("does not render a distinguished name: %w", err)
		}
		return nil
	})

	if config.SearchAfterBind {
		requireField(f, config.FilterTemplate, KeyFilterTmpl, "search_after_bind is true")
		if len(config.BaseDN) == 0 {
			f.fail(configerr.MissingField, KeyBaseDN, errors.New("required when search_after_bind is true"))
		}
	} else {
		requireField(f, config.BindTemplate, KeyBindTmpl, "search_after_bind is false")
	}

	f.unknown(func(key string) bool { return strings.HasPrefix(key, ContextPrefix) })

	return config, f.allErrs()
}

func requireField(f *fields, tmpl *interpolate.Template, key, reason string) {
	if !tmpl.Empty() {
		return
	}
	if _, present := f.raw[key]; present && len(strings.TrimSpace(f.raw[key])) > 0 {
		// Present but invalid, already reported.
		return
	}
	f.fail(configerr.MissingField, key, fmt.Errorf("required when %s", reason))
}

func contextFields(f *fields) map[string]string {
	keys := make([]string, 0)
	for key := range f.raw {
		if strings.HasPrefix(key, ContextPrefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	context := map[string]string{}
	for _, key := range keys {
		name := strings.TrimPrefix(key, ContextPrefix)
		value, ok := f.lookup(key)
		switch {
		case !ok:
			continue
		case !isFieldName(name):
			f.fail(configerr.TypeCoercionFailure, key, fmt.Errorf("%q is not a valid field name", name))
		case name == FieldUserID:
			f.fail(configerr.DuplicateName, key, fmt.Errorf("%q is provided at login time", FieldUserID))
		default:
			context[name] = value
		}
	}
	return context
}

func templateField(f *fields, key string, syntax interpolate.Syntax, context map[string]string, check func(probed string) error) *interpolate.Template {
	v, ok := f.lookup(key)
	if !ok {
		return nil
	}

	tmpl, err := interpolate.ParseWithSyntax(v, syntax)
	if err != nil {
		f.coercionFailed(key, v, err)
		return nil
	}

	// Probe with exactly the declared fields. A reference to anything else, including a positional
	// placeholder, cannot be satisfied at login time.
	probed, err := tmpl.Render(QueryConfig{Context: context}.values("probe"))
	if err != nil {
		f.fail(configerr.TemplateFieldUndeclared, key,
			fmt.Errorf("%w (declared fields: %s)", err, strings.Join(declaredFields(context), ", ")))
		return nil
	}
	if check != nil {
		if err := check(probed); err != nil {
			f.coercionFailed(key, v, err)
			return nil
		}
	}
	return tmpl
}

func isFieldName(s string) bool {
	tmpl, err := interpolate.Parse("{" + s + "}")
	return err == nil && len(tmpl.Fields()) == 1
}

// Raw renders the config back to the raw mapping accepted by ValidateQuery.
func (q QueryConfig) Raw() map[string]string {
	raw := map[string]string{
		KeyScope:           string(q.Scope),
		KeyCachePeriod:     q.CachePeriod.String(),
		KeySearchAfterBind: formatBool(q.SearchAfterBind),
		KeyTemplater:       string(q.Templater),
	}
	if len(q.BaseDN) > 0 {
		raw[KeyBaseDN] = q.BaseDN
	}
	if !q.FilterTemplate.Empty() {
		raw[KeyFilterTmpl] = q.FilterTemplate.String()
	}
	if !q.BindTemplate.Empty() {
		raw[KeyBindTmpl] = q.BindTemplate.String()
	}
	if len(q.Attributes) > 0 {
		raw[KeyAttributes] = strings.Join(q.Attributes, ",")
	}
	for k, v := range q.Context {
		raw[ContextPrefix+k] = v
	}
	return raw
}
