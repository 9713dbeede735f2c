// Copyright 2026 the Loginrelay contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package interpolate renders directory filter and DN templates from named or positional values.
//
// Two syntaxes are supported. The format syntax uses "{name}" for named fields, "{}" and "{0}" for
// positional fields, and "{{" / "}}" for literal braces. The template syntax uses "${name}" or "$name"
// for named fields and "$$" for a literal dollar sign, and never accepts positional values.
//
// Rendering is strict: a named field without a value is an error rather than an empty substitution,
// so a misconfigured template is caught when it is validated instead of producing a filter that
// silently matches the wrong entries. Values that are not referenced by the template are ignored.
package interpolate

import (
	"fmt"
	"strconv"
	"strings"

	"go.loginrelay.dev/internal/constable"
)

type Syntax string

const (
	// SyntaxFormat is the "{name}" syntax. It is the default.
	SyntaxFormat Syntax = "format"
	// SyntaxTemplate is the "${name}" syntax.
	SyntaxTemplate Syntax = "template"
)

const (
	ErrMissingField          = constable.Error("missing field")
	ErrTypeMismatch          = constable.Error("format requires a mapping")
	ErrInsufficientArguments = constable.Error("not enough arguments for format string")
	ErrInvalidSyntax         = constable.Error("invalid template syntax")
)

// FieldError is returned when a specific placeholder could not be rendered.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s %q", e.Err.Error(), e.Field)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// Escaper transforms every substituted value before it is written into the output,
// e.g. ldap.EscapeFilter for filter templates.
type Escaper func(string) string

// Template is a parsed, immutable template. It is safe for concurrent use.
type Template struct {
	text   string
	syntax Syntax
	parts  []part

	named      []string
	positional int
}

type part struct {
	literal string
	field   string
	index   int
	isField bool
}

func (p part) positional() bool {
	return p.isField && len(p.field) == 0
}

// Render parses tmpl with the format syntax and renders it with values.
func Render(tmpl string, values map[string]string) (string, error) {
	t, err := Parse(tmpl)
	if err != nil {
		return "", err
	}
	return t.Render(values)
}

// Parse parses text using the format syntax.
func Parse(text string) (*Template, error) {
	return ParseWithSyntax(text, SyntaxFormat)
}

// ParseWithSyntax parses text using the given syntax. An empty syntax means SyntaxFormat.
func ParseWithSyntax(text string, syntax Syntax) (*Template, error) {
	var (
		parts []part
		err   error
	)

	switch syntax {
	case "", SyntaxFormat:
		syntax = SyntaxFormat
		parts, err = parseFormat(text)
	case SyntaxTemplate:
		parts, err = parseTemplate(text)
	default:
		return nil, fmt.Errorf("%w: unknown syntax %q", ErrInvalidSyntax, syntax)
	}
	if err != nil {
		return nil, err
	}

	t := &Template{text: text, syntax: syntax, parts: parts}
	seen := map[string]bool{}
	for _, p := range parts {
		switch {
		case p.positional():
			if p.index+1 > t.positional {
				t.positional = p.index + 1
			}
		case p.isField && !seen[p.field]:
			seen[p.field] = true
			t.named = append(t.named, p.field)
		}
	}
	return t, nil
}

// MustParse is like Parse but panics on error. Only use it with constant templates.
func MustParse(text string) *Template {
	t, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Template) String() string {
	return t.text
}

func (t *Template) Syntax() Syntax {
	return t.syntax
}

// Empty reports whether the template has no content, i.e. it was not configured.
func (t *Template) Empty() bool {
	return t == nil || len(t.text) == 0
}

// Fields returns the distinct named fields in order of first appearance.
func (t *Template) Fields() []string {
	out := make([]string, len(t.named))
	copy(out, t.named)
	return out
}

// Positional returns the number of positional values the template needs.
func (t *Template) Positional() int {
	return t.positional
}

// Render substitutes named fields from values. Unused keys in values are ignored.
func (t *Template) Render(values map[string]string, escape ...Escaper) (string, error) {
	esc := escaperFor(escape)
	var sb strings.Builder
	for _, p := range t.parts {
		switch {
		case !p.isField:
			sb.WriteString(p.literal)
		case p.positional():
			return "", ErrInsufficientArguments
		default:
			v, ok := values[p.field]
			if !ok {
				return "", &FieldError{Field: p.field, Err: ErrMissingField}
			}
			sb.WriteString(esc(v))
		}
	}
	return sb.String(), nil
}

// RenderArgs substitutes positional fields from args. Extra args are ignored.
// A template with named fields cannot be rendered from positional values.
func (t *Template) RenderArgs(args []string, escape ...Escaper) (string, error) {
	if len(t.named) > 0 {
		return "", &FieldError{Field: t.named[0], Err: ErrTypeMismatch}
	}
	esc := escaperFor(escape)
	var sb strings.Builder
	for _, p := range t.parts {
		switch {
		case !p.isField:
			sb.WriteString(p.literal)
		case p.index >= len(args):
			return "", ErrInsufficientArguments
		default:
			sb.WriteString(esc(args[p.index]))
		}
	}
	return sb.String(), nil
}

// Apply renders the template from an arbitrary value: a mapping renders named fields, a sequence renders
// positional fields, and any other value is treated as a single positional value. The template syntax
// only accepts mappings.
func (t *Template) Apply(arg any, escape ...Escaper) (string, error) {
	switch v := arg.(type) {
	case map[string]string:
		return t.Render(v, escape...)
	case map[string]any:
		values := make(map[string]string, len(v))
		for key, value := range v {
			values[key] = fmt.Sprint(value)
		}
		return t.Render(values, escape...)
	}

	if t.syntax == SyntaxTemplate || arg == nil {
		return "", ErrTypeMismatch
	}

	switch v := arg.(type) {
	case []string:
		return t.RenderArgs(v, escape...)
	case []any:
		args := make([]string, 0, len(v))
		for _, value := range v {
			args = append(args, fmt.Sprint(value))
		}
		return t.RenderArgs(args, escape...)
	default:
		return t.RenderArgs([]string{fmt.Sprint(v)}, escape...)
	}
}

func escaperFor(escape []Escaper) Escaper {
	if len(escape) == 0 || escape[0] == nil {
		return func(s string) string { return s }
	}
	return escape[0]
}

func parseFormat(text string) ([]part, error) {
	var (
		parts   []part
		literal strings.Builder
		auto    = 0
		mode    = 0 // 0 unknown, 1 automatic numbering, 2 manual numbering
	)

	flush := func() {
		if literal.Len() > 0 {
			parts = append(parts, part{literal: literal.String()})
			literal.Reset()
		}
	}

	for i := 0; i < len(text); i++ {
		c := text[i]
		switch c {
		case '}':
			if i+1 < len(text) && text[i+1] == '}' {
				literal.WriteByte('}')
				i++
				continue
			}
			return nil, fmt.Errorf("%w: single '}' encountered at offset %d", ErrInvalidSyntax, i)
		case '{':
			if i+1 < len(text) && text[i+1] == '{' {
				literal.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(text[i+1:], '}')
			if end < 0 {
				return nil, fmt.Errorf("%w: single '{' encountered at offset %d", ErrInvalidSyntax, i)
			}
			name := text[i+1 : i+1+end]
			flush()

			switch {
			case len(name) == 0:
				if mode == 2 {
					return nil, fmt.Errorf("%w: cannot switch from manual field numbering to automatic", ErrInvalidSyntax)
				}
				mode = 1
				parts = append(parts, part{isField: true, index: auto})
				auto++
			case isDigits(name):
				if mode == 1 {
					return nil, fmt.Errorf("%w: cannot switch from automatic field numbering to manual", ErrInvalidSyntax)
				}
				mode = 2
				index, err := strconv.Atoi(name)
				if err != nil {
					return nil, fmt.Errorf("%w: invalid field index %q", ErrInvalidSyntax, name)
				}
				parts = append(parts, part{isField: true, index: index})
			case isIdentifier(name):
				parts = append(parts, part{isField: true, field: name})
			default:
				return nil, fmt.Errorf("%w: invalid field name %q", ErrInvalidSyntax, name)
			}
			i += end + 1
		default:
			literal.WriteByte(c)
		}
	}
	flush()
	return parts, nil
}

func parseTemplate(text string) ([]part, error) {
	var (
		parts   []part
		literal strings.Builder
	)

	flush := func() {
		if literal.Len() > 0 {
			parts = append(parts, part{literal: literal.String()})
			literal.Reset()
		}
	}

	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '$' {
			literal.WriteByte(c)
			continue
		}
		rest := text[i+1:]
		switch {
		case strings.HasPrefix(rest, "$"):
			literal.WriteByte('$')
			i++
		case strings.HasPrefix(rest, "{"):
			end := strings.IndexByte(rest, '}')
			if end < 0 || !isIdentifier(rest[1:end]) {
				return nil, fmt.Errorf("%w: invalid placeholder at offset %d", ErrInvalidSyntax, i)
			}
			flush()
			parts = append(parts, part{isField: true, field: rest[1:end]})
			i += end + 1
		default:
			n := identifierPrefixLen(rest)
			if n == 0 {
				return nil, fmt.Errorf("%w: invalid placeholder at offset %d", ErrInvalidSyntax, i)
			}
			flush()
			parts = append(parts, part{isField: true, field: rest[:n]})
			i += n
		}
	}
	flush()
	return parts, nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}

func isIdentifier(s string) bool {
	return len(s) > 0 && identifierPrefixLen(s) == len(s)
}

func identifierPrefixLen(s string) int {
	for i := 0; i < len(s); i++ {
		c := s[i]
		letter := c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		digit := c >= '0' && c <= '9'
		if !letter && !(digit && i > 0) {
			return i
		}
	}
	return len(s)
}
