// Copyright 2020-2026 the Loginrelay contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package backendsetup turns a settings file into a sealed registry of named credential backends.
package backendsetup

import (
	"errors"
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/utils/clock"

	"go.loginrelay.dev/internal/authn"
	"go.loginrelay.dev/internal/backendconfig"
	"go.loginrelay.dev/internal/configerr"
	"go.loginrelay.dev/internal/multierror"
	"go.loginrelay.dev/internal/plog"
	"go.loginrelay.dev/internal/upstreamldap"
)

// Keys of the root settings section.
const (
	Root = "loginrelay"

	KeyBackends        = "backends"
	KeyLogLevel        = "log_level"
	KeyLogFormat       = "log_format"
	KeyAuditLogUserIDs = "audit_log_userids"

	// SectionBackend holds one section per backend name.
	SectionBackend = "backend"
)

// Config is the validated root section of a settings file.
type Config struct {
	Log   plog.LogSpec
	Audit plog.AuditLogConfig

	// Backends are in registration order.
	Backends []NamedBackend
}

type NamedBackend struct {
	Name string
	backendconfig.BackendConfig
}

// Options exist to enable testing. The zero value is appropriate for production use.
type Options struct {
	LDAPDialer upstreamldap.LDAPDialer
	Clock      clock.Clock
}

// FromPath loads the settings file at path and validates its root section.
func FromPath(path string) (*Config, error) {
	settings, err := backendconfig.FromPath(path)
	if err != nil {
		return nil, err
	}
	return FromSettings(settings)
}

// FromSettings validates the root section and every backend section, returning the first problem.
func FromSettings(settings backendconfig.Settings) (*Config, error) {
	config, errs := parse(settings)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	return config, nil
}

// Validate reports every problem in settings, including those only found while constructing the backends,
// such as an unreadable CA bundle or a malformed password hash. It never contacts a directory.
func Validate(settings backendconfig.Settings) error {
	config, errs := parse(settings)

	problems := multierror.New()
	for _, err := range errs {
		problems.Add(err)
	}

	for _, b := range config.Backends {
		backend, err := NewBackend(b, Options{})
		if err != nil {
			problems.Add(err)
			continue
		}
		if closer, ok := backend.(authn.Closer); ok {
			problems.Add(closer.Close())
		}
	}

	return problems.ErrOrNil()
}

// Build constructs every backend of config and registers it under its name. Building is atomic: on
// the first failure the backends built so far are closed and no registry is returned.
func Build(config *Config, audit plog.AuditLogger, opts Options) (*authn.Registry, error) {
	registry := authn.NewRegistry(audit)

	for _, b := range config.Backends {
		backend, err := NewBackend(b, opts)
		if err == nil {
			err = registry.Register(b.Name, backend)
		}
		if err != nil {
			if closeErr := registry.Close(); closeErr != nil {
				plog.WarningErr("could not close backends after a failed build", closeErr)
			}
			return nil, err
		}
	}

	registry.Seal()
	return registry, nil
}

// NewBackend constructs one backend. Configuration errors name the full settings key.
func NewBackend(b NamedBackend, opts Options) (authn.Backend, error) {
	backend, err := newBackend(b, opts)
	if err != nil {
		return nil, withPrefix(backendPrefix(b.Name), err)
	}
	return backend, nil
}

func newBackend(b NamedBackend, opts Options) (authn.Backend, error) {
	switch b.Kind {
	case authn.KindAlwaysAllow:
		return authn.AlwaysAllow{}, nil

	case authn.KindAlwaysDeny:
		return authn.AlwaysDeny{Reason: b.Reason}, nil

	case authn.KindFixed:
		if len(b.PasswordHash) > 0 {
			backend, err := authn.NewFixedCredentialFromHash(b.UserID, b.PasswordHash)
			if err != nil {
				return nil, configerr.New(configerr.TypeCoercionFailure, backendconfig.KeyPasswordHash, err)
			}
			return backend, nil
		}
		backend, err := authn.NewFixedCredential(b.UserID, b.Password)
		if err != nil {
			return nil, configerr.New(configerr.MissingField, backendconfig.KeyPassword, err)
		}
		return backend, nil

	case authn.KindLDAP:
		var profile upstreamldap.ProfileFunc
		if len(b.AttributeMappings) > 0 {
			mappings, err := upstreamldap.ParseAttributeMappings(b.AttributeMappings)
			if err != nil {
				return nil, configerr.New(configerr.TypeCoercionFailure, backendconfig.KeyAttributeMappings, err)
			}
			if mappings != nil {
				profile = upstreamldap.MappedProfile(mappings)
			}
		}
		backend, err := upstreamldap.New(upstreamldap.Config{
			Name:       b.Name,
			Connection: b.Connection,
			Query:      b.Query,
			Profile:    profile,
			Dialer:     opts.LDAPDialer,
			Clock:      opts.Clock,
		})
		if err != nil {
			return nil, withPrefix(backendconfig.SectionConnection, err)
		}
		return backend, nil

	default:
		return nil, configerr.Newf(configerr.TypeCoercionFailure, backendconfig.KeyKind, "unsupported backend kind %q", b.Kind)
	}
}

func parse(settings backendconfig.Settings) (*Config, []error) {
	var errs []error
	fail := func(kind configerr.Kind, field string, err error) {
		errs = append(errs, configerr.New(kind, Root+"."+field, err))
	}

	root := backendconfig.Settings(settings.Sub(Root))
	config := &Config{}

	if v, ok := root.Get(KeyLogLevel); ok {
		level, ok := parseLogLevel(v)
		if !ok {
			fail(configerr.TypeCoercionFailure, KeyLogLevel, fmt.Errorf("%q: must be one of %s", v, strings.Join(logLevelNames(), ", ")))
		} else {
			config.Log.Level = level
		}
	}

	if v, ok := root.Get(KeyLogFormat); ok {
		switch format := plog.LogFormat(strings.ToLower(v)); format {
		case plog.FormatJSON, plog.FormatCLI:
			config.Log.Format = format
		default:
			fail(configerr.TypeCoercionFailure, KeyLogFormat, fmt.Errorf("%q: must be %s or %s", v, plog.FormatJSON, plog.FormatCLI))
		}
	}

	if v, ok := root.Get(KeyAuditLogUserIDs); ok {
		logUserIDs, err := backendconfig.ParseBool(v)
		if err != nil {
			fail(configerr.TypeCoercionFailure, KeyAuditLogUserIDs, fmt.Errorf("%q: %w", v, err))
		} else {
			config.Audit.LogUserIDs = logUserIDs
		}
	}

	for key := range root {
		name, _, _ := strings.Cut(key, ".")
		switch name {
		case KeyLogLevel, KeyLogFormat, KeyAuditLogUserIDs, KeyBackends, SectionBackend:
		default:
			fail(configerr.UnknownField, key, nil)
		}
	}

	sections := root.Children(SectionBackend)
	names, nameErrs := backendNames(root, sections)
	errs = append(errs, nameErrs...)

	for _, name := range names {
		raw := root.Sub(SectionBackend + "." + name)
		bc, err := backendconfig.ValidateBackend(raw)
		if err != nil {
			for _, problem := range backendconfig.BackendProblems(raw) {
				errs = append(errs, withPrefix(backendPrefix(name), problem))
			}
			continue
		}
		config.Backends = append(config.Backends, NamedBackend{Name: name, BackendConfig: bc})
	}

	return config, errs
}

// backendNames returns the registration order. Without an explicit backends list every section is
// registered in name order.
func backendNames(root backendconfig.Settings, sections []string) ([]string, []error) {
	listed, ok := root.Get(KeyBackends)
	if !ok {
		if len(sections) == 0 {
			return nil, []error{configerr.New(configerr.MissingField, Root+"."+KeyBackends, errors.New("no backends are configured"))}
		}
		return sections, nil
	}

	var (
		names []string
		errs  []error
		seen  = sets.New[string]()
	)
	for _, name := range backendconfig.SplitList(listed) {
		switch {
		case strings.Contains(name, "."):
			errs = append(errs, configerr.Newf(configerr.TypeCoercionFailure, Root+"."+KeyBackends, "%q: backend names must not contain dots", name))
		case seen.Has(name):
			errs = append(errs, configerr.Newf(configerr.DuplicateName, Root+"."+KeyBackends, "%q is listed more than once", name))
		default:
			seen.Insert(name)
			names = append(names, name)
		}
	}

	for _, name := range sections {
		if !seen.Has(name) {
			errs = append(errs, configerr.New(configerr.UnknownField, backendPrefix(name), errors.New("backend is not listed in "+Root+"."+KeyBackends)))
		}
	}

	return names, errs
}

func backendPrefix(name string) string {
	return Root + "." + SectionBackend + "." + name
}

func withPrefix(prefix string, err error) error {
	var cerr *configerr.Error
	if errors.As(err, &cerr) {
		return cerr.WithPrefix(prefix)
	}
	return configerr.New(configerr.TypeCoercionFailure, prefix, err)
}

// logLevels are the accepted log_level values, from least to most verbose. The warning level is plog's
// unset level.
//
//nolint:gochecknoglobals // read-only lookup table
var logLevels = []struct {
	name  string
	level plog.LogLevel
}{
	{name: "warning", level: plog.LevelWarning},
	{name: string(plog.LevelInfo), level: plog.LevelInfo},
	{name: string(plog.LevelDebug), level: plog.LevelDebug},
	{name: string(plog.LevelTrace), level: plog.LevelTrace},
	{name: string(plog.LevelAll), level: plog.LevelAll},
}

func parseLogLevel(v string) (plog.LogLevel, bool) {
	name := strings.ToLower(v)
	for _, l := range logLevels {
		if l.name == name {
			return l.level, true
		}
	}
	return "", false
}

func logLevelNames() []string {
	names := make([]string, 0, len(logLevels))
	for _, l := range logLevels {
		names = append(names, l.name)
	}
	return names
}
