// Copyright 2026 the Loginrelay contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"

	"go.loginrelay.dev/internal/authn"
	"go.loginrelay.dev/internal/backendsetup"
	"go.loginrelay.dev/internal/plog"
)

// loadRegistry reads the settings file at path, applies its log settings and builds every backend.
// The CLI logs in the human readable format unless the settings ask for something else.
func loadRegistry(ctx context.Context, path string, opts backendsetup.Options) (*authn.Registry, error) {
	config, err := backendsetup.FromPath(path)
	if err != nil {
		return nil, fmt.Errorf("could not load settings: %w", err)
	}

	logSpec := config.Log
	if len(logSpec.Format) == 0 {
		logSpec.Format = plog.FormatCLI
	}
	if err := plog.ValidateAndSetLogLevelAndFormatGlobally(ctx, logSpec); err != nil {
		return nil, fmt.Errorf("validate log level: %w", err)
	}

	registry, err := backendsetup.Build(config, plog.NewAuditLogger(config.Audit), opts)
	if err != nil {
		return nil, fmt.Errorf("could not build backends: %w", err)
	}
	return registry, nil
}
