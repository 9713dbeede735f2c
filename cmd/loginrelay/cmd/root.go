// Copyright 2020-2026 the Loginrelay contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals
var rootCmd = &cobra.Command{
	Use:          "loginrelay",
	Short:        "loginrelay",
	Long:         "loginrelay validates credential backend settings and verifies logins against the configured backends.",
	SilenceUsage: true, // do not print usage message when commands fail
}

// Execute runs the root command with ctx, which is canceled when the process is asked to stop.
// This is called by main.main().
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
