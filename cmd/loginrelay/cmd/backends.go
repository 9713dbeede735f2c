// Copyright 2026 the Loginrelay contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"go.loginrelay.dev/internal/backendsetup"
)

//nolint:gochecknoinits
func init() {
	rootCmd.AddCommand(newBackendsCommand())
}

func newBackendsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Args:         cobra.NoArgs, // do not accept positional arguments for this command
		Use:          "backends --config FILE",
		Short:        "List the configured backends in registration order",
		SilenceUsage: true,
	}
	var path string
	addConfigFlag(cmd, &path)
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		return runBackends(cmd.OutOrStdout(), path)
	}
	return cmd
}

func runBackends(out io.Writer, path string) error {
	config, err := backendsetup.FromPath(path)
	if err != nil {
		return fmt.Errorf("could not load settings: %w", err)
	}
	for _, b := range config.Backends {
		_, _ = fmt.Fprintf(out, "%s %s\n", b.Name, b.Kind)
	}
	return nil
}
