// Copyright 2020-2026 the Loginrelay contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"github.com/spf13/cobra"

	"go.loginrelay.dev/internal/pversion"
)

//nolint:gochecknoinits
func init() {
	rootCmd.AddCommand(newVersionCommand())
}

func newVersionCommand() *cobra.Command {
	output := outputYAML
	cmd := &cobra.Command{
		RunE: func(cmd *cobra.Command, _ []string) error {
			return output.print(cmd.OutOrStdout(), pversion.Get())
		},
		Args:  cobra.NoArgs, // do not accept positional arguments for this command
		Use:   "version",
		Short: "Print the version of this loginrelay binary",
	}
	cmd.Flags().VarP(&output, "output", "o", "Output format (yaml or json)")
	return cmd
}
