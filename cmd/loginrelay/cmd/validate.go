// Copyright 2026 the Loginrelay contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"go.loginrelay.dev/internal/backendconfig"
	"go.loginrelay.dev/internal/backendsetup"
	"go.loginrelay.dev/internal/constable"
	"go.loginrelay.dev/internal/multierror"
)

const errInvalidSettings = constable.Error("settings are invalid")

//nolint:gochecknoinits
func init() {
	rootCmd.AddCommand(newValidateCommand())
}

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Args:         cobra.NoArgs, // do not accept positional arguments for this command
		Use:          "validate --config FILE",
		Short:        "Check a settings file and every backend it configures",
		SilenceUsage: true,
	}
	var path string
	addConfigFlag(cmd, &path)
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		return runValidate(cmd.OutOrStdout(), path)
	}
	return cmd
}

func runValidate(out io.Writer, path string) error {
	settings, err := backendconfig.FromPath(path)
	if err != nil {
		return fmt.Errorf("could not load settings: %w", err)
	}

	if err := backendsetup.Validate(settings); err != nil {
		var problems multierror.MultiError
		if !errors.As(err, &problems) {
			return err
		}
		_, _ = fmt.Fprintf(out, "%d problem(s) found:\n", len(problems))
		for _, problem := range problems {
			_, _ = fmt.Fprintf(out, "  %s\n", problem)
		}
		return errInvalidSettings
	}

	config, err := backendsetup.FromSettings(settings)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, "ok")
	for _, b := range config.Backends {
		_, _ = fmt.Fprintf(out, "  %s (%s)\n", b.Name, b.Kind)
	}
	return nil
}
