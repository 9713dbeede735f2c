// Copyright 2021-2026 the Loginrelay contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"go.loginrelay.dev/internal/authn"
	"go.loginrelay.dev/internal/backendsetup"
	"go.loginrelay.dev/internal/plog"
)

type authenticateDeps struct {
	stdinIsTTY   func() bool
	promptSecret func(promptLabel string, out io.Writer) (string, error)
	options      backendsetup.Options
}

func authenticateRealDeps() authenticateDeps {
	return authenticateDeps{
		stdinIsTTY:   func() bool { return term.IsTerminal(stdin()) },
		promptSecret: promptForSecret,
	}
}

//nolint:gochecknoinits
func init() {
	rootCmd.AddCommand(newAuthenticateCommand(authenticateRealDeps()))
}

type authenticateFlags struct {
	configPath    string
	backend       string
	username      string
	passwordStdin bool
	timeout       time.Duration
	output        outputFormat
}

// deniedError makes the process exit non-zero after the denied result was printed.
type deniedError struct {
	reason authn.Reason
}

func (e deniedError) Error() string {
	return fmt.Sprintf("authentication denied: %s", e.reason)
}

func newAuthenticateCommand(deps authenticateDeps) *cobra.Command {
	cmd := &cobra.Command{
		Args:         cobra.NoArgs, // do not accept positional arguments for this command
		Use:          "authenticate --config FILE --backend NAME --username USERID [--password-stdin]",
		Short:        "Verify a userid and password against one configured backend",
		SilenceUsage: true,
	}
	flags := &authenticateFlags{output: outputYAML}

	f := cmd.Flags()
	addConfigFlag(cmd, &flags.configPath)
	f.StringVarP(&flags.backend, "backend", "b", "", "Name of the backend to authenticate against")
	f.StringVarP(&flags.username, "username", "u", "", "Userid to authenticate")
	f.BoolVar(&flags.passwordStdin, "password-stdin", false, "Read the password from stdin instead of prompting for it")
	f.DurationVar(&flags.timeout, "timeout", 0, "Timeout for the whole attempt (default: 0, meaning no timeout)")
	f.VarP(&flags.output, "output", "o", "Output format (yaml or json)")
	mustMarkRequired(cmd, "backend", "username")

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		return runAuthenticate(cmd, deps, flags)
	}
	return cmd
}

func runAuthenticate(cmd *cobra.Command, deps authenticateDeps, flags *authenticateFlags) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	registry, err := loadRegistry(ctx, flags.configPath, deps.options)
	if err != nil {
		return err
	}
	defer func() {
		if err := registry.Close(); err != nil {
			plog.WarningErr("could not close backends", err)
		}
	}()

	backend, err := registry.Lookup(flags.backend)
	if err != nil {
		return err
	}

	password, err := readPassword(cmd, deps, flags.passwordStdin)
	if err != nil {
		return err
	}

	if flags.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flags.timeout)
		defer cancel()
	}

	result := backend.Authenticate(ctx, authn.Credentials{UserID: flags.username, Password: password})
	if err := flags.output.print(cmd.OutOrStdout(), result); err != nil {
		return err
	}
	if !result.Succeeded() {
		return deniedError{reason: result.Reason}
	}
	return nil
}

func readPassword(cmd *cobra.Command, deps authenticateDeps, fromStdin bool) (string, error) {
	if fromStdin {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("could not read password from stdin: %w", err)
		}
		// Only the line ending added by echo or a heredoc is removed, other whitespace is part of the password.
		return strings.TrimSuffix(strings.TrimSuffix(string(data), "\n"), "\r"), nil
	}
	if !deps.stdinIsTTY() {
		return "", errors.New("stdin is not connected to a terminal, use --password-stdin to pipe the password")
	}
	return deps.promptSecret("Password: ", cmd.ErrOrStderr())
}

// stdin returns the file descriptor for stdin as an int.
func stdin() int { return int(os.Stdin.Fd()) }

// promptForSecret interactively prompts the user for a secret value, obscuring their input while reading it.
// This can be replaced by a mock implementation for unit tests.
func promptForSecret(promptLabel string, out io.Writer) (string, error) {
	_, err := fmt.Fprint(out, promptLabel)
	if err != nil {
		return "", fmt.Errorf("could not print prompt to stderr: %w", err)
	}
	password, err := term.ReadPassword(stdin())
	if err != nil {
		return "", fmt.Errorf("could not read password: %w", err)
	}
	// term.ReadPassword swallows the newline that was typed by the user, so to
	// avoid the next line of output from happening on same line as the password
	// prompt, we need to print a newline.
	_, err = fmt.Fprint(out, "\n")
	if err != nil {
		return "", fmt.Errorf("could not print newline to stderr: %w", err)
	}
	return string(password), nil
}
