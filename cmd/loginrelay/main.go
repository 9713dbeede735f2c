// Copyright 2020-2026 the Loginrelay contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.loginrelay.dev/cmd/loginrelay/cmd"
	"go.loginrelay.dev/internal/plog"
)

func main() {
	os.Exit(run())
}

func run() int {
	defer plog.Setup()()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx); err != nil {
		return 1
	}
	return 0
}
