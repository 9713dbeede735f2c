// Copyright 2023-2026 the Loginrelay contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package backoff runs a condition repeatedly with a delay between attempts.
package backoff

import (
	"context"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"go.loginrelay.dev/internal/constable"
)

const ErrAttemptsExhausted = constable.Error("all attempts failed")

type Stepper interface {
	Step() time.Duration
}

// Fixed waits the same delay before every retry.
type Fixed struct {
	Delay time.Duration
}

func (f Fixed) Step() time.Duration {
	return f.Delay
}

func wrapConditionWithNoPanics(ctx context.Context, condition wait.ConditionWithContextFunc) (done bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			if err2, ok := r.(error); ok {
				err = err2
				return
			}
			err = fmt.Errorf("condition panicked: %v", r)
		}
	}()

	return condition(ctx)
}

// WithContext runs condition until it returns true or an error, or until ctx is done.
func WithContext(ctx context.Context, backoff Stepper, condition wait.ConditionWithContextFunc) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// Allow cancellation during the attempt if the condition function respects the ctx.
		if ok, err := wrapConditionWithNoPanics(ctx, condition); err != nil || ok {
			return err
		}

		waitBeforeRetry := backoff.Step()

		timer := time.NewTimer(waitBeforeRetry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// WithAttempts is WithContext bounded to maxAttempts calls of condition. When every attempt returns
// false it returns ErrAttemptsExhausted without waiting after the last attempt. A maxAttempts below
// one is treated as one.
func WithAttempts(ctx context.Context, maxAttempts int, backoff Stepper, condition wait.ConditionWithContextFunc) error {
	attempts := 0
	return WithContext(ctx, backoff, func(ctx context.Context) (bool, error) {
		done, err := condition(ctx)
		if err != nil || done {
			return done, err
		}
		attempts++
		if attempts >= maxAttempts {
			return false, fmt.Errorf("%w after %d attempt(s)", ErrAttemptsExhausted, attempts)
		}
		return false, nil
	})
}
