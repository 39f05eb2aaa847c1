// Copyright 2026 Slipway contributors
// SPDX-License-Identifier: Apache-2.0

// Package poll provides the bounded wait primitive shared by the hostname
// and rollout loops: a predicate checked at a fixed interval against a
// wall-clock deadline computed once on entry.
package poll

import (
	"context"
	"errors"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

// ErrDeadlineExceeded is returned when the condition did not become true
// before the deadline elapsed.
var ErrDeadlineExceeded = errors.New("deadline exceeded")

// Condition reports whether the awaited state has been reached. Returning
// a non-nil error aborts the wait immediately; transient lookup failures
// must be swallowed by the caller and reported as (false, nil).
type Condition func(ctx context.Context) (done bool, err error)

// Until polls cond at the given interval until it returns true or the
// deadline elapses. The deadline does not slide. cond is invoked once
// immediately before the first sleep.
func Until(ctx context.Context, interval, deadline time.Duration, cond Condition) error {
	err := wait.PollUntilContextTimeout(ctx, interval, deadline, true, wait.ConditionWithContextFunc(cond))
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if wait.Interrupted(err) {
		return ErrDeadlineExceeded
	}
	return err
}
