// Copyright 2026 Slipway contributors
// SPDX-License-Identifier: Apache-2.0

// Package creds scopes secret injection to individual pipeline steps:
// secrets enter the process environment when a step starts and the prior
// environment is restored when it ends, release guaranteed even when the
// step fails.
package creds

import (
	"fmt"
	"os"
)

// Scope holds the environment state to restore on release.
type Scope struct {
	previous map[string]*string
}

// Acquire sets each secret as an environment variable and returns a Scope
// that restores the previous values. Empty secret values are rejected so a
// missing credential fails before the step runs.
func Acquire(secrets map[string]string) (*Scope, error) {
	for env, value := range secrets {
		if value == "" {
			return nil, fmt.Errorf("credential %s is empty", env)
		}
	}

	scope := &Scope{previous: make(map[string]*string, len(secrets))}
	for env, value := range secrets {
		if prev, ok := os.LookupEnv(env); ok {
			p := prev
			scope.previous[env] = &p
		} else {
			scope.previous[env] = nil
		}
		if err := os.Setenv(env, value); err != nil {
			scope.Release()
			return nil, fmt.Errorf("setting %s: %w", env, err)
		}
	}
	return scope, nil
}

// Release restores the environment captured at acquisition. Safe to call
// more than once.
func (s *Scope) Release() {
	for env, prev := range s.previous {
		if prev == nil {
			os.Unsetenv(env)
		} else {
			os.Setenv(env, *prev)
		}
	}
	s.previous = nil
}

// With runs fn with the secrets injected, releasing them before returning.
func With(secrets map[string]string, fn func() error) error {
	scope, err := Acquire(secrets)
	if err != nil {
		return err
	}
	defer scope.Release()
	return fn()
}
