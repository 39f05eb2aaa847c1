// Copyright 2026 Slipway contributors
// SPDX-License-Identifier: Apache-2.0

// Package registry handles image registry authentication and pushes. Login
// is verified up front with a bounded retry so that a flaky credential
// exchange does not fail the run, while exhausted retries are fatal.
package registry

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"
	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/crane"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"
)

// Client pushes tagged images into one registry repository.
type Client struct {
	host         string
	repository   string
	auth         authn.Authenticator
	loginRetries uint64
	loginBackoff time.Duration
	logger       logr.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger for the Client.
func WithLogger(l logr.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithLoginRetry sets the retry count and fixed delay for login attempts.
func WithLoginRetry(retries uint64, delay time.Duration) Option {
	return func(c *Client) {
		c.loginRetries = retries
		c.loginBackoff = delay
	}
}

// NewClient creates a Client for host/repository with the given
// authenticator.
func NewClient(host, repository string, auth authn.Authenticator, opts ...Option) *Client {
	c := &Client{
		host:         host,
		repository:   repository,
		auth:         auth,
		loginRetries: 2,
		loginBackoff: 5 * time.Second,
		logger:       logr.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CredentialsFromEnv builds a basic authenticator from the named
// environment variables. Missing credentials are fatal before any pipeline
// step runs.
func CredentialsFromEnv(usernameEnv, passwordEnv string) (authn.Authenticator, error) {
	username := os.Getenv(usernameEnv)
	password := os.Getenv(passwordEnv)
	if username == "" || password == "" {
		return nil, fmt.Errorf("registry credentials missing: %s and %s must be set", usernameEnv, passwordEnv)
	}
	return &authn.Basic{Username: username, Password: password}, nil
}

// ImageRef returns the fully qualified reference for a tag.
func (c *Client) ImageRef(tag string) string {
	return fmt.Sprintf("%s/%s:%s", c.host, c.repository, tag)
}

// Login verifies the credential exchange against the registry, retrying a
// failed attempt up to the configured count with a fixed delay.
func (c *Client) Login(ctx context.Context) error {
	reg, err := name.NewRegistry(c.host)
	if err != nil {
		return fmt.Errorf("parsing registry host %q: %w", c.host, err)
	}

	attempt := 0
	op := func() error {
		attempt++
		_, err := transport.NewWithContext(ctx, reg, c.auth, http.DefaultTransport, []string{reg.Scope(transport.PushScope)})
		if err != nil {
			c.logger.Info("registry login attempt failed", "attempt", attempt, "reason", err.Error())
		}
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(c.loginBackoff), c.loginRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return fmt.Errorf("registry login exhausted after %d attempts: %w", attempt, err)
	}
	c.logger.Info("registry login succeeded", "host", c.host)
	return nil
}

// PushTarball pushes a locally built image tarball under the given tag and
// returns the pushed reference.
func (c *Client) PushTarball(ctx context.Context, tarball, tag string) (string, error) {
	img, err := crane.Load(tarball)
	if err != nil {
		return "", fmt.Errorf("loading image tarball %s: %w", tarball, err)
	}

	ref := c.ImageRef(tag)
	if err := crane.Push(img, ref, crane.WithContext(ctx), crane.WithAuth(c.auth)); err != nil {
		return "", fmt.Errorf("pushing %s: %w", ref, err)
	}
	c.logger.Info("image pushed", "ref", ref)
	return ref, nil
}
