// Copyright 2026 Slipway contributors
// SPDX-License-Identifier: Apache-2.0

// Package expose negotiates external service exposure: it applies the
// classic load-balancer manifest first and, only after the full per-tier
// deadline elapses without a hostname, falls back to the network
// load-balancer manifest. Tiers run strictly sequentially and a failed
// classic service is not rolled back before the network tier is applied.
package expose

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/slipwayci/slipway/pkg/cluster"
	"github.com/slipwayci/slipway/pkg/manifest"
	"github.com/slipwayci/slipway/pkg/poll"
)

// ErrNoHostname is returned when every attempted tier exhausted its
// deadline without an externally routable hostname. Callers decide whether
// the run can proceed without one; demo environments often can.
var ErrNoHostname = errors.New("no hostname became available")

// Tier is a load-balancer provisioning strategy.
type Tier string

const (
	// TierClassic is the classic load-balancer tier, tried first.
	TierClassic Tier = "classic"
	// TierNetwork is the network load-balancer fallback tier.
	TierNetwork Tier = "network"
)

// Attempt records one per-tier exposure attempt.
type Attempt struct {
	// Tier is the attempted tier.
	Tier Tier
	// ManifestPath is the manifest the tier was applied from.
	ManifestPath string
	// Deadline is the absolute time the hostname poll gave up.
	Deadline time.Time
	// Hostname is set once observed; empty if the deadline elapsed first.
	Hostname string
}

// Result is the outcome of a negotiation.
type Result struct {
	// Tier is the tier that produced the hostname, if any.
	Tier Tier
	// Hostname is the externally routable hostname, or "" if none appeared.
	Hostname string
	// Attempts lists the tiers that were actually applied, in order.
	Attempts []Attempt
}

// Negotiator attempts to expose a workload through a cluster load balancer.
type Negotiator struct {
	cluster         cluster.Interface
	namespace       string
	service         string
	classicManifest string
	networkManifest string
	values          manifest.Values
	interval        time.Duration
	tierDeadline    time.Duration
	logger          logr.Logger
}

// Option configures a Negotiator.
type Option func(*Negotiator)

// WithLogger sets the logger for the Negotiator.
func WithLogger(l logr.Logger) Option {
	return func(n *Negotiator) {
		n.logger = l
	}
}

// WithValues sets the values passed to manifest templates.
func WithValues(values manifest.Values) Option {
	return func(n *Negotiator) {
		n.values = values
	}
}

// WithPollInterval overrides the hostname poll interval.
func WithPollInterval(interval time.Duration) Option {
	return func(n *Negotiator) {
		n.interval = interval
	}
}

// WithTierDeadline overrides the per-tier hostname deadline.
func WithTierDeadline(deadline time.Duration) Option {
	return func(n *Negotiator) {
		n.tierDeadline = deadline
	}
}

// NewNegotiator creates a Negotiator for the named service. Either
// manifest path may point at a missing file, which skips that tier.
func NewNegotiator(c cluster.Interface, namespace, service, classicManifest, networkManifest string, opts ...Option) *Negotiator {
	n := &Negotiator{
		cluster:         c,
		namespace:       namespace,
		service:         service,
		classicManifest: classicManifest,
		networkManifest: networkManifest,
		interval:        15 * time.Second,
		tierDeadline:    6 * time.Minute,
		logger:          logr.Discard(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Negotiate tries each tier in order until one yields a hostname. A tier
// whose manifest file is missing is skipped without touching the cluster.
// When every attempted tier exhausts its deadline the returned error is
// ErrNoHostname; when no tier could be attempted at all the result simply
// carries no hostname and no error.
func (n *Negotiator) Negotiate(ctx context.Context) (*Result, error) {
	result := &Result{}

	tiers := []struct {
		tier Tier
		path string
	}{
		{TierClassic, n.classicManifest},
		{TierNetwork, n.networkManifest},
	}

	for _, t := range tiers {
		if !manifest.Exists(t.path) {
			n.logger.Info("manifest missing, skipping tier", "tier", t.tier, "path", t.path)
			continue
		}

		attempt, err := n.attempt(ctx, t.tier, t.path)
		if err != nil {
			return nil, err
		}
		result.Attempts = append(result.Attempts, *attempt)

		if attempt.Hostname != "" {
			result.Tier = t.tier
			result.Hostname = attempt.Hostname
			n.logger.Info("service exposed", "tier", t.tier, "hostname", attempt.Hostname)
			return result, nil
		}
		n.logger.Info("tier deadline elapsed without hostname", "tier", t.tier)
	}

	if len(result.Attempts) == 0 {
		n.logger.Info("no service manifests present, nothing to expose")
		return result, nil
	}
	return result, ErrNoHostname
}

// attempt applies one tier's manifest and polls for a hostname until the
// tier deadline. A lookup failure counts as "not yet ready", never as an
// error; only context cancellation aborts the poll early.
func (n *Negotiator) attempt(ctx context.Context, tier Tier, path string) (*Attempt, error) {
	rendered, err := manifest.Render(path, n.values)
	if err != nil {
		return nil, fmt.Errorf("rendering %s tier manifest: %w", tier, err)
	}
	if err := n.cluster.ApplyManifest(ctx, rendered); err != nil {
		return nil, fmt.Errorf("applying %s tier manifest: %w", tier, err)
	}
	n.logger.Info("applied service manifest", "tier", tier, "path", path)

	attempt := &Attempt{
		Tier:         tier,
		ManifestPath: path,
		Deadline:     time.Now().Add(n.tierDeadline),
	}

	err = poll.Until(ctx, n.interval, n.tierDeadline, func(ctx context.Context) (bool, error) {
		hostname, err := n.cluster.ServiceHostname(ctx, n.namespace, n.service)
		if err != nil {
			// The hostname field may simply not be populated yet.
			n.logger.V(1).Info("hostname lookup not ready", "tier", tier, "reason", err.Error())
			return false, nil
		}
		if hostname == "" {
			return false, nil
		}
		attempt.Hostname = hostname
		return true, nil
	})
	if err != nil && !errors.Is(err, poll.ErrDeadlineExceeded) {
		return nil, err
	}
	return attempt, nil
}
