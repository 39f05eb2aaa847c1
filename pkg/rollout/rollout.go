// Copyright 2026 Slipway contributors
// SPDX-License-Identifier: Apache-2.0

// Package rollout advances a deployment to a new image and blocks until
// the rollout converges or a deadline elapses. A timeout is fatal: the
// reconciler captures a diagnostic bundle for operator triage and never
// retries the rollout itself.
package rollout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/slipwayci/slipway/pkg/cluster"
	"github.com/slipwayci/slipway/pkg/poll"
)

// Target identifies the workload whose image is advanced.
type Target struct {
	// Namespace is the workload namespace.
	Namespace string
	// Deployment is the deployment name.
	Deployment string
	// Container is the container whose image reference is updated.
	Container string
}

// TimeoutError is returned when the rollout did not converge before the
// deadline. It carries the last observed status and the path of the
// diagnostic bundle written for inspection.
type TimeoutError struct {
	// Target is the deployment target.
	Target Target
	// Image is the image reference the rollout was advancing to.
	Image string
	// Status is the last observed rollout status.
	Status cluster.RolloutStatus
	// BundlePath is the directory the diagnostic bundle was written to.
	BundlePath string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("rollout of %s/%s to %s timed out (updated=%d available=%d desired=%d), diagnostics in %s",
		e.Target.Namespace, e.Target.Deployment, e.Image,
		e.Status.Updated, e.Status.Available, e.Status.Desired, e.BundlePath)
}

// Reconciler updates a deployment's image and verifies the rollout.
type Reconciler struct {
	cluster   cluster.Interface
	target    Target
	timeout   time.Duration
	interval  time.Duration
	bundleDir string
	logger    logr.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger for the Reconciler.
func WithLogger(l logr.Logger) Option {
	return func(r *Reconciler) {
		r.logger = l
	}
}

// WithTimeout overrides the rollout deadline.
func WithTimeout(timeout time.Duration) Option {
	return func(r *Reconciler) {
		r.timeout = timeout
	}
}

// WithPollInterval overrides the status poll interval.
func WithPollInterval(interval time.Duration) Option {
	return func(r *Reconciler) {
		r.interval = interval
	}
}

// WithBundleDir sets the directory diagnostic bundles are written under.
func WithBundleDir(dir string) Option {
	return func(r *Reconciler) {
		r.bundleDir = dir
	}
}

// NewReconciler creates a Reconciler for the given target.
func NewReconciler(c cluster.Interface, target Target, opts ...Option) *Reconciler {
	r := &Reconciler{
		cluster:   c,
		target:    target,
		timeout:   5 * time.Minute,
		interval:  5 * time.Second,
		bundleDir: "diagnostics",
		logger:    logr.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Update sets the target container's image and blocks until all replicas
// are updated and available. On timeout it writes a diagnostic bundle and
// returns a *TimeoutError; the caller may assume the new image is live
// only on a nil return.
func (r *Reconciler) Update(ctx context.Context, image string) error {
	if err := r.cluster.SetDeploymentImage(ctx, r.target.Namespace, r.target.Deployment, r.target.Container, image); err != nil {
		return fmt.Errorf("updating image: %w", err)
	}
	r.logger.Info("image updated, waiting for rollout",
		"deployment", r.target.Deployment, "container", r.target.Container, "image", image)

	var last cluster.RolloutStatus
	err := poll.Until(ctx, r.interval, r.timeout, func(ctx context.Context) (bool, error) {
		status, err := r.cluster.GetRolloutStatus(ctx, r.target.Namespace, r.target.Deployment)
		if err != nil {
			// Status reads can fail transiently; the deadline bounds us.
			r.logger.V(1).Info("rollout status not readable", "reason", err.Error())
			return false, nil
		}
		last = status
		r.logger.V(1).Info("rollout status",
			"updated", status.Updated, "available", status.Available, "desired", status.Desired)
		return status.Converged(), nil
	})
	if err == nil {
		r.logger.Info("rollout complete", "deployment", r.target.Deployment, "image", image)
		return nil
	}
	if !errors.Is(err, poll.ErrDeadlineExceeded) {
		return err
	}

	diag, diagErr := r.cluster.CollectDiagnostics(ctx, r.target.Namespace, r.target.Deployment)
	if diagErr != nil {
		return fmt.Errorf("rollout timed out and diagnostics collection failed: %w", diagErr)
	}
	path, writeErr := WriteBundle(r.bundleDir, diag)
	if writeErr != nil {
		return fmt.Errorf("rollout timed out and diagnostic bundle could not be written: %w", writeErr)
	}
	r.logger.Error(err, "rollout timed out", "deployment", r.target.Deployment, "bundle", path)

	return &TimeoutError{
		Target:     r.target,
		Image:      image,
		Status:     last,
		BundlePath: path,
	}
}
