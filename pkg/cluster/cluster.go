// Copyright 2026 Slipway contributors
// SPDX-License-Identifier: Apache-2.0

// Package cluster wraps the cluster API behind the narrow surface the
// pipeline needs: manifest apply, service hostname lookup, deployment
// image updates, rollout status snapshots and diagnostic collection.
// Every call is treated as potentially slow or flaky; retry and deadline
// policy lives with the callers.
package cluster

import (
	"context"
)

// RolloutStatus is a read-only snapshot of a deployment's rollout
// condition. The rollout has converged when Updated == Available == Desired
// and the snapshot reflects the current deployment generation.
type RolloutStatus struct {
	// Desired is the desired replica count.
	Desired int32
	// Updated is the number of replicas running the target pod template.
	Updated int32
	// Available is the number of replicas passing readiness.
	Available int32
	// Stale is set when the status was written for an older generation of
	// the deployment, i.e. the controller has not yet observed the latest
	// pod template. Replica counts of a stale snapshot describe the
	// previous rollout.
	Stale bool
}

// Converged reports whether all replicas are updated and available. A
// deployment scaled to zero is trivially converged; a stale snapshot never
// is.
func (s RolloutStatus) Converged() bool {
	return !s.Stale && s.Updated == s.Desired && s.Available == s.Desired
}

// Diagnostics is a snapshot of cluster object descriptions and recent
// events captured at failure time for operator triage. The fields hold
// rendered YAML and are not parsed programmatically.
type Diagnostics struct {
	// Deployment is the deployment description.
	Deployment string
	// ReplicaSets lists the deployment's replica sets.
	ReplicaSets string
	// Pods lists the pods in the namespace.
	Pods string
	// PodDescriptions holds one rendered description per pod, keyed by name.
	PodDescriptions map[string]string
	// Events holds the most recent events, oldest first.
	Events string
}

// Interface is the cluster API surface used by the pipeline.
type Interface interface {
	// ApplyManifest applies a (possibly multi-document) YAML manifest.
	ApplyManifest(ctx context.Context, manifest []byte) error
	// ServiceHostname returns the externally routable hostname of the
	// named service, or "" while none is assigned.
	ServiceHostname(ctx context.Context, namespace, name string) (string, error)
	// SetDeploymentImage updates the image of one container in the named
	// deployment.
	SetDeploymentImage(ctx context.Context, namespace, deployment, container, image string) error
	// GetRolloutStatus returns a rollout status snapshot for the named
	// deployment.
	GetRolloutStatus(ctx context.Context, namespace, deployment string) (RolloutStatus, error)
	// CollectDiagnostics gathers the diagnostic snapshot for the named
	// deployment and its namespace.
	CollectDiagnostics(ctx context.Context, namespace, deployment string) (*Diagnostics, error)
}
