// Copyright 2026 Slipway contributors
// SPDX-License-Identifier: Apache-2.0

// Package clustertest provides a scriptable in-memory cluster for the
// negotiator, reconciler and pipeline tests.
package clustertest

import (
	"context"
	"sync"
	"time"

	"github.com/slipwayci/slipway/pkg/cluster"
)

// Apply records one ApplyManifest call.
type Apply struct {
	// Manifest is the applied manifest.
	Manifest []byte
	// At is when the apply happened.
	At time.Time
}

// SetImage records one SetDeploymentImage call.
type SetImage struct {
	Namespace  string
	Deployment string
	Container  string
	Image      string
}

// Fake implements cluster.Interface with scriptable behavior. The
// per-call hooks receive a 1-based call count so tests can make state
// appear after a fixed number of polls.
type Fake struct {
	mu sync.Mutex

	// HostnameFunc scripts ServiceHostname; nil means always "".
	HostnameFunc func(call int) (string, error)
	// StatusFunc scripts GetRolloutStatus; nil means never converged.
	StatusFunc func(call int) (cluster.RolloutStatus, error)
	// Diagnostics is returned by CollectDiagnostics.
	Diagnostics *cluster.Diagnostics
	// ApplyErr fails ApplyManifest when set.
	ApplyErr error

	applies       []Apply
	setImages     []SetImage
	hostnameCalls int
	statusCalls   int
}

var _ cluster.Interface = (*Fake)(nil)

// Applies returns the recorded ApplyManifest calls.
func (f *Fake) Applies() []Apply {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Apply(nil), f.applies...)
}

// SetImages returns the recorded SetDeploymentImage calls.
func (f *Fake) SetImages() []SetImage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SetImage(nil), f.setImages...)
}

// HostnameCalls returns how many times ServiceHostname was polled.
func (f *Fake) HostnameCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hostnameCalls
}

func (f *Fake) ApplyManifest(_ context.Context, manifest []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ApplyErr != nil {
		return f.ApplyErr
	}
	f.applies = append(f.applies, Apply{Manifest: append([]byte(nil), manifest...), At: time.Now()})
	return nil
}

func (f *Fake) ServiceHostname(_ context.Context, _, _ string) (string, error) {
	f.mu.Lock()
	f.hostnameCalls++
	call := f.hostnameCalls
	fn := f.HostnameFunc
	f.mu.Unlock()

	if fn == nil {
		return "", nil
	}
	return fn(call)
}

func (f *Fake) SetDeploymentImage(_ context.Context, namespace, deployment, container, image string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setImages = append(f.setImages, SetImage{
		Namespace:  namespace,
		Deployment: deployment,
		Container:  container,
		Image:      image,
	})
	return nil
}

func (f *Fake) GetRolloutStatus(_ context.Context, _, _ string) (cluster.RolloutStatus, error) {
	f.mu.Lock()
	f.statusCalls++
	call := f.statusCalls
	fn := f.StatusFunc
	f.mu.Unlock()

	if fn == nil {
		return cluster.RolloutStatus{Desired: 1}, nil
	}
	return fn(call)
}

func (f *Fake) CollectDiagnostics(_ context.Context, _, _ string) (*cluster.Diagnostics, error) {
	if f.Diagnostics != nil {
		return f.Diagnostics, nil
	}
	return &cluster.Diagnostics{
		Deployment:      "name: app\n",
		ReplicaSets:     "app-abc desired=3 ready=2 available=2\n",
		Pods:            "app-abc-1 phase=Running node=node-1\n",
		PodDescriptions: map[string]string{"app-abc-1": "name: app-abc-1\n"},
		Events:          "event\n",
	}, nil
}
