// Copyright 2026 Slipway contributors
// SPDX-License-Identifier: Apache-2.0

// Package pipeline sequences the deployment stages: optional infra
// reconciliation, registry login and push, scanning, rollout, service
// exposure and DAST. Stages run strictly sequentially on a single thread
// of control; every deadline is fixed when its poll loop starts.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/go-logr/logr"

	"github.com/slipwayci/slipway/pkg/cluster"
	"github.com/slipwayci/slipway/pkg/config"
	"github.com/slipwayci/slipway/pkg/creds"
	"github.com/slipwayci/slipway/pkg/expose"
	"github.com/slipwayci/slipway/pkg/manifest"
	"github.com/slipwayci/slipway/pkg/registry"
	"github.com/slipwayci/slipway/pkg/rollout"
	"github.com/slipwayci/slipway/pkg/scan"
	"github.com/slipwayci/slipway/pkg/terraform"
)

// RunInfo carries per-run inputs from the CI environment.
type RunInfo struct {
	// Revision is the source revision identifier, if any.
	Revision string
	// BuildID is the monotonically increasing build identifier, used as
	// the image tag when no revision is available.
	BuildID string
	// ImageTarball is the path of the locally built image tarball. Empty
	// means the image was already pushed under the derived tag.
	ImageTarball string
	// Secrets are injected into the environment for the duration of the
	// steps that need them and released afterwards.
	Secrets map[string]string
}

// Result summarizes a completed run.
type Result struct {
	// ImageRef is the image reference that was rolled out.
	ImageRef string
	// Hostname is the exposed hostname, or "" when exposure did not
	// produce one.
	Hostname string
}

// Pipeline runs the deployment stages against one cluster.
type Pipeline struct {
	cfg     *config.Config
	cluster cluster.Interface
	logger  logr.Logger
}

// New creates a Pipeline.
func New(cfg *config.Config, c cluster.Interface, logger logr.Logger) *Pipeline {
	return &Pipeline{cfg: cfg, cluster: c, logger: logger}
}

// Run executes the pipeline. Fatal errors (rollout timeout, exhausted
// login, missing credentials, enforcing-gate findings) abort the run; a
// missing hostname only aborts when exposure is configured as required.
func (p *Pipeline) Run(ctx context.Context, info RunInfo) (*Result, error) {
	if p.cfg.Provision.Enabled {
		if err := p.provision(ctx); err != nil {
			return nil, fmt.Errorf("provision: %w", err)
		}
	}

	tag := registry.DeriveTag(info.Revision, info.BuildID)
	scanner := scan.NewRunner(p.cfg.Scan.Gate, p.logger)

	var imageRef string
	err := creds.With(info.Secrets, func() error {
		auth, err := registry.CredentialsFromEnv(p.cfg.Registry.UsernameEnv, p.cfg.Registry.PasswordEnv)
		if err != nil {
			return err
		}
		reg := registry.NewClient(p.cfg.Registry.Host, p.cfg.Registry.Repository, auth,
			registry.WithLogger(p.logger),
			registry.WithLoginRetry(p.cfg.Registry.LoginRetries, p.cfg.Registry.LoginBackoff.Duration()))

		if err := reg.Login(ctx); err != nil {
			return err
		}

		if info.ImageTarball != "" {
			if _, err := scanner.Run(ctx, "image", p.cfg.Scan.ImageScanners, info.ImageTarball); err != nil {
				return err
			}
			imageRef, err = reg.PushTarball(ctx, info.ImageTarball, tag)
			return err
		}
		imageRef = reg.ImageRef(tag)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}

	values := manifest.Values{
		"Namespace": p.cfg.Cluster.Namespace,
		"Service":   p.cfg.Expose.Service,
		"Image":     imageRef,
	}

	if len(p.cfg.Scan.ManifestScanners) > 0 {
		for _, path := range []string{p.cfg.Expose.ClassicManifest, p.cfg.Expose.NetworkManifest} {
			if !manifest.Exists(path) {
				continue
			}
			// Scanners must see the rendered document, not the template
			// source the file holds.
			rendered, err := manifest.Render(path, values)
			if err != nil {
				return nil, fmt.Errorf("rendering manifest %s: %w", path, err)
			}
			scanPath, err := stageRendered(rendered)
			if err != nil {
				return nil, err
			}
			_, scanErr := scanner.Run(ctx, "manifest", p.cfg.Scan.ManifestScanners, scanPath)
			os.Remove(scanPath)
			if scanErr != nil {
				return nil, scanErr
			}
		}
	}

	target := rollout.Target{
		Namespace:  p.cfg.Cluster.Namespace,
		Deployment: p.cfg.Rollout.Deployment,
		Container:  p.cfg.Rollout.Container,
	}
	reconciler := rollout.NewReconciler(p.cluster, target,
		rollout.WithLogger(p.logger),
		rollout.WithTimeout(p.cfg.Rollout.Timeout.Duration()),
		rollout.WithPollInterval(p.cfg.Rollout.PollInterval.Duration()),
		rollout.WithBundleDir(p.cfg.Rollout.BundleDir))
	if err := reconciler.Update(ctx, imageRef); err != nil {
		return nil, fmt.Errorf("rollout: %w", err)
	}

	negotiator := expose.NewNegotiator(p.cluster,
		p.cfg.Cluster.Namespace, p.cfg.Expose.Service,
		p.cfg.Expose.ClassicManifest, p.cfg.Expose.NetworkManifest,
		expose.WithLogger(p.logger),
		expose.WithPollInterval(p.cfg.Expose.PollInterval.Duration()),
		expose.WithTierDeadline(p.cfg.Expose.TierDeadline.Duration()),
		expose.WithValues(values))
	exposure, err := negotiator.Negotiate(ctx)
	if err != nil {
		if !errors.Is(err, expose.ErrNoHostname) {
			return nil, fmt.Errorf("expose: %w", err)
		}
		if p.cfg.Expose.Required {
			return nil, fmt.Errorf("expose: %w", err)
		}
		// Demo regions may lack load-balancer support entirely.
		p.logger.Info("continuing without an externally reachable endpoint")
	}

	result := &Result{ImageRef: imageRef, Hostname: exposure.Hostname}
	if exposure.Hostname != "" && p.cfg.Scan.DAST != nil {
		dastTarget := "http://" + exposure.Hostname
		err := creds.With(info.Secrets, func() error {
			_, err := scanner.Run(ctx, "dast", []config.ScannerConfig{*p.cfg.Scan.DAST}, dastTarget)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("dast: %w", err)
		}
	}

	p.logger.Info("pipeline complete", "image", imageRef, "hostname", exposure.Hostname)
	return result, nil
}

// stageRendered writes a rendered manifest to a temporary file for
// path-taking scanners and returns its path. The caller removes it.
func stageRendered(data []byte) (string, error) {
	f, err := os.CreateTemp("", "slipway-manifest-*.yaml")
	if err != nil {
		return "", fmt.Errorf("staging rendered manifest: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("staging rendered manifest: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("staging rendered manifest: %w", err)
	}
	return f.Name(), nil
}

func (p *Pipeline) provision(ctx context.Context) error {
	var tfConfig *terraform.Config
	if b := p.cfg.Provision.Backend; b != nil {
		tfConfig = terraform.NewS3BackendConfig(terraform.S3BackendConfig{
			Region:    b.Region,
			Bucket:    b.Bucket,
			Key:       b.Key,
			LockTable: b.LockTable,
			Encrypt:   true,
		})
	}
	return terraform.Reconcile(ctx, p.cfg.Provision.WorkDir, tfConfig, p.logger)
}
