// Copyright 2026 Slipway contributors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalConfig = `
cluster:
  name: demo
  region: eu-west-1
registry:
  host: registry.example.com
  repository: demo/web
rollout:
  deployment: web
  container: app
expose:
  service: web
  classicManifest: manifests/service-elb.yaml
  networkManifest: manifests/service-nlb.yaml
`

func TestParseAppliesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "default", cfg.Cluster.Namespace)
	assert.Equal(t, 5*time.Minute, cfg.Rollout.Timeout.Duration())
	assert.Equal(t, 5*time.Second, cfg.Rollout.PollInterval.Duration())
	assert.Equal(t, "diagnostics", cfg.Rollout.BundleDir)
	assert.Equal(t, 15*time.Second, cfg.Expose.PollInterval.Duration())
	assert.Equal(t, 6*time.Minute, cfg.Expose.TierDeadline.Duration())
	assert.False(t, cfg.Expose.Required)
	assert.Equal(t, GatePermissive, cfg.Scan.Gate)
	assert.Equal(t, uint64(2), cfg.Registry.LoginRetries)
	assert.Equal(t, 5*time.Second, cfg.Registry.LoginBackoff.Duration())
	assert.Equal(t, "REGISTRY_USERNAME", cfg.Registry.UsernameEnv)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestParseOverridesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(minimalConfig + `
scan:
  gate: enforcing
logging:
  level: debug
`))
	require.NoError(t, err)

	assert.Equal(t, GateEnforcing, cfg.Scan.Gate)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestDurationUnmarshal(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(`
rollout:
  deployment: web
  container: app
  timeout: 2m
`))
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.Rollout.Timeout.Duration())

	_, err = Parse([]byte(`
rollout:
  timeout: not-a-duration
`))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing cluster name",
			mutate:  func(c *Config) { c.Cluster.Name = "" },
			wantErr: "cluster.name",
		},
		{
			name:    "missing registry host",
			mutate:  func(c *Config) { c.Registry.Host = "" },
			wantErr: "registry.host",
		},
		{
			name:    "missing deployment",
			mutate:  func(c *Config) { c.Rollout.Deployment = "" },
			wantErr: "rollout.deployment",
		},
		{
			name:    "missing container",
			mutate:  func(c *Config) { c.Rollout.Container = "" },
			wantErr: "rollout.container",
		},
		{
			name:    "rollout timeout too short",
			mutate:  func(c *Config) { c.Rollout.Timeout = Duration(time.Millisecond) },
			wantErr: "rollout.timeout",
		},
		{
			name:    "tier deadline shorter than interval",
			mutate:  func(c *Config) { c.Expose.TierDeadline = Duration(time.Second) },
			wantErr: "expose.tierDeadline",
		},
		{
			name:    "invalid gate",
			mutate:  func(c *Config) { c.Scan.Gate = "strict" },
			wantErr: "scan.gate",
		},
		{
			name: "scanner without command",
			mutate: func(c *Config) {
				c.Scan.ImageScanners = []ScannerConfig{{Name: "trivy"}}
			},
			wantErr: "command is required",
		},
		{
			name:    "provision enabled without workdir",
			mutate:  func(c *Config) { c.Provision.Enabled = true },
			wantErr: "provision.workDir",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := Parse([]byte(minimalConfig))
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}
