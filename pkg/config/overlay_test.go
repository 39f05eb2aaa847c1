// Copyright 2026 Slipway contributors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadWithOverlays(t *testing.T) {
	t.Parallel()

	base := writeFile(t, "base.yaml", minimalConfig)
	strict := writeFile(t, "strict.yaml", `
scan:
  gate: enforcing
rollout:
  timeout: 2m
`)

	cfg, err := LoadWithOverlays(base, strict)
	require.NoError(t, err)

	assert.Equal(t, GateEnforcing, cfg.Scan.Gate)
	assert.Equal(t, 2*time.Minute, cfg.Rollout.Timeout.Duration())
	// Untouched fields keep their base values.
	assert.Equal(t, "demo", cfg.Cluster.Name)
	assert.Equal(t, "web", cfg.Rollout.Deployment)
}

func TestLoadWithOverlaysNoOverlay(t *testing.T) {
	t.Parallel()

	base := writeFile(t, "base.yaml", minimalConfig)

	cfg, err := LoadWithOverlays(base)
	require.NoError(t, err)
	assert.Equal(t, GatePermissive, cfg.Scan.Gate)
}

func TestLoadWithOverlaysMissingFile(t *testing.T) {
	t.Parallel()

	base := writeFile(t, "base.yaml", minimalConfig)

	_, err := LoadWithOverlays(base, filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading overlay")
}
