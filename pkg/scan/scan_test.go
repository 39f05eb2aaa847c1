// Copyright 2026 Slipway contributors
// SPDX-License-Identifier: Apache-2.0

package scan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slipwayci/slipway/pkg/config"
)

func scanner(name, script string) config.ScannerConfig {
	return config.ScannerConfig{
		Name:    name,
		Command: "sh",
		Args:    []string{"-c", script},
		Timeout: config.Duration(10 * time.Second),
	}
}

func TestRunAllPass(t *testing.T) {
	t.Parallel()

	runner := NewRunner(config.GateEnforcing, logr.Discard())
	findings, err := runner.Run(context.Background(), "image", []config.ScannerConfig{
		scanner("trivy", "exit 0"),
		scanner("kube-linter", "exit 0"),
	}, "demo/web:abc1234")

	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestRunPermissiveLogsFindings(t *testing.T) {
	t.Parallel()

	runner := NewRunner(config.GatePermissive, logr.Discard())
	findings, err := runner.Run(context.Background(), "image", []config.ScannerConfig{
		scanner("trivy", "echo CVE-2026-0001; exit 1"),
		scanner("kube-linter", "exit 0"),
	}, "demo/web:abc1234")

	require.NoError(t, err, "permissive gate must not fail the run")
	require.Len(t, findings, 1)
	assert.Equal(t, "trivy", findings[0].Scanner)
	assert.Contains(t, findings[0].Output, "CVE-2026-0001")
}

func TestRunEnforcingFailsOnFinding(t *testing.T) {
	t.Parallel()

	runner := NewRunner(config.GateEnforcing, logr.Discard())
	findings, err := runner.Run(context.Background(), "manifest", []config.ScannerConfig{
		scanner("kube-linter", "exit 3"),
	}, "manifests/service.yaml")

	require.Len(t, findings, 1)
	var gateErr *GateError
	require.True(t, errors.As(err, &gateErr))
	assert.Equal(t, "manifest", gateErr.Stage)
	assert.Contains(t, gateErr.Error(), "kube-linter")
}

func TestRunSubstitutesTarget(t *testing.T) {
	t.Parallel()

	runner := NewRunner(config.GateEnforcing, logr.Discard())
	_, err := runner.Run(context.Background(), "dast", []config.ScannerConfig{
		scanner("zap", `test "{{target}}" = "http://elb.example.com"`),
	}, "http://elb.example.com")

	assert.NoError(t, err)
}

func TestRunContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := NewRunner(config.GatePermissive, logr.Discard())
	_, err := runner.Run(ctx, "image", []config.ScannerConfig{
		scanner("trivy", "sleep 10"),
	}, "demo/web:abc1234")

	assert.ErrorIs(t, err, context.Canceled)
}
