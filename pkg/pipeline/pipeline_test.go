// Copyright 2026 Slipway contributors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/go-containerregistry/pkg/crane"
	ggcrregistry "github.com/google/go-containerregistry/pkg/registry"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/static"
	"github.com/google/go-containerregistry/pkg/v1/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slipwayci/slipway/internal/clustertest"
	"github.com/slipwayci/slipway/pkg/cluster"
	"github.com/slipwayci/slipway/pkg/config"
	"github.com/slipwayci/slipway/pkg/scan"
)

func testRegistryHost(t *testing.T) string {
	t.Helper()
	server := httptest.NewServer(ggcrregistry.New())
	t.Cleanup(server.Close)
	return strings.TrimPrefix(server.URL, "http://")
}

func testTarball(t *testing.T) string {
	t.Helper()
	img, err := mutate.Append(empty.Image, mutate.Addendum{
		Layer: static.NewLayer([]byte("app"), types.MediaType("application/vnd.oci.image.layer.v1.tar")),
	})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "web.tar")
	require.NoError(t, crane.Save(img, "web:latest", path))
	return path
}

func testServiceManifest(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "service.yaml")
	content := `apiVersion: v1
kind: Service
metadata:
  name: {{ .Service }}
  namespace: {{ .Namespace }}
spec:
  type: LoadBalancer
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testConfig(t *testing.T, host string) *config.Config {
	t.Helper()
	return &config.Config{
		Cluster: config.ClusterConfig{Name: "demo", Namespace: "demo"},
		Registry: config.RegistryConfig{
			Host:         host,
			Repository:   "demo/web",
			UsernameEnv:  "SLIPWAY_TEST_REG_USER",
			PasswordEnv:  "SLIPWAY_TEST_REG_PASS",
			LoginRetries: 1,
			LoginBackoff: config.Duration(time.Millisecond),
		},
		Rollout: config.RolloutConfig{
			Deployment:   "web",
			Container:    "app",
			Timeout:      config.Duration(time.Second),
			PollInterval: config.Duration(time.Millisecond),
			BundleDir:    filepath.Join(t.TempDir(), "diagnostics"),
		},
		Expose: config.ExposeConfig{
			Service:         "web",
			ClassicManifest: testServiceManifest(t),
			PollInterval:    config.Duration(time.Millisecond),
			TierDeadline:    config.Duration(100 * time.Millisecond),
		},
		Scan: config.ScanConfig{Gate: config.GateEnforcing},
	}
}

func testSecrets() map[string]string {
	return map[string]string{
		"SLIPWAY_TEST_REG_USER": "ci",
		"SLIPWAY_TEST_REG_PASS": "hunter2",
	}
}

func TestRunHappyPath(t *testing.T) {
	host := testRegistryHost(t)
	cfg := testConfig(t, host)
	cfg.Scan.ImageScanners = []config.ScannerConfig{{
		Name: "trivy", Command: "sh", Args: []string{"-c", "exit 0"},
		Timeout: config.Duration(10 * time.Second),
	}}
	cfg.Scan.DAST = &config.ScannerConfig{
		Name: "zap", Command: "sh",
		Args:    []string{"-c", `test "{{target}}" = "http://elb.example.com"`},
		Timeout: config.Duration(10 * time.Second),
	}

	fake := &clustertest.Fake{
		HostnameFunc: func(call int) (string, error) {
			if call < 3 {
				return "", nil
			}
			return "elb.example.com", nil
		},
		StatusFunc: func(int) (cluster.RolloutStatus, error) {
			return cluster.RolloutStatus{Desired: 2, Updated: 2, Available: 2}, nil
		},
	}

	p := New(cfg, fake, logr.Discard())
	result, err := p.Run(context.Background(), RunInfo{
		Revision:     "abcdef1234",
		BuildID:      "42",
		ImageTarball: testTarball(t),
		Secrets:      testSecrets(),
	})
	require.NoError(t, err)

	assert.Equal(t, host+"/demo/web:abcdef1", result.ImageRef)
	assert.Equal(t, "elb.example.com", result.Hostname)

	tags, err := crane.ListTags(host + "/demo/web")
	require.NoError(t, err)
	assert.Contains(t, tags, "abcdef1")

	images := fake.SetImages()
	require.Len(t, images, 1)
	assert.Equal(t, result.ImageRef, images[0].Image)
	assert.Equal(t, "demo", images[0].Namespace)

	applies := fake.Applies()
	require.Len(t, applies, 1)
	assert.Contains(t, string(applies[0].Manifest), "name: web")
	assert.Contains(t, string(applies[0].Manifest), "namespace: demo")

	_, present := os.LookupEnv("SLIPWAY_TEST_REG_USER")
	assert.False(t, present, "secrets must be released after the run")
}

func TestRunWithoutTarballSkipsPush(t *testing.T) {
	host := testRegistryHost(t)
	cfg := testConfig(t, host)
	cfg.Expose.ClassicManifest = filepath.Join(t.TempDir(), "absent.yaml")

	fake := &clustertest.Fake{
		StatusFunc: func(int) (cluster.RolloutStatus, error) {
			return cluster.RolloutStatus{Desired: 1, Updated: 1, Available: 1}, nil
		},
	}

	p := New(cfg, fake, logr.Discard())
	result, err := p.Run(context.Background(), RunInfo{
		BuildID: "42",
		Secrets: testSecrets(),
	})
	require.NoError(t, err)

	assert.Equal(t, host+"/demo/web:42", result.ImageRef, "build id tags the run when no revision is set")
	assert.Empty(t, result.Hostname)
	assert.Empty(t, fake.Applies(), "no manifest present, nothing applied")
}

func TestRunScansRenderedManifest(t *testing.T) {
	host := testRegistryHost(t)
	cfg := testConfig(t, host)
	// Passes only when the scanned file is the rendered document, not the
	// template source.
	cfg.Scan.ManifestScanners = []config.ScannerConfig{{
		Name: "kube-linter", Command: "sh",
		Args:    []string{"-c", `grep -q "name: web" "{{target}}" && ! grep -q ".Service" "{{target}}"`},
		Timeout: config.Duration(10 * time.Second),
	}}

	fake := &clustertest.Fake{
		HostnameFunc: func(int) (string, error) { return "elb.example.com", nil },
		StatusFunc: func(int) (cluster.RolloutStatus, error) {
			return cluster.RolloutStatus{Desired: 1, Updated: 1, Available: 1}, nil
		},
	}

	p := New(cfg, fake, logr.Discard())
	result, err := p.Run(context.Background(), RunInfo{
		BuildID: "42",
		Secrets: testSecrets(),
	})
	require.NoError(t, err, "enforcing gate passes only on the rendered manifest")
	assert.Equal(t, "elb.example.com", result.Hostname)
}

func TestRunEnforcingGateAborts(t *testing.T) {
	cfg := testConfig(t, testRegistryHost(t))
	cfg.Scan.ImageScanners = []config.ScannerConfig{{
		Name: "trivy", Command: "sh", Args: []string{"-c", "echo CVE-2026-0001; exit 1"},
		Timeout: config.Duration(10 * time.Second),
	}}

	fake := &clustertest.Fake{}
	p := New(cfg, fake, logr.Discard())
	_, err := p.Run(context.Background(), RunInfo{
		BuildID:      "42",
		ImageTarball: testTarball(t),
		Secrets:      testSecrets(),
	})

	var gateErr *scan.GateError
	require.True(t, errors.As(err, &gateErr))
	assert.Empty(t, fake.SetImages(), "rollout must not start after a gate failure")

	_, present := os.LookupEnv("SLIPWAY_TEST_REG_USER")
	assert.False(t, present, "secrets must be released after a failed run")
}

func TestRunMissingHostnameFatalWhenRequired(t *testing.T) {
	cfg := testConfig(t, testRegistryHost(t))
	cfg.Expose.Required = true
	cfg.Expose.TierDeadline = config.Duration(10 * time.Millisecond)

	fake := &clustertest.Fake{
		StatusFunc: func(int) (cluster.RolloutStatus, error) {
			return cluster.RolloutStatus{Desired: 1, Updated: 1, Available: 1}, nil
		},
	}

	p := New(cfg, fake, logr.Discard())
	_, err := p.Run(context.Background(), RunInfo{
		BuildID: "42",
		Secrets: testSecrets(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no hostname")
}
