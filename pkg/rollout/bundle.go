// Copyright 2026 Slipway contributors
// SPDX-License-Identifier: Apache-2.0

package rollout

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/slipwayci/slipway/pkg/cluster"
)

// WriteBundle writes a diagnostic snapshot under a fresh uuid-named
// directory below dir and returns its path. Layout:
//
//	<dir>/<uuid>/deployment.yaml
//	<dir>/<uuid>/replicasets.txt
//	<dir>/<uuid>/pods.txt
//	<dir>/<uuid>/pods/<name>.yaml
//	<dir>/<uuid>/events.txt
func WriteBundle(dir string, diag *cluster.Diagnostics) (string, error) {
	bundle := filepath.Join(dir, uuid.NewString())
	if err := os.MkdirAll(filepath.Join(bundle, "pods"), 0o755); err != nil {
		return "", fmt.Errorf("creating bundle directory: %w", err)
	}

	files := map[string]string{
		"deployment.yaml": diag.Deployment,
		"replicasets.txt": diag.ReplicaSets,
		"pods.txt":        diag.Pods,
		"events.txt":      diag.Events,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(bundle, name), []byte(content), 0o644); err != nil {
			return "", fmt.Errorf("writing %s: %w", name, err)
		}
	}

	for name, desc := range diag.PodDescriptions {
		path := filepath.Join(bundle, "pods", name+".yaml")
		if err := os.WriteFile(path, []byte(desc), 0o644); err != nil {
			return "", fmt.Errorf("writing pod description %s: %w", name, err)
		}
	}

	return bundle, nil
}
