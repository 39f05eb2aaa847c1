// Copyright 2026 Slipway contributors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"sigs.k8s.io/yaml"
)

// LoadWithOverlays loads a base configuration file and merges zero or more
// overlay files onto it. Overlays are YAML fragments applied as JSON merge
// patches, so a pipeline variant only declares the fields it changes
// (e.g. a stricter scan gate or a shorter rollout timeout).
func LoadWithOverlays(base string, overlays ...string) (*Config, error) {
	data, err := os.ReadFile(base)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	merged, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("converting config to JSON: %w", err)
	}

	for _, path := range overlays {
		overlay, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading overlay %s: %w", path, err)
		}
		patch, err := yaml.YAMLToJSON(overlay)
		if err != nil {
			return nil, fmt.Errorf("converting overlay %s to JSON: %w", path, err)
		}
		merged, err = jsonpatch.MergePatch(merged, patch)
		if err != nil {
			return nil, fmt.Errorf("merging overlay %s: %w", path, err)
		}
	}

	out, err := yaml.JSONToYAML(merged)
	if err != nil {
		return nil, fmt.Errorf("converting merged config: %w", err)
	}
	return Parse(out)
}
