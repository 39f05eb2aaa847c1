// Copyright 2026 Slipway contributors
// SPDX-License-Identifier: Apache-2.0

// Package manifest renders Kubernetes manifests from Go templates. Plain
// YAML files pass through unchanged, so manifests only need templating
// when a value (namespace, app name, image) varies per pipeline run.
package manifest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
)

// Values are made available to manifest templates under their given keys.
type Values map[string]interface{}

// Render reads the manifest at path and executes it as a template with the
// sprig function map and the given values.
func Render(path string, values Values) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}

	tpl, err := template.New(filepath.Base(path)).Funcs(funcMap()).Option("missingkey=error").Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parsing manifest template %s: %w", path, err)
	}

	var buf bytes.Buffer
	if err := tpl.Execute(&buf, values); err != nil {
		return nil, fmt.Errorf("rendering manifest %s: %w", path, err)
	}
	return buf.Bytes(), nil
}

// Exists reports whether a manifest file is present. A missing manifest is
// how a pipeline variant opts out of a service tier, so callers treat a
// false result as "skip", not as an error.
func Exists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
