// Copyright 2026 Slipway contributors
// SPDX-License-Identifier: Apache-2.0

// Package terraform wraps the terraform binary for the optional
// infrastructure reconciliation step. The declaration is reconciled
// idempotently before the rollout core runs; the core itself assumes the
// cluster already exists.
package terraform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/go-logr/logr"
)

// S3BackendConfig configures S3-style remote state with locking.
type S3BackendConfig struct {
	Region    string `json:"region"`
	Bucket    string `json:"bucket"`
	Key       string `json:"key"`
	LockTable string `json:"dynamodb_table,omitempty"`
	Encrypt   bool   `json:"encrypt"`
}

// Config is the generated config.tf.json overlay written into the working
// directory alongside the checked-in declaration.
type Config struct {
	Terraform *TerraformBlock `json:"terraform,omitempty"`
	Provider  interface{}     `json:"provider,omitempty"`
}

// TerraformBlock holds the backend configuration.
type TerraformBlock struct {
	Backend map[string]interface{} `json:"backend,omitempty"`
}

// NewS3BackendConfig builds a Config carrying an S3 backend block.
func NewS3BackendConfig(backend S3BackendConfig) *Config {
	return &Config{
		Terraform: &TerraformBlock{
			Backend: map[string]interface{}{"s3": backend},
		},
	}
}

// ExecContext runs terraform commands in one working directory.
type ExecContext struct {
	workDir string
	logger  logr.Logger
}

// NewExecContext creates an ExecContext for workDir, creating it if
// needed.
func NewExecContext(workDir string, logger logr.Logger) (*ExecContext, error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating terraform work directory: %w", err)
	}
	return &ExecContext{workDir: workDir, logger: logger}, nil
}

// AddFile writes a file into the working directory.
func (e *ExecContext) AddFile(name string, contents []byte) error {
	if err := os.WriteFile(filepath.Join(e.workDir, name), contents, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

// Init runs terraform init.
func (e *ExecContext) Init(ctx context.Context) error {
	return e.run(ctx, "init", "-input=false")
}

// Apply runs terraform apply without interaction.
func (e *ExecContext) Apply(ctx context.Context) error {
	return e.run(ctx, "apply", "-input=false", "-auto-approve")
}

// Outputs returns the named terraform outputs.
func (e *ExecContext) Outputs(ctx context.Context, names []string) (map[string]string, error) {
	cmd := exec.CommandContext(ctx, "terraform", "output", "-json")
	cmd.Dir = e.workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("terraform output: %w: %s", err, stderr.String())
	}

	raw := map[string]struct {
		Value interface{} `json:"value"`
	}{}
	if err := json.Unmarshal(stdout.Bytes(), &raw); err != nil {
		return nil, fmt.Errorf("parsing terraform output: %w", err)
	}

	outputs := make(map[string]string, len(names))
	for _, name := range names {
		v, ok := raw[name]
		if !ok {
			return nil, fmt.Errorf("terraform output %q not found", name)
		}
		outputs[name] = fmt.Sprintf("%v", v.Value)
	}
	return outputs, nil
}

func (e *ExecContext) run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "terraform", args...)
	cmd.Dir = e.workDir

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("terraform %s: %w: %s", args[0], err, string(output))
	}
	e.logger.V(1).Info("terraform completed", "command", args[0])
	return nil
}

// Reconcile writes the generated config (if any) and runs init and apply.
func Reconcile(ctx context.Context, workDir string, config *Config, logger logr.Logger) error {
	tec, err := NewExecContext(workDir, logger)
	if err != nil {
		return err
	}

	if config != nil {
		configBytes, err := json.Marshal(config)
		if err != nil {
			return fmt.Errorf("marshaling terraform config: %w", err)
		}
		if err := tec.AddFile("config.tf.json", configBytes); err != nil {
			return err
		}
	}

	if err := tec.Init(ctx); err != nil {
		return err
	}
	return tec.Apply(ctx)
}
