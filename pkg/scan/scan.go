// Copyright 2026 Slipway contributors
// SPDX-License-Identifier: Apache-2.0

// Package scan invokes external scanners (vulnerability, manifest lint,
// DAST) and applies the configured severity gate to their exit codes.
// Scanner output is for the log only; nothing is parsed beyond the exit
// code.
package scan

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/go-logr/logr"

	"github.com/slipwayci/slipway/pkg/config"
)

// targetPlaceholder in scanner args is replaced with the stage target.
const targetPlaceholder = "{{target}}"

// Finding records one scanner that reported a non-zero exit.
type Finding struct {
	// Scanner is the scanner's friendly name.
	Scanner string
	// Output is the combined output of the run.
	Output string
	// Err is the underlying exec error.
	Err error
}

// GateError is returned in enforcing mode when any scanner reported a
// finding.
type GateError struct {
	// Stage names the pipeline stage the scanners ran in.
	Stage string
	// Findings are the scanners that failed.
	Findings []Finding
}

func (e *GateError) Error() string {
	names := make([]string, 0, len(e.Findings))
	for _, f := range e.Findings {
		names = append(names, f.Scanner)
	}
	return fmt.Sprintf("%s scan gate failed: findings from %s", e.Stage, strings.Join(names, ", "))
}

// Runner runs scanners under a severity gate.
type Runner struct {
	gate   config.GateMode
	logger logr.Logger
}

// NewRunner creates a Runner with the given gate mode.
func NewRunner(gate config.GateMode, logger logr.Logger) *Runner {
	return &Runner{gate: gate, logger: logger}
}

// Run executes each scanner against the target. In permissive mode
// findings are logged and the returned error is nil; in enforcing mode any
// finding yields a *GateError. The findings are returned either way.
func (r *Runner) Run(ctx context.Context, stage string, scanners []config.ScannerConfig, target string) ([]Finding, error) {
	var findings []Finding

	for _, sc := range scanners {
		finding, err := r.runOne(ctx, sc, target)
		if err != nil {
			return findings, err
		}
		if finding == nil {
			r.logger.Info("scanner passed", "stage", stage, "scanner", sc.Name)
			continue
		}
		findings = append(findings, *finding)
		r.logger.Info("scanner reported findings",
			"stage", stage, "scanner", sc.Name, "gate", string(r.gate), "output", finding.Output)
	}

	if len(findings) > 0 && r.gate == config.GateEnforcing {
		return findings, &GateError{Stage: stage, Findings: findings}
	}
	return findings, nil
}

// runOne returns a nil finding on a clean exit. Context errors abort the
// run; every other failure is a finding for the gate to judge.
func (r *Runner) runOne(ctx context.Context, sc config.ScannerConfig, target string) (*Finding, error) {
	runCtx := ctx
	if timeout := sc.Timeout.Duration(); timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	args := make([]string, 0, len(sc.Args))
	for _, arg := range sc.Args {
		args = append(args, strings.ReplaceAll(arg, targetPlaceholder, target))
	}

	cmd := exec.CommandContext(runCtx, sc.Command, args...)
	output, err := cmd.CombinedOutput()
	if err == nil {
		return nil, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return &Finding{Scanner: sc.Name, Output: string(output), Err: err}, nil
}
