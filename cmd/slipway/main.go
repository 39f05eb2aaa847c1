// Copyright 2026 Slipway contributors
// SPDX-License-Identifier: Apache-2.0

// Package main is the entrypoint for slipway, which rolls a freshly built
// container image out to a managed Kubernetes cluster and negotiates
// load-balancer exposure for it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slipway",
		Short: "Slipway - deployment rollout and service exposure for managed Kubernetes",
		Long: `Slipway automates the deployment core of a CI/CD pipeline: it derives an
image tag from the source revision, pushes the image, updates the target
deployment and verifies the rollout, then negotiates external exposure
through a classic load balancer with a network load-balancer fallback.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime),
	}

	cmd.AddCommand(newVersionCommand())
	cmd.AddCommand(newValidateCommand())
	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newRolloutCommand())
	cmd.AddCommand(newExposeCommand())

	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("slipway %s\n", version)
			fmt.Printf("  commit:  %s\n", commit)
			fmt.Printf("  built:   %s\n", buildTime)
		},
	}
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [config-file]",
		Short: "Validate a pipeline configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(args[0], nil)
			if err != nil {
				return err
			}

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("validating config: %w", err)
			}

			fmt.Println("Configuration is valid")
			return nil
		},
	}
}
