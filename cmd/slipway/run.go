// Copyright 2026 Slipway contributors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/slipwayci/slipway/pkg/cluster"
	"github.com/slipwayci/slipway/pkg/config"
	"github.com/slipwayci/slipway/pkg/observability"
	"github.com/slipwayci/slipway/pkg/pipeline"
)

// runFlags are shared by the run, rollout and expose subcommands.
type runFlags struct {
	configFile  string
	overlays    []string
	secretsFile string
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.configFile, "config", "c", "", "Path to configuration file")
	cmd.Flags().StringArrayVar(&f.overlays, "overlay", nil, "Variant overlay file(s) merged onto the configuration")
	cmd.Flags().StringVar(&f.secretsFile, "secrets", "", "YAML file of environment variables injected per step")
	_ = cmd.MarkFlagRequired("config")
}

func loadConfig(path string, overlays []string) (*config.Config, error) {
	cfg, err := config.LoadWithOverlays(path, overlays...)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func loadSecrets(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading secrets file: %w", err)
	}
	secrets := map[string]string{}
	if err := yaml.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("parsing secrets file: %w", err)
	}
	return secrets, nil
}

// setup loads and validates the configuration and builds the logger and
// cluster client every pipeline-facing subcommand needs.
func setup(f *runFlags) (*config.Config, logr.Logger, *cluster.Client, error) {
	cfg, err := loadConfig(f.configFile, f.overlays)
	if err != nil {
		return nil, logr.Discard(), nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, logr.Discard(), nil, fmt.Errorf("validating config: %w", err)
	}

	logger, err := observability.NewLogger(observability.LoggerConfig{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		Encoding:    cfg.Logging.Format,
	})
	if err != nil {
		return nil, logr.Discard(), nil, fmt.Errorf("creating logger: %w", err)
	}

	restConfig, err := cluster.NewRESTConfig(cfg.Cluster.Kubeconfig)
	if err != nil {
		return nil, logr.Discard(), nil, fmt.Errorf("loading cluster config: %w", err)
	}
	c, err := cluster.NewClientForConfig(restConfig)
	if err != nil {
		return nil, logr.Discard(), nil, err
	}
	return cfg, logger, c, nil
}

func newRunCommand() *cobra.Command {
	flags := &runFlags{}
	var (
		revision string
		buildID  string
		tarball  string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline: push, roll out, expose, scan",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, c, err := setup(flags)
			if err != nil {
				return err
			}
			secrets, err := loadSecrets(flags.secretsFile)
			if err != nil {
				return err
			}

			result, err := pipeline.New(cfg, c, logger).Run(cmd.Context(), pipeline.RunInfo{
				Revision:     revision,
				BuildID:      buildID,
				ImageTarball: tarball,
				Secrets:      secrets,
			})
			if err != nil {
				return err
			}

			fmt.Printf("Rolled out %s\n", result.ImageRef)
			if result.Hostname != "" {
				fmt.Printf("Exposed at http://%s\n", result.Hostname)
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&revision, "revision", "", "Source revision identifier (tag is its 7-character prefix)")
	cmd.Flags().StringVar(&buildID, "build-id", "", "Build identifier, used as the tag when no revision is given")
	cmd.Flags().StringVar(&tarball, "image-tarball", "", "Path to the built image tarball to push")

	return cmd
}
