// Copyright 2026 Slipway contributors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/slipwayci/slipway/pkg/rollout"
)

func newRolloutCommand() *cobra.Command {
	flags := &runFlags{}
	var image string

	cmd := &cobra.Command{
		Use:   "rollout",
		Short: "Update the deployment image and wait for the rollout to converge",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, c, err := setup(flags)
			if err != nil {
				return err
			}

			target := rollout.Target{
				Namespace:  cfg.Cluster.Namespace,
				Deployment: cfg.Rollout.Deployment,
				Container:  cfg.Rollout.Container,
			}
			reconciler := rollout.NewReconciler(c, target,
				rollout.WithLogger(logger),
				rollout.WithTimeout(cfg.Rollout.Timeout.Duration()),
				rollout.WithPollInterval(cfg.Rollout.PollInterval.Duration()),
				rollout.WithBundleDir(cfg.Rollout.BundleDir))

			if err := reconciler.Update(cmd.Context(), image); err != nil {
				return err
			}
			fmt.Printf("Rollout of %s complete\n", image)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&image, "image", "", "Fully qualified image reference to roll out")
	_ = cmd.MarkFlagRequired("image")

	return cmd
}
