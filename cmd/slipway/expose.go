// Copyright 2026 Slipway contributors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/slipwayci/slipway/pkg/expose"
	"github.com/slipwayci/slipway/pkg/manifest"
)

func newExposeCommand() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "expose",
		Short: "Negotiate load-balancer exposure for the service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, c, err := setup(flags)
			if err != nil {
				return err
			}

			negotiator := expose.NewNegotiator(c,
				cfg.Cluster.Namespace, cfg.Expose.Service,
				cfg.Expose.ClassicManifest, cfg.Expose.NetworkManifest,
				expose.WithLogger(logger),
				expose.WithPollInterval(cfg.Expose.PollInterval.Duration()),
				expose.WithTierDeadline(cfg.Expose.TierDeadline.Duration()),
				expose.WithValues(manifest.Values{
					"Namespace": cfg.Cluster.Namespace,
					"Service":   cfg.Expose.Service,
				}))

			result, err := negotiator.Negotiate(cmd.Context())
			if err != nil {
				if errors.Is(err, expose.ErrNoHostname) && !cfg.Expose.Required {
					fmt.Println("No hostname became available; continuing without external exposure")
					return nil
				}
				return err
			}

			if result.Hostname == "" {
				fmt.Println("No service manifests present; nothing to expose")
				return nil
			}
			fmt.Printf("Exposed via %s tier at http://%s\n", result.Tier, result.Hostname)
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}
