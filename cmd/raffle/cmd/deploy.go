// Copyright 2021 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cmd

import (
	"fmt"
	"strings"

	"github.com/ethersphere/raffle/pkg/chain"
	"github.com/ethersphere/raffle/pkg/deploy"
	"github.com/ethersphere/raffle/pkg/node"
	"github.com/spf13/cobra"
)

func (c *command) initDeployCmd() {
	cmd := &cobra.Command{
		Use:     "deploy",
		Short:   "Deploy the vrf coordinator mock and the raffle contract",
		PreRunE: c.bindFlags,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if len(args) > 0 {
				return cmd.Help()
			}

			logger, err := newLogger(cmd, c.config.GetString(optionNameVerbosity))
			if err != nil {
				return fmt.Errorf("new logger: %v", err)
			}

			network, err := c.network()
			if err != nil {
				return err
			}

			var tags []string
			for _, t := range c.config.GetStringSlice(optionNameTags) {
				if t = strings.TrimSpace(t); t != "" {
					tags = append(tags, t)
				}
			}
			if _, err := deploy.ParseTags(tags); err != nil {
				return err
			}

			stateStore, err := node.InitStateStore(logger, c.config.GetString(optionNameDataDir))
			if err != nil {
				return err
			}
			defer stateStore.Close()

			accounts := chain.DevAccounts(c.config.GetInt(optionNameAccounts))
			backend := chain.New(
				chain.WithChainID(network.ChainID),
				chain.WithAlloc(chain.DevAlloc(accounts)),
				chain.WithLogger(logger),
			)

			d, err := deploy.New(backend, deploy.Options{
				Network:        network,
				Deployer:       accounts[0].Address,
				UpdateFrontend: c.config.GetBool(optionNameUpdateFrontend),
				FrontendDir:    c.config.GetString(optionNameFrontendDir),
				Fs:             c.fs,
				Store:          stateStore,
				Logger:         logger,
			})
			if err != nil {
				return err
			}

			res, err := d.Run(commandContext(cmd), tags...)
			if err != nil {
				return err
			}

			for _, dep := range res.Deployments {
				cmd.Printf("%s %s block %d\n", dep.Name, dep.Address, dep.BlockNumber)
			}
			if res.SubscriptionID != 0 {
				cmd.Printf("subscription %d\n", res.SubscriptionID)
			}
			return nil
		},
	}

	c.setNetworkFlags(cmd)
	cmd.Flags().Int(optionNameAccounts, 1, "number of funded development accounts")
	cmd.Flags().StringSlice(optionNameTags, []string{deploy.TagAll}, "deploy steps to run: all, mocks, raffle, frontend")

	c.root.AddCommand(cmd)
}
