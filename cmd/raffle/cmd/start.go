// Copyright 2020 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethersphere/raffle/pkg/config"
	"github.com/ethersphere/raffle/pkg/logging"
	"github.com/ethersphere/raffle/pkg/node"
	"github.com/spf13/cobra"
)

func (c *command) initStartCmd() {
	cmd := &cobra.Command{
		Use:     "start",
		Short:   "Start a development chain with the raffle deployed",
		PreRunE: c.bindFlags,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if len(args) > 0 {
				return cmd.Help()
			}

			logger, err := newLogger(cmd, c.config.GetString(optionNameVerbosity))
			if err != nil {
				return fmt.Errorf("new logger: %v", err)
			}

			n, err := c.newNode(cmd, logger, c.config.GetString(optionNameAPIAddr))
			if err != nil {
				return err
			}

			cmd.Println("raffle address:", n.Raffle().Address())
			cmd.Println("api address:", n.APIAddr())
			cmd.Println("entrance fee:", config.FormatEther(n.Raffle().EntranceFee()), "ETH")

			// Wait for termination or interrupt signals.
			// We want to clean up things at the end.
			interruptChannel := c.interrupt
			if interruptChannel == nil {
				interruptChannel = make(chan os.Signal, 1)
				signal.Notify(interruptChannel, syscall.SIGINT, syscall.SIGTERM)
				defer signal.Stop(interruptChannel)
			}

			// Block main goroutine until it is interrupted
			sig := <-interruptChannel

			logger.Debugf("received signal: %v", sig)
			logger.Info("shutting down")

			done := make(chan error, 1)
			go func() {
				done <- n.Shutdown()
			}()

			// If shutdown function is blocking too long,
			// allow process termination by receiving another signal.
			select {
			case sig := <-interruptChannel:
				logger.Debugf("received signal: %v", sig)
			case err := <-done:
				return err
			}
			return nil
		},
	}

	c.setNodeFlags(cmd)
	cmd.Flags().String(optionNameAPIAddr, ":8545", "HTTP API listen address")
	cmd.Flags().Duration(optionNameEnterRateLimit, 0, "minimal interval between raffle entries of an API client, 0 disables the limit")

	c.root.AddCommand(cmd)
}

// newNode starts a development node configured from the command flags.
func (c *command) newNode(cmd *cobra.Command, logger logging.Logger, apiAddr string) (*node.Node, error) {
	network, err := c.network()
	if err != nil {
		return nil, err
	}

	return node.NewDevNode(commandContext(cmd), logger, node.Options{
		DataDir:               c.config.GetString(optionNameDataDir),
		Network:               network,
		APIAddr:               apiAddr,
		Accounts:              c.config.GetInt(optionNameAccounts),
		KeeperPollInterval:    c.config.GetDuration(optionNameKeeperPollInterval),
		FulfillerPollInterval: c.config.GetDuration(optionNameFulfillerPollInterval),
		EnterRateLimit:        c.config.GetDuration(optionNameEnterRateLimit),
		UpdateFrontend:        c.config.GetBool(optionNameUpdateFrontend),
		FrontendDir:           c.config.GetString(optionNameFrontendDir),
		Fs:                    c.fs,
		TracingEnabled:        c.config.GetBool(optionNameTracingEnabled),
		TracingEndpoint:       c.config.GetString(optionNameTracingEndpoint),
		TracingServiceName:    c.config.GetString(optionNameTracingServiceName),
	})
}
