// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/ethersphere/raffle/pkg/config"
	"github.com/spf13/cobra"
)

const optionNameTimeout = "timeout"

func (c *command) initSimulateCmd() {
	cmd := &cobra.Command{
		Use:     "simulate",
		Short:   "Run one raffle cycle on a development chain and print the winner",
		PreRunE: c.bindFlags,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if len(args) > 0 {
				return cmd.Help()
			}

			logger, err := newLogger(cmd, c.config.GetString(optionNameVerbosity))
			if err != nil {
				return fmt.Errorf("new logger: %v", err)
			}

			n, err := c.newNode(cmd, logger, "")
			if err != nil {
				return err
			}
			defer func() {
				if shutdownErr := n.Shutdown(); shutdownErr != nil && err == nil {
					err = shutdownErr
				}
			}()

			ctx, cancel := context.WithTimeout(commandContext(cmd), c.config.GetDuration(optionNameTimeout))
			defer cancel()

			res, err := n.Simulate(ctx, c.config.GetInt(optionNamePlayers))
			if err != nil {
				return fmt.Errorf("simulate: %w", err)
			}

			cmd.Println("players:", len(res.Players))
			cmd.Println("request id:", res.RequestID)
			cmd.Println("winner:", res.Winner)
			cmd.Println("prize:", config.FormatEther(res.Prize), "ETH")
			cmd.Println("winner balance:", config.FormatEther(res.WinnerStartBalance), "->", config.FormatEther(res.WinnerEndBalance), "ETH")
			cmd.Println("duration:", res.Duration.Round(time.Millisecond))
			return nil
		},
	}

	c.setNodeFlags(cmd)
	cmd.Flags().Int(optionNamePlayers, 3, "number of players entering the raffle")
	cmd.Flags().Duration(optionNameTimeout, 2*time.Minute, "time to wait for the winner")

	c.root.AddCommand(cmd)
}
