// Copyright 2020 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethersphere/raffle/pkg/config"
	"github.com/ethersphere/raffle/pkg/logging"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	optionNameDataDir               = "data-dir"
	optionNameNetwork               = "network"
	optionNameNetworksFile          = "networks-file"
	optionNameAPIAddr               = "api-addr"
	optionNameVerbosity             = "verbosity"
	optionNameAccounts              = "accounts"
	optionNameKeeperPollInterval    = "keeper-poll-interval"
	optionNameFulfillerPollInterval = "fulfiller-poll-interval"
	optionNameEnterRateLimit        = "enter-rate-limit"
	optionNameUpdateFrontend        = "update-frontend"
	optionNameFrontendDir           = "frontend-dir"
	optionNameTags                  = "tags"
	optionNamePlayers               = "players"
	optionNameTracingEnabled        = "tracing-enable"
	optionNameTracingEndpoint       = "tracing-endpoint"
	optionNameTracingServiceName    = "tracing-service-name"
)

func init() {
	cobra.EnableCommandSorting = false
}

type command struct {
	root      *cobra.Command
	config    *viper.Viper
	fs        afero.Fs
	interrupt chan os.Signal
	cfgFile   string
	homeDir   string
}

type option func(*command)

func newCommand(opts ...option) (c *command, err error) {
	c = &command{
		root: &cobra.Command{
			Use:           "raffle",
			Short:         "Provably fair raffle on a development chain",
			SilenceErrors: true,
			SilenceUsage:  true,
			PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
				return c.initConfig()
			},
		},
	}

	for _, o := range opts {
		o(c)
	}
	if c.fs == nil {
		c.fs = afero.NewOsFs()
	}

	// Find home directory.
	if err := c.setHomeDir(); err != nil {
		return nil, err
	}

	c.initGlobalFlags()

	c.initStartCmd()
	c.initDeployCmd()
	c.initSimulateCmd()
	c.initVersionCmd()
	c.initConfigurateOptionsCmd()

	return c, nil
}

func (c *command) Execute() (err error) {
	return c.root.Execute()
}

// Execute parses command line arguments and runs appropriate functions.
func Execute() (err error) {
	c, err := newCommand()
	if err != nil {
		return err
	}
	return c.Execute()
}

func (c *command) initGlobalFlags() {
	globalFlags := c.root.PersistentFlags()
	globalFlags.StringVar(&c.cfgFile, "config", "", "config file (default is $HOME/.raffle.yaml)")
}

func (c *command) initConfig() (err error) {
	config := viper.New()
	configName := ".raffle"
	if c.cfgFile != "" {
		// Use config file from the flag.
		config.SetConfigFile(c.cfgFile)
	} else {
		// Search config in home directory with name ".raffle" (without extension).
		config.AddConfigPath(c.homeDir)
		config.SetConfigName(configName)
	}

	// Environment
	config.SetEnvPrefix("raffle")
	config.AutomaticEnv() // read in environment variables that match
	config.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	if c.homeDir != "" && c.cfgFile == "" {
		c.cfgFile = filepath.Join(c.homeDir, configName+".yaml")
	}

	// If a config file is found, read it in.
	if err := config.ReadInConfig(); err != nil {
		var e viper.ConfigFileNotFoundError
		if !errors.As(err, &e) {
			return err
		}
	}
	c.config = config
	return nil
}

func (c *command) setHomeDir() (err error) {
	if c.homeDir != "" {
		return
	}
	dir, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	c.homeDir = dir
	return nil
}

// bindFlags binds the flags of the command that runs to the configuration,
// after the configuration is loaded.
func (c *command) bindFlags(cmd *cobra.Command, args []string) error {
	return c.config.BindPFlags(cmd.Flags())
}

func (c *command) setNetworkFlags(cmd *cobra.Command) {
	cmd.Flags().String(optionNameDataDir, filepath.Join(c.homeDir, ".raffle"), "data directory, state is kept in memory if empty")
	cmd.Flags().String(optionNameNetwork, "hardhat", "network name")
	cmd.Flags().String(optionNameNetworksFile, "", "path to a YAML file with network overrides")
	cmd.Flags().String(optionNameVerbosity, "info", "log verbosity level 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=trace")
	cmd.Flags().Bool(optionNameUpdateFrontend, false, "write contract addresses and abi for the frontend")
	cmd.Flags().String(optionNameFrontendDir, "frontend/constants", "frontend constants directory")
}

func (c *command) setNodeFlags(cmd *cobra.Command) {
	c.setNetworkFlags(cmd)
	cmd.Flags().Int(optionNameAccounts, 10, "number of funded development accounts")
	cmd.Flags().Duration(optionNameKeeperPollInterval, 0, "interval between keeper upkeep checks, 0 uses the default")
	cmd.Flags().Duration(optionNameFulfillerPollInterval, 0, "interval between vrf fulfiller confirmation checks, 0 uses the default")
	cmd.Flags().Bool(optionNameTracingEnabled, false, "enable tracing")
	cmd.Flags().String(optionNameTracingEndpoint, "127.0.0.1:6831", "endpoint to send tracing data")
	cmd.Flags().String(optionNameTracingServiceName, "raffle", "service name identifier for tracing")
}

func newLogger(cmd *cobra.Command, verbosity string) (logging.Logger, error) {
	level, err := logging.ParseVerbosity(strings.ToLower(verbosity))
	if err != nil {
		return nil, err
	}
	if level == 0 {
		return logging.New(ioutil.Discard, 0), nil
	}
	return logging.New(cmd.OutOrStdout(), level), nil
}

// network resolves the configured network, applying the overrides from the
// networks file if one is set.
func (c *command) network() (*config.ChainConfig, error) {
	networks := config.DefaultNetworks()
	if path := c.config.GetString(optionNameNetworksFile); path != "" {
		f, err := c.fs.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open networks file: %w", err)
		}
		defer f.Close()

		networks, err = config.LoadNetworks(f)
		if err != nil {
			return nil, err
		}
	}
	return networks.Get(c.config.GetString(optionNameNetwork))
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
