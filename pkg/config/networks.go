// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"gopkg.in/yaml.v2"
)

// ErrUnknownNetwork is returned for networks that are neither built in nor
// defined in a networks file.
var ErrUnknownNetwork = errors.New("unknown network")

// Networks maps network names to their chain configuration.
type Networks map[string]*ChainConfig

// DefaultNetworks returns the built in networks.
func DefaultNetworks() Networks {
	n := make(Networks)
	for _, name := range []string{"hardhat", "localhost", "sepolia"} {
		id, _ := ChainIDByName(name)
		cfg, _ := GetChainConfig(id)
		cfg.Name = name
		n[name] = cfg
	}
	return n
}

// Get returns a copy of the named network configuration.
func (n Networks) Get(name string) (*ChainConfig, error) {
	cfg, ok := n[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNetwork, name)
	}
	return cfg.Copy(), nil
}

// Names returns the sorted network names.
func (n Networks) Names() []string {
	names := make([]string, 0, len(n))
	for name := range n {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type networkYAML struct {
	ChainID            *int64  `yaml:"chain-id"`
	VRFCoordinator     *string `yaml:"vrf-coordinator"`
	EntranceFee        *string `yaml:"entrance-fee"`
	GasLane            *string `yaml:"gas-lane"`
	SubscriptionID     *uint64 `yaml:"subscription-id"`
	CallbackGasLimit   *uint32 `yaml:"callback-gas-limit"`
	Interval           *uint64 `yaml:"interval"`
	BlockConfirmations *uint64 `yaml:"block-confirmations"`
}

type networksFile struct {
	Networks map[string]networkYAML `yaml:"networks"`
}

// LoadNetworks reads network overrides in YAML format and applies them on
// top of the built in networks. Fields that are not set keep their default
// values. Unknown networks must define a chain id.
//
//	networks:
//	  sepolia:
//	    subscription-id: 1234
//	    entrance-fee: "0.05"
func LoadNetworks(r io.Reader) (Networks, error) {
	data, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read networks: %w", err)
	}

	var f networksFile
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, fmt.Errorf("parse networks: %w", err)
	}

	networks := DefaultNetworks()
	for name, o := range f.Networks {
		cfg, ok := networks[name]
		if !ok {
			if o.ChainID == nil {
				return nil, fmt.Errorf("network %s: chain-id is required", name)
			}
			cfg = &ChainConfig{
				Name:               name,
				EntranceFee:        new(big.Int).Set(defaultEntranceFee),
				CallbackGasLimit:   defaultCallbackGasLimit,
				Interval:           defaultInterval,
				BlockConfirmations: 1,
			}
		}
		if err := o.apply(cfg); err != nil {
			return nil, fmt.Errorf("network %s: %w", name, err)
		}
		networks[name] = cfg
	}
	return networks, nil
}

func (o networkYAML) apply(cfg *ChainConfig) error {
	if o.ChainID != nil {
		cfg.ChainID = *o.ChainID
	}
	if o.VRFCoordinator != nil {
		if !common.IsHexAddress(*o.VRFCoordinator) {
			return fmt.Errorf("invalid vrf-coordinator %q", *o.VRFCoordinator)
		}
		cfg.VRFCoordinator = common.HexToAddress(*o.VRFCoordinator)
	}
	if o.EntranceFee != nil {
		fee, err := ParseEther(*o.EntranceFee)
		if err != nil {
			return fmt.Errorf("entrance-fee %q: %w", *o.EntranceFee, err)
		}
		cfg.EntranceFee = fee
	}
	if o.GasLane != nil {
		b, err := hexutil.Decode(*o.GasLane)
		if err != nil || len(b) != common.HashLength {
			return fmt.Errorf("invalid gas-lane %q", *o.GasLane)
		}
		cfg.GasLane = common.BytesToHash(b)
	}
	if o.SubscriptionID != nil {
		cfg.SubscriptionID = *o.SubscriptionID
	}
	if o.CallbackGasLimit != nil {
		cfg.CallbackGasLimit = *o.CallbackGasLimit
	}
	if o.Interval != nil {
		cfg.Interval = *o.Interval
	}
	if o.BlockConfirmations != nil {
		cfg.BlockConfirmations = *o.BlockConfirmations
	}
	return nil
}
