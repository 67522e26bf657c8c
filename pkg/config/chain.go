// Copyright 2021 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// chain ID
	devChainID     = int64(31337)
	sepoliaChainID = int64(11155111)
	// vrf coordinator
	sepoliaVRFCoordinatorAddress = common.HexToAddress("0x8103B0A8A00be2DDC778e6e7eaa21791Cd364625")
	// key hash of the 30 gwei lane, the mock coordinator ignores it
	sepoliaGasLane = common.HexToHash("0x474e34a077df58807dbe9c96d3c009b23b3c6d0cce433e59bbf5b34f823bc56c")
	devGasLane     = sepoliaGasLane

	defaultEntranceFee      = big.NewInt(1e16) // 0.01 ether
	defaultCallbackGasLimit = uint32(500000)
	defaultInterval         = uint64(30)
)

// developmentChains are the network names backed by a local node where the
// vrf coordinator is deployed as a mock.
var developmentChains = []string{"hardhat", "localhost"}

type ChainConfig struct {
	ChainID            int64
	Name               string
	VRFCoordinator     common.Address
	EntranceFee        *big.Int
	GasLane            common.Hash
	SubscriptionID     uint64
	CallbackGasLimit   uint32
	Interval           uint64
	BlockConfirmations uint64
}

// Copy returns a deep copy of the configuration.
func (c ChainConfig) Copy() *ChainConfig {
	if c.EntranceFee != nil {
		c.EntranceFee = new(big.Int).Set(c.EntranceFee)
	}
	return &c
}

func GetChainConfig(chainID int64) (*ChainConfig, bool) {
	var cfg ChainConfig
	switch chainID {
	case devChainID:
		cfg.ChainID = devChainID
		cfg.Name = "hardhat"
		cfg.EntranceFee = new(big.Int).Set(defaultEntranceFee)
		cfg.GasLane = devGasLane
		cfg.CallbackGasLimit = defaultCallbackGasLimit
		cfg.Interval = defaultInterval
		cfg.BlockConfirmations = 1
		return &cfg, true
	case sepoliaChainID:
		cfg.ChainID = sepoliaChainID
		cfg.Name = "sepolia"
		cfg.VRFCoordinator = sepoliaVRFCoordinatorAddress
		cfg.EntranceFee = new(big.Int).Set(defaultEntranceFee)
		cfg.GasLane = sepoliaGasLane
		cfg.CallbackGasLimit = defaultCallbackGasLimit
		cfg.Interval = defaultInterval
		cfg.BlockConfirmations = 6
		return &cfg, true
	default:
		return &cfg, false
	}
}

// IsDevelopmentChain reports whether the network with the given name runs
// against a local node.
func IsDevelopmentChain(name string) bool {
	for _, n := range developmentChains {
		if n == name {
			return true
		}
	}
	return false
}

// ChainIDByName resolves a network name to its chain id.
func ChainIDByName(name string) (int64, bool) {
	switch name {
	case "hardhat", "localhost":
		return devChainID, true
	case "sepolia":
		return sepoliaChainID, true
	default:
		return 0, false
	}
}
