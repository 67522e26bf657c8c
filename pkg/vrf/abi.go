// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vrf

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethersphere/raffle/pkg/chain"
)

// CoordinatorABI holds the events of the coordinator.
const CoordinatorABI = `[
{"anonymous":false,"inputs":[{"indexed":true,"internalType":"uint64","name":"subId","type":"uint64"},{"indexed":false,"internalType":"address","name":"owner","type":"address"}],"name":"SubscriptionCreated","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"internalType":"uint64","name":"subId","type":"uint64"},{"indexed":false,"internalType":"uint256","name":"oldBalance","type":"uint256"},{"indexed":false,"internalType":"uint256","name":"newBalance","type":"uint256"}],"name":"SubscriptionFunded","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"internalType":"uint64","name":"subId","type":"uint64"},{"indexed":false,"internalType":"address","name":"to","type":"address"},{"indexed":false,"internalType":"uint256","name":"amount","type":"uint256"}],"name":"SubscriptionCanceled","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"internalType":"uint64","name":"subId","type":"uint64"},{"indexed":false,"internalType":"address","name":"consumer","type":"address"}],"name":"ConsumerAdded","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"internalType":"uint64","name":"subId","type":"uint64"},{"indexed":false,"internalType":"address","name":"consumer","type":"address"}],"name":"ConsumerRemoved","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"internalType":"bytes32","name":"keyHash","type":"bytes32"},{"indexed":false,"internalType":"uint256","name":"requestId","type":"uint256"},{"indexed":false,"internalType":"uint256","name":"preSeed","type":"uint256"},{"indexed":true,"internalType":"uint64","name":"subId","type":"uint64"},{"indexed":false,"internalType":"uint16","name":"minimumRequestConfirmations","type":"uint16"},{"indexed":false,"internalType":"uint32","name":"callbackGasLimit","type":"uint32"},{"indexed":false,"internalType":"uint32","name":"numWords","type":"uint32"},{"indexed":true,"internalType":"address","name":"sender","type":"address"}],"name":"RandomWordsRequested","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"internalType":"uint256","name":"requestId","type":"uint256"},{"indexed":false,"internalType":"uint256","name":"outputSeed","type":"uint256"},{"indexed":false,"internalType":"uint96","name":"payment","type":"uint96"},{"indexed":false,"internalType":"bool","name":"success","type":"bool"}],"name":"RandomWordsFulfilled","type":"event"}
]`

var (
	coordinatorABI = chain.ParseABIUnchecked(CoordinatorABI)

	randomWordsRequestedTopic = coordinatorABI.Events["RandomWordsRequested"].ID
	randomWordsFulfilledTopic = coordinatorABI.Events["RandomWordsFulfilled"].ID
)

// RandomWordsRequestedEvent is the decoded RandomWordsRequested log.
type RandomWordsRequestedEvent struct {
	KeyHash                     [32]byte
	RequestId                   *big.Int
	PreSeed                     *big.Int
	SubId                       uint64
	MinimumRequestConfirmations uint16
	CallbackGasLimit            uint32
	NumWords                    uint32
	Sender                      common.Address
}

// RandomWordsFulfilledEvent is the decoded RandomWordsFulfilled log.
type RandomWordsFulfilledEvent struct {
	RequestId  *big.Int
	OutputSeed *big.Int
	Payment    *big.Int
	Success    bool
}

// ParseRandomWordsRequested decodes a RandomWordsRequested log.
func ParseRandomWordsRequested(l types.Log) (*RandomWordsRequestedEvent, error) {
	if len(l.Topics) == 0 || l.Topics[0] != randomWordsRequestedTopic {
		return nil, chain.ErrEventNotFound
	}
	var e RandomWordsRequestedEvent
	if err := chain.ParseEvent(&coordinatorABI, "RandomWordsRequested", &e, l); err != nil {
		return nil, err
	}
	return &e, nil
}

// FindRandomWordsFulfilled decodes the RandomWordsFulfilled log of a receipt.
func FindRandomWordsFulfilled(receipt *types.Receipt, coordinator common.Address) (*RandomWordsFulfilledEvent, error) {
	var e RandomWordsFulfilledEvent
	if err := chain.FindSingleEvent(&coordinatorABI, receipt, coordinator, coordinatorABI.Events["RandomWordsFulfilled"], &e); err != nil {
		return nil, err
	}
	return &e, nil
}
