// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package raffle

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethersphere/raffle/pkg/chain"
)

// Observer is notified of raffle events after the transaction that
// produced them is mined. Reverted transactions produce no notifications.
type Observer interface {
	RaffleEntered(EnteredEvent)
	WinnerRequested(WinnerRequestedEvent)
	WinnerPicked(WinnerPickedEvent)
}

type EnteredEvent struct {
	Player          common.Address
	Value           *big.Int
	NumberOfPlayers uint64
	BlockNumber     uint64
	Timestamp       uint64
}

type WinnerRequestedEvent struct {
	RequestID       *big.Int
	NumberOfPlayers uint64
	Balance         *big.Int
	BlockNumber     uint64
	Timestamp       uint64
}

type WinnerPickedEvent struct {
	Winner      common.Address
	RequestID   *big.Int
	Prize       *big.Int
	Players     []common.Address
	BlockNumber uint64
	Timestamp   uint64
}

type raffleEnterLog struct {
	Player common.Address
}

type requestedRaffleWinnerLog struct {
	RequestId *big.Int
}

// FindRequestedRaffleWinner returns the request id logged by a perform
// upkeep receipt.
func FindRequestedRaffleWinner(receipt *types.Receipt, address common.Address) (*big.Int, error) {
	var e requestedRaffleWinnerLog
	if err := chain.FindSingleEvent(&raffleABI, receipt, address, raffleABI.Events["RequestedRaffleWinner"], &e); err != nil {
		return nil, err
	}
	return e.RequestId, nil
}

// FindRaffleJoined returns the player logged by a join receipt.
func FindRaffleJoined(receipt *types.Receipt, address common.Address) (common.Address, error) {
	var e raffleEnterLog
	if err := chain.FindSingleEvent(&raffleABI, receipt, address, raffleABI.Events["RaffleJoined"], &e); err != nil {
		return common.Address{}, err
	}
	return e.Player, nil
}

// FindWinnerPicked returns the winner logged by a fulfillment receipt.
func FindWinnerPicked(receipt *types.Receipt, address common.Address) (common.Address, error) {
	var e raffleEnterLog
	if err := chain.FindSingleEvent(&raffleABI, receipt, address, raffleABI.Events["WinnerPicked"], &e); err != nil {
		return common.Address{}, err
	}
	return e.Player, nil
}

// LogName returns the name of the raffle event in the log, or an empty
// string for logs of other events.
func LogName(l types.Log) string {
	if len(l.Topics) == 0 {
		return ""
	}
	switch l.Topics[0] {
	case raffleJoinedTopic:
		return "RaffleJoined"
	case requestedRaffleWinnerTopic:
		return "RequestedRaffleWinner"
	case winnerPickedTopic:
		return "WinnerPicked"
	default:
		return ""
	}
}
