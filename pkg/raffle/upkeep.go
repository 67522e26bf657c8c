// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package raffle

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethersphere/raffle/pkg/chain"
	"github.com/ethersphere/raffle/pkg/vrf"
)

// CheckUpkeep reports whether a winner should be requested. The upkeep is
// needed when the raffle is open, the interval has passed since the last
// cycle, and it holds both players and a balance. checkData is not used,
// the returned perform data is always empty.
func (r *Raffle) CheckUpkeep(checkData []byte) (upkeepNeeded bool, performData []byte, err error) {
	err = r.backend.View(func(f *chain.Frame) error {
		upkeepNeeded = r.checkUpkeep(f)
		return nil
	})
	return upkeepNeeded, []byte{}, err
}

func (r *Raffle) checkUpkeep(f *chain.Frame) bool {
	isOpen := r.state == StateOpen
	timePassed := f.Now() >= r.lastTimestamp && f.Now()-r.lastTimestamp >= r.interval
	hasPlayers := len(r.players) > 0
	hasBalance := f.BalanceOf(r.address).Sign() > 0
	return isOpen && timePassed && hasPlayers && hasBalance
}

// PerformUpkeep closes the current cycle and requests a random word from
// the coordinator. It returns the id of the request.
func (r *Raffle) PerformUpkeep(ctx context.Context, from common.Address, performData []byte) (*big.Int, *types.Receipt, error) {
	var requestID *big.Int
	receipt, err := r.backend.Transact(ctx, chain.Msg{From: from, To: r.address, Description: "performUpkeep"}, func(f *chain.Frame) error {
		var err error
		requestID, err = r.performUpkeep(f)
		return err
	})
	if err != nil {
		return nil, receipt, err
	}
	return requestID, receipt, nil
}

func (r *Raffle) performUpkeep(f *chain.Frame) (*big.Int, error) {
	if !r.checkUpkeep(f) {
		return nil, &UpkeepNotNeededError{
			Balance:    f.BalanceOf(r.address),
			NumPlayers: uint64(len(r.players)),
			State:      r.state,
		}
	}

	prevState := r.state
	r.state = StateCalculating
	f.Journal(func() { r.state = prevState })

	requestID, err := r.coordinator.RequestRandomWords(f, vrf.Request{
		KeyHash:                     r.gasLane,
		SubID:                       r.subscriptionID,
		MinimumRequestConfirmations: RequestConfirmations,
		CallbackGasLimit:            r.callbackGasLimit,
		NumWords:                    NumWords,
	})
	if err != nil {
		return nil, fmt.Errorf("request random words: %w", err)
	}

	prevRequestID := r.pendingRequestID
	r.pendingRequestID = requestID
	f.Journal(func() { r.pendingRequestID = prevRequestID })

	if err := f.EmitEvent(&raffleABI, "RequestedRaffleWinner", requestID); err != nil {
		return nil, err
	}

	e := WinnerRequestedEvent{
		RequestID:       new(big.Int).Set(requestID),
		NumberOfPlayers: uint64(len(r.players)),
		Balance:         f.BalanceOf(r.address),
		BlockNumber:     f.BlockNumber(),
		Timestamp:       f.Now(),
	}
	f.OnCommit(func() {
		r.metrics.UpkeepsPerformed.Inc()
		r.logger.Infof("raffle: requested winner, request %s, %d players", e.RequestID, e.NumberOfPlayers)
		r.notify(func(o Observer) { o.WinnerRequested(e) })
	})
	return requestID, nil
}
