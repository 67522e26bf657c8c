// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package node

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethersphere/raffle/pkg/raffle"
)

var ErrInvalidPlayers = errors.New("invalid number of players")

// SimulationResult is the outcome of a simulated raffle cycle.
type SimulationResult struct {
	Players            []common.Address
	RequestID          *big.Int
	Winner             common.Address
	Prize              *big.Int
	WinnerStartBalance *big.Int
	WinnerEndBalance   *big.Int
	Duration           time.Duration
}

type winnerWaiter struct {
	c chan raffle.WinnerPickedEvent
}

func (w *winnerWaiter) RaffleEntered(raffle.EnteredEvent)          {}
func (w *winnerWaiter) WinnerRequested(raffle.WinnerRequestedEvent) {}
func (w *winnerWaiter) WinnerPicked(e raffle.WinnerPickedEvent) {
	select {
	case w.c <- e:
	default:
	}
}

// Simulate runs one raffle cycle with the given number of players. The
// players enter, the chain time passes the interval, and the keeper and
// the fulfiller of the node pick the winner.
func (n *Node) Simulate(ctx context.Context, players int) (*SimulationResult, error) {
	if players < 1 || players >= len(n.accounts) {
		return nil, fmt.Errorf("%w: %d, want between 1 and %d", ErrInvalidPlayers, players, len(n.accounts)-1)
	}
	start := time.Now()

	waiter := &winnerWaiter{c: make(chan raffle.WinnerPickedEvent, 1)}
	n.raffle.AddObserver(waiter)

	fee := n.raffle.EntranceFee()
	res := &SimulationResult{}
	startBalances := make(map[common.Address]*big.Int)
	for _, a := range n.accounts[1 : players+1] {
		if _, err := n.raffle.Enter(ctx, a.Address, fee); err != nil {
			return nil, fmt.Errorf("enter %s: %w", a.Address, err)
		}
		balance, err := n.backend.BalanceAt(ctx, a.Address)
		if err != nil {
			return nil, err
		}
		startBalances[a.Address] = balance
		res.Players = append(res.Players, a.Address)
		n.logger.Debugf("simulation: player %s entered", a.Address)
	}

	n.backend.IncreaseTime(time.Duration(n.raffle.Interval()+1) * time.Second)
	n.backend.Mine()
	n.logger.Infof("simulation: %d players entered, waiting for the winner", players)

	var e raffle.WinnerPickedEvent
	select {
	case e = <-waiter.c:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	endBalance, err := n.backend.BalanceAt(ctx, e.Winner)
	if err != nil {
		return nil, err
	}
	res.RequestID = e.RequestID
	res.Winner = e.Winner
	res.Prize = e.Prize
	res.WinnerStartBalance = startBalances[e.Winner]
	res.WinnerEndBalance = endBalance
	res.Duration = time.Since(start)
	n.metrics.SimulatedCycles.Inc()
	return res, nil
}
