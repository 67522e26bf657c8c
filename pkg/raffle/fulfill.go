// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package raffle

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethersphere/raffle/pkg/chain"
	"github.com/holiman/uint256"
)

// RawFulfillRandomWords receives the random words of a request. Only the
// coordinator may deliver them. The winner is the player at index
// words[0] mod number of players. The modulo reduction slightly favours
// lower indexes when the number of players does not divide 2^256.
func (r *Raffle) RawFulfillRandomWords(f *chain.Frame, requestID *big.Int, randomWords []*big.Int) error {
	if f.Sender() != r.coordinator.Address() {
		return fmt.Errorf("%w: have %s, want %s", ErrOnlyCoordinatorCanFulfill, f.Sender(), r.coordinator.Address())
	}
	return r.fulfillRandomWords(f, requestID, randomWords)
}

func (r *Raffle) fulfillRandomWords(f *chain.Frame, requestID *big.Int, randomWords []*big.Int) error {
	if len(randomWords) == 0 {
		return fmt.Errorf("%w: no words", ErrInvalidRandomWords)
	}
	index, err := winnerIndex(randomWords[0], len(r.players))
	if err != nil {
		return err
	}

	players := r.players
	winner := players[index]
	prevWinner, prevState, prevTimestamp := r.recentWinner, r.state, r.lastTimestamp
	r.recentWinner = winner
	r.players = nil
	r.state = StateOpen
	r.lastTimestamp = f.Now()
	f.Journal(func() {
		r.recentWinner = prevWinner
		r.players = players
		r.state = prevState
		r.lastTimestamp = prevTimestamp
	})

	prize := f.BalanceOf(r.address)
	if err := f.Transfer(winner, prize); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	if err := f.EmitEvent(&raffleABI, "WinnerPicked", winner); err != nil {
		return err
	}

	e := WinnerPickedEvent{
		Winner:      winner,
		RequestID:   new(big.Int).Set(requestID),
		Prize:       prize,
		Players:     append([]common.Address(nil), players...),
		BlockNumber: f.BlockNumber(),
		Timestamp:   f.Now(),
	}
	f.OnCommit(func() {
		r.metrics.WinnersPicked.Inc()
		r.metrics.Players.Set(0)
		r.logger.Infof("raffle: winner %s picked for request %s, prize %s", e.Winner, e.RequestID, e.Prize)
		r.notify(func(o Observer) { o.WinnerPicked(e) })
	})
	return nil
}

// winnerIndex reduces a random word to an index into n players.
func winnerIndex(word *big.Int, n int) (uint64, error) {
	if n == 0 {
		return 0, ErrNoPlayers
	}
	if word == nil || word.Sign() < 0 {
		return 0, fmt.Errorf("%w: negative word", ErrInvalidRandomWords)
	}
	w, overflow := uint256.FromBig(word)
	if overflow {
		return 0, fmt.Errorf("%w: word exceeds 256 bits", ErrInvalidRandomWords)
	}
	return new(uint256.Int).Mod(w, new(uint256.Int).SetUint64(uint64(n))).Uint64(), nil
}
