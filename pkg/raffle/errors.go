// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package raffle

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	// ErrNotOpen is returned when entering while a winner is calculated.
	ErrNotOpen = errors.New("raffle not open")
	// ErrInsufficientPayment is returned when the payment is below the
	// entrance fee.
	ErrInsufficientPayment = errors.New("send more to enter raffle")
	// ErrUpkeepNotNeeded is matched by every *UpkeepNotNeededError.
	ErrUpkeepNotNeeded = errors.New("upkeep not needed")
	// ErrTransferFailed is returned when the prize cannot be paid out.
	ErrTransferFailed = errors.New("transfer failed")
	// ErrOnlyCoordinatorCanFulfill is returned when random words are not
	// delivered by the configured coordinator.
	ErrOnlyCoordinatorCanFulfill = errors.New("only coordinator can fulfill")
	// ErrPlayerIndex is returned for player indexes out of range.
	ErrPlayerIndex = errors.New("player index out of range")
	// ErrNoPlayers is returned when random words arrive for an empty raffle.
	ErrNoPlayers = errors.New("no players")
	// ErrInvalidRandomWords is returned when the delivered words cannot be
	// used to pick a winner.
	ErrInvalidRandomWords = errors.New("invalid random words")
)

// UpkeepNotNeededError carries the state that made the upkeep predicate
// false.
type UpkeepNotNeededError struct {
	Balance    *big.Int
	NumPlayers uint64
	State      State
}

func (e *UpkeepNotNeededError) Error() string {
	return fmt.Sprintf("%v: balance %s, players %d, state %s", ErrUpkeepNotNeeded, e.Balance, e.NumPlayers, e.State)
}

func (e *UpkeepNotNeededError) Is(target error) bool {
	return target == ErrUpkeepNotNeeded
}
