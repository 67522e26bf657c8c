// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package raffle implements a lottery contract. Players enter by paying an
// entrance fee. Once the interval has passed and there is at least one
// player, an automation service triggers the upkeep, which requests a
// random word from the vrf coordinator. The coordinator calls back with the
// word, a winner is picked and paid the whole balance, and a new cycle
// starts.
package raffle

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethersphere/raffle/pkg/chain"
	"github.com/ethersphere/raffle/pkg/logging"
	"github.com/ethersphere/raffle/pkg/vrf"
)

const (
	// RequestConfirmations is the number of blocks the coordinator waits
	// before answering a request.
	RequestConfirmations = 3
	// NumWords is the number of random words requested per cycle.
	NumWords = 1
)

// Coordinator is the randomness coordinator used by the raffle.
type Coordinator interface {
	Address() common.Address
	Register(vrf.Consumer)
	RequestRandomWords(f *chain.Frame, req vrf.Request) (*big.Int, error)
}

// Params are the constructor arguments of a raffle.
type Params struct {
	Coordinator      Coordinator
	EntranceFee      *big.Int
	GasLane          common.Hash
	SubscriptionID   uint64
	CallbackGasLimit uint32
	Interval         uint64
}

// Raffle is the lottery contract. Its state is only accessed inside frames
// of the backend it is deployed on, which serializes all operations.
type Raffle struct {
	backend     *chain.Backend
	coordinator Coordinator
	address     common.Address
	logger      logging.Logger
	metrics     metrics

	entranceFee      *big.Int
	interval         uint64
	gasLane          common.Hash
	subscriptionID   uint64
	callbackGasLimit uint32

	state            State
	players          []common.Address
	recentWinner     common.Address
	lastTimestamp    uint64
	pendingRequestID *big.Int

	observersMu sync.Mutex
	observers   []Observer
}

// Deploy deploys a raffle and registers it with the coordinator for
// fulfillment callbacks.
func Deploy(ctx context.Context, backend *chain.Backend, logger logging.Logger, from common.Address, p Params) (*Raffle, *types.Receipt, error) {
	if p.Coordinator == nil {
		return nil, nil, fmt.Errorf("raffle: coordinator is required")
	}
	if p.EntranceFee == nil {
		p.EntranceFee = new(big.Int)
	}

	r := &Raffle{
		backend:          backend,
		coordinator:      p.Coordinator,
		logger:           logger,
		metrics:          newMetrics(),
		entranceFee:      new(big.Int).Set(p.EntranceFee),
		interval:         p.Interval,
		gasLane:          p.GasLane,
		subscriptionID:   p.SubscriptionID,
		callbackGasLimit: p.CallbackGasLimit,
		state:            StateOpen,
	}

	_, receipt, err := backend.Deploy(ctx, from, "Raffle", func(f *chain.Frame) (interface{}, error) {
		r.address = f.Self()
		r.lastTimestamp = f.Now()
		f.OnCommit(func() { r.coordinator.Register(r) })
		return r, nil
	})
	if err != nil {
		return nil, receipt, err
	}
	r.logger.Infof("raffle: deployed at %s, entrance fee %s, interval %ds", r.address, r.entranceFee, r.interval)
	return r, receipt, nil
}

// Address returns the address of the raffle.
func (r *Raffle) Address() common.Address {
	return r.address
}

// AddObserver registers an observer for raffle events.
func (r *Raffle) AddObserver(o Observer) {
	r.observersMu.Lock()
	defer r.observersMu.Unlock()

	r.observers = append(r.observers, o)
}

func (r *Raffle) notify(fn func(o Observer)) {
	r.observersMu.Lock()
	observers := append([]Observer(nil), r.observers...)
	r.observersMu.Unlock()

	for _, o := range observers {
		fn(o)
	}
}

// Enter adds from as a player, paying value.
func (r *Raffle) Enter(ctx context.Context, from common.Address, value *big.Int) (*types.Receipt, error) {
	receipt, err := r.backend.Transact(ctx, chain.Msg{From: from, To: r.address, Value: value, Description: "joinRaffle"}, r.enter)
	if err != nil {
		r.metrics.RevertedEntries.Inc()
		return receipt, err
	}
	return receipt, nil
}

func (r *Raffle) enter(f *chain.Frame) error {
	if f.Value().Cmp(r.entranceFee) < 0 {
		return ErrInsufficientPayment
	}
	if r.state != StateOpen {
		return ErrNotOpen
	}

	player := f.Sender()
	prev := r.players
	r.players = append(r.players, player)
	f.Journal(func() { r.players = prev })

	if err := f.EmitEvent(&raffleABI, "RaffleJoined", player); err != nil {
		return err
	}

	e := EnteredEvent{
		Player:          player,
		Value:           f.Value(),
		NumberOfPlayers: uint64(len(r.players)),
		BlockNumber:     f.BlockNumber(),
		Timestamp:       f.Now(),
	}
	f.OnCommit(func() {
		r.metrics.Entries.Inc()
		r.metrics.Players.Set(float64(e.NumberOfPlayers))
		r.logger.Debugf("raffle: player %s entered, %d players", e.Player, e.NumberOfPlayers)
		r.notify(func(o Observer) { o.RaffleEntered(e) })
	})
	return nil
}

// Info is a snapshot of the raffle.
type Info struct {
	Address          common.Address
	State            State
	EntranceFee      *big.Int
	Interval         uint64
	NumberOfPlayers  uint64
	RecentWinner     common.Address
	LastTimestamp    uint64
	Balance          *big.Int
	PendingRequestID *big.Int
	UpkeepNeeded     bool
}

// Info returns a consistent snapshot of the raffle at the latest block.
func (r *Raffle) Info() (Info, error) {
	var info Info
	err := r.backend.View(func(f *chain.Frame) error {
		info = Info{
			Address:         r.address,
			State:           r.state,
			EntranceFee:     new(big.Int).Set(r.entranceFee),
			Interval:        r.interval,
			NumberOfPlayers: uint64(len(r.players)),
			RecentWinner:    r.recentWinner,
			LastTimestamp:   r.lastTimestamp,
			Balance:         f.BalanceOf(r.address),
			UpkeepNeeded:    r.checkUpkeep(f),
		}
		if r.pendingRequestID != nil {
			info.PendingRequestID = new(big.Int).Set(r.pendingRequestID)
		}
		return nil
	})
	return info, err
}

func (r *Raffle) EntranceFee() *big.Int {
	return new(big.Int).Set(r.entranceFee)
}

func (r *Raffle) Interval() uint64 {
	return r.interval
}

func (r *Raffle) NumWords() uint32 {
	return NumWords
}

func (r *Raffle) RequestConfirmations() uint16 {
	return RequestConfirmations
}

func (r *Raffle) State() (s State) {
	_ = r.backend.View(func(*chain.Frame) error {
		s = r.state
		return nil
	})
	return s
}

// Player returns the player at index in entry order.
func (r *Raffle) Player(index uint64) (common.Address, error) {
	var a common.Address
	err := r.backend.View(func(*chain.Frame) error {
		if index >= uint64(len(r.players)) {
			return fmt.Errorf("%w: %d of %d", ErrPlayerIndex, index, len(r.players))
		}
		a = r.players[index]
		return nil
	})
	return a, err
}

// Players returns all players of the current cycle in entry order.
func (r *Raffle) Players() (players []common.Address) {
	_ = r.backend.View(func(*chain.Frame) error {
		players = append([]common.Address{}, r.players...)
		return nil
	})
	return players
}

func (r *Raffle) NumberOfPlayers() (n uint64) {
	_ = r.backend.View(func(*chain.Frame) error {
		n = uint64(len(r.players))
		return nil
	})
	return n
}

func (r *Raffle) RecentWinner() (w common.Address) {
	_ = r.backend.View(func(*chain.Frame) error {
		w = r.recentWinner
		return nil
	})
	return w
}

func (r *Raffle) LastTimestamp() (ts uint64) {
	_ = r.backend.View(func(*chain.Frame) error {
		ts = r.lastTimestamp
		return nil
	})
	return ts
}

// PendingRequestID returns the id of the request in flight, or nil if no
// request was issued yet.
func (r *Raffle) PendingRequestID() (id *big.Int) {
	_ = r.backend.View(func(*chain.Frame) error {
		if r.pendingRequestID != nil {
			id = new(big.Int).Set(r.pendingRequestID)
		}
		return nil
	})
	return id
}

// Balance returns the prize currently held by the raffle.
func (r *Raffle) Balance() (b *big.Int) {
	_ = r.backend.View(func(f *chain.Frame) error {
		b = f.BalanceOf(r.address)
		return nil
	})
	return b
}
