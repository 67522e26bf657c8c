// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package history keeps a persistent record of completed raffle cycles.
package history

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethersphere/raffle/pkg/logging"
	"github.com/ethersphere/raffle/pkg/raffle"
	"github.com/ethersphere/raffle/pkg/storage"
	"github.com/vmihailenco/msgpack/v5"
)

const keyPrefix = "raffle_history_cycle_"

// ErrNoCycles is returned by Last when no cycle has completed yet.
var ErrNoCycles = errors.New("no completed cycles")

// Cycle is a completed raffle cycle.
type Cycle struct {
	Round       uint64           `json:"round"`
	RequestID   *big.Int         `json:"requestId"`
	Winner      common.Address   `json:"winner"`
	Prize       *big.Int         `json:"prize"`
	Players     []common.Address `json:"players"`
	RequestedAt uint64           `json:"requestedAt,omitempty"`
	BlockNumber uint64           `json:"blockNumber"`
	Timestamp   uint64           `json:"timestamp"`
}

type cycleRecord struct {
	Round       uint64   `msgpack:"round"`
	RequestID   []byte   `msgpack:"request_id"`
	Winner      []byte   `msgpack:"winner"`
	Prize       []byte   `msgpack:"prize"`
	Players     [][]byte `msgpack:"players"`
	RequestedAt uint64   `msgpack:"requested_at"`
	BlockNumber uint64   `msgpack:"block_number"`
	Timestamp   uint64   `msgpack:"timestamp"`
}

func (c Cycle) MarshalBinary() ([]byte, error) {
	r := cycleRecord{
		Round:       c.Round,
		Winner:      c.Winner.Bytes(),
		RequestedAt: c.RequestedAt,
		BlockNumber: c.BlockNumber,
		Timestamp:   c.Timestamp,
	}
	if c.RequestID != nil {
		r.RequestID = c.RequestID.Bytes()
	}
	if c.Prize != nil {
		r.Prize = c.Prize.Bytes()
	}
	for _, p := range c.Players {
		r.Players = append(r.Players, p.Bytes())
	}
	return msgpack.Marshal(&r)
}

func (c *Cycle) UnmarshalBinary(data []byte) error {
	var r cycleRecord
	if err := msgpack.Unmarshal(data, &r); err != nil {
		return fmt.Errorf("unmarshal cycle: %w", err)
	}
	*c = Cycle{
		Round:       r.Round,
		RequestID:   new(big.Int).SetBytes(r.RequestID),
		Winner:      common.BytesToAddress(r.Winner),
		Prize:       new(big.Int).SetBytes(r.Prize),
		RequestedAt: r.RequestedAt,
		BlockNumber: r.BlockNumber,
		Timestamp:   r.Timestamp,
	}
	for _, p := range r.Players {
		c.Players = append(c.Players, common.BytesToAddress(p))
	}
	return nil
}

// History is a raffle.Observer storing every completed cycle.
type History struct {
	store  storage.StateStorer
	logger logging.Logger

	mu          sync.Mutex
	round       uint64
	requestedAt map[string]uint64
}

var _ raffle.Observer = (*History)(nil)

// New returns a history backed by store, continuing the round count of
// previously stored cycles.
func New(store storage.StateStorer, logger logging.Logger) (*History, error) {
	h := &History{
		store:       store,
		logger:      logger,
		requestedAt: make(map[string]uint64),
	}
	err := store.Iterate(keyPrefix, func(key, _ []byte) (bool, error) {
		if !strings.HasPrefix(string(key), keyPrefix) {
			return true, nil
		}
		var round uint64
		if _, err := fmt.Sscanf(strings.TrimPrefix(string(key), keyPrefix), "%d", &round); err != nil {
			return true, fmt.Errorf("invalid history key %q: %w", key, err)
		}
		if round > h.round {
			h.round = round
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

func cycleKey(round uint64) string {
	return fmt.Sprintf("%s%020d", keyPrefix, round)
}

func (h *History) RaffleEntered(raffle.EnteredEvent) {}

func (h *History) WinnerRequested(e raffle.WinnerRequestedEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.requestedAt[e.RequestID.String()] = e.Timestamp
}

func (h *History) WinnerPicked(e raffle.WinnerPickedEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	requestedAt := h.requestedAt[e.RequestID.String()]
	delete(h.requestedAt, e.RequestID.String())

	c := Cycle{
		Round:       h.round + 1,
		RequestID:   e.RequestID,
		Winner:      e.Winner,
		Prize:       e.Prize,
		Players:     e.Players,
		RequestedAt: requestedAt,
		BlockNumber: e.BlockNumber,
		Timestamp:   e.Timestamp,
	}
	if err := h.store.Put(cycleKey(c.Round), c); err != nil {
		h.logger.Errorf("raffle history: store round %d: %v", c.Round, err)
		return
	}
	h.round = c.Round
	h.logger.Debugf("raffle history: stored round %d won by %s", c.Round, c.Winner)
}

// Cycles returns all completed cycles, newest first.
func (h *History) Cycles() ([]Cycle, error) {
	var cycles []Cycle
	err := h.store.Iterate(keyPrefix, func(key, value []byte) (bool, error) {
		if !strings.HasPrefix(string(key), keyPrefix) {
			return true, nil
		}
		var c Cycle
		if err := c.UnmarshalBinary(value); err != nil {
			return true, err
		}
		cycles = append(cycles, c)
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(cycles)-1; i < j; i, j = i+1, j-1 {
		cycles[i], cycles[j] = cycles[j], cycles[i]
	}
	return cycles, nil
}

// Last returns the most recently completed cycle.
func (h *History) Last() (Cycle, error) {
	h.mu.Lock()
	round := h.round
	h.mu.Unlock()

	if round == 0 {
		return Cycle{}, ErrNoCycles
	}
	var c Cycle
	if err := h.store.Get(cycleKey(round), &c); err != nil {
		return Cycle{}, err
	}
	return c, nil
}

// Rounds returns the number of completed cycles.
func (h *History) Rounds() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.round
}
