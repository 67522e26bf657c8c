// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package api exposes the raffle, the vrf coordinator and the development
// chain over HTTP.
package api

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethersphere/raffle/pkg/chain"
	"github.com/ethersphere/raffle/pkg/keeper"
	"github.com/ethersphere/raffle/pkg/logging"
	"github.com/ethersphere/raffle/pkg/raffle"
	"github.com/ethersphere/raffle/pkg/raffle/history"
	"github.com/ethersphere/raffle/pkg/ratelimit"
	"github.com/ethersphere/raffle/pkg/tracing"
	"github.com/ethersphere/raffle/pkg/vrf"
	"github.com/prometheus/client_golang/prometheus"
)

// Version is the version of the HTTP API.
const Version = "1.0.0"

type Raffle interface {
	Address() common.Address
	Info() (raffle.Info, error)
	Players() []common.Address
	Player(index uint64) (common.Address, error)
	Enter(ctx context.Context, from common.Address, value *big.Int) (*types.Receipt, error)
	CheckUpkeep(checkData []byte) (bool, []byte, error)
	PerformUpkeep(ctx context.Context, from common.Address, performData []byte) (*big.Int, *types.Receipt, error)
	AddObserver(raffle.Observer)
}

type Coordinator interface {
	Address() common.Address
	GetSubscription(subID uint64) (vrf.Subscription, error)
}

type Chain interface {
	BlockNumber(ctx context.Context) (uint64, error)
	IncreaseTime(d time.Duration) time.Duration
	Mine() chain.Header
}

type History interface {
	Cycles() ([]history.Cycle, error)
}

type Keeper interface {
	Status() keeper.Status
}

type Options struct {
	Raffle      Raffle
	Coordinator Coordinator
	Chain       Chain
	History     History
	Keeper      Keeper

	// Operator sends upkeep transactions requested through the API.
	Operator common.Address
	// DevMode enables the time travel endpoints of the chain.
	DevMode bool

	// EnterRateLimit is the interval at which a client is granted a new
	// raffle entry. Entries are not limited if it is zero.
	EnterRateLimit time.Duration
	EnterRateBurst int

	MetricsRegistry *prometheus.Registry
	Logger          logging.Logger
	Tracer          *tracing.Tracer
}

type Service struct {
	http.Handler

	raffle      Raffle
	coordinator Coordinator
	chain       Chain
	history     History
	keeper      Keeper
	operator    common.Address
	devMode     bool
	enterLimit  *ratelimit.Limiter
	registry    *prometheus.Registry
	logger      logging.Logger
	tracer      *tracing.Tracer
	metrics     metrics
	events      *eventHub

	quit      chan struct{}
	closeOnce sync.Once
	wsWg      sync.WaitGroup
}

func New(o Options) (*Service, error) {
	if o.Logger == nil {
		o.Logger = logging.Noop
	}
	serviceMetrics := newMetrics()
	s := &Service{
		raffle:      o.Raffle,
		coordinator: o.Coordinator,
		chain:       o.Chain,
		history:     o.History,
		keeper:      o.Keeper,
		operator:    o.Operator,
		devMode:     o.DevMode,
		registry:    o.MetricsRegistry,
		logger:      o.Logger,
		tracer:      o.Tracer,
		metrics:     serviceMetrics,
		events:      newEventHub(serviceMetrics.DroppedEvents, o.Logger),
		quit:        make(chan struct{}),
	}
	if o.EnterRateLimit > 0 {
		if o.EnterRateBurst <= 0 {
			o.EnterRateBurst = 1
		}
		limiter, err := ratelimit.New(o.EnterRateLimit, o.EnterRateBurst, nil)
		if err != nil {
			return nil, err
		}
		s.enterLimit = limiter
	}
	if s.raffle != nil {
		s.raffle.AddObserver(s.events)
	}

	s.setupRouting()

	return s, nil
}

// Close stops the event streams.
func (s *Service) Close() error {
	s.closeOnce.Do(func() { close(s.quit) })

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wsWg.Wait()
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		return errors.New("api shutting down with open websockets")
	}
	return nil
}
