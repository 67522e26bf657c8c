// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package keeper implements the automation service of the raffle. The
// agent polls the upkeep predicate and performs the upkeep whenever it is
// needed.
package keeper

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethersphere/raffle/pkg/logging"
	"go.uber.org/atomic"
	"golang.org/x/time/rate"
)

const (
	DefaultPollInterval = 5 * time.Second
	defaultRetryEvery   = 10 * time.Second
)

// Upkeeper is a contract compatible with the automation service.
type Upkeeper interface {
	CheckUpkeep(checkData []byte) (upkeepNeeded bool, performData []byte, err error)
	PerformUpkeep(ctx context.Context, from common.Address, performData []byte) (*big.Int, *types.Receipt, error)
}

type Options struct {
	PollInterval time.Duration
	// RetryEvery limits how often a failed perform is retried.
	RetryEvery time.Duration
	CheckData  []byte
}

// Status reports the activity of the agent.
type Status struct {
	LastCheck      time.Time `json:"lastCheck"`
	LastPerform    time.Time `json:"lastPerform"`
	Checks         uint64    `json:"checks"`
	Performs       uint64    `json:"performs"`
	FailedPerforms uint64    `json:"failedPerforms"`
	LastError      string    `json:"lastError,omitempty"`
}

type Agent struct {
	logger   logging.Logger
	metrics  metrics
	upkeeper Upkeeper
	from     common.Address
	opts     Options
	limiter  *rate.Limiter

	checks         *atomic.Uint64
	performs       *atomic.Uint64
	failedPerforms *atomic.Uint64
	lastCheck      *atomic.Int64
	lastPerform    *atomic.Int64
	lastError      *atomic.String
	retrying       *atomic.Bool

	quit      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func New(upkeeper Upkeeper, from common.Address, logger logging.Logger, o *Options) *Agent {
	if o == nil {
		o = &Options{}
	}
	opts := *o
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.RetryEvery <= 0 {
		opts.RetryEvery = defaultRetryEvery
	}

	return &Agent{
		logger:         logger,
		metrics:        newMetrics(),
		upkeeper:       upkeeper,
		from:           from,
		opts:           opts,
		limiter:        rate.NewLimiter(rate.Every(opts.RetryEvery), 1),
		checks:         atomic.NewUint64(0),
		performs:       atomic.NewUint64(0),
		failedPerforms: atomic.NewUint64(0),
		lastCheck:      atomic.NewInt64(0),
		lastPerform:    atomic.NewInt64(0),
		lastError:      atomic.NewString(""),
		retrying:       atomic.NewBool(false),
		quit:           make(chan struct{}),
	}
}

// Start starts polling in the background.
func (a *Agent) Start() {
	a.wg.Add(1)
	go a.run()
}

func (a *Agent) run() {
	defer a.wg.Done()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-a.quit
		cancel()
	}()

	for {
		select {
		case <-a.quit:
			return
		case <-time.After(a.opts.PollInterval):
		}

		if _, err := a.Poll(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			a.logger.Warningf("keeper: %v", err)
		}
	}
}

// Poll checks the upkeep once and performs it when needed. It reports
// whether an upkeep was performed.
func (a *Agent) Poll(ctx context.Context) (bool, error) {
	a.checks.Inc()
	a.lastCheck.Store(time.Now().UnixNano())
	a.metrics.Checks.Inc()

	needed, performData, err := a.upkeeper.CheckUpkeep(a.opts.CheckData)
	if err != nil {
		a.metrics.CheckErrors.Inc()
		return false, err
	}
	if !needed {
		return false, nil
	}

	// a failed perform is retried on a later poll, but not more often
	// than the retry limit allows
	if a.retrying.Load() && !a.limiter.Allow() {
		a.logger.Tracef("keeper: perform retry delayed")
		return false, nil
	}
	if !a.retrying.Load() {
		a.limiter.Allow()
	}

	requestID, _, err := a.upkeeper.PerformUpkeep(ctx, a.from, performData)
	if err != nil {
		a.failedPerforms.Inc()
		a.retrying.Store(true)
		a.lastError.Store(err.Error())
		a.metrics.PerformErrors.Inc()
		return false, err
	}

	a.performs.Inc()
	a.retrying.Store(false)
	a.lastError.Store("")
	a.lastPerform.Store(time.Now().UnixNano())
	a.metrics.Performs.Inc()
	a.logger.Infof("keeper: upkeep performed, request %s", requestID)
	return true, nil
}

// Status returns the current status of the agent.
func (a *Agent) Status() Status {
	s := Status{
		Checks:         a.checks.Load(),
		Performs:       a.performs.Load(),
		FailedPerforms: a.failedPerforms.Load(),
		LastError:      a.lastError.Load(),
	}
	if ts := a.lastCheck.Load(); ts > 0 {
		s.LastCheck = time.Unix(0, ts)
	}
	if ts := a.lastPerform.Load(); ts > 0 {
		s.LastPerform = time.Unix(0, ts)
	}
	return s
}

// Close stops the agent and waits for its goroutines. It is safe to call
// more than once.
func (a *Agent) Close() error {
	a.closeOnce.Do(func() { close(a.quit) })

	done := make(chan struct{})
	go func() {
		defer close(done)
		a.wg.Wait()
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		return errors.New("keeper agent closed with running goroutines")
	}
	return nil
}
