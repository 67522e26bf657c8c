// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vrf

import (
	"context"
	"errors"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethersphere/raffle/pkg/chain"
	"github.com/ethersphere/raffle/pkg/logging"
	lru "github.com/hashicorp/golang-lru"
)

const (
	defaultFulfillerPollEvery = time.Second
	requestsToRemember        = 1000
)

type FulfillerOptions struct {
	// PollEvery is the interval at which pending requests are checked for
	// confirmations.
	PollEvery time.Duration
	// MineConfirmations mines empty blocks when a request waits for
	// confirmations on an otherwise idle chain.
	MineConfirmations bool
}

type pendingFulfillment struct {
	event       *RandomWordsRequestedEvent
	blockNumber uint64
}

// Fulfiller is the off-chain node of the coordinator. It watches the chain
// for random words requests and answers each of them exactly once after
// the requested number of confirmations.
type Fulfiller struct {
	backend     *chain.Backend
	coordinator *Coordinator
	from        common.Address
	logger      logging.Logger
	metrics     fulfillerMetrics
	handled     *lru.Cache
	opts        FulfillerOptions

	mu      sync.Mutex
	pending map[uint64]pendingFulfillment

	logs      chan types.Log
	sub       *chain.Subscription
	quit      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewFulfiller(backend *chain.Backend, coordinator *Coordinator, from common.Address, logger logging.Logger, o *FulfillerOptions) (*Fulfiller, error) {
	handled, err := lru.New(requestsToRemember)
	if err != nil {
		return nil, err
	}
	if o == nil {
		o = &FulfillerOptions{
			PollEvery: defaultFulfillerPollEvery,
		}
	}
	if o.PollEvery <= 0 {
		o.PollEvery = defaultFulfillerPollEvery
	}
	return &Fulfiller{
		backend:     backend,
		coordinator: coordinator,
		from:        from,
		logger:      logger,
		metrics:     newFulfillerMetrics(),
		handled:     handled,
		opts:        *o,
		pending:     make(map[uint64]pendingFulfillment),
		logs:        make(chan types.Log),
		quit:        make(chan struct{}),
	}, nil
}

// Start subscribes to the chain and starts answering requests.
func (f *Fulfiller) Start() {
	f.sub = f.backend.SubscribeLogs(f.logs)
	f.wg.Add(1)
	go f.manage()
}

func (f *Fulfiller) manage() {
	defer f.wg.Done()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-f.quit
		cancel()
	}()

	ticker := time.NewTicker(f.opts.PollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-f.quit:
			return
		case l := <-f.logs:
			if f.observe(l) {
				f.process(ctx)
			}
		case <-ticker.C:
			f.process(ctx)
		}
	}
}

// observe records a request found in the log and reports whether it is new.
func (f *Fulfiller) observe(l types.Log) bool {
	if l.Address != f.coordinator.Address() || len(l.Topics) == 0 || l.Topics[0] != randomWordsRequestedTopic {
		return false
	}
	e, err := ParseRandomWordsRequested(l)
	if err != nil {
		f.metrics.Errors.Inc()
		f.logger.Errorf("vrf fulfiller: parse request log: %v", err)
		return false
	}
	id := e.RequestId.Uint64()
	if f.handled.Contains(id) {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.pending[id]; ok {
		return false
	}
	f.pending[id] = pendingFulfillment{event: e, blockNumber: l.BlockNumber}
	f.metrics.RequestsSeen.Inc()
	f.metrics.PendingRequests.Set(float64(len(f.pending)))
	f.logger.Debugf("vrf fulfiller: request %s from %s waits for %d confirmations", e.RequestId, e.Sender, e.MinimumRequestConfirmations)
	return true
}

// process fulfills every pending request that has enough confirmations.
func (f *Fulfiller) process(ctx context.Context) {
	head, err := f.backend.BlockNumber(ctx)
	if err != nil {
		f.logger.Warningf("vrf fulfiller: get block number: %v", err)
		return
	}

	f.mu.Lock()
	ready := make([]pendingFulfillment, 0, len(f.pending))
	var maxWait uint64
	for _, p := range f.pending {
		confirmed := p.blockNumber + uint64(p.event.MinimumRequestConfirmations)
		if head >= confirmed {
			ready = append(ready, p)
		} else if confirmed-head > maxWait {
			maxWait = confirmed - head
		}
	}
	f.mu.Unlock()

	if maxWait > 0 && f.opts.MineConfirmations {
		for i := uint64(0); i < maxWait; i++ {
			f.backend.Mine()
		}
		f.process(ctx)
		return
	}

	sort.Slice(ready, func(i, j int) bool {
		return ready[i].event.RequestId.Cmp(ready[j].event.RequestId) < 0
	})
	for _, p := range ready {
		f.fulfill(ctx, p.event)
	}
}

func (f *Fulfiller) fulfill(ctx context.Context, e *RandomWordsRequestedEvent) {
	id := e.RequestId.Uint64()
	_, err := f.coordinator.FulfillRandomWords(ctx, f.from, new(big.Int).Set(e.RequestId), e.Sender)

	var callbackErr *CallbackError
	switch {
	case err == nil:
		f.metrics.Fulfilled.Inc()
		f.logger.Infof("vrf fulfiller: fulfilled request %s", e.RequestId)
	case errors.As(err, &callbackErr):
		f.metrics.Fulfilled.Inc()
		f.logger.Warningf("vrf fulfiller: request %s fulfilled, consumer callback failed: %v", e.RequestId, callbackErr.Err)
	case errors.Is(err, ErrNonexistentRequest):
		f.logger.Debugf("vrf fulfiller: request %s already fulfilled", e.RequestId)
	default:
		f.metrics.Errors.Inc()
		f.logger.Errorf("vrf fulfiller: fulfill request %s: %v", e.RequestId, err)
		return
	}

	f.handled.Add(id, struct{}{})
	f.mu.Lock()
	delete(f.pending, id)
	f.metrics.PendingRequests.Set(float64(len(f.pending)))
	f.mu.Unlock()
}

// Pending returns the number of requests waiting to be fulfilled.
func (f *Fulfiller) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.pending)
}

// Close stops the fulfiller and waits for its goroutines. It is safe to call
// more than once.
func (f *Fulfiller) Close() error {
	f.closeOnce.Do(func() {
		close(f.quit)
		if f.sub != nil {
			f.sub.Unsubscribe()
		}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.wg.Wait()
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		return errors.New("vrf fulfiller closed with running goroutines")
	}
	return nil
}
