// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package vrf implements a verifiable randomness coordinator for
// development chains together with the off-chain node that answers its
// requests. Consumers request random words inside their own transaction
// and receive them later through a callback sent by the coordinator.
package vrf

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethersphere/raffle/pkg/chain"
	"github.com/ethersphere/raffle/pkg/logging"
)

const (
	MaxConsumers        = 100
	MaxNumWords         = 500
	MaxCallbackGasLimit = 2_500_000
	firstRequestID      = 1
	firstPreSeed        = 100
)

var (
	// DefaultBaseFee is the flat fee charged per fulfillment, 0.25 LINK.
	DefaultBaseFee = big.NewInt(250000000000000000)
	// DefaultGasPriceLink is the LINK price of a unit of callback gas.
	DefaultGasPriceLink = big.NewInt(1e9)
)

var (
	ErrInvalidSubscription = errors.New("invalid subscription")
	ErrInvalidConsumer     = errors.New("invalid consumer")
	ErrMustBeSubOwner      = errors.New("must be subscription owner")
	ErrTooManyConsumers    = errors.New("too many consumers")
	ErrTooManyWords        = errors.New("too many words requested")
	ErrGasLimitTooBig      = errors.New("callback gas limit too big")
	ErrNonexistentRequest  = errors.New("nonexistent request")
	ErrInsufficientBalance = errors.New("insufficient subscription balance")
	ErrInvalidRandomWords  = errors.New("invalid random words")
	ErrNotCoordinator      = errors.New("no coordinator at address")
)

// CallbackError is returned by the fulfill operations when the consumer
// callback failed. The fulfillment itself is committed and the request is
// consumed, only the effects of the callback are reverted.
type CallbackError struct {
	RequestID *big.Int
	Err       error
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("callback for request %s failed: %v", e.RequestID, e.Err)
}

func (e *CallbackError) Unwrap() error { return e.Err }

// Consumer receives random words from the coordinator.
type Consumer interface {
	Address() common.Address
	// RawFulfillRandomWords is called in a frame whose sender is the
	// coordinator.
	RawFulfillRandomWords(f *chain.Frame, requestID *big.Int, randomWords []*big.Int) error
}

// Request are the parameters of a random words request.
type Request struct {
	KeyHash                     common.Hash
	SubID                       uint64
	MinimumRequestConfirmations uint16
	CallbackGasLimit            uint32
	NumWords                    uint32
}

// Subscription is a snapshot of a subscription.
type Subscription struct {
	ID        uint64           `json:"id"`
	Owner     common.Address   `json:"owner"`
	Balance   *big.Int         `json:"balance"`
	Consumers []common.Address `json:"consumers"`
}

type subscription struct {
	owner     common.Address
	balance   *big.Int
	consumers []common.Address
}

type pendingRequest struct {
	subID            uint64
	callbackGasLimit uint32
	numWords         uint32
	sender           common.Address
}

// Coordinator is the randomness coordinator contract. Its state is only
// accessed inside frames of the backend it is deployed on.
type Coordinator struct {
	backend      *chain.Backend
	address      common.Address
	logger       logging.Logger
	metrics      metrics
	baseFee      *big.Int
	gasPriceLink *big.Int

	currentSubID  uint64
	nextRequestID uint64
	nextPreSeed   uint64
	subs          map[uint64]*subscription
	requests      map[uint64]pendingRequest

	consumersMu sync.RWMutex
	consumers   map[common.Address]Consumer
}

// Deploy deploys a new coordinator with the given fees.
func Deploy(ctx context.Context, backend *chain.Backend, logger logging.Logger, from common.Address, baseFee, gasPriceLink *big.Int) (*Coordinator, *types.Receipt, error) {
	c := &Coordinator{
		backend:       backend,
		logger:        logger,
		metrics:       newMetrics(),
		baseFee:       new(big.Int).Set(baseFee),
		gasPriceLink:  new(big.Int).Set(gasPriceLink),
		nextRequestID: firstRequestID,
		nextPreSeed:   firstPreSeed,
		subs:          make(map[uint64]*subscription),
		requests:      make(map[uint64]pendingRequest),
		consumers:     make(map[common.Address]Consumer),
	}

	_, receipt, err := backend.Deploy(ctx, from, "VRFCoordinatorV2Mock", func(f *chain.Frame) (interface{}, error) {
		c.address = f.Self()
		return c, nil
	})
	if err != nil {
		return nil, receipt, err
	}
	c.logger.Infof("vrf: coordinator deployed at %s", c.address)
	return c, receipt, nil
}

// At returns the coordinator deployed at address.
func At(backend *chain.Backend, address common.Address) (*Coordinator, error) {
	contract, ok := backend.ContractAt(address)
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrNotCoordinator, address)
	}
	c, ok := contract.(*Coordinator)
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrNotCoordinator, address)
	}
	return c, nil
}

// Address returns the address of the coordinator.
func (c *Coordinator) Address() common.Address {
	return c.address
}

// Register makes a consumer reachable for fulfillment callbacks.
func (c *Coordinator) Register(consumer Consumer) {
	c.consumersMu.Lock()
	defer c.consumersMu.Unlock()

	c.consumers[consumer.Address()] = consumer
}

func (c *Coordinator) consumer(address common.Address) (Consumer, bool) {
	c.consumersMu.RLock()
	defer c.consumersMu.RUnlock()

	consumer, ok := c.consumers[address]
	return consumer, ok
}

// CreateSubscription creates a subscription owned by from.
func (c *Coordinator) CreateSubscription(ctx context.Context, from common.Address) (uint64, *types.Receipt, error) {
	var subID uint64
	receipt, err := c.backend.Transact(ctx, chain.Msg{From: from, To: c.address, Description: "createSubscription"}, func(f *chain.Frame) error {
		prevSubID := c.currentSubID
		c.currentSubID++
		subID = c.currentSubID
		c.subs[subID] = &subscription{owner: f.Sender(), balance: new(big.Int)}
		f.Journal(func() {
			delete(c.subs, subID)
			c.currentSubID = prevSubID
		})
		return f.EmitEvent(&coordinatorABI, "SubscriptionCreated", subID, f.Sender())
	})
	if err != nil {
		return 0, receipt, err
	}
	c.metrics.Subscriptions.Inc()
	return subID, receipt, nil
}

// FundSubscription credits amount LINK to the subscription.
func (c *Coordinator) FundSubscription(ctx context.Context, from common.Address, subID uint64, amount *big.Int) (*types.Receipt, error) {
	return c.backend.Transact(ctx, chain.Msg{From: from, To: c.address, Description: "fundSubscription"}, func(f *chain.Frame) error {
		sub, ok := c.subs[subID]
		if !ok {
			return ErrInvalidSubscription
		}
		oldBalance := sub.balance
		sub.balance = new(big.Int).Add(oldBalance, amount)
		f.Journal(func() { sub.balance = oldBalance })
		return f.EmitEvent(&coordinatorABI, "SubscriptionFunded", subID, oldBalance, sub.balance)
	})
}

// AddConsumer allows consumer to request randomness billed to the
// subscription. Adding an existing consumer is a no-op.
func (c *Coordinator) AddConsumer(ctx context.Context, from common.Address, subID uint64, consumer common.Address) (*types.Receipt, error) {
	return c.backend.Transact(ctx, chain.Msg{From: from, To: c.address, Description: "addConsumer"}, func(f *chain.Frame) error {
		sub, err := c.ownedSubscription(f, subID)
		if err != nil {
			return err
		}
		for _, a := range sub.consumers {
			if a == consumer {
				return nil
			}
		}
		if len(sub.consumers) >= MaxConsumers {
			return ErrTooManyConsumers
		}
		prev := sub.consumers
		sub.consumers = append(append([]common.Address(nil), prev...), consumer)
		f.Journal(func() { sub.consumers = prev })
		return f.EmitEvent(&coordinatorABI, "ConsumerAdded", subID, consumer)
	})
}

// RemoveConsumer revokes the consumer from the subscription.
func (c *Coordinator) RemoveConsumer(ctx context.Context, from common.Address, subID uint64, consumer common.Address) (*types.Receipt, error) {
	return c.backend.Transact(ctx, chain.Msg{From: from, To: c.address, Description: "removeConsumer"}, func(f *chain.Frame) error {
		sub, err := c.ownedSubscription(f, subID)
		if err != nil {
			return err
		}
		idx := -1
		for i, a := range sub.consumers {
			if a == consumer {
				idx = i
				break
			}
		}
		if idx < 0 {
			return ErrInvalidConsumer
		}
		prev := sub.consumers
		next := make([]common.Address, 0, len(prev)-1)
		next = append(next, prev[:idx]...)
		sub.consumers = append(next, prev[idx+1:]...)
		f.Journal(func() { sub.consumers = prev })
		return f.EmitEvent(&coordinatorABI, "ConsumerRemoved", subID, consumer)
	})
}

// CancelSubscription deletes the subscription, refunding its balance to to.
func (c *Coordinator) CancelSubscription(ctx context.Context, from common.Address, subID uint64, to common.Address) (*types.Receipt, error) {
	return c.backend.Transact(ctx, chain.Msg{From: from, To: c.address, Description: "cancelSubscription"}, func(f *chain.Frame) error {
		sub, err := c.ownedSubscription(f, subID)
		if err != nil {
			return err
		}
		delete(c.subs, subID)
		f.Journal(func() { c.subs[subID] = sub })
		return f.EmitEvent(&coordinatorABI, "SubscriptionCanceled", subID, to, sub.balance)
	})
}

// GetSubscription returns a snapshot of the subscription.
func (c *Coordinator) GetSubscription(subID uint64) (Subscription, error) {
	var s Subscription
	err := c.backend.View(func(f *chain.Frame) error {
		sub, ok := c.subs[subID]
		if !ok {
			return ErrInvalidSubscription
		}
		s = Subscription{
			ID:        subID,
			Owner:     sub.owner,
			Balance:   new(big.Int).Set(sub.balance),
			Consumers: append([]common.Address(nil), sub.consumers...),
		}
		return nil
	})
	return s, err
}

// PendingRequest reports whether the request was issued and not fulfilled yet.
func (c *Coordinator) PendingRequest(requestID *big.Int) bool {
	var ok bool
	_ = c.backend.View(func(f *chain.Frame) error {
		if requestID.IsUint64() {
			_, ok = c.requests[requestID.Uint64()]
		}
		return nil
	})
	return ok
}

// RequestRandomWords registers a request for random words on behalf of the
// contract executing in f and returns the request id.
func (c *Coordinator) RequestRandomWords(f *chain.Frame, req Request) (*big.Int, error) {
	var requestID *big.Int
	err := f.Call(c.address, nil, func(f *chain.Frame) error {
		sub, ok := c.subs[req.SubID]
		if !ok {
			return ErrInvalidSubscription
		}
		consumer := f.Sender()
		if !containsAddress(sub.consumers, consumer) {
			return fmt.Errorf("%w: %s for subscription %d", ErrInvalidConsumer, consumer, req.SubID)
		}
		if req.CallbackGasLimit > MaxCallbackGasLimit {
			return fmt.Errorf("%w: %d > %d", ErrGasLimitTooBig, req.CallbackGasLimit, MaxCallbackGasLimit)
		}
		if req.NumWords > MaxNumWords {
			return fmt.Errorf("%w: %d > %d", ErrTooManyWords, req.NumWords, MaxNumWords)
		}

		id, preSeed := c.nextRequestID, c.nextPreSeed
		c.nextRequestID++
		c.nextPreSeed++
		c.requests[id] = pendingRequest{
			subID:            req.SubID,
			callbackGasLimit: req.CallbackGasLimit,
			numWords:         req.NumWords,
			sender:           consumer,
		}
		f.Journal(func() {
			delete(c.requests, id)
			c.nextRequestID = id
			c.nextPreSeed = preSeed
		})
		f.OnCommit(c.metrics.Requests.Inc)

		requestID = new(big.Int).SetUint64(id)
		return f.EmitEvent(&coordinatorABI, "RandomWordsRequested",
			req.KeyHash,
			requestID,
			new(big.Int).SetUint64(preSeed),
			req.SubID,
			req.MinimumRequestConfirmations,
			req.CallbackGasLimit,
			req.NumWords,
			consumer,
		)
	})
	if err != nil {
		return nil, err
	}
	return requestID, nil
}

// FulfillRandomWords answers the request with words derived from the
// request id.
func (c *Coordinator) FulfillRandomWords(ctx context.Context, from common.Address, requestID *big.Int, consumer common.Address) (*types.Receipt, error) {
	return c.FulfillRandomWordsWithOverride(ctx, from, requestID, consumer, nil)
}

// FulfillRandomWordsWithOverride answers the request with the given words.
// If words is empty, words derived from the request id are used.
func (c *Coordinator) FulfillRandomWordsWithOverride(ctx context.Context, from common.Address, requestID *big.Int, consumer common.Address, words []*big.Int) (*types.Receipt, error) {
	var callbackErr error
	receipt, err := c.backend.Transact(ctx, chain.Msg{From: from, To: c.address, Description: "fulfillRandomWords"}, func(f *chain.Frame) error {
		if requestID == nil || !requestID.IsUint64() {
			return ErrNonexistentRequest
		}
		id := requestID.Uint64()
		req, ok := c.requests[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNonexistentRequest, requestID)
		}

		if consumer != req.sender {
			return fmt.Errorf("%w: request %s was made by %s", ErrInvalidConsumer, requestID, req.sender)
		}
		sub, ok := c.subs[req.subID]
		if !ok {
			return ErrInvalidSubscription
		}
		if !containsAddress(sub.consumers, consumer) {
			return fmt.Errorf("%w: %s for subscription %d", ErrInvalidConsumer, consumer, req.subID)
		}

		if len(words) == 0 {
			words = make([]*big.Int, req.numWords)
			for i := range words {
				words[i] = RandomWord(requestID, uint64(i))
			}
		} else if len(words) != int(req.numWords) {
			return fmt.Errorf("%w: got %d, want %d", ErrInvalidRandomWords, len(words), req.numWords)
		}

		delete(c.requests, id)
		f.Journal(func() { c.requests[id] = req })

		cons, ok := c.consumer(consumer)
		if !ok {
			return fmt.Errorf("%w: %s is not registered", ErrInvalidConsumer, consumer)
		}
		callbackErr = f.Call(consumer, nil, func(f *chain.Frame) error {
			return cons.RawFulfillRandomWords(f, new(big.Int).Set(requestID), words)
		})

		payment := c.payment(req.callbackGasLimit)
		if sub.balance.Cmp(payment) < 0 {
			return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, sub.balance, payment)
		}
		oldBalance := sub.balance
		sub.balance = new(big.Int).Sub(oldBalance, payment)
		f.Journal(func() { sub.balance = oldBalance })

		return f.EmitEvent(&coordinatorABI, "RandomWordsFulfilled", requestID, requestID, payment, callbackErr == nil)
	})
	if err != nil {
		c.metrics.FulfillmentErrors.Inc()
		return receipt, err
	}

	c.metrics.Fulfillments.Inc()
	if callbackErr != nil {
		c.metrics.FailedCallbacks.Inc()
		c.logger.Warningf("vrf: callback for request %s to %s failed: %v", requestID, consumer, callbackErr)
		return receipt, &CallbackError{RequestID: requestID, Err: callbackErr}
	}
	c.logger.Debugf("vrf: fulfilled request %s for %s", requestID, consumer)
	return receipt, nil
}

// payment is the LINK charged for a fulfillment. Callback gas is not
// metered, the limit requested by the consumer is billed.
func (c *Coordinator) payment(callbackGasLimit uint32) *big.Int {
	p := new(big.Int).Mul(c.gasPriceLink, new(big.Int).SetUint64(uint64(callbackGasLimit)))
	return p.Add(p, c.baseFee)
}

func (c *Coordinator) ownedSubscription(f *chain.Frame, subID uint64) (*subscription, error) {
	sub, ok := c.subs[subID]
	if !ok {
		return nil, ErrInvalidSubscription
	}
	if sub.owner != f.Sender() {
		return nil, fmt.Errorf("%w: %s", ErrMustBeSubOwner, sub.owner)
	}
	return sub, nil
}

var wordArguments = abi.Arguments{{Type: mustType("uint256")}, {Type: mustType("uint256")}}

// RandomWord returns the i-th word the coordinator derives for a request,
// keccak256(abi.encode(requestId, i)).
func RandomWord(requestID *big.Int, i uint64) *big.Int {
	packed, err := wordArguments.Pack(requestID, new(big.Int).SetUint64(i))
	if err != nil {
		panic(err)
	}
	return new(big.Int).SetBytes(crypto.Keccak256(packed))
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

func containsAddress(addresses []common.Address, a common.Address) bool {
	for _, v := range addresses {
		if v == a {
			return true
		}
	}
	return false
}
