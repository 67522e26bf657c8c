// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package api

import (
	"github.com/ethersphere/raffle/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
)

type (
	RaffleStatusResponse  = raffleStatusResponse
	PlayersResponse       = playersResponse
	PlayerResponse        = playerResponse
	EnterRequest          = enterRequest
	TransactionResponse   = transactionResponse
	CheckUpkeepResponse   = checkUpkeepResponse
	PerformUpkeepResponse = performUpkeepResponse
	HistoryResponse       = historyResponse
	CycleResponse         = cycleResponse
	SubscriptionResponse  = subscriptionResponse
	BlockResponse         = blockResponse
	IncreaseTimeRequest   = increaseTimeRequest
	IncreaseTimeResponse  = increaseTimeResponse
	HealthStatusResponse  = healthStatusResponse
)

var (
	ErrInvalidIndex        = errInvalidIndex
	ErrInvalidFrom         = errInvalidFrom
	ErrInvalidValue        = errInvalidValue
	ErrInvalidSubscription = errInvalidSubscription
	ErrInvalidSeconds      = errInvalidSeconds
	ErrRateLimitExceeded   = errRateLimitExceeded
)

const EventBufferSize = eventBufferSize

type EventHub = eventHub

func NewEventHub(dropped prometheus.Counter) *EventHub {
	return newEventHub(dropped, logging.Noop)
}

func (h *eventHub) Subscribe() (<-chan EventMessage, func()) { return h.subscribe() }

func (h *eventHub) Broadcast(m EventMessage) { h.broadcast(m) }
