// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package api

import (
	"encoding/json"
	"errors"
	"io/ioutil"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethersphere/raffle/pkg/bigint"
	"github.com/ethersphere/raffle/pkg/jsonhttp"
	"github.com/ethersphere/raffle/pkg/vrf"
	"github.com/gorilla/mux"
)

var (
	errInvalidSubscription = "invalid subscription id"
	errSubscription        = "cannot get subscription"
	errBlockNumber         = "cannot get block number"
	errInvalidSeconds      = "invalid seconds"
)

type subscriptionResponse struct {
	ID        uint64           `json:"id"`
	Owner     common.Address   `json:"owner"`
	Balance   *bigint.BigInt   `json:"balance"`
	Consumers []common.Address `json:"consumers"`
}

type blockResponse struct {
	Number    uint64      `json:"number"`
	Timestamp uint64      `json:"timestamp,omitempty"`
	Hash      common.Hash `json:"hash,omitempty"`
}

type increaseTimeRequest struct {
	Seconds uint64 `json:"seconds"`
}

type increaseTimeResponse struct {
	Offset uint64 `json:"offset"`
}

func (s *Service) subscriptionHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		s.logger.Debugf("api: subscription: parse id: %v", err)
		jsonhttp.BadRequest(w, errInvalidSubscription)
		return
	}

	sub, err := s.coordinator.GetSubscription(id)
	if err != nil {
		if errors.Is(err, vrf.ErrInvalidSubscription) {
			jsonhttp.NotFound(w, err)
			return
		}
		s.logger.Debugf("api: subscription %d: %v", id, err)
		s.logger.Error("api: cannot get subscription")
		jsonhttp.InternalServerError(w, errSubscription)
		return
	}

	consumers := sub.Consumers
	if consumers == nil {
		consumers = []common.Address{}
	}
	jsonhttp.OK(w, subscriptionResponse{
		ID:        sub.ID,
		Owner:     sub.Owner,
		Balance:   bigint.Wrap(sub.Balance),
		Consumers: consumers,
	})
}

func (s *Service) blockNumberHandler(w http.ResponseWriter, r *http.Request) {
	n, err := s.chain.BlockNumber(r.Context())
	if err != nil {
		s.logger.Debugf("api: block number: %v", err)
		jsonhttp.InternalServerError(w, errBlockNumber)
		return
	}
	jsonhttp.OK(w, blockResponse{Number: n})
}

func (s *Service) increaseTimeHandler(w http.ResponseWriter, r *http.Request) {
	body, err := ioutil.ReadAll(r.Body)
	if err != nil {
		if jsonhttp.HandleBodyReadError(err, w) {
			return
		}
		s.logger.Debugf("api: increase time: read body: %v", err)
		jsonhttp.InternalServerError(w, nil)
		return
	}

	var req increaseTimeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.logger.Debugf("api: increase time: unmarshal: %v", err)
		jsonhttp.BadRequest(w, errInvalidRequest)
		return
	}
	if req.Seconds == 0 {
		jsonhttp.BadRequest(w, errInvalidSeconds)
		return
	}

	offset := s.chain.IncreaseTime(time.Duration(req.Seconds) * time.Second)
	s.logger.Debugf("api: chain time increased by %ds", req.Seconds)
	jsonhttp.OK(w, increaseTimeResponse{Offset: uint64(offset / time.Second)})
}

func (s *Service) mineHandler(w http.ResponseWriter, _ *http.Request) {
	h := s.chain.Mine()
	jsonhttp.OK(w, blockResponse{
		Number:    h.Number,
		Timestamp: h.Time,
		Hash:      h.Hash,
	})
}
