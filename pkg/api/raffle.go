// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package api

import (
	"encoding/json"
	"errors"
	"io/ioutil"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethersphere/raffle/pkg/bigint"
	"github.com/ethersphere/raffle/pkg/chain"
	"github.com/ethersphere/raffle/pkg/jsonhttp"
	"github.com/ethersphere/raffle/pkg/logging/httpaccess"
	"github.com/ethersphere/raffle/pkg/raffle"
	"github.com/gorilla/mux"
	"github.com/opentracing/opentracing-go/ext"
)

var (
	errRaffleStatus   = "cannot get raffle status"
	errInvalidIndex   = "invalid player index"
	errInvalidRequest = "invalid request body"
	errInvalidFrom    = "invalid from address"
	errEnterRaffle    = "cannot enter raffle"
	errInvalidValue   = "invalid value"

	errRateLimitExceeded = "rate limit exceeded"
)

type raffleStatusResponse struct {
	Address          common.Address `json:"address"`
	State            raffle.State   `json:"state"`
	EntranceFee      *bigint.BigInt `json:"entranceFee"`
	Interval         uint64         `json:"interval"`
	NumberOfPlayers  uint64         `json:"numberOfPlayers"`
	RecentWinner     common.Address `json:"recentWinner"`
	LastTimestamp    uint64         `json:"lastTimestamp"`
	Balance          *bigint.BigInt `json:"balance"`
	PendingRequestID *bigint.BigInt `json:"pendingRequestId,omitempty"`
	UpkeepNeeded     bool           `json:"upkeepNeeded"`
	NumWords         uint32         `json:"numWords"`
	Confirmations    uint16         `json:"requestConfirmations"`
}

type playersResponse struct {
	Players []common.Address `json:"players"`
}

type playerResponse struct {
	Index  uint64         `json:"index"`
	Player common.Address `json:"player"`
}

type enterRequest struct {
	From  string         `json:"from"`
	Value *bigint.BigInt `json:"value"`
}

type transactionResponse struct {
	TransactionHash common.Hash `json:"transactionHash"`
	BlockNumber     uint64      `json:"blockNumber"`
	Status          uint64      `json:"status"`
}

func newTransactionResponse(receipt *types.Receipt) transactionResponse {
	resp := transactionResponse{
		TransactionHash: receipt.TxHash,
		Status:          receipt.Status,
	}
	if receipt.BlockNumber != nil {
		resp.BlockNumber = receipt.BlockNumber.Uint64()
	}
	return resp
}

func (s *Service) raffleStatusHandler(w http.ResponseWriter, _ *http.Request) {
	info, err := s.raffle.Info()
	if err != nil {
		s.logger.Debugf("api: raffle status: %v", err)
		s.logger.Error("api: cannot get raffle status")
		jsonhttp.InternalServerError(w, errRaffleStatus)
		return
	}

	resp := raffleStatusResponse{
		Address:         info.Address,
		State:           info.State,
		EntranceFee:     bigint.Wrap(info.EntranceFee),
		Interval:        info.Interval,
		NumberOfPlayers: info.NumberOfPlayers,
		RecentWinner:    info.RecentWinner,
		LastTimestamp:   info.LastTimestamp,
		Balance:         bigint.Wrap(info.Balance),
		UpkeepNeeded:    info.UpkeepNeeded,
		NumWords:        raffle.NumWords,
		Confirmations:   raffle.RequestConfirmations,
	}
	if info.PendingRequestID != nil {
		resp.PendingRequestID = bigint.Wrap(info.PendingRequestID)
	}
	jsonhttp.OK(w, resp)
}

func (s *Service) playersHandler(w http.ResponseWriter, _ *http.Request) {
	players := s.raffle.Players()
	if players == nil {
		players = []common.Address{}
	}
	jsonhttp.OK(w, playersResponse{Players: players})
}

func (s *Service) playerHandler(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.ParseUint(mux.Vars(r)["index"], 10, 64)
	if err != nil {
		s.logger.Debugf("api: player: parse index: %v", err)
		jsonhttp.BadRequest(w, errInvalidIndex)
		return
	}

	player, err := s.raffle.Player(index)
	if err != nil {
		if errors.Is(err, raffle.ErrPlayerIndex) {
			jsonhttp.NotFound(w, err)
			return
		}
		s.logger.Debugf("api: player %d: %v", index, err)
		s.logger.Error("api: cannot get player")
		jsonhttp.InternalServerError(w, nil)
		return
	}
	jsonhttp.OK(w, playerResponse{Index: index, Player: player})
}

func (s *Service) enterHandler(w http.ResponseWriter, r *http.Request) {
	span, logger, ctx := s.tracer.StartSpanFromContext(r.Context(), "raffle-enter", s.logger)
	defer span.Finish()

	body, err := ioutil.ReadAll(r.Body)
	if err != nil {
		if jsonhttp.HandleBodyReadError(err, w) {
			return
		}
		logger.Debugf("api: enter: read body: %v", err)
		jsonhttp.InternalServerError(w, nil)
		return
	}

	var req enterRequest
	if err := json.Unmarshal(body, &req); err != nil {
		logger.Debugf("api: enter: unmarshal: %v", err)
		jsonhttp.BadRequest(w, errInvalidRequest)
		return
	}
	if !common.IsHexAddress(req.From) {
		jsonhttp.BadRequest(w, errInvalidFrom)
		return
	}
	from := common.HexToAddress(req.From)
	httpaccess.SetAccount(r, from.Hex())
	span.SetTag("from", from.Hex())
	value := req.Value.Unwrap()
	if value == nil {
		value = new(big.Int)
	}
	if value.Sign() < 0 {
		logger.Debugf("api: enter %s: negative value %s", from, value)
		jsonhttp.BadRequest(w, errInvalidValue)
		return
	}

	receipt, err := s.raffle.Enter(ctx, from, value)
	if err != nil {
		switch {
		case errors.Is(err, raffle.ErrNotOpen),
			errors.Is(err, raffle.ErrInsufficientPayment),
			errors.Is(err, chain.ErrInsufficientFunds),
			errors.Is(err, chain.ErrNegativeValue):
			logger.Debugf("api: enter %s reverted: %v", from, err)
			jsonhttp.BadRequest(w, err)
		default:
			ext.Error.Set(span, true)
			logger.Debugf("api: enter %s: %v", from, err)
			logger.Error("api: cannot enter raffle")
			jsonhttp.InternalServerError(w, errEnterRaffle)
		}
		return
	}
	span.SetTag("tx", receipt.TxHash.Hex())
	jsonhttp.OK(w, newTransactionResponse(receipt))
}
