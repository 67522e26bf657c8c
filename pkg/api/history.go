// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package api

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethersphere/raffle/pkg/bigint"
	"github.com/ethersphere/raffle/pkg/jsonhttp"
)

var errHistory = "cannot get raffle history"

type cycleResponse struct {
	Round       uint64           `json:"round"`
	RequestID   *bigint.BigInt   `json:"requestId"`
	Winner      common.Address   `json:"winner"`
	Prize       *bigint.BigInt   `json:"prize"`
	Players     []common.Address `json:"players"`
	BlockNumber uint64           `json:"blockNumber"`
	Timestamp   uint64           `json:"timestamp"`
}

type historyResponse struct {
	Cycles []cycleResponse `json:"cycles"`
}

func (s *Service) historyHandler(w http.ResponseWriter, _ *http.Request) {
	cycles, err := s.history.Cycles()
	if err != nil {
		s.logger.Debugf("api: history: %v", err)
		s.logger.Error("api: cannot get raffle history")
		jsonhttp.InternalServerError(w, errHistory)
		return
	}

	resp := historyResponse{Cycles: make([]cycleResponse, 0, len(cycles))}
	for _, c := range cycles {
		resp.Cycles = append(resp.Cycles, cycleResponse{
			Round:       c.Round,
			RequestID:   bigint.Wrap(c.RequestID),
			Winner:      c.Winner,
			Prize:       bigint.Wrap(c.Prize),
			Players:     c.Players,
			BlockNumber: c.BlockNumber,
			Timestamp:   c.Timestamp,
		})
	}
	jsonhttp.OK(w, resp)
}
