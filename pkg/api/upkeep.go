// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package api

import (
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethersphere/raffle/pkg/bigint"
	"github.com/ethersphere/raffle/pkg/jsonhttp"
	"github.com/ethersphere/raffle/pkg/keeper"
	"github.com/ethersphere/raffle/pkg/logging/httpaccess"
	"github.com/ethersphere/raffle/pkg/raffle"
	"github.com/opentracing/opentracing-go/ext"
)

var (
	errCheckUpkeep   = "cannot check upkeep"
	errPerformUpkeep = "cannot perform upkeep"
)

type checkUpkeepResponse struct {
	UpkeepNeeded bool           `json:"upkeepNeeded"`
	PerformData  hexutil.Bytes  `json:"performData"`
	Keeper       *keeper.Status `json:"keeper,omitempty"`
}

type performUpkeepResponse struct {
	transactionResponse
	RequestID *bigint.BigInt `json:"requestId"`
}

func (s *Service) checkUpkeepHandler(w http.ResponseWriter, _ *http.Request) {
	needed, performData, err := s.raffle.CheckUpkeep(nil)
	if err != nil {
		s.logger.Debugf("api: check upkeep: %v", err)
		s.logger.Error("api: cannot check upkeep")
		jsonhttp.InternalServerError(w, errCheckUpkeep)
		return
	}

	resp := checkUpkeepResponse{
		UpkeepNeeded: needed,
		PerformData:  performData,
	}
	if s.keeper != nil {
		status := s.keeper.Status()
		resp.Keeper = &status
	}
	jsonhttp.OK(w, resp)
}

func (s *Service) performUpkeepHandler(w http.ResponseWriter, r *http.Request) {
	span, logger, ctx := s.tracer.StartSpanFromContext(r.Context(), "raffle-perform-upkeep", s.logger)
	defer span.Finish()

	httpaccess.SetAccount(r, s.operator.Hex())
	requestID, receipt, err := s.raffle.PerformUpkeep(ctx, s.operator, []byte{})
	if err != nil {
		var notNeeded *raffle.UpkeepNotNeededError
		if errors.As(err, &notNeeded) {
			logger.Debugf("api: perform upkeep: %v", err)
			jsonhttp.BadRequest(w, err)
			return
		}
		ext.Error.Set(span, true)
		logger.Debugf("api: perform upkeep: %v", err)
		logger.Error("api: cannot perform upkeep")
		jsonhttp.InternalServerError(w, errPerformUpkeep)
		return
	}
	if requestID != nil {
		span.SetTag("request_id", requestID.String())
	}
	jsonhttp.OK(w, performUpkeepResponse{
		transactionResponse: newTransactionResponse(receipt),
		RequestID:           bigint.Wrap(requestID),
	})
}
