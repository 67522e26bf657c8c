// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package api_test

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethersphere/raffle/pkg/api"
	"github.com/ethersphere/raffle/pkg/chain"
	"github.com/ethersphere/raffle/pkg/keeper"
	"github.com/ethersphere/raffle/pkg/logging"
	"github.com/ethersphere/raffle/pkg/raffle"
	"github.com/ethersphere/raffle/pkg/raffle/history"
	"github.com/ethersphere/raffle/pkg/statestore/mock"
	"github.com/ethersphere/raffle/pkg/vrf"
	"github.com/prometheus/client_golang/prometheus"
	"resenje.org/web"
)

const interval = 30

var (
	entranceFee = big.NewInt(1e16)
	twoLink     = new(big.Int).Mul(big.NewInt(2), big.NewInt(1e18))
	genesisTime = time.Unix(1_700_000_000, 0)
)

type testServerOptions struct {
	DevMode        bool
	Keeper         api.Keeper
	Registry       *prometheus.Registry
	EnterRateLimit time.Duration
}

type testServer struct {
	client      *http.Client
	url         string
	service     *api.Service
	backend     *chain.Backend
	coordinator *vrf.Coordinator
	raffle      *raffle.Raffle
	history     *history.History
	subID       uint64
	deployer    common.Address
	players     []common.Address
}

func newTestServer(t *testing.T, o testServerOptions) *testServer {
	t.Helper()

	ctx := context.Background()
	accounts := chain.DevAccounts(5)
	backend := chain.New(
		chain.WithClock(func() time.Time { return genesisTime }),
		chain.WithAlloc(chain.DevAlloc(accounts)),
	)
	deployer := accounts[0].Address

	coordinator, _, err := vrf.Deploy(ctx, backend, logging.Noop, deployer, vrf.DefaultBaseFee, vrf.DefaultGasPriceLink)
	if err != nil {
		t.Fatal(err)
	}
	subID, _, err := coordinator.CreateSubscription(ctx, deployer)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := coordinator.FundSubscription(ctx, deployer, subID, twoLink); err != nil {
		t.Fatal(err)
	}
	r, _, err := raffle.Deploy(ctx, backend, logging.Noop, deployer, raffle.Params{
		Coordinator:      coordinator,
		EntranceFee:      entranceFee,
		SubscriptionID:   subID,
		CallbackGasLimit: 500000,
		Interval:         interval,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := coordinator.AddConsumer(ctx, deployer, subID, r.Address()); err != nil {
		t.Fatal(err)
	}

	h, err := history.New(mock.NewStateStore(), logging.Noop)
	if err != nil {
		t.Fatal(err)
	}
	r.AddObserver(h)

	s, err := api.New(api.Options{
		Raffle:          r,
		Coordinator:     coordinator,
		Chain:           backend,
		History:         h,
		Keeper:          o.Keeper,
		Operator:        deployer,
		DevMode:         o.DevMode,
		EnterRateLimit:  o.EnterRateLimit,
		MetricsRegistry: o.Registry,
		Logger:          logging.Noop,
	})
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(s)
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Error(err)
		}
		ts.Close()
	})

	var players []common.Address
	for _, a := range accounts[1:] {
		players = append(players, a.Address)
	}

	return &testServer{
		client: &http.Client{
			Transport: web.RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
				u, err := url.Parse(ts.URL + r.URL.String())
				if err != nil {
					return nil, err
				}
				r.URL = u
				return ts.Client().Transport.RoundTrip(r)
			}),
		},
		url:         ts.URL,
		service:     s,
		backend:     backend,
		coordinator: coordinator,
		raffle:      r,
		history:     h,
		subID:       subID,
		deployer:    deployer,
		players:     players,
	}
}

func (ts *testServer) enter(t *testing.T, player common.Address) {
	t.Helper()

	if _, err := ts.raffle.Enter(context.Background(), player, entranceFee); err != nil {
		t.Fatal(err)
	}
}

func (ts *testServer) passInterval() {
	ts.backend.IncreaseTime((interval + 1) * time.Second)
	ts.backend.Mine()
}

type keeperMock struct {
	status keeper.Status
}

func (m keeperMock) Status() keeper.Status { return m.status }
