// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package keeper_test

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethersphere/raffle/pkg/chain"
	"github.com/ethersphere/raffle/pkg/keeper"
	"github.com/ethersphere/raffle/pkg/logging"
	"github.com/ethersphere/raffle/pkg/raffle"
	"github.com/ethersphere/raffle/pkg/vrf"
)

var keeperAddress = common.HexToAddress("0x1111111111111111111111111111111111111111")

type upkeeperMock struct {
	mu       sync.Mutex
	needed   bool
	checkErr error
	errs     []error
	performs int
	from     common.Address
}

func (m *upkeeperMock) CheckUpkeep([]byte) (bool, []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.needed, []byte{}, m.checkErr
}

func (m *upkeeperMock) PerformUpkeep(_ context.Context, from common.Address, _ []byte) (*big.Int, *types.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.performs++
	m.from = from
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return nil, nil, err
		}
	}
	m.needed = false
	return big.NewInt(int64(m.performs)), &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
}

func (m *upkeeperMock) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.performs
}

func TestPollNotNeeded(t *testing.T) {
	t.Parallel()

	m := &upkeeperMock{}
	a := keeper.New(m, keeperAddress, logging.Noop, nil)

	performed, err := a.Poll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if performed {
		t.Fatal("performed upkeep that was not needed")
	}
	if m.count() != 0 {
		t.Fatalf("got %d performs, want 0", m.count())
	}

	s := a.Status()
	if s.Checks != 1 {
		t.Fatalf("got %d checks, want 1", s.Checks)
	}
	if s.LastCheck.IsZero() {
		t.Fatal("last check not recorded")
	}
	if !s.LastPerform.IsZero() {
		t.Fatal("last perform recorded without a perform")
	}
}

func TestPollPerforms(t *testing.T) {
	t.Parallel()

	m := &upkeeperMock{needed: true}
	a := keeper.New(m, keeperAddress, logging.Noop, nil)

	performed, err := a.Poll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !performed {
		t.Fatal("upkeep not performed")
	}
	if m.from != keeperAddress {
		t.Fatalf("got sender %s, want %s", m.from, keeperAddress)
	}

	// the upkeep is no longer needed
	performed, err = a.Poll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if performed {
		t.Fatal("performed upkeep twice")
	}

	s := a.Status()
	if s.Checks != 2 || s.Performs != 1 || s.FailedPerforms != 0 {
		t.Fatalf("got status %+v", s)
	}
}

func TestPollCheckError(t *testing.T) {
	t.Parallel()

	errCheck := errors.New("check failed")
	m := &upkeeperMock{needed: true, checkErr: errCheck}
	a := keeper.New(m, keeperAddress, logging.Noop, nil)

	if _, err := a.Poll(context.Background()); !errors.Is(err, errCheck) {
		t.Fatalf("got error %v, want %v", err, errCheck)
	}
	if m.count() != 0 {
		t.Fatalf("got %d performs, want 0", m.count())
	}
}

func TestPollRetryLimited(t *testing.T) {
	t.Parallel()

	errPerform := errors.New("reverted")
	m := &upkeeperMock{needed: true, errs: []error{errPerform, nil}}
	a := keeper.New(m, keeperAddress, logging.Noop, &keeper.Options{
		RetryEvery: time.Hour,
	})

	if _, err := a.Poll(context.Background()); !errors.Is(err, errPerform) {
		t.Fatalf("got error %v, want %v", err, errPerform)
	}
	s := a.Status()
	if s.FailedPerforms != 1 {
		t.Fatalf("got %d failed performs, want 1", s.FailedPerforms)
	}
	if s.LastError != errPerform.Error() {
		t.Fatalf("got last error %q, want %q", s.LastError, errPerform.Error())
	}

	// retry is not allowed before the retry interval passes
	performed, err := a.Poll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if performed {
		t.Fatal("retried before the retry interval")
	}
	if m.count() != 1 {
		t.Fatalf("got %d performs, want 1", m.count())
	}
}

func TestPollRetry(t *testing.T) {
	t.Parallel()

	errPerform := errors.New("reverted")
	m := &upkeeperMock{needed: true, errs: []error{errPerform, nil}}
	a := keeper.New(m, keeperAddress, logging.Noop, &keeper.Options{
		RetryEvery: time.Millisecond,
	})

	if _, err := a.Poll(context.Background()); !errors.Is(err, errPerform) {
		t.Fatalf("got error %v, want %v", err, errPerform)
	}

	time.Sleep(10 * time.Millisecond)

	performed, err := a.Poll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !performed {
		t.Fatal("upkeep not retried")
	}
	s := a.Status()
	if s.Performs != 1 || s.FailedPerforms != 1 || s.LastError != "" {
		t.Fatalf("got status %+v", s)
	}
}

func TestAgentStartClose(t *testing.T) {
	t.Parallel()

	m := &upkeeperMock{needed: true}
	a := keeper.New(m, keeperAddress, logging.Noop, &keeper.Options{
		PollInterval: 5 * time.Millisecond,
	})
	a.Start()

	deadline := time.Now().Add(5 * time.Second)
	for m.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("upkeep not performed by the running agent")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

// TestAgentRaffleCycle runs a full cycle on a development chain: the agent
// closes the cycle and the fulfiller picks the winner.
func TestAgentRaffleCycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	accounts := chain.DevAccounts(3)
	backend := chain.New(
		chain.WithClock(func() time.Time { return time.Unix(1_700_000_000, 0) }),
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
	if _, err := coordinator.FundSubscription(ctx, deployer, subID, new(big.Int).Mul(big.NewInt(2), big.NewInt(1e18))); err != nil {
		t.Fatal(err)
	}
	r, _, err := raffle.Deploy(ctx, backend, logging.Noop, deployer, raffle.Params{
		Coordinator:      coordinator,
		EntranceFee:      big.NewInt(1e16),
		SubscriptionID:   subID,
		CallbackGasLimit: 500000,
		Interval:         30,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := coordinator.AddConsumer(ctx, deployer, subID, r.Address()); err != nil {
		t.Fatal(err)
	}

	fulfiller, err := vrf.NewFulfiller(backend, coordinator, deployer, logging.Noop, &vrf.FulfillerOptions{
		PollEvery:         5 * time.Millisecond,
		MineConfirmations: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	fulfiller.Start()
	defer fulfiller.Close()

	player := accounts[1].Address
	if _, err := r.Enter(ctx, player, big.NewInt(1e16)); err != nil {
		t.Fatal(err)
	}

	a := keeper.New(r, deployer, logging.Noop, nil)

	performed, err := a.Poll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if performed {
		t.Fatal("performed upkeep before the interval passed")
	}

	backend.IncreaseTime(31 * time.Second)
	backend.Mine()

	performed, err = a.Poll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !performed {
		t.Fatal("upkeep not performed")
	}

	deadline := time.Now().Add(5 * time.Second)
	for r.RecentWinner() != player {
		if time.Now().After(deadline) {
			t.Fatal("winner not picked")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if r.State() != raffle.StateOpen {
		t.Fatalf("got state %s, want %s", r.State(), raffle.StateOpen)
	}
}
