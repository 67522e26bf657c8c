// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package raffle_test

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
	"github.com/ethersphere/raffle/pkg/logging"
	"github.com/ethersphere/raffle/pkg/raffle"
	"github.com/ethersphere/raffle/pkg/vrf"
	"github.com/google/go-cmp/cmp"
)

const interval = 30

var (
	entranceFee = big.NewInt(1e16) // 0.01 ether
	gasLane     = common.HexToHash("0x474e34a077df58807dbe9c96d3c009b23b3c6d0cce433e59bbf5b34f823bc56c")
	twoLink     = new(big.Int).Mul(big.NewInt(2), big.NewInt(1e18))
)

type recorder struct {
	mu        sync.Mutex
	entered   []raffle.EnteredEvent
	requested []raffle.WinnerRequestedEvent
	picked    []raffle.WinnerPickedEvent
}

func (r *recorder) RaffleEntered(e raffle.EnteredEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entered = append(r.entered, e)
}

func (r *recorder) WinnerRequested(e raffle.WinnerRequestedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requested = append(r.requested, e)
}

func (r *recorder) WinnerPicked(e raffle.WinnerPickedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.picked = append(r.picked, e)
}

type fixture struct {
	backend     *chain.Backend
	coordinator *vrf.Coordinator
	raffle      *raffle.Raffle
	accounts    []chain.Account
	deployer    common.Address
	player      common.Address
	observer    *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ctx := context.Background()
	accounts := chain.DevAccounts(6)
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
	if _, err := coordinator.FundSubscription(ctx, deployer, subID, twoLink); err != nil {
		t.Fatal(err)
	}

	r, _, err := raffle.Deploy(ctx, backend, logging.Noop, deployer, raffle.Params{
		Coordinator:      coordinator,
		EntranceFee:      entranceFee,
		GasLane:          gasLane,
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

	observer := &recorder{}
	r.AddObserver(observer)

	return &fixture{
		backend:     backend,
		coordinator: coordinator,
		raffle:      r,
		accounts:    accounts,
		deployer:    deployer,
		player:      accounts[1].Address,
		observer:    observer,
	}
}

func (fx *fixture) enter(t *testing.T, from common.Address) {
	t.Helper()

	if _, err := fx.raffle.Enter(context.Background(), from, entranceFee); err != nil {
		t.Fatal(err)
	}
}

func (fx *fixture) passInterval() {
	fx.backend.IncreaseTime((interval + 1) * time.Second)
	fx.backend.Mine()
}

func (fx *fixture) performUpkeep(t *testing.T) (*big.Int, *types.Receipt) {
	t.Helper()

	id, receipt, err := fx.raffle.PerformUpkeep(context.Background(), fx.deployer, []byte{})
	if err != nil {
		t.Fatal(err)
	}
	return id, receipt
}

func (fx *fixture) balance(t *testing.T, a common.Address) *big.Int {
	t.Helper()

	b, err := fx.backend.BalanceAt(context.Background(), a)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestConstructor(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)

	if s := fx.raffle.State(); s != raffle.StateOpen {
		t.Fatalf("got state %s, want %s", s, raffle.StateOpen)
	}
	if i := fx.raffle.Interval(); i != interval {
		t.Fatalf("got interval %d, want %d", i, interval)
	}
	if fee := fx.raffle.EntranceFee(); fee.Cmp(entranceFee) != 0 {
		t.Fatalf("got entrance fee %s, want %s", fee, entranceFee)
	}
	if fx.raffle.NumWords() != 1 || fx.raffle.RequestConfirmations() != 3 {
		t.Fatalf("got %d words and %d confirmations", fx.raffle.NumWords(), fx.raffle.RequestConfirmations())
	}
	if fx.raffle.LastTimestamp() == 0 {
		t.Fatal("last timestamp not initialized")
	}
	if fx.raffle.PendingRequestID() != nil {
		t.Fatal("unexpected pending request")
	}
}

func TestEnter(t *testing.T) {
	t.Parallel()

	t.Run("insufficient payment", func(t *testing.T) {
		t.Parallel()

		fx := newFixture(t)
		ctx := context.Background()

		for _, v := range []*big.Int{nil, big.NewInt(0), new(big.Int).Sub(entranceFee, big.NewInt(1))} {
			receipt, err := fx.raffle.Enter(ctx, fx.player, v)
			if !errors.Is(err, raffle.ErrInsufficientPayment) {
				t.Fatalf("value %v: got error %v, want %v", v, err, raffle.ErrInsufficientPayment)
			}
			if receipt.Status != types.ReceiptStatusFailed {
				t.Fatalf("value %v: transaction not reverted", v)
			}
		}
		if n := fx.raffle.NumberOfPlayers(); n != 0 {
			t.Fatalf("got %d players, want 0", n)
		}
		if b := fx.raffle.Balance(); b.Sign() != 0 {
			t.Fatalf("got balance %s, want 0", b)
		}
		if len(fx.observer.entered) != 0 {
			t.Fatal("observer notified of reverted entry")
		}
	})

	t.Run("records players in entry order", func(t *testing.T) {
		t.Parallel()

		fx := newFixture(t)

		var want []common.Address
		for _, a := range []common.Address{fx.accounts[2].Address, fx.player, fx.accounts[2].Address, fx.deployer} {
			fx.enter(t, a)
			want = append(want, a)
			if n := fx.raffle.NumberOfPlayers(); n != uint64(len(want)) {
				t.Fatalf("got %d players, want %d", n, len(want))
			}
		}
		if diff := cmp.Diff(want, fx.raffle.Players()); diff != "" {
			t.Fatalf("players mismatch (-want +got):\n%s", diff)
		}

		p, err := fx.raffle.Player(1)
		if err != nil {
			t.Fatal(err)
		}
		if p != fx.player {
			t.Fatalf("got player %s, want %s", p, fx.player)
		}
		if _, err := fx.raffle.Player(4); !errors.Is(err, raffle.ErrPlayerIndex) {
			t.Fatalf("got error %v, want %v", err, raffle.ErrPlayerIndex)
		}

		wantBalance := new(big.Int).Mul(entranceFee, big.NewInt(4))
		if b := fx.raffle.Balance(); b.Cmp(wantBalance) != 0 {
			t.Fatalf("got balance %s, want %s", b, wantBalance)
		}
	})

	t.Run("overpaying is accepted", func(t *testing.T) {
		t.Parallel()

		fx := newFixture(t)
		value := new(big.Int).Mul(entranceFee, big.NewInt(3))

		if _, err := fx.raffle.Enter(context.Background(), fx.player, value); err != nil {
			t.Fatal(err)
		}
		if b := fx.raffle.Balance(); b.Cmp(value) != 0 {
			t.Fatalf("got balance %s, want %s", b, value)
		}
	})

	t.Run("emits event", func(t *testing.T) {
		t.Parallel()

		fx := newFixture(t)

		receipt, err := fx.raffle.Enter(context.Background(), fx.player, entranceFee)
		if err != nil {
			t.Fatal(err)
		}
		player, err := raffle.FindRaffleJoined(receipt, fx.raffle.Address())
		if err != nil {
			t.Fatal(err)
		}
		if player != fx.player {
			t.Fatalf("got logged player %s, want %s", player, fx.player)
		}
		if len(fx.observer.entered) != 1 || fx.observer.entered[0].Player != fx.player {
			t.Fatalf("unexpected observed entries %v", fx.observer.entered)
		}
		if raffle.LogName(*receipt.Logs[0]) != "RaffleJoined" {
			t.Fatalf("got log name %q", raffle.LogName(*receipt.Logs[0]))
		}
	})

	t.Run("not open while calculating", func(t *testing.T) {
		t.Parallel()

		fx := newFixture(t)
		fx.enter(t, fx.player)
		fx.passInterval()
		fx.performUpkeep(t)

		if _, err := fx.raffle.Enter(context.Background(), fx.player, entranceFee); !errors.Is(err, raffle.ErrNotOpen) {
			t.Fatalf("got error %v, want %v", err, raffle.ErrNotOpen)
		}
		if n := fx.raffle.NumberOfPlayers(); n != 1 {
			t.Fatalf("got %d players, want 1", n)
		}
	})
}

func TestCheckUpkeep(t *testing.T) {
	t.Parallel()

	t.Run("false without players", func(t *testing.T) {
		t.Parallel()

		fx := newFixture(t)
		fx.passInterval()

		needed, performData, err := fx.raffle.CheckUpkeep([]byte{})
		if err != nil {
			t.Fatal(err)
		}
		if needed {
			t.Fatal("upkeep needed without players")
		}
		if len(performData) != 0 {
			t.Fatalf("got perform data %x, want empty", performData)
		}
	})

	t.Run("false without balance", func(t *testing.T) {
		t.Parallel()

		fx := newFixture(t)
		fx.enter(t, fx.player)
		fx.backend.SetBalance(fx.raffle.Address(), big.NewInt(0))
		fx.passInterval()

		if needed, _, _ := fx.raffle.CheckUpkeep(nil); needed {
			t.Fatal("upkeep needed without balance")
		}
	})

	t.Run("false when not open", func(t *testing.T) {
		t.Parallel()

		fx := newFixture(t)
		fx.enter(t, fx.player)
		fx.passInterval()
		fx.performUpkeep(t)

		if s := fx.raffle.State(); s != raffle.StateCalculating {
			t.Fatalf("got state %s, want %s", s, raffle.StateCalculating)
		}
		if needed, _, _ := fx.raffle.CheckUpkeep(nil); needed {
			t.Fatal("upkeep needed while calculating")
		}
	})

	t.Run("false before interval", func(t *testing.T) {
		t.Parallel()

		fx := newFixture(t)
		fx.enter(t, fx.player)
		fx.backend.IncreaseTime((interval - 5) * time.Second)
		fx.backend.Mine()

		if needed, _, _ := fx.raffle.CheckUpkeep([]byte("0x")); needed {
			t.Fatal("upkeep needed before interval passed")
		}
	})

	t.Run("true when all conditions hold", func(t *testing.T) {
		t.Parallel()

		fx := newFixture(t)
		fx.enter(t, fx.player)
		fx.passInterval()

		needed, _, err := fx.raffle.CheckUpkeep([]byte("0x"))
		if err != nil {
			t.Fatal(err)
		}
		if !needed {
			t.Fatal("upkeep not needed")
		}
		info, err := fx.raffle.Info()
		if err != nil {
			t.Fatal(err)
		}
		if !info.UpkeepNeeded || info.NumberOfPlayers != 1 {
			t.Fatalf("unexpected info %+v", info)
		}
	})
}

func TestPerformUpkeep(t *testing.T) {
	t.Parallel()

	t.Run("reverts when not needed", func(t *testing.T) {
		t.Parallel()

		fx := newFixture(t)

		_, receipt, err := fx.raffle.PerformUpkeep(context.Background(), fx.deployer, nil)
		if !errors.Is(err, raffle.ErrUpkeepNotNeeded) {
			t.Fatalf("got error %v, want %v", err, raffle.ErrUpkeepNotNeeded)
		}
		var upkeepErr *raffle.UpkeepNotNeededError
		if !errors.As(err, &upkeepErr) {
			t.Fatalf("got error %T, want *UpkeepNotNeededError", err)
		}
		if upkeepErr.Balance.Sign() != 0 || upkeepErr.NumPlayers != 0 || upkeepErr.State != raffle.StateOpen {
			t.Fatalf("unexpected diagnostics %+v", upkeepErr)
		}
		if receipt.Status != types.ReceiptStatusFailed {
			t.Fatal("transaction not reverted")
		}
	})

	t.Run("cannot run twice", func(t *testing.T) {
		t.Parallel()

		fx := newFixture(t)
		fx.enter(t, fx.player)
		fx.passInterval()
		fx.performUpkeep(t)

		_, _, err := fx.raffle.PerformUpkeep(context.Background(), fx.deployer, nil)
		var upkeepErr *raffle.UpkeepNotNeededError
		if !errors.As(err, &upkeepErr) {
			t.Fatalf("got error %v, want *UpkeepNotNeededError", err)
		}
		if upkeepErr.State != raffle.StateCalculating || upkeepErr.NumPlayers != 1 {
			t.Fatalf("unexpected diagnostics %+v", upkeepErr)
		}
		if upkeepErr.Balance.Cmp(entranceFee) != 0 {
			t.Fatalf("got diagnostic balance %s, want %s", upkeepErr.Balance, entranceFee)
		}
	})

	t.Run("updates state, emits event and requests randomness", func(t *testing.T) {
		t.Parallel()

		fx := newFixture(t)
		fx.enter(t, fx.player)
		fx.passInterval()

		id, receipt := fx.performUpkeep(t)
		if id.Sign() <= 0 {
			t.Fatalf("got request id %s, want positive", id)
		}
		if s := fx.raffle.State(); s != raffle.StateCalculating {
			t.Fatalf("got state %s, want %s", s, raffle.StateCalculating)
		}
		if got := fx.raffle.PendingRequestID(); got.Cmp(id) != 0 {
			t.Fatalf("got pending request %s, want %s", got, id)
		}

		// the coordinator logs the request before the raffle does
		if len(receipt.Logs) != 2 {
			t.Fatalf("got %d logs, want 2", len(receipt.Logs))
		}
		if receipt.Logs[0].Address != fx.coordinator.Address() {
			t.Fatal("first log is not from the coordinator")
		}
		logged, err := raffle.FindRequestedRaffleWinner(receipt, fx.raffle.Address())
		if err != nil {
			t.Fatal(err)
		}
		if logged.Cmp(id) != 0 {
			t.Fatalf("got logged request %s, want %s", logged, id)
		}
		if !fx.coordinator.PendingRequest(id) {
			t.Fatal("coordinator has no pending request")
		}
		if len(fx.observer.requested) != 1 || fx.observer.requested[0].RequestID.Cmp(id) != 0 {
			t.Fatalf("unexpected observed requests %v", fx.observer.requested)
		}
	})

	t.Run("reverts when the coordinator rejects the request", func(t *testing.T) {
		t.Parallel()

		fx := newFixture(t)
		ctx := context.Background()
		fx.enter(t, fx.player)
		fx.passInterval()

		if _, err := fx.coordinator.RemoveConsumer(ctx, fx.deployer, 1, fx.raffle.Address()); err != nil {
			t.Fatal(err)
		}
		if _, _, err := fx.raffle.PerformUpkeep(ctx, fx.deployer, nil); !errors.Is(err, vrf.ErrInvalidConsumer) {
			t.Fatalf("got error %v, want %v", err, vrf.ErrInvalidConsumer)
		}
		if s := fx.raffle.State(); s != raffle.StateOpen {
			t.Fatalf("got state %s, want %s", s, raffle.StateOpen)
		}
		if len(fx.observer.requested) != 0 {
			t.Fatal("observer notified of reverted upkeep")
		}
	})
}

func TestFulfillRandomWords(t *testing.T) {
	t.Parallel()

	t.Run("only after perform upkeep", func(t *testing.T) {
		t.Parallel()

		fx := newFixture(t)
		ctx := context.Background()
		fx.enter(t, fx.player)
		fx.passInterval()

		for _, id := range []int64{0, 1} {
			_, err := fx.coordinator.FulfillRandomWords(ctx, fx.deployer, big.NewInt(id), fx.raffle.Address())
			if !errors.Is(err, vrf.ErrNonexistentRequest) {
				t.Fatalf("request %d: got error %v, want %v", id, err, vrf.ErrNonexistentRequest)
			}
		}
	})

	t.Run("only coordinator can fulfill", func(t *testing.T) {
		t.Parallel()

		fx := newFixture(t)
		fx.enter(t, fx.player)
		fx.passInterval()
		id, _ := fx.performUpkeep(t)

		_, err := fx.backend.Transact(context.Background(), chain.Msg{From: fx.player, To: fx.raffle.Address()}, func(f *chain.Frame) error {
			return fx.raffle.RawFulfillRandomWords(f, id, []*big.Int{big.NewInt(0)})
		})
		if !errors.Is(err, raffle.ErrOnlyCoordinatorCanFulfill) {
			t.Fatalf("got error %v, want %v", err, raffle.ErrOnlyCoordinatorCanFulfill)
		}
		if s := fx.raffle.State(); s != raffle.StateCalculating {
			t.Fatalf("got state %s, want %s", s, raffle.StateCalculating)
		}
	})

	t.Run("single player wins everything", func(t *testing.T) {
		t.Parallel()

		fx := newFixture(t)
		ctx := context.Background()
		fx.enter(t, fx.player)
		fx.passInterval()
		startingTimestamp := fx.raffle.LastTimestamp()
		id, _ := fx.performUpkeep(t)
		startingBalance := fx.balance(t, fx.player)

		receipt, err := fx.coordinator.FulfillRandomWords(ctx, fx.deployer, id, fx.raffle.Address())
		if err != nil {
			t.Fatal(err)
		}

		if w := fx.raffle.RecentWinner(); w != fx.player {
			t.Fatalf("got winner %s, want %s", w, fx.player)
		}
		if n := fx.raffle.NumberOfPlayers(); n != 0 {
			t.Fatalf("got %d players, want 0", n)
		}
		if s := fx.raffle.State(); s != raffle.StateOpen {
			t.Fatalf("got state %s, want %s", s, raffle.StateOpen)
		}
		if ts := fx.raffle.LastTimestamp(); ts <= startingTimestamp {
			t.Fatalf("last timestamp %d not after %d", ts, startingTimestamp)
		}
		if b := fx.raffle.Balance(); b.Sign() != 0 {
			t.Fatalf("got raffle balance %s, want 0", b)
		}
		want := new(big.Int).Add(startingBalance, entranceFee)
		if b := fx.balance(t, fx.player); b.Cmp(want) != 0 {
			t.Fatalf("got winner balance %s, want %s", b, want)
		}

		winner, err := raffle.FindWinnerPicked(receipt, fx.raffle.Address())
		if err != nil {
			t.Fatal(err)
		}
		if winner != fx.player {
			t.Fatalf("got logged winner %s, want %s", winner, fx.player)
		}

		if len(fx.observer.picked) != 1 {
			t.Fatalf("got %d picked notifications, want 1", len(fx.observer.picked))
		}
		picked := fx.observer.picked[0]
		if picked.Winner != fx.player || picked.Prize.Cmp(entranceFee) != 0 || picked.RequestID.Cmp(id) != 0 {
			t.Fatalf("unexpected notification %+v", picked)
		}
	})

	t.Run("picks a winner, resets the raffle and sends money", func(t *testing.T) {
		t.Parallel()

		fx := newFixture(t)
		ctx := context.Background()

		players := []common.Address{fx.accounts[1].Address, fx.accounts[2].Address, fx.accounts[3].Address, fx.accounts[4].Address}
		for _, p := range players {
			fx.enter(t, p)
		}
		fx.passInterval()
		startingTimestamp := fx.raffle.LastTimestamp()
		id, _ := fx.performUpkeep(t)

		index := new(big.Int).Mod(vrf.RandomWord(id, 0), big.NewInt(int64(len(players)))).Uint64()
		expectedWinner := players[index]
		startingBalance := fx.balance(t, expectedWinner)

		if _, err := fx.coordinator.FulfillRandomWords(ctx, fx.deployer, id, fx.raffle.Address()); err != nil {
			t.Fatal(err)
		}

		if w := fx.raffle.RecentWinner(); w != expectedWinner {
			t.Fatalf("got winner %s, want %s", w, expectedWinner)
		}
		if n := fx.raffle.NumberOfPlayers(); n != 0 {
			t.Fatalf("got %d players, want 0", n)
		}
		if s := fx.raffle.State(); s != raffle.StateOpen {
			t.Fatalf("got state %s, want %s", s, raffle.StateOpen)
		}
		if ts := fx.raffle.LastTimestamp(); ts <= startingTimestamp {
			t.Fatalf("last timestamp %d not after %d", ts, startingTimestamp)
		}
		prize := new(big.Int).Mul(entranceFee, big.NewInt(int64(len(players))))
		want := new(big.Int).Add(startingBalance, prize)
		if b := fx.balance(t, expectedWinner); b.Cmp(want) != 0 {
			t.Fatalf("got winner balance %s, want %s", b, want)
		}
		if diff := cmp.Diff(players, fx.observer.picked[0].Players); diff != "" {
			t.Fatalf("observed players mismatch (-want +got):\n%s", diff)
		}

		// a fulfilled request cannot be fulfilled again
		if _, err := fx.coordinator.FulfillRandomWords(ctx, fx.deployer, id, fx.raffle.Address()); !errors.Is(err, vrf.ErrNonexistentRequest) {
			t.Fatalf("got error %v, want %v", err, vrf.ErrNonexistentRequest)
		}
	})

	t.Run("winner is the word modulo players", func(t *testing.T) {
		t.Parallel()

		fx := newFixture(t)
		ctx := context.Background()

		players := []common.Address{fx.accounts[1].Address, fx.accounts[2].Address, fx.accounts[3].Address, fx.accounts[4].Address}
		for _, p := range players {
			fx.enter(t, p)
		}
		fx.passInterval()
		id, _ := fx.performUpkeep(t)

		if _, err := fx.coordinator.FulfillRandomWordsWithOverride(ctx, fx.deployer, id, fx.raffle.Address(), []*big.Int{big.NewInt(10)}); err != nil {
			t.Fatal(err)
		}
		if w := fx.raffle.RecentWinner(); w != players[2] {
			t.Fatalf("got winner %s, want %s", w, players[2])
		}
	})

	t.Run("failed transfer reverts the callback", func(t *testing.T) {
		t.Parallel()

		fx := newFixture(t)
		ctx := context.Background()
		fx.enter(t, fx.player)
		fx.passInterval()
		id, _ := fx.performUpkeep(t)
		lastTimestamp := fx.raffle.LastTimestamp()

		fx.backend.SetReceiver(fx.player, func(common.Address, *big.Int) error {
			return errors.New("cannot receive")
		})

		_, err := fx.coordinator.FulfillRandomWords(ctx, fx.deployer, id, fx.raffle.Address())
		if !errors.Is(err, raffle.ErrTransferFailed) {
			t.Fatalf("got error %v, want %v", err, raffle.ErrTransferFailed)
		}

		if s := fx.raffle.State(); s != raffle.StateCalculating {
			t.Fatalf("got state %s, want %s", s, raffle.StateCalculating)
		}
		if n := fx.raffle.NumberOfPlayers(); n != 1 {
			t.Fatalf("got %d players, want 1", n)
		}
		if w := fx.raffle.RecentWinner(); w != (common.Address{}) {
			t.Fatalf("got winner %s, want none", w)
		}
		if ts := fx.raffle.LastTimestamp(); ts != lastTimestamp {
			t.Fatalf("got last timestamp %d, want %d", ts, lastTimestamp)
		}
		if b := fx.raffle.Balance(); b.Cmp(entranceFee) != 0 {
			t.Fatalf("got balance %s, want %s", b, entranceFee)
		}
		if len(fx.observer.picked) != 0 {
			t.Fatal("observer notified of reverted fulfillment")
		}
	})
}

func TestConsecutiveCycles(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	ctx := context.Background()

	for cycle := 0; cycle < 3; cycle++ {
		fx.enter(t, fx.accounts[1].Address)
		fx.enter(t, fx.accounts[2].Address)
		fx.passInterval()
		id, _ := fx.performUpkeep(t)
		if _, err := fx.coordinator.FulfillRandomWords(ctx, fx.deployer, id, fx.raffle.Address()); err != nil {
			t.Fatal(err)
		}
		if s := fx.raffle.State(); s != raffle.StateOpen {
			t.Fatalf("cycle %d: got state %s, want %s", cycle, s, raffle.StateOpen)
		}
	}
	if len(fx.observer.picked) != 3 {
		t.Fatalf("got %d winners, want 3", len(fx.observer.picked))
	}
}

func TestWinnerIndex(t *testing.T) {
	t.Parallel()

	maxWord := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	for _, tc := range []struct {
		name    string
		word    *big.Int
		players int
		want    uint64
		err     error
	}{
		{name: "zero", word: big.NewInt(0), players: 4, want: 0},
		{name: "modulo", word: big.NewInt(10), players: 4, want: 2},
		{name: "single player", word: big.NewInt(12345), players: 1, want: 0},
		{name: "max word", word: maxWord, players: 3, want: new(big.Int).Mod(maxWord, big.NewInt(3)).Uint64()},
		{name: "no players", word: big.NewInt(1), players: 0, err: raffle.ErrNoPlayers},
		{name: "overflow", word: new(big.Int).Lsh(big.NewInt(1), 256), players: 2, err: raffle.ErrInvalidRandomWords},
	} {
		got, err := raffle.WinnerIndex(tc.word, tc.players)
		if !errors.Is(err, tc.err) {
			t.Errorf("%s: got error %v, want %v", tc.name, err, tc.err)
			continue
		}
		if got != tc.want {
			t.Errorf("%s: got index %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestStateText(t *testing.T) {
	t.Parallel()

	for _, s := range []raffle.State{raffle.StateOpen, raffle.StateCalculating} {
		text, err := s.MarshalText()
		if err != nil {
			t.Fatal(err)
		}
		var got raffle.State
		if err := got.UnmarshalText(text); err != nil {
			t.Fatal(err)
		}
		if got != s {
			t.Fatalf("got state %s, want %s", got, s)
		}
	}
	var s raffle.State
	if err := s.UnmarshalText([]byte("CLOSED")); err == nil {
		t.Fatal("expected error")
	}
}
