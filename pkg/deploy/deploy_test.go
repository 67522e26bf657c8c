// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package deploy_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethersphere/raffle/pkg/chain"
	"github.com/ethersphere/raffle/pkg/config"
	"github.com/ethersphere/raffle/pkg/deploy"
	"github.com/ethersphere/raffle/pkg/logging"
	"github.com/ethersphere/raffle/pkg/statestore/mock"
	"github.com/ethersphere/raffle/pkg/storage"
	"github.com/ethersphere/raffle/pkg/vrf"
	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
)

const frontendDir = "/frontend/constants"

func devNetwork(t *testing.T) *config.ChainConfig {
	t.Helper()

	cfg, ok := config.GetChainConfig(chain.DevChainID)
	if !ok {
		t.Fatal("no development chain config")
	}
	return cfg
}

type fixture struct {
	backend  *chain.Backend
	store    storage.StateStorer
	fs       afero.Fs
	deployer common.Address
	other    common.Address
}

func newFixture() *fixture {
	accounts := chain.DevAccounts(2)
	return &fixture{
		backend:  chain.New(chain.WithAlloc(chain.DevAlloc(accounts))),
		store:    mock.NewStateStore(),
		fs:       afero.NewMemMapFs(),
		deployer: accounts[0].Address,
		other:    accounts[1].Address,
	}
}

func (fx *fixture) newDeployer(t *testing.T, network *config.ChainConfig, updateFrontend bool) *deploy.Deployer {
	t.Helper()

	d, err := deploy.New(fx.backend, deploy.Options{
		Network:        network,
		Deployer:       fx.deployer,
		UpdateFrontend: updateFrontend,
		FrontendDir:    frontendDir,
		Fs:             fx.fs,
		Store:          fx.store,
		Logger:         logging.Noop,
	})
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestRunAll(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	network := devNetwork(t)
	res, err := fx.newDeployer(t, network, true).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if res.Coordinator == nil || res.Raffle == nil {
		t.Fatalf("got result %+v, want coordinator and raffle", res)
	}
	if res.Raffle.EntranceFee().Cmp(network.EntranceFee) != 0 {
		t.Fatalf("got entrance fee %s, want %s", res.Raffle.EntranceFee(), network.EntranceFee)
	}
	if res.Raffle.Interval() != network.Interval {
		t.Fatalf("got interval %d, want %d", res.Raffle.Interval(), network.Interval)
	}

	sub, err := res.Coordinator.GetSubscription(res.SubscriptionID)
	if err != nil {
		t.Fatal(err)
	}
	if sub.Balance.Cmp(deploy.SubscriptionFundAmount) != 0 {
		t.Fatalf("got subscription balance %s, want %s", sub.Balance, deploy.SubscriptionFundAmount)
	}
	if diff := cmp.Diff([]common.Address{res.Raffle.Address()}, sub.Consumers); diff != "" {
		t.Fatalf("consumers mismatch (-want +got):\n%s", diff)
	}

	deployments, err := deploy.Deployments(fx.store, network.ChainID)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, d := range deployments {
		names = append(names, d.Name)
	}
	if diff := cmp.Diff([]string{deploy.CoordinatorName, deploy.RaffleName}, names); diff != "" {
		t.Fatalf("deployments mismatch (-want +got):\n%s", diff)
	}
	if deployments[1].Address != res.Raffle.Address() {
		t.Fatalf("got raffle deployment at %s, want %s", deployments[1].Address, res.Raffle.Address())
	}
	if deployments[1].Args[0] != res.Coordinator.Address().Hex() {
		t.Fatalf("got coordinator argument %s, want %s", deployments[1].Args[0], res.Coordinator.Address().Hex())
	}
	if deployments[1].TxHash == (common.Hash{}) {
		t.Fatal("deployment without transaction hash")
	}

	addresses, err := deploy.ReadContractAddresses(fx.fs, filepath.Join(frontendDir, deploy.ContractAddressesFile))
	if err != nil {
		t.Fatal(err)
	}
	want := deploy.ContractAddresses{"31337": {res.Raffle.Address().Hex()}}
	if diff := cmp.Diff(want, addresses); diff != "" {
		t.Fatalf("contract addresses mismatch (-want +got):\n%s", diff)
	}

	data, err := afero.ReadFile(fx.fs, filepath.Join(frontendDir, deploy.ABIFile))
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := abi.JSON(strings.NewReader(string(data)))
	if err != nil {
		t.Fatal(err)
	}
	for _, method := range []string{"joinRaffle", "getEnlistmentFeeAmount", "getTimeStamp", "getRecentWinner", "checkUpkeep", "performUpkeep"} {
		if _, ok := parsed.Methods[method]; !ok {
			t.Fatalf("abi without method %s", method)
		}
	}
	for _, event := range []string{"RaffleJoined", "RequestedRaffleWinner", "WinnerPicked"} {
		if _, ok := parsed.Events[event]; !ok {
			t.Fatalf("abi without event %s", event)
		}
	}
}

func TestRunAppendsContractAddress(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	network := devNetwork(t)

	first, err := fx.newDeployer(t, network, true).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	second, err := fx.newDeployer(t, network, true).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// frontend only rewrites the addresses
	if _, err := fx.newDeployer(t, network, true).Run(context.Background(), deploy.TagFrontend); err != nil {
		t.Fatal(err)
	}

	addresses, err := deploy.ReadContractAddresses(fx.fs, filepath.Join(frontendDir, deploy.ContractAddressesFile))
	if err != nil {
		t.Fatal(err)
	}
	want := deploy.ContractAddresses{"31337": {first.Raffle.Address().Hex(), second.Raffle.Address().Hex()}}
	if diff := cmp.Diff(want, addresses); diff != "" {
		t.Fatalf("contract addresses mismatch (-want +got):\n%s", diff)
	}
}

func TestRunFrontendDisabled(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	if _, err := fx.newDeployer(t, devNetwork(t), false).Run(context.Background(), deploy.TagAll); err != nil {
		t.Fatal(err)
	}
	exists, err := afero.Exists(fx.fs, filepath.Join(frontendDir, deploy.ContractAddressesFile))
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Fatal("frontend written while disabled")
	}
}

func TestRunFrontendWithoutRaffle(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	_, err := fx.newDeployer(t, devNetwork(t), true).Run(context.Background(), deploy.TagFrontend)
	if !errors.Is(err, deploy.ErrRaffleNotDeployed) {
		t.Fatalf("got error %v, want %v", err, deploy.ErrRaffleNotDeployed)
	}
}

func TestRunRaffleUsesRecordedMocks(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	network := devNetwork(t)

	mocks, err := fx.newDeployer(t, network, false).Run(context.Background(), deploy.TagMocks)
	if err != nil {
		t.Fatal(err)
	}
	if mocks.Raffle != nil {
		t.Fatal("raffle deployed by the mocks step")
	}

	res, err := fx.newDeployer(t, network, false).Run(context.Background(), deploy.TagRaffle)
	if err != nil {
		t.Fatal(err)
	}
	if res.Coordinator.Address() != mocks.Coordinator.Address() {
		t.Fatalf("got coordinator %s, want %s", res.Coordinator.Address(), mocks.Coordinator.Address())
	}
}

func TestRunRaffleWithoutMocks(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	_, err := fx.newDeployer(t, devNetwork(t), false).Run(context.Background(), deploy.TagRaffle)
	if !errors.Is(err, deploy.ErrCoordinatorNotFound) {
		t.Fatalf("got error %v, want %v", err, deploy.ErrCoordinatorNotFound)
	}
}

func TestRunLiveNetwork(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sepolia, ok := config.GetChainConfig(11155111)
	if !ok {
		t.Fatal("no sepolia config")
	}

	t.Run("coordinator not found", func(t *testing.T) {
		t.Parallel()

		fx := newFixture()
		_, err := fx.newDeployer(t, sepolia.Copy(), false).Run(ctx)
		if !errors.Is(err, deploy.ErrCoordinatorNotFound) {
			t.Fatalf("got error %v, want %v", err, deploy.ErrCoordinatorNotFound)
		}
	})

	t.Run("subscription of another owner", func(t *testing.T) {
		t.Parallel()

		fx := newFixture()
		coordinator, _, err := vrf.Deploy(ctx, fx.backend, logging.Noop, fx.other, vrf.DefaultBaseFee, vrf.DefaultGasPriceLink)
		if err != nil {
			t.Fatal(err)
		}
		subID, _, err := coordinator.CreateSubscription(ctx, fx.other)
		if err != nil {
			t.Fatal(err)
		}

		network := sepolia.Copy()
		network.VRFCoordinator = coordinator.Address()
		network.SubscriptionID = subID
		network.BlockConfirmations = 1

		res, err := fx.newDeployer(t, network, false).Run(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if res.SubscriptionID != subID {
			t.Fatalf("got subscription %d, want %d", res.SubscriptionID, subID)
		}
		sub, err := coordinator.GetSubscription(subID)
		if err != nil {
			t.Fatal(err)
		}
		if len(sub.Consumers) != 0 {
			t.Fatalf("got consumers %v, want none", sub.Consumers)
		}
	})
}

func TestParseTags(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name string
		tags []string
		want map[string]bool
		err  error
	}{
		{
			name: "default",
			want: map[string]bool{deploy.TagMocks: true, deploy.TagRaffle: true, deploy.TagFrontend: true},
		},
		{
			name: "single",
			tags: []string{deploy.TagMocks},
			want: map[string]bool{deploy.TagMocks: true},
		},
		{
			name: "unknown",
			tags: []string{"mocks", "verify"},
			err:  deploy.ErrUnknownTag,
		},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := deploy.ParseTags(tc.tags)
			if !errors.Is(err, tc.err) {
				t.Fatalf("got error %v, want %v", err, tc.err)
			}
			if tc.err != nil {
				return
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("tags mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNewRequiresNetwork(t *testing.T) {
	t.Parallel()

	if _, err := deploy.New(chain.New(), deploy.Options{Store: mock.NewStateStore()}); err == nil {
		t.Fatal("expected error without network config")
	}
}
