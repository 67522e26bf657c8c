// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package deploy deploys the raffle and, on development chains, the mock
// vrf coordinator it depends on.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethersphere/raffle/pkg/chain"
	"github.com/ethersphere/raffle/pkg/config"
	"github.com/ethersphere/raffle/pkg/logging"
	"github.com/ethersphere/raffle/pkg/raffle"
	"github.com/ethersphere/raffle/pkg/storage"
	"github.com/ethersphere/raffle/pkg/vrf"
	"github.com/spf13/afero"
)

const (
	TagAll      = "all"
	TagMocks    = "mocks"
	TagRaffle   = "raffle"
	TagFrontend = "frontend"

	CoordinatorName = "VRFCoordinatorV2Mock"
	RaffleName      = "Raffle"

	confirmationPollInterval = 100 * time.Millisecond
)

var (
	// SubscriptionFundAmount is the amount of LINK a new subscription is
	// funded with on development chains.
	SubscriptionFundAmount = new(big.Int).Mul(big.NewInt(2), big.NewInt(1e18))

	ErrCoordinatorNotFound = errors.New("vrf coordinator not found")
	ErrUnknownTag          = errors.New("unknown deploy tag")
	ErrRaffleNotDeployed   = errors.New("raffle not deployed")
)

type Options struct {
	Network  *config.ChainConfig
	Deployer common.Address
	// UpdateFrontend enables the frontend step.
	UpdateFrontend bool
	FrontendDir    string
	Fs             afero.Fs
	Store          storage.StateStorer
	Logger         logging.Logger
}

// Result holds the contracts deployed or resolved by a run.
type Result struct {
	Coordinator    *vrf.Coordinator
	Raffle         *raffle.Raffle
	SubscriptionID uint64
	Deployments    []Deployment
}

type Deployer struct {
	backend *chain.Backend
	network *config.ChainConfig
	from    common.Address
	store   storage.StateStorer
	fs      afero.Fs
	logger  logging.Logger
	opts    Options
	isDev   bool
}

func New(backend *chain.Backend, o Options) (*Deployer, error) {
	if o.Network == nil {
		return nil, errors.New("deploy: network config is required")
	}
	if o.Store == nil {
		return nil, errors.New("deploy: state store is required")
	}
	if o.Fs == nil {
		o.Fs = afero.NewOsFs()
	}
	if o.Logger == nil {
		o.Logger = logging.Noop
	}
	return &Deployer{
		backend: backend,
		network: o.Network,
		from:    o.Deployer,
		store:   o.Store,
		fs:      o.Fs,
		logger:  o.Logger,
		opts:    o,
		isDev:   config.IsDevelopmentChain(o.Network.Name),
	}, nil
}

// ParseTags validates the tags and expands TagAll. An empty list runs all
// steps.
func ParseTags(tags []string) (map[string]bool, error) {
	set := make(map[string]bool)
	if len(tags) == 0 {
		tags = []string{TagAll}
	}
	for _, t := range tags {
		switch t {
		case TagAll:
			set[TagMocks] = true
			set[TagRaffle] = true
			set[TagFrontend] = true
		case TagMocks, TagRaffle, TagFrontend:
			set[t] = true
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownTag, t)
		}
	}
	return set, nil
}

// Run runs the steps selected by the tags in order: mocks, raffle and
// frontend.
func (d *Deployer) Run(ctx context.Context, tags ...string) (*Result, error) {
	set, err := ParseTags(tags)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	if set[TagMocks] {
		if err := d.deployMocks(ctx, res); err != nil {
			return nil, fmt.Errorf("mocks: %w", err)
		}
	}
	if set[TagRaffle] {
		if err := d.deployRaffle(ctx, res); err != nil {
			return nil, fmt.Errorf("raffle: %w", err)
		}
	}
	if set[TagFrontend] {
		if !d.opts.UpdateFrontend {
			d.logger.Debug("deploy: frontend update disabled")
		} else if err := d.updateFrontend(res); err != nil {
			return nil, fmt.Errorf("frontend: %w", err)
		}
	}
	return res, nil
}

func (d *Deployer) deployMocks(ctx context.Context, res *Result) error {
	if !d.isDev {
		return nil
	}
	d.logger.Infof("deploy: local network %s detected, deploying mocks", d.network.Name)

	coordinator, receipt, err := vrf.Deploy(ctx, d.backend, d.logger, d.from, vrf.DefaultBaseFee, vrf.DefaultGasPriceLink)
	if err != nil {
		return err
	}
	res.Coordinator = coordinator
	if err := d.record(res, CoordinatorName, coordinator.Address(), receipt, vrf.DefaultBaseFee.String(), vrf.DefaultGasPriceLink.String()); err != nil {
		return err
	}
	d.logger.Info("deploy: mocks deployed")
	return nil
}

func (d *Deployer) deployRaffle(ctx context.Context, res *Result) error {
	coordinator, err := d.coordinator(res)
	if err != nil {
		return err
	}
	res.Coordinator = coordinator

	subID := d.network.SubscriptionID
	if d.isDev {
		subID, _, err = coordinator.CreateSubscription(ctx, d.from)
		if err != nil {
			return fmt.Errorf("create subscription: %w", err)
		}
		if _, err := coordinator.FundSubscription(ctx, d.from, subID, SubscriptionFundAmount); err != nil {
			return fmt.Errorf("fund subscription: %w", err)
		}
	}
	res.SubscriptionID = subID

	p := raffle.Params{
		Coordinator:      coordinator,
		EntranceFee:      d.network.EntranceFee,
		GasLane:          d.network.GasLane,
		SubscriptionID:   subID,
		CallbackGasLimit: d.network.CallbackGasLimit,
		Interval:         d.network.Interval,
	}
	r, receipt, err := raffle.Deploy(ctx, d.backend, d.logger, d.from, p)
	if err != nil {
		return err
	}
	res.Raffle = r

	if err := d.waitConfirmations(ctx, receipt); err != nil {
		return err
	}

	if _, err := coordinator.AddConsumer(ctx, d.from, subID, r.Address()); err != nil {
		if d.isDev || !errors.Is(err, vrf.ErrMustBeSubOwner) {
			return fmt.Errorf("add consumer: %w", err)
		}
		d.logger.Warningf("deploy: add raffle %s as consumer of subscription %d with the subscription owner", r.Address(), subID)
	}

	args := []string{
		coordinator.Address().Hex(),
		p.EntranceFee.String(),
		p.GasLane.Hex(),
		strconv.FormatUint(subID, 10),
		strconv.FormatUint(uint64(p.CallbackGasLimit), 10),
		strconv.FormatUint(p.Interval, 10),
	}
	if err := d.record(res, RaffleName, r.Address(), receipt, args...); err != nil {
		return err
	}

	if !d.isDev {
		d.logger.Infof("deploy: source verification of %s skipped", r.Address())
	}
	d.logger.Infof("deploy: raffle deployed at %s with subscription %d", r.Address(), subID)
	return nil
}

// coordinator resolves the vrf coordinator. On development chains it is the
// mock deployed by this run or recorded by an earlier one, elsewhere the
// coordinator of the network configuration.
func (d *Deployer) coordinator(res *Result) (*vrf.Coordinator, error) {
	if res.Coordinator != nil {
		return res.Coordinator, nil
	}

	address := d.network.VRFCoordinator
	if d.isDev {
		dep, err := GetDeployment(d.store, d.network.ChainID, CoordinatorName)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, fmt.Errorf("%w: mocks not deployed", ErrCoordinatorNotFound)
			}
			return nil, err
		}
		address = dep.Address
	}

	c, err := vrf.At(d.backend, address)
	if err != nil {
		return nil, fmt.Errorf("%w at %s: %v", ErrCoordinatorNotFound, address, err)
	}
	return c, nil
}

// waitConfirmations blocks until the transaction of the receipt has the
// number of confirmations of the network configuration.
func (d *Deployer) waitConfirmations(ctx context.Context, receipt *types.Receipt) error {
	if d.network.BlockConfirmations <= 1 || receipt == nil {
		return nil
	}
	target := receipt.BlockNumber.Uint64() + d.network.BlockConfirmations - 1
	d.logger.Infof("deploy: waiting for %d confirmations", d.network.BlockConfirmations)

	ticker := time.NewTicker(confirmationPollInterval)
	defer ticker.Stop()
	for {
		head, err := d.backend.BlockNumber(ctx)
		if err != nil {
			return err
		}
		if head >= target {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (d *Deployer) record(res *Result, name string, address common.Address, receipt *types.Receipt, args ...string) error {
	dep := Deployment{
		Name:    name,
		Address: address,
		Args:    args,
		ChainID: d.network.ChainID,
	}
	if receipt != nil {
		dep.TxHash = receipt.TxHash
		if receipt.BlockNumber != nil {
			dep.BlockNumber = receipt.BlockNumber.Uint64()
		}
	}
	if err := saveDeployment(d.store, dep); err != nil {
		return fmt.Errorf("save deployment %s: %w", name, err)
	}
	res.Deployments = append(res.Deployments, dep)
	d.logger.Debugf("deploy: %s at %s, tx %s", name, address, dep.TxHash)
	return nil
}
