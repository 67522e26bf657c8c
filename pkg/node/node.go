// Copyright 2020 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package node wires a development raffle node: an in-process chain with
// funded accounts, the deployed contracts, the vrf fulfiller, the keeper
// and the HTTP API.
package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ethersphere/raffle/pkg/api"
	"github.com/ethersphere/raffle/pkg/chain"
	"github.com/ethersphere/raffle/pkg/config"
	"github.com/ethersphere/raffle/pkg/deploy"
	"github.com/ethersphere/raffle/pkg/keeper"
	"github.com/ethersphere/raffle/pkg/logging"
	"github.com/ethersphere/raffle/pkg/metrics"
	"github.com/ethersphere/raffle/pkg/raffle"
	"github.com/ethersphere/raffle/pkg/raffle/history"
	"github.com/ethersphere/raffle/pkg/storage"
	"github.com/ethersphere/raffle/pkg/tracing"
	"github.com/ethersphere/raffle/pkg/vrf"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

const defaultAccounts = 10

var (
	ErrShutdownInProgress  = errors.New("shutdown in progress")
	ErrNotDevelopmentChain = errors.New("not a development chain")
)

type Options struct {
	DataDir string
	// Network is the configuration of the development network. It defaults
	// to the hardhat network.
	Network               *config.ChainConfig
	APIAddr               string
	Accounts              int
	KeeperPollInterval    time.Duration
	FulfillerPollInterval time.Duration
	// EnterRateLimit limits raffle entries through the API per client.
	EnterRateLimit        time.Duration
	UpdateFrontend        bool
	FrontendDir           string
	Fs                    afero.Fs
	Clock                 func() time.Time
	TracingEnabled        bool
	TracingEndpoint       string
	TracingServiceName    string
}

type Node struct {
	logger         logging.Logger
	metrics        nodeMetrics
	errorLogWriter io.Writer
	tracerCloser   io.Closer

	stateStore  storage.StateStorer
	backend     *chain.Backend
	accounts    []chain.Account
	coordinator *vrf.Coordinator
	raffle      *raffle.Raffle
	deployments []deploy.Deployment
	fulfiller   *vrf.Fulfiller
	keeper      *keeper.Agent
	history     *history.History
	apiService  *api.Service
	apiServer   *http.Server
	apiAddr     net.Addr
	serving     errgroup.Group

	shutdownInProgress bool
	shutdownMutex      sync.Mutex
}

// NewDevNode deploys the raffle on a fresh in-process development chain
// and starts the services driving it.
func NewDevNode(ctx context.Context, logger logging.Logger, o Options) (_ *Node, err error) {
	start := time.Now()

	if o.Network == nil {
		network, _ := config.GetChainConfig(chain.DevChainID)
		o.Network = network
	}
	if !config.IsDevelopmentChain(o.Network.Name) {
		return nil, fmt.Errorf("%w: %s", ErrNotDevelopmentChain, o.Network.Name)
	}
	if o.Accounts <= 0 {
		o.Accounts = defaultAccounts
	}

	n := &Node{
		logger:         logger,
		metrics:        newMetrics(),
		errorLogWriter: logger.WriterLevel(logrus.ErrorLevel),
	}
	defer func() {
		if err != nil {
			if shutdownErr := n.Shutdown(); shutdownErr != nil && !errors.Is(shutdownErr, ErrShutdownInProgress) {
				logger.Errorf("node: shutdown after failed start: %v", shutdownErr)
			}
		}
	}()

	tracer, tracerCloser, err := tracing.NewTracer(&tracing.Options{
		Enabled:     o.TracingEnabled,
		Endpoint:    o.TracingEndpoint,
		ServiceName: o.TracingServiceName,
	})
	if err != nil {
		return nil, fmt.Errorf("tracer: %w", err)
	}
	n.tracerCloser = tracerCloser

	n.stateStore, err = InitStateStore(logger, o.DataDir)
	if err != nil {
		return nil, fmt.Errorf("state store: %w", err)
	}

	n.accounts = chain.DevAccounts(o.Accounts)
	chainOpts := []chain.Option{
		chain.WithChainID(o.Network.ChainID),
		chain.WithAlloc(chain.DevAlloc(n.accounts)),
		chain.WithLogger(logger),
	}
	if o.Clock != nil {
		chainOpts = append(chainOpts, chain.WithClock(o.Clock))
	}
	n.backend = chain.New(chainOpts...)
	deployer := n.accounts[0].Address
	logger.Infof("chain %d (%s) started with %d funded accounts", o.Network.ChainID, o.Network.Name, len(n.accounts))

	d, err := deploy.New(n.backend, deploy.Options{
		Network:        o.Network,
		Deployer:       deployer,
		UpdateFrontend: o.UpdateFrontend,
		FrontendDir:    o.FrontendDir,
		Fs:             o.Fs,
		Store:          n.stateStore,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}
	res, err := d.Run(ctx, deploy.TagAll)
	if err != nil {
		return nil, fmt.Errorf("deploy: %w", err)
	}
	n.coordinator = res.Coordinator
	n.raffle = res.Raffle
	n.deployments = res.Deployments

	n.history, err = history.New(n.stateStore, logger)
	if err != nil {
		return nil, fmt.Errorf("raffle history: %w", err)
	}
	n.raffle.AddObserver(n.history)

	n.fulfiller, err = vrf.NewFulfiller(n.backend, n.coordinator, deployer, logger, &vrf.FulfillerOptions{
		PollEvery:         o.FulfillerPollInterval,
		MineConfirmations: true,
	})
	if err != nil {
		return nil, fmt.Errorf("vrf fulfiller: %w", err)
	}
	n.fulfiller.Start()

	n.keeper = keeper.New(n.raffle, deployer, logger, &keeper.Options{
		PollInterval: o.KeeperPollInterval,
	})
	n.keeper.Start()

	registry, err := metrics.NewRegistry(logger, n, n.backend, n.coordinator, n.fulfiller, n.raffle, n.keeper)
	if err != nil {
		return nil, fmt.Errorf("metrics registry: %w", err)
	}

	if o.APIAddr != "" {
		n.apiService, err = api.New(api.Options{
			Raffle:          n.raffle,
			Coordinator:     n.coordinator,
			Chain:           n.backend,
			History:         n.history,
			Keeper:          n.keeper,
			Operator:        deployer,
			DevMode:         true,
			EnterRateLimit:  o.EnterRateLimit,
			MetricsRegistry: registry,
			Logger:          logger,
			Tracer:          tracer,
		})
		if err != nil {
			return nil, fmt.Errorf("api: %w", err)
		}
		for _, c := range n.apiService.Metrics() {
			if err := registry.Register(c); err != nil {
				return nil, fmt.Errorf("api metrics: %w", err)
			}
		}

		apiListener, err := net.Listen("tcp", o.APIAddr)
		if err != nil {
			return nil, fmt.Errorf("api listener: %w", err)
		}
		n.apiAddr = apiListener.Addr()
		n.apiServer = &http.Server{
			IdleTimeout:       30 * time.Second,
			ReadHeaderTimeout: 3 * time.Second,
			Handler:           n.apiService,
			ErrorLog:          log.New(n.errorLogWriter, "", 0),
		}

		n.serving.Go(func() error {
			logger.Infof("api address: %s", apiListener.Addr())
			if err := n.apiServer.Serve(apiListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Debugf("api server: %v", err)
				logger.Error("unable to serve api")
				return err
			}
			return nil
		})
	}

	n.metrics.StartupDuration.Observe(time.Since(start).Seconds())
	logger.Infof("raffle %s ready, entrance fee %s ETH, interval %ds", n.raffle.Address(), config.FormatEther(n.raffle.EntranceFee()), n.raffle.Interval())
	return n, nil
}

func (n *Node) Backend() *chain.Backend          { return n.backend }
func (n *Node) Raffle() *raffle.Raffle           { return n.raffle }
func (n *Node) Coordinator() *vrf.Coordinator    { return n.coordinator }
func (n *Node) History() *history.History        { return n.history }
func (n *Node) Keeper() *keeper.Agent            { return n.keeper }
func (n *Node) Deployments() []deploy.Deployment { return n.deployments }

// Accounts returns the funded development accounts. The first one deployed
// the contracts and runs the keeper and the fulfiller.
func (n *Node) Accounts() []chain.Account {
	return append([]chain.Account(nil), n.accounts...)
}

// APIAddr returns the address the API listens on, or an empty string if the
// API is disabled.
func (n *Node) APIAddr() string {
	if n.apiAddr == nil {
		return ""
	}
	return n.apiAddr.String()
}

// Shutdown stops the services of the node and closes the state store.
func (n *Node) Shutdown() error {
	var mErr error

	// if a shutdown is already in process, return here
	n.shutdownMutex.Lock()
	if n.shutdownInProgress {
		n.shutdownMutex.Unlock()
		return ErrShutdownInProgress
	}
	n.shutdownInProgress = true
	n.shutdownMutex.Unlock()

	// tryClose is a convenient closure which decrease
	// repetitive io.Closer tryClose procedure.
	tryClose := func(c io.Closer, errMsg string) {
		if c == nil {
			return
		}
		if err := c.Close(); err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("%s: %w", errMsg, err))
		}
	}

	if n.apiService != nil {
		tryClose(n.apiService, "api")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if n.apiServer != nil {
		if err := n.apiServer.Shutdown(ctx); err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("api server: %w", err))
		}
	}
	if err := n.serving.Wait(); err != nil {
		mErr = multierror.Append(mErr, fmt.Errorf("serve: %w", err))
	}

	if n.keeper != nil {
		tryClose(n.keeper, "keeper")
	}
	if n.fulfiller != nil {
		tryClose(n.fulfiller, "vrf fulfiller")
	}
	tryClose(n.stateStore, "statestore")
	tryClose(n.tracerCloser, "tracer")

	return mErr
}
