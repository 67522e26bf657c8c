// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package deploy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ethersphere/raffle/pkg/raffle"
	"github.com/ethersphere/raffle/pkg/storage"
	"github.com/spf13/afero"
)

const (
	ContractAddressesFile = "contractAddresses.json"
	ABIFile               = "abi.json"
)

// ContractAddresses maps chain ids to the raffle addresses deployed on them.
type ContractAddresses map[string][]string

func (d *Deployer) updateFrontend(res *Result) error {
	var address string
	if res.Raffle != nil {
		address = res.Raffle.Address().Hex()
	} else {
		dep, err := GetDeployment(d.store, d.network.ChainID, RaffleName)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return ErrRaffleNotDeployed
			}
			return err
		}
		address = dep.Address.Hex()
	}

	d.logger.Info("deploy: writing to frontend")
	if d.opts.FrontendDir != "" {
		if err := d.fs.MkdirAll(d.opts.FrontendDir, 0755); err != nil {
			return err
		}
	}
	if err := updateContractAddresses(d.fs, filepath.Join(d.opts.FrontendDir, ContractAddressesFile), d.network.ChainID, address); err != nil {
		return err
	}
	if err := writeABI(d.fs, filepath.Join(d.opts.FrontendDir, ABIFile)); err != nil {
		return err
	}
	d.logger.Info("deploy: frontend written")
	return nil
}

// ReadContractAddresses reads the contract addresses file. A missing file
// yields an empty map.
func ReadContractAddresses(fs afero.Fs, path string) (ContractAddresses, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return ContractAddresses{}, nil
		}
		return nil, err
	}
	addresses := make(ContractAddresses)
	if len(bytes.TrimSpace(data)) == 0 {
		return addresses, nil
	}
	if err := json.Unmarshal(data, &addresses); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return addresses, nil
}

func updateContractAddresses(fs afero.Fs, path string, chainID int64, address string) error {
	addresses, err := ReadContractAddresses(fs, path)
	if err != nil {
		return err
	}
	id := strconv.FormatInt(chainID, 10)
	if !contains(addresses[id], address) {
		addresses[id] = append(addresses[id], address)
	}
	data, err := json.Marshal(addresses)
	if err != nil {
		return err
	}
	return afero.WriteFile(fs, path, data, 0644)
}

func writeABI(fs afero.Fs, path string) error {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(raffle.ABI)); err != nil {
		return fmt.Errorf("raffle abi: %w", err)
	}
	return afero.WriteFile(fs, path, buf.Bytes(), 0644)
}

func contains(s []string, v string) bool {
	for _, e := range s {
		if e == v {
			return true
		}
	}
	return false
}
