// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package deploy

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethersphere/raffle/pkg/storage"
	"github.com/vmihailenco/msgpack/v5"
)

const deploymentKeyPrefix = "deployment_"

// Deployment is the record of a deployed contract.
type Deployment struct {
	Name        string         `json:"name"`
	Address     common.Address `json:"address"`
	Args        []string       `json:"args"`
	ChainID     int64          `json:"chainId"`
	BlockNumber uint64         `json:"blockNumber"`
	TxHash      common.Hash    `json:"transactionHash"`
}

type deploymentRecord struct {
	Name        string   `msgpack:"name"`
	Address     []byte   `msgpack:"address"`
	Args        []string `msgpack:"args"`
	ChainID     int64    `msgpack:"chain_id"`
	BlockNumber uint64   `msgpack:"block_number"`
	TxHash      []byte   `msgpack:"tx_hash"`
}

func (d Deployment) MarshalBinary() ([]byte, error) {
	return msgpack.Marshal(&deploymentRecord{
		Name:        d.Name,
		Address:     d.Address.Bytes(),
		Args:        d.Args,
		ChainID:     d.ChainID,
		BlockNumber: d.BlockNumber,
		TxHash:      d.TxHash.Bytes(),
	})
}

func (d *Deployment) UnmarshalBinary(data []byte) error {
	var r deploymentRecord
	if err := msgpack.Unmarshal(data, &r); err != nil {
		return fmt.Errorf("unmarshal deployment: %w", err)
	}
	*d = Deployment{
		Name:        r.Name,
		Address:     common.BytesToAddress(r.Address),
		Args:        r.Args,
		ChainID:     r.ChainID,
		BlockNumber: r.BlockNumber,
		TxHash:      common.BytesToHash(r.TxHash),
	}
	return nil
}

func deploymentKey(chainID int64, name string) string {
	return fmt.Sprintf("%s%d_%s", deploymentKeyPrefix, chainID, name)
}

func saveDeployment(store storage.StateStorer, d Deployment) error {
	return store.Put(deploymentKey(d.ChainID, d.Name), d)
}

// GetDeployment returns the latest deployment of the named contract on the
// chain.
func GetDeployment(store storage.StateStorer, chainID int64, name string) (Deployment, error) {
	var d Deployment
	if err := store.Get(deploymentKey(chainID, name), &d); err != nil {
		return Deployment{}, err
	}
	return d, nil
}

// Deployments returns all deployments recorded for the chain, sorted by
// block number.
func Deployments(store storage.StateStorer, chainID int64) ([]Deployment, error) {
	prefix := fmt.Sprintf("%s%d_", deploymentKeyPrefix, chainID)

	var ds []Deployment
	err := store.Iterate(prefix, func(_, value []byte) (bool, error) {
		var d Deployment
		if err := d.UnmarshalBinary(value); err != nil {
			return true, err
		}
		ds = append(ds, d)
		return false, nil
	})
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	sort.Slice(ds, func(i, j int) bool {
		if ds[i].BlockNumber == ds[j].BlockNumber {
			return ds[i].Name < ds[j].Name
		}
		return ds[i].BlockNumber < ds[j].BlockNumber
	})
	return ds, nil
}
