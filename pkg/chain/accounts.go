// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package chain

import (
	"crypto/ecdsa"
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// DevAccountBalance is the genesis balance of every development account.
var DevAccountBalance = new(big.Int).Mul(big.NewInt(10000), big.NewInt(1e18))

// Account is a development account with its private key.
type Account struct {
	Address common.Address
	Key     *ecdsa.PrivateKey
}

// DevAccounts deterministically derives n development accounts. Account 0
// is the deployer, account 1 the default player.
func DevAccounts(n int) []Account {
	accounts := make([]Account, 0, n)
	for i := 0; len(accounts) < n; i++ {
		var seed [8]byte
		binary.BigEndian.PutUint64(seed[:], uint64(i))
		key, err := crypto.ToECDSA(crypto.Keccak256([]byte("raffle development account"), seed[:]))
		if err != nil {
			// scalar out of range, take the next seed
			continue
		}
		accounts = append(accounts, Account{
			Address: crypto.PubkeyToAddress(key.PublicKey),
			Key:     key,
		})
	}
	return accounts
}

// DevAlloc returns a genesis allocation funding every account with
// DevAccountBalance.
func DevAlloc(accounts []Account) map[common.Address]*big.Int {
	alloc := make(map[common.Address]*big.Int, len(accounts))
	for _, a := range accounts {
		alloc[a.Address] = new(big.Int).Set(DevAccountBalance)
	}
	return alloc
}
