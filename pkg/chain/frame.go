// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Frame is the execution context of a contract call. Contracts mutate
// their own state only while holding a frame and register an undo function
// for every mutation with Journal, so that a failing call can be reverted.
type Frame struct {
	backend  *Backend
	header   Header
	sender   common.Address
	self     common.Address
	value    *big.Int
	readOnly bool

	journal []func()
	logs    []*types.Log
	commits []func()
}

func newFrame(b *Backend, header Header, sender, self common.Address, value *big.Int) *Frame {
	v := new(big.Int)
	if value != nil {
		v.Set(value)
	}
	return &Frame{
		backend: b,
		header:  header,
		sender:  sender,
		self:    self,
		value:   v,
	}
}

// Sender returns the immediate caller of the frame.
func (f *Frame) Sender() common.Address { return f.sender }

// Self returns the address of the executing contract.
func (f *Frame) Self() common.Address { return f.self }

// Value returns the wei sent with the call.
func (f *Frame) Value() *big.Int { return new(big.Int).Set(f.value) }

// Now returns the timestamp of the block the frame executes in.
func (f *Frame) Now() uint64 { return f.header.Time }

// BlockNumber returns the number of the block the frame executes in.
func (f *Frame) BlockNumber() uint64 { return f.header.Number }

// ChainID returns the id of the chain.
func (f *Frame) ChainID() *big.Int { return f.backend.ChainID() }

// ReadOnly reports whether the frame rejects state mutations.
func (f *Frame) ReadOnly() bool { return f.readOnly }

// BalanceOf returns the current balance of the account.
func (f *Frame) BalanceOf(address common.Address) *big.Int {
	return f.backend.balanceOf(address)
}

// Transfer sends amount wei from the executing contract to the account.
func (f *Frame) Transfer(to common.Address, amount *big.Int) error {
	if f.readOnly {
		return ErrWriteProtection
	}
	return f.transfer(f.self, to, amount)
}

// Emit appends a log with the executing contract as its address.
func (f *Frame) Emit(topics []common.Hash, data []byte) error {
	if f.readOnly {
		return ErrWriteProtection
	}
	f.logs = append(f.logs, &types.Log{
		Address: f.self,
		Topics:  topics,
		Data:    data,
	})
	return nil
}

// Journal registers a function that undoes a state mutation made in this
// frame. Undo functions run in reverse order when the frame reverts.
func (f *Frame) Journal(undo func()) {
	if f.readOnly {
		panic("chain: state mutation in read-only frame")
	}
	f.journal = append(f.journal, undo)
}

// OnCommit registers a function that runs once the enclosing transaction
// has been mined successfully. Hooks run in block order without the backend
// lock held and must not send transactions.
func (f *Frame) OnCommit(fn func()) {
	if f.readOnly {
		return
	}
	f.commits = append(f.commits, fn)
}

// Call runs fn in a nested frame on behalf of the executing contract. The
// value is moved from the executing contract to the callee first. If fn
// returns an error, only the effects of the nested frame are reverted and
// the error is returned to the caller which may handle it.
func (f *Frame) Call(to common.Address, value *big.Int, fn func(f *Frame) error) error {
	if f.readOnly && value != nil && value.Sign() > 0 {
		return ErrWriteProtection
	}

	child := newFrame(f.backend, f.header, f.self, to, value)
	child.readOnly = f.readOnly

	err := child.moveValue()
	if err == nil {
		err = fn(child)
	}
	if err != nil {
		child.revert()
		return err
	}

	f.journal = append(f.journal, child.journal...)
	f.logs = append(f.logs, child.logs...)
	f.commits = append(f.commits, child.commits...)
	return nil
}

func (f *Frame) moveValue() error {
	if f.value.Sign() == 0 {
		return nil
	}
	return f.transfer(f.sender, f.self, f.value)
}

func (f *Frame) transfer(from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("%w: %s", ErrNegativeValue, amount)
	}

	b := f.backend
	fromBalance := b.balanceOf(from)
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientFunds, from, fromBalance, amount)
	}
	if recv, ok := b.receivers[to]; ok {
		if err := recv(from, new(big.Int).Set(amount)); err != nil {
			return fmt.Errorf("%w: %v", ErrTransferRejected, err)
		}
	}

	f.setBalance(from, new(big.Int).Sub(fromBalance, amount))
	f.setBalance(to, new(big.Int).Add(b.balanceOf(to), amount))
	return nil
}

func (f *Frame) setBalance(address common.Address, balance *big.Int) {
	b := f.backend
	prev, existed := b.balances[address]
	b.balances[address] = balance
	f.journal = append(f.journal, func() {
		if existed {
			b.balances[address] = prev
		} else {
			delete(b.balances, address)
		}
	})
}

// revert undoes every journalled mutation and drops logs and commit hooks.
func (f *Frame) revert() {
	for i := len(f.journal) - 1; i >= 0; i-- {
		f.journal[i]()
	}
	f.journal = nil
	f.logs = nil
	f.commits = nil
}
