// Copyright 2021 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package chain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	ErrEventNotFound       = errors.New("event not found")
	ErrNoTopic             = errors.New("no topic")
	ErrTransactionReverted = errors.New("transaction reverted")
)

// ParseABIUnchecked parses a contract abi and panics on failure. It is
// meant for abi definitions compiled into the binary.
func ParseABIUnchecked(json string) abi.ABI {
	cabi, err := abi.JSON(strings.NewReader(json))
	if err != nil {
		panic(fmt.Sprintf("error creating ABI for contract: %v", err))
	}
	return cabi
}

// PackEvent encodes the arguments of the named event into log topics and
// data. Arguments are given in declaration order.
func PackEvent(a *abi.ABI, eventName string, args ...interface{}) ([]common.Hash, []byte, error) {
	event, ok := a.Events[eventName]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrEventNotFound, eventName)
	}
	if len(args) != len(event.Inputs) {
		return nil, nil, fmt.Errorf("event %s: got %d arguments, want %d", eventName, len(args), len(event.Inputs))
	}

	var indexed, data []interface{}
	for i, arg := range event.Inputs {
		if arg.Indexed {
			indexed = append(indexed, args[i])
		} else {
			data = append(data, args[i])
		}
	}

	topics := []common.Hash{event.ID}
	if len(indexed) > 0 {
		query := make([][]interface{}, len(indexed))
		for i, v := range indexed {
			query[i] = []interface{}{v}
		}
		t, err := abi.MakeTopics(query...)
		if err != nil {
			return nil, nil, fmt.Errorf("event %s topics: %w", eventName, err)
		}
		for _, h := range t {
			topics = append(topics, h[0])
		}
	}

	packed, err := event.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		return nil, nil, fmt.Errorf("event %s data: %w", eventName, err)
	}
	return topics, packed, nil
}

// EmitEvent packs the named event and emits it from the executing contract.
func (f *Frame) EmitEvent(a *abi.ABI, eventName string, args ...interface{}) error {
	topics, data, err := PackEvent(a, eventName, args...)
	if err != nil {
		return err
	}
	return f.Emit(topics, data)
}

// ParseEvent will parse the specified abi event from the given log
func ParseEvent(a *abi.ABI, eventName string, c interface{}, e types.Log) error {
	if len(e.Topics) == 0 {
		return ErrNoTopic
	}
	if len(e.Data) > 0 {
		if err := a.UnpackIntoInterface(c, eventName, e.Data); err != nil {
			return err
		}
	}
	var indexed abi.Arguments
	for _, arg := range a.Events[eventName].Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return abi.ParseTopics(c, indexed, e.Topics[1:])
}

// FindSingleEvent will find the first event of the given kind.
func FindSingleEvent(abi *abi.ABI, receipt *types.Receipt, contractAddress common.Address, event abi.Event, out interface{}) error {
	if receipt.Status != types.ReceiptStatusSuccessful {
		return ErrTransactionReverted
	}
	for _, log := range receipt.Logs {
		if log.Address != contractAddress {
			continue
		}
		if len(log.Topics) == 0 {
			continue
		}
		if log.Topics[0] != event.ID {
			continue
		}

		return ParseEvent(abi, event.Name, out, *log)
	}
	return ErrEventNotFound
}
