// Copyright 2021 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bigint wraps big.Int so that wei amounts are encoded as decimal
// JSON strings in API responses.
package bigint

import (
	"encoding/json"
	"fmt"
	"math/big"
)

type BigInt struct {
	big.Int
}

func (i BigInt) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf(`"%s"`, i.String())), nil
}

func (i *BigInt) UnmarshalJSON(b []byte) error {
	var val string
	err := json.Unmarshal(b, &val)
	if err != nil {
		return err
	}

	if _, ok := i.SetString(val, 10); !ok {
		return fmt.Errorf("invalid decimal number %q", val)
	}

	return nil
}

func NewBigInt(x int64) *BigInt {
	b := new(BigInt)
	b.SetInt64(x)
	return b
}

// Wrap returns a BigInt copy of i. A nil i is wrapped as zero.
func Wrap(i *big.Int) *BigInt {
	if i == nil {
		return new(BigInt)
	}
	return &BigInt{*new(big.Int).Set(i)}
}

// Unwrap returns the underlying value as a new big.Int.
func (i *BigInt) Unwrap() *big.Int {
	if i == nil {
		return nil
	}
	return new(big.Int).Set(&i.Int)
}
