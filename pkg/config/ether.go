// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"errors"
	"math/big"
	"strings"
)

// ErrInvalidAmount is returned when a decimal amount cannot be parsed.
var ErrInvalidAmount = errors.New("invalid amount")

var weiPerEther = big.NewInt(1e18)

// ParseEther converts a decimal ether amount like "0.01" to wei.
func ParseEther(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "-") {
		return nil, ErrInvalidAmount
	}

	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if len(frac) > 18 {
		return nil, ErrInvalidAmount
	}
	if whole == "" {
		whole = "0"
	}
	frac += strings.Repeat("0", 18-len(frac))

	wei, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, ErrInvalidAmount
	}
	return wei, nil
}

// FormatEther renders a wei amount as a decimal ether string without
// trailing zeros.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	sign := ""
	v := new(big.Int).Set(wei)
	if v.Sign() < 0 {
		sign = "-"
		v.Neg(v)
	}

	q, r := new(big.Int).QuoRem(v, weiPerEther, new(big.Int))
	if r.Sign() == 0 {
		return sign + q.String()
	}
	frac := r.String()
	frac = strings.Repeat("0", 18-len(frac)) + frac
	return sign + q.String() + "." + strings.TrimRight(frac, "0")
}
