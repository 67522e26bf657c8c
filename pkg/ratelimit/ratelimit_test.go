// Copyright 2021 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ratelimit_test

import (
	"testing"
	"time"

	"github.com/ethersphere/raffle/pkg/ratelimit"
)

func TestRateLimit(t *testing.T) {
	t.Parallel()

	var (
		key1  = "test1"
		key2  = "test2"
		rate  = time.Second
		burst = 10
	)

	now := time.Unix(1700000000, 0)
	limiter, err := ratelimit.New(rate, burst, &ratelimit.Options{
		Now: func() time.Time { return now },
	})
	if err != nil {
		t.Fatal(err)
	}

	if !limiter.Allow(key1, burst) {
		t.Fatal("want allowed")
	}

	if limiter.Allow(key1, 1) {
		t.Fatal("want rate limit exceeded")
	}

	now = now.Add(rate)
	if !limiter.Allow(key1, 1) {
		t.Fatal("want allowed after refill")
	}

	limiter.Clear(key1)

	if !limiter.Allow(key1, burst) {
		t.Fatal("want allowed after clear")
	}

	if !limiter.Allow(key2, burst) {
		t.Fatal("want allowed for another key")
	}
}

func TestRateLimitEvictsKeys(t *testing.T) {
	t.Parallel()

	limiter, err := ratelimit.New(time.Hour, 1, &ratelimit.Options{Keys: 1})
	if err != nil {
		t.Fatal(err)
	}

	if !limiter.Allow("a", 1) {
		t.Fatal("want allowed")
	}
	if limiter.Allow("a", 1) {
		t.Fatal("want rate limit exceeded")
	}

	// tracking b drops the limiter of a
	if !limiter.Allow("b", 1) {
		t.Fatal("want allowed")
	}
	if !limiter.Allow("a", 1) {
		t.Fatal("want allowed after eviction")
	}
}
