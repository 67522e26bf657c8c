// Copyright 2021 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ratelimit limits requests per key, such as a client address.
// Every key has a token bucket of size burst that refills at the refill
// rate. Only the most recently used keys are tracked.
package ratelimit

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/time/rate"
)

const defaultKeys = 10000

type Limiter struct {
	mu       sync.Mutex
	limiters *lru.Cache
	rate     rate.Limit
	burst    int
	now      func() time.Time
}

type Options struct {
	// Keys is the number of keys tracked at once. The limiter of the least
	// recently used key is dropped when it is exceeded.
	Keys int
	// Now overrides the clock.
	Now func() time.Time
}

// New returns a limiter that allows burst requests per key and refills one
// token every r.
func New(r time.Duration, burst int, o *Options) (*Limiter, error) {
	if o == nil {
		o = new(Options)
	}
	if o.Keys <= 0 {
		o.Keys = defaultKeys
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	limiters, err := lru.New(o.Keys)
	if err != nil {
		return nil, err
	}
	return &Limiter{
		limiters: limiters,
		rate:     rate.Every(r),
		burst:    burst,
		now:      o.Now,
	}, nil
}

// Allow reports whether count requests of key are within the limit, and
// consumes the tokens if they are.
func (l *Limiter) Allow(key string, count int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	var limiter *rate.Limiter
	if v, ok := l.limiters.Get(key); ok {
		limiter = v.(*rate.Limiter)
	} else {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters.Add(key, limiter)
	}

	return limiter.AllowN(l.now(), count)
}

// Clear deletes the limiter that belongs to key.
func (l *Limiter) Clear(key string) {
	l.limiters.Remove(key)
}
