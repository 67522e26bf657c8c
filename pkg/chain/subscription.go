// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package chain

import (
	"sync"

	"github.com/ethereum/go-ethereum/core/types"
)

// Subscription delivers committed logs to a channel in the order they were
// mined. Logs are queued without bound so a slow reader never stalls the
// backend.
type Subscription struct {
	backend *Backend

	mu    sync.Mutex
	queue []types.Log
	wake  chan struct{}
	quit  chan struct{}
	once  sync.Once
}

// SubscribeLogs delivers every log committed after the call to ch until
// the subscription is cancelled.
func (b *Backend) SubscribeLogs(ch chan<- types.Log) *Subscription {
	s := &Subscription{
		backend: b,
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
	}

	b.subsMu.Lock()
	b.subs[s] = struct{}{}
	b.subsMu.Unlock()

	go s.loop(ch)
	return s
}

// Unsubscribe stops the delivery of logs. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.backend.subsMu.Lock()
		delete(s.backend.subs, s)
		s.backend.subsMu.Unlock()
		close(s.quit)
	})
}

func (s *Subscription) push(logs []*types.Log) {
	s.mu.Lock()
	for _, l := range logs {
		s.queue = append(s.queue, *l)
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) loop(ch chan<- types.Log) {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.quit:
				return
			}
		}
		l := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case ch <- l:
		case <-s.quit:
			return
		}
	}
}
