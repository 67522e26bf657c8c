// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethersphere/raffle/pkg/bigint"
	"github.com/ethersphere/raffle/pkg/logging"
	"github.com/ethersphere/raffle/pkg/raffle"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	EventRaffleJoined    = "RaffleJoined"
	EventWinnerRequested = "RequestedRaffleWinner"
	EventWinnerPicked    = "WinnerPicked"

	eventBufferSize = 64
)

var (
	upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(*http.Request) bool { return true },
	}

	writeDeadline = 4 * time.Second // write deadline. should be smaller than the shutdown timeout on api close

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// EventMessage is a raffle event sent over the events websocket.
type EventMessage struct {
	Type            string           `json:"type"`
	Player          *common.Address  `json:"player,omitempty"`
	Winner          *common.Address  `json:"winner,omitempty"`
	RequestID       *bigint.BigInt   `json:"requestId,omitempty"`
	Value           *bigint.BigInt   `json:"value,omitempty"`
	Prize           *bigint.BigInt   `json:"prize,omitempty"`
	NumberOfPlayers uint64           `json:"numberOfPlayers,omitempty"`
	Players         []common.Address `json:"players,omitempty"`
	BlockNumber     uint64           `json:"blockNumber"`
	Timestamp       uint64           `json:"timestamp"`
}

// eventHub fans raffle events out to the open websockets. Slow clients miss
// events instead of blocking the raffle, every missed event is counted.
type eventHub struct {
	mu      sync.Mutex
	subs    map[chan EventMessage]struct{}
	dropped prometheus.Counter
	logger  logging.Logger
}

var _ raffle.Observer = (*eventHub)(nil)

func newEventHub(dropped prometheus.Counter, logger logging.Logger) *eventHub {
	return &eventHub{
		subs:    make(map[chan EventMessage]struct{}),
		dropped: dropped,
		logger:  logger,
	}
}

func (h *eventHub) subscribe() (<-chan EventMessage, func()) {
	c := make(chan EventMessage, eventBufferSize)
	h.mu.Lock()
	h.subs[c] = struct{}{}
	h.mu.Unlock()

	return c, func() {
		h.mu.Lock()
		delete(h.subs, c)
		h.mu.Unlock()
	}
}

func (h *eventHub) broadcast(m EventMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.subs {
		select {
		case c <- m:
		default:
			h.dropped.Inc()
			h.logger.Debugf("api: event stream full, dropped %s event of block %d", m.Type, m.BlockNumber)
		}
	}
}

func (h *eventHub) RaffleEntered(e raffle.EnteredEvent) {
	player := e.Player
	h.broadcast(EventMessage{
		Type:            EventRaffleJoined,
		Player:          &player,
		Value:           bigint.Wrap(e.Value),
		NumberOfPlayers: e.NumberOfPlayers,
		BlockNumber:     e.BlockNumber,
		Timestamp:       e.Timestamp,
	})
}

func (h *eventHub) WinnerRequested(e raffle.WinnerRequestedEvent) {
	h.broadcast(EventMessage{
		Type:            EventWinnerRequested,
		RequestID:       bigint.Wrap(e.RequestID),
		Value:           bigint.Wrap(e.Balance),
		NumberOfPlayers: e.NumberOfPlayers,
		BlockNumber:     e.BlockNumber,
		Timestamp:       e.Timestamp,
	})
}

func (h *eventHub) WinnerPicked(e raffle.WinnerPickedEvent) {
	winner := e.Winner
	h.broadcast(EventMessage{
		Type:            EventWinnerPicked,
		Winner:          &winner,
		RequestID:       bigint.Wrap(e.RequestID),
		Prize:           bigint.Wrap(e.Prize),
		NumberOfPlayers: uint64(len(e.Players)),
		Players:         e.Players,
		BlockNumber:     e.BlockNumber,
		Timestamp:       e.Timestamp,
	})
}

func (s *Service) eventsWsHandler(w http.ResponseWriter, r *http.Request) {
	// subscribe before the handshake completes so that no event emitted
	// after it is missed
	events, unsubscribe := s.events.subscribe()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		unsubscribe()
		s.logger.Debugf("api: events ws: upgrade: %v", err)
		s.logger.Error("api: events ws: cannot upgrade")
		return
	}

	s.wsWg.Add(1)
	go s.pumpEvents(conn, events, unsubscribe)
}

func (s *Service) pumpEvents(conn *websocket.Conn, events <-chan EventMessage, unsubscribe func()) {
	defer s.wsWg.Done()
	s.metrics.EventStreams.Inc()
	defer s.metrics.EventStreams.Dec()

	var (
		gone   = make(chan struct{})
		ticker = time.NewTicker(pingPeriod)
		err    error
	)
	defer func() {
		unsubscribe()
		ticker.Stop()
		conn.Close()
	}()

	conn.SetCloseHandler(func(code int, text string) error {
		s.logger.Debugf("api: events ws: client gone. code %d message %s", code, text)
		return nil
	})

	// the reader consumes control messages and notices a closed connection
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case m := <-events:
			err = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err != nil {
				s.logger.Debugf("api: events ws: set write deadline: %v", err)
				return
			}
			if err = conn.WriteJSON(m); err != nil {
				s.logger.Debugf("api: events ws: write: %v", err)
				return
			}
		case <-s.quit:
			// shutdown
			err = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err != nil {
				s.logger.Debugf("api: events ws: set write deadline: %v", err)
				return
			}
			err = conn.WriteMessage(websocket.CloseMessage, []byte{})
			if err != nil {
				s.logger.Debugf("api: events ws: write close message: %v", err)
			}
			return
		case <-gone:
			// client gone
			return
		case <-ticker.C:
			err = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err != nil {
				s.logger.Debugf("api: events ws: set write deadline: %v", err)
				return
			}
			if err = conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
