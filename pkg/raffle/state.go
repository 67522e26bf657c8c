// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package raffle

import (
	"fmt"
)

// State is the phase of a raffle cycle.
type State uint8

const (
	StateOpen State = iota
	StateCalculating
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateCalculating:
		return "CALCULATING"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "OPEN":
		*s = StateOpen
	case "CALCULATING":
		*s = StateCalculating
	default:
		return fmt.Errorf("unknown raffle state %q", text)
	}
	return nil
}
