// Copyright (C) 2025 Mono Technologies Inc.
//
// This program is free software; you can redistribute it and/or
// modify it under the terms of the GNU General Public License
// as published by the Free Software Foundation; version 2.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.

// Package reload coordinates configuration rebuilds between the daemon and
// a cooperating management process.
package reload

import "fmt"

// Result is the outcome code kept in the mailbox.
type Result int32

const (
	NoResult Result = iota
	Ready
	Success
	NoChanges
	Error
	Acknowledged
)

func (r Result) String() string {
	switch r {
	case NoResult:
		return "none"
	case Ready:
		return "ready"
	case Success:
		return "success"
	case NoChanges:
		return "no-changes"
	case Error:
		return "error"
	case Acknowledged:
		return "acknowledged"
	default:
		return "unknown"
	}
}

// Terminal reports whether r ends a reload cycle.
func (r Result) Terminal() bool {
	return r == Success || r == NoChanges || r == Error
}

// Connected is the peer's tri-state connection flag.
type Connected int32

const (
	ConnectedUnknown Connected = iota
	ConnectedYes
	ConnectedNo
)

func (c Connected) String() string {
	switch c {
	case ConnectedYes:
		return "yes"
	case ConnectedNo:
		return "no"
	default:
		return "unknown"
	}
}

// State is the coordinator's position in a reload cycle.
type State int

const (
	StateReady State = iota
	StateRunning
	StateResultPending
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateResultPending:
		return "result-pending"
	default:
		return "ready"
	}
}

// Trigger tells who asked for a reload.
type Trigger int

const (
	TriggerSignal Trigger = iota // SIGHUP or the status socket; no handshake
	TriggerPeer                  // the mailbox flag; the peer must acknowledge
)

func (t Trigger) String() string {
	if t == TriggerPeer {
		return "peer"
	}
	return "signal"
}

func (r Result) MarshalText() ([]byte, error)  { return []byte(r.String()), nil }
func (s State) MarshalText() ([]byte, error)   { return []byte(s.String()), nil }
func (t Trigger) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (r *Result) UnmarshalText(b []byte) error {
	for v := NoResult; v <= Acknowledged; v++ {
		if v.String() == string(b) {
			*r = v
			return nil
		}
	}
	return fmt.Errorf("unknown reload result %q", b)
}

func (s *State) UnmarshalText(b []byte) error {
	for v := StateReady; v <= StateResultPending; v++ {
		if v.String() == string(b) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown reload state %q", b)
}

func (t *Trigger) UnmarshalText(b []byte) error {
	switch string(b) {
	case "signal":
		*t = TriggerSignal
	case "peer":
		*t = TriggerPeer
	default:
		return fmt.Errorf("unknown reload trigger %q", b)
	}
	return nil
}
