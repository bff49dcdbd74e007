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

// Package stats keeps the process lifetime classification tallies.
package stats

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/we-are-mono/fwlogd/logline"
)

// Protocol buckets.
const (
	ProtoTCP = iota
	ProtoUDP
	ProtoICMP
	ProtoOther
	numProtos
)

const numActions = int(logline.ActionQueue) + 1

var protoNames = [numProtos]string{"tcp", "udp", "icmp", "other"}

// ProtoBucket maps a protocol number to its bucket. ICMPv6 counts as icmp.
func ProtoBucket(proto int) int {
	switch proto {
	case logline.ProtoTCP:
		return ProtoTCP
	case logline.ProtoUDP:
		return ProtoUDP
	case logline.ProtoICMP, logline.ProtoICMPv6:
		return ProtoICMP
	default:
		return ProtoOther
	}
}

// Counters are monotonically increasing tallies, safe for concurrent
// readers. The zero value is ready to use; metrics are optional.
type Counters struct {
	total    atomic.Uint64
	firewall atomic.Uint64
	foreign  atomic.Uint64
	invalid  atomic.Uint64
	actions  [numActions]atomic.Uint64
	protos   [numProtos]atomic.Uint64

	metrics *Metrics
}

// New returns counters mirrored into m when m is not nil.
func New(m *Metrics) *Counters {
	return &Counters{metrics: m}
}

// Line counts a line read from the source log.
func (c *Counters) Line() {
	c.total.Add(1)
	c.metrics.line("total")
}

// Foreign counts a line without the firewall marker.
func (c *Counters) Foreign() {
	c.foreign.Add(1)
	c.metrics.line("foreign")
}

// Invalid counts a marked line that failed to parse.
func (c *Counters) Invalid() {
	c.invalid.Add(1)
	c.metrics.line("invalid")
}

// Firewall counts a parsed firewall event.
func (c *Counters) Firewall(ev *logline.Event) {
	c.firewall.Add(1)
	c.Action(ev.Class)
	proto := ProtoBucket(ev.Protocol)
	c.protos[proto].Add(1)

	if c.metrics != nil {
		c.metrics.line("firewall")
		c.metrics.Protocols.WithLabelValues(protoNames[proto]).Inc()
	}
}

// Action counts an action on its own, for marked lines whose action was
// read before the rest of the line failed to parse.
func (c *Counters) Action(class logline.ActionClass) {
	if class < 0 || int(class) >= numActions {
		class = logline.ActionOther
	}
	c.actions[class].Add(1)

	if c.metrics != nil {
		c.metrics.Actions.WithLabelValues(class.String()).Inc()
	}
}

// Snapshot is a point in time copy of the counters.
type Snapshot struct {
	Total     uint64            `json:"total"`
	Firewall  uint64            `json:"firewall"`
	Foreign   uint64            `json:"foreign"`
	Invalid   uint64            `json:"invalid"`
	Actions   map[string]uint64 `json:"actions"`
	Protocols map[string]uint64 `json:"protocols"`
}

// Snapshot copies the counters. Fields are read one by one, so a snapshot
// taken while lines are counted may be off by the lines in flight.
func (c *Counters) Snapshot() Snapshot {
	s := Snapshot{
		Total:     c.total.Load(),
		Firewall:  c.firewall.Load(),
		Foreign:   c.foreign.Load(),
		Invalid:   c.invalid.Load(),
		Actions:   make(map[string]uint64, numActions),
		Protocols: make(map[string]uint64, numProtos),
	}
	for i := range c.actions {
		s.Actions[logline.ActionClass(i).String()] = c.actions[i].Load()
	}
	for i := range c.protos {
		s.Protocols[protoNames[i]] = c.protos[i].Load()
	}
	return s
}

// Report writes the shutdown summary.
func (s Snapshot) Report(w io.Writer) error {
	_, err := fmt.Fprintf(w,
		"lines: %d total, %d firewall, %d foreign, %d invalid\n"+
			"actions: %d accept, %d drop, %d reject, %d queue, %d other\n"+
			"protocols: %d tcp, %d udp, %d icmp, %d other\n",
		s.Total, s.Firewall, s.Foreign, s.Invalid,
		s.Actions["accept"], s.Actions["drop"], s.Actions["reject"], s.Actions["queue"], s.Actions["other"],
		s.Protocols["tcp"], s.Protocols["udp"], s.Protocols["icmp"], s.Protocols["other"])
	return err
}
