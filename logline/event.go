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

package logline

import "strconv"

// IP protocol numbers the engine treats specially.
const (
	ProtoICMP   = 1
	ProtoTCP    = 6
	ProtoUDP    = 17
	ProtoIPv6   = 41
	ProtoGRE    = 47
	ProtoESP    = 50
	ProtoAH     = 51
	ProtoICMPv6 = 58
)

// ProtocolName returns the lower case name used in audit lines for a
// protocol number, or "proto-<n>" for protocols without one.
func ProtocolName(proto int) string {
	switch proto {
	case ProtoICMP:
		return "icmp"
	case ProtoTCP:
		return "tcp"
	case ProtoUDP:
		return "udp"
	case ProtoIPv6:
		return "ipv6"
	case ProtoGRE:
		return "gre"
	case ProtoESP:
		return "esp"
	case ProtoAH:
		return "ah"
	case ProtoICMPv6:
		return "icmpv6"
	default:
		return "proto-" + strconv.Itoa(proto)
	}
}

// Event is one parsed firewall log line.
type Event struct {
	Month    string
	Day      int
	Hour     int
	Minute   int
	Second   int
	Hostname string

	Action string
	Class  ActionClass
	Prefix string

	InIface  string
	OutIface string

	Src    string
	Dst    string
	SrcMAC string
	DstMAC string

	Protocol int
	Length   int
	TTL      int

	// Detail holds the protocol specific fields: Transport for TCP and
	// UDP, ICMP for ICMP and ICMPv6, Opaque for everything else.
	Detail Detail
}

// Detail is the protocol specific part of an Event.
type Detail interface {
	detail()
}

// TCPFlags are the TCP header flags present on a logged segment.
type TCPFlags struct {
	URG bool
	ACK bool
	PSH bool
	RST bool
	SYN bool
	FIN bool
}

// String renders the flags in "uaprsf" order, '*' for unset flags.
func (f TCPFlags) String() string {
	b := []byte("******")
	set := func(i int, on bool, c byte) {
		if on {
			b[i] = c
		}
	}
	set(0, f.URG, 'u')
	set(1, f.ACK, 'a')
	set(2, f.PSH, 'p')
	set(3, f.RST, 'r')
	set(4, f.SYN, 's')
	set(5, f.FIN, 'f')
	return string(b)
}

// Transport carries the ports of a TCP or UDP packet. Flags are only
// meaningful when the protocol is TCP.
type Transport struct {
	SrcPort int
	DstPort int
	Flags   TCPFlags
}

// ICMP carries the type and code of an ICMP or ICMPv6 packet. Both are -1
// when the log line did not include them.
type ICMP struct {
	Type int
	Code int
}

// Opaque is the detail of protocols without port information.
type Opaque struct{}

func (Transport) detail() {}
func (ICMP) detail()      {}
func (Opaque) detail()    {}

// Ports returns the two numbers service lookups are keyed on: the ports
// for TCP/UDP, type and code for ICMP, and zeros otherwise.
func (e *Event) Ports() (int, int) {
	switch d := e.Detail.(type) {
	case Transport:
		return d.SrcPort, d.DstPort
	case ICMP:
		return d.Type, d.Code
	default:
		return 0, 0
	}
}

// IsICMP reports whether the event is ICMP or ICMPv6.
func (e *Event) IsICMP() bool {
	return e.Protocol == ProtoICMP || e.Protocol == ProtoICMPv6
}

// ActionClass is the counter bucket an action falls into.
type ActionClass int

const (
	ActionOther ActionClass = iota
	ActionAccept
	ActionDrop
	ActionReject
	ActionQueue
)

// String returns the bucket name.
func (c ActionClass) String() string {
	switch c {
	case ActionAccept:
		return "accept"
	case ActionDrop:
		return "drop"
	case ActionReject:
		return "reject"
	case ActionQueue:
		return "queue"
	default:
		return "other"
	}
}

// Classify maps a free-form action token to its bucket.
func Classify(action string) ActionClass {
	switch action {
	case "ACCEPT":
		return ActionAccept
	case "DROP":
		return ActionDrop
	case "REJECT":
		return ActionReject
	case "QUEUE", "NFQUEUE":
		return ActionQueue
	default:
		return ActionOther
	}
}
