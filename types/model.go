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

// Package types holds the configuration shapes shared across fwlogd.
package types

// NetworkModel is the administrator's declarative network description as
// far as log name resolution needs it.
type NetworkModel struct {
	Zones      []Zone      `hcl:"zone,block" json:"zones"`
	Services   []Service   `hcl:"service,block" json:"services"`
	Interfaces []Interface `hcl:"interface,block" json:"interfaces"`
}

// Zone is the top level of the naming hierarchy (e.g. "lan").
type Zone struct {
	Name        string    `hcl:"name,label" json:"name"`
	Description string    `hcl:"description,optional" json:"description,omitempty"`
	Networks    []Network `hcl:"network,block" json:"networks,omitempty"`
}

// Network is an address range inside a zone. Its full name is
// "<network>.<zone>".
type Network struct {
	Name    string  `hcl:"name,label" json:"name"`
	Address string  `hcl:"address" json:"address"` // CIDR, e.g. "192.168.1.0/24"
	Hosts   []Host  `hcl:"host,block" json:"hosts,omitempty"`
	Groups  []Group `hcl:"group,block" json:"groups,omitempty"`
}

// Host is a single machine inside a network. Its full name is
// "<host>.<network>.<zone>".
type Host struct {
	Name string   `hcl:"name,label" json:"name"`
	IPv4 []string `hcl:"ipv4,optional" json:"ipv4,omitempty"`
	IPv6 []string `hcl:"ipv6,optional" json:"ipv6,omitempty"`
	MAC  string   `hcl:"mac,optional" json:"mac,omitempty"`
}

// Group is a named set of hosts of the same network.
type Group struct {
	Name    string   `hcl:"name,label" json:"name"`
	Members []string `hcl:"members" json:"members"`
}

// Service labels traffic by protocol and ports.
type Service struct {
	Name        string      `hcl:"name,label" json:"name"`
	Description string      `hcl:"description,optional" json:"description,omitempty"`
	Ports       []PortRange `hcl:"port,block" json:"ports,omitempty"`
	ICMP        []ICMPType  `hcl:"icmp,block" json:"icmp,omitempty"`
}

// PortRange is one protocol/port combination of a service. Src and Dst are
// a single port ("22"), a range ("1024-65535") or empty for any port.
type PortRange struct {
	Protocol string `hcl:"protocol" json:"protocol"` // tcp, udp, gre, esp, ah, ipv6 or a number
	Src      string `hcl:"src,optional" json:"src,omitempty"`
	Dst      string `hcl:"dst,optional" json:"dst,omitempty"`
}

// ICMPType is one ICMP type/code combination of a service. A nil Code
// matches every code of the type.
type ICMPType struct {
	Type int  `hcl:"type" json:"type"`
	Code *int `hcl:"code,optional" json:"code,omitempty"`
	IPv6 bool `hcl:"ipv6,optional" json:"ipv6,omitempty"`
}

// Interface is a firewall interface. Addresses listed here belong to the
// firewall itself; Dynamic interfaces have theirs read from the kernel.
type Interface struct {
	Name    string   `hcl:"name,label" json:"name"`
	Device  string   `hcl:"device" json:"device"`
	Network string   `hcl:"network,optional" json:"network,omitempty"` // full network name, e.g. "office.lan"
	IPv4    []string `hcl:"ipv4,optional" json:"ipv4,omitempty"`
	IPv6    []string `hcl:"ipv6,optional" json:"ipv6,omitempty"`
	Dynamic bool     `hcl:"dynamic,optional" json:"dynamic,omitempty"`
}
