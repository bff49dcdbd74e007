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

// Package lookup builds the read-only tables that map addresses to zone
// names and port pairs to service names.
package lookup

import (
	"fmt"
	"net/netip"

	"github.com/we-are-mono/fwlogd/state"
	"github.com/we-are-mono/fwlogd/system"
	"github.com/we-are-mono/fwlogd/types"
)

// Kind tells what a zone entry describes.
type Kind int

const (
	KindHost      Kind = iota // a host address
	KindNetwork               // an address of the firewall itself, filed under its network
	KindBroadcast             // a network or interface broadcast address
)

func (k Kind) String() string {
	switch k {
	case KindHost:
		return "host"
	case KindNetwork:
		return "network"
	case KindBroadcast:
		return "broadcast"
	default:
		return "unknown"
	}
}

// Entry is what an address resolves to.
type Entry struct {
	Name string
	Kind Kind
}

// Zones maps single addresses to zone entries.
type Zones struct {
	byAddr map[netip.Addr]Entry
}

// BuildZones derives the address table from the model and the resolved
// firewall interfaces. Firewall addresses win over host entries, host
// entries over broadcast entries; within a kind the first definition wins.
func BuildZones(m *types.NetworkModel, ifaces []state.ResolvedInterface) (*Zones, error) {
	z := &Zones{byAddr: make(map[netip.Addr]Entry)}

	for _, iface := range ifaces {
		name := iface.Network
		if name == "" {
			name = iface.Name
		}
		for _, a := range iface.Addrs {
			z.add(a, Entry{Name: name, Kind: KindNetwork})
		}
	}

	for _, zone := range m.Zones {
		for _, n := range zone.Networks {
			netName := n.Name + "." + zone.Name
			for _, h := range n.Hosts {
				for _, s := range append(append([]string{}, h.IPv4...), h.IPv6...) {
					a, err := netip.ParseAddr(s)
					if err != nil {
						return nil, fmt.Errorf("host %s.%s: %w", h.Name, netName, err)
					}
					z.add(a, Entry{Name: h.Name + "." + netName, Kind: KindHost})
				}
			}
		}
	}

	for _, zone := range m.Zones {
		for _, n := range zone.Networks {
			netName := n.Name + "." + zone.Name
			p, err := netip.ParsePrefix(n.Address)
			if err != nil {
				return nil, fmt.Errorf("network %s: %w", netName, err)
			}
			if p.Addr().Is4() && p.Bits() < 31 {
				z.add(system.Broadcast(p), Entry{Name: netName + "(broadcast)", Kind: KindBroadcast})
			}
		}
	}
	for _, iface := range ifaces {
		name := iface.Network
		if name == "" {
			name = iface.Name
		}
		for _, b := range iface.Broadcasts {
			z.add(b, Entry{Name: name + "(broadcast)", Kind: KindBroadcast})
		}
	}
	z.add(netip.AddrFrom4([4]byte{255, 255, 255, 255}), Entry{Name: "broadcast", Kind: KindBroadcast})

	return z, nil
}

func (z *Zones) add(a netip.Addr, e Entry) {
	a = a.Unmap().WithZone("")
	if _, ok := z.byAddr[a]; !ok {
		z.byAddr[a] = e
	}
}

// Lookup returns the entry for a textual address.
func (z *Zones) Lookup(addr string) (Entry, bool) {
	if z == nil {
		return Entry{}, false
	}
	a, err := netip.ParseAddr(addr)
	if err != nil {
		return Entry{}, false
	}
	e, ok := z.byAddr[a.Unmap().WithZone("")]
	return e, ok
}

// Len returns the number of addresses in the table.
func (z *Zones) Len() int {
	if z == nil {
		return 0
	}
	return len(z.byAddr)
}
