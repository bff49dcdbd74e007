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

package state

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/we-are-mono/fwlogd/daemon/logger"
	"github.com/we-are-mono/fwlogd/system"
	"github.com/we-are-mono/fwlogd/types"
)

// ResolvedInterface is a firewall interface with the addresses it holds
// right now.
type ResolvedInterface struct {
	Name       string       `json:"name"`
	Device     string       `json:"device"`
	Network    string       `json:"network,omitempty"`
	Up         bool         `json:"up"`
	Addrs      []netip.Addr `json:"addrs"`
	Broadcasts []netip.Addr `json:"broadcasts,omitempty"`
}

// ResolveInterfaces determines the firewall's own addresses. Static
// interfaces use the configured addresses, dynamic ones whatever the kernel
// reports. A missing device is logged and leaves the interface without
// addresses; any other netlink failure is returned.
func ResolveInterfaces(nl system.NetlinkClient, m *types.NetworkModel) ([]ResolvedInterface, error) {
	resolved := make([]ResolvedInterface, 0, len(m.Interfaces))

	for _, iface := range m.Interfaces {
		r := ResolvedInterface{
			Name:    iface.Name,
			Device:  iface.Device,
			Network: iface.Network,
		}

		info, err := system.InspectDevice(nl, iface.Device)
		switch {
		case errors.Is(err, system.ErrDeviceNotFound):
			logger.Warn("Interface device not present",
				logger.Field{Key: "interface", Value: iface.Name},
				logger.Field{Key: "device", Value: iface.Device})
		case err != nil:
			return nil, fmt.Errorf("interface %s: %w", iface.Name, err)
		default:
			r.Up = info.Up
		}

		if iface.Dynamic {
			if info != nil {
				r.Addrs = info.Addrs
				r.Broadcasts = info.Broadcasts
			}
		} else {
			bits, hasNet := networkBits(m, iface.Network)
			for _, s := range append(append([]string{}, iface.IPv4...), iface.IPv6...) {
				addr, err := netip.ParseAddr(s)
				if err != nil {
					return nil, fmt.Errorf("interface %s: invalid address %q: %w", iface.Name, s, err)
				}
				r.Addrs = append(r.Addrs, addr)
				if addr.Is4() && hasNet && bits < 31 {
					r.Broadcasts = append(r.Broadcasts, system.Broadcast(netip.PrefixFrom(addr, bits)))
				}
			}
		}

		resolved = append(resolved, r)
	}
	return resolved, nil
}

// networkBits returns the IPv4 prefix length of the network named
// "<network>.<zone>".
func networkBits(m *types.NetworkModel, full string) (int, bool) {
	for _, z := range m.Zones {
		for _, n := range z.Networks {
			if n.Name+"."+z.Name != full {
				continue
			}
			p, err := netip.ParsePrefix(n.Address)
			if err != nil || !p.Addr().Is4() {
				return 0, false
			}
			return p.Bits(), true
		}
	}
	return 0, false
}
