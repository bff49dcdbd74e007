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

package system

import (
	"fmt"
	"net"
	"net/netip"
	"sort"

	"github.com/vishvananda/netlink"
)

// DeviceInfo is the addressing of one kernel device at the time it was
// inspected.
type DeviceInfo struct {
	Device     string
	Up         bool
	Addrs      []netip.Addr
	Prefixes   []netip.Prefix
	Broadcasts []netip.Addr
}

// InspectDevice returns the addresses and IPv4 broadcast addresses
// assigned to device.
func InspectDevice(nl NetlinkClient, device string) (*DeviceInfo, error) {
	link, err := nl.LinkByName(device)
	if err != nil {
		return nil, fmt.Errorf("device %s: %w", device, err)
	}

	addrs, err := nl.AddrList(link, netlink.FAMILY_ALL)
	if err != nil {
		return nil, fmt.Errorf("device %s: failed to list addresses: %w", device, err)
	}

	info := &DeviceInfo{
		Device: device,
		Up:     link.Attrs().Flags&net.FlagUp != 0,
	}
	for _, a := range addrs {
		if a.IPNet == nil {
			continue
		}
		ip, ok := netip.AddrFromSlice(a.IPNet.IP)
		if !ok {
			continue
		}
		ip = ip.Unmap()
		ones, _ := a.IPNet.Mask.Size()
		prefix := netip.PrefixFrom(ip, ones)

		info.Addrs = append(info.Addrs, ip)
		info.Prefixes = append(info.Prefixes, prefix)

		if !ip.Is4() {
			continue
		}
		if bcast, ok := netip.AddrFromSlice(a.Broadcast); ok && a.Broadcast != nil && !bcast.Unmap().IsUnspecified() {
			info.Broadcasts = append(info.Broadcasts, bcast.Unmap())
		} else if ones < 31 {
			info.Broadcasts = append(info.Broadcasts, Broadcast(prefix))
		}
	}
	return info, nil
}

// Broadcast returns the last address of an IPv4 prefix.
func Broadcast(p netip.Prefix) netip.Addr {
	a := p.Masked().Addr().As4()
	host := 32 - p.Bits()
	for i := 3; i >= 0 && host > 0; i-- {
		n := host
		if n > 8 {
			n = 8
		}
		a[i] |= byte(1<<n - 1)
		host -= n
	}
	return netip.AddrFrom4(a)
}

// DeviceNames lists every link known to the kernel, sorted.
func DeviceNames(nl NetlinkClient) ([]string, error) {
	links, err := nl.LinkList()
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	names := make([]string, 0, len(links))
	for _, l := range links {
		names = append(names, l.Attrs().Name)
	}
	sort.Strings(names)
	return names, nil
}
