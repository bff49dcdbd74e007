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
	"errors"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspectDevice(t *testing.T) {
	nl := NewMockNetlinkClient()
	nl.AddDevice("eth1", "192.168.1.1/24", "fd00::1/64")

	info, err := InspectDevice(nl, "eth1")
	require.NoError(t, err)

	assert.True(t, info.Up)
	assert.Equal(t, []netip.Addr{netip.MustParseAddr("192.168.1.1"), netip.MustParseAddr("fd00::1")}, info.Addrs)
	assert.Equal(t, netip.MustParsePrefix("192.168.1.1/24"), info.Prefixes[0])
	assert.Equal(t, []netip.Addr{netip.MustParseAddr("192.168.1.255")}, info.Broadcasts)
	assert.Equal(t, 1, nl.LinkByNameCalls)
	assert.Equal(t, 1, nl.AddrListCalls)
}

func TestInspectDevicePointToPoint(t *testing.T) {
	nl := NewMockNetlinkClient()
	nl.AddDevice("wg0", "10.9.0.1/32")

	info, err := InspectDevice(nl, "wg0")
	require.NoError(t, err)
	assert.Len(t, info.Addrs, 1)
	assert.Empty(t, info.Broadcasts)
}

func TestInspectDeviceErrors(t *testing.T) {
	nl := NewMockNetlinkClient()

	_, err := InspectDevice(nl, "missing0")
	assert.ErrorContains(t, err, "device missing0")
	assert.ErrorIs(t, err, ErrDeviceNotFound)

	nl.AddDevice("eth0", "10.0.0.2/8")
	nl.AddrListError = errors.New("netlink busy")
	_, err = InspectDevice(nl, "eth0")
	assert.ErrorContains(t, err, "netlink busy")
}

func TestBroadcast(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"192.168.1.0/24", "192.168.1.255"},
		{"10.0.0.0/8", "10.255.255.255"},
		{"172.16.4.0/22", "172.16.7.255"},
		{"192.168.1.77/28", "192.168.1.79"},
		{"0.0.0.0/0", "255.255.255.255"},
		{"10.0.0.1/32", "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			got := Broadcast(netip.MustParsePrefix(tt.prefix))
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestDeviceNames(t *testing.T) {
	nl := NewMockNetlinkClient()
	nl.AddDevice("eth1")
	nl.AddDevice("eth0")
	nl.AddDevice("br-lan")

	names, err := DeviceNames(nl)
	require.NoError(t, err)
	assert.Equal(t, []string{"br-lan", "eth0", "eth1"}, names)

	nl.LinkListError = errors.New("denied")
	_, err = DeviceNames(nl)
	assert.Error(t, err)
}
