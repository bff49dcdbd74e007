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
	"net/netip"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/we-are-mono/fwlogd/system"
	"github.com/we-are-mono/fwlogd/types"
)

const testModel = `
zone "lan" {
  network "office" {
    address = "192.168.1.0/24"

    host "printer" {
      ipv4 = ["192.168.1.20"]
    }

    group "printers" {
      members = ["printer"]
    }
  }
}

zone "dmz" {
  network "servers" {
    address = "10.0.5.0/24"

    host "web" {
      ipv4 = ["10.0.5.10"]
      ipv6 = ["fd00:5::10"]
    }
  }
}

service "ssh" {
  port {
    protocol = "tcp"
    dst      = "22"
  }
}

service "ping" {
  icmp {
    type = 8
  }
}

interface "lan" {
  device  = "eth1"
  network = "office.lan"
  ipv4    = ["192.168.1.1"]
}

interface "wan" {
  device  = "eth0"
  dynamic = true
}
`

type mapSource map[string]string

func (s mapSource) Load(name string) ([]byte, error) {
	data, ok := s[name]
	if !ok {
		return nil, os.ErrNotExist
	}
	return []byte(data), nil
}

func TestLoadModel(t *testing.T) {
	m, raw, err := LoadModel(mapSource{"network.hcl": testModel}, "network.hcl")
	require.NoError(t, err)
	assert.Equal(t, testModel, string(raw))

	require.Len(t, m.Zones, 2)
	assert.Equal(t, "lan", m.Zones[0].Name)
	assert.Equal(t, "192.168.1.0/24", m.Zones[0].Networks[0].Address)
	assert.Equal(t, []string{"printer"}, m.Zones[0].Networks[0].Groups[0].Members)
	assert.Equal(t, []string{"fd00:5::10"}, m.Zones[1].Networks[0].Hosts[0].IPv6)

	require.Len(t, m.Services, 2)
	assert.Equal(t, "22", m.Services[0].Ports[0].Dst)
	assert.Equal(t, "", m.Services[0].Ports[0].Src)
	assert.Equal(t, 8, m.Services[1].ICMP[0].Type)
	assert.Nil(t, m.Services[1].ICMP[0].Code)

	require.Len(t, m.Interfaces, 2)
	assert.True(t, m.Interfaces[1].Dynamic)
}

func TestLoadModelErrors(t *testing.T) {
	_, _, err := LoadModel(mapSource{}, "network.hcl")
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, _, err = LoadModel(mapSource{"network.hcl": `zone "lan" {`}, "network.hcl")
	assert.ErrorContains(t, err, "failed to decode network model")

	invalid := `
service "broken" {
  port {
    protocol = "tcp"
    dst      = "99999"
  }
}
`
	_, _, err = LoadModel(mapSource{"network.hcl": invalid}, "network.hcl")
	assert.ErrorContains(t, err, "invalid network model")
	assert.ErrorContains(t, err, "service broken")
}

func TestResolveInterfaces(t *testing.T) {
	m, _, err := LoadModel(mapSource{"network.hcl": testModel}, "network.hcl")
	require.NoError(t, err)

	nl := system.NewMockNetlinkClient()
	nl.AddDevice("eth1", "192.168.1.1/24")
	nl.AddDevice("eth0", "203.0.113.2/29", "2001:db8::2/64")

	ifaces, err := ResolveInterfaces(nl, m)
	require.NoError(t, err)
	require.Len(t, ifaces, 2)

	lan := ifaces[0]
	assert.Equal(t, "lan", lan.Name)
	assert.True(t, lan.Up)
	assert.Equal(t, []netip.Addr{netip.MustParseAddr("192.168.1.1")}, lan.Addrs)
	assert.Equal(t, []netip.Addr{netip.MustParseAddr("192.168.1.255")}, lan.Broadcasts)

	wan := ifaces[1]
	assert.True(t, wan.Up)
	assert.Equal(t, []netip.Addr{netip.MustParseAddr("203.0.113.2"), netip.MustParseAddr("2001:db8::2")}, wan.Addrs)
	assert.Equal(t, []netip.Addr{netip.MustParseAddr("203.0.113.7")}, wan.Broadcasts)
}

func TestResolveInterfacesMissingDevice(t *testing.T) {
	m := &types.NetworkModel{
		Interfaces: []types.Interface{
			{Name: "wan", Device: "ppp0", Dynamic: true},
			{Name: "dmz", Device: "eth2", IPv4: []string{"10.0.5.1"}},
		},
	}

	ifaces, err := ResolveInterfaces(system.NewMockNetlinkClient(), m)
	require.NoError(t, err)
	require.Len(t, ifaces, 2)
	assert.False(t, ifaces[0].Up)
	assert.Empty(t, ifaces[0].Addrs)
	assert.False(t, ifaces[1].Up)
	assert.Equal(t, []netip.Addr{netip.MustParseAddr("10.0.5.1")}, ifaces[1].Addrs)
	assert.Empty(t, ifaces[1].Broadcasts, "no network, no broadcast")
}

func TestResolveInterfacesNetlinkFailure(t *testing.T) {
	m := &types.NetworkModel{Interfaces: []types.Interface{{Name: "wan", Device: "eth0", Dynamic: true}}}

	nl := system.NewMockNetlinkClient()
	nl.AddDevice("eth0")
	nl.AddrListError = errors.New("netlink socket closed")

	_, err := ResolveInterfaces(nl, m)
	assert.ErrorContains(t, err, "interface wan")
	assert.ErrorContains(t, err, "netlink socket closed")
}

func TestFingerprint(t *testing.T) {
	config := DefaultLogdConfig()
	ifaces := []ResolvedInterface{{Name: "lan", Device: "eth1", Addrs: []netip.Addr{netip.MustParseAddr("192.168.1.1")}}}

	a := Fingerprint(config, []byte(testModel), ifaces)
	assert.Equal(t, a, Fingerprint(DefaultLogdConfig(), []byte(testModel), ifaces))
	assert.Len(t, a, 64)

	assert.NotEqual(t, a, Fingerprint(config, []byte(testModel+"\n"), ifaces))

	changed := DefaultLogdConfig()
	changed.Marker = "other:"
	assert.NotEqual(t, a, Fingerprint(changed, []byte(testModel), ifaces))

	moved := []ResolvedInterface{{Name: "lan", Device: "eth1", Addrs: []netip.Addr{netip.MustParseAddr("192.168.1.2")}}}
	assert.NotEqual(t, a, Fingerprint(config, []byte(testModel), moved))
}
